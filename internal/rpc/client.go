package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtding233/foraging-backend/internal/history"
	"github.com/xtding233/foraging-backend/internal/patch"
)

// Client calls a remote PatchService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, fmt.Errorf("%s rpc: %w", method, fromStatus(err))
	}
	return out, nil
}

func (c *Client) state(ctx context.Context, method string, in map[string]any) (patch.State, error) {
	out, err := c.invoke(ctx, method, in)
	if err != nil {
		return patch.State{}, err
	}
	return decodeState(out)
}

func (c *Client) Get(ctx context.Context, id int) (patch.State, error) {
	return c.state(ctx, MethodGet, map[string]any{FieldPatchID: id})
}

func (c *Client) Set(ctx context.Context, s patch.State) (patch.State, error) {
	return c.state(ctx, MethodSet, stateFields(s))
}

func (c *Client) Update(ctx context.Context, id int, tick float64) (patch.State, error) {
	return c.state(ctx, MethodUpdate, map[string]any{FieldPatchID: id, FieldTick: tick})
}

func (c *Client) Remove(ctx context.Context, id int) (patch.State, error) {
	return c.state(ctx, MethodRemove, map[string]any{FieldPatchID: id})
}

// Snapshot returns every remote state ordered by patch id.
func (c *Client) Snapshot(ctx context.Context) ([]patch.State, error) {
	out, err := c.invoke(ctx, MethodSnapshot, map[string]any{})
	if err != nil {
		return nil, err
	}
	list := out.GetFields()[FieldPatches].GetListValue().GetValues()
	states := make([]patch.State, 0, len(list))
	for _, v := range list {
		s, err := decodeState(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}

func (c *Client) Harvest(ctx context.Context, id int) (patch.HarvestResult, error) {
	out, err := c.invoke(ctx, MethodHarvest, map[string]any{FieldPatchID: id})
	if err != nil {
		return patch.HarvestResult{}, err
	}
	amount, err := number(out, FieldAmount)
	if err != nil {
		return patch.HarvestResult{}, err
	}
	s, err := decodeState(out.GetFields()[FieldState].GetStructValue())
	if err != nil {
		return patch.HarvestResult{}, err
	}
	return patch.HarvestResult{
		Rewarded: out.GetFields()[FieldRewarded].GetBoolValue(),
		Amount:   amount,
		State:    s,
	}, nil
}

// History returns the server's retained history of one patch, oldest first.
func (c *Client) History(ctx context.Context, id int) ([]history.Entry, error) {
	out, err := c.invoke(ctx, MethodHistory, map[string]any{FieldPatchID: id})
	if err != nil {
		return nil, err
	}
	list := out.GetFields()[FieldEntries].GetListValue().GetValues()
	entries := make([]history.Entry, 0, len(list))
	for _, v := range list {
		e, err := decodeEntry(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
