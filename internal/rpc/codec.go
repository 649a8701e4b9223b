package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtding233/foraging-backend/internal/distribution"
	"github.com/xtding233/foraging-backend/internal/history"
	"github.com/xtding233/foraging-backend/internal/patch"
	"github.com/xtding233/foraging-backend/internal/updater"
)

// Message field names.
const (
	FieldPatchID     = "patch_id"
	FieldAmount      = "amount"
	FieldProbability = "probability"
	FieldAvailable   = "available"
	FieldTick        = "tick"
	FieldPatches     = "patches"
	FieldRewarded    = "rewarded"
	FieldState       = "state"
	FieldEntries     = "entries"
	FieldSeq         = "seq"
	FieldOp          = "op"
	FieldAt          = "at"
)

var (
	// ErrBadRequest reports a malformed request message.
	ErrBadRequest = errors.New("bad request")
	// ErrNoHistory is returned by History on a server without a history ring.
	ErrNoHistory = errors.New("history not enabled")
)

func number(in *structpb.Struct, key string) (float64, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrBadRequest, key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: field %q must be a number", ErrBadRequest, key)
	}
	return n.NumberValue, nil
}

func patchID(in *structpb.Struct) (int, error) {
	f, err := number(in, FieldPatchID)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%w: %s must be an integer, got %g", ErrBadRequest, FieldPatchID, f)
	}
	return int(f), nil
}

func stateFields(s patch.State) map[string]any {
	return map[string]any{
		FieldPatchID:     float64(s.PatchID),
		FieldAmount:      s.Amount,
		FieldProbability: s.Probability,
		FieldAvailable:   s.Available,
	}
}

func encodeState(s patch.State) (*structpb.Struct, error) {
	return structpb.NewStruct(stateFields(s))
}

func entryFields(e history.Entry) map[string]any {
	f := stateFields(e.State)
	f[FieldSeq] = float64(e.Seq)
	f[FieldOp] = e.Op
	f[FieldAt] = e.At.Format(time.RFC3339Nano)
	return f
}

func decodeEntry(in *structpb.Struct) (history.Entry, error) {
	s, err := decodeState(in)
	if err != nil {
		return history.Entry{}, err
	}
	seq, err := number(in, FieldSeq)
	if err != nil {
		return history.Entry{}, err
	}
	e := history.Entry{Seq: uint64(seq), Op: in.GetFields()[FieldOp].GetStringValue(), State: s}
	if at := in.GetFields()[FieldAt].GetStringValue(); at != "" {
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return history.Entry{}, fmt.Errorf("%w: %s: %v", ErrBadRequest, FieldAt, err)
		}
	}
	return e, nil
}

func decodeState(in *structpb.Struct) (patch.State, error) {
	id, err := patchID(in)
	if err != nil {
		return patch.State{}, err
	}
	s := patch.State{PatchID: id}
	if s.Amount, err = number(in, FieldAmount); err != nil {
		return patch.State{}, err
	}
	if s.Probability, err = number(in, FieldProbability); err != nil {
		return patch.State{}, err
	}
	if s.Available, err = number(in, FieldAvailable); err != nil {
		return patch.State{}, err
	}
	return s, nil
}

// toStatus maps engine errors to gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, patch.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, distribution.ErrInvalidSpecification):
		code = codes.InvalidArgument
	case errors.Is(err, updater.ErrDomain), errors.Is(err, distribution.ErrSamplingHeuristic):
		code = codes.FailedPrecondition
	case errors.Is(err, ErrNoHistory):
		code = codes.Unimplemented
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

// fromStatus maps a status error back to the engine sentinel so callers can
// use errors.Is on either side of the wire.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = patch.ErrNotFound
	case codes.InvalidArgument:
		sentinel = distribution.ErrInvalidSpecification
	case codes.FailedPrecondition:
		sentinel = updater.ErrDomain
	case codes.Unimplemented:
		sentinel = ErrNoHistory
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}
