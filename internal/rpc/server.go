package rpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtding233/foraging-backend/internal/distribution"
	"github.com/xtding233/foraging-backend/internal/history"
	"github.com/xtding233/foraging-backend/internal/patch"
)

// Server exposes a patch.Manager over gRPC.
//
//	Get      {patch_id}                                  -> state
//	Set      {patch_id, amount, probability, available}  -> state
//	Update   {patch_id, tick}                            -> state
//	Remove   {patch_id}                                  -> last state
//	Snapshot {}                                          -> {patches: [state...]}
//	Harvest  {patch_id}                                  -> {rewarded, amount, state}
//	History  {patch_id}                                  -> {entries: [state + seq, op, at...]}
//
// Update and Harvest apply the rules installed with SetRules for that patch;
// a patch with no rules is left unchanged. History needs SetHistory.
type Server struct {
	manager *patch.Manager
	rng     *lockedSource

	mu      sync.RWMutex
	rules   map[int]patch.Rules
	history HistorySource
}

// HistorySource is read by the History method. *history.Memory implements it.
type HistorySource interface {
	Patch(id int) []history.Entry
}

var _ PatchServiceServer = (*Server)(nil)

// NewServer serves m. rng is shared by every call and guarded internally;
// nil means a crypto source.
func NewServer(m *patch.Manager, rules map[int]patch.Rules, rng distribution.RandomSource) *Server {
	if rng == nil {
		rng = distribution.NewCryptoRNG()
	}
	s := &Server{manager: m, rng: &lockedSource{src: rng}}
	s.SetRules(rules)
	return s
}

// SetRules replaces the update rules, e.g. after a task file reload.
func (s *Server) SetRules(rules map[int]patch.Rules) {
	cp := make(map[int]patch.Rules, len(rules))
	for id, r := range rules {
		cp[id] = r
	}
	s.mu.Lock()
	s.rules = cp
	s.mu.Unlock()
}

// SetHistory installs the source History reads from.
func (s *Server) SetHistory(h HistorySource) {
	s.mu.Lock()
	s.history = h
	s.mu.Unlock()
}

func (s *Server) rulesFor(id int) patch.Rules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules[id]
}

func (s *Server) Get(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := patchID(in)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := s.manager.Get(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(encodeState(st))
}

func (s *Server) Set(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	st, err := decodeState(in)
	if err != nil {
		return nil, toStatus(err)
	}
	s.manager.Set(st.PatchID, st.Amount, st.Probability, st.Available)
	return reply(encodeState(st))
}

func (s *Server) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}
	id, err := patchID(in)
	if err != nil {
		return nil, toStatus(err)
	}
	tick, err := number(in, FieldTick)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := s.manager.Update(id, tick, s.rulesFor(id), s.rng)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(encodeState(st))
}

func (s *Server) Remove(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := patchID(in)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := s.manager.Remove(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(encodeState(st))
}

func (s *Server) Snapshot(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snap := s.manager.Snapshot()
	list := make([]any, len(snap))
	for i, st := range snap {
		list[i] = stateFields(st)
	}
	return reply(structpb.NewStruct(map[string]any{FieldPatches: list}))
}

func (s *Server) Harvest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}
	id, err := patchID(in)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := s.manager.Harvest(id, s.rulesFor(id), s.rng)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(structpb.NewStruct(map[string]any{
		FieldRewarded: res.Rewarded,
		FieldAmount:   res.Amount,
		FieldState:    stateFields(res.State),
	}))
}

func (s *Server) History(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := patchID(in)
	if err != nil {
		return nil, toStatus(err)
	}
	s.mu.RLock()
	h := s.history
	s.mu.RUnlock()
	if h == nil {
		return nil, toStatus(ErrNoHistory)
	}
	entries := h.Patch(id)
	list := make([]any, len(entries))
	for i, e := range entries {
		list[i] = entryFields(e)
	}
	return reply(structpb.NewStruct(map[string]any{FieldEntries: list}))
}

func reply(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// lockedSource serialises access to a RandomSource that is not safe for
// concurrent use, such as a seeded one.
type lockedSource struct {
	mu  sync.Mutex
	src distribution.RandomSource
}

func (l *lockedSource) Uint64() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Uint64()
}

func (l *lockedSource) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

// LoggingInterceptor logs every unary call with its status code and latency.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		attrs := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
		if err != nil {
			logger.WarnContext(ctx, "rpc failed", append(attrs, "error", err)...)
		} else {
			logger.DebugContext(ctx, "rpc", attrs...)
		}
		return resp, err
	}
}
