package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/SHAIKYASIR/skillsync/pkg/identity"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
	"github.com/SHAIKYASIR/skillsync/pkg/telemetry"

	"github.com/oklog/ulid/v2"
)

type Options struct {
	SessionBuffer              int
	MaxSubscriptionsPerSession int
}

// Hub keeps the registry of live queries and pushes fresh results to their
// subscribers whenever a committed change touches one of their dependencies.
//
// Lock order: liveQuery.mu before Hub.mu.
type Hub struct {
	resolver Resolver
	opts     Options

	mu       sync.Mutex
	live     map[string]*liveQuery
	index    map[Dependency]map[string]struct{}
	sessions map[string]*Session
}

type liveQuery struct {
	key  string
	deps []Dependency
	run  func(ctx context.Context) (any, error)

	// mu serializes recomputation so versions only move forward
	mu      sync.Mutex
	version uint64
	last    []byte

	// session -> subscription ids; guarded by Hub.mu
	subs map[*Session]map[string]struct{}
}

func NewHub(resolver Resolver, opts Options) *Hub {
	if opts.SessionBuffer <= 0 {
		opts.SessionBuffer = 256
	}
	if opts.MaxSubscriptionsPerSession <= 0 {
		opts.MaxSubscriptionsPerSession = 64
	}
	return &Hub{
		resolver: resolver,
		opts:     opts,
		live:     make(map[string]*liveQuery),
		index:    make(map[Dependency]map[string]struct{}),
		sessions: make(map[string]*Session),
	}
}

// NewSession registers a connection. An empty id gets a generated one.
func (h *Hub) NewSession(id string) *Session {
	if id == "" {
		id = ulid.Make().String()
	}
	s := &Session{
		id:   id,
		hub:  h,
		out:  make(chan Frame, h.opts.SessionBuffer),
		done: make(chan struct{}),
		subs: make(map[string]*liveQuery),
	}
	h.mu.Lock()
	h.sessions[id] = s
	activeSessions.Set(float64(len(h.sessions)))
	h.mu.Unlock()
	return s
}

// Subscribe starts a live query for the session. The initial result is
// queued on the session as a result frame for requestID; later changes
// arrive as update frames tagged with subID.
func (h *Hub) Subscribe(ctx context.Context, s *Session, requestID, subID, name string, args json.RawMessage) error {
	tr := telemetry.Track("fanout.subscribe")
	defer tr.Finish()

	if subID == "" {
		return store.Validationf("subscription_id is required")
	}
	spec, err := h.resolver.Resolve(ctx, name, args)
	if err != nil {
		return err
	}
	tr.Mark("resolve")

	for {
		lq, err := h.attach(s, subID, spec)
		if err != nil {
			return err
		}

		lq.mu.Lock()
		h.mu.Lock()
		current := h.live[spec.Key] == lq
		closed := isClosed(s)
		if _, dup := s.subs[subID]; dup && current && !closed {
			h.dropIfEmptyLocked(lq)
			h.mu.Unlock()
			lq.mu.Unlock()
			return store.Validationf("subscription %q already exists", subID)
		}
		if current && !closed {
			if lq.subs[s] == nil {
				lq.subs[s] = make(map[string]struct{})
			}
			lq.subs[s][subID] = struct{}{}
			s.subs[subID] = lq
			subscriptions.Inc()
		}
		h.mu.Unlock()
		if closed {
			lq.mu.Unlock()
			h.dropIfEmpty(lq)
			return store.Validationf("session closed")
		}
		if !current {
			// dropped between attach and lock; try again
			lq.mu.Unlock()
			continue
		}

		if lq.last == nil {
			if err := h.compute(ctx, lq); err != nil {
				lq.mu.Unlock()
				h.Unsubscribe(s, subID)
				return err
			}
		}
		tr.Mark("initial_result")
		s.Send(Frame{
			Type:           TypeResult,
			RequestID:      requestID,
			SubscriptionID: subID,
			Version:        lq.version,
			Value:          lq.last,
		})
		lq.mu.Unlock()
		logger.Debug("live_query_subscribed", "session", s.id, "subscription", subID, "key", spec.Key)
		return nil
	}
}

// attach finds or creates the live query for spec and checks the session's
// subscription limits. It does not add the subscriber.
func (h *Hub) attach(s *Session, subID string, spec Spec) (*liveQuery, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, dup := s.subs[subID]; dup {
		return nil, store.Validationf("subscription %q already exists", subID)
	}
	if len(s.subs) >= h.opts.MaxSubscriptionsPerSession {
		return nil, store.Validationf("too many subscriptions (max %d)", h.opts.MaxSubscriptionsPerSession)
	}
	if lq, ok := h.live[spec.Key]; ok {
		return lq, nil
	}
	lq := &liveQuery{
		key:  spec.Key,
		deps: spec.Deps,
		run:  spec.Run,
		subs: make(map[*Session]map[string]struct{}),
	}
	h.live[spec.Key] = lq
	for _, d := range spec.Deps {
		set := h.index[d]
		if set == nil {
			set = make(map[string]struct{})
			h.index[d] = set
		}
		set[spec.Key] = struct{}{}
	}
	liveQueries.Set(float64(len(h.live)))
	return lq, nil
}

// Unsubscribe removes one subscription. Unknown ids are reported as not found.
func (h *Hub) Unsubscribe(s *Session, subID string) error {
	h.mu.Lock()
	lq, ok := s.subs[subID]
	if !ok {
		h.mu.Unlock()
		return store.NotFoundf("subscription %q not found", subID)
	}
	h.detachLocked(s, subID, lq)
	h.mu.Unlock()
	return nil
}

func (h *Hub) detachLocked(s *Session, subID string, lq *liveQuery) {
	delete(s.subs, subID)
	if ids := lq.subs[s]; ids != nil {
		delete(ids, subID)
		if len(ids) == 0 {
			delete(lq.subs, s)
		}
	}
	subscriptions.Dec()
	h.dropIfEmptyLocked(lq)
}

func (h *Hub) dropIfEmpty(lq *liveQuery) {
	h.mu.Lock()
	h.dropIfEmptyLocked(lq)
	h.mu.Unlock()
}

func (h *Hub) dropIfEmptyLocked(lq *liveQuery) {
	if len(lq.subs) > 0 || h.live[lq.key] != lq {
		return
	}
	delete(h.live, lq.key)
	for _, d := range lq.deps {
		if set := h.index[d]; set != nil {
			delete(set, lq.key)
			if len(set) == 0 {
				delete(h.index, d)
			}
		}
	}
	liveQueries.Set(float64(len(h.live)))
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for subID, lq := range s.subs {
		h.detachLocked(s, subID, lq)
	}
	delete(h.sessions, s.id)
	activeSessions.Set(float64(len(h.sessions)))
}

func isClosed(s *Session) bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Publish re-runs every live query the change can affect and pushes results
// that differ from the last push. It returns once every affected session has
// the update queued, so a reply queued afterwards on the originating session
// is delivered after the update.
func (h *Hub) Publish(ctx context.Context, ch Change) {
	tr := telemetry.Track("fanout.publish")
	defer tr.Finish()

	h.mu.Lock()
	keys := make(map[string]struct{})
	for _, d := range ch.deps() {
		for k := range h.index[d] {
			keys[k] = struct{}{}
		}
	}
	affected := make([]*liveQuery, 0, len(keys))
	for k := range keys {
		if lq, ok := h.live[k]; ok {
			affected = append(affected, lq)
		}
	}
	h.mu.Unlock()
	sort.Slice(affected, func(i, j int) bool { return affected[i].key < affected[j].key })
	tr.Mark("match")

	if len(affected) == 0 {
		return
	}

	// the writer's request may be canceled once its reply is queued; the
	// push to everyone else must not be
	runCtx := context.WithoutCancel(ctx)
	origin := identity.SessionID(ctx)
	for _, lq := range affected {
		h.refresh(runCtx, lq, origin)
	}
	tr.Mark("refresh")
	logger.Debug("change_published", "table", ch.Table, "id", ch.ID, "live_queries", len(affected))
}

func (h *Hub) refresh(ctx context.Context, lq *liveQuery, origin string) {
	lq.mu.Lock()
	defer lq.mu.Unlock()

	prev := lq.version
	if err := h.compute(ctx, lq); err != nil {
		recomputeErrors.Inc()
		logger.Error("live_query_recompute_failed", "key", lq.key, "error", err)
		return
	}
	if lq.version == prev {
		unchangedSkips.Inc()
		return
	}

	h.mu.Lock()
	targets := make([]target, 0, len(lq.subs))
	for s, ids := range lq.subs {
		t := target{s: s, ids: make([]string, 0, len(ids))}
		for id := range ids {
			t.ids = append(t.ids, id)
		}
		sort.Strings(t.ids)
		targets = append(targets, t)
	}
	h.mu.Unlock()

	for _, t := range deliveryOrder(targets, origin) {
		for _, id := range t.ids {
			if t.s.Send(Frame{Type: TypeUpdate, SubscriptionID: id, Version: lq.version, Value: lq.last}) {
				pushes.Inc()
			}
		}
	}
}

type target struct {
	s   *Session
	ids []string
}

// deliveryOrder puts the originating session first, then orders by id.
func deliveryOrder(targets []target, origin string) []target {
	sort.Slice(targets, func(i, j int) bool {
		oi, oj := targets[i].s.id == origin, targets[j].s.id == origin
		if oi != oj {
			return oi
		}
		return targets[i].s.id < targets[j].s.id
	})
	return targets
}

// compute runs the query and bumps the version when the encoded result
// changed. Callers hold lq.mu.
func (h *Hub) compute(ctx context.Context, lq *liveQuery) error {
	v, err := lq.run(ctx)
	if err != nil {
		return err
	}
	enc, err := json.Marshal(v)
	if err != nil {
		return store.Storage(err, "encode live query result")
	}
	if lq.last != nil && bytes.Equal(enc, lq.last) {
		return nil
	}
	lq.last = enc
	lq.version++
	return nil
}

type Stats struct {
	Sessions      int `json:"sessions"`
	LiveQueries   int `json:"live_queries"`
	Subscriptions int `json:"subscriptions"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Stats{Sessions: len(h.sessions), LiveQueries: len(h.live)}
	for _, s := range h.sessions {
		st.Subscriptions += len(s.subs)
	}
	return st
}

// Close closes every session.
func (h *Hub) Close() {
	h.mu.Lock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
