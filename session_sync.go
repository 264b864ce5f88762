package authflow

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authflow/internal/flows"
)

// SessionSync mirrors the identity service's auth state into the persisted
// session and publishes [Identity] snapshots to subscribers.
//
// Notifications are handled one at a time in arrival order. Snapshot reads
// are lock-free. Subscriber callbacks run while the notification is being
// handled and must not call Resync or Close.
type SessionSync struct {
	client *Client

	// mu serializes notification handling, Resync and restore.
	mu       sync.Mutex
	last     *Principal
	observed bool
	dirty    atomic.Bool

	current atomic.Pointer[Identity]

	subsMu  sync.RWMutex
	subs    []subscriber
	nextSub uint64

	lifecycleMu sync.Mutex
	unsubscribe func()
	started     atomic.Bool
	closed      atomic.Bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

type subscriber struct {
	id uint64
	fn func(Identity, bool)
}

func newSessionSync(c *Client) *SessionSync {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionSync{
		client:  c,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the identity service. A second call is a no-op.
func (s *SessionSync) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSyncClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	unsubscribe := s.client.service.Subscribe(s.handle)

	s.lifecycleMu.Lock()
	if s.closed.Load() {
		s.lifecycleMu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return ErrSyncClosed
	}
	s.unsubscribe = unsubscribe
	s.lifecycleMu.Unlock()

	s.client.logger.DebugContext(ctx, "session sync started")
	return nil
}

// Close unsubscribes from the identity service and cancels in-flight token
// fetches. No notification is delivered to subscribers after Close returns.
func (s *SessionSync) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()

	s.lifecycleMu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.lifecycleMu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	// Wait for an in-flight handler to observe the cancellation.
	s.mu.Lock()
	s.mu.Unlock()
}

// Current returns the latest published identity.
func (s *SessionSync) Current() (Identity, bool) {
	id := s.current.Load()
	if id == nil {
		return Identity{}, false
	}
	return *id, true
}

// Subscribe registers fn for every published change. The returned cancel
// function is idempotent.
func (s *SessionSync) Subscribe(fn func(Identity, bool)) (cancel func()) {
	s.subsMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Dirty reports whether the persisted session is known to lag the
// published identity.
func (s *SessionSync) Dirty() bool {
	return s.dirty.Load()
}

// Resync re-applies the most recently observed notification. It is the
// repair path after [ErrSessionPersist] or [ErrSessionClear]. Without a
// prior notification it does nothing.
func (s *SessionSync) Resync(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSyncClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSyncClosed
	}
	if !s.observed {
		return nil
	}

	s.client.metricInc(MetricSessionResync)
	return s.apply(ctx, s.last)
}

func (s *SessionSync) handle(p *Principal) {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}

	s.observed = true
	s.last = clonePrincipal(p)

	if err := s.apply(s.baseCtx, s.last); err != nil {
		s.client.reportError(s.baseCtx, "auth state notification failed", err)
	}
}

// apply runs one notification through the flows. Callers hold mu.
func (s *SessionSync) apply(ctx context.Context, p *Principal) error {
	var (
		outcome flows.SyncOutcome
		err     error
	)
	if p != nil {
		outcome, err = s.client.flows.SessionSignIn(ctx, flows.SyncPrincipal{
			UID:         p.UID,
			Email:       p.Email,
			PhoneNumber: p.PhoneNumber,
			SessionID:   p.SessionID,
		})
	} else {
		outcome, err = s.client.flows.SessionSignOut(ctx)
	}
	if outcome.Published {
		s.dirty.Store(outcome.Dirty)
	}
	return err
}

// publish is invoked by the flows while mu is held.
func (s *SessionSync) publish(id *flows.SyncIdentity) {
	if id == nil {
		s.current.Store(nil)
		s.notify(Identity{}, false)
		return
	}
	snapshot := &Identity{
		UID:         id.UID,
		Email:       id.Email,
		PhoneNumber: id.PhoneNumber,
		SessionID:   id.SessionID,
		Token:       id.Token,
		ExpiresAt:   id.ExpiresAt,
		IssuedAt:    id.IssuedAt,
		SyncedAt:    id.SyncedAt,
	}
	s.current.Store(snapshot)
	s.notify(*snapshot, true)
}

// restore publishes a persisted identity unless a live notification has
// already been handled.
func (s *SessionSync) restore(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observed || s.closed.Load() {
		return
	}
	snapshot := id
	s.current.Store(&snapshot)
	s.notify(id, true)
}

func (s *SessionSync) notify(id Identity, ok bool) {
	if s.closed.Load() {
		return
	}
	s.subsMu.RLock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.RUnlock()

	for _, sub := range subs {
		sub.fn(id, ok)
	}
}

func clonePrincipal(p *Principal) *Principal {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}
