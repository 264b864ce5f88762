package flows

import (
	"context"
	"fmt"
	"time"
)

// SyncPrincipal is the principal reported by an auth-change notification.
type SyncPrincipal struct {
	UID         string
	Email       string
	PhoneNumber string
	SessionID   string
}

// SyncIdentity is the snapshot published after a successful token fetch.
type SyncIdentity struct {
	UID         string
	Email       string
	PhoneNumber string
	SessionID   string
	Token       string
	ExpiresAt   time.Time
	IssuedAt    time.Time
	SyncedAt    time.Time
}

// SyncOutcome reports what a notification handler did.
//
// Published is true when the handler handed a new snapshot (or absence) to
// subscribers. Dirty is true when the persisted session does not reflect the
// published state and must be retried.
type SyncOutcome struct {
	Identity  *SyncIdentity
	Published bool
	Dirty     bool
}

type SessionSyncMetrics struct {
	SignIn         int
	SignOut        int
	TokenFailure   int
	PersistFailure int
	ClearFailure   int
}

type SessionSyncEvents struct {
	SignIn         string
	SignOut        string
	TokenFailure   string
	PersistFailure string
	ClearFailure   string
}

type SessionSyncErrors struct {
	TokenFetch     error
	SessionPersist error
	SessionClear   error
}

type SessionSyncDeps struct {
	TokenTimeout time.Duration
	Now          func() time.Time

	FetchToken   func(context.Context, SyncPrincipal) (string, error)
	InspectToken func(string) (expiresAt, issuedAt time.Time, ok bool)
	SaveSession  func(context.Context, SyncIdentity) error
	ClearSession func(context.Context) error
	Publish      func(*SyncIdentity)

	MetricInc      func(int)
	ObserveLatency func(time.Duration)
	EmitAudit      AuditFunc

	Metrics SessionSyncMetrics
	Events  SessionSyncEvents
	Errors  SessionSyncErrors
}

// RunSessionSignIn handles a notification carrying a principal: token fetch,
// scoped persist, publish.
//
// A token fetch failure leaves the previous snapshot in place. A persist
// failure still publishes, since the identity service is authoritative, and
// marks the outcome dirty.
func RunSessionSignIn(ctx context.Context, p SyncPrincipal, deps SessionSyncDeps) (SyncOutcome, error) {
	normalizeSessionSyncDeps(&deps)
	start := deps.Now()
	defer func() {
		deps.ObserveLatency(deps.Now().Sub(start))
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, deps.TokenTimeout)
	token, err := deps.FetchToken(fetchCtx, p)
	cancel()
	if err == nil && token == "" {
		err = fmt.Errorf("identity service returned an empty token for %s", p.UID)
	}
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", deps.Errors.TokenFetch, err)
		deps.MetricInc(deps.Metrics.TokenFailure)
		deps.EmitAudit(ctx, deps.Events.TokenFailure, false, p.UID, p.SessionID, "", wrapped, nil)
		return SyncOutcome{}, wrapped
	}

	identity := SyncIdentity{
		UID:         p.UID,
		Email:       p.Email,
		PhoneNumber: p.PhoneNumber,
		SessionID:   p.SessionID,
		Token:       token,
		SyncedAt:    deps.Now().UTC(),
	}
	if exp, iat, ok := deps.InspectToken(token); ok {
		identity.ExpiresAt = exp
		identity.IssuedAt = iat
	}

	outcome := SyncOutcome{Identity: &identity, Published: true}
	if err := deps.SaveSession(ctx, identity); err != nil {
		wrapped := fmt.Errorf("%w: %v", deps.Errors.SessionPersist, err)
		outcome.Dirty = true
		deps.Publish(&identity)
		deps.MetricInc(deps.Metrics.PersistFailure)
		deps.EmitAudit(ctx, deps.Events.PersistFailure, false, p.UID, p.SessionID, "", wrapped, nil)
		return outcome, wrapped
	}

	deps.Publish(&identity)
	deps.MetricInc(deps.Metrics.SignIn)
	deps.EmitAudit(ctx, deps.Events.SignIn, true, p.UID, p.SessionID, "", nil, func() map[string]string {
		if identity.ExpiresAt.IsZero() {
			return nil
		}
		return map[string]string{
			"expires_at": identity.ExpiresAt.UTC().Format(time.RFC3339),
		}
	})
	return outcome, nil
}

// RunSessionSignOut handles a notification without a principal: clear both
// keys, publish absence. Absence is published even when the clear fails.
func RunSessionSignOut(ctx context.Context, deps SessionSyncDeps) (SyncOutcome, error) {
	normalizeSessionSyncDeps(&deps)
	start := deps.Now()
	defer func() {
		deps.ObserveLatency(deps.Now().Sub(start))
	}()

	outcome := SyncOutcome{Published: true}
	if err := deps.ClearSession(ctx); err != nil {
		wrapped := fmt.Errorf("%w: %v", deps.Errors.SessionClear, err)
		outcome.Dirty = true
		deps.Publish(nil)
		deps.MetricInc(deps.Metrics.ClearFailure)
		deps.EmitAudit(ctx, deps.Events.ClearFailure, false, "", "", "", wrapped, nil)
		return outcome, wrapped
	}

	deps.Publish(nil)
	deps.MetricInc(deps.Metrics.SignOut)
	deps.EmitAudit(ctx, deps.Events.SignOut, true, "", "", "", nil, nil)
	return outcome, nil
}

func normalizeSessionSyncDeps(deps *SessionSyncDeps) {
	if deps.TokenTimeout <= 0 {
		deps.TokenTimeout = 10 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.InspectToken == nil {
		deps.InspectToken = func(string) (time.Time, time.Time, bool) { return time.Time{}, time.Time{}, false }
	}
	if deps.Publish == nil {
		deps.Publish = func(*SyncIdentity) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
