package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/session"
)

// Client ties the identity service, the persisted session and the reset
// flow together. Build one with [New].
type Client struct {
	config     Config
	service    IdentityService
	navigator  Navigator
	challenges ChallengeFactory

	store   *session.Store
	limiter *limiters.ResetDispatchLimiter

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	onError ErrorHandler

	flows flows.Service
	sync  *SessionSync

	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}

// Start subscribes to the identity service's auth-change stream. With
// Session RestoreOnStart, the persisted session is loaded first. Calling
// Start more than once is a no-op.
func (c *Client) Start(ctx context.Context) error {
	if c == nil || c.sync == nil {
		return ErrClientNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.config.Session.RestoreOnStart {
		if _, err := c.RestoreSession(ctx); err != nil && !errors.Is(err, ErrSessionNotFound) {
			c.logger.WarnContext(ctx, "restore persisted session failed", slog.Any("error", err))
		}
	}
	return c.sync.Start(ctx)
}

// Close stops session sync and drains the audit dispatcher.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		if c.sync != nil {
			c.sync.Close()
		}
		if c.audit != nil {
			c.audit.Close()
		}
	})
}

// Session returns the read-only view over the synced identity.
func (c *Client) Session() SessionView {
	return c.sync
}

// Sync returns the session synchronizer.
func (c *Client) Sync() *SessionSync {
	return c.sync
}

// RestoreSession reads the persisted session.
//
// When no notification has been handled yet, the restored identity is
// published so the application can render signed-in state early. A
// corrupt record is cleared and reported as [ErrSessionNotFound].
func (c *Client) RestoreSession(ctx context.Context) (Identity, error) {
	if c == nil || c.store == nil {
		return Identity{}, ErrClientNotReady
	}

	rec, err := c.store.Load(ctx)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return Identity{}, ErrSessionNotFound
	case errors.Is(err, session.ErrCorrupt):
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.WarnContext(ctx, "clear corrupt session failed", slog.Any("error", clearErr))
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	case err != nil:
		return Identity{}, err
	}

	id := Identity{
		UID:      rec.UID,
		Email:    rec.Email,
		Token:    rec.Token,
		SyncedAt: time.Now().UTC(),
	}
	if claims, err := jwt.Inspect(rec.Token); err == nil {
		id.ExpiresAt = claims.ExpiresAt
		id.IssuedAt = claims.IssuedAt
		id.SessionID = claims.SessionID
	}

	c.sync.restore(id)
	c.emitAudit(ctx, auditEventSessionRestored, true, id.UID, id.SessionID, "", nil, nil)
	return id, nil
}

// NewResetForm returns a fresh credential reset form in email mode.
func (c *Client) NewResetForm() *ResetForm {
	return newResetForm(c)
}

// Config returns a copy of the active configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// AuditDropped reports audit events dropped due to dispatcher backpressure.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) reportError(ctx context.Context, msg string, err error) {
	c.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	if c.onError != nil {
		c.onError(ctx, err)
	}
}

func (c *Client) buildFlows() flows.Service {
	metricInc := func(id int) { c.metricInc(MetricID(id)) }

	deps := flows.Deps{
		SessionSync: flows.SessionSyncDeps{
			TokenTimeout: c.config.Session.TokenTimeout,
			FetchToken: func(ctx context.Context, p flows.SyncPrincipal) (string, error) {
				return c.service.IDToken(ctx, &Principal{
					UID:         p.UID,
					Email:       p.Email,
					PhoneNumber: p.PhoneNumber,
					SessionID:   p.SessionID,
				})
			},
			InspectToken: func(token string) (time.Time, time.Time, bool) {
				claims, err := jwt.Inspect(token)
				if err != nil {
					return time.Time{}, time.Time{}, false
				}
				return claims.ExpiresAt, claims.IssuedAt, true
			},
			SaveSession: func(ctx context.Context, id flows.SyncIdentity) error {
				return c.store.Save(ctx, session.Record{Token: id.Token, Email: id.Email, UID: id.UID})
			},
			ClearSession: c.store.Clear,
			Publish: func(id *flows.SyncIdentity) {
				c.sync.publish(id)
			},
			MetricInc:    metricInc,
			ObserveLatency: func(d time.Duration) {
				c.metrics.Observe(MetricSyncLatency, d)
			},
			EmitAudit: c.auditFunc(),
			Metrics: flows.SessionSyncMetrics{
				SignIn:         int(MetricSessionSignIn),
				SignOut:        int(MetricSessionSignOut),
				TokenFailure:   int(MetricSessionTokenFailure),
				PersistFailure: int(MetricSessionPersistFailure),
				ClearFailure:   int(MetricSessionClearFailure),
			},
			Events: flows.SessionSyncEvents{
				SignIn:         auditEventSessionSignIn,
				SignOut:        auditEventSessionSignOut,
				TokenFailure:   auditEventSessionTokenFailure,
				PersistFailure: auditEventSessionPersistFailure,
				ClearFailure:   auditEventSessionClearFailure,
			},
			Errors: flows.SessionSyncErrors{
				TokenFetch:     ErrTokenFetch,
				SessionPersist: ErrSessionPersist,
				SessionClear:   ErrSessionClear,
			},
		},
		Reset: flows.ResetDeps{
			RequestTimeout:            c.config.Reset.RequestTimeout,
			ChallengeAnchor:           c.config.Reset.ChallengeAnchor,
			PhonePrefix:               c.config.Reset.PhonePrefix,
			LoginScreen:               ScreenLogin,
			VerifyScreen:              ScreenVerifyOTP,
			VerificationKey:           ParamVerificationID,
			MapLimiterError:           mapLimiterError,
			SendPasswordResetEmail:    c.service.SendPasswordResetEmail,
			SendPhoneVerificationCode: c.service.SendPhoneVerificationCode,
			Navigate:                  c.navigator.Navigate,
			MetricInc:                 metricInc,
			EmitAudit:                 c.auditFunc(),
			Metrics: flows.ResetMetrics{
				EmailSent:         int(MetricResetEmailSent),
				EmailFailure:      int(MetricResetEmailFailure),
				OTPSent:           int(MetricOTPSent),
				OTPFailure:        int(MetricOTPFailure),
				ChallengeFailure:  int(MetricChallengeFailure),
				RateLimited:       int(MetricResetRateLimited),
				NavigationFailure: int(MetricNavigationFailure),
			},
			Events: flows.ResetEvents{
				EmailRequest: auditEventResetEmailRequest,
				PhoneRequest: auditEventResetPhoneRequest,
				RateLimited:  auditEventResetRateLimited,
				Navigation:   auditEventNavigationFailure,
			},
			Errors: flows.ResetErrors{
				ClientNotReady: ErrClientNotReady,
				Dispatch:       ErrResetDispatch,
				RateLimited:    ErrResetRateLimited,
				Unavailable:    ErrResetUnavailable,
				Navigation:     ErrNavigation,
			},
		},
	}

	if c.limiter != nil {
		deps.Reset.CheckLimiter = c.limiter.Check
	}
	if c.challenges != nil {
		deps.Reset.ChallengeToken = func(ctx context.Context, anchor string) (string, error) {
			ch, err := c.challenges(anchor)
			if err != nil {
				return "", err
			}
			return ch.Token(ctx)
		}
	}

	return flows.New(deps)
}

func mapLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrResetRateLimited):
		return ErrResetRateLimited
	case errors.Is(err, limiters.ErrResetRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}
}
