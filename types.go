package authflow

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	internalmetrics "github.com/MrEthical07/authflow/internal/metrics"
)

// Principal is what the identity service reports in an auth-change
// notification. A nil *Principal means signed out.
type Principal struct {
	UID         string
	Email       string
	PhoneNumber string
	SessionID   string
}

// Identity is the signed-in snapshot published by [SessionSync].
//
// ExpiresAt and IssuedAt are decoded from Token when it is a JWT and are
// zero otherwise. Identity values are copies; mutating one has no effect on
// the published snapshot.
type Identity struct {
	UID         string
	Email       string
	PhoneNumber string
	SessionID   string
	Token       string
	ExpiresAt   time.Time
	IssuedAt    time.Time
	SyncedAt    time.Time
}

// Expired reports whether the token carried an expiry that has passed.
func (id Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

// IdentityService is the external authority for credentials and sessions.
//
// Subscribe must deliver notifications sequentially. Implementations may
// invoke fn from any goroutine; [SessionSync] handles each call to
// completion before returning.
type IdentityService interface {
	Subscribe(fn func(*Principal)) (unsubscribe func())
	IDToken(ctx context.Context, p *Principal) (string, error)
	SendPasswordResetEmail(ctx context.Context, email string) error
	SendPhoneVerificationCode(ctx context.Context, phone, challengeToken string) (verificationID string, err error)
}

// Challenge is a human-verification challenge (captcha) resolved before a
// phone verification code is requested.
type Challenge interface {
	Token(ctx context.Context) (string, error)
}

// ChallengeFactory builds a Challenge bound to a UI anchor.
type ChallengeFactory func(anchor string) (Challenge, error)

// ChallengeFunc adapts a function to [Challenge].
type ChallengeFunc func(ctx context.Context) (string, error)

func (f ChallengeFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticChallenge always resolves to the same token. Useful for headless
// clients whose captcha is solved out of band.
type StaticChallenge string

func (s StaticChallenge) Token(context.Context) (string, error) {
	return string(s), nil
}

// Navigator moves the application between screens.
type Navigator interface {
	Navigate(ctx context.Context, screen string, params map[string]string) error
}

// NavigatorFunc adapts a function to [Navigator].
type NavigatorFunc func(ctx context.Context, screen string, params map[string]string) error

func (f NavigatorFunc) Navigate(ctx context.Context, screen string, params map[string]string) error {
	return f(ctx, screen, params)
}

const (
	// ScreenLogin is the sign-in screen.
	ScreenLogin = "Login"
	// ScreenVerifyOTP is the one-time-code entry screen.
	ScreenVerifyOTP = "VerifyOTP"
	// ParamVerificationID carries the id returned by SendPhoneVerificationCode.
	ParamVerificationID = "verificationId"
)

// SessionView is the read-only capability over the synced identity.
type SessionView interface {
	Current() (Identity, bool)
	Subscribe(fn func(Identity, bool)) (cancel func())
}

// ErrorHandler receives errors raised outside a caller's control flow, such
// as failures while handling an auth-change notification.
type ErrorHandler func(ctx context.Context, err error)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

/*
====================================
AUDIT
====================================
*/

// AuditEvent is a structured audit record emitted by the client.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the client's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as newline-delimited JSON.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs audit events through a *slog.Logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink] writing to logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

/*
====================================
METRICS
====================================
*/

// MetricID identifies a counter or histogram in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricSessionSignIn          = MetricID(internalmetrics.MetricSessionSignIn)
	MetricSessionSignOut         = MetricID(internalmetrics.MetricSessionSignOut)
	MetricSessionTokenFailure    = MetricID(internalmetrics.MetricSessionTokenFailure)
	MetricSessionPersistFailure  = MetricID(internalmetrics.MetricSessionPersistFailure)
	MetricSessionClearFailure    = MetricID(internalmetrics.MetricSessionClearFailure)
	MetricSessionResync          = MetricID(internalmetrics.MetricSessionResync)
	MetricResetValidationFailure = MetricID(internalmetrics.MetricResetValidationFailure)
	MetricResetEmailSent         = MetricID(internalmetrics.MetricResetEmailSent)
	MetricResetEmailFailure      = MetricID(internalmetrics.MetricResetEmailFailure)
	MetricOTPSent                = MetricID(internalmetrics.MetricOTPSent)
	MetricOTPFailure             = MetricID(internalmetrics.MetricOTPFailure)
	MetricChallengeFailure       = MetricID(internalmetrics.MetricChallengeFailure)
	MetricResetRateLimited       = MetricID(internalmetrics.MetricResetRateLimited)
	MetricNavigationFailure      = MetricID(internalmetrics.MetricNavigationFailure)
	MetricSyncLatency            = MetricID(internalmetrics.MetricSyncLatency)
)

// Metrics holds the client's counters and latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
