// Package authflow coordinates a client application's authentication state
// and password-recovery flows against an external identity service.
//
// It never verifies credentials or issues tokens. [SessionSync] mirrors the
// service's auth-change stream into a local key-value cache, and [ResetForm]
// drives the email / phone recovery initiation screen.
//
// Client methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Client], [Builder], [Config],
// the collaborator interfaces ([IdentityService], [Navigator], [Challenge])
// and value types ([Identity], MetricsSnapshot). Flow orchestration, rate
// limiting, audit dispatch and metric storage live under internal/.
//
// # What this package must NOT do
//
//   - Expose Redis clients or persisted-session encoding in its public API.
//   - Perform I/O outside of Client methods and identity-service callbacks.
//   - Import any sub-package that re-imports authflow (no import cycles).
package authflow
