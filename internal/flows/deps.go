package flows

import "context"

// Deps groups flow dependency sets. The root client builds this once and
// delegates operations to the matching flow implementation.
type Deps struct {
	SessionSync SessionSyncDeps
	Reset       ResetDeps
}

// AuditFunc emits one audit event: type, success, uid, session id, method,
// error and a lazily built metadata map.
type AuditFunc func(ctx context.Context, eventType string, success bool, uid, sessionID, method string, err error, metadata func() map[string]string)

func noopAudit(context.Context, string, bool, string, string, string, error, func() map[string]string) {}

func noopMetric(int) {}
