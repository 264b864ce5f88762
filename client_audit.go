package authflow

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authflow/internal/flows"
)

const (
	auditEventSessionSignIn         = "session_sign_in"
	auditEventSessionSignOut        = "session_sign_out"
	auditEventSessionTokenFailure   = "session_token_failure"
	auditEventSessionPersistFailure = "session_persist_failure"
	auditEventSessionClearFailure   = "session_clear_failure"
	auditEventSessionRestored       = "session_restored"
	auditEventResetValidation       = "reset_validation_failure"
	auditEventResetEmailRequest     = "reset_email_request"
	auditEventResetPhoneRequest     = "reset_phone_request"
	auditEventResetRateLimited      = "reset_rate_limited"
	auditEventNavigationFailure     = "navigation_failure"
)

// AuditErrorCode is the stable error code stored in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrValidation      AuditErrorCode = "validation_failed"
	auditErrDispatch        AuditErrorCode = "dispatch_failed"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrNavigation      AuditErrorCode = "navigation_failed"
	auditErrTokenFetch      AuditErrorCode = "token_fetch_failed"
	auditErrSessionPersist  AuditErrorCode = "session_persist_failed"
	auditErrSessionClear    AuditErrorCode = "session_clear_failed"
	auditErrSessionNotFound AuditErrorCode = "session_not_found"
	auditErrClosed          AuditErrorCode = "closed"
	auditErrNotReady        AuditErrorCode = "not_ready"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	uid string,
	sessionID string,
	method string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UID:       uid,
		SessionID: sessionID,
		Method:    method,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func (c *Client) auditFunc() flows.AuditFunc {
	return c.emitAudit
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrResetValidation):
		return auditErrValidation
	case errors.Is(err, ErrResetDispatch):
		return auditErrDispatch
	case errors.Is(err, ErrResetRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrResetUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrNavigation):
		return auditErrNavigation
	case errors.Is(err, ErrTokenFetch):
		return auditErrTokenFetch
	case errors.Is(err, ErrSessionPersist):
		return auditErrSessionPersist
	case errors.Is(err, ErrSessionClear):
		return auditErrSessionClear
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSyncClosed):
		return auditErrClosed
	case errors.Is(err, ErrClientNotReady):
		return auditErrNotReady
	default:
		return auditErrInternal
	}
}
