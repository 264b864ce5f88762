package authflow

import "errors"

var (
	// ErrResetValidation is returned by Submit when the active field is invalid.
	ErrResetValidation = errors.New("reset request invalid")
	// ErrResetDispatch wraps an identity-service failure during a reset submission.
	ErrResetDispatch = errors.New("reset dispatch failed")
	// ErrResetRateLimited is returned when the reset target is throttled.
	ErrResetRateLimited = errors.New("reset rate limited")
	// ErrResetUnavailable is returned when the throttle backend cannot be reached.
	ErrResetUnavailable = errors.New("reset throttle backend unavailable")
	// ErrResetInProgress is returned when Submit is called while another
	// submission on the same form is in flight.
	ErrResetInProgress = errors.New("reset submission already in progress")
	// ErrNavigation wraps a Navigator failure.
	ErrNavigation = errors.New("navigation failed")

	// ErrTokenFetch wraps a failure fetching the bearer token for a signed-in principal.
	ErrTokenFetch = errors.New("token fetch failed")
	// ErrSessionPersist wraps a failure writing the persisted session.
	ErrSessionPersist = errors.New("session persist failed")
	// ErrSessionClear wraps a failure removing the persisted session.
	ErrSessionClear = errors.New("session clear failed")
	// ErrSessionNotFound is returned when no persisted session exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSyncClosed is returned by SessionSync operations after Close.
	ErrSyncClosed = errors.New("session sync closed")

	// ErrClientNotReady is returned when a Client is missing a collaborator
	// required by the operation.
	ErrClientNotReady = errors.New("client not initialized")
)
