// Package middleware exposes HTTP adapters over the synced session.
//
// # Adapters
//
//   - [RequireIdentity]: admits a request only when its bearer token matches
//     the currently published identity and that identity is not expired.
//   - [BearerTransport]: an [http.RoundTripper] that stamps outbound requests
//     with the current token.
//
// # Architecture boundaries
//
// This package reads the published identity through [authflow.SessionView].
// It never triggers a sync, never talks to the identity service and never
// reads persisted storage.
//
// # What this package must NOT do
//
//   - Verify JWT signatures (the identity service is the authority).
//   - Mutate the session or subscribe to auth changes.
//   - Make authorization decisions beyond pass/reject on identity presence.
package middleware
