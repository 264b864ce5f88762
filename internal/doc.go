// Package internal holds helpers that are private to authflow.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestrators for session sync and credential reset
//   - limiters: Redis-backed reset dispatch throttle
//   - metrics: lock-free counters and the sync latency histogram
//
// # What this package must NOT do
//
//   - Export types that appear in the public authflow API.
//   - Be imported by any package outside the authflow module.
package internal
