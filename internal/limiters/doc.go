// Package limiters provides Redis-backed throttles for outbound auth-flow
// requests.
//
// # Limiters
//
//   - [ResetDispatchLimiter]: fixed-window throttle per reset target
//     (email address or phone number) and method.
//
// All limiters are nil-safe: calling Check on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy
// thresholds come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import authflow or any sibling internal package.
//   - Make policy decisions beyond counting; flow functions decide consequences.
package limiters
