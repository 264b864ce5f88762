// Package flows contains pure-function orchestrators for every Client
// operation that crosses a collaborator boundary.
//
// Each flow function (RunSessionSignIn, RunSessionSignOut, RunResetEmail,
// RunResetPhone) accepts a typed dependency struct and returns results
// without side-effects beyond those dependencies. The root package keeps
// locking, lifecycle and form state; flows keep ordering and error mapping.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the identity service, session store,
// limiter, navigator, audit dispatcher and metrics. They do NOT own any of
// these resources; ownership stays with the Client.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authflow (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
