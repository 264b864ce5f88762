// Package kratos implements [authflow.IdentityService] against the public
// (frontend) API of an Ory Kratos server using native, token-based flows.
//
// # Operations
//
//   - SignIn / SignOut: password login and native logout. Both notify
//     subscribers registered through Subscribe.
//   - IDToken: resolves the session via whoami, optionally tokenized as a
//     JWT. Concurrent calls for the same session share one request.
//   - SendPasswordResetEmail: a recovery flow with the code method.
//   - SendPhoneVerificationCode: a login flow with the code method; the id
//     of that flow is the verification id.
//   - Watch: polls whoami and reports a revoked session as signed out.
//
// Every outbound request passes through a token-bucket limiter.
//
// # What this package must NOT do
//
//   - Persist tokens (authflow owns persistence).
//   - Retry failed requests.
package kratos
