// Package navigation provides an in-memory screen stack that satisfies the
// authflow Navigator contract. The CLI and tests use it to observe where a
// flow sent the user.
package navigation
