// Package session owns the persisted session cache: the {token, email, uid}
// mirror of the signed-in identity kept in local key-value storage.
//
// # Layout
//
// Two keys hold a [Record]:
//
//   - userToken: the raw bearer token.
//   - userInfo: JSON {"email": ..., "uid": ...}.
//
// [Store.Save] and [Store.Clear] apply both keys as one scoped operation via
// [storage.SetAll] / [storage.RemoveAll].
//
// # What this package must NOT do
//
//   - Treat the cache as authoritative; the identity service is.
//   - Import authflow (no upward imports).
package session
