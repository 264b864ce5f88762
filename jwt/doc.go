// Package jwt inspects bearer tokens issued by the identity service.
//
// Inspection is unverified: the signature is never checked and no key
// material is held. It exists so the client can surface expiry, issue time
// and subject alongside a synced identity. Authorization decisions belong to
// the service that issued the token.
package jwt
