// Package storage provides the local key-value collaborators that back the
// persisted session cache.
//
// # Stores
//
//   - [RedisStore]: go-redis client, scoped writes run inside MULTI/EXEC.
//   - [FileStore]: a single JSON document on disk (XDG data dir by default),
//     scoped writes land with one atomic rename.
//   - [MemoryStore]: process-local map, used by tests and ephemeral clients.
//
// Every store implements [KV]. Stores that can apply several keys as one unit
// also implement [Batcher]; callers fall back to sequential writes otherwise.
//
// # What this package must NOT do
//
//   - Interpret stored values (session encoding belongs to package session).
//   - Import authflow (no upward imports).
package storage
