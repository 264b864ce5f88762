package storage

import (
	"context"
	"errors"
	"slices"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage key not found")

// ErrUnavailable wraps backend failures (network, disk, encoding).
var ErrUnavailable = errors.New("storage unavailable")

// KV is the minimal key-value contract used for the persisted session.
type KV interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
}

// Batcher is implemented by stores that can apply several writes or removals
// as a single unit.
type Batcher interface {
	SetAll(ctx context.Context, values map[string]string) error
	RemoveAll(ctx context.Context, keys ...string) error
}

// SetAll writes every entry of values, atomically when kv implements
// [Batcher] and sequentially in key order otherwise. The sequential path stops
// at the first failure and reports the keys that were already written.
func SetAll(ctx context.Context, kv KV, values map[string]string, order ...string) error {
	if b, ok := kv.(Batcher); ok {
		return b.SetAll(ctx, values)
	}

	keys := orderedKeys(values, order)
	for i, key := range keys {
		if err := kv.Set(ctx, key, values[key]); err != nil {
			return &PartialError{Op: "set", Done: keys[:i], Failed: key, Err: err}
		}
	}
	return nil
}

// RemoveAll removes every key, atomically when kv implements [Batcher].
// The sequential path attempts every key and reports the ones that failed.
func RemoveAll(ctx context.Context, kv KV, keys ...string) error {
	if b, ok := kv.(Batcher); ok {
		return b.RemoveAll(ctx, keys...)
	}

	var (
		done     []string
		firstErr error
		failed   string
	)
	for _, key := range keys {
		if err := kv.Remove(ctx, key); err != nil {
			if firstErr == nil {
				firstErr = err
				failed = key
			}
			continue
		}
		done = append(done, key)
	}
	if firstErr != nil {
		return &PartialError{Op: "remove", Done: done, Failed: failed, Err: firstErr}
	}
	return nil
}

// PartialError reports a sequential multi-key operation that stopped midway.
type PartialError struct {
	Op     string
	Done   []string
	Failed string
	Err    error
}

func (e *PartialError) Error() string {
	return "storage: partial " + e.Op + " failed at key " + e.Failed + ": " + e.Err.Error()
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

func orderedKeys(values map[string]string, order []string) []string {
	keys := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, key := range order {
		if _, ok := values[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	rest := make([]string, 0, len(values)-len(keys))
	for key := range values {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}
