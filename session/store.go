package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow/storage"
)

// ErrNotFound is returned by Load when no session is persisted.
var ErrNotFound = errors.New("persisted session not found")

// Store reads and writes a [Record] over a [storage.KV].
type Store struct {
	kv       storage.KV
	tokenKey string
	infoKey  string
}

// NewStore creates a Store. Empty key names fall back to the defaults.
func NewStore(kv storage.KV, tokenKey, infoKey string) *Store {
	if tokenKey == "" {
		tokenKey = DefaultTokenKey
	}
	if infoKey == "" {
		infoKey = DefaultInfoKey
	}
	return &Store{
		kv:       kv,
		tokenKey: tokenKey,
		infoKey:  infoKey,
	}
}

// Save writes both keys as one scoped operation. Token is written first on
// stores without batch support.
func (s *Store) Save(ctx context.Context, r Record) error {
	info, err := EncodeInfo(r)
	if err != nil {
		return err
	}
	return storage.SetAll(ctx, s.kv, map[string]string{
		s.tokenKey: r.Token,
		s.infoKey:  info,
	}, s.tokenKey, s.infoKey)
}

// Clear removes both keys. Missing keys are not an error.
func (s *Store) Clear(ctx context.Context) error {
	return storage.RemoveAll(ctx, s.kv, s.tokenKey, s.infoKey)
}

// Load reads the persisted record. A half-written record (one key present)
// is reported as [ErrCorrupt] so callers can clear it.
func (s *Store) Load(ctx context.Context) (Record, error) {
	token, tokenErr := s.kv.Get(ctx, s.tokenKey)
	if tokenErr != nil && !errors.Is(tokenErr, storage.ErrNotFound) {
		return Record{}, tokenErr
	}
	rawInfo, infoErr := s.kv.Get(ctx, s.infoKey)
	if infoErr != nil && !errors.Is(infoErr, storage.ErrNotFound) {
		return Record{}, infoErr
	}

	tokenMissing := errors.Is(tokenErr, storage.ErrNotFound)
	infoMissing := errors.Is(infoErr, storage.ErrNotFound)
	switch {
	case tokenMissing && infoMissing:
		return Record{}, ErrNotFound
	case tokenMissing || infoMissing:
		return Record{}, fmt.Errorf("%w: partial write (token present=%t, info present=%t)", ErrCorrupt, !tokenMissing, !infoMissing)
	}

	info, err := DecodeInfo(rawInfo)
	if err != nil {
		return Record{}, err
	}
	return Record{Token: token, Email: info.Email, UID: info.UID}, nil
}
