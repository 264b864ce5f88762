package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt is returned when the stored info document cannot be decoded.
var ErrCorrupt = errors.New("persisted session corrupt")

// EncodeInfo renders the info document for r.
func EncodeInfo(r Record) (string, error) {
	data, err := json.Marshal(Info{Email: r.Email, UID: r.UID})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeInfo parses an info document.
func DecodeInfo(raw string) (Info, error) {
	var info Info
	if raw == "" {
		return info, fmt.Errorf("%w: empty info document", ErrCorrupt)
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return info, nil
}
