package middleware

import (
	"net/http"

	"github.com/MrEthical07/authflow"
)

// BearerTransport adds "Authorization: Bearer <token>" from the current
// identity to every outbound request that does not already carry one.
// Requests are sent unchanged while signed out.
type BearerTransport struct {
	Session authflow.SessionView
	Base    http.RoundTripper
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Session == nil || req.Header.Get("Authorization") != "" {
		return base.RoundTrip(req)
	}

	id, ok := t.Session.Current()
	if !ok || id.Token == "" {
		return base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+id.Token)
	return base.RoundTrip(out)
}
