package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/authflow"
)

type fakeView struct {
	id authflow.Identity
	ok bool
}

func (v fakeView) Current() (authflow.Identity, bool) { return v.id, v.ok }

func (v fakeView) Subscribe(func(authflow.Identity, bool)) func() { return func() {} }

func guarded(view authflow.SessionView) (http.Handler, *authflow.Identity) {
	var seen authflow.Identity
	h := RequireIdentity(view)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestRequireIdentity(t *testing.T) {
	live := authflow.Identity{UID: "u-1", Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}
	expired := authflow.Identity{UID: "u-1", Token: "tok-1", ExpiresAt: time.Now().Add(-time.Minute)}

	tests := []struct {
		name   string
		view   authflow.SessionView
		header string
		want   int
	}{
		{"nil view", nil, "Bearer tok-1", http.StatusUnauthorized},
		{"missing header", fakeView{live, true}, "", http.StatusUnauthorized},
		{"not bearer", fakeView{live, true}, "Basic tok-1", http.StatusUnauthorized},
		{"signed out", fakeView{}, "Bearer tok-1", http.StatusUnauthorized},
		{"token mismatch", fakeView{live, true}, "Bearer other", http.StatusUnauthorized},
		{"expired", fakeView{expired, true}, "Bearer tok-1", http.StatusUnauthorized},
		{"match", fakeView{live, true}, "Bearer tok-1", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, seen := guarded(tt.view)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen.UID != "u-1" {
				t.Fatalf("identity not attached: %+v", *seen)
			}
		})
	}
}

type recordingTransport struct {
	got *http.Request
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.got = req
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
}

func TestBearerTransport(t *testing.T) {
	base := &recordingTransport{}
	tr := &BearerTransport{
		Session: fakeView{authflow.Identity{Token: "tok-1"}, true},
		Base:    base,
	}

	req := httptest.NewRequest(http.MethodGet, "http://api.test/x", nil)
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if got := base.got.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", got)
	}
	if req.Header.Get("Authorization") != "" {
		t.Fatal("caller request must not be mutated")
	}

	explicit := httptest.NewRequest(http.MethodGet, "http://api.test/x", nil)
	explicit.Header.Set("Authorization", "Bearer mine")
	if _, err := tr.RoundTrip(explicit); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if got := base.got.Header.Get("Authorization"); got != "Bearer mine" {
		t.Fatalf("existing header overwritten: %q", got)
	}

	tr.Session = fakeView{}
	anon := httptest.NewRequest(http.MethodGet, "http://api.test/x", nil)
	if _, err := tr.RoundTrip(anon); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if base.got.Header.Get("Authorization") != "" {
		t.Fatal("signed-out requests carry no token")
	}
}
