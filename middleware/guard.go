package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
)

// RequireIdentity rejects requests with 401 unless the Authorization bearer
// token equals the token of the identity currently published by view. The
// matched identity is attached to the request context.
func RequireIdentity(view authflow.SessionView) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if view == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, ok := view.Current()
			if !ok || id.Token == "" || id.Expired(time.Now()) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(id.Token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authflow.ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity attached by [RequireIdentity].
func IdentityFromContext(r *http.Request) (authflow.Identity, bool) {
	if r == nil {
		return authflow.Identity{}, false
	}
	return authflow.IdentityFromContext(r.Context())
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
