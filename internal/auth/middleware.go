package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Verifier verifies bearer tokens.
type Verifier interface {
	Verify(token string) (*Principal, error)
}

// Middleware authenticates requests carrying a bearer token.
//
// Requests without an Authorization header proceed as the anonymous principal.
// Malformed headers and invalid tokens are rejected with 401.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Anonymous())))
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, "invalid authorization header")
				return
			}

			p, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				slog.Debug("Rejected bearer token", "err", err)
				unauthorized(w, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="forgeapi"`)
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		slog.Error("Failed to write response", "err", err)
	}
}
