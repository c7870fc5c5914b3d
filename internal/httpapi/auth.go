package httpapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireToken rejects requests without a valid HS256 bearer token signed with secret.
func requireToken(secret []byte) func(http.Handler) http.Handler {
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeEnvelopeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if _, err := jwt.Parse(raw, keyFunc, jwt.WithValidMethods([]string{"HS256"})); err != nil {
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
