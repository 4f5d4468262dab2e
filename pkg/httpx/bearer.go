package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/loadwatch/pkg/cryptox"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
)

// RequireBearer only lets requests through whose bearer token hashes to the
// given fingerprint. An empty fingerprint disables the endpoint entirely.
func RequireBearer(fingerprint string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fingerprint == "" {
				WriteError(w, http.StatusNotFound, "not_found", "endpoint disabled")
				return
			}

			authz := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || !cryptox.MatchesFingerprint(strings.TrimSpace(raw), fingerprint) {
				slogx.FromContext(r.Context()).Warn("rejected bearer token")
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				WriteError(w, http.StatusUnauthorized, "invalid_token", "missing or invalid bearer token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
