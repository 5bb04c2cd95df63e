package web

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const claimsKey ctxKey = iota

// JWTMiddleware guards the control API. Without configured credentials it
// passes every request through.
func (s *Server) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := bearerToken(r)
		if tokenString == "" {
			writeJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		claims, err := s.auth.Verify(tokenString)
		if err != nil {
			writeJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// claimsFrom returns the verified claims of an authenticated request.
func claimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// bearerToken reads the Authorization header, falling back to the token query
// parameter since browsers cannot set headers on websocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
