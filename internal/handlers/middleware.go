package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func tokenMatches(provided, expected string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// apiAuth guards the integration API with the (dashboard-editable) API token.
func (s *Server) apiAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatches(bearerToken(r), s.runtime.APIToken()) {
			s.respondError(w, http.StatusUnauthorized, "Invalid or missing API token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// dashboardAuth guards operator endpoints. Falls back to the API token when
// no dedicated dashboard token is configured.
func (s *Server) dashboardAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := s.cfg.DashboardToken
		if expected == "" {
			expected = s.runtime.APIToken()
		}
		if !tokenMatches(bearerToken(r), expected) {
			s.respondError(w, http.StatusUnauthorized, "Invalid or missing dashboard token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gatewayAuth guards the session-events sink with the gateway's own token.
func (s *Server) gatewayAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.GatewayToken != "" && !tokenMatches(bearerToken(r), s.cfg.GatewayToken) {
			s.respondError(w, http.StatusUnauthorized, "Invalid gateway token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
