package httpapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// adminAuth accepts either a bearer token equal to security.admin_api_key,
// or a JWT signed with security.jwt_secret. If neither is configured the
// admin surface is left open, matching a local/dev deployment.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.snapshot.Get()
		if cfg.Security.AdminAPIKey == "" && cfg.Security.JWTSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")

		if cfg.Security.AdminAPIKey != "" && token != "" && token == cfg.Security.AdminAPIKey {
			next.ServeHTTP(w, r)
			return
		}

		if cfg.Security.JWTSecret != "" && token != "" {
			parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
				return []byte(cfg.Security.JWTSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err == nil && parsed.Valid {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	})
}
