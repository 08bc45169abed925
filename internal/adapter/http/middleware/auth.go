package middleware

import (
	"net/http"
	"strings"

	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/auth"
	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
)

// AuthMiddleware requires a valid bearer token and attaches the caller to the
// request context.
func AuthMiddleware(jwtManager *auth.JWTManager, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				authFailure(m, "missing_header")
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			tokenString, ok := bearerToken(authHeader)
			if !ok {
				authFailure(m, "bad_format")
				writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := jwtManager.Verify(tokenString)
			if err != nil {
				authFailure(m, "invalid_token")
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := domain.ContextWithUser(r.Context(), claims.User())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers without role. Admins pass every check.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := domain.UserFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !user.IsAdmin() && user.Role != role {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts the authenticated user from context
func GetUserFromContext(r *http.Request) (*domain.User, bool) {
	return domain.UserFromContext(r.Context())
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func authFailure(m *metrics.Metrics, reason string) {
	if m != nil {
		m.AuthFailures.WithLabelValues(reason).Inc()
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
