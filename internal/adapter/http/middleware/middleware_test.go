package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/auth"
)

func TestAuthMiddleware(t *testing.T) {
	manager := auth.NewJWTManager("secret", time.Minute)
	token, err := manager.Generate(&domain.User{ID: "alice", Role: domain.RolePlayer})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *domain.User
			handler := AuthMiddleware(manager, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = GetUserFromContext(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/offers", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.want == http.StatusOK && (seen == nil || seen.Identity() != "alice") {
				t.Fatalf("expected alice in context, got %+v", seen)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		user *domain.User
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"player", &domain.User{ID: "bob", Role: domain.RolePlayer}, http.StatusForbidden},
		{"admin", &domain.User{ID: "ops", Role: domain.RoleAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(http.MethodPost, "/economy/tick", nil)
			if tt.user != nil {
				req = req.WithContext(domain.ContextWithUser(req.Context(), tt.user))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("1.2.3.4:1000", ""); code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send("1.2.3.4:2000", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected same host on another port to be limited, got %d", code)
	}
	if code := send("9.9.9.9:1000", "5.6.7.8, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected forwarded client to have its own bucket, got %d", code)
	}

	if removed := rl.CleanupLimiters(-time.Second); removed != 2 {
		t.Fatalf("expected both limiters to be dropped, got %d", removed)
	}
}

func TestRecoveryReturnsJSON500(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/offers", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal server error") {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Fatalf("expected panic to be logged, got %q", buf.String())
	}
}

func TestLoggingMiddlewareLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(zerolog.New(&buf)).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/economy/health", nil))

	out := buf.String()
	if !strings.Contains(out, `"status":502`) || !strings.Contains(out, `"level":"error"`) {
		t.Fatalf("unexpected log line %q", out)
	}
}
