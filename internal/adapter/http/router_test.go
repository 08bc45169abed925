package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/worldtycoon/internal/adapter/http/handler"
	apimiddleware "github.com/iho/worldtycoon/internal/adapter/http/middleware"
	"github.com/iho/worldtycoon/internal/adapter/repository/memory"
	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/auth"
	"github.com/iho/worldtycoon/internal/usecase"
	"github.com/iho/worldtycoon/internal/usecase/mocks"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1)
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	var checked string
	store := mocks.NewMockIdempotencyStore()
	store.CheckAndSetFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
		checked = key
		return false, nil, nil
	}
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"pinId":"p1","fromOwner":"bob","toOwner":"alice","amount":100}`
	req := httptest.NewRequest(http.MethodPost, "/offers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if checked != "/offers:key-123" {
		t.Fatalf("expected idempotency store to be used, got key %q", checked)
	}
}

func TestNewRouter_OfferListWithoutTrailingSlash(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offers?status=pending", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_AuthProtectsRoutes(t *testing.T) {
	manager := auth.NewJWTManager("secret", time.Minute)
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.JWTManager = manager
	}))

	player, err := manager.Generate(&domain.User{ID: "bob", Role: domain.RolePlayer})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	admin, err := manager.Generate(&domain.User{ID: "ops", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"summary needs token", http.MethodGet, "/economy/summary", "", http.StatusUnauthorized},
		{"player reads summary", http.MethodGet, "/economy/summary", player, http.StatusOK},
		{"player cannot sweep", http.MethodPost, "/offers/gc", player, http.StatusForbidden},
		{"admin sweeps", http.MethodPost, "/offers/gc", admin, http.StatusOK},
		{"player cannot reconcile", http.MethodGet, "/economy/reconcile", player, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"GET /economy/summary",
		"POST /economy/tick",
		"GET /economy/health",
		"POST /economy/transfer",
		"GET /economy/reconcile",
		"POST /economy/reconcile",
		"GET /offers/",
		"POST /offers/",
		"POST /offers/gc",
		"GET /offers/{id}",
		"POST /offers/{id}/accept",
		"POST /offers/{id}/reject",
		"POST /offers/{id}/cancel",
		"GET /shop/types",
		"POST /shop/buy",
		"POST /shop/upgrade",
		"GET /pins",
		"GET /pins/{id}",
		"GET /events",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

type staticCatalog domain.Catalog

func (c staticCatalog) Catalog(context.Context) (domain.Catalog, error) {
	return domain.Catalog(c), nil
}

func newRouterConfig(t *testing.T, opts ...func(*RouterConfig)) RouterConfig {
	t.Helper()

	ledger, err := memory.NewLedgerStore("")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	pins, err := memory.NewPinStore("", []*domain.Pin{{ID: "p1", Owner: "alice", Type: "shop", Level: 1}})
	if err != nil {
		t.Fatalf("pins: %v", err)
	}
	offers, err := memory.NewOfferStore("", time.Hour)
	if err != nil {
		t.Fatalf("offers: %v", err)
	}
	events, err := memory.NewEventStore("")
	if err != nil {
		t.Fatalf("events: %v", err)
	}

	logger := zerolog.Nop()
	catalog := staticCatalog{"shop": {Key: "shop", BaseIncome: 10}}
	feePct := decimal.RequireFromString("0.02")
	offerCfg := usecase.OfferConfig{ExpiryWindow: time.Hour, MinAmount: 10, FeePct: feePct, LockPinOnPending: true}

	economyUC := usecase.NewEconomyUseCase(ledger, pins, catalog, events, time.Minute, nil, logger)
	offerUC := usecase.NewOfferUseCase(offers, ledger, pins, events, mocks.NewMockIDGenerator(), offerCfg, nil, logger)
	shopUC := usecase.NewShopUseCase(ledger, pins, catalog, events, nil, logger)
	ledgerUC := usecase.NewLedgerUseCase(ledger, logger)
	reconcileUC := usecase.NewReconciliationUseCase(ledger, offers, pins, feePct, nil, logger)

	cfg := RouterConfig{
		EconomyHandler: handler.NewEconomyHandler(economyUC, ledgerUC, reconcileUC, logger),
		OfferHandler:   handler.NewOfferHandler(offerUC, logger),
		ShopHandler:    handler.NewShopHandler(shopUC, logger),
		EventHandler:   handler.NewEventHandler(events, logger),
		HealthHandler:  handler.NewHealthHandler(nil, nil),
		Logger:         logger,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
