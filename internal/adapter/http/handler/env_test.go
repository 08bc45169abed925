package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/worldtycoon/internal/adapter/repository/memory"
	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/catalog"
	"github.com/iho/worldtycoon/internal/usecase"
	"github.com/iho/worldtycoon/internal/usecase/mocks"
)

const testCatalogYAML = `
types:
  - key: shop
    label: Corner Shop
    baseIncome: 10
    price: 500
  - key: house
    baseIncome: 3
`

type testEnv struct {
	ledger *memory.LedgerStore
	pins   *memory.PinStore
	offers *memory.OfferStore
	events *memory.EventStore
	router http.Handler
}

func newTestEnv(t *testing.T, pins ...*domain.Pin) *testEnv {
	t.Helper()

	catalogPath := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalogYAML), 0o600))
	provider := catalog.NewFileProvider(catalogPath)

	ledger, err := memory.NewLedgerStore("")
	require.NoError(t, err)
	pinStore, err := memory.NewPinStore("", pins)
	require.NoError(t, err)
	offers, err := memory.NewOfferStore("", 24*time.Hour)
	require.NoError(t, err)
	events, err := memory.NewEventStore("")
	require.NoError(t, err)

	logger := zerolog.Nop()
	cfg := usecase.OfferConfig{
		ExpiryWindow:     24 * time.Hour,
		MinAmount:        10,
		FeePct:           decimal.RequireFromString("0.02"),
		LockPinOnPending: true,
	}

	economyUC := usecase.NewEconomyUseCase(ledger, pinStore, provider, events, 5*time.Minute, nil, logger)
	offerUC := usecase.NewOfferUseCase(offers, ledger, pinStore, events, mocks.NewMockIDGenerator(), cfg, nil, logger)
	shopUC := usecase.NewShopUseCase(ledger, pinStore, provider, events, nil, logger)
	ledgerUC := usecase.NewLedgerUseCase(ledger, logger)
	reconcileUC := usecase.NewReconciliationUseCase(ledger, offers, pinStore, cfg.FeePct, nil, logger)

	economy := NewEconomyHandler(economyUC, ledgerUC, reconcileUC, logger)
	offerHandler := NewOfferHandler(offerUC, logger)
	shop := NewShopHandler(shopUC, logger)
	eventHandler := NewEventHandler(events, logger)

	r := chi.NewRouter()
	r.Get("/economy/summary", economy.Summary)
	r.Post("/economy/tick", economy.Tick)
	r.Get("/economy/health", economy.Health)
	r.Post("/economy/transfer", economy.Transfer)
	r.Get("/economy/reconcile", economy.Reconcile)
	r.Post("/economy/reconcile", economy.Settle)
	r.Get("/offers", offerHandler.List)
	r.Post("/offers", offerHandler.Create)
	r.Post("/offers/gc", offerHandler.GC)
	r.Get("/offers/{id}", offerHandler.Get)
	r.Post("/offers/{id}/accept", offerHandler.Accept)
	r.Post("/offers/{id}/reject", offerHandler.Reject)
	r.Post("/offers/{id}/cancel", offerHandler.Cancel)
	r.Get("/shop/types", shop.Types)
	r.Post("/shop/buy", shop.Buy)
	r.Post("/shop/upgrade", shop.Upgrade)
	r.Get("/pins", shop.ListPins)
	r.Get("/pins/{id}", shop.GetPin)
	r.Get("/events", eventHandler.List)

	return &testEnv{ledger: ledger, pins: pinStore, offers: offers, events: events, router: r}
}

func (e *testEnv) fund(t *testing.T, owner string, amount int64) {
	t.Helper()
	_, err := e.ledger.AdjustBalance(context.Background(), owner, amount)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, owner string) int64 {
	t.Helper()
	bal, err := e.ledger.GetBalance(context.Background(), owner)
	require.NoError(t, err)
	return bal
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
