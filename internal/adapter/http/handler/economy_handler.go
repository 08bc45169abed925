package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/adapter/http/dto"
	"github.com/iho/worldtycoon/internal/usecase"
)

// EconomyHandler serves the balance ledger, income ticks and reconciliation.
type EconomyHandler struct {
	economyUC   *usecase.EconomyUseCase
	ledgerUC    *usecase.LedgerUseCase
	reconcileUC *usecase.ReconciliationUseCase
	logger      zerolog.Logger
}

// NewEconomyHandler creates a new EconomyHandler.
func NewEconomyHandler(
	economyUC *usecase.EconomyUseCase,
	ledgerUC *usecase.LedgerUseCase,
	reconcileUC *usecase.ReconciliationUseCase,
	logger zerolog.Logger,
) *EconomyHandler {
	return &EconomyHandler{
		economyUC:   economyUC,
		ledgerUC:    ledgerUC,
		reconcileUC: reconcileUC,
		logger:      logger,
	}
}

// Summary returns balances ordered by balance, highest first.
func (h *EconomyHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.economyUC.Summary(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "failed to load summary")
		return
	}

	writeJSON(w, http.StatusOK, dto.SummaryFromUseCase(summary))
}

// Tick runs one income accrual immediately.
func (h *EconomyHandler) Tick(w http.ResponseWriter, r *http.Request) {
	result, err := h.economyUC.Tick(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "failed to run tick")
		return
	}

	writeJSON(w, http.StatusOK, dto.SummaryFromUseCase(result.Summary))
}

// Health reports tick timing and balances.
func (h *EconomyHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.economyUC.Health(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "failed to load economy health")
		return
	}

	writeJSON(w, http.StatusOK, dto.HealthFromUseCase(health))
}

// Transfer moves funds between two owners.
func (h *EconomyHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.ledgerUC.Transfer(r.Context(), req.FromOwner, req.ToOwner, req.Amount)
	if err != nil {
		handleError(w, h.logger, err, "failed to transfer")
		return
	}

	writeJSON(w, http.StatusOK, dto.TransferFromUseCase(result))
}

// Reconcile reports escrow inconsistencies without changing anything.
func (h *EconomyHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconcileUC.Check(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "failed to reconcile")
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromUseCase(report))
}

// Settle replays ledger effects of terminal offers that still hold escrow.
func (h *EconomyHandler) Settle(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconcileUC.Settle(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "failed to settle escrow")
		return
	}

	writeJSON(w, http.StatusOK, dto.SettlementFromUseCase(result))
}
