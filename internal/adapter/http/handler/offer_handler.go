package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/adapter/http/dto"
	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/usecase"
)

// OfferHandler handles offer-related HTTP requests.
type OfferHandler struct {
	offerUC *usecase.OfferUseCase
	logger  zerolog.Logger
}

// NewOfferHandler creates a new OfferHandler.
func NewOfferHandler(offerUC *usecase.OfferUseCase, logger zerolog.Logger) *OfferHandler {
	return &OfferHandler{offerUC: offerUC, logger: logger}
}

// List returns offers filtered by owner, pinId and status.
func (h *OfferHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OfferFilter{
		Owner: domain.NormalizeOwner(q.Get("owner")),
		PinID: strings.TrimSpace(q.Get("pinId")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := domain.ParseOfferStatusStrict(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid status", err.Error())
			return
		}
		filter.Status = status
	}

	offers, err := h.offerUC.List(r.Context(), filter)
	if err != nil {
		handleError(w, h.logger, err, "failed to list offers")
		return
	}

	writeJSON(w, http.StatusOK, dto.OffersFromDomain(offers))
}

// Create places a new offer and holds its escrow.
func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOfferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	offer, err := h.offerUC.Create(r.Context(), req.ToUseCaseInput())
	if err != nil {
		handleError(w, h.logger, err, "failed to create offer")
		return
	}

	writeJSON(w, http.StatusCreated, dto.OfferFromDomain(offer))
}

// Get retrieves an offer by ID.
func (h *OfferHandler) Get(w http.ResponseWriter, r *http.Request) {
	offer, err := h.offerUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err, "failed to get offer")
		return
	}

	writeJSON(w, http.StatusOK, dto.OfferFromDomain(offer))
}

// Accept settles an offer.
func (h *OfferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.offerUC.Accept, "failed to accept offer")
}

// Reject declines an offer and refunds the buyer.
func (h *OfferHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.offerUC.Reject, "failed to reject offer")
}

// Cancel withdraws an offer and refunds the buyer.
func (h *OfferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.offerUC.Cancel, "failed to cancel offer")
}

// GC expires overdue offers.
func (h *OfferHandler) GC(w http.ResponseWriter, r *http.Request) {
	expired, err := h.offerUC.ExpireDue(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "failed to expire offers")
		return
	}

	writeJSON(w, http.StatusOK, dto.ExpireResponse{Expired: expired})
}

type offerTransition func(ctx context.Context, id string) (*domain.Offer, error)

func (h *OfferHandler) transition(w http.ResponseWriter, r *http.Request, fn offerTransition, message string) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing offer ID", "")
		return
	}

	offer, err := fn(r.Context(), id)
	if err != nil {
		handleError(w, h.logger, err, message)
		return
	}

	writeJSON(w, http.StatusOK, dto.OfferFromDomain(offer))
}
