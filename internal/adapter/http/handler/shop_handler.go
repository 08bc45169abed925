package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/adapter/http/dto"
	"github.com/iho/worldtycoon/internal/usecase"
)

// ShopHandler handles building purchases and the pin listing.
type ShopHandler struct {
	shopUC *usecase.ShopUseCase
	logger zerolog.Logger
}

// NewShopHandler creates a new ShopHandler.
func NewShopHandler(shopUC *usecase.ShopUseCase, logger zerolog.Logger) *ShopHandler {
	return &ShopHandler{shopUC: shopUC, logger: logger}
}

// Types lists the building catalog.
func (h *ShopHandler) Types(w http.ResponseWriter, r *http.Request) {
	types, err := h.shopUC.Types(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "failed to load building types")
		return
	}

	writeJSON(w, http.StatusOK, dto.BuildingTypesFromDomain(types))
}

// Buy claims an unowned pin.
func (h *ShopHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req dto.BuyPinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.shopUC.Buy(r.Context(), req.ToUseCaseInput())
	if err != nil {
		handleError(w, h.logger, err, "failed to buy pin")
		return
	}

	writeJSON(w, http.StatusOK, dto.ShopFromUseCase(result))
}

// Upgrade raises an owned pin by one level.
func (h *ShopHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	var req dto.UpgradePinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.shopUC.Upgrade(r.Context(), req.ToUseCaseInput())
	if err != nil {
		handleError(w, h.logger, err, "failed to upgrade pin")
		return
	}

	writeJSON(w, http.StatusOK, dto.ShopFromUseCase(result))
}

// ListPins returns every pin.
func (h *ShopHandler) ListPins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.shopUC.Pins(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "failed to list pins")
		return
	}

	writeJSON(w, http.StatusOK, dto.PinsFromDomain(pins))
}

// GetPin returns one pin.
func (h *ShopHandler) GetPin(w http.ResponseWriter, r *http.Request) {
	pin, err := h.shopUC.Pin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err, "failed to get pin")
		return
	}

	writeJSON(w, http.StatusOK, dto.PinFromDomain(pin))
}
