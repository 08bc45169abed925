package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/adapter/http/dto"
	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/usecase"
)

// EventHandler serves the activity feed.
type EventHandler struct {
	events usecase.EventLog
	logger zerolog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events usecase.EventLog, logger zerolog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// List returns one newest-first page of events.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := domain.ValidatePagination(
		parseIntQuery(r, "limit", dto.DefaultPagination().Limit),
		parseIntQuery(r, "offset", 0),
	)

	events, total, err := h.events.List(r.Context(), limit, offset)
	if err != nil {
		handleError(w, h.logger, err, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, dto.EventPageFromDomain(events, total, offset))
}
