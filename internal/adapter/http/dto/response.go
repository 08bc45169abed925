package dto

import (
	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/usecase"
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HistoryEntryResponse is one offer history record. Field names are kept
// short to match stored history.
type HistoryEntryResponse struct {
	T     int64  `json:"t"`
	A     string `json:"a"`
	Net   *int64 `json:"net,omitempty"`
	Fee   *int64 `json:"fee,omitempty"`
	Actor string `json:"actor,omitempty"`
}

// OfferResponse represents an offer in API responses.
type OfferResponse struct {
	ID        string                 `json:"id"`
	PinID     string                 `json:"pinId"`
	FromOwner string                 `json:"fromOwner"`
	ToOwner   string                 `json:"toOwner"`
	Amount    int64                  `json:"amount"`
	Status    domain.OfferStatus     `json:"status"`
	Note      string                 `json:"note,omitempty"`
	CreatedAt int64                  `json:"createdAt"`
	ExpiresAt int64                  `json:"expiresAt"`
	History   []HistoryEntryResponse `json:"history"`
}

// OfferFromDomain converts domain offer to response.
func OfferFromDomain(o *domain.Offer) *OfferResponse {
	history := make([]HistoryEntryResponse, len(o.History))
	for i, h := range o.History {
		history[i] = HistoryEntryResponse{
			T:     domain.EpochMillis(h.At),
			A:     h.Action,
			Net:   h.Net,
			Fee:   h.Fee,
			Actor: h.Actor,
		}
	}
	return &OfferResponse{
		ID:        o.ID,
		PinID:     o.PinID,
		FromOwner: o.FromOwner,
		ToOwner:   o.ToOwner,
		Amount:    o.Amount,
		Status:    o.Status,
		Note:      o.Note,
		CreatedAt: domain.EpochMillis(o.CreatedAt),
		ExpiresAt: domain.EpochMillis(o.ExpiresAt),
		History:   history,
	}
}

// OffersFromDomain converts domain offers to responses.
func OffersFromDomain(offers []*domain.Offer) []*OfferResponse {
	result := make([]*OfferResponse, len(offers))
	for i, o := range offers {
		result[i] = OfferFromDomain(o)
	}
	return result
}

// BalanceResponse is one row of the summary totals.
type BalanceResponse struct {
	Owner     string `json:"owner"`
	Balance   int64  `json:"balance"`
	UpdatedAt int64  `json:"updatedAt"`
}

// SummaryResponse is returned by GET /economy/summary and POST /economy/tick.
type SummaryResponse struct {
	LastTick    int64             `json:"lastTick"`
	IntervalSec int64             `json:"intervalSec"`
	Totals      []BalanceResponse `json:"totals"`
}

// SummaryFromUseCase converts a summary to response.
func SummaryFromUseCase(s *usecase.Summary) *SummaryResponse {
	totals := make([]BalanceResponse, len(s.Totals))
	for i, b := range s.Totals {
		totals[i] = BalanceResponse{
			Owner:     b.Owner,
			Balance:   b.Balance,
			UpdatedAt: domain.EpochMillis(b.UpdatedAt),
		}
	}
	return &SummaryResponse{
		LastTick:    domain.EpochMillis(s.LastTick),
		IntervalSec: int64(s.Interval.Seconds()),
		Totals:      totals,
	}
}

// HealthResponse is returned by GET /economy/health.
type HealthResponse struct {
	LastTickTs  int64            `json:"lastTickTs"`
	NextTickTs  int64            `json:"nextTickTs"`
	IntervalSec int64            `json:"intervalSec"`
	Balances    map[string]int64 `json:"balances"`
}

// HealthFromUseCase converts economy health to response.
func HealthFromUseCase(h *usecase.Health) *HealthResponse {
	balances := h.Balances
	if balances == nil {
		balances = map[string]int64{}
	}
	return &HealthResponse{
		LastTickTs:  domain.EpochMillis(h.LastTick),
		NextTickTs:  domain.EpochMillis(h.NextTick),
		IntervalSec: int64(h.Interval.Seconds()),
		Balances:    balances,
	}
}

// TransferResponse is returned by POST /economy/transfer.
type TransferResponse struct {
	OK          bool  `json:"ok"`
	FromBalance int64 `json:"fromBalance"`
	ToBalance   int64 `json:"toBalance"`
}

// TransferFromUseCase converts a transfer result to response.
func TransferFromUseCase(r *usecase.TransferResult) *TransferResponse {
	return &TransferResponse{OK: true, FromBalance: r.FromBalance, ToBalance: r.ToBalance}
}

// ExpireResponse is returned by POST /offers/gc.
type ExpireResponse struct {
	Expired int `json:"expired"`
}

// PinResponse represents a pin in API responses.
type PinResponse struct {
	ID          string  `json:"id"`
	Owner       *string `json:"owner"`
	Type        string  `json:"type,omitempty"`
	Level       int     `json:"level"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Color       string  `json:"color,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
	LastTradeAt int64   `json:"lastTradeAt,omitempty"`
}

// PinFromDomain converts domain pin to response. Unowned pins carry a null owner.
func PinFromDomain(p *domain.Pin) *PinResponse {
	resp := &PinResponse{
		ID:          p.ID,
		Type:        p.Type,
		Level:       p.Level,
		Lat:         p.Lat,
		Lng:         p.Lng,
		Color:       p.Color,
		CreatedAt:   domain.EpochMillis(p.CreatedAt),
		LastTradeAt: domain.EpochMillis(p.LastTradeAt),
	}
	if p.IsOwned() {
		owner := p.Owner
		resp.Owner = &owner
	}
	return resp
}

// PinsFromDomain converts domain pins to responses.
func PinsFromDomain(pins []*domain.Pin) []*PinResponse {
	result := make([]*PinResponse, len(pins))
	for i, p := range pins {
		result[i] = PinFromDomain(p)
	}
	return result
}

// BuildingTypeResponse is one catalog entry.
type BuildingTypeResponse struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	BaseIncome int64  `json:"baseIncome"`
	Price      int64  `json:"price"`
	MaxLevel   int    `json:"maxLevel"`
}

// BuildingTypesFromDomain converts catalog entries to responses.
func BuildingTypesFromDomain(types []domain.BuildingType) []BuildingTypeResponse {
	result := make([]BuildingTypeResponse, len(types))
	for i, t := range types {
		result[i] = BuildingTypeResponse{
			Key:        t.Key,
			Label:      t.DisplayLabel(),
			BaseIncome: t.BaseIncome,
			Price:      t.EffectivePrice(),
			MaxLevel:   t.EffectiveMaxLevel(),
		}
	}
	return result
}

// ShopResponse is returned by POST /shop/buy and POST /shop/upgrade.
type ShopResponse struct {
	OK      bool         `json:"ok"`
	Pin     *PinResponse `json:"pin"`
	Cost    int64        `json:"cost"`
	Balance int64        `json:"balance"`
}

// ShopFromUseCase converts a shop result to response.
func ShopFromUseCase(r *usecase.ShopResult) *ShopResponse {
	return &ShopResponse{
		OK:      true,
		Pin:     PinFromDomain(r.Pin),
		Cost:    r.Cost,
		Balance: r.Balance,
	}
}

// EventResponse is one feed entry.
type EventResponse struct {
	ID           string `json:"id"`
	Ts           int64  `json:"ts"`
	Type         string `json:"type"`
	City         string `json:"city"`
	Note         string `json:"note"`
	CooldownMins int    `json:"cooldownMins"`
}

// EventPageResponse is returned by GET /events.
type EventPageResponse struct {
	Total      int             `json:"total"`
	NextOffset *int            `json:"next_offset"`
	Items      []EventResponse `json:"items"`
}

// EventPageFromDomain builds a page. NextOffset is null on the last page.
func EventPageFromDomain(events []*domain.Event, total, offset int) *EventPageResponse {
	items := make([]EventResponse, len(events))
	for i, e := range events {
		items[i] = EventResponse{
			ID:           e.ID,
			Ts:           domain.EpochMillis(e.At),
			Type:         e.Type,
			City:         e.City,
			Note:         e.Note,
			CooldownMins: e.CooldownMins,
		}
	}
	page := &EventPageResponse{Total: total, Items: items}
	if next := offset + len(events); len(events) > 0 && next < total {
		page.NextOffset = &next
	}
	return page
}

// EscrowDiscrepancyResponse is an escrow entry without a pending offer.
type EscrowDiscrepancyResponse struct {
	OfferID string `json:"offerId"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status,omitempty"`
}

// ReconciliationResponse is returned by GET /economy/reconcile.
type ReconciliationResponse struct {
	Consistent           bool                        `json:"consistent"`
	TotalBalances        int64                       `json:"totalBalances"`
	TotalEscrow          int64                       `json:"totalEscrow"`
	PendingOffers        int                         `json:"pendingOffers"`
	OrphanEscrow         []EscrowDiscrepancyResponse `json:"orphanEscrow"`
	PendingWithoutEscrow []string                    `json:"pendingWithoutEscrow"`
	CheckedAt            int64                       `json:"checkedAt"`
}

// ReconciliationFromUseCase converts a report to response.
func ReconciliationFromUseCase(r *usecase.ReconciliationReport) *ReconciliationResponse {
	orphans := make([]EscrowDiscrepancyResponse, len(r.OrphanEscrow))
	for i, d := range r.OrphanEscrow {
		orphans[i] = EscrowDiscrepancyResponse{OfferID: d.OfferID, Amount: d.Amount, Status: string(d.Status)}
	}
	pending := r.PendingWithoutEscrow
	if pending == nil {
		pending = []string{}
	}
	return &ReconciliationResponse{
		Consistent:           r.Consistent,
		TotalBalances:        r.TotalBalances,
		TotalEscrow:          r.TotalEscrow,
		PendingOffers:        r.PendingOffers,
		OrphanEscrow:         orphans,
		PendingWithoutEscrow: pending,
		CheckedAt:            domain.EpochMillis(r.CheckedAt),
	}
}

// SettlementResponse is returned by POST /economy/reconcile.
type SettlementResponse struct {
	PaidOut   int      `json:"paidOut"`
	Refunded  int      `json:"refunded"`
	Unmatched []string `json:"unmatched"`
}

// SettlementFromUseCase converts a settlement result to response.
func SettlementFromUseCase(r *usecase.SettlementResult) *SettlementResponse {
	unmatched := r.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}
	return &SettlementResponse{PaidOut: r.PaidOut, Refunded: r.Refunded, Unmatched: unmatched}
}
