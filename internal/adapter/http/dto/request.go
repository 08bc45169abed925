package dto

import (
	"strings"

	"github.com/iho/worldtycoon/internal/usecase"
)

// CreateOfferRequest is the body of POST /offers.
type CreateOfferRequest struct {
	PinID     string `json:"pinId"`
	FromOwner string `json:"fromOwner"`
	ToOwner   string `json:"toOwner"`
	Amount    int64  `json:"amount"`
	Note      string `json:"note,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateOfferRequest) ToUseCaseInput() usecase.CreateOfferInput {
	return usecase.CreateOfferInput{
		PinID:     strings.TrimSpace(r.PinID),
		FromOwner: r.FromOwner,
		ToOwner:   r.ToOwner,
		Amount:    r.Amount,
		Note:      r.Note,
	}
}

// TransferRequest is the body of POST /economy/transfer.
type TransferRequest struct {
	FromOwner string `json:"fromOwner"`
	ToOwner   string `json:"toOwner"`
	Amount    int64  `json:"amount"`
}

// BuyPinRequest is the body of POST /shop/buy.
type BuyPinRequest struct {
	PinID string `json:"pinId"`
	Owner string `json:"owner"`
	Type  string `json:"type,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *BuyPinRequest) ToUseCaseInput() usecase.BuyPinInput {
	return usecase.BuyPinInput{
		PinID: strings.TrimSpace(r.PinID),
		Owner: r.Owner,
		Type:  strings.TrimSpace(r.Type),
	}
}

// UpgradePinRequest is the body of POST /shop/upgrade.
type UpgradePinRequest struct {
	PinID string `json:"pinId"`
	Owner string `json:"owner"`
}

// ToUseCaseInput converts to use case input.
func (r *UpgradePinRequest) ToUseCaseInput() usecase.UpgradePinInput {
	return usecase.UpgradePinInput{
		PinID: strings.TrimSpace(r.PinID),
		Owner: r.Owner,
	}
}

// PaginationRequest represents pagination parameters.
type PaginationRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DefaultPagination returns default pagination values.
func DefaultPagination() PaginationRequest {
	return PaginationRequest{
		Limit:  50,
		Offset: 0,
	}
}
