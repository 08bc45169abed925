package domain

import "errors"

var (
	// Input errors
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrAmountBelowMinimum  = errors.New("amount below minimum")
	ErrSelfOffer           = errors.New("cannot offer to self")
	ErrMissingParticipant  = errors.New("missing participants")
	ErrInvalidOwner        = errors.New("invalid owner")
	ErrInvalidStatus       = errors.New("invalid offer status")
	ErrUnknownBuildingType = errors.New("unknown building type")
	ErrSameOwner           = errors.New("cannot transfer to same owner")
	ErrInvalidNote         = errors.New("invalid note")
	ErrInvalidPinID        = errors.New("pin id is required")

	// Lookup errors
	ErrOfferNotFound = errors.New("offer not found")
	ErrPinNotFound   = errors.New("pin not found")

	// State errors
	ErrOfferNotPending    = errors.New("offer not pending")
	ErrPinOwnerChanged    = errors.New("pin owner changed")
	ErrSellerNotOwner     = errors.New("seller does not own this pin")
	ErrPendingOfferExists = errors.New("pin has a pending offer")
	ErrEscrowExists       = errors.New("escrow already held for offer")
	ErrPinAlreadyOwned    = errors.New("pin is already owned")
	ErrNotPinOwner        = errors.New("you do not own this pin")
	ErrMaxLevelReached    = errors.New("pin already at max level")
	ErrForbiddenActor     = errors.New("caller may not act on this offer")

	// Funds
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Operator configuration errors
	ErrNoPinsAvailable     = errors.New("no pins available")
	ErrTypeRegistryMissing = errors.New("type registry missing or empty")
)

// ErrorKind classifies errors for transport mapping.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidInput
	KindNotFound
	KindConflict
	KindInsufficientFunds
	KindForbidden
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindForbidden:
		return "forbidden"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindInvalidInput},
	{ErrAmountBelowMinimum, KindInvalidInput},
	{ErrSelfOffer, KindInvalidInput},
	{ErrMissingParticipant, KindInvalidInput},
	{ErrInvalidOwner, KindInvalidInput},
	{ErrInvalidStatus, KindInvalidInput},
	{ErrUnknownBuildingType, KindInvalidInput},
	{ErrSameOwner, KindInvalidInput},
	{ErrInvalidNote, KindInvalidInput},
	{ErrInvalidPinID, KindInvalidInput},
	{ErrNoPinsAvailable, KindInvalidInput},
	{ErrOfferNotFound, KindNotFound},
	{ErrPinNotFound, KindNotFound},
	{ErrOfferNotPending, KindConflict},
	{ErrPinOwnerChanged, KindConflict},
	{ErrSellerNotOwner, KindConflict},
	{ErrPendingOfferExists, KindConflict},
	{ErrEscrowExists, KindConflict},
	{ErrPinAlreadyOwned, KindConflict},
	{ErrMaxLevelReached, KindConflict},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrNotPinOwner, KindForbidden},
	{ErrForbiddenActor, KindForbidden},
	{ErrUnauthorized, KindForbidden},
	{ErrTypeRegistryMissing, KindConfiguration},
}

// KindOf returns the kind of the first known sentinel wrapped by err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindInternal
}
