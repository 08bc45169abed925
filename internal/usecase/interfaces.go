package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/worldtycoon/internal/domain"
)

// LedgerStore is the durable owner balance ledger plus the escrow sub-ledger.
// Every method is atomic with respect to every other method. Owner keys are
// normalized by the implementation.
type LedgerStore interface {
	GetBalance(ctx context.Context, owner string) (int64, error)
	// AdjustBalance applies delta without a floor check and returns the new balance.
	AdjustBalance(ctx context.Context, owner string, delta int64) (int64, error)
	Transfer(ctx context.Context, from, to string, amount int64) error
	// Charge debits amount from owner and discards it. Returns the new balance.
	Charge(ctx context.Context, owner string, amount int64) (int64, error)
	EscrowHold(ctx context.Context, offerID, buyer string, amount int64) error
	// EscrowRefund returns the escrowed amount to buyer. Absent entries refund 0.
	EscrowRefund(ctx context.Context, offerID, buyer string) (int64, error)
	// EscrowPayout credits seller with the escrow minus the fee. The fee is burned.
	EscrowPayout(ctx context.Context, offerID, seller string, feePct decimal.Decimal) (net, fee int64, err error)
	// Accrue credits every owner in credits and records at as the last tick.
	Accrue(ctx context.Context, credits map[string]int64, at time.Time) error
	Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error)
}

// OfferRepository defines data access for offers.
type OfferRepository interface {
	// Create persists a new PENDING offer. When lockPin is set it fails with
	// domain.ErrPendingOfferExists if another PENDING offer exists for the pin.
	Create(ctx context.Context, offer *domain.Offer, lockPin bool) error
	GetByID(ctx context.Context, id string) (*domain.Offer, error)
	List(ctx context.Context, filter domain.OfferFilter) ([]*domain.Offer, error)
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Offer, error)
	// Transition moves a PENDING offer to status and appends entry. It returns
	// domain.ErrOfferNotPending when the stored offer is no longer PENDING.
	Transition(ctx context.Context, id string, status domain.OfferStatus, entry domain.HistoryEntry) (*domain.Offer, error)
	AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error
}

// PinRegistry is the map slot store.
type PinRegistry interface {
	GetPin(ctx context.Context, id string) (*domain.Pin, error)
	SetOwner(ctx context.Context, id, owner string, at time.Time) error
	List(ctx context.Context) ([]*domain.Pin, error)
	// Replace stores next if the stored pin still has the owner and level of
	// expected, else it returns domain.ErrPinOwnerChanged.
	Replace(ctx context.Context, expected, next *domain.Pin) error
}

// CatalogProvider supplies the building type catalog.
type CatalogProvider interface {
	Catalog(ctx context.Context) (domain.Catalog, error)
}

// EventLog is the public activity feed.
type EventLog interface {
	Append(ctx context.Context, event *domain.Event) error
	// List returns events newest first together with the total count.
	List(ctx context.Context, limit, offset int) ([]*domain.Event, int, error)
}

// Lease is a held exclusive-execution marker.
type Lease interface {
	Release(ctx context.Context) error
}

// LeaseStore hands out time-bounded leases. Acquire returns ok=false when a
// fresh lease is held elsewhere.
type LeaseStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request did not complete successfully.
	Release(ctx context.Context, key string) error
}

// Clock returns the current time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
