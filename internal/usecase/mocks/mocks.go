package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/worldtycoon/internal/domain"
)

// MockLedgerStore is a map-backed LedgerStore whose methods can be overridden.
type MockLedgerStore struct {
	mu       sync.Mutex
	Balances map[string]int64
	Escrow   map[string]int64
	LastTick time.Time

	EscrowHoldFunc   func(ctx context.Context, offerID, buyer string, amount int64) error
	EscrowRefundFunc func(ctx context.Context, offerID, buyer string) (int64, error)
	EscrowPayoutFunc func(ctx context.Context, offerID, seller string, feePct decimal.Decimal) (int64, int64, error)
	ChargeFunc       func(ctx context.Context, owner string, amount int64) (int64, error)
	AccrueFunc       func(ctx context.Context, credits map[string]int64, at time.Time) error
	SnapshotFunc     func(ctx context.Context) (*domain.LedgerSnapshot, error)
}

func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		Balances: make(map[string]int64),
		Escrow:   make(map[string]int64),
	}
}

func (m *MockLedgerStore) GetBalance(_ context.Context, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balances[domain.NormalizeOwner(owner)], nil
}

func (m *MockLedgerStore) AdjustBalance(_ context.Context, owner string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner = domain.NormalizeOwner(owner)
	m.Balances[owner] += delta
	return m.Balances[owner], nil
}

func (m *MockLedgerStore) Transfer(_ context.Context, from, to string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	from, to = domain.NormalizeOwner(from), domain.NormalizeOwner(to)
	if m.Balances[from] < amount {
		return domain.ErrInsufficientFunds
	}
	m.Balances[from] -= amount
	m.Balances[to] += amount
	return nil
}

func (m *MockLedgerStore) Charge(ctx context.Context, owner string, amount int64) (int64, error) {
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, owner, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	owner = domain.NormalizeOwner(owner)
	if m.Balances[owner] < amount {
		return 0, domain.ErrInsufficientFunds
	}
	m.Balances[owner] -= amount
	return m.Balances[owner], nil
}

func (m *MockLedgerStore) EscrowHold(ctx context.Context, offerID, buyer string, amount int64) error {
	if m.EscrowHoldFunc != nil {
		return m.EscrowHoldFunc(ctx, offerID, buyer, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buyer = domain.NormalizeOwner(buyer)
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if m.Balances[buyer] < amount {
		return domain.ErrInsufficientFunds
	}
	m.Balances[buyer] -= amount
	m.Escrow[offerID] = amount
	return nil
}

func (m *MockLedgerStore) EscrowRefund(ctx context.Context, offerID, buyer string) (int64, error) {
	if m.EscrowRefundFunc != nil {
		return m.EscrowRefundFunc(ctx, offerID, buyer)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	amount := m.Escrow[offerID]
	delete(m.Escrow, offerID)
	m.Balances[domain.NormalizeOwner(buyer)] += amount
	return amount, nil
}

func (m *MockLedgerStore) EscrowPayout(ctx context.Context, offerID, seller string, feePct decimal.Decimal) (int64, int64, error) {
	if m.EscrowPayoutFunc != nil {
		return m.EscrowPayoutFunc(ctx, offerID, seller, feePct)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	amount := m.Escrow[offerID]
	delete(m.Escrow, offerID)
	if amount <= 0 {
		return 0, 0, nil
	}
	fee, net := domain.ComputeFee(amount, feePct)
	m.Balances[domain.NormalizeOwner(seller)] += net
	return net, fee, nil
}

func (m *MockLedgerStore) Accrue(ctx context.Context, credits map[string]int64, at time.Time) error {
	if m.AccrueFunc != nil {
		return m.AccrueFunc(ctx, credits, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for owner, amount := range credits {
		m.Balances[domain.NormalizeOwner(owner)] += amount
	}
	m.LastTick = at
	return nil
}

func (m *MockLedgerStore) Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &domain.LedgerSnapshot{Escrow: make(map[string]int64), LastTick: m.LastTick}
	for owner, bal := range m.Balances {
		snap.Balances = append(snap.Balances, domain.BalanceItem{Owner: owner, Balance: bal})
	}
	for id, amount := range m.Escrow {
		snap.Escrow[id] = amount
	}
	return snap, nil
}

// MockOfferRepository is a map-backed OfferRepository whose methods can be overridden.
type MockOfferRepository struct {
	mu     sync.Mutex
	offers map[string]*domain.Offer

	CreateFunc      func(ctx context.Context, offer *domain.Offer, lockPin bool) error
	GetByIDFunc     func(ctx context.Context, id string) (*domain.Offer, error)
	ListFunc        func(ctx context.Context, filter domain.OfferFilter) ([]*domain.Offer, error)
	ListExpiredFunc func(ctx context.Context, now time.Time) ([]*domain.Offer, error)
	TransitionFunc  func(ctx context.Context, id string, status domain.OfferStatus, entry domain.HistoryEntry) (*domain.Offer, error)
}

func NewMockOfferRepository() *MockOfferRepository {
	return &MockOfferRepository{offers: make(map[string]*domain.Offer)}
}

// Put stores an offer directly.
func (m *MockOfferRepository) Put(offer *domain.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[offer.ID] = offer.Clone()
}

func (m *MockOfferRepository) Create(ctx context.Context, offer *domain.Offer, lockPin bool) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, offer, lockPin)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if lockPin {
		for _, o := range m.offers {
			if o.PinID == offer.PinID && o.Status == domain.OfferStatusPending {
				return domain.ErrPendingOfferExists
			}
		}
	}
	m.offers[offer.ID] = offer.Clone()
	return nil
}

func (m *MockOfferRepository) GetByID(ctx context.Context, id string) (*domain.Offer, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.offers[id]; ok {
		return o.Clone(), nil
	}
	return nil, domain.ErrOfferNotFound
}

func (m *MockOfferRepository) List(ctx context.Context, filter domain.OfferFilter) ([]*domain.Offer, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Offer
	for _, o := range m.offers {
		if filter.Matches(o) {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (m *MockOfferRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Offer, error) {
	if m.ListExpiredFunc != nil {
		return m.ListExpiredFunc(ctx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Offer
	for _, o := range m.offers {
		if o.IsExpired(now) {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (m *MockOfferRepository) Transition(ctx context.Context, id string, status domain.OfferStatus, entry domain.HistoryEntry) (*domain.Offer, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, id, status, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	if o.Status != domain.OfferStatusPending {
		return nil, fmt.Errorf("%w: offer is %s", domain.ErrOfferNotPending, o.Status)
	}
	updated := o.Clone()
	updated.Status = status
	updated.History = append(updated.History, entry)
	m.offers[id] = updated
	return updated.Clone(), nil
}

func (m *MockOfferRepository) AppendHistory(_ context.Context, id string, entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return domain.ErrOfferNotFound
	}
	updated := o.Clone()
	updated.History = append(updated.History, entry)
	m.offers[id] = updated
	return nil
}

// MockPinRegistry is a map-backed PinRegistry whose methods can be overridden.
type MockPinRegistry struct {
	mu   sync.Mutex
	pins map[string]*domain.Pin

	GetPinFunc   func(ctx context.Context, id string) (*domain.Pin, error)
	SetOwnerFunc func(ctx context.Context, id, owner string, at time.Time) error
	ListFunc     func(ctx context.Context) ([]*domain.Pin, error)
	ReplaceFunc  func(ctx context.Context, expected, next *domain.Pin) error
}

func NewMockPinRegistry(pins ...*domain.Pin) *MockPinRegistry {
	m := &MockPinRegistry{pins: make(map[string]*domain.Pin)}
	for _, p := range pins {
		m.pins[p.ID] = p.Clone()
	}
	return m
}

func (m *MockPinRegistry) GetPin(ctx context.Context, id string) (*domain.Pin, error) {
	if m.GetPinFunc != nil {
		return m.GetPinFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pins[id]; ok {
		return p.Clone(), nil
	}
	return nil, domain.ErrPinNotFound
}

func (m *MockPinRegistry) SetOwner(ctx context.Context, id, owner string, at time.Time) error {
	if m.SetOwnerFunc != nil {
		return m.SetOwnerFunc(ctx, id, owner, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[id]
	if !ok {
		return domain.ErrPinNotFound
	}
	p.Owner = domain.NormalizeOwner(owner)
	p.LastTradeAt = at
	return nil
}

func (m *MockPinRegistry) List(ctx context.Context) ([]*domain.Pin, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Pin, 0, len(m.pins))
	for _, p := range m.pins {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *MockPinRegistry) Replace(ctx context.Context, expected, next *domain.Pin) error {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, expected, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.pins[expected.ID]
	if !ok {
		return domain.ErrPinNotFound
	}
	if !domain.SameOwner(cur.Owner, expected.Owner) || cur.Level != expected.Level {
		return domain.ErrPinOwnerChanged
	}
	m.pins[expected.ID] = next.Clone()
	return nil
}

// MockIDGenerator returns sequential IDs unless GenerateFunc is set.
type MockIDGenerator struct {
	mu      sync.Mutex
	counter int

	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("id-%d", m.counter)
}

// MockIdempotencyStore is an in-memory IdempotencyStore.
type MockIdempotencyStore struct {
	mu   sync.Mutex
	data map[string][]byte

	CheckAndSetFunc func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{data: make(map[string][]byte)}
}

func (m *MockIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	if m.CheckAndSetFunc != nil {
		return m.CheckAndSetFunc(ctx, key, response, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.data[key]; ok {
		return true, existing, nil
	}
	m.data[key] = response
	return false, nil, nil
}

func (m *MockIdempotencyStore) Update(_ context.Context, key string, response []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = response
	return nil
}

func (m *MockIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
