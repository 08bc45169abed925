package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/worldtycoon/internal/domain"
)

const ledgerFileName = "economy.json"

type ledgerState struct {
	Balances  map[string]int64 `json:"balances"`
	UpdatedAt map[string]int64 `json:"updatedAt,omitempty"`
	Escrow    map[string]int64 `json:"escrow"`
	LastTick  int64            `json:"lastTick"`
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		Balances:  make(map[string]int64),
		UpdatedAt: make(map[string]int64),
		Escrow:    make(map[string]int64),
	}
}

func (s *ledgerState) clone() *ledgerState {
	c := &ledgerState{
		Balances:  make(map[string]int64, len(s.Balances)),
		UpdatedAt: make(map[string]int64, len(s.UpdatedAt)),
		Escrow:    make(map[string]int64, len(s.Escrow)),
		LastTick:  s.LastTick,
	}
	for k, v := range s.Balances {
		c.Balances[k] = v
	}
	for k, v := range s.UpdatedAt {
		c.UpdatedAt[k] = v
	}
	for k, v := range s.Escrow {
		c.Escrow[k] = v
	}
	return c
}

func (s *ledgerState) credit(owner string, delta int64, at time.Time) int64 {
	s.Balances[owner] += delta
	s.UpdatedAt[owner] = domain.EpochMillis(at)
	return s.Balances[owner]
}

// LedgerStore implements usecase.LedgerStore over a single guarded state
// value. Mutations work on a copy which is persisted before it replaces the
// live state, so a failed write leaves the previous state intact.
type LedgerStore struct {
	mu    sync.Mutex
	state *ledgerState
	file  snapshotFile
	now   func() time.Time
}

// NewLedgerStore loads dir/economy.json when dir is set.
func NewLedgerStore(dir string) (*LedgerStore, error) {
	s := &LedgerStore{
		state: newLedgerState(),
		file:  newSnapshotFile(dir, ledgerFileName),
		now:   func() time.Time { return time.Now().UTC() },
	}

	loaded := newLedgerState()
	ok, err := s.file.load(loaded)
	if err != nil {
		return nil, err
	}
	if ok {
		s.state = normalizeLedgerState(loaded)
	}
	return s, nil
}

// normalizeLedgerState lowercases owner keys, merging duplicates, and fills
// nil maps left by older files.
func normalizeLedgerState(in *ledgerState) *ledgerState {
	out := newLedgerState()
	for owner, bal := range in.Balances {
		key := domain.NormalizeOwner(owner)
		if key == "" {
			continue
		}
		out.Balances[key] += bal
		if ts := domain.NormalizeEpochMillis(in.UpdatedAt[owner]); ts > out.UpdatedAt[key] {
			out.UpdatedAt[key] = ts
		}
	}
	for id, amount := range in.Escrow {
		if amount > 0 {
			out.Escrow[id] = amount
		}
	}
	out.LastTick = domain.NormalizeEpochMillis(in.LastTick)
	return out
}

func (s *LedgerStore) mutate(fn func(st *ledgerState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.file.save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *LedgerStore) GetBalance(_ context.Context, owner string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Balances[domain.NormalizeOwner(owner)], nil
}

func (s *LedgerStore) AdjustBalance(_ context.Context, owner string, delta int64) (int64, error) {
	owner = domain.NormalizeOwner(owner)
	var balance int64
	err := s.mutate(func(st *ledgerState) error {
		balance = st.credit(owner, delta, s.now())
		return nil
	})
	return balance, err
}

func (s *LedgerStore) Transfer(_ context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	from = domain.NormalizeOwner(from)
	to = domain.NormalizeOwner(to)
	return s.mutate(func(st *ledgerState) error {
		if st.Balances[from] < amount {
			return domain.ErrInsufficientFunds
		}
		now := s.now()
		st.credit(from, -amount, now)
		st.credit(to, amount, now)
		return nil
	})
}

func (s *LedgerStore) Charge(_ context.Context, owner string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	owner = domain.NormalizeOwner(owner)
	var balance int64
	err := s.mutate(func(st *ledgerState) error {
		if st.Balances[owner] < amount {
			return domain.ErrInsufficientFunds
		}
		balance = st.credit(owner, -amount, s.now())
		return nil
	})
	return balance, err
}

func (s *LedgerStore) EscrowHold(_ context.Context, offerID, buyer string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	buyer = domain.NormalizeOwner(buyer)
	return s.mutate(func(st *ledgerState) error {
		if st.Escrow[offerID] > 0 {
			return fmt.Errorf("%w: %s", domain.ErrEscrowExists, offerID)
		}
		if st.Balances[buyer] < amount {
			return domain.ErrInsufficientFunds
		}
		st.credit(buyer, -amount, s.now())
		st.Escrow[offerID] = amount
		return nil
	})
}

func (s *LedgerStore) EscrowRefund(_ context.Context, offerID, buyer string) (int64, error) {
	buyer = domain.NormalizeOwner(buyer)
	var refunded int64
	err := s.mutate(func(st *ledgerState) error {
		amount := st.Escrow[offerID]
		delete(st.Escrow, offerID)
		if amount <= 0 {
			return nil
		}
		st.credit(buyer, amount, s.now())
		refunded = amount
		return nil
	})
	return refunded, err
}

func (s *LedgerStore) EscrowPayout(_ context.Context, offerID, seller string, feePct decimal.Decimal) (int64, int64, error) {
	seller = domain.NormalizeOwner(seller)
	var net, fee int64
	err := s.mutate(func(st *ledgerState) error {
		amount := st.Escrow[offerID]
		delete(st.Escrow, offerID)
		if amount <= 0 {
			return nil
		}
		fee, net = domain.ComputeFee(amount, feePct)
		st.credit(seller, net, s.now())
		return nil
	})
	return net, fee, err
}

func (s *LedgerStore) Accrue(_ context.Context, credits map[string]int64, at time.Time) error {
	return s.mutate(func(st *ledgerState) error {
		for owner, amount := range credits {
			owner = domain.NormalizeOwner(owner)
			if owner == "" || amount == 0 {
				continue
			}
			st.credit(owner, amount, at)
		}
		st.LastTick = domain.EpochMillis(at)
		return nil
	})
}

func (s *LedgerStore) Snapshot(_ context.Context) (*domain.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &domain.LedgerSnapshot{
		Balances: make([]domain.BalanceItem, 0, len(s.state.Balances)),
		Escrow:   make(map[string]int64, len(s.state.Escrow)),
		LastTick: domain.FromEpochMillis(s.state.LastTick),
	}
	for owner, bal := range s.state.Balances {
		snap.Balances = append(snap.Balances, domain.BalanceItem{
			Owner:     owner,
			Balance:   bal,
			UpdatedAt: domain.FromEpochMillis(s.state.UpdatedAt[owner]),
		})
	}
	for id, amount := range s.state.Escrow {
		snap.Escrow[id] = amount
	}
	return snap, nil
}
