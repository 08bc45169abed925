package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/worldtycoon/internal/domain"
)

const (
	selectBalanceSQL = `SELECT balance FROM balances WHERE owner = $1`

	lockBalanceSQL = `SELECT balance FROM balances WHERE owner = $1 FOR UPDATE`

	creditBalanceSQL = `
INSERT INTO balances (owner, balance, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (owner) DO UPDATE
SET balance = balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
RETURNING balance`

	debitIfCoveredSQL = `
UPDATE balances SET balance = balance - $2, updated_at = $3
WHERE owner = $1 AND balance >= $2
RETURNING balance`

	insertEscrowSQL = `
INSERT INTO escrow (offer_id, buyer, amount, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (offer_id) DO NOTHING`

	takeEscrowSQL = `DELETE FROM escrow WHERE offer_id = $1 RETURNING amount`

	setLastTickSQL = `UPDATE economy_state SET last_tick = $1 WHERE id = 1`

	snapshotIsolationSQL = `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY`
	selectBalancesSQL    = `SELECT owner, balance, updated_at FROM balances`
	selectEscrowSQL      = `SELECT offer_id, amount FROM escrow`
	selectLastTickSQL    = `SELECT last_tick FROM economy_state WHERE id = 1`
)

// LedgerStore implements usecase.LedgerStore on PostgreSQL. Every method is
// one transaction; rows are locked in owner order so concurrent transfers
// cannot deadlock on each other.
type LedgerStore struct {
	tm  *TxManager
	now func() time.Time
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(tm *TxManager) *LedgerStore {
	return &LedgerStore{
		tm:  tm,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *LedgerStore) GetBalance(ctx context.Context, owner string) (int64, error) {
	var balance int64
	err := s.tm.pool.QueryRow(ctx, selectBalanceSQL, domain.NormalizeOwner(owner)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (s *LedgerStore) AdjustBalance(ctx context.Context, owner string, delta int64) (int64, error) {
	owner = domain.NormalizeOwner(owner)
	var balance int64
	err := s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = credit(ctx, tx, owner, delta, s.now())
		return err
	})
	return balance, err
}

func (s *LedgerStore) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	from = domain.NormalizeOwner(from)
	to = domain.NormalizeOwner(to)

	return s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwners(ctx, tx, from, to); err != nil {
			return err
		}
		now := s.now()
		if _, err := debit(ctx, tx, from, amount, now); err != nil {
			return err
		}
		_, err := credit(ctx, tx, to, amount, now)
		return err
	})
}

func (s *LedgerStore) Charge(ctx context.Context, owner string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	owner = domain.NormalizeOwner(owner)
	var balance int64
	err := s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = debit(ctx, tx, owner, amount, s.now())
		return err
	})
	return balance, err
}

func (s *LedgerStore) EscrowHold(ctx context.Context, offerID, buyer string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	buyer = domain.NormalizeOwner(buyer)

	return s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		now := s.now()
		tag, err := tx.Exec(ctx, insertEscrowSQL, offerID, buyer, amount, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", domain.ErrEscrowExists, offerID)
		}
		_, err = debit(ctx, tx, buyer, amount, now)
		return err
	})
}

func (s *LedgerStore) EscrowRefund(ctx context.Context, offerID, buyer string) (int64, error) {
	buyer = domain.NormalizeOwner(buyer)
	var refunded int64
	err := s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		amount, err := takeEscrow(ctx, tx, offerID)
		if err != nil || amount <= 0 {
			return err
		}
		if _, err := credit(ctx, tx, buyer, amount, s.now()); err != nil {
			return err
		}
		refunded = amount
		return nil
	})
	return refunded, err
}

func (s *LedgerStore) EscrowPayout(ctx context.Context, offerID, seller string, feePct decimal.Decimal) (int64, int64, error) {
	seller = domain.NormalizeOwner(seller)
	var net, fee int64
	err := s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		net, fee = 0, 0
		amount, err := takeEscrow(ctx, tx, offerID)
		if err != nil || amount <= 0 {
			return err
		}
		fee, net = domain.ComputeFee(amount, feePct)
		_, err = credit(ctx, tx, seller, net, s.now())
		return err
	})
	return net, fee, err
}

func (s *LedgerStore) Accrue(ctx context.Context, credits map[string]int64, at time.Time) error {
	owners := make([]string, 0, len(credits))
	for owner, amount := range credits {
		if domain.NormalizeOwner(owner) != "" && amount != 0 {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)

	return s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		for _, owner := range owners {
			if _, err := credit(ctx, tx, domain.NormalizeOwner(owner), credits[owner], at); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, setLastTickSQL, at)
		return err
	})
}

func (s *LedgerStore) Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error) {
	snap := &domain.LedgerSnapshot{}
	err := s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		snap.Balances = make([]domain.BalanceItem, 0)
		snap.Escrow = make(map[string]int64)

		if _, err := tx.Exec(ctx, snapshotIsolationSQL); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, selectBalancesSQL)
		if err != nil {
			return err
		}
		for rows.Next() {
			var item domain.BalanceItem
			if err := rows.Scan(&item.Owner, &item.Balance, &item.UpdatedAt); err != nil {
				rows.Close()
				return err
			}
			snap.Balances = append(snap.Balances, item)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, selectEscrowSQL)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			var amount int64
			if err := rows.Scan(&id, &amount); err != nil {
				rows.Close()
				return err
			}
			snap.Escrow[id] = amount
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var lastTick *time.Time
		if err := tx.QueryRow(ctx, selectLastTickSQL).Scan(&lastTick); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if lastTick != nil {
			snap.LastTick = lastTick.UTC()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func lockOwners(ctx context.Context, tx pgx.Tx, owners ...string) error {
	sorted := append([]string(nil), owners...)
	sort.Strings(sorted)
	for _, owner := range sorted {
		var balance int64
		err := tx.QueryRow(ctx, lockBalanceSQL, owner).Scan(&balance)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}
	return nil
}

func credit(ctx context.Context, tx pgx.Tx, owner string, delta int64, at time.Time) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, creditBalanceSQL, owner, delta, at).Scan(&balance)
	return balance, err
}

// debit subtracts amount only if the balance covers it.
func debit(ctx context.Context, tx pgx.Tx, owner string, amount int64, at time.Time) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, debitIfCoveredSQL, owner, amount, at).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrInsufficientFunds
	}
	return balance, err
}

func takeEscrow(ctx context.Context, tx pgx.Tx, offerID string) (int64, error) {
	var amount int64
	err := tx.QueryRow(ctx, takeEscrowSQL, offerID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return amount, err
}
