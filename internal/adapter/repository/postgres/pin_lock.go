package postgres

import (
	"context"
	"fmt"
)

const lockPinSettlementSQL = `SELECT pg_advisory_xact_lock(hashtext('settle:' || $1))`

// PinLocker implements usecase.PinLocker with a transaction-scoped advisory
// lock, so settlement on a pin is serialized across server processes. The
// lock transaction stays open until unlock rolls it back.
type PinLocker struct {
	tm *TxManager
}

// NewPinLocker creates a new PinLocker.
func NewPinLocker(tm *TxManager) *PinLocker {
	return &PinLocker{tm: tm}
}

func (l *PinLocker) LockPin(ctx context.Context, pinID string) (func(), error) {
	tx, err := l.tm.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin pin lock: %w", err)
	}
	if _, err := tx.Exec(ctx, lockPinSettlementSQL, pinID); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, err
	}
	return func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}, nil
}
