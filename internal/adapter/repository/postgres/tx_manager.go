package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
)

// pgxPool is the subset of *pgxpool.Pool the stores use. pgxmock satisfies it.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager runs store operations inside retried transactions.
type TxManager struct {
	pool    pgxPool
	retrier *Retrier
	metrics *metrics.Metrics
}

// NewTxManager creates a new TxManager.
func NewTxManager(pool *pgxpool.Pool, retrier *Retrier) *TxManager {
	return newTxManagerWithPool(pool, retrier)
}

func newTxManagerWithPool(pool pgxPool, retrier *Retrier) *TxManager {
	return &TxManager{pool: pool, retrier: retrier}
}

// WithMetrics counts transactions and failed transactions.
func (m *TxManager) WithMetrics(mt *metrics.Metrics) *TxManager {
	m.metrics = mt
	return m
}

// RunInTx runs fn in a transaction, committing when it returns nil. The whole
// transaction is retried on deadlock or serialization failure, so fn must not
// have side effects outside tx.
func (m *TxManager) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	attempt := func() error {
		return m.runOnce(ctx, fn)
	}
	var err error
	if m.retrier == nil {
		err = attempt()
	} else {
		err = m.retrier.Retry(ctx, attempt)
	}
	if m.metrics != nil {
		m.metrics.DBQueries.WithLabelValues("tx").Inc()
		if err != nil {
			m.metrics.DBErrors.WithLabelValues("tx").Inc()
		}
	}
	return err
}

func (m *TxManager) runOnce(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
