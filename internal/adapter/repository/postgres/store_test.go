package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/usecase"
)

var (
	_ usecase.LedgerStore     = (*LedgerStore)(nil)
	_ usecase.OfferRepository = (*OfferStore)(nil)
	_ usecase.PinRegistry     = (*PinStore)(nil)
	_ usecase.EventLog        = (*EventStore)(nil)
	_ usecase.IDGenerator     = (*ULIDGenerator)(nil)
	_ usecase.PinLocker       = (*PinLocker)(nil)
)

func newTestTxManager(t *testing.T) (*TxManager, pgxmock.PgxPoolIface) {
	t.Helper()
	pool := newMockPool(t)
	return newTxManagerWithPool(pool, nil), pool
}

func TestLedgerStore_GetBalanceUnknownOwnerIsZero(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM balances")).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}))

	bal, err := NewLedgerStore(tm).GetBalance(context.Background(), " Alice ")
	require.NoError(t, err)
	assert.Zero(t, bal)
	assertExpectations(t, pool)
}

func TestLedgerStore_ChargeInsufficientFundsRollsBack(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectBegin()
	pool.ExpectQuery(regexp.QuoteMeta("UPDATE balances SET balance = balance -")).
		WithArgs("alice", int64(500), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}))
	pool.ExpectRollback()

	_, err := NewLedgerStore(tm).Charge(context.Background(), "alice", 500)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assertExpectations(t, pool)
}

func TestLedgerStore_ChargeRejectsNonPositive(t *testing.T) {
	tm, pool := newTestTxManager(t)
	_, err := NewLedgerStore(tm).Charge(context.Background(), "alice", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assertExpectations(t, pool)
}

func TestLedgerStore_EscrowHold(t *testing.T) {
	t.Run("debits buyer", func(t *testing.T) {
		tm, pool := newTestTxManager(t)
		pool.ExpectBegin()
		pool.ExpectExec(regexp.QuoteMeta("INSERT INTO escrow")).
			WithArgs("o1", "buyer", int64(100), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		pool.ExpectQuery(regexp.QuoteMeta("UPDATE balances SET balance = balance -")).
			WithArgs("buyer", int64(100), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(50)))
		pool.ExpectCommit()

		require.NoError(t, NewLedgerStore(tm).EscrowHold(context.Background(), "o1", "Buyer", 100))
		assertExpectations(t, pool)
	})

	t.Run("duplicate hold", func(t *testing.T) {
		tm, pool := newTestTxManager(t)
		pool.ExpectBegin()
		pool.ExpectExec(regexp.QuoteMeta("INSERT INTO escrow")).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		pool.ExpectRollback()

		err := NewLedgerStore(tm).EscrowHold(context.Background(), "o1", "buyer", 100)
		assert.ErrorIs(t, err, domain.ErrEscrowExists)
		assertExpectations(t, pool)
	})
}

func TestLedgerStore_EscrowPayoutBurnsFee(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectBegin()
	pool.ExpectQuery(regexp.QuoteMeta("DELETE FROM escrow")).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(100)))
	pool.ExpectQuery(regexp.QuoteMeta("INSERT INTO balances")).
		WithArgs("seller", int64(98), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(98)))
	pool.ExpectCommit()

	net, fee, err := NewLedgerStore(tm).EscrowPayout(context.Background(), "o1", "Seller", decimal.RequireFromString("0.02"))
	require.NoError(t, err)
	assert.Equal(t, int64(98), net)
	assert.Equal(t, int64(2), fee)
	assertExpectations(t, pool)
}

func TestLedgerStore_EscrowRefundMissingIsNoop(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectBegin()
	pool.ExpectQuery(regexp.QuoteMeta("DELETE FROM escrow")).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"amount"}))
	pool.ExpectCommit()

	refunded, err := NewLedgerStore(tm).EscrowRefund(context.Background(), "o1", "buyer")
	require.NoError(t, err)
	assert.Zero(t, refunded)
	assertExpectations(t, pool)
}

func TestLedgerStore_TransferLocksInOwnerOrder(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectBegin()
	pool.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(10)))
	pool.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("zed").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(100)))
	pool.ExpectQuery(regexp.QuoteMeta("UPDATE balances SET balance = balance -")).
		WithArgs("zed", int64(40), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(60)))
	pool.ExpectQuery(regexp.QuoteMeta("INSERT INTO balances")).
		WithArgs("alice", int64(40), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(50)))
	pool.ExpectCommit()

	require.NoError(t, NewLedgerStore(tm).Transfer(context.Background(), "Zed", "alice", 40))
	assertExpectations(t, pool)
}

func TestLedgerStore_Snapshot(t *testing.T) {
	tm, pool := newTestTxManager(t)
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastTick := updated.Add(time.Hour)

	pool.ExpectBegin()
	pool.ExpectExec(regexp.QuoteMeta("SET TRANSACTION")).WillReturnResult(pgxmock.NewResult("SET", 0))
	pool.ExpectQuery(regexp.QuoteMeta("SELECT owner, balance, updated_at FROM balances")).
		WillReturnRows(pgxmock.NewRows([]string{"owner", "balance", "updated_at"}).
			AddRow("alice", int64(70), updated).
			AddRow("bob", int64(30), updated))
	pool.ExpectQuery(regexp.QuoteMeta("SELECT offer_id, amount FROM escrow")).
		WillReturnRows(pgxmock.NewRows([]string{"offer_id", "amount"}).AddRow("o1", int64(100)))
	pool.ExpectQuery(regexp.QuoteMeta("SELECT last_tick FROM economy_state")).
		WillReturnRows(pgxmock.NewRows([]string{"last_tick"}).AddRow(&lastTick))
	pool.ExpectCommit()

	snap, err := NewLedgerStore(tm).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"alice": 70, "bob": 30}, snap.BalanceMap())
	assert.Equal(t, int64(200), snap.TotalFunds())
	assert.True(t, snap.LastTick.Equal(lastTick))
	assertExpectations(t, pool)
}

func offerRow(status string, expires *time.Time, history string) *pgxmock.Rows {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{"id", "pin_id", "from_owner", "to_owner", "amount", "status", "note", "created_at", "expires_at", "history"}).
		AddRow("o1", "p1", "buyer", "seller", int64(100), status, "", created, expires, []byte(history))
}

func TestOfferStore_CreateWithPendingLock(t *testing.T) {
	offer := &domain.Offer{ID: "o2", PinID: "p1", FromOwner: "buyer", ToOwner: "seller", Amount: 10,
		Status: domain.OfferStatusPending, CreatedAt: time.Now()}

	t.Run("pending exists", func(t *testing.T) {
		tm, pool := newTestTxManager(t)
		pool.ExpectBegin()
		pool.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WithArgs("p1").
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		pool.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs("p1", terminalStatuses).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		pool.ExpectRollback()

		err := NewOfferStore(tm, 24*time.Hour).Create(context.Background(), offer, true)
		assert.ErrorIs(t, err, domain.ErrPendingOfferExists)
		assertExpectations(t, pool)
	})

	t.Run("inserted", func(t *testing.T) {
		tm, pool := newTestTxManager(t)
		pool.ExpectBegin()
		pool.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WithArgs("p1").
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		pool.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs("p1", terminalStatuses).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		pool.ExpectExec(regexp.QuoteMeta("INSERT INTO offers")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		pool.ExpectCommit()

		require.NoError(t, NewOfferStore(tm, 24*time.Hour).Create(context.Background(), offer, true))
		assertExpectations(t, pool)
	})
}

func TestOfferStore_GetByIDNormalizesRow(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectQuery(regexp.QuoteMeta("FROM offers WHERE id = $1")).WithArgs("o1").
		WillReturnRows(offerRow("pending", nil, `[{"t":1767225600,"a":"CREATED"}]`))

	o, err := NewOfferStore(tm, 24*time.Hour).GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusPending, o.Status)
	assert.Equal(t, o.CreatedAt.Add(24*time.Hour), o.ExpiresAt)
	require.Len(t, o.History, 1)
	assert.Equal(t, int64(1_767_225_600_000), o.History[0].At.UnixMilli())
	assertExpectations(t, pool)
}

func TestOfferStore_GetByIDMissing(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectQuery(regexp.QuoteMeta("FROM offers WHERE id = $1")).WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id", "pin_id", "from_owner", "to_owner", "amount", "status", "note", "created_at", "expires_at", "history"}))

	_, err := NewOfferStore(tm, time.Hour).GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)
}

func TestOfferStore_TransitionRequiresPending(t *testing.T) {
	expires := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("not pending", func(t *testing.T) {
		tm, pool := newTestTxManager(t)
		pool.ExpectBegin()
		pool.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("o1").
			WillReturnRows(offerRow("ACCEPTED", &expires, `[]`))
		pool.ExpectRollback()

		_, err := NewOfferStore(tm, time.Hour).Transition(context.Background(), "o1", domain.OfferStatusCanceled, domain.HistoryEntry{Action: domain.HistoryCanceled})
		assert.ErrorIs(t, err, domain.ErrOfferNotPending)
		assertExpectations(t, pool)
	})

	t.Run("pending", func(t *testing.T) {
		tm, pool := newTestTxManager(t)
		pool.ExpectBegin()
		pool.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("o1").
			WillReturnRows(offerRow("PENDING", &expires, `[]`))
		pool.ExpectExec(regexp.QuoteMeta("UPDATE offers SET status")).
			WithArgs("o1", "CANCELED", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		pool.ExpectCommit()

		o, err := NewOfferStore(tm, time.Hour).Transition(context.Background(), "o1", domain.OfferStatusCanceled, domain.HistoryEntry{Action: domain.HistoryCanceled})
		require.NoError(t, err)
		assert.Equal(t, domain.OfferStatusCanceled, o.Status)
		require.Len(t, o.History, 1)
		assertExpectations(t, pool)
	})
}

func TestOfferStore_PendingLockSeesLegacySpellings(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectBegin()
	pool.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	pool.ExpectQuery(regexp.QuoteMeta("pin_id = $1 AND upper(btrim(status)) <> ALL($2::text[])")).
		WithArgs("p1", []string{"ACCEPTED", "CANCELED", "CANCELLED", "DECLINED", "EXPIRED", "REJECTED", "WITHDRAWN"}).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	pool.ExpectRollback()

	offer := &domain.Offer{ID: "o2", PinID: "p1", FromOwner: "buyer", ToOwner: "seller", Amount: 10,
		Status: domain.OfferStatusPending, CreatedAt: time.Now()}
	err := NewOfferStore(tm, time.Hour).Create(context.Background(), offer, true)
	assert.ErrorIs(t, err, domain.ErrPendingOfferExists)
	assertExpectations(t, pool)
}

func TestOfferStore_ListExpiredIncludesLegacyRows(t *testing.T) {
	tm, pool := newTestTxManager(t)
	now := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	pool.ExpectQuery(regexp.QuoteMeta("WHERE upper(btrim(status)) <> ALL($2::text[]) AND COALESCE(expires_at, created_at + make_interval(secs => $3)) <= $1")).
		WithArgs(now, terminalStatuses, float64(86400)).
		WillReturnRows(offerRow("pending", nil, `[]`))

	due, err := NewOfferStore(tm, 24*time.Hour).ListExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, domain.OfferStatusPending, due[0].Status)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), due[0].ExpiresAt)
	assert.True(t, due[0].IsExpired(now))
	assertExpectations(t, pool)
}

func TestOfferStore_ListFiltersStatusAfterNormalization(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectQuery(regexp.QuoteMeta("(from_owner = $1 OR to_owner = $1) AND pin_id = $2")).
		WithArgs("buyer", "p1").
		WillReturnRows(offerRow("Cancelled", nil, `[]`))

	offers, err := NewOfferStore(tm, time.Hour).List(context.Background(), domain.OfferFilter{Owner: "BUYER", PinID: "p1", Status: domain.OfferStatusCanceled})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.True(t, offers[0].ExpiresAt.IsZero())
	assertExpectations(t, pool)
}

func TestPinStore_ReplaceConflict(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectExec(regexp.QuoteMeta("UPDATE pins SET owner = $2, type = $3")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	pool.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM pins")).WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	cur := &domain.Pin{ID: "p1", Owner: "alice", Level: 1}
	next := &domain.Pin{ID: "p1", Owner: "alice", Level: 2}
	err := NewPinStore(tm).Replace(context.Background(), cur, next)
	assert.ErrorIs(t, err, domain.ErrPinOwnerChanged)
	assertExpectations(t, pool)
}

func TestPinStore_GetPinNullColumns(t *testing.T) {
	tm, pool := newTestTxManager(t)
	owner := "Alice"
	pool.ExpectQuery(regexp.QuoteMeta("FROM pins WHERE id = $1")).WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner", "type", "level", "lat", "lng", "color", "created_at", "last_trade_at"}).
			AddRow("p1", &owner, nil, 3, nil, nil, nil, nil, nil))

	pin, err := NewPinStore(tm).GetPin(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", pin.Owner)
	assert.Empty(t, pin.Type)
	assert.Equal(t, 3, pin.Level)
	assert.True(t, pin.CreatedAt.IsZero())
	assertExpectations(t, pool)
}

func TestPinStore_SetOwnerMissing(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectExec(regexp.QuoteMeta("UPDATE pins SET owner = $2, last_trade_at")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewPinStore(tm).SetOwner(context.Background(), "nope", "bob", time.Now())
	assert.ErrorIs(t, err, domain.ErrPinNotFound)
}

func TestEventStore_AppendTrims(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectBegin()
	pool.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec(regexp.QuoteMeta("DELETE FROM events")).WithArgs(domain.MaxEvents).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectCommit()

	event := domain.NewEvent(domain.EventTypeIncomeTick, "note", time.Now())
	require.NoError(t, NewEventStore(tm).Append(context.Background(), event))
	assert.Len(t, event.ID, 32)
	assertExpectations(t, pool)
}

func TestEventStore_ListQueryError(t *testing.T) {
	tm, pool := newTestTxManager(t)
	boom := errors.New("boom")
	pool.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM events")).WillReturnError(boom)

	_, _, err := NewEventStore(tm).List(context.Background(), 10, 0)
	assert.ErrorIs(t, err, boom)
}

func TestULIDGenerator(t *testing.T) {
	g := NewULIDGenerator("")
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "of_", NewULIDGenerator("of_").Generate()[:3])
}

func TestPinLocker_HoldsLockUntilUnlock(t *testing.T) {
	tm, pool := newTestTxManager(t)
	pool.ExpectBegin()
	pool.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock(hashtext('settle:' || $1))")).WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	unlock, err := NewPinLocker(tm).LockPin(context.Background(), "p1")
	require.NoError(t, err)

	pool.ExpectRollback()
	unlock()
	assertExpectations(t, pool)
}

func TestPinLocker_LockError(t *testing.T) {
	tm, pool := newTestTxManager(t)
	lockErr := errors.New("lock timeout")
	pool.ExpectBegin()
	pool.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WithArgs("p1").WillReturnError(lockErr)
	pool.ExpectRollback()

	_, err := NewPinLocker(tm).LockPin(context.Background(), "p1")
	assert.ErrorIs(t, err, lockErr)
	assertExpectations(t, pool)
}
