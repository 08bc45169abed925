package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iho/worldtycoon/internal/domain"
)

const (
	offerColumns = `id, pin_id, from_owner, to_owner, amount, status, note, created_at, expires_at, history`

	lockPinOffersSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

	// Stored statuses may use legacy spellings. A row is pending unless its
	// normalized status is one of the terminal spellings bound as an array.
	pendingStatusPredicate = `upper(btrim(status)) <> ALL(%s::text[])`

	// Rows stored without a deadline expire one window after creation.
	effectiveExpirySQL = `COALESCE(expires_at, created_at + make_interval(secs => $3))`

	insertOfferSQL = `
INSERT INTO offers (` + offerColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectOfferSQL = `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	selectOfferForUpdateSQL = selectOfferSQL + ` FOR UPDATE`

	updateOfferStatusSQL = `UPDATE offers SET status = $2, history = $3 WHERE id = $1`

	appendHistorySQL = `UPDATE offers SET history = history || $2::jsonb WHERE id = $1`
)

type historyJSON struct {
	T     int64  `json:"t"`
	A     string `json:"a"`
	Net   *int64 `json:"net,omitempty"`
	Fee   *int64 `json:"fee,omitempty"`
	Actor string `json:"actor,omitempty"`
}

func encodeHistory(entries []domain.HistoryEntry) ([]byte, error) {
	out := make([]historyJSON, 0, len(entries))
	for _, h := range entries {
		out = append(out, historyJSON{
			T:     domain.EpochMillis(h.At),
			A:     h.Action,
			Net:   h.Net,
			Fee:   h.Fee,
			Actor: h.Actor,
		})
	}
	return json.Marshal(out)
}

func decodeHistory(raw []byte) ([]domain.HistoryEntry, error) {
	entries := make([]domain.HistoryEntry, 0)
	if len(raw) == 0 {
		return entries, nil
	}
	var records []historyJSON
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode offer history: %w", err)
	}
	for _, r := range records {
		entries = append(entries, domain.HistoryEntry{
			At:     domain.FromEpochMillis(domain.NormalizeEpochMillis(r.T)),
			Action: r.A,
			Net:    r.Net,
			Fee:    r.Fee,
			Actor:  r.Actor,
		})
	}
	return entries, nil
}

var (
	pendingExistsSQL = `SELECT EXISTS (SELECT 1 FROM offers WHERE pin_id = $1 AND ` +
		fmt.Sprintf(pendingStatusPredicate, "$2") + `)`

	selectExpiredSQL = `
SELECT ` + offerColumns + ` FROM offers
WHERE ` + fmt.Sprintf(pendingStatusPredicate, "$2") + ` AND ` + effectiveExpirySQL + ` <= $1
ORDER BY ` + effectiveExpirySQL

	terminalStatuses = domain.TerminalStatusSpellings()
)

// OfferStore implements usecase.OfferRepository on PostgreSQL.
type OfferStore struct {
	tm     *TxManager
	expiry time.Duration
}

// NewOfferStore creates a new OfferStore. expiry fills in the deadline of
// PENDING rows stored without one.
func NewOfferStore(tm *TxManager, expiry time.Duration) *OfferStore {
	return &OfferStore{tm: tm, expiry: expiry}
}

// Create inserts a PENDING offer. With lockPin, a transaction-scoped advisory
// lock on the pin serializes concurrent creates before the pending check.
func (s *OfferStore) Create(ctx context.Context, offer *domain.Offer, lockPin bool) error {
	history, err := encodeHistory(offer.History)
	if err != nil {
		return err
	}

	return s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		if lockPin {
			if _, err := tx.Exec(ctx, lockPinOffersSQL, offer.PinID); err != nil {
				return err
			}
			var exists bool
			if err := tx.QueryRow(ctx, pendingExistsSQL, offer.PinID, terminalStatuses).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return domain.ErrPendingOfferExists
			}
		}

		_, err := tx.Exec(ctx, insertOfferSQL,
			offer.ID,
			offer.PinID,
			domain.NormalizeOwner(offer.FromOwner),
			domain.NormalizeOwner(offer.ToOwner),
			offer.Amount,
			string(offer.Status),
			offer.Note,
			offer.CreatedAt,
			nullTime(offer.ExpiresAt),
			history,
		)
		return err
	})
}

func (s *OfferStore) GetByID(ctx context.Context, id string) (*domain.Offer, error) {
	offer, err := s.scanOffer(s.tm.pool.QueryRow(ctx, selectOfferSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOfferNotFound
	}
	return offer, err
}

// List returns matching offers, newest first.
func (s *OfferStore) List(ctx context.Context, filter domain.OfferFilter) ([]*domain.Offer, error) {
	var (
		where []string
		args  []any
	)
	if filter.Owner != "" {
		args = append(args, domain.NormalizeOwner(filter.Owner))
		where = append(where, fmt.Sprintf("(from_owner = $%d OR to_owner = $%d)", len(args), len(args)))
	}
	if filter.PinID != "" {
		args = append(args, filter.PinID)
		where = append(where, fmt.Sprintf("pin_id = $%d", len(args)))
	}

	query := `SELECT ` + offerColumns + ` FROM offers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	offers, err := s.queryOffers(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Status is matched after normalization so legacy spellings still filter.
	if filter.Status == "" {
		return offers, nil
	}
	out := offers[:0]
	for _, o := range offers {
		if o.Status == filter.Status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *OfferStore) ListExpired(ctx context.Context, now time.Time) ([]*domain.Offer, error) {
	return s.queryOffers(ctx, selectExpiredSQL, now, terminalStatuses, s.expiry.Seconds())
}

// Transition moves a PENDING offer to status under a row lock.
func (s *OfferStore) Transition(ctx context.Context, id string, status domain.OfferStatus, entry domain.HistoryEntry) (*domain.Offer, error) {
	var updated *domain.Offer
	err := s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		offer, err := s.scanOffer(tx.QueryRow(ctx, selectOfferForUpdateSQL, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOfferNotFound
		}
		if err != nil {
			return err
		}
		if offer.Status != domain.OfferStatusPending {
			return fmt.Errorf("%w: offer is %s", domain.ErrOfferNotPending, offer.Status)
		}

		offer.Status = status
		offer.History = append(offer.History, entry)
		history, err := encodeHistory(offer.History)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, updateOfferStatusSQL, id, string(status), history); err != nil {
			return err
		}
		updated = offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *OfferStore) AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error {
	raw, err := encodeHistory([]domain.HistoryEntry{entry})
	if err != nil {
		return err
	}
	tag, err := s.tm.pool.Exec(ctx, appendHistorySQL, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOfferNotFound
	}
	return nil
}

func (s *OfferStore) queryOffers(ctx context.Context, query string, args ...any) ([]*domain.Offer, error) {
	rows, err := s.tm.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := make([]*domain.Offer, 0)
	for rows.Next() {
		offer, err := s.scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}

// scanOffer reads one row and applies the same compatibility rules as the
// file store: legacy status spellings and missing PENDING deadlines.
func (s *OfferStore) scanOffer(row pgx.Row) (*domain.Offer, error) {
	var (
		o         domain.Offer
		status    string
		createdAt time.Time
		expiresAt *time.Time
		history   []byte
	)
	if err := row.Scan(&o.ID, &o.PinID, &o.FromOwner, &o.ToOwner, &o.Amount, &status, &o.Note, &createdAt, &expiresAt, &history); err != nil {
		return nil, err
	}

	o.Status = domain.ParseOfferStatus(status)
	o.CreatedAt = createdAt.UTC()
	if expiresAt != nil {
		o.ExpiresAt = expiresAt.UTC()
	} else if o.Status == domain.OfferStatusPending {
		o.ExpiresAt = o.CreatedAt.Add(s.expiry)
	}

	entries, err := decodeHistory(history)
	if err != nil {
		return nil, err
	}
	o.History = entries
	return &o, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
