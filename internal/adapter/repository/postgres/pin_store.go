package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iho/worldtycoon/internal/domain"
)

const (
	pinColumns = `id, owner, type, level, lat, lng, color, created_at, last_trade_at`

	selectPinSQL = `SELECT ` + pinColumns + ` FROM pins WHERE id = $1`

	selectPinsSQL = `SELECT ` + pinColumns + ` FROM pins ORDER BY id`

	setPinOwnerSQL = `UPDATE pins SET owner = $2, last_trade_at = $3 WHERE id = $1`

	replacePinSQL = `
UPDATE pins SET owner = $2, type = $3, level = $4, last_trade_at = $5
WHERE id = $1 AND COALESCE(owner, '') = $6 AND level = $7`

	pinExistsSQL = `SELECT EXISTS (SELECT 1 FROM pins WHERE id = $1)`

	seedPinSQL = `
INSERT INTO pins (` + pinColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`
)

// PinStore implements usecase.PinRegistry on PostgreSQL.
type PinStore struct {
	tm *TxManager
}

// NewPinStore creates a new PinStore.
func NewPinStore(tm *TxManager) *PinStore {
	return &PinStore{tm: tm}
}

func (s *PinStore) GetPin(ctx context.Context, id string) (*domain.Pin, error) {
	pin, err := scanPin(s.tm.pool.QueryRow(ctx, selectPinSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPinNotFound
	}
	return pin, err
}

func (s *PinStore) SetOwner(ctx context.Context, id, owner string, at time.Time) error {
	tag, err := s.tm.pool.Exec(ctx, setPinOwnerSQL, id, nullString(domain.NormalizeOwner(owner)), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPinNotFound
	}
	return nil
}

func (s *PinStore) List(ctx context.Context) ([]*domain.Pin, error) {
	rows, err := s.tm.pool.Query(ctx, selectPinsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pins := make([]*domain.Pin, 0)
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		pins = append(pins, pin)
	}
	return pins, rows.Err()
}

// Replace is a conditional update on the expected owner and level.
func (s *PinStore) Replace(ctx context.Context, expected, next *domain.Pin) error {
	tag, err := s.tm.pool.Exec(ctx, replacePinSQL,
		expected.ID,
		nullString(domain.NormalizeOwner(next.Owner)),
		nullString(next.Type),
		next.Level,
		nullTime(next.LastTradeAt),
		domain.NormalizeOwner(expected.Owner),
		expected.Level,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.tm.pool.QueryRow(ctx, pinExistsSQL, expected.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrPinNotFound
	}
	return domain.ErrPinOwnerChanged
}

// Seed inserts pins that do not exist yet and returns how many were added.
func (s *PinStore) Seed(ctx context.Context, pins []*domain.Pin) (int, error) {
	added := 0
	err := s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		added = 0
		for _, p := range pins {
			tag, err := tx.Exec(ctx, seedPinSQL,
				p.ID,
				nullString(domain.NormalizeOwner(p.Owner)),
				nullString(p.Type),
				domain.ClampLevel(p.Level),
				p.Lat,
				p.Lng,
				nullString(p.Color),
				nullTime(p.CreatedAt),
				nullTime(p.LastTradeAt),
			)
			if err != nil {
				return err
			}
			added += int(tag.RowsAffected())
		}
		return nil
	})
	return added, err
}

func scanPin(row pgx.Row) (*domain.Pin, error) {
	var (
		p                      domain.Pin
		owner, typ, color      *string
		createdAt, lastTradeAt *time.Time
		lat, lng               *float64
	)
	if err := row.Scan(&p.ID, &owner, &typ, &p.Level, &lat, &lng, &color, &createdAt, &lastTradeAt); err != nil {
		return nil, err
	}
	if owner != nil {
		p.Owner = domain.NormalizeOwner(*owner)
	}
	if typ != nil {
		p.Type = *typ
	}
	if color != nil {
		p.Color = *color
	}
	if lat != nil {
		p.Lat = *lat
	}
	if lng != nil {
		p.Lng = *lng
	}
	if createdAt != nil {
		p.CreatedAt = createdAt.UTC()
	}
	if lastTradeAt != nil {
		p.LastTradeAt = lastTradeAt.UTC()
	}
	return &p, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
