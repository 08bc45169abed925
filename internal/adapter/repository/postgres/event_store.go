package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iho/worldtycoon/internal/domain"
)

const (
	insertEventSQL = `
INSERT INTO events (id, at, type, city, note, cooldown_mins)
VALUES ($1, $2, $3, $4, $5, $6)`

	trimEventsSQL = `
DELETE FROM events WHERE seq IN (
	SELECT seq FROM events ORDER BY at DESC, seq DESC OFFSET $1
)`

	countEventsSQL = `SELECT count(*) FROM events`

	selectEventsSQL = `
SELECT id, at, type, city, note, cooldown_mins FROM events
ORDER BY at DESC, seq DESC
LIMIT $1 OFFSET $2`
)

// EventStore implements usecase.EventLog on PostgreSQL, keeping only the
// newest domain.MaxEvents rows.
type EventStore struct {
	tm *TxManager
}

// NewEventStore creates a new EventStore.
func NewEventStore(tm *TxManager) *EventStore {
	return &EventStore{tm: tm}
}

func (s *EventStore) Append(ctx context.Context, event *domain.Event) error {
	if event.ID == "" {
		event.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if event.City == "" {
		event.City = domain.DefaultEventCity
	}

	return s.tm.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertEventSQL,
			event.ID, event.At, event.Type, event.City, event.Note, event.CooldownMins,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, trimEventsSQL, domain.MaxEvents)
		return err
	})
}

func (s *EventStore) List(ctx context.Context, limit, offset int) ([]*domain.Event, int, error) {
	var total int
	if err := s.tm.pool.QueryRow(ctx, countEventsSQL).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.tm.pool.Query(ctx, selectEventsSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]*domain.Event, 0, limit)
	for rows.Next() {
		var (
			e  domain.Event
			at time.Time
		)
		if err := rows.Scan(&e.ID, &at, &e.Type, &e.City, &e.Note, &e.CooldownMins); err != nil {
			return nil, 0, err
		}
		e.At = at.UTC()
		events = append(events, &e)
	}
	return events, total, rows.Err()
}
