package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iho/worldtycoon/internal/domain"
)

const eventsFileName = "events.json"

type eventRecord struct {
	ID     string `json:"id"`
	T      int64  `json:"t"`
	Type   string `json:"type"`
	City   string `json:"city"`
	Note   string `json:"note"`
	CdMins int    `json:"cdMins"`
}

// EventStore implements usecase.EventLog, keeping the newest
// domain.MaxEvents entries.
type EventStore struct {
	mu     sync.Mutex
	events []*domain.Event
	file   snapshotFile
}

// NewEventStore loads dir/events.json when dir is set.
func NewEventStore(dir string) (*EventStore, error) {
	s := &EventStore{file: newSnapshotFile(dir, eventsFileName)}

	var records []eventRecord
	ok, err := s.file.load(&records)
	if err != nil {
		return nil, err
	}
	if ok {
		for _, rec := range records {
			s.events = append(s.events, &domain.Event{
				ID:           rec.ID,
				At:           domain.FromEpochMillis(domain.NormalizeEpochMillis(rec.T)),
				Type:         rec.Type,
				City:         rec.City,
				Note:         rec.Note,
				CooldownMins: rec.CdMins,
			})
		}
		if len(s.events) > domain.MaxEvents {
			s.events = s.events[:domain.MaxEvents]
		}
	}
	return s, nil
}

func (s *EventStore) Append(_ context.Context, event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	if e.ID == "" {
		e.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if e.City == "" {
		e.City = domain.DefaultEventCity
	}

	next := make([]*domain.Event, 0, len(s.events)+1)
	next = append(next, &e)
	next = append(next, s.events...)
	if len(next) > domain.MaxEvents {
		next = next[:domain.MaxEvents]
	}

	records := make([]eventRecord, 0, len(next))
	for _, ev := range next {
		records = append(records, eventRecord{
			ID:     ev.ID,
			T:      domain.EpochMillis(ev.At),
			Type:   ev.Type,
			City:   ev.City,
			Note:   ev.Note,
			CdMins: ev.CooldownMins,
		})
	}
	if err := s.file.save(records); err != nil {
		return err
	}

	s.events = next
	event.ID = e.ID
	return nil
}

func (s *EventStore) List(_ context.Context, limit, offset int) ([]*domain.Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.events)
	if offset >= total {
		return []*domain.Event{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]*domain.Event, 0, end-offset)
	for _, ev := range s.events[offset:end] {
		c := *ev
		out = append(out, &c)
	}
	return out, total, nil
}
