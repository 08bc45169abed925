package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iho/worldtycoon/internal/domain"
)

const pinsFileName = "pins.json"

type pinRecord struct {
	ID          string  `json:"id"`
	Owner       *string `json:"owner"`
	Type        *string `json:"type"`
	Level       int     `json:"level"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Color       string  `json:"color,omitempty"`
	CreatedAt   int64   `json:"createdAt,omitempty"`
	LastTradeAt int64   `json:"lastTradeAt,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toPinRecord(p *domain.Pin) pinRecord {
	return pinRecord{
		ID:          p.ID,
		Owner:       optional(p.Owner),
		Type:        optional(p.Type),
		Level:       p.Level,
		Lat:         p.Lat,
		Lng:         p.Lng,
		Color:       p.Color,
		CreatedAt:   domain.EpochMillis(p.CreatedAt),
		LastTradeAt: domain.EpochMillis(p.LastTradeAt),
	}
}

func fromPinRecord(rec pinRecord) *domain.Pin {
	level := rec.Level
	if level == 0 {
		level = domain.MinPinLevel
	}
	return &domain.Pin{
		ID:          rec.ID,
		Owner:       domain.NormalizeOwner(deref(rec.Owner)),
		Type:        deref(rec.Type),
		Level:       level,
		Lat:         rec.Lat,
		Lng:         rec.Lng,
		Color:       rec.Color,
		CreatedAt:   domain.FromEpochMillis(domain.NormalizeEpochMillis(rec.CreatedAt)),
		LastTradeAt: domain.FromEpochMillis(domain.NormalizeEpochMillis(rec.LastTradeAt)),
	}
}

// PinStore implements usecase.PinRegistry.
type PinStore struct {
	mu   sync.Mutex
	pins map[string]*domain.Pin
	file snapshotFile
}

// NewPinStore loads dir/pins.json when dir is set. When that file does not
// exist the pins from seed are used instead.
func NewPinStore(dir string, seed []*domain.Pin) (*PinStore, error) {
	s := &PinStore{
		pins: make(map[string]*domain.Pin),
		file: newSnapshotFile(dir, pinsFileName),
	}

	var records []pinRecord
	ok, err := s.file.load(&records)
	if err != nil {
		return nil, err
	}
	if ok {
		for _, rec := range records {
			if rec.ID != "" {
				s.pins[rec.ID] = fromPinRecord(rec)
			}
		}
		return s, nil
	}

	for _, p := range seed {
		if p.ID != "" {
			s.pins[p.ID] = p.Clone()
		}
	}
	return s, nil
}

func (s *PinStore) mutate(fn func(pins map[string]*domain.Pin) error) error {
	next := make(map[string]*domain.Pin, len(s.pins))
	for id, p := range s.pins {
		next[id] = p
	}
	if err := fn(next); err != nil {
		return err
	}

	records := make([]pinRecord, 0, len(next))
	for _, p := range sortedPins(next) {
		records = append(records, toPinRecord(p))
	}
	if err := s.file.save(records); err != nil {
		return err
	}
	s.pins = next
	return nil
}

func (s *PinStore) GetPin(_ context.Context, id string) (*domain.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pins[id]
	if !ok {
		return nil, domain.ErrPinNotFound
	}
	return p.Clone(), nil
}

func (s *PinStore) SetOwner(_ context.Context, id, owner string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(pins map[string]*domain.Pin) error {
		p, ok := pins[id]
		if !ok {
			return domain.ErrPinNotFound
		}
		updated := p.Clone()
		updated.Owner = domain.NormalizeOwner(owner)
		updated.LastTradeAt = at
		pins[id] = updated
		return nil
	})
}

func (s *PinStore) List(_ context.Context) ([]*domain.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Pin, 0, len(s.pins))
	for _, p := range sortedPins(s.pins) {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *PinStore) Replace(_ context.Context, expected, next *domain.Pin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(pins map[string]*domain.Pin) error {
		cur, ok := pins[expected.ID]
		if !ok {
			return domain.ErrPinNotFound
		}
		if !domain.SameOwner(cur.Owner, expected.Owner) || cur.Level != expected.Level {
			return domain.ErrPinOwnerChanged
		}
		stored := next.Clone()
		stored.ID = expected.ID
		stored.Owner = domain.NormalizeOwner(stored.Owner)
		pins[expected.ID] = stored
		return nil
	})
}

// Seed inserts pins that do not exist yet and returns how many were added.
func (s *PinStore) Seed(_ context.Context, seed []*domain.Pin) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	err := s.mutate(func(pins map[string]*domain.Pin) error {
		for _, p := range seed {
			if p.ID == "" {
				continue
			}
			if _, ok := pins[p.ID]; ok {
				continue
			}
			stored := p.Clone()
			stored.Owner = domain.NormalizeOwner(stored.Owner)
			stored.Level = domain.ClampLevel(stored.Level)
			pins[p.ID] = stored
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func sortedPins(pins map[string]*domain.Pin) []*domain.Pin {
	out := make([]*domain.Pin, 0, len(pins))
	for _, p := range pins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
