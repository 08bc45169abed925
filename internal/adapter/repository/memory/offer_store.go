package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/worldtycoon/internal/domain"
)

const offersFileName = "offers.json"

type historyRecord struct {
	T     int64  `json:"t"`
	A     string `json:"a"`
	Net   *int64 `json:"net,omitempty"`
	Fee   *int64 `json:"fee,omitempty"`
	Actor string `json:"actor,omitempty"`
}

// offerRecord is the on-disk offer. Older files carry createdAt in "t" and
// expiresAt in seconds; both are accepted on load.
type offerRecord struct {
	ID        string          `json:"id"`
	PinID     string          `json:"pinId"`
	FromOwner string          `json:"fromOwner"`
	ToOwner   string          `json:"toOwner"`
	Amount    int64           `json:"amount"`
	Status    string          `json:"status"`
	Note      string          `json:"note,omitempty"`
	CreatedAt int64           `json:"createdAt,omitempty"`
	T         int64           `json:"t,omitempty"`
	ExpiresAt int64           `json:"expiresAt,omitempty"`
	History   []historyRecord `json:"history"`
}

func toOfferRecord(o *domain.Offer) offerRecord {
	rec := offerRecord{
		ID:        o.ID,
		PinID:     o.PinID,
		FromOwner: o.FromOwner,
		ToOwner:   o.ToOwner,
		Amount:    o.Amount,
		Status:    string(o.Status),
		Note:      o.Note,
		CreatedAt: domain.EpochMillis(o.CreatedAt),
		ExpiresAt: domain.EpochMillis(o.ExpiresAt),
		History:   make([]historyRecord, 0, len(o.History)),
	}
	for _, h := range o.History {
		rec.History = append(rec.History, historyRecord{
			T:     domain.EpochMillis(h.At),
			A:     h.Action,
			Net:   h.Net,
			Fee:   h.Fee,
			Actor: h.Actor,
		})
	}
	return rec
}

// fromOfferRecord applies the compatibility rules for stored offers. Records
// without any creation time are treated as created at loadedAt.
func fromOfferRecord(rec offerRecord, expiry time.Duration, loadedAt time.Time) *domain.Offer {
	created := rec.CreatedAt
	if created == 0 {
		created = rec.T
	}
	created = domain.NormalizeEpochMillis(created)
	if created <= 0 {
		created = domain.EpochMillis(loadedAt)
	}

	o := &domain.Offer{
		ID:        rec.ID,
		PinID:     rec.PinID,
		FromOwner: domain.NormalizeOwner(rec.FromOwner),
		ToOwner:   domain.NormalizeOwner(rec.ToOwner),
		Amount:    rec.Amount,
		Status:    domain.ParseOfferStatus(rec.Status),
		Note:      rec.Note,
		CreatedAt: domain.FromEpochMillis(created),
		ExpiresAt: domain.FromEpochMillis(domain.NormalizeEpochMillis(rec.ExpiresAt)),
		History:   make([]domain.HistoryEntry, 0, len(rec.History)),
	}
	if o.ExpiresAt.IsZero() && o.Status == domain.OfferStatusPending && !o.CreatedAt.IsZero() {
		o.ExpiresAt = o.CreatedAt.Add(expiry)
	}
	for _, h := range rec.History {
		o.History = append(o.History, domain.HistoryEntry{
			At:     domain.FromEpochMillis(domain.NormalizeEpochMillis(h.T)),
			Action: h.A,
			Net:    h.Net,
			Fee:    h.Fee,
			Actor:  h.Actor,
		})
	}
	return o
}

// OfferStore implements usecase.OfferRepository.
type OfferStore struct {
	mu     sync.Mutex
	offers map[string]*domain.Offer
	file   snapshotFile
}

// NewOfferStore loads dir/offers.json when dir is set. expiry fills in the
// deadline of PENDING offers stored without one.
func NewOfferStore(dir string, expiry time.Duration) (*OfferStore, error) {
	s := &OfferStore{
		offers: make(map[string]*domain.Offer),
		file:   newSnapshotFile(dir, offersFileName),
	}

	var records []offerRecord
	ok, err := s.file.load(&records)
	if err != nil {
		return nil, err
	}
	if ok {
		loadedAt := time.Now().UTC()
		for _, rec := range records {
			if rec.ID == "" {
				continue
			}
			s.offers[rec.ID] = fromOfferRecord(rec, expiry, loadedAt)
		}
	}
	return s, nil
}

// mutate runs fn against a copy of the offer map and persists it before
// publishing. Caller must hold mu.
func (s *OfferStore) mutate(fn func(offers map[string]*domain.Offer) error) error {
	next := make(map[string]*domain.Offer, len(s.offers)+1)
	for id, o := range s.offers {
		next[id] = o
	}
	if err := fn(next); err != nil {
		return err
	}
	if err := s.file.save(s.document(next)); err != nil {
		return err
	}
	s.offers = next
	return nil
}

func (s *OfferStore) document(offers map[string]*domain.Offer) []offerRecord {
	doc := make([]offerRecord, 0, len(offers))
	for _, o := range sortedOffers(offers) {
		doc = append(doc, toOfferRecord(o))
	}
	return doc
}

func (s *OfferStore) Create(_ context.Context, offer *domain.Offer, lockPin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(offers map[string]*domain.Offer) error {
		if _, exists := offers[offer.ID]; exists {
			return fmt.Errorf("offer %s already exists", offer.ID)
		}
		if lockPin {
			for _, o := range offers {
				if o.PinID == offer.PinID && o.Status == domain.OfferStatusPending {
					return domain.ErrPendingOfferExists
				}
			}
		}
		offers[offer.ID] = offer.Clone()
		return nil
	})
}

func (s *OfferStore) GetByID(_ context.Context, id string) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	return o.Clone(), nil
}

// List returns matching offers, newest first.
func (s *OfferStore) List(_ context.Context, filter domain.OfferFilter) ([]*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Offer, 0)
	for _, o := range sortedOffers(s.offers) {
		if filter.Matches(o) {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (s *OfferStore) ListExpired(_ context.Context, now time.Time) ([]*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Offer, 0)
	for _, o := range sortedOffers(s.offers) {
		if o.IsExpired(now) {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (s *OfferStore) Transition(_ context.Context, id string, status domain.OfferStatus, entry domain.HistoryEntry) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *domain.Offer
	err := s.mutate(func(offers map[string]*domain.Offer) error {
		o, ok := offers[id]
		if !ok {
			return domain.ErrOfferNotFound
		}
		if o.Status != domain.OfferStatusPending {
			return fmt.Errorf("%w: offer is %s", domain.ErrOfferNotPending, o.Status)
		}
		updated = o.Clone()
		updated.Status = status
		updated.History = append(updated.History, entry)
		offers[id] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *OfferStore) AppendHistory(_ context.Context, id string, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(offers map[string]*domain.Offer) error {
		o, ok := offers[id]
		if !ok {
			return domain.ErrOfferNotFound
		}
		updated := o.Clone()
		updated.History = append(updated.History, entry)
		offers[id] = updated
		return nil
	})
}

func sortedOffers(offers map[string]*domain.Offer) []*domain.Offer {
	out := make([]*domain.Offer, 0, len(offers))
	for _, o := range offers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
