package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iho/worldtycoon/internal/usecase"
)

// LeaseStore implements usecase.LeaseStore for a single process.
type LeaseStore struct {
	mu     sync.Mutex
	leases map[string]heldLease
	now    func() time.Time
}

type heldLease struct {
	token     string
	expiresAt time.Time
}

func NewLeaseStore() *LeaseStore {
	return &LeaseStore{
		leases: make(map[string]heldLease),
		now:    time.Now,
	}
}

// Acquire grants the lease when it is free or its holder's TTL has passed.
func (s *LeaseStore) Acquire(_ context.Context, key string, ttl time.Duration) (usecase.Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.leases[key]; ok && now.Before(cur.expiresAt) {
		return nil, false, nil
	}

	token := uuid.NewString()
	s.leases[key] = heldLease{token: token, expiresAt: now.Add(ttl)}
	return &memoryLease{store: s, key: key, token: token}, true, nil
}

type memoryLease struct {
	store *LeaseStore
	key   string
	token string
}

// Release drops the lease if it is still held by this token.
func (l *memoryLease) Release(_ context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if cur, ok := l.store.leases[l.key]; ok && cur.token == l.token {
		delete(l.store.leases, l.key)
	}
	return nil
}
