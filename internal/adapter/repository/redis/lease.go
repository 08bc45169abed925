package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
	"github.com/iho/worldtycoon/internal/usecase"
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL lapsed cannot drop a lease someone else has taken since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LeaseStore implements usecase.LeaseStore using Redis.
type LeaseStore struct {
	client  *redis.Client
	prefix  string
	metrics *metrics.Metrics
}

// NewLeaseStore creates a new LeaseStore.
func NewLeaseStore(client *redis.Client, m *metrics.Metrics) *LeaseStore {
	return &LeaseStore{
		client:  client,
		prefix:  "lease:",
		metrics: m,
	}
}

// Acquire sets the lease key with NX and a PX expiry. An expired lease is
// reclaimed by Redis itself.
func (s *LeaseStore) Acquire(ctx context.Context, key string, ttl time.Duration) (usecase.Lease, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.prefix+key, token, ttl).Result()
	s.record("lease_acquire", err)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{store: s, key: s.prefix + key, token: token}, true, nil
}

func (s *LeaseStore) record(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RedisOperations.WithLabelValues(op).Inc()
	if err != nil {
		s.metrics.RedisErrors.WithLabelValues(op).Inc()
	}
}

type redisLease struct {
	store *LeaseStore
	key   string
	token string
}

func (l *redisLease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.store.client, []string{l.key}, l.token).Err()
	l.store.record("lease_release", err)
	return err
}
