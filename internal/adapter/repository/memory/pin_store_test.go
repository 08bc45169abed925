package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/usecase"
)

var _ usecase.PinRegistry = (*PinStore)(nil)

func TestPinStore_SeedAndSetOwner(t *testing.T) {
	ctx := context.Background()
	s, err := NewPinStore("", []*domain.Pin{
		{ID: "p2", Owner: "Alice", Type: "shop", Level: 2},
		{ID: "p1"},
	})
	require.NoError(t, err)

	pins, _ := s.List(ctx)
	require.Len(t, pins, 2)
	assert.Equal(t, "p1", pins[0].ID)

	at := time.Now().UTC()
	require.NoError(t, s.SetOwner(ctx, "p2", "BOB", at))
	p, err := s.GetPin(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Owner)
	assert.True(t, p.LastTradeAt.Equal(at))

	_, err = s.GetPin(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrPinNotFound)
	assert.ErrorIs(t, s.SetOwner(ctx, "nope", "bob", at), domain.ErrPinNotFound)
}

func TestPinStore_ReplaceChecksOwnerAndLevel(t *testing.T) {
	ctx := context.Background()
	s, _ := NewPinStore("", []*domain.Pin{{ID: "p1", Owner: "alice", Type: "shop", Level: 1}})

	cur, _ := s.GetPin(ctx, "p1")
	next := cur.Clone()
	next.Level = 2
	require.NoError(t, s.Replace(ctx, cur, next))

	// cur is now stale
	again := cur.Clone()
	again.Level = 2
	assert.ErrorIs(t, s.Replace(ctx, cur, again), domain.ErrPinOwnerChanged)

	p, _ := s.GetPin(ctx, "p1")
	assert.Equal(t, 2, p.Level)
}

func TestPinStore_PersistsAndPrefersDataFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewPinStore(dir, []*domain.Pin{{ID: "p1"}})
	require.NoError(t, err)
	require.NoError(t, s.SetOwner(ctx, "p1", "alice", time.Now().UTC()))

	reloaded, err := NewPinStore(dir, []*domain.Pin{{ID: "seed-only"}})
	require.NoError(t, err)
	pins, _ := reloaded.List(ctx)
	require.Len(t, pins, 1)
	assert.Equal(t, "alice", pins[0].Owner)
}

func TestPinStore_SeedSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s, err := NewPinStore("", []*domain.Pin{{ID: "p1", Owner: "alice", Level: 3}})
	require.NoError(t, err)

	added, err := s.Seed(ctx, []*domain.Pin{
		{ID: "p1", Owner: "mallory", Level: 1},
		{ID: "p2", Owner: "Bob", Level: 0},
		{Owner: "ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	p1, err := s.GetPin(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p1.Owner)

	p2, err := s.GetPin(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "bob", p2.Owner)
	assert.Equal(t, domain.MinPinLevel, p2.Level)
}
