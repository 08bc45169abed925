package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientAppliesURLOptions(t *testing.T) {
	s := miniredis.RunT(t)

	ctx := context.Background()
	client, err := NewClient(ctx, "redis://"+s.Addr()+"/2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 2, client.Options().DB)
	assert.NotZero(t, client.Options().DialTimeout)

	require.NoError(t, client.Set(ctx, "tick:lease", "node-a", 0).Err())
	v, err := s.DB(2).Get("tick:lease")
	require.NoError(t, err)
	assert.Equal(t, "node-a", v)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "://bad-url")
	assert.ErrorContains(t, err, "parse redis URL")
}

func TestNewClientFailsWhenServerIsDown(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := NewClient(context.Background(), "redis://"+addr)
	assert.ErrorContains(t, err, "ping redis")
}
