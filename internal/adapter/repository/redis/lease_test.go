package redis

import (
	"context"
	"testing"
	"time"
)

func TestLeaseStore_AcquireIsExclusive(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	store := NewLeaseStore(client, nil)
	ctx := context.Background()

	lease, ok, err := store.Acquire(ctx, "tick", time.Minute)
	if err != nil || !ok || lease == nil {
		t.Fatalf("expected first acquire to succeed: ok=%v err=%v", ok, err)
	}

	if _, ok, err := store.Acquire(ctx, "tick", time.Minute); err != nil || ok {
		t.Fatalf("expected second acquire to fail: ok=%v err=%v", ok, err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if mr.Exists(store.prefix + "tick") {
		t.Fatalf("expected lease key to be deleted")
	}

	if _, ok, err := store.Acquire(ctx, "tick", time.Minute); err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed: ok=%v err=%v", ok, err)
	}
}

func TestLeaseStore_StaleLeaseIsReclaimed(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	store := NewLeaseStore(client, nil)
	ctx := context.Background()

	if _, ok, _ := store.Acquire(ctx, "tick", 10*time.Minute); !ok {
		t.Fatalf("expected acquire to succeed")
	}

	mr.FastForward(11 * time.Minute)

	if _, ok, err := store.Acquire(ctx, "tick", 10*time.Minute); err != nil || !ok {
		t.Fatalf("expected stale lease to be reclaimed: ok=%v err=%v", ok, err)
	}
}

func TestLeaseStore_ReleaseKeepsForeignLease(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	store := NewLeaseStore(client, nil)
	ctx := context.Background()

	old, _, _ := store.Acquire(ctx, "tick", time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, ok, _ := store.Acquire(ctx, "tick", time.Minute); !ok {
		t.Fatalf("expected new holder to acquire")
	}

	if err := old.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !mr.Exists(store.prefix + "tick") {
		t.Fatalf("expired holder must not release the new lease")
	}
}

func TestLeaseStore_AcquireError(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer client.Close()
	mr.Close()

	if _, _, err := NewLeaseStore(client, nil).Acquire(context.Background(), "tick", time.Minute); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
