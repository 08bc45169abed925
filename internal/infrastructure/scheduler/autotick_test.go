package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/iho/worldtycoon/internal/usecase"
	"github.com/iho/worldtycoon/internal/usecase/mocks"
)

type stubEconomy struct {
	mu      sync.Mutex
	due     []bool
	dueErr  error
	tickErr error
	ticks   int
	panicOn bool
}

func (s *stubEconomy) Due(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn {
		panic("boom")
	}
	if s.dueErr != nil {
		return false, s.dueErr
	}
	if len(s.due) == 0 {
		return false, nil
	}
	d := s.due[0]
	if len(s.due) > 1 {
		s.due = s.due[1:]
	}
	return d, nil
}

func (s *stubEconomy) Tick(context.Context) (*usecase.TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickErr != nil {
		return nil, s.tickErr
	}
	s.ticks++
	return &usecase.TickResult{Credited: map[string]int64{"alice": 20}, Total: 20}, nil
}

func (s *stubEconomy) tickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

type stubSweeper struct {
	calls int
	err   error
}

func (s *stubSweeper) ExpireDue(context.Context) (int, error) {
	s.calls++
	return 2, s.err
}

func newTestTicker(economy Economy, sweeper OfferSweeper, leases usecase.LeaseStore) *AutoTicker {
	cfg := Config{
		Economy:       economy,
		Leases:        leases,
		CheckInterval: 10 * time.Millisecond,
		LeaseTTL:      time.Minute,
		Logger:        zerolog.Nop(),
	}
	if sweeper != nil {
		cfg.Offers = sweeper
	}
	return New(cfg)
}

func TestRunOnceTicksUnderLease(t *testing.T) {
	ctrl := gomock.NewController(t)
	leases := mocks.NewMockLeaseStore(ctrl)
	lease := mocks.NewMockLease(ctrl)

	gomock.InOrder(
		leases.EXPECT().Acquire(gomock.Any(), usecase.TickLeaseKey, time.Minute).Return(lease, true, nil),
		lease.EXPECT().Release(gomock.Any()).Return(nil),
	)

	economy := &stubEconomy{due: []bool{true}}
	sweeper := &stubSweeper{}
	result := newTestTicker(economy, sweeper, leases).RunOnce(context.Background())

	if !result.Ticked || result.Expired != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if economy.tickCount() != 1 {
		t.Fatalf("expected one tick, got %d", economy.tickCount())
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected expiry sweep to run once, got %d", sweeper.calls)
	}
}

func TestRunOnceSkipsWhenNotDue(t *testing.T) {
	ctrl := gomock.NewController(t)
	leases := mocks.NewMockLeaseStore(ctrl)

	economy := &stubEconomy{due: []bool{false}}
	result := newTestTicker(economy, nil, leases).RunOnce(context.Background())

	if result.Ticked || result.Skipped != "not due" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunOnceSkipsWhenLeaseHeld(t *testing.T) {
	ctrl := gomock.NewController(t)
	leases := mocks.NewMockLeaseStore(ctrl)
	leases.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, false, nil)

	economy := &stubEconomy{due: []bool{true}}
	result := newTestTicker(economy, nil, leases).RunOnce(context.Background())

	if result.Ticked || result.Skipped != "lease held" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if economy.tickCount() != 0 {
		t.Fatalf("expected no tick while lease is held")
	}
}

func TestRunOnceRechecksAfterLease(t *testing.T) {
	ctrl := gomock.NewController(t)
	leases := mocks.NewMockLeaseStore(ctrl)
	lease := mocks.NewMockLease(ctrl)
	leases.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(lease, true, nil)
	lease.EXPECT().Release(gomock.Any()).Return(nil)

	economy := &stubEconomy{due: []bool{true, false}}
	result := newTestTicker(economy, nil, leases).RunOnce(context.Background())

	if result.Ticked {
		t.Fatalf("expected no tick after recheck, got %+v", result)
	}
}

func TestRunOnceReleasesLeaseOnTickFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	leases := mocks.NewMockLeaseStore(ctrl)
	lease := mocks.NewMockLease(ctrl)
	leases.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(lease, true, nil)
	lease.EXPECT().Release(gomock.Any()).Return(errors.New("release failed"))

	economy := &stubEconomy{due: []bool{true}, tickErr: errors.New("no pins")}
	result := newTestTicker(economy, nil, leases).RunOnce(context.Background())

	if result.Ticked || result.Skipped != "tick failed" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	tests := []struct {
		name    string
		economy *stubEconomy
		setup   func(*mocks.MockLeaseStore)
		skipped string
	}{
		{
			name:    "schedule check fails",
			economy: &stubEconomy{dueErr: errors.New("db down")},
			setup:   func(*mocks.MockLeaseStore) {},
			skipped: "schedule check failed",
		},
		{
			name:    "lease store fails",
			economy: &stubEconomy{due: []bool{true}},
			setup: func(m *mocks.MockLeaseStore) {
				m.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, false, errors.New("redis down"))
			},
			skipped: "lease error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			leases := mocks.NewMockLeaseStore(ctrl)
			tt.setup(leases)

			sweeper := &stubSweeper{err: errors.New("sweep failed")}
			result := newTestTicker(tt.economy, sweeper, leases).RunOnce(context.Background())
			if result.Skipped != tt.skipped {
				t.Fatalf("expected skipped %q, got %+v", tt.skipped, result)
			}
		})
	}
}

func TestRunOnceRecoversPanic(t *testing.T) {
	ctrl := gomock.NewController(t)
	leases := mocks.NewMockLeaseStore(ctrl)

	result := newTestTicker(&stubEconomy{panicOn: true}, nil, leases).RunOnce(context.Background())
	if result.Skipped == "" || result.Ticked {
		t.Fatalf("expected panic to be reported as skipped, got %+v", result)
	}
}

func TestStartStopsOnContextCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	leases := mocks.NewMockLeaseStore(ctrl)
	lease := mocks.NewMockLease(ctrl)
	leases.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(lease, true, nil).AnyTimes()
	lease.EXPECT().Release(gomock.Any()).Return(nil).AnyTimes()

	economy := &stubEconomy{due: []bool{true}}
	ticker := newTestTicker(economy, nil, leases)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ticker.Start(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for economy.tickCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("auto tick did not stop after cancel")
	}

	if economy.tickCount() < 2 {
		t.Fatalf("expected repeated ticks, got %d", economy.tickCount())
	}
}

func TestStartHonoursStartupDelay(t *testing.T) {
	ctrl := gomock.NewController(t)
	leases := mocks.NewMockLeaseStore(ctrl)

	economy := &stubEconomy{due: []bool{true}}
	ticker := New(Config{
		Economy:      economy,
		Leases:       leases,
		StartupDelay: time.Hour,
		Logger:       zerolog.Nop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := ticker.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if economy.tickCount() != 0 {
		t.Fatalf("expected no tick during startup delay")
	}
}
