package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/usecase"
)

// Economy is the accrual side the ticker drives.
type Economy interface {
	Due(ctx context.Context) (bool, error)
	Tick(ctx context.Context) (*usecase.TickResult, error)
}

// OfferSweeper expires overdue offers.
type OfferSweeper interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Config for AutoTicker.
type Config struct {
	Economy       Economy
	Offers        OfferSweeper // optional
	Leases        usecase.LeaseStore
	LeaseKey      string
	LeaseTTL      time.Duration
	CheckInterval time.Duration
	StartupDelay  time.Duration
	Logger        zerolog.Logger
}

// AutoTicker runs income accrual whenever the interval has elapsed. Only one
// process holding the lease ticks at a time.
type AutoTicker struct {
	economy       Economy
	offers        OfferSweeper
	leases        usecase.LeaseStore
	leaseKey      string
	leaseTTL      time.Duration
	checkInterval time.Duration
	startupDelay  time.Duration
	logger        zerolog.Logger
}

// CycleResult reports what one check did.
type CycleResult struct {
	Expired int
	Ticked  bool
	Skipped string
}

// New creates a new AutoTicker.
func New(cfg Config) *AutoTicker {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	if cfg.LeaseKey == "" {
		cfg.LeaseKey = usecase.TickLeaseKey
	}

	return &AutoTicker{
		economy:       cfg.Economy,
		offers:        cfg.Offers,
		leases:        cfg.Leases,
		leaseKey:      cfg.LeaseKey,
		leaseTTL:      cfg.LeaseTTL,
		checkInterval: cfg.CheckInterval,
		startupDelay:  cfg.StartupDelay,
		logger:        cfg.Logger.With().Str("component", "autotick").Logger(),
	}
}

// Start runs the check loop until ctx is cancelled.
func (a *AutoTicker) Start(ctx context.Context) error {
	a.logger.Info().
		Dur("check_interval", a.checkInterval).
		Dur("startup_delay", a.startupDelay).
		Msg("auto tick started")

	if a.startupDelay > 0 {
		timer := time.NewTimer(a.startupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info().Msg("auto tick shutting down")
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	a.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("auto tick shutting down")
			return ctx.Err()
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce performs one check. Failures and panics are logged and never escape.
func (a *AutoTicker) RunOnce(ctx context.Context) (result CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("auto tick cycle panicked")
			result.Skipped = fmt.Sprintf("panic: %v", r)
		}
	}()

	if a.offers != nil {
		expired, err := a.offers.ExpireDue(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Msg("offer expiry sweep failed")
		}
		result.Expired = expired
	}

	due, err := a.economy.Due(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to check tick schedule")
		result.Skipped = "schedule check failed"
		return result
	}
	if !due {
		result.Skipped = "not due"
		return result
	}

	lease, ok, err := a.leases.Acquire(ctx, a.leaseKey, a.leaseTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to acquire tick lease")
		result.Skipped = "lease error"
		return result
	}
	if !ok {
		a.logger.Debug().Msg("tick lease held elsewhere")
		result.Skipped = "lease held"
		return result
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn().Err(err).Msg("failed to release tick lease")
		}
	}()

	// Another holder may have ticked between the check and the lease.
	if due, err = a.economy.Due(ctx); err != nil || !due {
		if err != nil {
			a.logger.Error().Err(err).Msg("failed to recheck tick schedule")
		}
		result.Skipped = "not due"
		return result
	}

	tick, err := a.economy.Tick(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("auto tick failed")
		result.Skipped = "tick failed"
		return result
	}

	result.Ticked = true
	a.logger.Info().
		Int("owners", len(tick.Credited)).
		Int64("total", tick.Total).
		Msg("auto tick completed")
	return result
}
