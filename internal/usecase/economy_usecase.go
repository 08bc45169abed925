package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
)

// Summary is the leaderboard view of the ledger.
type Summary struct {
	LastTick time.Time
	Interval time.Duration
	Totals   []domain.BalanceItem
}

// Health is the scheduler-facing view of the ledger.
type Health struct {
	LastTick time.Time
	NextTick time.Time
	Interval time.Duration
	Balances map[string]int64
}

// TickResult describes one accrual run.
type TickResult struct {
	Summary  *Summary
	Credited map[string]int64
	Total    int64
}

// EconomyUseCase runs income accrual and reports ledger state.
type EconomyUseCase struct {
	ledger   LedgerStore
	pins     PinRegistry
	catalog  CatalogProvider
	events   EventLog
	interval time.Duration
	clock    Clock
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewEconomyUseCase(
	ledger LedgerStore,
	pins PinRegistry,
	catalog CatalogProvider,
	events EventLog,
	interval time.Duration,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *EconomyUseCase {
	return &EconomyUseCase{
		ledger:   ledger,
		pins:     pins,
		catalog:  catalog,
		events:   events,
		interval: interval,
		clock:    systemClock,
		metrics:  metrics,
		logger:   logger.With().Str("component", "economy").Logger(),
	}
}

// WithClock replaces the time source.
func (uc *EconomyUseCase) WithClock(clock Clock) *EconomyUseCase {
	uc.clock = clock
	return uc
}

// Interval returns the configured accrual interval.
func (uc *EconomyUseCase) Interval() time.Duration {
	return uc.interval
}

// Tick credits every owner with the income of their pins. Calling it twice
// credits twice; the scheduler guards against overlapping runs.
func (uc *EconomyUseCase) Tick(ctx context.Context) (*TickResult, error) {
	start := time.Now()

	result, err := uc.tick(ctx)
	if uc.metrics != nil {
		uc.metrics.TickDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			uc.metrics.Ticks.WithLabelValues(domain.KindOf(err).String()).Inc()
		} else {
			uc.metrics.Ticks.WithLabelValues("ok").Inc()
			uc.metrics.IncomeCredited.Add(float64(result.Total))
		}
	}
	return result, err
}

func (uc *EconomyUseCase) tick(ctx context.Context) (*TickResult, error) {
	pins, err := uc.pins.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(pins) == 0 {
		return nil, domain.ErrNoPinsAvailable
	}

	catalog, err := uc.catalog.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, domain.ErrTypeRegistryMissing
	}

	credits := domain.ComputeIncome(pins, catalog)
	var total int64
	for _, amount := range credits {
		total += amount
	}

	// Nobody earns anything: leave lastTick alone.
	if len(credits) > 0 {
		if err := uc.ledger.Accrue(ctx, credits, uc.clock()); err != nil {
			return nil, fmt.Errorf("accrue income: %w", err)
		}
		uc.logger.Info().Int("owners", len(credits)).Int64("total", total).Msg("income accrued")
		notify(ctx, uc.events, uc.clock, uc.logger, domain.EventTypeIncomeTick,
			fmt.Sprintf("%d owners earned £%d", len(credits), total))
	}

	summary, err := uc.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return &TickResult{Summary: summary, Credited: credits, Total: total}, nil
}

// Summary returns all balances, highest first.
func (uc *EconomyUseCase) Summary(ctx context.Context) (*Summary, error) {
	snap, err := uc.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	totals := append([]domain.BalanceItem(nil), snap.Balances...)
	domain.SortBalancesDesc(totals)

	return &Summary{
		LastTick: snap.LastTick,
		Interval: uc.interval,
		Totals:   totals,
	}, nil
}

// Health reports the last and next tick. NextTick is never in the past.
func (uc *EconomyUseCase) Health(ctx context.Context) (*Health, error) {
	snap, err := uc.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := uc.clock()
	next := snap.LastTick.Add(uc.interval)
	if snap.LastTick.IsZero() || !next.After(now) {
		next = now.Add(uc.interval)
	}

	return &Health{
		LastTick: snap.LastTick,
		NextTick: next,
		Interval: uc.interval,
		Balances: snap.BalanceMap(),
	}, nil
}

// Due reports whether the interval has elapsed since the last tick.
func (uc *EconomyUseCase) Due(ctx context.Context) (bool, error) {
	snap, err := uc.ledger.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.LastTick.IsZero() || !uc.clock().Before(snap.LastTick.Add(uc.interval)), nil
}
