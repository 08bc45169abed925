package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/worldtycoon/internal/adapter/http"
	"github.com/iho/worldtycoon/internal/adapter/http/handler"
	"github.com/iho/worldtycoon/internal/adapter/http/middleware"
	memoryRepo "github.com/iho/worldtycoon/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/worldtycoon/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/worldtycoon/internal/adapter/repository/redis"
	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/auth"
	"github.com/iho/worldtycoon/internal/infrastructure/catalog"
	"github.com/iho/worldtycoon/internal/infrastructure/config"
	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
	"github.com/iho/worldtycoon/internal/infrastructure/postgres"
	"github.com/iho/worldtycoon/internal/infrastructure/redis"
	"github.com/iho/worldtycoon/internal/infrastructure/scheduler"
	"github.com/iho/worldtycoon/internal/usecase"
)

// stores is the storage driver selected by STORAGE_DRIVER.
type stores struct {
	ledger usecase.LedgerStore
	offers usecase.OfferRepository
	pins   pinStore
	events usecase.EventLog
	locks  usecase.PinLocker
	pool   *pgxpool.Pool
}

type pinStore interface {
	usecase.PinRegistry
	Seed(ctx context.Context, pins []*domain.Pin) (int, error)
}

type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	router      http.Handler
	economy     *usecase.EconomyUseCase
	offers      *usecase.OfferUseCase
	reconcile   *usecase.ReconciliationUseCase
	leases      usecase.LeaseStore
	rateLimiter *middleware.RateLimiter

	pool        *pgxpool.Pool
	redisClient *goredis.Client
	wg          sync.WaitGroup
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, err := openStores(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}
	a.pool = st.pool

	if err := seedPins(ctx, cfg, logger, st.pins); err != nil {
		a.Close()
		return nil, err
	}

	// Connect to Redis
	var idempotencyStore usecase.IdempotencyStore
	a.leases = memoryRepo.NewLeaseStore()
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redisClient = client
		a.leases = redisRepo.NewLeaseStore(client, m)
		idempotencyStore = redisRepo.NewIdempotencyStore(client)
		logger.Info().Msg("connected to redis")
	}

	provider := catalog.NewFileProvider(cfg.CatalogFile)
	idGen := postgresRepo.NewULIDGenerator("")

	// Initialize use cases
	a.economy = usecase.NewEconomyUseCase(st.ledger, st.pins, provider, st.events, cfg.TickInterval(), m, logger)
	a.offers = usecase.NewOfferUseCase(st.offers, st.ledger, st.pins, st.events, idGen, usecase.OfferConfig{
		ExpiryWindow:     cfg.OfferExpiry(),
		MinAmount:        cfg.MinOfferAmount,
		FeePct:           cfg.FeePct(),
		LockPinOnPending: cfg.LockPinOnPending,
	}, m, logger).WithPinLocker(st.locks)
	shopUC := usecase.NewShopUseCase(st.ledger, st.pins, provider, st.events, m, logger)
	ledgerUC := usecase.NewLedgerUseCase(st.ledger, logger)
	a.reconcile = usecase.NewReconciliationUseCase(st.ledger, st.offers, st.pins, cfg.FeePct(), m, logger).
		WithPinLocker(st.locks)

	// Replay settlements interrupted by a previous crash.
	if result, err := a.reconcile.Settle(ctx); err != nil {
		logger.Error().Err(err).Msg("startup settlement failed")
	} else if result.PaidOut+result.Refunded > 0 {
		logger.Warn().Int("paid_out", result.PaidOut).Int("refunded", result.Refunded).Msg("settled interrupted offers")
	}

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}

	a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).WithMetrics(m)

	// Create router
	a.router = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		EconomyHandler:   handler.NewEconomyHandler(a.economy, ledgerUC, a.reconcile, logger),
		OfferHandler:     handler.NewOfferHandler(a.offers, logger),
		ShopHandler:      handler.NewShopHandler(shopUC, logger),
		EventHandler:     handler.NewEventHandler(st.events, logger),
		HealthHandler:    handler.NewHealthHandler(a.pool, a.redisClient),
		RateLimiter:      a.rateLimiter,
		IdempotencyStore: idempotencyStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		JWTManager:       jwtManager,
		Metrics:          m,
		Logger:           logger,
	})

	return a, nil
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*stores, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return openPostgresStores(ctx, cfg, logger, m)
	default:
		return openMemoryStores(cfg)
	}
}

func openMemoryStores(cfg *config.Config) (*stores, error) {
	ledger, err := memoryRepo.NewLedgerStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	offers, err := memoryRepo.NewOfferStore(cfg.DataDir, cfg.OfferExpiry())
	if err != nil {
		return nil, fmt.Errorf("open offers: %w", err)
	}
	pins, err := memoryRepo.NewPinStore(cfg.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open pins: %w", err)
	}
	events, err := memoryRepo.NewEventStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	return &stores{
		ledger: ledger,
		offers: offers,
		pins:   pins,
		events: events,
		locks:  usecase.NewLocalPinLocker(),
	}, nil
}

func openPostgresStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*stores, error) {
	if cfg.RunMigrations {
		if err := postgres.RunMigrations(logger, cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	// Connect to PostgreSQL
	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DatabaseMaxConns,
		MinConns:    cfg.DatabaseMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info().Msg("connected to postgres")

	tm := postgresRepo.NewTxManager(pool, postgresRepo.NewRetrier(logger, m)).WithMetrics(m)
	return &stores{
		ledger: postgresRepo.NewLedgerStore(tm),
		offers: postgresRepo.NewOfferStore(tm, cfg.OfferExpiry()),
		pins:   postgresRepo.NewPinStore(tm),
		events: postgresRepo.NewEventStore(tm),
		locks:  postgresRepo.NewPinLocker(tm),
		pool:   pool,
	}, nil
}

func seedPins(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pins pinStore) error {
	if cfg.PinsSeedFile == "" {
		return nil
	}
	seed, err := catalog.LoadPins(cfg.PinsSeedFile, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("load pin seed: %w", err)
	}
	added, err := pins.Seed(ctx, seed)
	if err != nil {
		return fmt.Errorf("seed pins: %w", err)
	}
	logger.Info().Int("added", added).Int("seed", len(seed)).Msg("seeded pins")
	return nil
}

// startBackground launches the auto-tick loop and the rate limiter sweeper.
// Both stop when ctx is done.
func (a *app) startBackground(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.rateLimiter.RunCleanup(ctx, time.Minute)
	}()

	if !a.cfg.AutoTickEnabled {
		a.logger.Info().Msg("auto tick disabled")
		return
	}

	ticker := scheduler.New(scheduler.Config{
		Economy:       a.economy,
		Offers:        a.offers,
		Leases:        a.leases,
		LeaseTTL:      a.cfg.TickLeaseTTL,
		CheckInterval: a.cfg.AutoTickCheckInterval,
		StartupDelay:  a.cfg.AutoTickStartupDelay,
		Logger:        a.logger,
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := ticker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error().Err(err).Msg("auto tick stopped")
		}
	}()
}

func (a *app) wait() {
	a.wg.Wait()
}

// Close releases external connections.
func (a *app) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
