package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Offer metrics
	OffersCreated  prometheus.Counter
	OffersResolved *prometheus.CounterVec
	OfferErrors    *prometheus.CounterVec
	OfferDuration  prometheus.Histogram
	OfferAmount    prometheus.Histogram

	// Escrow metrics
	EscrowHeld     prometheus.Counter
	EscrowReleased *prometheus.CounterVec
	FeesBurned     prometheus.Counter

	// Economy metrics
	Ticks          *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	IncomeCredited prometheus.Counter
	ShopActions    *prometheus.CounterVec
	ShopSpend      prometheus.Counter
	Reconciliation *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBQueries *prometheus.CounterVec
	DBErrors  *prometheus.CounterVec
	DBRetries prometheus.Counter

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec

	// Authentication metrics
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		// Offer metrics
		OffersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worldtycoon_offers_created_total",
			Help: "Total number of offers created",
		}),
		OffersResolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_offers_resolved_total",
				Help: "Total number of offers reaching a terminal status",
			},
			[]string{"status"},
		),
		OfferErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_offer_errors_total",
				Help: "Total number of offer operation errors by kind",
			},
			[]string{"operation", "kind"},
		),
		OfferDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worldtycoon_offer_duration_seconds",
			Help:    "Duration of offer operations",
			Buckets: prometheus.DefBuckets,
		}),
		OfferAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worldtycoon_offer_amount",
			Help:    "Offer amounts",
			Buckets: []float64{10, 100, 1000, 10000, 100000, 1000000},
		}),

		// Escrow metrics
		EscrowHeld: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worldtycoon_escrow_held_total",
			Help: "Total currency moved into escrow",
		}),
		EscrowReleased: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_escrow_released_total",
				Help: "Total currency released from escrow",
			},
			[]string{"outcome"},
		),
		FeesBurned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worldtycoon_fees_burned_total",
			Help: "Total trade fees removed from circulation",
		}),

		// Economy metrics
		Ticks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_ticks_total",
				Help: "Income accrual runs by result",
			},
			[]string{"result"},
		),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worldtycoon_tick_duration_seconds",
			Help:    "Duration of income accrual runs",
			Buckets: prometheus.DefBuckets,
		}),
		IncomeCredited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worldtycoon_income_credited_total",
			Help: "Total currency injected by income accrual",
		}),
		ShopActions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_shop_actions_total",
				Help: "Shop purchases and upgrades",
			},
			[]string{"action"},
		),
		ShopSpend: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worldtycoon_shop_spend_total",
			Help: "Total currency burned by shop purchases and upgrades",
		}),
		Reconciliation: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_reconciliation_settled_total",
				Help: "Escrow entries settled by reconciliation",
			},
			[]string{"outcome"},
		),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worldtycoon_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Database metrics
		DBQueries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_db_queries_total",
				Help: "Total database transactions",
			},
			[]string{"operation"},
		),
		DBErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_db_errors_total",
				Help: "Total database errors",
			},
			[]string{"operation"},
		),
		DBRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worldtycoon_db_retries_total",
			Help: "Transactions retried after serialization failures or deadlocks",
		}),

		// Redis metrics
		RedisOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),

		// Authentication metrics
		AuthFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldtycoon_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),
	}
}
