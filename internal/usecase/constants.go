package usecase

import "time"

const (
	// DefaultOperationTimeout bounds a single store operation started by a use case.
	DefaultOperationTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// TickLeaseKey names the lease guarding income accrual.
	TickLeaseKey = "worldtycoon:autotick"

	systemActor = "system"
)
