package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
)

// EscrowDiscrepancy is an escrow entry whose offer is not PENDING.
type EscrowDiscrepancy struct {
	OfferID string
	Amount  int64
	// Status is empty when the offer does not exist.
	Status domain.OfferStatus
}

// ReconciliationReport compares the escrow sub-ledger with the offer store.
type ReconciliationReport struct {
	TotalBalances        int64
	TotalEscrow          int64
	PendingOffers        int
	OrphanEscrow         []EscrowDiscrepancy
	PendingWithoutEscrow []string
	Consistent           bool
	CheckedAt            time.Time
}

// SettlementResult counts what Settle replayed.
type SettlementResult struct {
	PaidOut   int
	Refunded  int
	Unmatched []string
}

// ReconciliationUseCase finds and repairs escrow left behind by interrupted
// offer transitions.
type ReconciliationUseCase struct {
	ledger  LedgerStore
	offers  OfferRepository
	pins    PinRegistry
	locks   PinLocker
	feePct  decimal.Decimal
	clock   Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	ledger LedgerStore,
	offers OfferRepository,
	pins PinRegistry,
	feePct decimal.Decimal,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		ledger:  ledger,
		offers:  offers,
		pins:    pins,
		locks:   NewLocalPinLocker(),
		feePct:  feePct,
		clock:   systemClock,
		metrics: metrics,
		logger:  logger.With().Str("component", "reconciliation").Logger(),
	}
}

// WithPinLocker replaces the per-pin settlement lock.
func (uc *ReconciliationUseCase) WithPinLocker(locks PinLocker) *ReconciliationUseCase {
	uc.locks = locks
	return uc
}

// Check reports escrow entries without a PENDING offer and PENDING offers
// without escrow. It does not modify anything.
func (uc *ReconciliationUseCase) Check(ctx context.Context) (*ReconciliationReport, error) {
	snap, err := uc.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	offers, err := uc.offers.List(ctx, domain.OfferFilter{})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Offer, len(offers))
	report := &ReconciliationReport{
		TotalBalances:        snap.TotalBalances(),
		TotalEscrow:          snap.TotalEscrow(),
		OrphanEscrow:         make([]EscrowDiscrepancy, 0),
		PendingWithoutEscrow: make([]string, 0),
		CheckedAt:            uc.clock(),
	}

	for _, o := range offers {
		byID[o.ID] = o
		if o.Status != domain.OfferStatusPending {
			continue
		}
		report.PendingOffers++
		if snap.Escrow[o.ID] <= 0 {
			report.PendingWithoutEscrow = append(report.PendingWithoutEscrow, o.ID)
		}
	}

	for _, id := range sortedKeys(snap.Escrow) {
		amount := snap.Escrow[id]
		if amount <= 0 {
			continue
		}
		o, ok := byID[id]
		if ok && o.Status == domain.OfferStatusPending {
			continue
		}
		d := EscrowDiscrepancy{OfferID: id, Amount: amount}
		if ok {
			d.Status = o.Status
		}
		report.OrphanEscrow = append(report.OrphanEscrow, d)
	}

	sort.Strings(report.PendingWithoutEscrow)
	report.Consistent = len(report.OrphanEscrow) == 0 && len(report.PendingWithoutEscrow) == 0
	return report, nil
}

// Settle completes terminal offers that still hold escrow: ACCEPTED offers are
// paid out and their pin handed to the buyer if the seller still owns it,
// every other terminal status is refunded. Running it twice is a no-op.
func (uc *ReconciliationUseCase) Settle(ctx context.Context) (*SettlementResult, error) {
	report, err := uc.Check(ctx)
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{Unmatched: make([]string, 0)}
	for _, d := range report.OrphanEscrow {
		offer, err := uc.offers.GetByID(ctx, d.OfferID)
		if errors.Is(err, domain.ErrOfferNotFound) {
			uc.logger.Warn().Str("offer_id", d.OfferID).Int64("amount", d.Amount).
				Msg("escrow entry has no offer")
			result.Unmatched = append(result.Unmatched, d.OfferID)
			continue
		}
		if err != nil {
			return result, err
		}
		if offer.Status == domain.OfferStatusPending {
			continue
		}

		if offer.Status == domain.OfferStatusAccepted {
			if err := uc.settleAccepted(ctx, offer); err != nil {
				return result, err
			}
			result.PaidOut++
			uc.record("payout")
		} else {
			if _, err := uc.ledger.EscrowRefund(ctx, offer.ID, offer.FromOwner); err != nil {
				return result, fmt.Errorf("refund offer %s: %w", offer.ID, err)
			}
			result.Refunded++
			uc.record("refund")
		}

		if err := uc.offers.AppendHistory(ctx, offer.ID, domain.HistoryEntry{
			At:     uc.clock(),
			Action: domain.HistorySettled,
			Actor:  systemActor,
		}); err != nil {
			uc.logger.Warn().Err(err).Str("offer_id", offer.ID).Msg("failed to record settlement")
		}
		uc.logger.Info().Str("offer_id", offer.ID).Str("status", string(offer.Status)).Msg("escrow settled")
	}

	return result, nil
}

func (uc *ReconciliationUseCase) settleAccepted(ctx context.Context, offer *domain.Offer) error {
	unlock, err := uc.locks.LockPin(ctx, offer.PinID)
	if err != nil {
		return fmt.Errorf("lock pin %s: %w", offer.PinID, err)
	}
	defer unlock()

	net, fee, err := uc.ledger.EscrowPayout(ctx, offer.ID, offer.ToOwner, uc.feePct)
	if err != nil {
		return fmt.Errorf("payout offer %s: %w", offer.ID, err)
	}
	if net+fee == 0 {
		// an in-flight accept finished the settlement while we waited
		return nil
	}

	pin, err := uc.pins.GetPin(ctx, offer.PinID)
	if errors.Is(err, domain.ErrPinNotFound) {
		uc.logger.Warn().Str("offer_id", offer.ID).Str("pin_id", offer.PinID).
			Msg("accepted offer settled but pin is gone")
		return nil
	}
	if err != nil {
		return err
	}
	if pin.OwnedBy(offer.ToOwner) {
		return uc.pins.SetOwner(ctx, offer.PinID, offer.FromOwner, uc.clock())
	}
	return nil
}

func (uc *ReconciliationUseCase) record(outcome string) {
	if uc.metrics != nil {
		uc.metrics.Reconciliation.WithLabelValues(outcome).Inc()
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
