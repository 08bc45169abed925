package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
)

// OfferConfig holds the trading parameters.
type OfferConfig struct {
	ExpiryWindow     time.Duration
	MinAmount        int64
	FeePct           decimal.Decimal
	LockPinOnPending bool
}

// CreateOfferInput is the request to open an offer.
type CreateOfferInput struct {
	PinID     string
	FromOwner string
	ToOwner   string
	Amount    int64
	Note      string
}

// OfferUseCase runs the escrow-backed offer lifecycle.
//
// Every transition out of PENDING goes through OfferRepository.Transition,
// which only succeeds once per offer. The stored terminal status is the
// settlement intent: ledger effects are applied after the status flips, and
// ReconciliationUseCase.Settle replays them if the process dies in between.
type OfferUseCase struct {
	offers  OfferRepository
	ledger  LedgerStore
	pins    PinRegistry
	events  EventLog
	idGen   IDGenerator
	locks   PinLocker
	cfg     OfferConfig
	clock   Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewOfferUseCase(
	offers OfferRepository,
	ledger LedgerStore,
	pins PinRegistry,
	events EventLog,
	idGen IDGenerator,
	cfg OfferConfig,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *OfferUseCase {
	return &OfferUseCase{
		offers:  offers,
		ledger:  ledger,
		pins:    pins,
		events:  events,
		idGen:   idGen,
		locks:   NewLocalPinLocker(),
		cfg:     cfg,
		clock:   systemClock,
		metrics: metrics,
		logger:  logger.With().Str("component", "offers").Logger(),
	}
}

// WithClock replaces the time source.
func (uc *OfferUseCase) WithClock(clock Clock) *OfferUseCase {
	uc.clock = clock
	return uc
}

// WithPinLocker replaces the per-pin settlement lock. Share one locker with
// ReconciliationUseCase.
func (uc *OfferUseCase) WithPinLocker(locks PinLocker) *OfferUseCase {
	uc.locks = locks
	return uc
}

// Config returns the trading parameters.
func (uc *OfferUseCase) Config() OfferConfig {
	return uc.cfg
}

// Create validates the offer, holds the buyer's funds in escrow and persists
// the offer as PENDING.
func (uc *OfferUseCase) Create(ctx context.Context, in CreateOfferInput) (*domain.Offer, error) {
	start := time.Now()

	offer, err := uc.create(ctx, in)
	if err != nil {
		uc.recordError("create", err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.OffersCreated.Inc()
		uc.metrics.OfferAmount.Observe(float64(offer.Amount))
		uc.metrics.EscrowHeld.Add(float64(offer.Amount))
		uc.metrics.OfferDuration.Observe(time.Since(start).Seconds())
	}

	uc.logger.Info().
		Str("offer_id", offer.ID).
		Str("pin_id", offer.PinID).
		Int64("amount", offer.Amount).
		Msg("offer created")
	uc.notify(ctx, domain.EventTypeOfferCreated, domain.OfferNote(offer))

	return offer, nil
}

func (uc *OfferUseCase) create(ctx context.Context, in CreateOfferInput) (*domain.Offer, error) {
	pinID, buyer, seller, note, err := uc.validateCreate(in)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, buyer); err != nil {
		return nil, err
	}

	if _, err := uc.ExpireDue(ctx); err != nil {
		return nil, err
	}

	pin, err := uc.pins.GetPin(ctx, pinID)
	if err != nil {
		return nil, err
	}
	if !pin.OwnedBy(seller) {
		return nil, fmt.Errorf("%w: pin %s", domain.ErrSellerNotOwner, pinID)
	}

	if uc.cfg.LockPinOnPending {
		pending, err := uc.offers.List(ctx, domain.OfferFilter{PinID: pinID, Status: domain.OfferStatusPending})
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			return nil, domain.ErrPendingOfferExists
		}
	}

	now := uc.clock()
	offer := &domain.Offer{
		ID:        uc.idGen.Generate(),
		PinID:     pinID,
		FromOwner: buyer,
		ToOwner:   seller,
		Amount:    in.Amount,
		Status:    domain.OfferStatusPending,
		Note:      note,
		CreatedAt: now,
		ExpiresAt: now.Add(uc.cfg.ExpiryWindow),
		History: []domain.HistoryEntry{
			{At: now, Action: domain.HistoryCreated, Actor: actorFrom(ctx)},
		},
	}

	if err := uc.ledger.EscrowHold(ctx, offer.ID, buyer, offer.Amount); err != nil {
		return nil, err
	}

	// The atomic pending check lives in Create; a lost race releases the hold.
	if err := uc.offers.Create(ctx, offer, uc.cfg.LockPinOnPending); err != nil {
		if _, refundErr := uc.ledger.EscrowRefund(ctx, offer.ID, buyer); refundErr != nil {
			uc.logger.Error().Err(refundErr).
				Str("offer_id", offer.ID).
				Msg("failed to release escrow after offer insert failed")
		}
		return nil, err
	}

	return offer, nil
}

func (uc *OfferUseCase) validateCreate(in CreateOfferInput) (pinID, buyer, seller, note string, err error) {
	pinID = in.PinID
	if pinID == "" {
		return "", "", "", "", domain.ErrInvalidPinID
	}
	if err := domain.ValidateOwner(in.FromOwner); err != nil {
		return "", "", "", "", err
	}
	if err := domain.ValidateOwner(in.ToOwner); err != nil {
		return "", "", "", "", err
	}
	buyer = domain.NormalizeOwner(in.FromOwner)
	seller = domain.NormalizeOwner(in.ToOwner)
	if buyer == seller {
		return "", "", "", "", domain.ErrSelfOffer
	}
	if err := domain.ValidateOfferAmount(in.Amount, uc.cfg.MinAmount); err != nil {
		return "", "", "", "", err
	}
	note, err = domain.ValidateNote(in.Note)
	if err != nil {
		return "", "", "", "", err
	}
	return pinID, buyer, seller, note, nil
}

// Accept pays the seller out of escrow and hands the pin to the buyer. If the
// pin vanished or changed owner since the offer was made, the offer is
// rejected, the buyer refunded, and the original problem returned.
func (uc *OfferUseCase) Accept(ctx context.Context, id string) (*domain.Offer, error) {
	start := time.Now()

	offer, err := uc.pendingOffer(ctx, id)
	if err != nil {
		uc.recordError("accept", err)
		return nil, err
	}
	if err := authorize(ctx, offer.ToOwner); err != nil {
		uc.recordError("accept", err)
		return nil, err
	}

	unlock, err := uc.locks.LockPin(ctx, offer.PinID)
	if err != nil {
		uc.recordError("accept", err)
		return nil, fmt.Errorf("lock pin %s: %w", offer.PinID, err)
	}
	defer unlock()

	// another caller may have settled this offer while we waited
	if current, err := uc.offers.GetByID(ctx, offer.ID); err != nil {
		uc.recordError("accept", err)
		return nil, err
	} else if current.Status != domain.OfferStatusPending {
		err := fmt.Errorf("%w: offer is %s", domain.ErrOfferNotPending, current.Status)
		uc.recordError("accept", err)
		return nil, err
	}

	pin, err := uc.pins.GetPin(ctx, offer.PinID)
	switch {
	case errors.Is(err, domain.ErrPinNotFound):
		uc.autoReject(ctx, offer, domain.HistoryAutoRejectPinMissing)
		uc.recordError("accept", err)
		return nil, err
	case err != nil:
		uc.recordError("accept", err)
		return nil, err
	case !pin.OwnedBy(offer.ToOwner):
		uc.autoReject(ctx, offer, domain.HistoryAutoRejectOwnerChanged)
		err := fmt.Errorf("%w: pin %s", domain.ErrPinOwnerChanged, offer.PinID)
		uc.recordError("accept", err)
		return nil, err
	}

	fee, net := domain.ComputeFee(offer.Amount, uc.cfg.FeePct)
	now := uc.clock()
	updated, err := uc.offers.Transition(ctx, offer.ID, domain.OfferStatusAccepted, domain.HistoryEntry{
		At:     now,
		Action: domain.HistoryAccepted,
		Net:    &net,
		Fee:    &fee,
		Actor:  actorFrom(ctx),
	})
	if err != nil {
		uc.recordError("accept", err)
		return nil, err
	}

	// Payout before ownership transfer. A crash in between leaves an ACCEPTED
	// offer whose pin still belongs to the seller; Settle completes it.
	paid, burned, err := uc.ledger.EscrowPayout(ctx, offer.ID, offer.ToOwner, uc.cfg.FeePct)
	if err != nil {
		uc.logger.Error().Err(err).Str("offer_id", offer.ID).Msg("escrow payout failed after accept")
		uc.recordError("accept", err)
		return nil, fmt.Errorf("payout offer %s: %w", offer.ID, err)
	}
	if err := uc.pins.SetOwner(ctx, offer.PinID, offer.FromOwner, now); err != nil {
		uc.logger.Error().Err(err).Str("offer_id", offer.ID).Str("pin_id", offer.PinID).
			Msg("pin transfer failed after payout")
		uc.recordError("accept", err)
		return nil, fmt.Errorf("transfer pin %s: %w", offer.PinID, err)
	}

	if uc.metrics != nil {
		uc.metrics.OffersResolved.WithLabelValues(string(domain.OfferStatusAccepted)).Inc()
		uc.metrics.EscrowReleased.WithLabelValues("payout").Add(float64(paid + burned))
		uc.metrics.FeesBurned.Add(float64(burned))
		uc.metrics.OfferDuration.Observe(time.Since(start).Seconds())
	}

	uc.logger.Info().
		Str("offer_id", offer.ID).
		Str("pin_id", offer.PinID).
		Int64("net", paid).
		Int64("fee", burned).
		Msg("offer accepted")
	uc.notify(ctx, domain.EventTypeOfferAccepted, domain.OfferNote(updated))

	return updated, nil
}

// Reject refunds the buyer and closes the offer. Seller side.
func (uc *OfferUseCase) Reject(ctx context.Context, id string) (*domain.Offer, error) {
	offer, err := uc.pendingOffer(ctx, id)
	if err != nil {
		uc.recordError("reject", err)
		return nil, err
	}
	if err := authorize(ctx, offer.ToOwner); err != nil {
		uc.recordError("reject", err)
		return nil, err
	}

	updated, err := uc.closeWithRefund(ctx, offer, domain.OfferStatusRejected, domain.HistoryRejected)
	if err != nil {
		uc.recordError("reject", err)
		return nil, err
	}
	uc.notify(ctx, domain.EventTypeOfferRejected, domain.OfferNote(updated))
	return updated, nil
}

// Cancel refunds the buyer and closes the offer. Buyer side.
func (uc *OfferUseCase) Cancel(ctx context.Context, id string) (*domain.Offer, error) {
	offer, err := uc.pendingOffer(ctx, id)
	if err != nil {
		uc.recordError("cancel", err)
		return nil, err
	}
	if err := authorize(ctx, offer.FromOwner); err != nil {
		uc.recordError("cancel", err)
		return nil, err
	}

	updated, err := uc.closeWithRefund(ctx, offer, domain.OfferStatusCanceled, domain.HistoryCanceled)
	if err != nil {
		uc.recordError("cancel", err)
		return nil, err
	}
	uc.notify(ctx, domain.EventTypeOfferCanceled, domain.OfferNote(updated))
	return updated, nil
}

// ExpireDue expires every PENDING offer past its deadline and refunds its
// escrow. Offers that another caller already moved out of PENDING are skipped,
// so repeated calls never refund twice.
func (uc *OfferUseCase) ExpireDue(ctx context.Context) (int, error) {
	due, err := uc.offers.ListExpired(ctx, uc.clock())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, offer := range due {
		updated, err := uc.closeWithRefund(ctx, offer, domain.OfferStatusExpired, domain.HistoryExpired)
		if errors.Is(err, domain.ErrOfferNotPending) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		uc.notify(ctx, domain.EventTypeOfferExpired, domain.OfferNote(updated))
	}

	if expired > 0 {
		uc.logger.Info().Int("expired", expired).Msg("expired pending offers")
	}
	return expired, nil
}

// List returns offers matching filter after expiring stale ones.
func (uc *OfferUseCase) List(ctx context.Context, filter domain.OfferFilter) ([]*domain.Offer, error) {
	if _, err := uc.ExpireDue(ctx); err != nil {
		return nil, err
	}
	return uc.offers.List(ctx, filter)
}

// Get returns one offer after expiring stale ones.
func (uc *OfferUseCase) Get(ctx context.Context, id string) (*domain.Offer, error) {
	if _, err := uc.ExpireDue(ctx); err != nil {
		return nil, err
	}
	return uc.offers.GetByID(ctx, id)
}

func (uc *OfferUseCase) pendingOffer(ctx context.Context, id string) (*domain.Offer, error) {
	if _, err := uc.ExpireDue(ctx); err != nil {
		return nil, err
	}

	offer, err := uc.offers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if offer.Status != domain.OfferStatusPending {
		return nil, fmt.Errorf("%w: offer is %s", domain.ErrOfferNotPending, offer.Status)
	}
	return offer, nil
}

func (uc *OfferUseCase) closeWithRefund(ctx context.Context, offer *domain.Offer, status domain.OfferStatus, action string) (*domain.Offer, error) {
	updated, err := uc.offers.Transition(ctx, offer.ID, status, domain.HistoryEntry{
		At:     uc.clock(),
		Action: action,
		Actor:  actorFrom(ctx),
	})
	if err != nil {
		return nil, err
	}

	refunded, err := uc.ledger.EscrowRefund(ctx, offer.ID, offer.FromOwner)
	if err != nil {
		uc.logger.Error().Err(err).Str("offer_id", offer.ID).Str("status", string(status)).
			Msg("escrow refund failed after transition")
		return nil, fmt.Errorf("refund offer %s: %w", offer.ID, err)
	}

	if uc.metrics != nil {
		uc.metrics.OffersResolved.WithLabelValues(string(status)).Inc()
		uc.metrics.EscrowReleased.WithLabelValues("refund").Add(float64(refunded))
	}

	uc.logger.Info().
		Str("offer_id", offer.ID).
		Str("status", string(status)).
		Int64("refunded", refunded).
		Msg("offer closed")
	return updated, nil
}

// autoReject closes an offer whose pin can no longer be delivered. Failures
// are logged; the caller reports the original problem either way.
func (uc *OfferUseCase) autoReject(ctx context.Context, offer *domain.Offer, action string) {
	updated, err := uc.closeWithRefund(ctx, offer, domain.OfferStatusRejected, action)
	if err != nil {
		uc.logger.Warn().Err(err).Str("offer_id", offer.ID).Str("action", action).Msg("auto-reject failed")
		return
	}
	uc.notify(ctx, domain.EventTypeOfferRejected, domain.OfferNote(updated))
}

func (uc *OfferUseCase) notify(ctx context.Context, eventType, note string) {
	notify(ctx, uc.events, uc.clock, uc.logger, eventType, note)
}

func (uc *OfferUseCase) recordError(operation string, err error) {
	if uc.metrics != nil {
		uc.metrics.OfferErrors.WithLabelValues(operation, domain.KindOf(err).String()).Inc()
	}
}

// notify appends to the event log, ignoring failures.
func notify(ctx context.Context, events EventLog, clock Clock, logger zerolog.Logger, eventType, note string) {
	if events == nil {
		return
	}
	if err := events.Append(ctx, domain.NewEvent(eventType, note, clock())); err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to append event")
	}
}

// authorize checks the authenticated caller, if any, may act as owner.
func authorize(ctx context.Context, owner string) error {
	user, ok := domain.UserFromContext(ctx)
	if !ok {
		return nil
	}
	if !user.CanActAs(owner) {
		return domain.ErrForbiddenActor
	}
	return nil
}

func actorFrom(ctx context.Context) string {
	if user, ok := domain.UserFromContext(ctx); ok {
		return user.Identity()
	}
	return systemActor
}
