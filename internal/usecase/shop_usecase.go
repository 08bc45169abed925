package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
)

// BuyPinInput is the request to buy an unowned pin.
type BuyPinInput struct {
	PinID string
	Owner string
	Type  string
}

// UpgradePinInput is the request to raise a pin's level.
type UpgradePinInput struct {
	PinID string
	Owner string
}

// ShopResult is the pin after a purchase or upgrade plus what it cost.
type ShopResult struct {
	Pin     *domain.Pin
	Cost    int64
	Balance int64
}

// ShopUseCase sells unowned pins and upgrades owned ones. Spent currency is
// burned.
type ShopUseCase struct {
	ledger  LedgerStore
	pins    PinRegistry
	catalog CatalogProvider
	events  EventLog
	clock   Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewShopUseCase(
	ledger LedgerStore,
	pins PinRegistry,
	catalog CatalogProvider,
	events EventLog,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *ShopUseCase {
	return &ShopUseCase{
		ledger:  ledger,
		pins:    pins,
		catalog: catalog,
		events:  events,
		clock:   systemClock,
		metrics: metrics,
		logger:  logger.With().Str("component", "shop").Logger(),
	}
}

// Types lists the building catalog ordered by key.
func (uc *ShopUseCase) Types(ctx context.Context) ([]domain.BuildingType, error) {
	catalog, err := uc.catalog.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Sorted(), nil
}

// Pins lists every pin.
func (uc *ShopUseCase) Pins(ctx context.Context) ([]*domain.Pin, error) {
	return uc.pins.List(ctx)
}

// Pin returns one pin.
func (uc *ShopUseCase) Pin(ctx context.Context, id string) (*domain.Pin, error) {
	if id == "" {
		return nil, domain.ErrInvalidPinID
	}
	return uc.pins.GetPin(ctx, id)
}

// Buy charges the building price and assigns the pin to the buyer.
func (uc *ShopUseCase) Buy(ctx context.Context, in BuyPinInput) (*ShopResult, error) {
	if in.PinID == "" {
		return nil, domain.ErrInvalidPinID
	}
	if err := domain.ValidateOwner(in.Owner); err != nil {
		return nil, err
	}
	owner := domain.NormalizeOwner(in.Owner)
	if err := authorize(ctx, owner); err != nil {
		return nil, err
	}

	pin, err := uc.pins.GetPin(ctx, in.PinID)
	if err != nil {
		return nil, err
	}
	if pin.IsOwned() {
		return nil, domain.ErrPinAlreadyOwned
	}

	typeKey := in.Type
	if typeKey == "" {
		typeKey = pin.Type
	}
	bt, err := uc.buildingType(ctx, typeKey)
	if err != nil {
		return nil, err
	}

	next := pin.Clone()
	next.Owner = owner
	next.Type = bt.Key
	next.Level = domain.MinPinLevel
	next.LastTradeAt = uc.clock()

	result, err := uc.chargeAndReplace(ctx, owner, bt.EffectivePrice(), pin, next)
	if err != nil {
		return nil, err
	}

	uc.record("buy", result.Cost)
	notify(ctx, uc.events, uc.clock, uc.logger, domain.EventTypePinPurchased,
		fmt.Sprintf("%s bought %s (pin %s) £%d", owner, bt.DisplayLabel(), pin.ID, result.Cost))
	return result, nil
}

// Upgrade charges price × current level and raises the level by one.
func (uc *ShopUseCase) Upgrade(ctx context.Context, in UpgradePinInput) (*ShopResult, error) {
	if in.PinID == "" {
		return nil, domain.ErrInvalidPinID
	}
	if err := domain.ValidateOwner(in.Owner); err != nil {
		return nil, err
	}
	owner := domain.NormalizeOwner(in.Owner)
	if err := authorize(ctx, owner); err != nil {
		return nil, err
	}

	pin, err := uc.pins.GetPin(ctx, in.PinID)
	if err != nil {
		return nil, err
	}
	if !pin.OwnedBy(owner) {
		return nil, domain.ErrNotPinOwner
	}

	bt, err := uc.buildingType(ctx, pin.Type)
	if err != nil {
		return nil, err
	}

	level := domain.ClampLevel(pin.Level)
	if level >= bt.EffectiveMaxLevel() {
		return nil, domain.ErrMaxLevelReached
	}

	next := pin.Clone()
	next.Level = level + 1

	result, err := uc.chargeAndReplace(ctx, owner, bt.EffectivePrice()*int64(level), pin, next)
	if err != nil {
		return nil, err
	}

	uc.record("upgrade", result.Cost)
	notify(ctx, uc.events, uc.clock, uc.logger, domain.EventTypePinUpgraded,
		fmt.Sprintf("%s upgraded %s (pin %s) to level %d £%d", owner, bt.DisplayLabel(), pin.ID, next.Level, result.Cost))
	return result, nil
}

func (uc *ShopUseCase) buildingType(ctx context.Context, key string) (domain.BuildingType, error) {
	catalog, err := uc.catalog.Catalog(ctx)
	if err != nil {
		return domain.BuildingType{}, err
	}
	if len(catalog) == 0 {
		return domain.BuildingType{}, domain.ErrTypeRegistryMissing
	}
	bt, ok := catalog[key]
	if !ok || key == "" {
		return domain.BuildingType{}, fmt.Errorf("%w: %q", domain.ErrUnknownBuildingType, key)
	}
	if bt.Key == "" {
		bt.Key = key
	}
	return bt, nil
}

// chargeAndReplace debits cost and then swaps the pin. If the pin changed in
// the meantime the charge is credited back.
func (uc *ShopUseCase) chargeAndReplace(ctx context.Context, owner string, cost int64, pin, next *domain.Pin) (*ShopResult, error) {
	balance, err := uc.ledger.Charge(ctx, owner, cost)
	if err != nil {
		return nil, err
	}

	if err := uc.pins.Replace(ctx, pin, next); err != nil {
		if _, refundErr := uc.ledger.AdjustBalance(ctx, owner, cost); refundErr != nil {
			uc.logger.Error().Err(refundErr).Str("owner", owner).Int64("amount", cost).
				Msg("failed to refund shop charge")
		}
		return nil, err
	}

	return &ShopResult{Pin: next, Cost: cost, Balance: balance}, nil
}

func (uc *ShopUseCase) record(action string, cost int64) {
	if uc.metrics != nil {
		uc.metrics.ShopActions.WithLabelValues(action).Inc()
		uc.metrics.ShopSpend.Add(float64(cost))
	}
}
