package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/domain"
)

// TransferResult carries both balances after a transfer.
type TransferResult struct {
	FromOwner   string
	ToOwner     string
	FromBalance int64
	ToBalance   int64
}

// LedgerUseCase exposes direct balance operations.
type LedgerUseCase struct {
	ledger LedgerStore
	logger zerolog.Logger
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(ledger LedgerStore, logger zerolog.Logger) *LedgerUseCase {
	return &LedgerUseCase{
		ledger: ledger,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Balance returns the owner's balance, zero when unknown.
func (uc *LedgerUseCase) Balance(ctx context.Context, owner string) (int64, error) {
	if err := domain.ValidateOwner(owner); err != nil {
		return 0, err
	}
	return uc.ledger.GetBalance(ctx, owner)
}

// Transfer moves amount between two owners.
func (uc *LedgerUseCase) Transfer(ctx context.Context, from, to string, amount int64) (*TransferResult, error) {
	if err := domain.ValidateOwner(from); err != nil {
		return nil, err
	}
	if err := domain.ValidateOwner(to); err != nil {
		return nil, err
	}
	from = domain.NormalizeOwner(from)
	to = domain.NormalizeOwner(to)
	if from == to {
		return nil, domain.ErrSameOwner
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if err := authorize(ctx, from); err != nil {
		return nil, err
	}

	if err := uc.ledger.Transfer(ctx, from, to, amount); err != nil {
		return nil, err
	}

	fromBalance, err := uc.ledger.GetBalance(ctx, from)
	if err != nil {
		return nil, err
	}
	toBalance, err := uc.ledger.GetBalance(ctx, to)
	if err != nil {
		return nil, err
	}

	uc.logger.Info().Str("from", from).Str("to", to).Int64("amount", amount).Msg("transfer")
	return &TransferResult{
		FromOwner:   from,
		ToOwner:     to,
		FromBalance: fromBalance,
		ToBalance:   toBalance,
	}, nil
}
