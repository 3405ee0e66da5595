package custody

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/repository"
)

// LedgerCustodian settles releases against the local balance ledger.
type LedgerCustodian struct {
	repo   repository.BalanceRepository
	logger zerolog.Logger
}

func NewLedgerCustodian(repo repository.BalanceRepository, logger zerolog.Logger) *LedgerCustodian {
	return &LedgerCustodian{
		repo:   repo,
		logger: logger.With().Str("component", "custody").Logger(),
	}
}

func (c *LedgerCustodian) Release(ctx context.Context, deal model.SafeDeal) error {
	if deal.Status != model.DealStatusCompleted {
		return fmt.Errorf("%w: deal %s is %s", ErrPermanent, deal.ID, deal.Status)
	}
	if !deal.Amount.IsPositive() {
		return fmt.Errorf("%w: deal %s has non-positive amount", ErrPermanent, deal.ID)
	}
	applied, err := c.repo.RecordRelease(ctx, &model.LedgerEntry{
		DealID:   deal.ID,
		SellerID: deal.SellerID,
		Amount:   deal.Amount,
		Currency: deal.Currency,
	})
	if err != nil {
		return fmt.Errorf("record release: %w", err)
	}
	if !applied {
		c.logger.Debug().Str("deal_id", deal.ID).Msg("release already recorded")
		return nil
	}
	c.logger.Info().
		Str("deal_id", deal.ID).
		Str("seller_id", deal.SellerID).
		Str("amount", deal.Amount.String()).
		Str("currency", deal.Currency).
		Msg("funds released")
	return nil
}
