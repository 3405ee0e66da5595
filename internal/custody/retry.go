package custody

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
)

// Retrying retries a Custodian with exponential backoff until it succeeds,
// fails permanently, maxElapsed passes, or ctx is done.
type Retrying struct {
	next       Custodian
	initial    time.Duration
	maxElapsed time.Duration
	logger     zerolog.Logger
}

func NewRetrying(next Custodian, maxElapsed time.Duration, logger zerolog.Logger) *Retrying {
	return &Retrying{
		next:       next,
		initial:    200 * time.Millisecond,
		maxElapsed: maxElapsed,
		logger:     logger.With().Str("component", "custody_retry").Logger(),
	}
}

func (r *Retrying) Release(ctx context.Context, deal model.SafeDeal) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxElapsedTime = r.maxElapsed

	attempt := 0
	op := func() error {
		attempt++
		err := r.next.Release(ctx, deal)
		if errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn().
			Err(err).
			Str("deal_id", deal.ID).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("fund release failed")
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}
