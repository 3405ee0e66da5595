package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
)

// DealExpirer is the slice of the deal service the sweeper drives.
type DealExpirer interface {
	ListExpiredPending(ctx context.Context, limit int) ([]model.SafeDeal, error)
	Expire(ctx context.Context, id string) (*model.SafeDeal, error)
	RetryReleases(ctx context.Context, limit int) (int, error)
}

// ExpiryObserver is told about every deal cancelled by expiry.
type ExpiryObserver interface {
	DealExpired(ctx context.Context, deal model.SafeDeal)
}

type SweepResult struct {
	Expired  int
	Skipped  int
	Failed   int
	Released int
}

type Sweeper struct {
	deals    DealExpirer
	observer ExpiryObserver
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

func NewSweeper(deals DealExpirer, observer ExpiryObserver, interval time.Duration, batch int, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		deals:    deals,
		observer: observer,
		interval: interval,
		batch:    batch,
		logger:   logger.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("sweep failed")
		return
	}
	if res.Expired > 0 || res.Failed > 0 || res.Released > 0 {
		s.logger.Info().
			Int("expired", res.Expired).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Int("released", res.Released).
			Msg("sweep finished")
	}
}

// Sweep cancels every pending deal past its deadline and retries pending fund
// releases. One deal failing never stops the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	// Failed deals stay expired-pending and are listed again; they are
	// retried on the next tick, not within this sweep.
	failed := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		deals, err := s.deals.ListExpiredPending(ctx, s.batch)
		if err != nil {
			return res, err
		}
		progressed := 0
		for _, d := range deals {
			if _, ok := failed[d.ID]; ok {
				continue
			}
			expired, err := s.deals.Expire(ctx, d.ID)
			switch {
			case err == nil:
				res.Expired++
				progressed++
				if s.observer != nil {
					s.observer.DealExpired(ctx, *expired)
				}
			case errors.Is(err, ErrIllegalTransition):
				// A participant moved the deal first.
				res.Skipped++
				progressed++
			default:
				failed[d.ID] = struct{}{}
				res.Failed++
				s.logger.Warn().Err(err).Str("deal_id", d.ID).Msg("expire deal failed")
			}
		}
		// Stop on a short batch, or when nothing in a full batch could be
		// moved; the failures are retried next tick.
		if len(deals) < s.batch || progressed == 0 {
			break
		}
	}

	released, err := s.deals.RetryReleases(ctx, s.batch)
	res.Released = released
	if err != nil {
		return res, err
	}
	return res, nil
}
