package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/custody"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/repository"
	"github.com/shopspring/decimal"
)

const (
	DefaultCurrency   = "KZT"
	DefaultDealExpiry = 7 * 24 * time.Hour

	applyTimeout   = 10 * time.Second
	releaseTimeout = 45 * time.Second
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type InitiateDealInput struct {
	ListingID string
	SellerID  string
	BuyerID   string
	Amount    decimal.Decimal
	Currency  string
}

type DealService interface {
	Initiate(ctx context.Context, in InitiateDealInput) (*model.SafeDeal, error)
	Get(ctx context.Context, id, actorID string) (*model.SafeDeal, error)
	ListByBuyer(ctx context.Context, buyerID string, page Page) ([]model.SafeDeal, error)
	ListBySeller(ctx context.Context, sellerID string, page Page) ([]model.SafeDeal, error)
	Apply(ctx context.Context, id, actorID string, t Transition) (*model.SafeDeal, error)
	Expire(ctx context.Context, id string) (*model.SafeDeal, error)
	ListExpiredPending(ctx context.Context, limit int) ([]model.SafeDeal, error)
	RetryReleases(ctx context.Context, limit int) (int, error)
	// OnExpire registers the observer told about expiries applied lazily by a
	// read or a transition attempt. Expire leaves reporting to its caller.
	OnExpire(o ExpiryObserver)
}

type DealConfig struct {
	Expiry                time.Duration
	RejectDuplicateActive bool
	Now                   func() time.Time
}

type dealService struct {
	repo      repository.DealRepository
	custodian custody.Custodian
	locks     *keyedLocks
	cfg       DealConfig
	observer  ExpiryObserver
	logger    zerolog.Logger
}

func NewDealService(repo repository.DealRepository, custodian custody.Custodian, cfg DealConfig, logger zerolog.Logger) DealService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultDealExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &dealService{
		repo:      repo,
		custodian: custodian,
		locks:     newKeyedLocks(),
		cfg:       cfg,
		logger:    logger.With().Str("service", "deal").Logger(),
	}
}

func (s *dealService) OnExpire(o ExpiryObserver) {
	s.observer = o
}

func (s *dealService) reportExpired(ctx context.Context, d *model.SafeDeal) {
	if s.observer == nil || d == nil {
		return
	}
	s.observer.DealExpired(context.WithoutCancel(ctx), *d)
}

func (s *dealService) now() time.Time {
	return s.cfg.Now().UTC()
}

func (s *dealService) Initiate(ctx context.Context, in InitiateDealInput) (*model.SafeDeal, error) {
	if !validParticipants(in.ListingID, in.BuyerID, in.SellerID) {
		return nil, ErrInvalidParticipants
	}
	if !in.Amount.IsPositive() {
		return nil, invalidArgument("amount must be positive")
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, invalidArgument("amount has more than two decimal places")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return nil, invalidArgument("currency must be a three-letter code")
	}

	release, err := s.locks.Acquire(ctx, lockKey("active", in.ListingID, in.BuyerID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	if s.cfg.RejectDuplicateActive {
		exists, err := s.repo.ExistsActive(ctx, in.ListingID, in.BuyerID, now)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateActiveDeal
		}
	}

	d := &model.SafeDeal{
		ID:        uuid.NewString(),
		ListingID: in.ListingID,
		BuyerID:   in.BuyerID,
		SellerID:  in.SellerID,
		Amount:    in.Amount,
		Currency:  currency,
		Status:    model.DealStatusPending,
		ExpiresAt: now.Add(s.cfg.Expiry),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("deal_id", d.ID).
		Str("listing_id", d.ListingID).
		Str("buyer_id", d.BuyerID).
		Str("seller_id", d.SellerID).
		Msg("deal initiated")
	return d, nil
}

func (s *dealService) Get(ctx context.Context, id, actorID string) (*model.SafeDeal, error) {
	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ResolveRole(actorID, d) == RoleNone {
		return nil, ErrUnauthorized
	}
	return s.settle(ctx, d)
}

func (s *dealService) ListByBuyer(ctx context.Context, buyerID string, page Page) ([]model.SafeDeal, error) {
	offset, limit := page.bounds()
	list, err := s.repo.ListByBuyer(ctx, buyerID, offset, limit)
	if err != nil {
		return nil, err
	}
	return s.settleAll(ctx, list), nil
}

func (s *dealService) ListBySeller(ctx context.Context, sellerID string, page Page) ([]model.SafeDeal, error) {
	offset, limit := page.bounds()
	list, err := s.repo.ListBySeller(ctx, sellerID, offset, limit)
	if err != nil {
		return nil, err
	}
	return s.settleAll(ctx, list), nil
}

func (s *dealService) Apply(ctx context.Context, id, actorID string, t Transition) (*model.SafeDeal, error) {
	if t == nil {
		return nil, invalidArgument("transition is required")
	}
	release, err := s.locks.Acquire(ctx, lockKey("deal", id))
	if err != nil {
		return nil, err
	}
	d, err := s.applyLocked(ctx, id, actorID, t)
	release()
	if err != nil {
		return nil, err
	}
	if d.Status == model.DealStatusCompleted {
		s.releaseFunds(ctx, d)
	}
	return d, nil
}

// applyLocked runs with the deal lock held. Once here the transition is no
// longer tied to the caller's cancellation.
func (s *dealService) applyLocked(ctx context.Context, id, actorID string, t Transition) (*model.SafeDeal, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), applyTimeout)
	defer cancel()

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	role := ResolveRole(actorID, d)
	if role == RoleNone || !t.permits(role) {
		return nil, ErrUnauthorized
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	if d.PastDeadline(now) {
		expired, err := s.commit(ctx, d, expire{}, now)
		switch {
		case err == nil:
			s.logger.Info().Str("deal_id", d.ID).Msg("deal expired on access")
			s.reportExpired(ctx, expired)
		case !errors.Is(err, ErrIllegalTransition):
			return nil, err
		}
		return nil, ErrExpired
	}
	if d.CancelledByExpiry() {
		return nil, ErrExpired
	}

	updated, err := s.commit(ctx, d, t, now)
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) && te.From == model.DealStatusCancelled {
			if cur, lerr := s.load(ctx, id); lerr == nil && cur.CancelledByExpiry() {
				return nil, ErrExpired
			}
		}
		return nil, err
	}
	s.logger.Info().
		Str("deal_id", d.ID).
		Str("actor_id", actorID).
		Str("from", string(d.Status)).
		Str("to", string(updated.Status)).
		Msg("deal transitioned")
	return updated, nil
}

// commit checks the edge and persists it with a compare-and-set on status, so
// a concurrent writer in another process cannot apply a second transition from
// the same state.
func (s *dealService) commit(ctx context.Context, d *model.SafeDeal, t Transition, now time.Time) (*model.SafeDeal, error) {
	to := t.Target()
	if !d.Status.CanTransitionTo(to) {
		return nil, &TransitionError{From: d.Status, To: to}
	}
	n, err := s.repo.UpdateIfStatus(ctx, d.ID, d.Status, t.fields(now))
	if err != nil {
		return nil, err
	}
	cur, err := s.load(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &TransitionError{From: cur.Status, To: to}
	}
	return cur, nil
}

func (s *dealService) Expire(ctx context.Context, id string) (*model.SafeDeal, error) {
	release, err := s.locks.Acquire(ctx, lockKey("deal", id))
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), applyTimeout)
	defer cancel()

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !d.PastDeadline(now) {
		return nil, &TransitionError{From: d.Status, To: model.DealStatusCancelled}
	}
	updated, err := s.commit(ctx, d, expire{}, now)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("deal_id", d.ID).Time("expires_at", d.ExpiresAt).Msg("deal expired")
	return updated, nil
}

func (s *dealService) ListExpiredPending(ctx context.Context, limit int) ([]model.SafeDeal, error) {
	return s.repo.ListExpiredPending(ctx, s.now(), limit)
}

func (s *dealService) RetryReleases(ctx context.Context, limit int) (int, error) {
	list, err := s.repo.ListUnreleased(ctx, limit)
	if err != nil {
		return 0, err
	}
	released := 0
	for i := range list {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		if s.releaseFunds(ctx, &list[i]) {
			released++
		}
	}
	return released, nil
}

// releaseFunds hands a completed deal to the custodian. Failures are logged
// and left for RetryReleases; they never undo the completion.
func (s *dealService) releaseFunds(ctx context.Context, d *model.SafeDeal) bool {
	if s.custodian == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := s.custodian.Release(ctx, *d); err != nil {
		s.logger.Error().Err(err).Str("deal_id", d.ID).Msg("fund release failed")
		return false
	}
	at := s.now()
	if _, err := s.repo.MarkFundsReleased(ctx, d.ID, at); err != nil {
		s.logger.Error().Err(err).Str("deal_id", d.ID).Msg("mark funds released failed")
		return false
	}
	d.FundsReleasedAt = &at
	return true
}

// settle applies a due expiry before a deal is handed to a reader.
func (s *dealService) settle(ctx context.Context, d *model.SafeDeal) (*model.SafeDeal, error) {
	if !d.PastDeadline(s.now()) {
		return d, nil
	}
	expired, err := s.Expire(ctx, d.ID)
	if err == nil {
		s.reportExpired(ctx, expired)
		return expired, nil
	}
	if errors.Is(err, ErrIllegalTransition) {
		return s.load(ctx, d.ID)
	}
	return nil, err
}

func (s *dealService) settleAll(ctx context.Context, list []model.SafeDeal) []model.SafeDeal {
	for i := range list {
		if !list[i].PastDeadline(s.now()) {
			continue
		}
		d, err := s.settle(ctx, &list[i])
		if err != nil {
			s.logger.Warn().Err(err).Str("deal_id", list[i].ID).Msg("lazy expiry failed")
			continue
		}
		list[i] = *d
	}
	return list
}

func (s *dealService) load(ctx context.Context, id string) (*model.SafeDeal, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}
