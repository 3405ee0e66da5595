package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/repository"
	"gorm.io/gorm"
)

type ConversationSummary struct {
	model.Conversation
	Role        Role
	UnreadCount int64
}

type ConversationService interface {
	// Start returns the conversation for the triple, creating it on first use.
	Start(ctx context.Context, listingID, buyerID, sellerID string) (*model.Conversation, error)
	Find(ctx context.Context, listingID, buyerID, sellerID string) (*model.Conversation, error)
	Get(ctx context.Context, id, actorID string) (*model.Conversation, error)
	List(ctx context.Context, uid string, page Page) ([]ConversationSummary, error)
}

type conversationService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	locks    *keyedLocks
	now      func() time.Time
	logger   zerolog.Logger
}

func NewConversationService(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, now func() time.Time, logger zerolog.Logger) ConversationService {
	if now == nil {
		now = time.Now
	}
	return &conversationService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		locks:    newKeyedLocks(),
		now:      now,
		logger:   logger.With().Str("service", "conversation").Logger(),
	}
}

func (s *conversationService) Start(ctx context.Context, listingID, buyerID, sellerID string) (*model.Conversation, error) {
	if !validParticipants(listingID, buyerID, sellerID) {
		return nil, ErrInvalidParticipants
	}
	release, err := s.locks.Acquire(ctx, lockKey("triple", listingID, buyerID, sellerID))
	if err != nil {
		return nil, err
	}
	defer release()

	cv, err := s.convRepo.FindByTriple(ctx, listingID, buyerID, sellerID)
	if err == nil {
		return cv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	cv = &model.Conversation{
		ID:            uuid.NewString(),
		ListingID:     listingID,
		BuyerID:       buyerID,
		SellerID:      sellerID,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.convRepo.Create(ctx, cv); err != nil {
		// Another process created it first; the unique index decides.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.convRepo.FindByTriple(ctx, listingID, buyerID, sellerID)
		}
		return nil, err
	}
	s.logger.Info().
		Str("conversation_id", cv.ID).
		Str("listing_id", listingID).
		Str("buyer_id", buyerID).
		Str("seller_id", sellerID).
		Msg("conversation started")
	return cv, nil
}

func (s *conversationService) Find(ctx context.Context, listingID, buyerID, sellerID string) (*model.Conversation, error) {
	cv, err := s.convRepo.FindByTriple(ctx, listingID, buyerID, sellerID)
	if err != nil {
		return nil, notFound(err)
	}
	return cv, nil
}

func (s *conversationService) Get(ctx context.Context, id, actorID string) (*model.Conversation, error) {
	cv, err := s.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if ResolveRole(actorID, cv) == RoleNone {
		return nil, ErrUnauthorized
	}
	return cv, nil
}

func (s *conversationService) List(ctx context.Context, uid string, page Page) ([]ConversationSummary, error) {
	offset, limit := page.bounds()
	convs, err := s.convRepo.ListByUser(ctx, uid, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(convs))
	for _, cv := range convs {
		unread, err := s.msgRepo.CountUnread(ctx, cv.ID, uid)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{
			Conversation: cv,
			Role:         ResolveRole(uid, cv),
			UnreadCount:  unread,
		})
	}
	return out, nil
}
