package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/repository"
)

const DefaultMaxMessageLength = 5000

type MessageService interface {
	Append(ctx context.Context, convID, senderID, content string) (*model.Message, error)
	List(ctx context.Context, convID, actorID string, page Page) ([]model.Message, error)
	// MarkRead moves the reader's cursor to the current tail and returns how
	// many messages from the other party it newly covers.
	MarkRead(ctx context.Context, convID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, convID, readerID string) (int64, error)
}

type messageService struct {
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	locks     *keyedLocks
	maxLength int
	now       func() time.Time
	logger    zerolog.Logger
}

func NewMessageService(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, maxLength int, now func() time.Time, logger zerolog.Logger) MessageService {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if now == nil {
		now = time.Now
	}
	return &messageService{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		locks:     newKeyedLocks(),
		maxLength: maxLength,
		now:       now,
		logger:    logger.With().Str("service", "message").Logger(),
	}
}

func (s *messageService) participant(ctx context.Context, convID, actorID string) (*model.Conversation, error) {
	cv, err := s.convRepo.FindByID(ctx, convID)
	if err != nil {
		return nil, notFound(err)
	}
	if ResolveRole(actorID, cv) == RoleNone {
		return nil, ErrUnauthorized
	}
	return cv, nil
}

func (s *messageService) Append(ctx context.Context, convID, senderID, content string) (*model.Message, error) {
	if _, err := s.participant(ctx, convID, senderID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidContent
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, ErrInvalidContent
	}

	release, err := s.locks.Acquire(ctx, lockKey("conv", convID))
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), applyTimeout)
	defer cancel()

	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.msgRepo.Append(ctx, msg); err != nil {
		return nil, notFound(err)
	}
	s.logger.Debug().
		Str("conversation_id", convID).
		Str("message_id", msg.ID).
		Int64("seq", msg.Seq).
		Msg("message appended")
	return msg, nil
}

func (s *messageService) List(ctx context.Context, convID, actorID string, page Page) ([]model.Message, error) {
	if _, err := s.participant(ctx, convID, actorID); err != nil {
		return nil, err
	}
	offset, limit := page.bounds()
	return s.msgRepo.List(ctx, convID, offset, limit)
}

func (s *messageService) MarkRead(ctx context.Context, convID, readerID string) (int64, error) {
	if _, err := s.participant(ctx, convID, readerID); err != nil {
		return 0, err
	}
	release, err := s.locks.Acquire(ctx, lockKey("read", convID, readerID))
	if err != nil {
		return 0, err
	}
	defer release()

	tail, err := s.msgRepo.Tail(ctx, convID)
	if err != nil {
		return 0, notFound(err)
	}
	return s.msgRepo.AdvanceCursor(ctx, convID, readerID, tail)
}

func (s *messageService) UnreadCount(ctx context.Context, convID, readerID string) (int64, error) {
	if _, err := s.participant(ctx, convID, readerID); err != nil {
		return 0, err
	}
	return s.msgRepo.CountUnread(ctx, convID, readerID)
}
