package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/repository"
)

type NotificationService interface {
	Notify(ctx context.Context, n model.Notification)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByConversation(ctx context.Context, userUID, convID string) error
	MarkByDeal(ctx context.Context, userUID, dealID string) error
}

type notificationService struct {
	repo   repository.NotificationRepository
	logger zerolog.Logger
}

func NewNotificationService(repo repository.NotificationRepository, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:   repo,
		logger: logger.With().Str("service", "notification").Logger(),
	}
}

// Notify is best-effort; it logs errors but does not return them to avoid breaking main flows.
func (s *notificationService) Notify(ctx context.Context, n model.Notification) {
	if n.UserUID == "" || n.Type == "" {
		return
	}
	ctx, cancel := withShortDeadline(ctx)
	defer cancel()
	if err := s.repo.Create(ctx, &n); err != nil {
		s.logger.Warn().Err(err).Str("user_uid", n.UserUID).Str("type", n.Type).Msg("notify failed")
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" {
		return nil
	}
	return s.repo.MarkAllRead(ctx, userUID)
}

func (s *notificationService) MarkByConversation(ctx context.Context, userUID, convID string) error {
	if userUID == "" || convID == "" {
		return nil
	}
	return s.repo.MarkByConversation(ctx, userUID, convID)
}

func (s *notificationService) MarkByDeal(ctx context.Context, userUID, dealID string) error {
	if userUID == "" || dealID == "" {
		return nil
	}
	return s.repo.MarkByDeal(ctx, userUID, dealID)
}

func strPtr(v string) *string {
	return &v
}

// withShortDeadline detaches side effects from the caller and bounds them.
func withShortDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
}
