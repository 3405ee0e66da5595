package repository

import (
	"context"

	"github.com/shinyyama/safedeal/internal/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByConversation(ctx context.Context, userUID, convID string) error
	MarkByDeal(ctx context.Context, userUID, dealID string) error
	CountUnread(ctx context.Context, userUID string) (int64, error)
	SetDB(db *gorm.DB)
}

type notificationRepository struct {
	dbHandle
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	r := &notificationRepository{}
	r.SetDB(db)
	return r
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	db := r.conn()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Notification
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := db.WithContext(ctx).Model(&model.Notification{}).Where("user_uid = ?", userUID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) error {
	return r.markRead(ctx, "user_uid = ?", userUID)
}

func (r *notificationRepository) MarkByConversation(ctx context.Context, userUID, convID string) error {
	return r.markRead(ctx, "user_uid = ? AND conversation_id = ?", userUID, convID)
}

func (r *notificationRepository) MarkByDeal(ctx context.Context, userUID, dealID string) error {
	return r.markRead(ctx, "user_uid = ? AND deal_id = ?", userUID, dealID)
}

func (r *notificationRepository) markRead(ctx context.Context, query string, args ...interface{}) error {
	db := r.conn()
	if db == nil {
		return ErrDBNotReady
	}
	now := db.NowFunc()
	return db.WithContext(ctx).
		Model(&model.Notification{}).
		Where(query, args...).
		Where("read_at IS NULL").
		Update("read_at", now).Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	db := r.conn()
	if db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND read_at IS NULL", userUID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}
