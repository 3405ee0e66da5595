package repository

import (
	"context"

	"github.com/shinyyama/safedeal/internal/model"
	"gorm.io/gorm"
)

type ConversationRepository interface {
	Create(ctx context.Context, cv *model.Conversation) error
	FindByTriple(ctx context.Context, listingID, buyerID, sellerID string) (*model.Conversation, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	ListByUser(ctx context.Context, uid string, offset, limit int) ([]model.Conversation, error)
	SetDB(db *gorm.DB)
}

type conversationRepository struct {
	dbHandle
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	r := &conversationRepository{}
	r.SetDB(db)
	return r
}

func (r *conversationRepository) Create(ctx context.Context, cv *model.Conversation) error {
	db := r.conn()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Create(cv).Error
}

func (r *conversationRepository) FindByTriple(ctx context.Context, listingID, buyerID, sellerID string) (*model.Conversation, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var cv model.Conversation
	if err := db.WithContext(ctx).
		Where("listing_id = ? AND buyer_id = ? AND seller_id = ?", listingID, buyerID, sellerID).
		Take(&cv).Error; err != nil {
		return nil, err
	}
	return &cv, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var cv model.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&cv).Error; err != nil {
		return nil, err
	}
	return &cv, nil
}

func (r *conversationRepository) ListByUser(ctx context.Context, uid string, offset, limit int) ([]model.Conversation, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Conversation
	if err := db.WithContext(ctx).
		Where("seller_id = ? OR buyer_id = ?", uid, uid).
		Order("last_message_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
