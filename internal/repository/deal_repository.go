package repository

import (
	"context"
	"time"

	"github.com/shinyyama/safedeal/internal/model"
	"gorm.io/gorm"
)

type DealRepository interface {
	Create(ctx context.Context, d *model.SafeDeal) error
	FindByID(ctx context.Context, id string) (*model.SafeDeal, error)
	// ExistsActive reports a shipped deal, or a pending one not yet past its
	// deadline at now, for the listing and buyer.
	ExistsActive(ctx context.Context, listingID, buyerID string, now time.Time) (bool, error)
	ListByBuyer(ctx context.Context, buyerID string, offset, limit int) ([]model.SafeDeal, error)
	ListBySeller(ctx context.Context, sellerID string, offset, limit int) ([]model.SafeDeal, error)
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]model.SafeDeal, error)
	ListUnreleased(ctx context.Context, limit int) ([]model.SafeDeal, error)
	// UpdateIfStatus applies fields only while the deal is still in status
	// from and reports the number of rows changed.
	UpdateIfStatus(ctx context.Context, id string, from model.DealStatus, fields map[string]interface{}) (int64, error)
	MarkFundsReleased(ctx context.Context, id string, at time.Time) (int64, error)
	SetDB(db *gorm.DB)
}

type dealRepository struct {
	dbHandle
}

func NewDealRepository(db *gorm.DB) DealRepository {
	r := &dealRepository{}
	r.SetDB(db)
	return r
}

func (r *dealRepository) Create(ctx context.Context, d *model.SafeDeal) error {
	db := r.conn()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Create(d).Error
}

func (r *dealRepository) FindByID(ctx context.Context, id string) (*model.SafeDeal, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var d model.SafeDeal
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *dealRepository) ExistsActive(ctx context.Context, listingID, buyerID string, now time.Time) (bool, error) {
	db := r.conn()
	if db == nil {
		return false, ErrDBNotReady
	}
	var cnt int64
	if err := db.WithContext(ctx).
		Model(&model.SafeDeal{}).
		Where("listing_id = ? AND buyer_id = ?", listingID, buyerID).
		Where("(status = ? OR (status = ? AND expires_at >= ?))", model.DealStatusShipped, model.DealStatusPending, now).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *dealRepository) ListByBuyer(ctx context.Context, buyerID string, offset, limit int) ([]model.SafeDeal, error) {
	return r.list(ctx, "buyer_id = ?", buyerID, offset, limit)
}

func (r *dealRepository) ListBySeller(ctx context.Context, sellerID string, offset, limit int) ([]model.SafeDeal, error) {
	return r.list(ctx, "seller_id = ?", sellerID, offset, limit)
}

func (r *dealRepository) list(ctx context.Context, cond string, uid string, offset, limit int) ([]model.SafeDeal, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.SafeDeal
	if err := db.WithContext(ctx).
		Where(cond, uid).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *dealRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]model.SafeDeal, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.SafeDeal
	if err := db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.DealStatusPending, before).
		Order("expires_at ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *dealRepository) ListUnreleased(ctx context.Context, limit int) ([]model.SafeDeal, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.SafeDeal
	if err := db.WithContext(ctx).
		Where("status = ? AND funds_released_at IS NULL", model.DealStatusCompleted).
		Order("completed_at ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *dealRepository) UpdateIfStatus(ctx context.Context, id string, from model.DealStatus, fields map[string]interface{}) (int64, error) {
	db := r.conn()
	if db == nil {
		return 0, ErrDBNotReady
	}
	res := db.WithContext(ctx).
		Model(&model.SafeDeal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *dealRepository) MarkFundsReleased(ctx context.Context, id string, at time.Time) (int64, error) {
	db := r.conn()
	if db == nil {
		return 0, ErrDBNotReady
	}
	res := db.WithContext(ctx).
		Model(&model.SafeDeal{}).
		Where("id = ? AND status = ? AND funds_released_at IS NULL", id, model.DealStatusCompleted).
		Update("funds_released_at", at)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
