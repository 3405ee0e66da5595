package repository

import (
	"context"

	"github.com/shinyyama/safedeal/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BalanceRepository interface {
	// RecordRelease stores the ledger entry and credits the seller in one
	// transaction. It reports false when the deal was already released.
	RecordRelease(ctx context.Context, entry *model.LedgerEntry) (bool, error)
	ListByUser(ctx context.Context, uid string) ([]model.UserBalance, error)
	SetDB(db *gorm.DB)
}

type balanceRepository struct {
	dbHandle
}

func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	r := &balanceRepository{}
	r.SetDB(db)
	return r
}

func (r *balanceRepository) RecordRelease(ctx context.Context, entry *model.LedgerEntry) (bool, error) {
	db := r.conn()
	if db == nil {
		return false, ErrDBNotReady
	}
	applied := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "deal_id"}},
			DoNothing: true,
		}).Create(entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}, {Name: "currency"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"amount": gorm.Expr("user_balances.amount + ?", entry.Amount)}),
		}).Create(&model.UserBalance{UID: entry.SellerID, Currency: entry.Currency, Amount: entry.Amount}).Error
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *balanceRepository) ListByUser(ctx context.Context, uid string) ([]model.UserBalance, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.UserBalance
	if err := db.WithContext(ctx).Where("uid = ?", uid).Order("currency ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
