package repository

import (
	"context"

	"github.com/shinyyama/safedeal/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	FindByID(ctx context.Context, uid string) (*model.User, error)
	Upsert(ctx context.Context, u *model.User) error
	SetDB(db *gorm.DB)
}

type userRepository struct {
	dbHandle
}

func NewUserRepository(db *gorm.DB) UserRepository {
	r := &userRepository{}
	r.SetDB(db)
	return r
}

func (r *userRepository) FindByID(ctx context.Context, uid string) (*model.User, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var u model.User
	if err := db.WithContext(ctx).Where("uid = ?", uid).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Upsert(ctx context.Context, u *model.User) error {
	db := r.conn()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "is_verified", "rating", "updated_at"}),
	}).Create(u).Error
}
