package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	UID         string          `gorm:"column:uid;primaryKey;size:128"`
	DisplayName string          `gorm:"column:display_name;size:255"`
	IsVerified  bool            `gorm:"column:is_verified;not null;default:false"`
	Rating      decimal.Decimal `gorm:"column:rating;type:decimal(3,2);not null;default:0"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
