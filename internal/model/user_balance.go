package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserBalance is the released-funds balance of a seller, per currency.
type UserBalance struct {
	UID       string          `gorm:"column:uid;primaryKey;size:128"`
	Currency  string          `gorm:"column:currency;primaryKey;size:3"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null;default:0"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

func (UserBalance) TableName() string {
	return "user_balances"
}

// LedgerEntry records one release of escrowed funds. DealID is unique so a
// release is applied at most once.
type LedgerEntry struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	DealID    string          `gorm:"column:deal_id;size:36;not null;uniqueIndex"`
	SellerID  string          `gorm:"column:seller_id;size:128;not null;index"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	Currency  string          `gorm:"column:currency;size:3;not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

func (LedgerEntry) TableName() string {
	return "custody_ledger_entries"
}
