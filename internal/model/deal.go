package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DealStatus string

const (
	DealStatusPending   DealStatus = "pending"
	DealStatusShipped   DealStatus = "shipped"
	DealStatusCompleted DealStatus = "completed"
	DealStatusDisputed  DealStatus = "disputed"
	DealStatusCancelled DealStatus = "cancelled"
)

// dealTransitions lists every edge of the deal lifecycle. Statuses without an
// entry are terminal.
var dealTransitions = map[DealStatus][]DealStatus{
	DealStatusPending: {DealStatusShipped, DealStatusDisputed, DealStatusCancelled},
	DealStatusShipped: {DealStatusCompleted, DealStatusDisputed},
}

func (s DealStatus) CanTransitionTo(target DealStatus) bool {
	for _, allowed := range dealTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s DealStatus) IsTerminal() bool {
	return len(dealTransitions[s]) == 0
}

func (s DealStatus) Valid() bool {
	switch s {
	case DealStatusPending, DealStatusShipped, DealStatusCompleted, DealStatusDisputed, DealStatusCancelled:
		return true
	}
	return false
}

type CancelReason string

const (
	CancelReasonExpired        CancelReason = "expired"
	CancelReasonBuyerCancelled CancelReason = "buyer_cancelled"
)

type SafeDeal struct {
	ID              string          `gorm:"primaryKey;size:36"`
	ListingID       string          `gorm:"column:listing_id;size:128;not null;index:idx_deal_listing_buyer"`
	BuyerID         string          `gorm:"column:buyer_id;size:128;not null;index:idx_deal_listing_buyer;index"`
	SellerID        string          `gorm:"column:seller_id;size:128;not null;index"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	Currency        string          `gorm:"column:currency;size:3;not null"`
	Status          DealStatus      `gorm:"column:status;size:16;not null;index:idx_deal_status_expires"`
	ShippingNumber  string          `gorm:"column:shipping_number;size:128"`
	DispatchNote    string          `gorm:"column:dispatch_note;type:text"`
	DisputeReason   string          `gorm:"column:dispute_reason;type:text"`
	CancelReason    CancelReason    `gorm:"column:cancel_reason;size:32"`
	ExpiresAt       time.Time       `gorm:"column:expires_at;not null;index:idx_deal_status_expires"`
	ShippedAt       *time.Time      `gorm:"column:shipped_at"`
	CompletedAt     *time.Time      `gorm:"column:completed_at"`
	DisputedAt      *time.Time      `gorm:"column:disputed_at"`
	CancelledAt     *time.Time      `gorm:"column:cancelled_at"`
	FundsReleasedAt *time.Time      `gorm:"column:funds_released_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null;index"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime"`
}

func (SafeDeal) TableName() string {
	return "safe_deals"
}

func (d SafeDeal) Parties() (buyerID, sellerID string) {
	return d.BuyerID, d.SellerID
}

// PastDeadline reports whether a pending deal has outlived its expiry window.
func (d SafeDeal) PastDeadline(now time.Time) bool {
	return d.Status == DealStatusPending && now.After(d.ExpiresAt)
}

func (d SafeDeal) CancelledByExpiry() bool {
	return d.Status == DealStatusCancelled && d.CancelReason == CancelReasonExpired
}
