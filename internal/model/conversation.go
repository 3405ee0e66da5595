package model

import "time"

type Conversation struct {
	ID            string    `gorm:"primaryKey;size:36"`
	ListingID     string    `gorm:"column:listing_id;size:128;not null;uniqueIndex:idx_conv_listing_buyer_seller"`
	BuyerID       string    `gorm:"column:buyer_id;size:128;not null;uniqueIndex:idx_conv_listing_buyer_seller;index"`
	SellerID      string    `gorm:"column:seller_id;size:128;not null;uniqueIndex:idx_conv_listing_buyer_seller;index"`
	LastSeq       int64     `gorm:"column:last_seq;not null;default:0"`
	LastMessageAt time.Time `gorm:"column:last_message_at;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c Conversation) Parties() (buyerID, sellerID string) {
	return c.BuyerID, c.SellerID
}
