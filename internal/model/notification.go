package model

import "time"

const (
	NotificationDealCreated    = "deal.created"
	NotificationMessageCreated = "message.created"
)

// NotificationDealStatus is the notification type for a deal entering status.
func NotificationDealStatus(status DealStatus) string {
	return "deal." + string(status)
}

type Notification struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement"`
	UserUID        string     `gorm:"column:user_uid;size:128;index;not null"`
	Type           string     `gorm:"column:type;size:64;not null"`
	Title          string     `gorm:"column:title;size:255"`
	Body           string     `gorm:"column:body;type:text"`
	DealID         *string    `gorm:"column:deal_id;size:36;index"`
	ConversationID *string    `gorm:"column:conversation_id;size:36;index"`
	ReadAt         *time.Time `gorm:"column:read_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}
