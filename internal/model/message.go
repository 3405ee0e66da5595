package model

import "time"

type Message struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ConversationID string    `gorm:"column:conversation_id;size:36;not null;uniqueIndex:idx_msg_conv_seq"`
	Seq            int64     `gorm:"column:seq;not null;uniqueIndex:idx_msg_conv_seq"`
	SenderID       string    `gorm:"column:sender_id;size:128;not null;index"`
	Content        string    `gorm:"column:content;type:text;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (Message) TableName() string {
	return "messages"
}
