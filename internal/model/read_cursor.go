package model

import "time"

// ReadCursor is the highest message seq a reader has acknowledged in a
// conversation. It only moves forward.
type ReadCursor struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"column:conversation_id;size:36;not null;uniqueIndex:uniq_cursor_conv_reader"`
	ReaderID       string    `gorm:"column:reader_id;size:128;not null;uniqueIndex:uniq_cursor_conv_reader"`
	LastReadSeq    int64     `gorm:"column:last_read_seq;not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (ReadCursor) TableName() string {
	return "conversation_read_cursors"
}
