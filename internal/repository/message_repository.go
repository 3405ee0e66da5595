package repository

import (
	"context"

	"github.com/shinyyama/safedeal/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository interface {
	// Append assigns msg.Seq from the conversation tail and stores msg in one
	// transaction. Returns gorm.ErrRecordNotFound for an unknown conversation.
	Append(ctx context.Context, msg *model.Message) error
	List(ctx context.Context, convID string, offset, limit int) ([]model.Message, error)
	Tail(ctx context.Context, convID string) (int64, error)
	Cursor(ctx context.Context, convID, readerID string) (int64, error)
	// AdvanceCursor moves the reader's cursor forward to seq and returns the
	// number of messages from other senders it newly covers.
	AdvanceCursor(ctx context.Context, convID, readerID string, seq int64) (int64, error)
	CountUnread(ctx context.Context, convID, readerID string) (int64, error)
	SetDB(db *gorm.DB)
}

type messageRepository struct {
	dbHandle
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	r := &messageRepository{}
	r.SetDB(db)
	return r
}

func (r *messageRepository) Append(ctx context.Context, msg *model.Message) error {
	db := r.conn()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The increment takes the conversation row lock until commit, so
		// concurrent appends from other processes queue behind it.
		res := tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_seq":        gorm.Expr("last_seq + 1"),
				"last_message_at": msg.CreatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var cv model.Conversation
		if err := tx.Select("last_seq").Where("id = ?", msg.ConversationID).Take(&cv).Error; err != nil {
			return err
		}
		msg.Seq = cv.LastSeq
		return tx.Create(msg).Error
	})
}

func (r *messageRepository) List(ctx context.Context, convID string, offset, limit int) ([]model.Message, error) {
	db := r.conn()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var msgs []model.Message
	if err := db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepository) Tail(ctx context.Context, convID string) (int64, error) {
	db := r.conn()
	if db == nil {
		return 0, ErrDBNotReady
	}
	var cv model.Conversation
	if err := db.WithContext(ctx).Select("last_seq").Where("id = ?", convID).Take(&cv).Error; err != nil {
		return 0, err
	}
	return cv.LastSeq, nil
}

func (r *messageRepository) Cursor(ctx context.Context, convID, readerID string) (int64, error) {
	db := r.conn()
	if db == nil {
		return 0, ErrDBNotReady
	}
	var cur model.ReadCursor
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND reader_id = ?", convID, readerID).
		Limit(1).
		Find(&cur).Error
	if err != nil {
		return 0, err
	}
	return cur.LastReadSeq, nil
}

func (r *messageRepository) AdvanceCursor(ctx context.Context, convID, readerID string, seq int64) (int64, error) {
	db := r.conn()
	if db == nil {
		return 0, ErrDBNotReady
	}
	var acknowledged int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.ReadCursor{ConversationID: convID, ReaderID: readerID}).Error; err != nil {
			return err
		}
		var prev model.ReadCursor
		if err := tx.Where("conversation_id = ? AND reader_id = ?", convID, readerID).Take(&prev).Error; err != nil {
			return err
		}
		if prev.LastReadSeq >= seq {
			return nil
		}
		res := tx.Model(&model.ReadCursor{}).
			Where("conversation_id = ? AND reader_id = ? AND last_read_seq < ?", convID, readerID, seq).
			Update("last_read_seq", seq)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&model.Message{}).
			Where("conversation_id = ? AND seq > ? AND seq <= ? AND sender_id <> ?", convID, prev.LastReadSeq, seq, readerID).
			Count(&acknowledged).Error
	})
	if err != nil {
		return 0, err
	}
	return acknowledged, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, convID, readerID string) (int64, error) {
	cursor, err := r.Cursor(ctx, convID, readerID)
	if err != nil {
		return 0, err
	}
	db := r.conn()
	if db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND seq > ? AND sender_id <> ?", convID, cursor, readerID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}
