// Package realtime pushes conversation events to connected participants.
package realtime

import (
	"encoding/json"
	"time"
)

const (
	EventMessageCreated = "message.created"
	EventDealUpdated    = "deal.updated"
	EventTyping         = "typing"
)

type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	At             time.Time       `json:"at"`
}

func NewEvent(typ, convID, senderID string, data interface{}) (Event, error) {
	ev := Event{
		Type:           typ,
		ConversationID: convID,
		SenderID:       senderID,
		At:             time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}

type MessagePayload struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type DealPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
