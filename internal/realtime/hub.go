package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

const subscriptionBuffer = 64

// Subscription receives the events of one conversation.
type Subscription struct {
	ConversationID string
	UserID         string
	events         chan Event
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Hub fans events out to the subscribers connected to this process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Subscribe registers a subscriber. The returned func unsubscribes and closes
// the event channel; it is safe to call more than once.
func (h *Hub) Subscribe(convID, userID string) (*Subscription, func()) {
	sub := &Subscription{
		ConversationID: convID,
		UserID:         userID,
		events:         make(chan Event, subscriptionBuffer),
	}
	h.mu.Lock()
	set, ok := h.subs[convID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[convID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[convID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, convID)
				}
			}
			close(sub.events)
			h.mu.Unlock()
		})
	}
}

// Deliver hands ev to every local subscriber of its conversation. Slow
// subscribers drop events rather than block the sender.
func (h *Hub) Deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.ConversationID] {
		select {
		case sub.events <- ev:
		default:
			h.logger.Warn().
				Str("conversation_id", ev.ConversationID).
				Str("user_id", sub.UserID).
				Str("type", ev.Type).
				Msg("subscriber buffer full; event dropped")
		}
	}
}

// Publish delivers locally. Used when no broker is configured.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Deliver(ev)
	return nil
}

func (h *Hub) Subscribers(convID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[convID])
}
