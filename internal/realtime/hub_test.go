package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversToConversationSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	buyer, unsubBuyer := hub.Subscribe("c1", "buyer")
	defer unsubBuyer()
	seller, unsubSeller := hub.Subscribe("c1", "seller")
	defer unsubSeller()
	other, unsubOther := hub.Subscribe("c2", "someone")
	defer unsubOther()

	ev, err := NewEvent(EventMessageCreated, "c1", "buyer", MessagePayload{ID: "m1", Seq: 1, Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))

	for _, sub := range []*Subscription{buyer, seller} {
		select {
		case got := <-sub.Events():
			assert.Equal(t, EventMessageCreated, got.Type)
			var payload MessagePayload
			require.NoError(t, json.Unmarshal(got.Data, &payload))
			assert.Equal(t, int64(1), payload.Seq)
		default:
			t.Fatalf("subscriber %s got nothing", sub.UserID)
		}
	}
	select {
	case <-other.Events():
		t.Fatal("event leaked to another conversation")
	default:
	}
}

func TestHub_UnsubscribeClosesAndForgets(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub, unsub := hub.Subscribe("c1", "buyer")
	assert.Equal(t, 1, hub.Subscribers("c1"))

	unsub()
	unsub()

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("c1"))

	ev, err := NewEvent(EventTyping, "c1", "seller", nil)
	require.NoError(t, err)
	hub.Deliver(ev)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub, unsub := hub.Subscribe("c1", "buyer")
	defer unsub()

	ev, err := NewEvent(EventTyping, "c1", "seller", nil)
	require.NoError(t, err)
	for i := 0; i < subscriptionBuffer+10; i++ {
		hub.Deliver(ev)
	}
	assert.Len(t, sub.Events(), subscriptionBuffer)
}
