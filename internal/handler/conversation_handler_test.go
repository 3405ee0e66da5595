package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationHandler_Flow(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/conversations/l1/seller", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cv ConversationResponse
	decodeBody(t, rec, &cv)
	assert.Equal(t, "buyer", cv.BuyerID)
	assert.Equal(t, "seller", cv.SellerID)

	rec = api.do(t, http.MethodPost, "/conversations/l1/seller", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var again ConversationResponse
	decodeBody(t, rec, &again)
	assert.Equal(t, cv.ID, again.ID)

	rec = api.do(t, http.MethodPost, "/conversations/"+cv.ID+"/messages", "seller", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var msg MessageResponse
	decodeBody(t, rec, &msg)
	assert.EqualValues(t, 1, msg.Seq)
	assert.Equal(t, "seller", msg.SenderID)

	var list struct {
		Conversations []ConversationResponse `json:"conversations"`
	}
	rec = api.do(t, http.MethodGet, "/conversations", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "buyer", list.Conversations[0].Role)
	require.NotNil(t, list.Conversations[0].UnreadCount)
	assert.EqualValues(t, 1, *list.Conversations[0].UnreadCount)

	rec = api.do(t, http.MethodPost, "/conversations/"+cv.ID+"/mark-read", "buyer", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/conversations", "buyer", "")
	decodeBody(t, rec, &list)
	assert.EqualValues(t, 0, *list.Conversations[0].UnreadCount)

	var msgs struct {
		Messages []MessageResponse `json:"messages"`
	}
	rec = api.do(t, http.MethodGet, "/conversations/"+cv.ID+"/messages", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &msgs)
	require.Len(t, msgs.Messages, 1)
	assert.Equal(t, "hello", msgs.Messages[0].Content)
}

func TestConversationHandler_Rejections(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/conversations/l1/buyer", "buyer", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_participants", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/conversations/l1/seller", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cv ConversationResponse
	decodeBody(t, rec, &cv)

	tests := []struct {
		name string
		uid  string
		body string
		want int
		code string
	}{
		{"blank content", "buyer", `{"content":"   "}`, http.StatusBadRequest, "invalid_content"},
		{"missing content", "buyer", `{}`, http.StatusBadRequest, "invalid_content"},
		{"too long", "buyer", `{"content":"` + strings.Repeat("x", 5001) + `"}`, http.StatusBadRequest, "invalid_content"},
		{"stranger", "stranger", `{"content":"hi"}`, http.StatusForbidden, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/conversations/"+cv.ID+"/messages", tt.uid, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec = api.do(t, http.MethodPost, "/conversations/missing/messages", "buyer", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/conversations/"+cv.ID, "stranger", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/conversations/"+cv.ID+"/mark-read", "stranger", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
