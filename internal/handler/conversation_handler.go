package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/service"
)

type ConversationHandler struct {
	market *service.Marketplace
	logger zerolog.Logger
}

func NewConversationHandler(market *service.Marketplace, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		market: market,
		logger: logger.With().Str("component", "conversation_handler").Logger(),
	}
}

type ConversationResponse struct {
	ID            string `json:"id"`
	ListingID     string `json:"listing_id"`
	BuyerID       string `json:"buyer_id"`
	SellerID      string `json:"seller_id"`
	LastSeq       int64  `json:"last_seq"`
	LastMessageAt string `json:"last_message_at"`
	CreatedAt     string `json:"created_at"`
	Role          string `json:"role,omitempty"`
	UnreadCount   *int64 `json:"unread_count,omitempty"`
}

func toConversationResponse(cv model.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:            cv.ID,
		ListingID:     cv.ListingID,
		BuyerID:       cv.BuyerID,
		SellerID:      cv.SellerID,
		LastSeq:       cv.LastSeq,
		LastMessageAt: cv.LastMessageAt.UTC().Format(time.RFC3339),
		CreatedAt:     cv.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type MessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Seq            int64  `json:"seq"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

func toMessageResponse(m model.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Contact opens the caller's conversation with a seller about a listing.
func (h *ConversationHandler) Contact(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	cv, err := h.market.ContactSeller(c.Request().Context(), uid, c.Param("listing_id"), c.Param("seller_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(*cv))
}

func (h *ConversationHandler) List(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	page, ok := parsePage(c)
	if !ok {
		return badRequest(c, "invalid skip or limit")
	}
	list, err := h.market.ListConversations(c.Request().Context(), uid, page)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]ConversationResponse, 0, len(list))
	for _, s := range list {
		r := toConversationResponse(s.Conversation)
		r.Role = s.Role.String()
		unread := s.UnreadCount
		r.UnreadCount = &unread
		resp = append(resp, r)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"conversations": resp})
}

func (h *ConversationHandler) Get(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	cv, err := h.market.GetConversation(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(*cv))
}

func (h *ConversationHandler) SendMessage(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	var req MessageRequest
	if err := decode(c, &req); err != nil {
		return writeError(c, service.ErrInvalidContent)
	}
	msg, err := h.market.SendMessage(c.Request().Context(), uid, c.Param("id"), req.Content)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toMessageResponse(*msg))
}

func (h *ConversationHandler) ListMessages(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	page, ok := parsePage(c)
	if !ok {
		return badRequest(c, "invalid skip or limit")
	}
	list, err := h.market.ListMessages(c.Request().Context(), uid, c.Param("id"), page)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]MessageResponse, 0, len(list))
	for _, m := range list {
		resp = append(resp, toMessageResponse(m))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": resp})
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	n, err := h.market.MarkRead(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	h.logger.Debug().Str("conversation_id", c.Param("id")).Str("reader_id", uid).Int64("acknowledged", n).Msg("conversation read")
	return c.NoContent(http.StatusNoContent)
}
