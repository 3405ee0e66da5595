package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/realtime"
	"github.com/shinyyama/safedeal/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxClientFrame = 1024
)

type clientFrame struct {
	Type string `json:"type"`
}

// StreamHandler upgrades participants to a websocket carrying the events of
// one conversation.
type StreamHandler struct {
	market   *service.Marketplace
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewStreamHandler(market *service.Marketplace, hub *realtime.Hub, allowedOrigins []string, logger zerolog.Logger) *StreamHandler {
	h := &StreamHandler{
		market: market,
		hub:    hub,
		logger: logger.With().Str("component", "stream_handler").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker allows same-origin requests, plus the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *StreamHandler) Stream(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	convID := c.Param("id")
	if _, err := h.market.GetConversation(c.Request().Context(), uid, convID); err != nil {
		return writeError(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	sub, unsubscribe := h.hub.Subscribe(convID, uid)
	defer unsubscribe()

	log := h.logger.With().Str("conversation_id", convID).Str("user_id", uid).Logger()
	log.Debug().Msg("stream opened")

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()
	go h.readLoop(ctx, cancel, conn, uid, convID, log)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stream closed")
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			// Typing indicators are not echoed back to their sender.
			if ev.Type == realtime.EventTyping && ev.SenderID == uid {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("stream write failed")
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// readLoop handles client frames until the socket closes. The only frame
// clients send is a typing indicator.
func (h *StreamHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, uid, convID string, log zerolog.Logger) {
	defer cancel()
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("stream read failed")
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == realtime.EventTyping {
			h.market.PublishTyping(ctx, uid, convID)
		}
	}
}
