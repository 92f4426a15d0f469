// Package ws is the WebSocket gateway for realtime chat events.
//
// One connection carries any number of channel subscriptions:
//
//	client -> {"op":"subscribe","channel_id":7}
//	server <- {"type":"subscribed","channel_id":7}
//	server <- {"type":"new_message","channel_id":7,"seq":12,"message":{...}}
//	client -> {"op":"unsubscribe","channel_id":7}
//	server <- {"type":"unsubscribed","channel_id":7}
//
// Failures come back as {"type":"error","channel_id":7,"code":"forbidden","error":"..."}.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"

	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameError        = "error"
)

// Subscriber opens a realtime subscription after checking that userID
// takes part in the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channelID, userID uint64) (*realtime.Subscription, error)
}

// ClientFrame is a request sent by the client.
type ClientFrame struct {
	Op        string `json:"op"`
	ChannelID uint64 `json:"channel_id"`
}

// ServerFrame is everything the gateway writes. Type is one of the bus
// event types or a control frame.
type ServerFrame struct {
	Type      string            `json:"type"`
	ChannelID uint64            `json:"channel_id,omitempty"`
	Seq       uint64            `json:"seq,omitempty"`
	Message   *realtime.Message `json:"message,omitempty"`
	Code      string            `json:"code,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type Handler struct {
	subs     Subscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(subs Subscriber, logger *slog.Logger) *Handler {
	return &Handler{
		subs: subs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP upgrades /ws?user_id=N and serves the connection until either
// side closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID == 0 {
		http.Error(w, "user_id must be a valid uint64", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "user", userID, "err", err)
		return
	}

	c := newClient(h, conn, userID)
	h.logger.Debug("ws connected", "user", userID)
	go c.writePump()
	c.readPump()
	h.logger.Debug("ws disconnected", "user", userID)
}

// errorCode is the machine readable code of an error frame.
func errorCode(err error) string {
	switch {
	case errors.Is(err, svcErr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, svcErr.ErrNotFound):
		return "not_found"
	case errors.Is(err, svcErr.ErrValidation):
		return "invalid"
	case errors.Is(err, realtime.ErrSlowConsumer):
		return "slow_consumer"
	default:
		return "unavailable"
	}
}
