package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oggyb/muzz-matching/internal/realtime"
)

// client is one WebSocket connection. Frames reach writePump through send;
// mu guards subs and orders frames of one channel around unsubscribe.
type client struct {
	h      *Handler
	conn   *websocket.Conn
	userID uint64

	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte

	mu   sync.Mutex
	subs map[uint64]*realtime.Subscription
}

func newClient(h *Handler, conn *websocket.Conn, userID uint64) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		h:      h,
		conn:   conn,
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
		subs:   make(map[uint64]*realtime.Subscription),
	}
}

func (c *client) readPump() {
	defer func() {
		// cancelling closes every subscription opened with c.ctx
		c.cancel()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f ClientFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.enqueue(ServerFrame{Type: FrameError, Code: "invalid", Error: "malformed frame"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.logger.Warn("ws read failed", "user", c.userID, "err", err)
			}
			return
		}

		switch f.Op {
		case OpSubscribe:
			c.subscribe(f.ChannelID)
		case OpUnsubscribe:
			c.unsubscribe(f.ChannelID)
		default:
			c.enqueue(ServerFrame{Type: FrameError, ChannelID: f.ChannelID, Code: "invalid", Error: "unknown op " + f.Op})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *client) subscribe(channelID uint64) {
	c.mu.Lock()
	_, exists := c.subs[channelID]
	c.mu.Unlock()
	if exists {
		c.enqueue(ServerFrame{Type: FrameSubscribed, ChannelID: channelID})
		return
	}

	sub, err := c.h.subs.Subscribe(c.ctx, channelID, c.userID)
	if err != nil {
		c.enqueue(ServerFrame{Type: FrameError, ChannelID: channelID, Code: errorCode(err), Error: err.Error()})
		return
	}

	c.mu.Lock()
	c.subs[channelID] = sub
	c.enqueue(ServerFrame{Type: FrameSubscribed, ChannelID: channelID})
	c.mu.Unlock()

	go c.forward(sub)
}

// unsubscribe drops the channel from the map before acknowledging, so no
// event of the channel follows the unsubscribed frame.
func (c *client) unsubscribe(channelID uint64) {
	c.mu.Lock()
	sub, ok := c.subs[channelID]
	delete(c.subs, channelID)
	c.enqueue(ServerFrame{Type: FrameUnsubscribed, ChannelID: channelID})
	c.mu.Unlock()

	if ok {
		_ = sub.Close()
	}
}

func (c *client) forward(sub *realtime.Subscription) {
	for ev := range sub.Events() {
		msg := ev.Message
		if !c.deliver(sub, ServerFrame{
			Type:      string(ev.Type),
			ChannelID: ev.ChannelID,
			Seq:       ev.Seq,
			Message:   &msg,
		}) {
			return
		}
	}

	if err := sub.Err(); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.subs[sub.ChannelID] == sub {
			delete(c.subs, sub.ChannelID)
			c.enqueue(ServerFrame{Type: FrameError, ChannelID: sub.ChannelID, Code: errorCode(err), Error: err.Error()})
		}
	}
}

// deliver enqueues f only while sub is still the live subscription of its
// channel.
func (c *client) deliver(sub *realtime.Subscription, f ServerFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.ChannelID] != sub {
		return false
	}
	c.enqueue(f)
	return true
}

// enqueue never blocks; a connection that cannot keep up is dropped.
func (c *client) enqueue(f ServerFrame) {
	b, err := json.Marshal(f)
	if err != nil {
		c.h.logger.Error("ws frame encode failed", "type", f.Type, "err", err)
		return
	}
	select {
	case c.send <- b:
	case <-c.ctx.Done():
	default:
		c.h.logger.Warn("ws send buffer full, dropping connection", "user", c.userID)
		c.cancel()
	}
}
