// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single outbound write, pings included.
	writeWait = 10 * time.Second

	// pongWait is how long the read side tolerates silence before giving
	// up on the peer; pings go out every pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// sendQueueSize is the per-client outbound buffer. A client that falls
	// this far behind is dropped instead of stalling broadcasts.
	sendQueueSize = 256
)

// Client is one WebSocket connection: its server-assigned identity, the
// outbound queue drained by the write pump, and the read pump that turns
// inbound frames into hub events.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string

	// closed is owned by the hub goroutine, like the send channel it
	// guards against double-close.
	closed bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	logger         *zap.Logger
}

// NewClient wraps an upgraded WebSocket connection with a freshly assigned
// connection id, an outbound queue, and a per-connection rate limiter.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendQueueSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		logger:         hub.logger.With(zap.String("conn_id", id), zap.String("addr", addr)),
	}
}

// ID returns the connection identity assigned at admission.
func (c *Client) ID() string { return c.id }

// Enqueue queues payload for delivery and reports false when the client is
// closing or its buffer is full. Hub goroutine only.
func (c *Client) Enqueue(payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound queue, letting the write pump flush what is
// already queued and finish with a close frame. Hub goroutine only.
func (c *Client) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// emit queues an event for the hub, giving up when the hub is shutting down.
func (c *Client) emit(kind eventKind, text string) {
	select {
	case c.hub.events <- hubEvent{kind: kind, client: c, text: text}:
	case <-c.hub.ctx.Done():
	}
}

// setupReadConnection configures the read deadline and pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// logReadError classifies the read failure so routine disconnects stay
// quiet in the logs.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("inbound frame exceeded size limit", zap.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected close", zap.Error(err))
	default:
		c.logger.Warn("read failed", zap.Error(err))
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn("rate limit exceeded, discarding frame",
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("refill_interval", c.rateLimit.RefillInterval))
		return false
	}
	return true
}

// dispatchFrame decodes one inbound frame and forwards it to the hub.
// Malformed frames and unknown event names are dropped with a log entry;
// error events go out only for well-formed requests that fail validation.
func (c *Client) dispatchFrame(raw []byte) {
	var in inboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		c.logger.Debug("discarding malformed frame", zap.Error(err))
		return
	}

	switch in.Name {
	case EventJoin:
		var req joinRequest
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &req); err != nil {
				c.logger.Debug("discarding malformed join payload", zap.Error(err))
				return
			}
		}
		metricInboundEvents.WithLabelValues(in.Name).Inc()
		c.emit(evJoin, req.Username)

	case EventMessage:
		var req messageRequest
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &req); err != nil {
				c.logger.Debug("discarding malformed message payload", zap.Error(err))
				return
			}
		}
		metricInboundEvents.WithLabelValues(in.Name).Inc()
		c.emit(evMessage, req.Text)

	case EventTyping:
		metricInboundEvents.WithLabelValues(in.Name).Inc()
		c.emit(evTyping, "")

	case EventStopTyping:
		metricInboundEvents.WithLabelValues(in.Name).Inc()
		c.emit(evStopTyping, "")

	default:
		c.logger.Debug("discarding unknown event", zap.String("event", in.Name))
	}
}

// readPump reads frames until the connection dies, then reports the
// disconnect to the hub.
func (c *Client) readPump() {
	defer func() {
		c.emit(evDisconnect, "")
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("closing connection after read loop", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.checkRateLimit() {
			continue
		}
		c.dispatchFrame(raw)
	}
}

// writePump drains the send queue, one event per text frame, and keeps the
// connection alive with periodic pings. When the queue is closed it flushes
// the remainder, sends a close frame, and closes the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("setting write deadline", zap.Error(err))
				return
			}
			if !ok {
				c.writeCloseFrame()
				return
			}
			// One event per frame; clients decode each frame on its own.
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warn("writing frame", zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

// closeConnection closes the underlying socket, keeping routine teardown
// errors out of the logs.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("closing connection after write loop", zap.Error(err))
	}
}

// writeCloseFrame tells the peer the server is done with this connection.
func (c *Client) writeCloseFrame() {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("writing close frame", zap.Error(err))
	}
}

// sendPing keeps the connection alive and reports false when the peer is
// unreachable.
func (c *Client) sendPing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("writing ping", zap.Error(err))
		}
		return false
	}
	return true
}

// isExpectedCloseError reports whether err is part of a normal connection
// teardown rather than something worth logging loudly.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
