// Package server coordinates connection admission, event dispatch, and
// shutdown draining for the chat relay via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// shutdownMessage is broadcast to every connection before the drain.
const shutdownMessage = "Server is shutting down"

type eventKind int

const (
	evConnect eventKind = iota
	evJoin
	evMessage
	evTyping
	evStopTyping
	evDisconnect
)

var eventKindNames = map[eventKind]string{
	evConnect:    "connect",
	evJoin:       "join",
	evMessage:    "message",
	evTyping:     "typing",
	evStopTyping: "stopTyping",
	evDisconnect: "disconnect",
}

func (k eventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// hubEvent is one unit of work for the hub goroutine. text carries the join
// username or message body, depending on kind.
type hubEvent struct {
	kind   eventKind
	client *Client
	text   string
}

// Hub owns every connected client and processes all inbound events on a
// single goroutine. Each event runs to completion, registry mutations plus
// the broadcasts it triggers, before the next one is taken; that is what
// makes the join check-evict-insert sequence atomic without a lock around
// it. Events from one connection arrive through one queue, so they are
// handled in the order the client sent them.
type Hub struct {
	registry *Registry
	presence *Presence
	router   *Broadcaster

	// clients is touched only by the hub goroutine.
	clients map[string]*Client

	events chan hubEvent

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	cfg    Config
	logger *zap.Logger
}

// NewHub assembles a hub with a fresh registry, presence manager, and
// broadcast router. Call Run before admitting any connection.
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry: NewRegistry(),
		clients:  make(map[string]*Client),
		events:   make(chan hubEvent),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		cfg:      cfg,
		logger:   logger,
	}
	h.router = NewBroadcaster(h.registry, logger.Named("router"), h.removeConn)
	h.presence = NewPresence(h.registry, h.router, h.removeConn, logger.Named("presence"))
	return h
}

// Registry exposes the session registry for read-side consumers such as the
// health endpoint.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Admit hands a freshly upgraded connection to the event loop. It reports
// false when the hub is shutting down, in which case the caller keeps
// ownership of the connection.
func (h *Hub) Admit(c *Client) bool {
	select {
	case h.events <- hubEvent{kind: evConnect, client: c}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Run drains the event queue until Shutdown is called. It must be running
// before the first connection is admitted and is meant to be launched as
// its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	// Presence state never survives a restart.
	h.registry.Clear()
	h.logger.Info("hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.drainClients()
			return
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

// dispatch routes one event to its handler. A panic in a handler is logged
// and answered with a generic error event to the originator; handlers
// validate before they mutate, so a panic never leaves a partial session
// behind.
func (h *Hub) dispatch(ev hubEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic in event handler",
				zap.Stringer("kind", ev.kind),
				zap.Any("panic", r))
			if ev.client != nil {
				h.router.SendToOne(ev.client.id, EventError, ErrorPayload{Message: internalErrorMessage})
			}
		}
	}()

	switch ev.kind {
	case evConnect:
		h.handleConnect(ev.client)
	case evJoin:
		h.handleJoin(ev.client, ev.text)
	case evMessage:
		h.handleMessage(ev.client, ev.text)
	case evTyping:
		h.router.Typing(ev.client.id)
	case evStopTyping:
		h.router.StopTyping(ev.client.id)
	case evDisconnect:
		h.handleDisconnect(ev.client)
	}
}

// handleConnect attaches the client, acknowledges its identity, and starts
// its pumps. No session exists until the client joins.
func (h *Hub) handleConnect(c *Client) {
	h.clients[c.id] = c
	h.router.Attach(c)
	metricConnectedSockets.Inc()

	h.router.SendToOne(c.id, EventConnected, ConnectedPayload{ID: c.id})
	h.logger.Info("client connected",
		zap.String("conn_id", c.id),
		zap.String("addr", c.addr),
		zap.Int("clients", len(h.clients)))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

func (h *Hub) handleJoin(c *Client, rawUsername string) {
	if err := h.presence.Join(c.id, rawUsername); err != nil {
		h.router.SendToOne(c.id, EventError, ErrorPayload{Message: clientMessage(err)})
	}
}

func (h *Hub) handleMessage(c *Client, text string) {
	if err := h.router.Message(c.id, text); err != nil {
		h.router.SendToOne(c.id, EventError, ErrorPayload{Message: clientMessage(err)})
	}
}

// handleDisconnect detaches the client and tears down its session. For a
// connection that never joined, or was already evicted, Leave stays silent.
func (h *Hub) handleDisconnect(c *Client) {
	h.removeConn(c.id)
	h.presence.Leave(c.id)
	h.logger.Info("client disconnected",
		zap.String("conn_id", c.id),
		zap.String("addr", c.addr),
		zap.Int("clients", len(h.clients)))
}

// removeConn detaches connID from the hub and closes its send queue. The
// write pump flushes whatever is queued, eviction notices included, then
// sends a close frame; the read pump's disconnect event completes the
// cleanup. Already-removed ids are ignored, so the eviction, failed-send,
// and disconnect paths may overlap safely.
func (h *Hub) removeConn(connID string) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	h.router.Detach(connID)
	metricConnectedSockets.Dec()
	c.closeSend()
}

// drainClients broadcasts the shutdown notice and closes every connection.
func (h *Hub) drainClients() {
	h.logger.Info("shutting down client connections", zap.Int("clients", len(h.clients)))

	h.router.SendToAll(EventServerShutdown, ShutdownPayload{Message: shutdownMessage})

	for id := range h.clients {
		h.removeConn(id)
	}
}

// Shutdown stops the event loop, then waits for the client pumps to drain.
// It returns context.DeadlineExceeded when the pumps outlive timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timed out with pump goroutines still running")
		return context.DeadlineExceeded
	}
}
