// Package server fans chat events out to connected sockets through the
// Broadcaster, with per-recipient failure isolation.
package server

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Sender is the outbound half of a connection as the Broadcaster sees it:
// an identity plus a non-blocking enqueue.
type Sender interface {
	ID() string
	Enqueue(payload []byte) bool
}

// Broadcaster delivers events to some or all connected sockets. Delivery is
// fire-and-forget per recipient: a full or closed send queue marks that one
// connection as failed without affecting delivery to the others.
//
// The conns map is touched only from the hub goroutine, so it needs no lock
// of its own. The registry consulted for the message and typing contracts
// carries its own.
type Broadcaster struct {
	registry  *Registry
	conns     map[string]Sender
	onFailure func(connID string)
	logger    *zap.Logger
}

// NewBroadcaster returns a Broadcaster over registry. onFailure is invoked,
// after a fan-out completes, for each connection whose queue rejected the
// payload; it may be nil.
func NewBroadcaster(registry *Registry, logger *zap.Logger, onFailure func(connID string)) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		conns:     make(map[string]Sender),
		onFailure: onFailure,
		logger:    logger,
	}
}

// Attach makes s reachable by subsequent broadcasts.
func (b *Broadcaster) Attach(s Sender) {
	b.conns[s.ID()] = s
}

// Detach removes connID from delivery. Unknown ids are ignored.
func (b *Broadcaster) Detach(connID string) {
	delete(b.conns, connID)
}

// SendToAll delivers an event to every connected socket, including the
// originator where there is one.
func (b *Broadcaster) SendToAll(name string, data any) {
	payload, ok := b.encode(name, data)
	if !ok {
		return
	}
	b.fanOut(name, payload, "")
}

// SendToAllExcept delivers an event to every connected socket except
// exceptID. Used for typing signals, which must not echo to the originator.
func (b *Broadcaster) SendToAllExcept(exceptID, name string, data any) {
	payload, ok := b.encode(name, data)
	if !ok {
		return
	}
	b.fanOut(name, payload, exceptID)
}

// SendToOne delivers an event to a single connection and reports whether it
// was queued. Used for join confirmations, validation errors, and eviction
// notices.
func (b *Broadcaster) SendToOne(connID, name string, data any) bool {
	payload, ok := b.encode(name, data)
	if !ok {
		return false
	}

	s, ok := b.conns[connID]
	if !ok {
		return false
	}
	if !s.Enqueue(payload) {
		b.dropConn(connID, name)
		return false
	}

	metricOutboundEvents.WithLabelValues(name).Inc()
	return true
}

// Message validates and relays a chat message from connID. Validation
// failures are returned to the caller and nothing is broadcast.
func (b *Broadcaster) Message(connID, rawText string) error {
	sender, ok := b.registry.Get(connID)
	if !ok {
		return ErrNotJoined
	}
	if strings.TrimSpace(rawText) == "" {
		return ErrMessageEmpty
	}

	b.SendToAll(EventMessage, newChatMessage(sender, rawText))
	return nil
}

// Typing relays a typing signal from connID to every other connection.
// Connections without a session are silently ignored.
func (b *Broadcaster) Typing(connID string) {
	if username, ok := b.registry.Get(connID); ok {
		b.SendToAllExcept(connID, EventUserTyping, TypingPayload{Username: username})
	}
}

// StopTyping relays a stop-typing signal from connID to every other
// connection. Connections without a session are silently ignored.
func (b *Broadcaster) StopTyping(connID string) {
	if username, ok := b.registry.Get(connID); ok {
		b.SendToAllExcept(connID, EventUserStoppedTyping, TypingPayload{Username: username})
	}
}

func (b *Broadcaster) encode(name string, data any) ([]byte, bool) {
	payload, err := json.Marshal(Event{Name: name, Data: data})
	if err != nil {
		b.logger.Error("encoding event", zap.String("event", name), zap.Error(err))
		return nil, false
	}
	return payload, true
}

// fanOut queues payload for every connection except exceptID. Failed
// recipients are collected first and reported after the loop, so onFailure
// may detach them without mutating conns mid-iteration.
func (b *Broadcaster) fanOut(name string, payload []byte, exceptID string) {
	var failed []string
	for id, s := range b.conns {
		if id == exceptID {
			continue
		}
		if s.Enqueue(payload) {
			metricOutboundEvents.WithLabelValues(name).Inc()
		} else {
			failed = append(failed, id)
		}
	}

	for _, id := range failed {
		b.dropConn(id, name)
	}
}

func (b *Broadcaster) dropConn(connID, event string) {
	b.logger.Warn("dropping unresponsive connection",
		zap.String("conn_id", connID),
		zap.String("event", event))
	metricDroppedDeliveries.Inc()

	if b.onFailure != nil {
		b.onFailure(connID)
	}
}
