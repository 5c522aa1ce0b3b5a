// Package server enforces the join/leave/eviction rules of the room through
// the Presence type.
package server

import (
	"strings"

	"go.uber.org/zap"
)

// KickFunc force-closes a superseded connection. By the time it runs the
// eviction notice is already in that connection's send queue.
type KickFunc func(connID string)

// Presence owns every session state transition and is the only component
// that mutates the Registry. All calls run on the hub goroutine, so a full
// join (check, evict, insert, announce) completes before the next event is
// handled.
type Presence struct {
	registry *Registry
	router   *Broadcaster
	kick     KickFunc
	logger   *zap.Logger
}

// NewPresence returns a Presence over registry that announces membership
// changes through router and removes superseded connections via kick.
func NewPresence(registry *Registry, router *Broadcaster, kick KickFunc, logger *zap.Logger) *Presence {
	return &Presence{
		registry: registry,
		router:   router,
		kick:     kick,
		logger:   logger,
	}
}

// Join claims a username for connID. The raw name is trimmed before
// validation; failures are returned without any registry mutation or
// broadcast. On success the caller's connection receives a joined event and
// everyone receives userJoined followed by a fresh roster. A connection that
// already holds a session may join again under a new name: the old session
// ends as an announced leave before the new one is created.
func (p *Presence) Join(connID, rawUsername string) error {
	username := strings.TrimSpace(rawUsername)
	if username == "" {
		return ErrUsernameEmpty
	}
	if p.registry.ContainsUsername(username) {
		return ErrUsernameTaken
	}

	// A repeat join is a rename: sessions are destroyed and recreated,
	// never updated in place. Running after the name checks keeps a failed
	// rename from touching the existing session.
	if _, ok := p.registry.Get(connID); ok {
		p.Leave(connID)
	}

	// The uniqueness check above makes this sweep a no-op in the sequential
	// case, but it stays unconditional: any session still holding the name
	// is superseded before the new one is inserted.
	for _, victim := range p.registry.ConnsByUsername(username) {
		p.evict(victim)
	}

	p.registry.Put(connID, username)
	metricOnlineUsers.Set(float64(p.registry.Count()))

	p.router.SendToOne(connID, EventJoined, JoinedPayload{Username: username, ID: connID})
	p.router.SendToAll(EventUserJoined, PresencePayload{Username: username, ID: connID})
	p.router.SendToAll(EventUserList, p.registry.SnapshotUsernames())

	p.logger.Info("user joined",
		zap.String("username", username),
		zap.String("conn_id", connID),
		zap.Int("online", p.registry.Count()))
	return nil
}

// Leave tears down the session for connID, if one exists, and announces the
// departure followed by a fresh roster. Disconnects of connections that
// never joined are silent no-ops.
func (p *Presence) Leave(connID string) {
	username, ok := p.registry.Remove(connID)
	if !ok {
		return
	}
	metricOnlineUsers.Set(float64(p.registry.Count()))

	p.router.SendToAll(EventUserLeft, PresencePayload{Username: username, ID: connID})
	p.router.SendToAll(EventUserList, p.registry.SnapshotUsernames())

	p.logger.Info("user left",
		zap.String("username", username),
		zap.String("conn_id", connID),
		zap.Int("online", p.registry.Count()))
}

// evict removes connID's session, tells that connection it has been
// superseded, and force-closes it. The victim's eventual disconnect then
// finds no session and stays silent, so no userLeft is broadcast for it.
func (p *Presence) evict(connID string) {
	p.registry.Remove(connID)
	metricOnlineUsers.Set(float64(p.registry.Count()))

	p.router.SendToOne(connID, EventError, ErrorPayload{Message: noticeSuperseded})
	if p.kick != nil {
		p.kick(connID)
	}

	p.logger.Info("session superseded", zap.String("conn_id", connID))
}
