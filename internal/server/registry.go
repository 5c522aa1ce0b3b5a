// Package server tracks which connection owns which username via the
// Registry, the single source of truth for room membership.
package server

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps connection ids to claimed usernames and preserves join
// order for roster broadcasts. All mutations happen on the hub goroutine;
// the lock exists so the HTTP surface (health, metrics collectors) can take
// consistent reads from other goroutines.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]string
	order  []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]string)}
}

// Put inserts a connection-to-username binding. Callers must have verified
// that neither key is already present; Put does not check.
func (r *Registry) Put(connID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byConn[connID] = username
	r.order = append(r.order, username)
}

// Get returns the username bound to connID, if any.
func (r *Registry) Get(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	username, ok := r.byConn[connID]
	return username, ok
}

// Remove deletes the binding for connID and returns the username it held.
// Removing an unknown connID is a no-op.
func (r *Registry) Remove(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.byConn[connID]
	if !ok {
		return "", false
	}

	delete(r.byConn, connID)
	r.order = lo.Without(r.order, username)
	return username, true
}

// ContainsUsername reports whether any live session holds username.
// Matching is exact and case-sensitive.
func (r *Registry) ContainsUsername(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Contains(r.order, username)
}

// ConnsByUsername returns the ids of every connection bound to username.
// Uniqueness enforcement means the result has at most one element in normal
// operation, but the eviction sweep walks all matches regardless.
func (r *Registry) ConnsByUsername(username string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, name := range r.byConn {
		if name == username {
			ids = append(ids, id)
		}
	}
	return ids
}

// SnapshotUsernames returns all usernames in join order. The result is a
// copy and never nil, so it marshals as a JSON array even when empty.
func (r *Registry) SnapshotUsernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byConn)
}

// Clear empties all state. Called once at process start, before any
// connection is accepted.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byConn = make(map[string]string)
	r.order = nil
}
