package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plantStaleBinding inserts a connection-to-username binding without adding
// the name to the roster, reproducing the inconsistent state the join-time
// eviction sweep exists to repair. Safe to call while a hub is running.
func plantStaleBinding(r *Registry, connID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[connID] = username
}

// TestRegistryPutGet tests the basic binding lifecycle.
// It verifies that Put makes a binding visible to Get and that unknown
// connection ids report absence.
func TestRegistryPutGet(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Get("conn-1")
	require.False(t, ok)

	reg.Put("conn-1", "alice")

	username, ok := reg.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alice", username)
	assert.Equal(t, 1, reg.Count())
}

// TestRegistryRemove tests binding removal.
// It verifies that Remove returns the username the connection held, that the
// name leaves the roster, and that removing an unknown id is a no-op.
func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	reg.Put("conn-1", "alice")
	reg.Put("conn-2", "bob")

	username, ok := reg.Remove("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alice", username)
	assert.False(t, reg.ContainsUsername("alice"))
	assert.Equal(t, []string{"bob"}, reg.SnapshotUsernames())

	_, ok = reg.Remove("conn-1")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Count())
}

// TestRegistryContainsUsernameIsCaseSensitive verifies that username
// uniqueness is an exact match, so "Alice" and "alice" are distinct names.
func TestRegistryContainsUsernameIsCaseSensitive(t *testing.T) {
	reg := NewRegistry()
	reg.Put("conn-1", "Alice")

	assert.True(t, reg.ContainsUsername("Alice"))
	assert.False(t, reg.ContainsUsername("alice"))
}

// TestRegistryConnsByUsername verifies the reverse lookup used by the
// eviction sweep, including the stale-binding case where a connection holds
// a name that no longer appears on the roster.
func TestRegistryConnsByUsername(t *testing.T) {
	reg := NewRegistry()
	reg.Put("conn-1", "alice")

	assert.Equal(t, []string{"conn-1"}, reg.ConnsByUsername("alice"))
	assert.Empty(t, reg.ConnsByUsername("bob"))

	plantStaleBinding(reg, "conn-stale", "carol")
	assert.False(t, reg.ContainsUsername("carol"))
	assert.Equal(t, []string{"conn-stale"}, reg.ConnsByUsername("carol"))
}

// TestRegistrySnapshotPreservesJoinOrder tests roster ordering.
// It verifies that SnapshotUsernames returns names in the order they joined,
// even after departures in the middle.
func TestRegistrySnapshotPreservesJoinOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Put("conn-1", "alice")
	reg.Put("conn-2", "bob")
	reg.Put("conn-3", "carol")

	assert.Equal(t, []string{"alice", "bob", "carol"}, reg.SnapshotUsernames())

	reg.Remove("conn-2")
	assert.Equal(t, []string{"alice", "carol"}, reg.SnapshotUsernames())
}

// TestRegistrySnapshotMarshalsEmptyAsArray verifies that an empty roster
// serializes as a JSON array, not null, since clients iterate the userList
// payload unconditionally.
func TestRegistrySnapshotMarshalsEmptyAsArray(t *testing.T) {
	reg := NewRegistry()

	data, err := json.Marshal(reg.SnapshotUsernames())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

// TestRegistrySnapshotIsACopy verifies that mutating a snapshot does not
// reach back into registry state.
func TestRegistrySnapshotIsACopy(t *testing.T) {
	reg := NewRegistry()
	reg.Put("conn-1", "alice")

	snapshot := reg.SnapshotUsernames()
	snapshot[0] = "mallory"

	assert.Equal(t, []string{"alice"}, reg.SnapshotUsernames())
}

// TestRegistryClear verifies that Clear drops every binding, matching the
// fresh-start behavior at hub startup.
func TestRegistryClear(t *testing.T) {
	reg := NewRegistry()
	reg.Put("conn-1", "alice")
	reg.Put("conn-2", "bob")

	reg.Clear()

	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.SnapshotUsernames())
	assert.False(t, reg.ContainsUsername("alice"))
}
