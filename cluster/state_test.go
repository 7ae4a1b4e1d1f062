package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeState_SetAssignsDenseVersions(t *testing.T) {
	s := NewNodeState("node-1", 1)

	require.Equal(t, uint64(1), s.Set("role", "receiver"))
	require.Equal(t, uint64(2), s.Set("load", "0.5"))
	require.Equal(t, uint64(3), s.Set("role", "ingest"))

	assert.Equal(t, uint64(3), s.MaxVersion())

	value, ok := s.Get("role")
	require.True(t, ok)
	assert.Equal(t, "ingest", value)
}

func TestNodeState_DeleteLeavesTombstone(t *testing.T) {
	s := NewNodeState("node-1", 1)

	s.Set("role", "receiver")
	version := s.Delete("role")

	_, ok := s.Get("role")
	assert.False(t, ok)

	e, ok := s.Entry("role")
	require.True(t, ok)
	assert.True(t, e.Tombstone)
	assert.Equal(t, version, e.Version)
	assert.Equal(t, version, s.MaxVersion())
}

func TestNodeState_ApplyIgnoresOldVersions(t *testing.T) {
	s := NewNodeState("node-1", 1)

	require.True(t, s.Apply(Entry{Key: "role", Value: "receiver", Version: 5}))
	assert.False(t, s.Apply(Entry{Key: "role", Value: "stale", Version: 5}))
	assert.False(t, s.Apply(Entry{Key: "role", Value: "older", Version: 3}))

	value, _ := s.Get("role")
	assert.Equal(t, "receiver", value)
	assert.Equal(t, uint64(5), s.MaxVersion())
}

func TestNodeState_EntriesAfterSortedByVersion(t *testing.T) {
	s := NewNodeState("node-1", 1)

	s.Set("a", "1")
	s.Set("b", "2")
	s.Set("c", "3")
	s.Set("a", "4") // moves key a to version 4

	entries := s.EntriesAfter(2)

	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Key)
	assert.Equal(t, "a", entries[1].Key)
	assert.Less(t, entries[0].Version, entries[1].Version)
}

func TestNodeID_Valid(t *testing.T) {
	assert.True(t, NodeID("receiver-1").Valid())
	assert.False(t, NodeID("").Valid())
	assert.False(t, NodeID("bad\x00id").Valid())
}
