package cluster

import "sort"

// Entry is a single versioned key-value record of a node. A tombstone marks
// a deleted key while keeping its version so that replicas converge on the
// deletion.
type Entry struct {
	Key       string
	Value     string
	Version   uint64
	Tombstone bool
}

// NodeState holds the key-value map of a single node incarnation
// (NodeID + Generation). The owning node is the only writer, all other
// nodes hold replicas updated exclusively through Apply.
//
// NodeState is not safe for concurrent use. All access goes through the
// engine lock.
type NodeState struct {
	id         NodeID
	gen        uint64
	entries    map[string]Entry
	maxVersion uint64
}

func NewNodeState(id NodeID, gen uint64) *NodeState {
	return &NodeState{
		id:      id,
		gen:     gen,
		entries: make(map[string]Entry),
	}
}

func (s *NodeState) ID() NodeID {
	return s.id
}

func (s *NodeState) Gen() uint64 {
	return s.gen
}

// MaxVersion is the highest version among all entries. It only grows.
func (s *NodeState) MaxVersion() uint64 {
	return s.maxVersion
}

// Set writes a key locally, assigning the next version. Only the owning
// node may call it.
func (s *NodeState) Set(key, value string) uint64 {
	s.maxVersion++

	s.entries[key] = Entry{
		Key:     key,
		Value:   value,
		Version: s.maxVersion,
	}

	return s.maxVersion
}

// Delete writes a tombstone for the key at a new version. Deleting a key
// that was never set still produces a tombstone, which is harmless.
func (s *NodeState) Delete(key string) uint64 {
	s.maxVersion++

	s.entries[key] = Entry{
		Key:       key,
		Version:   s.maxVersion,
		Tombstone: true,
	}

	return s.maxVersion
}

// Get returns the value of the key, hiding tombstones.
func (s *NodeState) Get(key string) (string, bool) {
	e, ok := s.entries[key]
	if !ok || e.Tombstone {
		return "", false
	}

	return e.Value, true
}

// Entry returns the raw record, including tombstones.
func (s *NodeState) Entry(key string) (Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// Apply writes a replicated entry if it is strictly newer than the local
// record for the same key. Returns true if the entry was written.
func (s *NodeState) Apply(e Entry) bool {
	if curr, ok := s.entries[e.Key]; ok && e.Version <= curr.Version {
		return false
	}

	s.entries[e.Key] = e

	if e.Version > s.maxVersion {
		s.maxVersion = e.Version
	}

	return true
}

// EntriesAfter returns all entries with a version strictly greater than
// the given one, in ascending version order.
func (s *NodeState) EntriesAfter(version uint64) []Entry {
	var entries []Entry

	for _, e := range s.entries {
		if e.Version > version {
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Version < entries[j].Version
	})

	return entries
}

func (s *NodeState) Len() int {
	return len(s.entries)
}
