// Package sharding maps object names onto the membership view. Every node
// that shares the same view computes the same owner for a given name,
// which is what lets receivers split incoming segments without talking to
// each other.
package sharding

import (
	"github.com/twmb/murmur3"

	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/membership"
)

// Hash returns the stable 64-bit hash of an object name.
func Hash(name string) uint64 {
	return murmur3.StringSum64(name)
}

// Owner returns the node responsible for the given name under the view,
// or false for an empty view.
func Owner(v membership.View, name string) (cluster.NodeID, bool) {
	if v.Size() == 0 {
		return "", false
	}

	idx := int(Hash(name) % uint64(v.Size()))

	return v.Live[idx], true
}

// Mine reports whether the local node owns the given name. False while the
// local node is not part of the view yet.
func Mine(v membership.View, name string) bool {
	if v.SelfIndex < 0 || v.Size() == 0 {
		return false
	}

	return int(Hash(name)%uint64(v.Size())) == v.SelfIndex
}
