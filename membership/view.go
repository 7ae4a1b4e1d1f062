// Package membership derives the deterministic cluster view from liveness
// verdicts and fans snapshot updates out to subscribers.
package membership

import (
	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/internal/generic"
)

// View is an immutable snapshot of the live membership. Nodes are sorted
// lexicographically by ID so that any two nodes sharing the same liveness
// set produce the same sequence, which is what makes consistent hashing
// across receivers agree.
type View struct {
	// Live is the sorted list of live node IDs, including self.
	Live []cluster.NodeID

	// SelfIndex is the position of the local node in Live, or -1 while
	// the local node is not yet part of the view.
	SelfIndex int
}

// NewView builds a snapshot from an unordered set of live nodes.
func NewView(live []cluster.NodeID, self cluster.NodeID) View {
	sorted := make([]cluster.NodeID, len(live))
	copy(sorted, live)
	generic.SortSlice(sorted)

	selfIndex := -1

	for i, id := range sorted {
		if id == self {
			selfIndex = i
			break
		}
	}

	return View{
		Live:      sorted,
		SelfIndex: selfIndex,
	}
}

// Size returns the number of live nodes.
func (v View) Size() int {
	return len(v.Live)
}

// Contains reports whether the node is part of the view.
func (v View) Contains(id cluster.NodeID) bool {
	for _, n := range v.Live {
		if n == id {
			return true
		}
	}

	return false
}

// Equal reports whether two snapshots contain the same nodes in the same
// order.
func (v View) Equal(other View) bool {
	if len(v.Live) != len(other.Live) || v.SelfIndex != other.SelfIndex {
		return false
	}

	for i := range v.Live {
		if v.Live[i] != other.Live[i] {
			return false
		}
	}

	return true
}
