package cluster

import (
	"github.com/jorisvilardell/zuklink/internal/generic"
)

// State is the full picture a node has of the cluster: one NodeState per
// known NodeID, at most one generation each. The local node owns exactly
// one of them, everything else is a replica.
//
// State is not safe for concurrent use. The gossip engine guards it with
// a single read/write lock.
type State struct {
	selfID NodeID
	nodes  map[NodeID]*NodeState
}

func NewState(self *NodeState) *State {
	nodes := make(map[NodeID]*NodeState, 1)
	nodes[self.ID()] = self

	return &State{
		selfID: self.ID(),
		nodes:  nodes,
	}
}

func (s *State) SelfID() NodeID {
	return s.selfID
}

func (s *State) Self() *NodeState {
	return s.nodes[s.selfID]
}

func (s *State) Node(id NodeID) (*NodeState, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// IDs returns all known node IDs in lexicographical order.
func (s *State) IDs() []NodeID {
	ids := generic.MapKeys(s.nodes)
	generic.SortSlice(ids)

	return ids
}

func (s *State) Len() int {
	return len(s.nodes)
}

// Remove evicts a replica. The local node state cannot be removed.
func (s *State) Remove(id NodeID) {
	if id == s.selfID {
		return
	}

	delete(s.nodes, id)
}

// Digest builds the per-node version summary, ordered by node ID.
func (s *State) Digest() Digest {
	digest := make(Digest, 0, len(s.nodes))

	for _, id := range s.IDs() {
		n := s.nodes[id]

		digest = append(digest, DigestEntry{
			ID:         n.ID(),
			Gen:        n.Gen(),
			MaxVersion: n.MaxVersion(),
		})
	}

	return digest
}

// DeltaFor computes the entries the remote side is missing, given its
// digest. Nodes the remote has never heard of are included in full.
// Nodes the remote knows and we do not are left out: our own digest,
// sent in the same round, asks for them in return.
func (s *State) DeltaFor(remote Digest) Delta {
	remoteByID := make(map[NodeID]DigestEntry, len(remote))
	for _, de := range remote {
		remoteByID[de.ID] = de
	}

	var delta Delta

	for _, id := range s.IDs() {
		n := s.nodes[id]

		var entries []Entry

		re, known := remoteByID[id]

		switch {
		case !known || n.Gen() > re.Gen:
			// The remote has nothing usable: send the incarnation from scratch.
			entries = n.EntriesAfter(0)
		case n.Gen() == re.Gen && n.MaxVersion() > re.MaxVersion:
			entries = n.EntriesAfter(re.MaxVersion)
		default:
			continue
		}

		if len(entries) == 0 {
			continue
		}

		delta = append(delta, NodeDelta{
			ID:      n.ID(),
			Gen:     n.Gen(),
			Entries: entries,
		})
	}

	return delta
}

// ApplyResult reports which nodes a delta affected. Touched nodes had at
// least one entry applied or changed generation, and count as a liveness
// signal. Restarted nodes appeared for the first time or moved to a higher
// generation, which must reset their failure detector window.
type ApplyResult struct {
	Touched   []NodeID
	Restarted []NodeID
}

// ApplyDelta merges remote updates into the state. Stale generations are
// dropped entirely, a higher generation replaces the node state in place,
// and per-key versions never decrease. Deltas for the local node are
// ignored: the local state is writable only by the local node.
func (s *State) ApplyDelta(delta Delta) ApplyResult {
	var res ApplyResult

	for _, nd := range delta {
		if nd.ID == s.selfID {
			continue
		}

		restarted := false

		local, ok := s.nodes[nd.ID]

		switch {
		case !ok:
			local = NewNodeState(nd.ID, nd.Gen)
			s.nodes[nd.ID] = local
			restarted = true
		case nd.Gen < local.Gen():
			continue
		case nd.Gen > local.Gen():
			local = NewNodeState(nd.ID, nd.Gen)
			s.nodes[nd.ID] = local
			restarted = true
		}

		applied := false

		for _, e := range nd.Entries {
			if local.Apply(e) {
				applied = true
			}
		}

		if restarted {
			res.Restarted = append(res.Restarted, nd.ID)
		}

		if applied || restarted {
			res.Touched = append(res.Touched, nd.ID)
		}
	}

	return res
}
