package cluster

// DigestEntry summarizes what a node knows about one incarnation: the
// highest version it has seen for the given NodeID and generation.
type DigestEntry struct {
	ID         NodeID
	Gen        uint64
	MaxVersion uint64
}

// Digest is a compact summary of the whole cluster state, exchanged at the
// start of every gossip round to negotiate deltas.
type Digest []DigestEntry

// NodeDelta carries the entries one incarnation of a node is missing.
// Entries are ordered by ascending version.
type NodeDelta struct {
	ID      NodeID
	Gen     uint64
	Entries []Entry
}

// Delta is the set of updates one peer owes another based on a digest
// comparison.
type Delta []NodeDelta
