package wire

import "github.com/jorisvilardell/zuklink/cluster"

// Encoded size helpers used by the engine to keep outgoing frames within
// the MTU budget. They must stay in sync with the encoder.

// DigestSize returns the encoded size of a digest in bytes.
func DigestSize(d cluster.Digest) int {
	size := 4

	for _, de := range d {
		size += 2 + len(de.ID) + 8 + 8
	}

	return size
}

// DeltaSize returns the encoded size of a delta in bytes.
func DeltaSize(d cluster.Delta) int {
	size := 4

	for _, nd := range d {
		size += NodeDeltaOverhead(nd.ID)

		for _, e := range nd.Entries {
			size += EntrySize(e)
		}
	}

	return size
}

// NodeDeltaOverhead is the per-node framing cost within a delta, before
// any entries.
func NodeDeltaOverhead(id cluster.NodeID) int {
	return 2 + len(id) + 8 + 4
}

// EntrySize returns the encoded size of a single entry.
func EntrySize(e cluster.Entry) int {
	return 2 + len(e.Key) + 8 + 1 + 4 + len(e.Value)
}
