package gossip

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/gossip/wire"
)

// truncateDelta keeps a delta within the given byte budget, cutting at
// entry boundaries. Lower versions go first, interleaved round-robin
// across nodes, so lagging replicas catch up quickly and no single node's
// updates starve the others. Truncation is safe: whatever is cut resumes
// from the new remote max version on the next round.
func truncateDelta(d cluster.Delta, budget int, logger log.Logger) cluster.Delta {
	if wire.DeltaSize(d) <= budget {
		return d
	}

	out := make(cluster.Delta, len(d))
	for i, nd := range d {
		out[i] = cluster.NodeDelta{ID: nd.ID, Gen: nd.Gen}
	}

	next := make([]int, len(d))
	used := 4 // delta node count prefix

	for progress := true; progress; {
		progress = false

		for i := range d {
			if next[i] >= len(d[i].Entries) {
				continue
			}

			entry := d[i].Entries[next[i]]

			cost := wire.EntrySize(entry)
			if len(out[i].Entries) == 0 {
				cost += wire.NodeDeltaOverhead(d[i].ID)
			}

			// An entry that cannot fit even alone will never propagate.
			// That means the MTU budget is configured below the entry
			// size limits, so drop it and move on.
			if cost+4 > budget {
				level.Warn(logger).Log(
					"msg", "entry exceeds mtu budget, skipped",
					"node_id", d[i].ID,
					"key", entry.Key,
					"size", cost,
				)

				next[i]++
				progress = true

				continue
			}

			if used+cost > budget {
				// No room right now. Leave the cursor in place so the
				// next round resumes exactly here.
				continue
			}

			out[i].Entries = append(out[i].Entries, entry)
			used += cost
			next[i]++
			progress = true
		}
	}

	kept := out[:0]

	for _, nd := range out {
		if len(nd.Entries) > 0 {
			kept = append(kept, nd)
		}
	}

	return kept
}
