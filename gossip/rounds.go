package gossip

import (
	"net/netip"

	"github.com/go-kit/log/level"

	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/gossip/transport"
	"github.com/jorisvilardell/zuklink/gossip/wire"
)

func (e *Engine) recvLoop() {
	for {
		pkt, err := e.transport.ReadFrom()
		if err != nil {
			// ErrClosed on shutdown; anything else also means the
			// transport is gone.
			return
		}

		frame, err := wire.DecodeFrame(pkt.Data)
		if err != nil {
			level.Debug(e.logger).Log("msg", "dropped malformed frame", "from", pkt.From, "err", err)
			continue
		}

		e.handleFrame(pkt, frame)
	}
}

// handleFrame advances one gossip round. The round state machine is
// implicit in the frame kinds: a Syn is answered with a SynAck, a SynAck
// with an Ack, an Ack ends the round. A lost frame simply ends the round
// early; the next tick starts over from the digests.
func (e *Engine) handleFrame(pkt transport.Packet, frame wire.Frame) {
	switch frame.Kind {
	case wire.KindSyn:
		e.handleSyn(pkt.From, frame)
	case wire.KindSynAck:
		e.handleSynAck(pkt.From, frame)
	case wire.KindAck:
		e.handleAck(frame)
	}
}

func (e *Engine) handleSyn(from netip.AddrPort, frame wire.Frame) {
	e.mut.RLock()
	digest := e.state.Digest()
	delta := e.state.DeltaFor(frame.Digest)
	e.mut.RUnlock()

	// The reply carries our digest so the peer can send what we miss.
	budget := e.mtu - wire.HeaderSize - wire.DigestSize(digest)
	delta = truncateDelta(delta, budget, e.logger)

	e.reply(from, wire.Frame{Kind: wire.KindSynAck, Digest: digest, Delta: delta})
}

func (e *Engine) handleSynAck(from netip.AddrPort, frame wire.Frame) {
	e.mut.Lock()
	e.applyDeltaLocked(frame.Delta)
	delta := e.state.DeltaFor(frame.Digest)
	e.mut.Unlock()

	delta = truncateDelta(delta, e.mtu-wire.HeaderSize, e.logger)

	e.reply(from, wire.Frame{Kind: wire.KindAck, Delta: delta})
}

func (e *Engine) handleAck(frame wire.Frame) {
	e.mut.Lock()
	e.applyDeltaLocked(frame.Delta)
	e.mut.Unlock()
}

func (e *Engine) reply(to netip.AddrPort, frame wire.Frame) {
	data, err := wire.EncodeFrame(frame)
	if err != nil {
		level.Error(e.logger).Log("msg", "failed to encode frame", "kind", frame.Kind, "err", err)
		return
	}

	if err := e.transport.WriteTo(data, to); err != nil {
		level.Debug(e.logger).Log("msg", "frame not delivered", "kind", frame.Kind, "to", to, "err", err)
	}
}

// applyDeltaLocked merges a remote delta, feeds the failure detector with
// the touched nodes and recomputes the view. Deltas for nodes advertising
// a foreign cluster ID are discarded, and replicas that turn out foreign
// once their cluster key arrives are expelled.
func (e *Engine) applyDeltaLocked(delta cluster.Delta) {
	if len(delta) == 0 {
		return
	}

	delta = e.dropForeign(delta)

	res := e.state.ApplyDelta(delta)

	for _, id := range res.Restarted {
		level.Info(e.logger).Log("msg", "new node generation observed", "node_id", id)
		e.detector.Reset(id)
	}

	for _, id := range res.Touched {
		e.detector.Observe(id)
	}

	e.expelForeignLocked(res.Touched)
	e.refreshViewLocked()
}

func (e *Engine) dropForeign(delta cluster.Delta) cluster.Delta {
	kept := delta[:0]

	for _, nd := range delta {
		foreign := false

		for _, entry := range nd.Entries {
			if entry.Key == cluster.KeyCluster && !entry.Tombstone && entry.Value != e.clusterID {
				foreign = true
				break
			}
		}

		if foreign {
			level.Warn(e.logger).Log("msg", "ignoring node from foreign cluster", "node_id", nd.ID)
			continue
		}

		kept = append(kept, nd)
	}

	return kept
}

func (e *Engine) expelForeignLocked(touched []cluster.NodeID) {
	for _, id := range touched {
		n, ok := e.state.Node(id)
		if !ok {
			continue
		}

		if clusterID, ok := n.Get(cluster.KeyCluster); ok && clusterID != e.clusterID {
			level.Warn(e.logger).Log("msg", "expelling node from foreign cluster", "node_id", id)

			e.state.Remove(id)
			e.detector.Forget(id)
			delete(e.statuses, id)
			delete(e.deadSince, id)
		}
	}
}
