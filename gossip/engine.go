// Package gossip drives the Scuttlebutt reconciliation protocol: a periodic
// tick picks a few peers and sends them a digest of everything this node
// knows; the three-way Syn/SynAck/Ack exchange then ships only the entries
// each side is missing. The same heartbeat traffic feeds the failure
// detector, and the resulting verdicts produce the membership view.
package gossip

import (
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/twmb/murmur3"

	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/faildetector"
	"github.com/jorisvilardell/zuklink/gossip/transport"
	"github.com/jorisvilardell/zuklink/gossip/wire"
	"github.com/jorisvilardell/zuklink/internal/generic"
	"github.com/jorisvilardell/zuklink/membership"
)

type Engine struct {
	logger    log.Logger
	clusterID string
	interval  time.Duration
	fanout    int
	mtu       int
	grace     time.Duration
	seeds     []string
	transport transport.Transport

	// mut guards everything below, plus the rng. Mutations take the write
	// lock, snapshots take the read lock. No I/O happens under the lock.
	mut       sync.RWMutex
	rng       *rand.Rand
	state     *cluster.State
	detector  *faildetector.Detector
	statuses  map[cluster.NodeID]membership.Status
	deadSince map[cluster.NodeID]time.Time
	view      membership.View
	watcher   *membership.Watcher

	wg      sync.WaitGroup
	stop    chan struct{}
	stopped int32
}

// Start binds the transport, seeds the local node state and launches the
// tick and receive loops.
func Start(conf Config) (*Engine, error) {
	tr := conf.Transport

	if tr == nil {
		bindAddr, err := netip.ParseAddrPort(conf.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bind address (%s): %w", conf.BindAddr, err)
		}

		if tr, err = transport.Create(bindAddr, conf.Logger); err != nil {
			return nil, err
		}
	}

	advertiseAddr := conf.AdvertiseAddr
	if advertiseAddr == "" {
		advertiseAddr = tr.LocalAddr().String()
	}

	self := cluster.NewNodeState(conf.NodeID, conf.Generation)
	self.Set(cluster.KeyGeneration, strconv.FormatUint(conf.Generation, 10))
	self.Set(cluster.KeyCluster, conf.ClusterID)
	self.Set(cluster.KeyAddr, advertiseAddr)

	detector := conf.Detector
	if detector == nil {
		detector = faildetector.New(conf.Logger)
	}

	// Seeding the generator from the node identity on top of the clock
	// keeps a fleet restarted at the same instant from choosing the same
	// gossip targets every round.
	seed := time.Now().UnixNano() ^ int64(murmur3.StringSum64(string(conf.NodeID)))

	e := &Engine{
		logger:    conf.Logger,
		clusterID: conf.ClusterID,
		interval:  conf.Interval,
		fanout:    conf.Fanout,
		mtu:       conf.MTUBudget,
		grace:     conf.DeadNodeGrace,
		seeds:     conf.Seeds,
		transport: tr,
		rng:       rand.New(rand.NewSource(seed)),
		state:     cluster.NewState(self),
		detector:  detector,
		statuses:  map[cluster.NodeID]membership.Status{conf.NodeID: membership.StatusLive},
		deadSince: make(map[cluster.NodeID]time.Time),
		watcher:   membership.NewWatcher(),
		stop:      make(chan struct{}),
	}

	e.detector.Observe(conf.NodeID)
	e.view = membership.NewView([]cluster.NodeID{conf.NodeID}, conf.NodeID)
	e.watcher.Publish(e.view)

	e.wg.Add(2)

	go func() {
		defer e.wg.Done()
		e.tickLoop()
	}()

	go func() {
		defer e.wg.Done()
		e.recvLoop()
	}()

	level.Info(e.logger).Log(
		"msg", "gossip engine started",
		"node_id", conf.NodeID,
		"generation", conf.Generation,
		"addr", advertiseAddr,
	)

	return e, nil
}

func (e *Engine) SelfID() cluster.NodeID {
	return e.state.SelfID()
}

// View returns the current membership snapshot.
func (e *Engine) View() membership.View {
	e.mut.RLock()
	defer e.mut.RUnlock()

	return e.view
}

// Subscribe returns a channel of membership snapshots. Slow consumers see
// only the latest snapshot, never a backlog.
func (e *Engine) Subscribe() (<-chan membership.View, func()) {
	return e.watcher.Subscribe()
}

// SetMetadata writes a key on the local node. The update reaches every
// live peer within a few gossip rounds.
func (e *Engine) SetMetadata(key, value string) uint64 {
	e.mut.Lock()
	defer e.mut.Unlock()

	return e.state.Self().Set(key, value)
}

// DeleteMetadata tombstones a key on the local node.
func (e *Engine) DeleteMetadata(key string) uint64 {
	e.mut.Lock()
	defer e.mut.Unlock()

	return e.state.Self().Delete(key)
}

// GetMetadata looks up a key of any known node, local or replicated.
func (e *Engine) GetMetadata(id cluster.NodeID, key string) (string, bool) {
	e.mut.RLock()
	defer e.mut.RUnlock()

	n, ok := e.state.Node(id)
	if !ok {
		return "", false
	}

	return n.Get(key)
}

// Status returns the liveness verdict for a node.
func (e *Engine) Status(id cluster.NodeID) (membership.Status, bool) {
	e.mut.RLock()
	defer e.mut.RUnlock()

	st, ok := e.statuses[id]

	return st, ok
}

// Shutdown tombstones the status key, pushes one last best-effort delta to
// a live peer, then stops both loops and closes the socket. Subsequent
// calls are no-ops.
func (e *Engine) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&e.stopped, 0, 1) {
		return nil
	}

	e.mut.Lock()

	self := e.state.Self()
	self.Delete(cluster.KeyStatus)

	farewell := cluster.Delta{{
		ID:      self.ID(),
		Gen:     self.Gen(),
		Entries: self.EntriesAfter(0),
	}}

	peers := e.peerAddrsLocked(membership.StatusLive)
	generic.Shuffle(peers, e.rng)

	e.mut.Unlock()

	if len(peers) > 0 {
		farewell = truncateDelta(farewell, e.mtu-wire.HeaderSize, e.logger)

		if frame, err := wire.EncodeFrame(wire.Frame{Kind: wire.KindAck, Delta: farewell}); err == nil {
			if err := e.transport.WriteTo(frame, peers[0]); err != nil {
				level.Debug(e.logger).Log("msg", "farewell delta not delivered", "err", err)
			}
		}
	}

	close(e.stop)

	if err := e.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}

	e.wg.Wait()
	e.watcher.Close()

	level.Info(e.logger).Log("msg", "gossip engine stopped", "node_id", e.state.SelfID())

	return nil
}

func (e *Engine) tickLoop() {
	for {
		timer := time.NewTimer(e.jitteredInterval())

		select {
		case <-e.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		e.tick()
	}
}

func (e *Engine) jitteredInterval() time.Duration {
	e.mut.Lock()
	defer e.mut.Unlock()

	jitter := (e.rng.Float64()*0.2 - 0.1) * float64(e.interval)

	return e.interval + time.Duration(jitter)
}

func (e *Engine) tick() {
	e.mut.Lock()

	selfID := e.state.SelfID()
	e.state.Self().Set(cluster.KeyHeartbeat, "")
	e.detector.Observe(selfID)

	e.refreshViewLocked()
	e.collectGarbageLocked()

	targets, wantSeed := e.selectPeersLocked()
	digest := e.state.Digest()

	e.mut.Unlock()

	// Seed resolution may hit DNS, so it happens outside the lock.
	if wantSeed {
		if addr, ok := e.resolveRandomSeed(); ok {
			targets = append(targets, addr)
		}
	}

	frame, err := wire.EncodeFrame(wire.Frame{Kind: wire.KindSyn, Digest: digest})
	if err != nil {
		level.Error(e.logger).Log("msg", "failed to encode syn", "err", err)
		return
	}

	sent := make(map[netip.AddrPort]struct{}, len(targets))

	for _, addr := range targets {
		if _, dup := sent[addr]; dup {
			continue
		}

		sent[addr] = struct{}{}

		if err := e.transport.WriteTo(frame, addr); err != nil {
			level.Debug(e.logger).Log("msg", "syn not delivered", "to", addr, "err", err)
		}
	}
}

// selectPeersLocked picks up to fanout live peers plus one suspect or dead
// peer, so that healed partitions are rediscovered. The second return
// value asks the caller to also contact a seed: either the cluster has no
// live peers yet, or some seed is still unknown.
func (e *Engine) selectPeersLocked() ([]netip.AddrPort, bool) {
	var targets []netip.AddrPort

	live := e.peerAddrsLocked(membership.StatusLive)
	faulty := append(
		e.peerAddrsLocked(membership.StatusSuspect),
		e.peerAddrsLocked(membership.StatusDead)...,
	)

	generic.Shuffle(live, e.rng)
	generic.Shuffle(faulty, e.rng)

	for i := 0; i < e.fanout && i < len(live); i++ {
		targets = append(targets, live[i])
	}

	if len(faulty) > 0 {
		targets = append(targets, faulty[0])
	}

	wantSeed := len(e.seeds) > 0 && (len(live) == 0 || e.hasUnknownPeersLocked())

	return targets, wantSeed
}

// peerAddrsLocked returns the gossip addresses of all peers with the given
// status. Peers whose advertised address has not been replicated yet are
// skipped; the seed slot covers reaching them.
func (e *Engine) peerAddrsLocked(status membership.Status) []netip.AddrPort {
	var addrs []netip.AddrPort

	for _, id := range e.state.IDs() {
		if id == e.state.SelfID() || e.statuses[id] != status {
			continue
		}

		if addr, ok := e.nodeAddrLocked(id); ok {
			addrs = append(addrs, addr)
		}
	}

	return addrs
}

func (e *Engine) nodeAddrLocked(id cluster.NodeID) (netip.AddrPort, bool) {
	n, ok := e.state.Node(id)
	if !ok {
		return netip.AddrPort{}, false
	}

	raw, ok := n.Get(cluster.KeyAddr)
	if !ok {
		return netip.AddrPort{}, false
	}

	addr, err := netip.ParseAddrPort(raw)
	if err != nil {
		return netip.AddrPort{}, false
	}

	return addr, true
}

// hasUnknownPeersLocked reports whether fewer peers are known than seeds
// are configured, a cheap stand-in for "some seed is not in the cluster
// state yet" that avoids resolving every seed on every tick.
func (e *Engine) hasUnknownPeersLocked() bool {
	return e.state.Len()-1 < len(e.seeds)
}

func (e *Engine) resolveRandomSeed() (netip.AddrPort, bool) {
	e.mut.Lock()
	seed := e.seeds[e.rng.Intn(len(e.seeds))]
	e.mut.Unlock()

	udpAddr, err := net.ResolveUDPAddr("udp", seed)
	if err != nil {
		level.Debug(e.logger).Log("msg", "seed resolution failed", "seed", seed, "err", err)
		return netip.AddrPort{}, false
	}

	addr := udpAddr.AddrPort()
	if addr == e.transport.LocalAddr() {
		return netip.AddrPort{}, false
	}

	return addr, true
}

// refreshViewLocked re-evaluates every verdict and publishes a new view
// snapshot when the live set changed.
func (e *Engine) refreshViewLocked() {
	now := time.Now()
	selfID := e.state.SelfID()
	known := make(map[cluster.NodeID]struct{}, e.state.Len())

	var live []cluster.NodeID

	for _, id := range e.state.IDs() {
		known[id] = struct{}{}

		status := membership.StatusLive
		if id != selfID {
			status = e.detector.Status(id)
		}

		if prev := e.statuses[id]; prev != status {
			level.Info(e.logger).Log(
				"msg", "node status changed",
				"node_id", id,
				"status", status,
				"phi", fmt.Sprintf("%.2f", e.detector.Phi(id)),
			)

			e.statuses[id] = status
		}

		if status == membership.StatusDead {
			if _, ok := e.deadSince[id]; !ok {
				e.deadSince[id] = now
			}
		} else {
			delete(e.deadSince, id)
		}

		if status == membership.StatusLive {
			live = append(live, id)
		}
	}

	for id := range e.statuses {
		if _, ok := known[id]; !ok {
			delete(e.statuses, id)
		}
	}

	view := membership.NewView(live, selfID)
	if !view.Equal(e.view) {
		e.view = view
		e.watcher.Publish(view)
	}
}

// collectGarbageLocked evicts replicas that have been dead longer than the
// grace period to bound memory.
func (e *Engine) collectGarbageLocked() {
	now := time.Now()

	for id, since := range e.deadSince {
		if now.Sub(since) < e.grace {
			continue
		}

		level.Info(e.logger).Log("msg", "garbage collecting dead node", "node_id", id)

		e.state.Remove(id)
		e.detector.Forget(id)
		delete(e.statuses, id)
		delete(e.deadSince, id)
	}
}
