// Package yellowpage is the cluster coordination facade for zuklink
// receivers. It lets a set of peer processes discover each other over
// gossip, agree on a deterministic membership view, detect failures and
// replicate small per-node metadata, with no coordinator and no shared
// storage: the network is the only shared medium.
package yellowpage

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/faildetector"
	"github.com/jorisvilardell/zuklink/gossip"
	"github.com/jorisvilardell/zuklink/internal/genstore"
	"github.com/jorisvilardell/zuklink/membership"
)

type Yellowpage struct {
	conf    Config
	nodeID  cluster.NodeID
	logger  log.Logger
	engine  *gossip.Engine
	started int32
}

// Start validates the config, binds the gossip socket and launches the
// engine. It is the usual entry point; New plus an explicit Start call is
// available when construction and startup need to be separated.
func Start(conf Config) (*Yellowpage, error) {
	y, err := New(conf)
	if err != nil {
		return nil, err
	}

	if err := y.Start(); err != nil {
		return nil, err
	}

	return y, nil
}

// New validates the config and prepares a handle without touching the
// network.
func New(conf Config) (*Yellowpage, error) {
	conf = conf.withDefaults()

	if err := conf.validate(); err != nil {
		return nil, err
	}

	return &Yellowpage{
		conf:   conf,
		nodeID: cluster.NodeID(conf.NodeID),
		logger: log.With(conf.Logger, "node_id", conf.NodeID),
	}, nil
}

// Start binds the UDP socket with a fresh generation and starts gossiping.
func (y *Yellowpage) Start() error {
	if !atomic.CompareAndSwapInt32(&y.started, 0, 1) {
		return ErrAlreadyStarted
	}

	generation := y.nextGeneration()

	detector := faildetector.New(
		y.logger,
		faildetector.WithThresholds(y.conf.PhiSuspectThreshold, y.conf.PhiDeadThreshold),
		faildetector.WithWindowCapacity(y.conf.ArrivalWindowCapacity),
		faildetector.WithBootstrapInterval(y.conf.GossipInterval),
	)

	engine, err := gossip.Start(gossip.Config{
		NodeID:        y.nodeID,
		Generation:    generation,
		ClusterID:     y.conf.ClusterID,
		BindAddr:      y.conf.ListenAddr,
		AdvertiseAddr: y.conf.AdvertiseAddr,
		Seeds:         y.conf.Seeds,
		Interval:      y.conf.GossipInterval,
		Fanout:        y.conf.GossipFanout,
		MTUBudget:     y.conf.MTUBudget,
		DeadNodeGrace: y.conf.DeadNodeGrace,
		Detector:      detector,
		Logger:        y.logger,
	})
	if err != nil {
		atomic.StoreInt32(&y.started, 0)
		return fmt.Errorf("%w: %s", ErrBindFailed, err)
	}

	y.engine = engine

	return nil
}

// nextGeneration picks the generation for this incarnation: wall-clock
// seconds, raised above the last persisted generation when a data
// directory is configured. Persistence failures fall back to the clock.
func (y *Yellowpage) nextGeneration() uint64 {
	generation := uint64(time.Now().Unix())

	if y.conf.DataDir == "" {
		return generation
	}

	store, err := genstore.Open(filepath.Join(y.conf.DataDir, "generation.db"))
	if err != nil {
		level.Warn(y.logger).Log("msg", "generation store unavailable, using wall clock", "err", err)
		return generation
	}

	defer func() {
		_ = store.Close()
	}()

	persisted, err := store.Next(y.conf.NodeID, generation)
	if err != nil {
		level.Warn(y.logger).Log("msg", "failed to persist generation, using wall clock", "err", err)
		return generation
	}

	return persisted
}

// NodeID returns this node's identifier.
func (y *Yellowpage) NodeID() cluster.NodeID {
	return y.nodeID
}

// ClusterID returns the cluster this node belongs to.
func (y *Yellowpage) ClusterID() string {
	return y.conf.ClusterID
}

// SetMetadata writes a key on the local node. The update is eventually
// visible on every live peer. It never fails: writes with a reserved key
// or beyond the size limits are logged and dropped, the same way the wire
// layer drops violating frames.
func (y *Yellowpage) SetMetadata(key, value string) {
	if err := validateUserKey(key); err != nil {
		level.Warn(y.logger).Log("msg", "metadata write dropped", "key", key, "err", err)
		return
	}

	if len(value) > cluster.MaxValueSize {
		level.Warn(y.logger).Log("msg", "metadata write dropped", "key", key, "err", "value exceeds size limit")
		return
	}

	if atomic.LoadInt32(&y.started) == 0 {
		level.Warn(y.logger).Log("msg", "metadata write dropped", "key", key, "err", ErrNotStarted)
		return
	}

	y.engine.SetMetadata(key, value)
}

// DeleteMetadata tombstones a key on the local node, so peers converge on
// the deletion rather than resurrecting the old value. Like SetMetadata,
// it never fails.
func (y *Yellowpage) DeleteMetadata(key string) {
	if err := validateUserKey(key); err != nil {
		level.Warn(y.logger).Log("msg", "metadata delete dropped", "key", key, "err", err)
		return
	}

	if atomic.LoadInt32(&y.started) == 0 {
		level.Warn(y.logger).Log("msg", "metadata delete dropped", "key", key, "err", ErrNotStarted)
		return
	}

	y.engine.DeleteMetadata(key)
}

// GetMetadata performs a point lookup of a key on any known node.
func (y *Yellowpage) GetMetadata(node cluster.NodeID, key string) (string, bool) {
	if atomic.LoadInt32(&y.started) == 0 {
		return "", false
	}

	return y.engine.GetMetadata(node, key)
}

// LiveNodes returns the current membership snapshot: live node IDs sorted
// lexicographically, including self.
func (y *Yellowpage) LiveNodes() membership.View {
	if atomic.LoadInt32(&y.started) == 0 {
		return membership.View{SelfIndex: -1}
	}

	return y.engine.View()
}

// MyIndex returns this node's position in the sorted live view.
func (y *Yellowpage) MyIndex() (int, bool) {
	view := y.LiveNodes()
	if view.SelfIndex < 0 {
		return 0, false
	}

	return view.SelfIndex, true
}

// ClusterSize returns the number of live nodes.
func (y *Yellowpage) ClusterSize() int {
	return y.LiveNodes().Size()
}

// Subscribe returns a stream of membership snapshots. A slow consumer sees
// coalesced updates: always the latest snapshot, never a backlog. The
// cancel function releases the subscription.
func (y *Yellowpage) Subscribe() (<-chan membership.View, func()) {
	if atomic.LoadInt32(&y.started) == 0 {
		ch := make(chan membership.View)
		close(ch)

		return ch, func() {}
	}

	return y.engine.Subscribe()
}

// Shutdown stops gossiping and closes the socket, after a best-effort
// farewell tombstone to the cluster. Safe to call more than once.
func (y *Yellowpage) Shutdown() error {
	if atomic.LoadInt32(&y.started) == 0 {
		return ErrNotStarted
	}

	return y.engine.Shutdown()
}

func validateUserKey(key string) error {
	if len(key) == 0 || len(key) > cluster.MaxKeySize {
		return fmt.Errorf("key must be 1..%d bytes", cluster.MaxKeySize)
	}

	if strings.HasPrefix(key, cluster.ReservedPrefix) {
		return fmt.Errorf("key uses the reserved prefix %q", cluster.ReservedPrefix)
	}

	if key == cluster.KeyHeartbeat || key == cluster.KeyGeneration {
		return fmt.Errorf("key %q is managed by the library", key)
	}

	return nil
}
