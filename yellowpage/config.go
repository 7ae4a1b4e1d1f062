package yellowpage

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/go-kit/log"

	"github.com/jorisvilardell/zuklink/cluster"
)

type Config struct {
	// NodeID is the stable identifier of this node, e.g. "receiver-1".
	// Required, non-empty, printable.
	NodeID string

	// ClusterID isolates independent clusters on a shared network.
	ClusterID string

	// ListenAddr is the UDP ip:port to bind for gossip. Required.
	ListenAddr string

	// AdvertiseAddr is the address peers should use to reach this node.
	// Defaults to ListenAddr.
	AdvertiseAddr string

	// Seeds are the bootstrap contact points as host:port strings,
	// resolved lazily. May be empty for a single-node cluster.
	Seeds []string

	// GossipInterval is the tick period, jittered by ±10%.
	GossipInterval time.Duration

	// GossipFanout is the number of live peers contacted per tick, on
	// top of one faulty peer and one seed.
	GossipFanout int

	// PhiSuspectThreshold and PhiDeadThreshold split the phi range into
	// the Live, Suspect and Dead verdicts.
	PhiSuspectThreshold float64
	PhiDeadThreshold    float64

	// ArrivalWindowCapacity bounds the heartbeat interarrival samples
	// kept per node.
	ArrivalWindowCapacity int

	// MTUBudget is the soft cap on a single gossip datagram.
	MTUBudget int

	// DeadNodeGrace is how long dead replicas linger before eviction.
	DeadNodeGrace time.Duration

	// DataDir, when set, persists the generation counter so restarts
	// survive a stalled or stepped-back wall clock. Optional.
	DataDir string

	// Logger records protocol events. Defaults to a nop logger.
	Logger log.Logger
}

func DefaultConfig() Config {
	return Config{
		ClusterID:             "zuklink-cluster",
		GossipInterval:        500 * time.Millisecond,
		GossipFanout:          1,
		PhiSuspectThreshold:   8.0,
		PhiDeadThreshold:      12.0,
		ArrivalWindowCapacity: 1000,
		MTUBudget:             60_000,
		DeadNodeGrace:         24 * time.Hour,
		Logger:                log.NewNopLogger(),
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.ClusterID == "" {
		c.ClusterID = def.ClusterID
	}

	if c.GossipInterval == 0 {
		c.GossipInterval = def.GossipInterval
	}

	if c.GossipFanout == 0 {
		c.GossipFanout = def.GossipFanout
	}

	if c.PhiSuspectThreshold == 0 {
		c.PhiSuspectThreshold = def.PhiSuspectThreshold
	}

	if c.PhiDeadThreshold == 0 {
		c.PhiDeadThreshold = def.PhiDeadThreshold
	}

	if c.ArrivalWindowCapacity == 0 {
		c.ArrivalWindowCapacity = def.ArrivalWindowCapacity
	}

	if c.MTUBudget == 0 {
		c.MTUBudget = def.MTUBudget
	}

	if c.DeadNodeGrace == 0 {
		c.DeadNodeGrace = def.DeadNodeGrace
	}

	if c.Logger == nil {
		c.Logger = def.Logger
	}

	return c
}

func (c Config) validate() error {
	if !cluster.NodeID(c.NodeID).Valid() {
		return fmt.Errorf("%w: node id must be non-empty and printable", ErrInvalidConfig)
	}

	if _, err := netip.ParseAddrPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen address %q: %s", ErrInvalidConfig, c.ListenAddr, err)
	}

	if c.GossipInterval <= 0 {
		return fmt.Errorf("%w: gossip interval must be positive", ErrInvalidConfig)
	}

	if c.GossipFanout < 1 {
		return fmt.Errorf("%w: gossip fanout must be at least 1", ErrInvalidConfig)
	}

	if c.PhiSuspectThreshold <= 0 || c.PhiDeadThreshold <= c.PhiSuspectThreshold {
		return fmt.Errorf("%w: phi thresholds must satisfy 0 < suspect < dead", ErrInvalidConfig)
	}

	if c.ArrivalWindowCapacity < 2 {
		return fmt.Errorf("%w: arrival window capacity must be at least 2", ErrInvalidConfig)
	}

	if c.MTUBudget < minMTUBudget {
		return fmt.Errorf("%w: mtu budget must be at least %d bytes", ErrInvalidConfig, minMTUBudget)
	}

	if c.DeadNodeGrace <= 0 {
		return fmt.Errorf("%w: dead node grace must be positive", ErrInvalidConfig)
	}

	return nil
}

// minMTUBudget leaves room for the frame header, a digest and at least one
// maximum-size entry.
const minMTUBudget = 8 * 1024
