package gossip

import (
	"time"

	"github.com/go-kit/log"

	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/faildetector"
	"github.com/jorisvilardell/zuklink/gossip/transport"
)

type Config struct {
	// NodeID identifies this node. Must be unique across the cluster.
	NodeID cluster.NodeID

	// Generation marks this incarnation of the node. Must be strictly
	// higher than any previous incarnation of the same NodeID.
	Generation uint64

	// ClusterID isolates independent clusters sharing a network. Nodes
	// advertising a different cluster ID are expelled from the state.
	ClusterID string

	// BindAddr is the UDP address the engine listens on.
	BindAddr string

	// AdvertiseAddr is the address other nodes use to reach this one.
	// Defaults to the bound address.
	AdvertiseAddr string

	// Seeds are the initial contact points, as host:port strings. They
	// are resolved lazily and retried on failure. An empty list is valid
	// for single-node clusters.
	Seeds []string

	// Interval between gossip ticks. Each tick is jittered by ±10% to
	// keep a fleet from gossiping in lockstep.
	Interval time.Duration

	// Fanout is the number of live peers contacted per tick, on top of
	// the dedicated slots for one faulty peer and one seed.
	Fanout int

	// MTUBudget is the soft cap on the size of a single datagram.
	MTUBudget int

	// DeadNodeGrace is how long a dead replica is kept around before it
	// is garbage collected.
	DeadNodeGrace time.Duration

	// Transport overrides the UDP transport, for tests. When nil, a UDP
	// socket is bound to BindAddr.
	Transport transport.Transport

	// Detector is the failure detector fed by this engine. When nil, one
	// is created with default thresholds.
	Detector *faildetector.Detector

	// Logger for protocol-level events. Defaults to a nop logger.
	Logger log.Logger
}

func DefaultConfig() Config {
	return Config{
		ClusterID:     "zuklink-cluster",
		Interval:      500 * time.Millisecond,
		Fanout:        1,
		MTUBudget:     60_000,
		DeadNodeGrace: 24 * time.Hour,
		Logger:        log.NewNopLogger(),
	}
}
