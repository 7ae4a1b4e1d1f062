package yellowpage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jorisvilardell/zuklink/cluster"
)

// Real-UDP tests on the loopback interface. Ports are spread out per test
// to avoid collisions between parallel packages.

func startTestNode(t *testing.T, id string, port int, seeds ...string) *Yellowpage {
	t.Helper()

	conf := DefaultConfig()
	conf.NodeID = id
	conf.ListenAddr = fmt.Sprintf("127.0.0.1:%d", port)
	conf.Seeds = seeds
	conf.GossipInterval = 50 * time.Millisecond

	y, err := Start(conf)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = y.Shutdown()
	})

	return y
}

func TestSingleNodeSeesItselfImmediately(t *testing.T) {
	y := startTestNode(t, "solo", 17100)

	view := y.LiveNodes()
	assert.Equal(t, []cluster.NodeID{"solo"}, view.Live)

	idx, ok := y.MyIndex()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, y.ClusterSize())
}

func TestTwoNodeJoin(t *testing.T) {
	a := startTestNode(t, "a", 17110)
	b := startTestNode(t, "b", 17111, "127.0.0.1:17110")

	require.Eventually(t, func() bool {
		return a.ClusterSize() == 2 && b.ClusterSize() == 2
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []cluster.NodeID{"a", "b"}, a.LiveNodes().Live)
	assert.Equal(t, a.LiveNodes().Live, b.LiveNodes().Live)

	idxA, _ := a.MyIndex()
	idxB, _ := b.MyIndex()
	assert.Equal(t, 0, idxA)
	assert.Equal(t, 1, idxB)
}

func TestMetadataPropagation(t *testing.T) {
	a := startTestNode(t, "a", 17120)
	b := startTestNode(t, "b", 17121, "127.0.0.1:17120")

	a.SetMetadata("role", "receiver")

	require.Eventually(t, func() bool {
		value, ok := b.GetMetadata("a", "role")
		return ok && value == "receiver"
	}, 5*time.Second, 20*time.Millisecond)

	// Local reads see the write immediately.
	value, ok := a.GetMetadata("a", "role")
	require.True(t, ok)
	assert.Equal(t, "receiver", value)
}

func TestDeleteMetadataConverges(t *testing.T) {
	a := startTestNode(t, "a", 17130)
	b := startTestNode(t, "b", 17131, "127.0.0.1:17130")

	a.SetMetadata("role", "receiver")

	require.Eventually(t, func() bool {
		_, ok := b.GetMetadata("a", "role")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	a.DeleteMetadata("role")

	require.Eventually(t, func() bool {
		_, ok := b.GetMetadata("a", "role")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReservedKeysDropped(t *testing.T) {
	y := startTestNode(t, "solo", 17140)

	// Invalid writes never fail, they are silently dropped.
	y.SetMetadata("_zuk:role", "x")
	y.SetMetadata("", "x")
	y.DeleteMetadata("_zuk:cluster")

	_, ok := y.GetMetadata("solo", "_zuk:role")
	assert.False(t, ok)

	// Library-managed keys keep their own values.
	y.SetMetadata("generation", "x")

	gen, ok := y.GetMetadata("solo", cluster.KeyGeneration)
	require.True(t, ok)
	assert.NotEqual(t, "x", gen)

	value, ok := y.GetMetadata("solo", cluster.KeyCluster)
	require.True(t, ok)
	assert.Equal(t, y.ClusterID(), value)

	// Ordinary keys still go through.
	y.SetMetadata("role", "receiver")

	value, ok = y.GetMetadata("solo", "role")
	require.True(t, ok)
	assert.Equal(t, "receiver", value)
}

func TestStartValidation(t *testing.T) {
	tests := map[string]func(c *Config){
		"empty node id":       func(c *Config) { c.NodeID = "" },
		"bad listen addr":     func(c *Config) { c.ListenAddr = "not-an-addr" },
		"inverted thresholds": func(c *Config) { c.PhiSuspectThreshold = 12; c.PhiDeadThreshold = 8 },
		"tiny window":         func(c *Config) { c.ArrivalWindowCapacity = 1 },
		"tiny mtu":            func(c *Config) { c.MTUBudget = 64 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			conf := DefaultConfig()
			conf.NodeID = "a"
			conf.ListenAddr = "127.0.0.1:17150"
			mutate(&conf)

			_, err := Start(conf)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestStartBindError(t *testing.T) {
	a := startTestNode(t, "a", 17160)
	_ = a

	conf := DefaultConfig()
	conf.NodeID = "b"
	conf.ListenAddr = "127.0.0.1:17160" // already taken

	_, err := Start(conf)
	assert.ErrorIs(t, err, ErrBindFailed)
}

func TestStartTwice(t *testing.T) {
	conf := DefaultConfig()
	conf.NodeID = "a"
	conf.ListenAddr = "127.0.0.1:17170"

	y, err := New(conf)
	require.NoError(t, err)

	require.NoError(t, y.Start())

	t.Cleanup(func() {
		_ = y.Shutdown()
	})

	assert.ErrorIs(t, y.Start(), ErrAlreadyStarted)
}

func TestOperationsBeforeStart(t *testing.T) {
	conf := DefaultConfig()
	conf.NodeID = "a"
	conf.ListenAddr = "127.0.0.1:17180"

	y, err := New(conf)
	require.NoError(t, err)

	// Metadata writes before start are dropped, never fail.
	y.SetMetadata("role", "x")

	assert.ErrorIs(t, y.Shutdown(), ErrNotStarted)

	_, ok := y.MyIndex()
	assert.False(t, ok)
	assert.Equal(t, 0, y.ClusterSize())
}

func TestPersistentGenerationMonotonic(t *testing.T) {
	dataDir := t.TempDir()

	conf := DefaultConfig()
	conf.NodeID = "a"
	conf.ListenAddr = "127.0.0.1:17190"
	conf.DataDir = dataDir
	conf.GossipInterval = 50 * time.Millisecond

	first, err := Start(conf)
	require.NoError(t, err)

	gen1, ok := first.GetMetadata("a", cluster.KeyGeneration)
	require.True(t, ok)
	require.NoError(t, first.Shutdown())

	// An immediate restart lands in the same wall-clock second; the
	// persisted counter must still move the generation forward.
	second, err := Start(conf)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = second.Shutdown()
	})

	gen2, ok := second.GetMetadata("a", cluster.KeyGeneration)
	require.True(t, ok)
	assert.NotEqual(t, gen1, gen2)
	assert.Greater(t, gen2, gen1)
}
