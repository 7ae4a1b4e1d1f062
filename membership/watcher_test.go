package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jorisvilardell/zuklink/cluster"
)

func viewOf(ids ...cluster.NodeID) View {
	return NewView(ids, ids[0])
}

func TestWatcher_DeliversSnapshots(t *testing.T) {
	w := NewWatcher()

	ch, cancel := w.Subscribe()
	defer cancel()

	v := viewOf("r1")
	w.Publish(v)

	got := <-ch
	assert.True(t, v.Equal(got))
}

func TestWatcher_CoalescesWhenSubscriberLags(t *testing.T) {
	w := NewWatcher()

	ch, cancel := w.Subscribe()
	defer cancel()

	w.Publish(viewOf("r1"))
	w.Publish(viewOf("r1", "r2"))
	w.Publish(viewOf("r1", "r2", "r3"))

	// Only the newest snapshot is pending, the intermediate ones were
	// replaced without blocking the publisher.
	got := <-ch
	assert.Equal(t, 3, got.Size())

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot: %v", extra)
	default:
	}
}

func TestWatcher_CancelClosesChannel(t *testing.T) {
	w := NewWatcher()

	ch, cancel := w.Subscribe()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after cancel must not panic.
	w.Publish(viewOf("r1"))
}

func TestWatcher_CloseTerminatesSubscribers(t *testing.T) {
	w := NewWatcher()

	ch, cancel := w.Subscribe()
	defer cancel()

	w.Close()

	_, ok := <-ch
	require.False(t, ok)

	// Subscriptions after close are immediately closed.
	ch2, _ := w.Subscribe()
	_, ok = <-ch2
	assert.False(t, ok)
}
