package faildetector

import (
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"

	"github.com/jorisvilardell/zuklink/membership"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestDetector(clock *fakeClock) *Detector {
	return New(
		log.NewNopLogger(),
		WithClock(clock.Now),
		WithBootstrapInterval(500*time.Millisecond),
	)
}

func TestDetector_RegularHeartbeatsStayLive(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	d := newTestDetector(clock)

	for i := 0; i < 20; i++ {
		d.Observe("node-1")
		clock.Advance(500 * time.Millisecond)
	}

	assert.Equal(t, membership.StatusLive, d.Status("node-1"))
	assert.Less(t, d.Phi("node-1"), 8.0)
}

func TestDetector_SilenceRaisesPhi(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	d := newTestDetector(clock)

	for i := 0; i < 20; i++ {
		d.Observe("node-1")
		clock.Advance(500 * time.Millisecond)
	}

	phiBefore := d.Phi("node-1")

	clock.Advance(10 * time.Second)

	assert.Greater(t, d.Phi("node-1"), phiBefore)
	assert.Equal(t, membership.StatusDead, d.Status("node-1"))
}

func TestDetector_VerdictProgression(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	d := newTestDetector(clock)

	for i := 0; i < 20; i++ {
		d.Observe("node-1")
		clock.Advance(500 * time.Millisecond)
	}

	assert.Equal(t, membership.StatusLive, d.Status("node-1"))

	// Keep stepping into the silence until the verdict degrades: it must
	// pass through suspect strictly before dead.
	sawSuspect := false

	for i := 0; i < 1000; i++ {
		clock.Advance(50 * time.Millisecond)

		switch d.Status("node-1") {
		case membership.StatusSuspect:
			sawSuspect = true
		case membership.StatusDead:
			assert.True(t, sawSuspect, "dead verdict before suspect")
			return
		}
	}

	t.Fatal("node never became dead")
}

func TestDetector_DeadNodeRevivesOnArrival(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	d := newTestDetector(clock)

	for i := 0; i < 20; i++ {
		d.Observe("node-1")
		clock.Advance(500 * time.Millisecond)
	}

	clock.Advance(time.Hour)
	assert.Equal(t, membership.StatusDead, d.Status("node-1"))

	// A single fresh arrival resets the statistics.
	d.Observe("node-1")
	assert.Equal(t, membership.StatusLive, d.Status("node-1"))
}

func TestDetector_PhiFiniteDeepInTheTail(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	d := newTestDetector(clock)

	for i := 0; i < 20; i++ {
		d.Observe("node-1")
		clock.Advance(500 * time.Millisecond)
	}

	clock.Advance(24 * time.Hour)

	phi := d.Phi("node-1")
	assert.False(t, phi != phi, "phi is NaN")
	assert.Less(t, phi, 400.0)
	assert.GreaterOrEqual(t, phi, 12.0)
}

func TestDetector_ResetDropsHistory(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	d := newTestDetector(clock)

	for i := 0; i < 20; i++ {
		d.Observe("node-1")
		clock.Advance(500 * time.Millisecond)
	}

	clock.Advance(time.Hour)

	d.Reset("node-1")

	// Unknown nodes carry no suspicion.
	assert.Equal(t, membership.StatusLive, d.Status("node-1"))
	assert.Zero(t, d.Phi("node-1"))
}

func TestDetector_UnknownNodeIsLive(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	d := newTestDetector(clock)

	assert.Equal(t, membership.StatusLive, d.Status("never-seen"))
}

func TestWindow_RollsOver(t *testing.T) {
	w := newWindow(3)

	w.add(100 * time.Millisecond)
	w.add(100 * time.Millisecond)
	w.add(100 * time.Millisecond)
	w.add(700 * time.Millisecond) // evicts one 100ms sample

	assert.Equal(t, 3, w.len())

	mean, _ := w.stats()
	assert.InDelta(t, 0.3, mean, 1e-9)
}
