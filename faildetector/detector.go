// Package faildetector implements a phi-accrual failure detector. Instead of
// a hard timeout, each node accumulates a continuous suspicion value (phi)
// derived from the statistics of its heartbeat interarrival gaps, and the
// verdict comes from comparing phi against the configured thresholds.
package faildetector

import (
	"math"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/membership"
)

// phiTailFloor keeps the normal tail away from zero so that phi stays
// finite even when the elapsed time is many deviations past the mean.
const phiTailFloor = 1e-300

type record struct {
	window      *window
	lastArrival time.Time
}

// Detector tracks heartbeat arrivals per node and answers liveness
// queries. It is not safe for concurrent use: the gossip engine guards it
// together with the cluster state under a single lock.
type Detector struct {
	logger            log.Logger
	windowCapacity    int
	bootstrapInterval time.Duration
	minStdDev         time.Duration
	suspectThreshold  float64
	deadThreshold     float64
	now               func() time.Time
	records           map[cluster.NodeID]*record
}

func New(logger log.Logger, opts ...Option) *Detector {
	d := &Detector{
		logger:            logger,
		windowCapacity:    1000,
		bootstrapInterval: 500 * time.Millisecond,
		minStdDev:         100 * time.Millisecond,
		suspectThreshold:  8.0,
		deadThreshold:     12.0,
		now:               time.Now,
		records:           make(map[cluster.NodeID]*record),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Observe records a heartbeat arrival for the node. The first observation
// only starts the clock. A node that was considered dead restarts its
// window with the single gap that revived it, so one fresh delta is enough
// for a Dead to Live transition.
func (d *Detector) Observe(id cluster.NodeID) {
	now := d.now()

	rec, ok := d.records[id]
	if !ok {
		d.records[id] = &record{
			window:      newWindow(d.windowCapacity),
			lastArrival: now,
		}

		return
	}

	gap := now.Sub(rec.lastArrival)

	if d.phi(rec, now) >= d.deadThreshold {
		level.Debug(d.logger).Log("msg", "dead node revived", "node", id, "gap", gap)
		rec.window.reset()
	}

	rec.window.add(gap)
	rec.lastArrival = now
}

// Reset drops all arrival history for the node. Called when a new
// generation of the node is observed: the statistics of the previous
// incarnation do not apply to the new one.
func (d *Detector) Reset(id cluster.NodeID) {
	delete(d.records, id)
}

// Forget removes the node entirely. Called when the replica is garbage
// collected.
func (d *Detector) Forget(id cluster.NodeID) {
	delete(d.records, id)
}

// Phi returns the current suspicion value for the node. Unknown nodes
// report zero suspicion: they have not produced a heartbeat to be late on.
func (d *Detector) Phi(id cluster.NodeID) float64 {
	rec, ok := d.records[id]
	if !ok {
		return 0
	}

	return d.phi(rec, d.now())
}

// Status maps phi onto the liveness verdict.
func (d *Detector) Status(id cluster.NodeID) membership.Status {
	phi := d.Phi(id)

	switch {
	case phi < d.suspectThreshold:
		return membership.StatusLive
	case phi < d.deadThreshold:
		return membership.StatusSuspect
	default:
		return membership.StatusDead
	}
}

func (d *Detector) phi(rec *record, now time.Time) float64 {
	elapsed := now.Sub(rec.lastArrival).Seconds()

	mean, stdDev := rec.window.stats()
	if rec.window.len() < 2 {
		mean = d.bootstrapInterval.Seconds()
		stdDev = 0
	}

	if min := d.minStdDev.Seconds(); stdDev < min {
		stdDev = min
	}

	z := (elapsed - mean) / stdDev

	// P(X > elapsed) for a normal distribution, computed through erfc to
	// stay numerically stable deep in the tail.
	tail := 0.5 * math.Erfc(z/math.Sqrt2)
	if tail < phiTailFloor {
		tail = phiTailFloor
	}

	return -math.Log10(tail)
}
