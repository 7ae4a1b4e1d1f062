package faildetector

import "time"

type Option func(d *Detector)

// WithThresholds sets the phi values above which a node is considered
// suspect and dead respectively.
func WithThresholds(suspect, dead float64) Option {
	return func(d *Detector) {
		d.suspectThreshold = suspect
		d.deadThreshold = dead
	}
}

// WithWindowCapacity bounds the number of interarrival samples kept per node.
func WithWindowCapacity(capacity int) Option {
	return func(d *Detector) {
		d.windowCapacity = capacity
	}
}

// WithBootstrapInterval sets the mean assumed before a node has produced
// enough samples for real statistics.
func WithBootstrapInterval(interval time.Duration) Option {
	return func(d *Detector) {
		d.bootstrapInterval = interval
	}
}

// WithMinStdDev clamps the standard deviation from below, so that a very
// regular heartbeat stream does not make phi explode on the first late
// arrival.
func WithMinStdDev(stdDev time.Duration) Option {
	return func(d *Detector) {
		d.minStdDev = stdDev
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}
