package yellowpage

import "errors"

var (
	// ErrInvalidConfig is returned from Start for a config that cannot
	// possibly work: empty node id, malformed listen address, inverted
	// phi thresholds.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrBindFailed is returned from Start when the UDP socket cannot be
	// bound. Fatal to the instance.
	ErrBindFailed = errors.New("failed to bind gossip socket")

	// ErrAlreadyStarted is returned when Start is called twice on the
	// same handle.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned by operations invoked before Start.
	ErrNotStarted = errors.New("not started")
)
