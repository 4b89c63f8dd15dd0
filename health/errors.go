package health

import "errors"

var (
	// ErrCheckFailed is the error of an unhealthy result that carries none.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout marks a check cut off by the aggregator timeout.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound is returned by Aggregator.Check for an unknown name.
	ErrCheckerNotFound = errors.New("health: checker not found")
)
