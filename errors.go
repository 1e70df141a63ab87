package csa

import (
	"github.com/pkg/errors"
)

// Contract violations. A run that returns one of these is aborted,
// and the profiler (with its profiles) must be discarded.
var (
	ErrOutOfOrder           = errors.New("connections not in decreasing departure time order")
	ErrSkippedBucket        = errors.New("departure time bucket skipped")
	ErrUnknownDepartureTime = errors.New("departure time not known to profile")
	ErrAlreadyRun           = errors.New("profiler has already been run")
	ErrNotRun               = errors.New("profiler has not been run")
	ErrNotFinalized         = errors.New("profile has not been finalized")
	ErrAlreadyFinalized     = errors.New("profile has already been finalized")
)

// Analysis errors.
var (
	ErrNonMonotonicArrivals = errors.New("fastest path arrival times not increasing with departure time")
	ErrInvalidBlocks        = errors.New("invalid profile blocks")
)
