package publisher

import (
	"time"

	"github.com/hashicorp/go-multierror"
)

// State is the phase the scheduler is currently in.
type State int32

const (
	Idle State = iota
	Collecting
	Batching
	Publishing
	Sleeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Collecting:
		return "Collecting"
	case Batching:
		return "Batching"
	case Publishing:
		return "Publishing"
	case Sleeping:
		return "Sleeping"
	default:
		return "Unknown"
	}
}

// Cycle summarises one tick of the scheduler.
type Cycle struct {
	Start time.Time
	// Number of data points collected.
	Points int
	// Number of batches the points were split into.
	Batches   int
	Succeeded int
	Failed    int
	// Batches never issued because the scheduler was shutting down.
	Skipped  int
	Duration time.Duration
	// Set if the tick was aborted by an *emuerrors.ErrTick.
	Err error
	// One *emuerrors.ErrBatchSubmission per failed batch.
	BatchErrors *multierror.Error
	// The tick was cut short by cancellation.
	Cancelled bool
}

// Attempted is the number of batches that were handed to the backend.
func (c Cycle) Attempted() int {
	return c.Succeeded + c.Failed
}

// FullySuccessful returns true if every batch of the tick was accepted.
func (c Cycle) FullySuccessful() bool {
	return c.Err == nil && !c.Cancelled && c.Failed == 0 && c.Skipped == 0
}

func (c Cycle) End() time.Time {
	return c.Start.Add(c.Duration)
}
