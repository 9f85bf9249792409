package buildjob

// State represents the build lifecycle state machine:
//
//	Idle → Starting → Running → {Completed | Failed}
//
// Completed and Failed are terminal; the only exit from a terminal state is
// an explicit Reset (or an implicit one when a new build is started).
type State int

const (
	// StateIdle indicates no build has been submitted.
	StateIdle State = iota
	// StateStarting indicates the submission request is in flight.
	StateStarting
	// StateRunning indicates the build was accepted and is being polled.
	StateRunning
	// StateCompleted indicates the build finished and artifacts are available.
	StateCompleted
	// StateFailed indicates the build could not start or the service reported failure.
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state has no further automatic transition.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Wire status values reported by the build service.
const (
	wireStatusCompleted = "completed"
	wireStatusFailed    = "failed"
)
