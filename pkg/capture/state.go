package capture

// State represents the lifecycle state of a Capture instance.
type State int

const (
	// StateStopped means the instance is not running.
	StateStopped State = iota

	// StateStarting means Start() was called and startup is in progress.
	StateStarting

	// StateRunning means the background replay loop is active.
	StateRunning

	// StateStopping means Stop() was called and shutdown is in progress.
	StateStopping

	// StateCrashed means the instance hit an unrecoverable error or a
	// shutdown timeout.
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}
