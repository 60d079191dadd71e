package pigeon

// Status represents the lifecycle state of a task.
// Use the exported constants (StatusPending, StatusRunning, etc.) instead of
// raw strings to avoid typos.
type Status string

const (
	// StatusPending marks tasks waiting to be picked up by the worker.
	StatusPending Status = "pending"
	// StatusRunning marks the task currently being executed. At most one
	// task is running at any time.
	StatusRunning Status = "running"
	// StatusDone marks tasks that completed successfully and carry a result.
	StatusDone Status = "done"
	// StatusFailed marks tasks that failed permanently and carry an error.
	StatusFailed Status = "failed"
)

// AllStatuses lists every valid task status in a stable order.
var AllStatuses = []Status{StatusPending, StatusRunning, StatusDone, StatusFailed}

// String returns the raw string value of the status.
func (s Status) String() string { return string(s) }

// Final reports whether the status is terminal. No transition exists out of
// a final status.
func (s Status) Final() bool { return s == StatusDone || s == StatusFailed }

// ParseStatus converts a string into a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	switch s {
	case string(StatusPending):
		return StatusPending, nil
	case string(StatusRunning):
		return StatusRunning, nil
	case string(StatusDone):
		return StatusDone, nil
	case string(StatusFailed):
		return StatusFailed, nil
	default:
		return "", ErrUnknownStatus
	}
}
