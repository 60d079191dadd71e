package pigeon

import "errors"

// ErrUnknownStatus is returned when an invalid task status is used.
var ErrUnknownStatus = errors.New("pigeon: unknown status")

// ErrTaskNotFound is returned when a task with the specified ID is not found.
var ErrTaskNotFound = errors.New("pigeon: task not found")

// ErrFinalState is returned when a transition is requested out of a done or
// failed task.
var ErrFinalState = errors.New("pigeon: task already in a final state")

// ErrNotRunning is returned when Complete or Fail is called on a task that
// was never marked running.
var ErrNotRunning = errors.New("pigeon: task is not running")

// ErrBadWeekID is returned when a memory operation names a malformed ISO
// week id.
var ErrBadWeekID = errors.New("pigeon: malformed week id")

// ErrStopped is returned when a message is enqueued on a dispatcher that has
// been stopped.
var ErrStopped = errors.New("pigeon: dispatcher stopped")
