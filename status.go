package taskpoll

import (
	"time"

	"github.com/jpalmerr/taskpoll/internal/poller"
)

// State is the UI-visible state of a [Session].
//
// State is a string type so it serializes and logs readably. The terminal
// states are [StateDone], [StateFailed] and [StateCancelled].
type State string

const (
	// StateIdle indicates nothing has been submitted yet.
	StateIdle State = "idle"

	// StateSubmitting indicates the submission request is in flight.
	StateSubmitting State = "submitting"

	// StatePolling indicates a task id was returned and its status is being polled.
	StatePolling State = "polling"

	// StateDone indicates the answer is available.
	StateDone State = "done"

	// StateFailed indicates the submission or the task failed.
	StateFailed State = "failed"

	// StateCancelled indicates the run was cancelled locally.
	StateCancelled State = "cancelled"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// TaskStatus is the status the remote system reports for a task.
type TaskStatus = poller.TaskStatus

const (
	TaskQueued  = poller.TaskQueued
	TaskRunning = poller.TaskRunning
	TaskDone    = poller.TaskDone
	TaskFailed  = poller.TaskFailed
)

// DefaultDelays is the backoff table used between status polls: 1.2s, 1.5s,
// 2s, 2.5s, then 3s for every further attempt.
var DefaultDelays = poller.DefaultDelays

// Snapshot is the observable state of a [Session] at one point in time.
//
// Snapshots are values; a UI renders the latest one it received through
// [WithUpdateCallback] or [Session.Snapshot].
type Snapshot struct {
	// State is the session state.
	State State

	// TaskID is the remote task id, empty until the submission returns one.
	TaskID string

	// TaskStatus is the last status reported by the remote system.
	TaskStatus TaskStatus

	// Loading is true while a submission or poll is in progress.
	Loading bool

	// Progress is the last reported progress percentage in [0, 100].
	// Only meaningful when HasProgress is true.
	Progress    int
	HasProgress bool

	// Message is the last human-readable message from the remote system.
	Message string

	// Answer is the extracted display text once the run is done.
	Answer string

	// Err is the failure message shown to the user when State is failed.
	Err string

	// Attempts is the number of status polls issued for the current task.
	Attempts int

	// UpdatedAt is when the snapshot was taken.
	UpdatedAt time.Time
}

// Outcome is the result of [Session.Submit] or [Session.Resume].
type Outcome struct {
	// State is the terminal state of the run.
	State State

	// TaskID is empty for immediate answers.
	TaskID string

	// Immediate is true when the submission answered without a task.
	Immediate bool

	// Text is the display text: the extracted answer on success.
	Text string

	// Message is the remote system's last message.
	Message string

	// Attempts is the number of status polls issued.
	Attempts int
}
