package taskpoll

import (
	"errors"

	"github.com/jpalmerr/taskpoll/internal/poller"
)

// HTTPError reports a non-2xx response from the analysis API. It carries the
// status code and the raw body text.
type HTTPError = poller.HTTPError

// TaskError reports a terminal error status from the remote system.
type TaskError = poller.TaskError

// ShapeError reports a response payload that did not have the expected shape.
type ShapeError = poller.ShapeError

var (
	// ErrCancelled reports a run aborted locally. Sessions swallow it and
	// report [StateCancelled] instead.
	ErrCancelled = poller.ErrCancelled

	// ErrMaxWaitExceeded is returned when a task does not finish within the
	// duration set by [WithMaxWait].
	ErrMaxWaitExceeded = poller.ErrMaxWaitExceeded

	// ErrNoSubmitURL is returned by [Session.Submit] when no submission
	// endpoint was configured.
	ErrNoSubmitURL = errors.New("no submit URL configured")

	// ErrEmptyQuery is returned by [Session.Submit] for a blank query.
	ErrEmptyQuery = errors.New("query is required")

	// ErrEmptyTaskID is returned by [Session.Resume] for a blank task id.
	ErrEmptyTaskID = errors.New("task id is required")

	// ErrClosed is returned by sessions after [Session.Close].
	ErrClosed = errors.New("session closed")
)
