package poller

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a poll is aborted locally, either through
// [Poller.Cancel] or by cancellation of the caller's context. It is not a
// task failure.
var ErrCancelled = errors.New("poll cancelled")

// ErrAlreadyStarted is returned by [Poller.Run] when the poller has already run.
var ErrAlreadyStarted = errors.New("poller already started")

// ErrMaxWaitExceeded is returned when a task does not reach a terminal state
// within the configured maximum wait.
var ErrMaxWaitExceeded = errors.New("task did not finish within max wait")

// HTTPError reports a non-2xx response.
type HTTPError struct {
	// StatusCode is the HTTP status code returned by the server.
	StatusCode int

	// Body is the raw response body text, limited to 1MB.
	Body string

	// URL is the request target.
	URL string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// TaskError reports a terminal error status from the remote system.
type TaskError struct {
	TaskID  string
	Message string
}

func (e *TaskError) Error() string {
	return e.Message
}

// ShapeError reports a decoded payload that did not have the expected shape.
type ShapeError struct {
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected payload shape: want %s, got %s", e.Want, e.Got)
}
