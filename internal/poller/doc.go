// Package poller provides the HTTP client and backoff poll loop for taskpoll.
//
// This package is internal to taskpoll and handles the wire-level work of
// talking to an asynchronous analysis API: issuing single requests, decoding
// heterogeneous response bodies, and polling a task's status endpoint until
// the task reaches a terminal state or the poll is cancelled.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper that normalizes non-2xx responses into [HTTPError]
//   - [Payload]: Tagged union of a decoded response body (text, object, other)
//   - [Schedule]: Fixed ascending table of inter-attempt delays
//   - [Poller]: Sequential, cancellable poll loop for a single task
//
// Users of the taskpoll library should not need to interact with this
// package directly. Sessions are driven through the main taskpoll package.
package poller
