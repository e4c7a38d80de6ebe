package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle state of a [Poller].
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions can occur from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// TaskStatus is the status reported by the remote system for a task.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "error"
)

// rank orders statuses so transitions only move forward.
// Unknown statuses rank below queued and are never adopted.
func (t TaskStatus) rank() int {
	switch t {
	case TaskQueued:
		return 0
	case TaskRunning:
		return 1
	case TaskDone, TaskFailed:
		return 2
	default:
		return -1
	}
}

const (
	fieldStatus   = "status"
	fieldProgress = "progress"
	fieldMessage  = "message"
	fieldResult   = "result"

	textDoneMarker = "done"

	defaultFailureMessage = "task failed"
)

// Update is emitted after every observed poll response.
type Update struct {
	TaskID      string
	Attempt     int
	Status      TaskStatus
	Progress    int
	HasProgress bool
	Message     string
}

// Result is the outcome of a [Poller.Run].
type Result struct {
	TaskID string

	// Status is the last task status observed.
	Status TaskStatus

	// Message is the task's message, or the whole body for text responses.
	Message string

	// Result is the raw "result" field of the final JSON payload, if any.
	Result any

	// Payload is the final decoded status response.
	Payload Payload

	// Attempts is the number of status requests issued.
	Attempts int
}

// Config configures a [Poller].
type Config struct {
	// StatusURL is the status endpoint prefix; the task id is appended.
	StatusURL string

	// Headers are sent with every status request.
	Headers map[string]string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Schedule is the delay table between attempts.
	Schedule Schedule

	// MaxWait bounds the whole run. Zero polls until a terminal state.
	MaxWait time.Duration

	// OnUpdate receives progress after each response. It is not called once
	// the poller has been cancelled, but a Cancel racing with a response may
	// still see one final update.
	OnUpdate func(Update)

	// Sleep waits between attempts. Defaults to a timer that stops early when
	// ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger zerolog.Logger
}

// Poller polls one task's status endpoint until it completes, fails or is
// cancelled.
//
// Attempts are strictly sequential: attempt n+1 is issued only after the
// response (or abort) of attempt n has been observed, so there is never more
// than one request in flight. A Poller runs at most once.
type Poller struct {
	client *Client
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	attempt  int
	requests int
	cancel   context.CancelFunc
}

// New creates an idle [Poller] that issues requests through client.
func New(client *Client, cfg Config) *Poller {
	if client == nil {
		client = NewClient()
	}
	cfg.Schedule = NewSchedule(cfg.Schedule)
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Poller{
		client: client,
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempt returns the current attempt index, starting at 0.
func (p *Poller) Attempt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}

// Requests returns the number of status requests issued so far.
func (p *Poller) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Cancel aborts any in-flight request and prevents further attempts.
//
// Cancel is idempotent and may be called before [Poller.Run], in which case
// Run returns [ErrCancelled] without issuing a request. Cancelling a poller
// that already finished is a no-op.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Terminal() {
		return
	}
	p.state = StateCancelled
	if p.cancel != nil {
		p.cancel()
	}
}

// Run polls taskID until a terminal state is reached.
//
// It returns the final [Result] on done, a [*TaskError] on a remote error
// status, [ErrCancelled] on local cancellation, [ErrMaxWaitExceeded] when
// MaxWait elapses, and the transport error or [*HTTPError] when a status
// request fails. Transport failures are not retried.
func (p *Poller) Run(ctx context.Context, taskID string) (Result, error) {
	p.mu.Lock()
	switch p.state {
	case StateIdle:
	case StateCancelled:
		p.mu.Unlock()
		return Result{TaskID: taskID, Status: TaskQueued}, ErrCancelled
	default:
		p.mu.Unlock()
		return Result{}, ErrAlreadyStarted
	}
	p.state = StatePolling
	p.attempt = 0

	if p.cfg.MaxWait > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, p.cfg.MaxWait, ErrMaxWaitExceeded)
		defer stop()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	target := p.cfg.StatusURL + url.PathEscape(taskID)
	current := TaskQueued

	for {
		if !p.beginAttempt() {
			return p.stopped(runCtx, taskID, current)
		}

		resp, err := p.client.Do(runCtx, Request{
			Method:  "GET",
			URL:     target,
			Headers: p.cfg.Headers,
			Timeout: p.cfg.Timeout,
		})
		if runCtx.Err() != nil {
			return p.stopped(runCtx, taskID, current)
		}
		if err != nil {
			p.finish(StateFailed)
			p.logger.Warn().Err(err).Str("task_id", taskID).Int("attempt", p.Attempt()).Msg("poll request failed")
			return p.result(taskID, current, Payload{}), fmt.Errorf("poll task %s: %w", taskID, err)
		}

		obs := observe(resp.Payload)
		if obs.shapeErr != nil {
			p.logger.Debug().Err(obs.shapeErr).Str("task_id", taskID).Msg("ignoring status payload")
		}
		if obs.status.rank() >= current.rank() {
			current = obs.status
		}

		p.logger.Debug().
			Str("task_id", taskID).
			Int("attempt", p.Attempt()).
			Str("status", string(current)).
			Dur("latency", resp.Latency).
			Msg("poll completed")

		p.emit(runCtx, Update{
			TaskID:      taskID,
			Attempt:     p.Attempt(),
			Status:      current,
			Progress:    obs.progress,
			HasProgress: obs.hasProgress,
			Message:     obs.message,
		})

		switch current {
		case TaskDone:
			if !p.finish(StateDone) {
				return p.stopped(runCtx, taskID, current)
			}
			res := p.result(taskID, current, resp.Payload)
			res.Message = obs.message
			res.Result = obs.result
			return res, nil
		case TaskFailed:
			if !p.finish(StateFailed) {
				return p.stopped(runCtx, taskID, current)
			}
			msg := obs.message
			if msg == "" {
				msg = defaultFailureMessage
			}
			res := p.result(taskID, current, resp.Payload)
			res.Message = msg
			return res, &TaskError{TaskID: taskID, Message: msg}
		}

		if err := p.cfg.Sleep(runCtx, p.cfg.Schedule.Delay(p.Attempt())); err != nil {
			return p.stopped(runCtx, taskID, current)
		}

		p.mu.Lock()
		p.attempt++
		p.mu.Unlock()
	}
}

// beginAttempt counts a request about to be issued. It returns false if
// the poller was cancelled in the meantime.
func (p *Poller) beginAttempt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePolling {
		return false
	}
	p.requests++
	return true
}

// finish moves to a terminal state unless one was already reached.
func (p *Poller) finish(s State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() {
		return false
	}
	p.state = s
	return true
}

// stopped resolves a run that ended because its context was done.
func (p *Poller) stopped(ctx context.Context, taskID string, current TaskStatus) (Result, error) {
	if errors.Is(context.Cause(ctx), ErrMaxWaitExceeded) && p.finish(StateFailed) {
		p.logger.Warn().Str("task_id", taskID).Dur("max_wait", p.cfg.MaxWait).Msg("poll gave up")
		return p.result(taskID, current, Payload{}), ErrMaxWaitExceeded
	}
	p.finish(StateCancelled)
	p.logger.Debug().Str("task_id", taskID).Msg("poll cancelled")
	return p.result(taskID, current, Payload{}), ErrCancelled
}

func (p *Poller) result(taskID string, status TaskStatus, payload Payload) Result {
	return Result{
		TaskID:   taskID,
		Status:   status,
		Payload:  payload,
		Attempts: p.Requests(),
	}
}

// emit delivers u unless the poller already left the polling state. The
// lock is not held during OnUpdate so the callback may call Cancel.
func (p *Poller) emit(ctx context.Context, u Update) {
	if p.cfg.OnUpdate == nil {
		return
	}
	if p.State() != StatePolling || ctx.Err() != nil {
		return
	}
	p.cfg.OnUpdate(u)
}

// observation is what a single status response says about the task.
type observation struct {
	status      TaskStatus
	progress    int
	hasProgress bool
	message     string
	result      any
	shapeErr    error
}

// observe interprets a status payload. JSON objects carry status, progress,
// message and result fields; plain text containing "done" is terminal
// success for servers that do not speak JSON.
func observe(p Payload) observation {
	switch p.Kind {
	case KindText:
		text := strings.TrimSpace(p.Text)
		if strings.Contains(strings.ToLower(text), textDoneMarker) {
			return observation{status: TaskDone, message: text}
		}
		return observation{message: text}
	case KindObject:
		var obs observation
		if s, ok := p.String(fieldStatus); ok {
			obs.status = TaskStatus(s)
		}
		if f, ok := p.Number(fieldProgress); ok {
			obs.progress = ClampProgress(f)
			obs.hasProgress = true
		}
		obs.message, _ = p.String(fieldMessage)
		obs.result = p.Object[fieldResult]
		return obs
	default:
		_, err := p.AsObject()
		return observation{shapeErr: err}
	}
}

// ClampProgress rounds f to an integer percentage in [0, 100].
func ClampProgress(f float64) int {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(math.Round(f))
}
