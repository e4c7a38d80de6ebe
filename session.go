package taskpoll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jpalmerr/taskpoll/internal/poller"
)

const historyTimeout = 5 * time.Second

// Query is one question submitted to the analysis API.
type Query struct {
	// Text is the free-text question. Required.
	Text string

	// FileName and File form the optional dataset attachment.
	FileName string
	File     io.Reader
}

// Session submits queries and follows their tasks to completion.
//
// A Session owns at most one active run. Starting a new run through
// [Session.Submit] or [Session.Resume] cancels the previous one, and a
// superseded run never overwrites the snapshot of the run that replaced it.
//
// All methods are safe for concurrent use. Submit and Resume block until the
// run reaches a terminal state; call [Session.Cancel] from another goroutine
// (or cancel the context) to abort.
type Session struct {
	cfg    sessionConfig
	client *poller.Client
	logger zerolog.Logger

	mu        sync.Mutex
	gen       uint64
	active    *poller.Poller
	runCancel context.CancelFunc
	snap      Snapshot
	closed    bool
}

// NewSession creates a [Session] with the given options.
//
// [WithStatusURL] is required. Other options have defaults:
//   - Timeout: 30 seconds per request
//   - Delays: [DefaultDelays]
//   - Max wait: none
//   - Logger: no-op
//
// Example:
//
//	s, err := taskpoll.NewSession(
//	    taskpoll.WithSubmitURL("https://api.example.com/analyze"),
//	    taskpoll.WithStatusURL("https://api.example.com/status/"),
//	)
func NewSession(opts ...Option) (*Session, error) {
	cfg := sessionConfig{
		timeout: defaultTimeout,
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.statusURL == "" {
		return nil, errors.New("status URL is required")
	}
	if len(cfg.delays) == 0 {
		cfg.delays = append([]time.Duration(nil), DefaultDelays...)
	}

	var client *poller.Client
	if cfg.httpClient != nil {
		client = poller.NewClientWith(cfg.httpClient)
	} else {
		client = poller.NewClient()
	}

	return &Session{
		cfg:    cfg,
		client: client,
		logger: cfg.logger,
		snap:   Snapshot{State: StateIdle, UpdatedAt: time.Now()},
	}, nil
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Submit sends q to the submission endpoint and, if a task id comes back,
// polls the task until it finishes.
//
// A text response, or a JSON response without a task id, is an immediate
// answer. On success the returned [Outcome] carries the extracted display
// text. A cancelled run returns [StateCancelled] with a nil error. Failures
// return [StateFailed] and the error: [*HTTPError] for non-2xx responses,
// [*TaskError] for a remote error status.
func (s *Session) Submit(ctx context.Context, q Query) (Outcome, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Outcome{State: StateFailed}, ErrEmptyQuery
	}
	if s.cfg.submitURL == "" {
		return Outcome{State: StateFailed}, ErrNoSubmitURL
	}

	r, err := s.begin(ctx, q.Text, StateSubmitting)
	if err != nil {
		return Outcome{State: StateFailed}, err
	}
	defer s.end(r)

	var file *poller.File
	if q.File != nil {
		file = &poller.File{FieldName: "file", Name: q.FileName, Content: q.File}
	}
	body, contentType, err := poller.NewMultipart([][2]string{
		{"query", q.Text},
		{"api_key", s.cfg.apiKey},
	}, file)
	if err != nil {
		return s.fail(r, "", err)
	}

	headers := s.requestHeaders()
	headers["X-Request-ID"] = uuid.NewString()

	resp, err := s.client.Do(r.ctx, poller.Request{
		Method:      http.MethodPost,
		URL:         s.cfg.submitURL,
		Headers:     headers,
		Body:        body,
		ContentType: contentType,
		Timeout:     s.cfg.timeout,
	})
	if r.ctx.Err() != nil {
		return s.cancelled(r, "")
	}
	if err != nil {
		return s.fail(r, "", fmt.Errorf("submit query: %w", err))
	}

	message, _ := resp.Payload.String("message")
	taskID := taskIDOf(resp.Payload)
	if taskID == "" {
		if status, _ := resp.Payload.String("status"); status == string(TaskFailed) {
			if message == "" {
				message = "submission rejected"
			}
			return s.fail(r, "", &TaskError{Message: message})
		}
		s.logger.Debug().Str("request_id", headers["X-Request-ID"]).Msg("submission answered immediately")
		return s.succeed(r, Outcome{
			State:     StateDone,
			Immediate: true,
			Text:      s.extract(resp.Payload.Value),
			Message:   message,
		})
	}

	s.logger.Info().
		Str("task_id", taskID).
		Str("request_id", headers["X-Request-ID"]).
		Dur("latency", resp.Latency).
		Msg("task submitted")
	return s.poll(r, taskID, message)
}

// Resume polls an already-submitted task until it finishes.
func (s *Session) Resume(ctx context.Context, taskID string) (Outcome, error) {
	if strings.TrimSpace(taskID) == "" {
		return Outcome{State: StateFailed}, ErrEmptyTaskID
	}

	r, err := s.begin(ctx, "", StatePolling)
	if err != nil {
		return Outcome{State: StateFailed}, err
	}
	defer s.end(r)

	return s.poll(r, taskID, "")
}

// Cancel aborts the active run, if any. The in-flight request is aborted
// and no further polls are issued. The remote task is not notified. The
// cancelled snapshot is published by the goroutine running the run, so
// Cancel may be called from an update callback.
//
// Cancel is idempotent.
func (s *Session) Cancel() {
	s.mu.Lock()
	p, cancel := s.active, s.runCancel
	s.mu.Unlock()

	if p != nil {
		p.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// Close cancels the active run and releases idle connections. Submit and
// Resume return [ErrClosed] afterwards. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Cancel()
	s.client.Close()
}

// run identifies one Submit or Resume call.
type run struct {
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	query   string
	taskID  string
	started time.Time
}

// begin cancels any previous run and starts a new generation.
func (s *Session) begin(parent context.Context, query string, state State) (*run, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	if s.active != nil {
		s.active.Cancel()
	}
	if s.runCancel != nil {
		s.runCancel()
	}

	ctx, cancel := context.WithCancel(parent)
	s.gen++
	s.active = nil
	s.runCancel = cancel
	s.snap = Snapshot{State: state, Loading: true, UpdatedAt: time.Now()}

	r := &run{
		gen:     s.gen,
		ctx:     ctx,
		cancel:  cancel,
		query:   query,
		started: time.Now(),
	}
	snap := s.snap
	s.mu.Unlock()

	s.notify(snap)
	return r, nil
}

// end releases the run's resources and detaches it if it is still current.
func (s *Session) end(r *run) {
	r.cancel()

	s.mu.Lock()
	if s.gen == r.gen {
		s.active = nil
		s.runCancel = nil
	}
	s.mu.Unlock()
}

// attach makes p the active poller for r. It returns false if r was
// superseded or cancelled before polling started.
func (s *Session) attach(r *run, p *poller.Poller, message string) bool {
	s.mu.Lock()
	if s.gen != r.gen || r.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.active = p
	s.snap.State = StatePolling
	s.snap.TaskID = r.taskID
	s.snap.TaskStatus = TaskQueued
	if message != "" {
		s.snap.Message = message
	}
	s.snap.UpdatedAt = time.Now()
	snap := s.snap
	s.mu.Unlock()

	s.notify(snap)
	return true
}

func (s *Session) poll(r *run, taskID, message string) (Outcome, error) {
	r.taskID = taskID

	p := poller.New(s.client, poller.Config{
		StatusURL: s.cfg.statusURL,
		Headers:   s.requestHeaders(),
		Timeout:   s.cfg.timeout,
		Schedule:  poller.NewSchedule(s.cfg.delays),
		MaxWait:   s.cfg.maxWait,
		Logger:    s.logger,
		OnUpdate: func(u poller.Update) {
			s.update(r, func(sn *Snapshot) {
				sn.TaskStatus = u.Status
				sn.Attempts = u.Attempt + 1
				if u.HasProgress {
					sn.Progress = u.Progress
					sn.HasProgress = true
				}
				if u.Message != "" {
					sn.Message = u.Message
				}
			})
		},
	})

	if !s.attach(r, p, message) {
		return s.cancelled(r, message)
	}

	res, err := p.Run(r.ctx, taskID)
	switch {
	case err == nil:
		msg := res.Message
		if msg == "" {
			msg = message
		}
		return s.succeed(r, Outcome{
			State:    StateDone,
			TaskID:   taskID,
			Text:     s.resultText(res, message),
			Message:  msg,
			Attempts: res.Attempts,
		})
	case errors.Is(err, poller.ErrCancelled):
		return s.cancelled(r, message)
	default:
		return s.fail(r, message, err)
	}
}

// resultText applies the extractor to the task's result, falling back to
// the task's message and then to the whole final payload.
func (s *Session) resultText(res poller.Result, submitMessage string) string {
	if res.Result != nil {
		return s.extract(res.Result)
	}
	if res.Message != "" {
		return res.Message
	}
	if res.Payload.Value != nil {
		return s.extract(res.Payload.Value)
	}
	return submitMessage
}

func (s *Session) succeed(r *run, out Outcome) (Outcome, error) {
	out.TaskID = r.taskID
	state := s.settle(r, StateDone, func(sn *Snapshot) {
		sn.Answer = out.Text
		if out.Message != "" {
			sn.Message = out.Message
		}
		if r.taskID != "" {
			sn.TaskStatus = TaskDone
		}
	})
	if state == StateCancelled {
		return s.cancelled(r, out.Message)
	}
	s.logger.Info().Str("task_id", r.taskID).Int("attempts", out.Attempts).Msg("task done")
	s.record(r, StateDone, out.Text, "")
	return out, nil
}

func (s *Session) fail(r *run, message string, err error) (Outcome, error) {
	errMsg := errorMessage(err)
	state := s.settle(r, StateFailed, func(sn *Snapshot) {
		sn.Err = errMsg
	})
	if state == StateCancelled {
		return s.cancelled(r, message)
	}
	s.logger.Warn().Err(err).Str("task_id", r.taskID).Msg("task failed")
	s.record(r, StateFailed, "", errMsg)
	return Outcome{State: StateFailed, TaskID: r.taskID, Message: message}, err
}

func (s *Session) cancelled(r *run, message string) (Outcome, error) {
	s.settle(r, StateCancelled, nil)
	s.logger.Info().Str("task_id", r.taskID).Msg("task cancelled")
	s.record(r, StateCancelled, "", "")
	return Outcome{State: StateCancelled, TaskID: r.taskID, Message: message}, nil
}

// settle moves r's snapshot to a terminal state and returns the state it
// ended in. A run cancelled before it settles always ends cancelled, and a
// snapshot that is already terminal is left alone.
func (s *Session) settle(r *run, state State, fn func(*Snapshot)) State {
	s.mu.Lock()
	if r.ctx.Err() != nil {
		state = StateCancelled
	}
	if s.gen != r.gen || s.snap.State.Terminal() {
		s.mu.Unlock()
		return state
	}
	if state != StateCancelled && fn != nil {
		fn(&s.snap)
	}
	s.snap.State = state
	s.snap.Loading = false
	s.snap.UpdatedAt = time.Now()
	snap := s.snap
	s.mu.Unlock()

	s.notify(snap)
	return state
}

// update applies fn to the snapshot while r is the current, live run.
func (s *Session) update(r *run, fn func(*Snapshot)) {
	s.mu.Lock()
	if s.gen != r.gen || r.ctx.Err() != nil || s.snap.State.Terminal() {
		s.mu.Unlock()
		return
	}
	before := s.snap
	fn(&s.snap)
	if s.snap == before {
		s.mu.Unlock()
		return
	}
	s.snap.UpdatedAt = time.Now()
	snap := s.snap
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Session) notify(snap Snapshot) {
	for _, cb := range s.cfg.callbacks {
		invokeCallbackSafe(cb, snap, s.logger)
	}
}

// record appends the finished run to history. Failures are logged only.
func (s *Session) record(r *run, state State, answer, errMsg string) {
	if s.cfg.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), historyTimeout)
	defer cancel()

	entry := HistoryEntry{
		ID:         uuid.NewString(),
		TaskID:     r.taskID,
		Query:      r.query,
		Answer:     answer,
		Error:      errMsg,
		State:      string(state),
		CreatedAt:  r.started,
		FinishedAt: time.Now(),
	}
	if err := s.cfg.history.Append(ctx, s.cfg.historyKey, entry); err != nil {
		s.logger.Warn().Err(err).Str("task_id", r.taskID).Msg("failed to record history")
	}
}

// extract runs the configured extractor with panic recovery. A panicking
// extractor is logged with a correlation id and the default chain is used.
func (s *Session) extract(v any) (text string) {
	if s.cfg.extractor == nil {
		return ExtractText(v)
	}

	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			s.logger.Error().
				Str("correlation_id", correlationID).
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", string(debug.Stack())).
				Msg("extractor panic")
			text = ExtractText(v)
		}
	}()
	return ExtractWith(s.cfg.extractor, v)
}

func (s *Session) requestHeaders() map[string]string {
	h := make(map[string]string, len(s.cfg.headers)+1)
	for k, v := range s.cfg.headers {
		h[k] = v
	}
	return h
}

// taskIDOf returns the submission's task id, accepting string or numeric ids.
func taskIDOf(p poller.Payload) string {
	if id, ok := p.String("task_id"); ok {
		return strings.TrimSpace(id)
	}
	if n, ok := p.Number("task_id"); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

// errorMessage returns the text shown to the user for err.
func errorMessage(err error) string {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Message
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if body := strings.TrimSpace(httpErr.Body); body != "" {
			return fmt.Sprintf("request failed with status %d: %s", httpErr.StatusCode, body)
		}
		return fmt.Sprintf("request failed with status %d", httpErr.StatusCode)
	}
	if errors.Is(err, ErrMaxWaitExceeded) {
		return "the analysis is taking too long; try again later"
	}
	return err.Error()
}

// invokeCallbackSafe calls a snapshot callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Snapshot), snap Snapshot, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("state", snap.State.String()).
				Msg("update callback panicked")
		}
	}()
	cb(snap)
}
