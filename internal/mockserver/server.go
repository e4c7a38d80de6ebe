// Package mockserver provides a scripted stand-in for the remote analysis API.
//
// It serves the two endpoints taskpoll talks to:
//
//   - POST /analyze: multipart submission, returns a task id or an immediate answer
//   - GET /status/{taskID}: replays a script of status responses per task
//
// The server backs the `taskpoll mock` command and the session tests.
package mockserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const maxUploadSize = 32 << 20 // 32MB

// Step is one scripted status response.
type Step struct {
	// Code is the HTTP status code. Zero means 200.
	Code int

	// JSON is encoded as application/json when non-nil.
	JSON any

	// Text is sent as text/plain when JSON is nil.
	Text string
}

// Submission records what a client sent to POST /analyze.
type Submission struct {
	Query    string
	FileName string
	FileSize int64
	APIKey   string
}

// Server is a scripted analysis API.
//
// Every task replays the same script independently; once a task reaches the
// end of the script the last step repeats.
type Server struct {
	logger zerolog.Logger
	router chi.Router

	mu          sync.Mutex
	script      []Step
	immediate   any
	submitError *Step
	nextID      int
	polls       map[string]int
	submissions []Submission
}

// DefaultScript reports progress twice and then completes with an answer.
func DefaultScript() []Step {
	return []Step{
		{JSON: map[string]any{"status": "running", "progress": 25, "message": "loading dataset"}},
		{JSON: map[string]any{"status": "running", "progress": 70, "message": "analyzing"}},
		{JSON: map[string]any{"status": "done", "progress": 100, "result": map[string]any{
			"answer": "Revenue grew 12% quarter over quarter, led by the EMEA region.",
		}}},
	}
}

// New creates a [Server] that replays script for every task. An empty
// script uses [DefaultScript].
func New(logger zerolog.Logger, script ...Step) *Server {
	if len(script) == 0 {
		script = DefaultScript()
	}

	s := &Server{
		logger: logger,
		script: script,
		polls:  make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/status/{taskID}", s.handleStatus)

	s.router = r
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetImmediate makes submissions answer with v directly instead of queuing a
// task. A nil v restores queuing.
func (s *Server) SetImmediate(v any) {
	s.mu.Lock()
	s.immediate = v
	s.mu.Unlock()
}

// FailSubmissions makes every submission respond with code and body.
func (s *Server) FailSubmissions(code int, body string) {
	s.mu.Lock()
	s.submitError = &Step{Code: code, Text: body}
	s.mu.Unlock()
}

// Polls returns how many status requests were made for taskID.
func (s *Server) Polls(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[taskID]
}

// Submissions returns a copy of every submission received.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, fmt.Sprintf("invalid multipart body: %v", err), http.StatusBadRequest)
		return
	}

	sub := Submission{
		Query:  r.FormValue("query"),
		APIKey: r.FormValue("api_key"),
	}
	if sub.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "query is required"})
		return
	}
	if f, hdr, err := r.FormFile("file"); err == nil {
		n, _ := io.Copy(io.Discard, f)
		_ = f.Close()
		sub.FileName = hdr.Filename
		sub.FileSize = n
	}

	s.mu.Lock()
	s.submissions = append(s.submissions, sub)
	submitError := s.submitError
	immediate := s.immediate
	var taskID string
	if submitError == nil && immediate == nil {
		s.nextID++
		taskID = fmt.Sprintf("t%d", s.nextID)
		s.polls[taskID] = 0
	}
	s.mu.Unlock()

	switch {
	case submitError != nil:
		writeStep(w, *submitError)
	case immediate != nil:
		writeStep(w, Step{JSON: immediate})
	default:
		s.logger.Info().Str("task_id", taskID).Str("file", sub.FileName).Msg("task queued")
		writeJSON(w, http.StatusOK, map[string]any{
			"task_id": taskID,
			"status":  "queued",
			"message": "analysis queued",
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	s.mu.Lock()
	n, ok := s.polls[taskID]
	if ok {
		s.polls[taskID] = n + 1
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "unknown task"})
		return
	}

	if n >= len(s.script) {
		n = len(s.script) - 1
	}
	writeStep(w, s.script[n])
}

func writeStep(w http.ResponseWriter, st Step) {
	code := st.Code
	if code == 0 {
		code = http.StatusOK
	}
	if st.JSON != nil {
		writeJSON(w, code, st.JSON)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(st.Text))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request at debug level with its chi request id.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("latency", time.Since(start)).
				Msg("request served")
		})
	}
}
