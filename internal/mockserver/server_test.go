package mockserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func submit(t *testing.T, h http.Handler, query string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if query != "" {
		_ = w.WriteField("query", query)
	}
	_ = w.WriteField("api_key", "secret")
	part, _ := w.CreateFormFile("file", "data.csv")
	_, _ = part.Write([]byte("a,b\n1,2\n"))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func poll(h http.Handler, taskID string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/"+taskID, nil))
	return rec
}

func TestServer_SubmitAndReplay(t *testing.T) {
	s := New(zerolog.Nop(),
		Step{JSON: map[string]any{"status": "running"}},
		Step{Text: "job done"},
	)
	h := s.Handler()

	rec := submit(t, h, "what sold best?")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if body["task_id"] != "t1" || body["status"] != "queued" {
		t.Errorf("submit response = %v", body)
	}

	subs := s.Submissions()
	if len(subs) != 1 {
		t.Fatalf("Submissions() = %d, want 1", len(subs))
	}
	if subs[0].Query != "what sold best?" || subs[0].APIKey != "secret" || subs[0].FileName != "data.csv" || subs[0].FileSize != 8 {
		t.Errorf("Submission = %+v", subs[0])
	}

	if rec := poll(h, "t1"); rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("first poll content type = %q", rec.Header().Get("Content-Type"))
	}
	for i := 0; i < 2; i++ {
		rec := poll(h, "t1")
		if rec.Body.String() != "job done" {
			t.Errorf("poll %d body = %q, want last step repeated", i+2, rec.Body.String())
		}
	}
	if got := s.Polls("t1"); got != 3 {
		t.Errorf("Polls(t1) = %d, want 3", got)
	}
}

func TestServer_UnknownTask(t *testing.T) {
	s := New(zerolog.Nop())
	if rec := poll(s.Handler(), "nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_QueryRequired(t *testing.T) {
	s := New(zerolog.Nop())
	if rec := submit(t, s.Handler(), ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_Immediate(t *testing.T) {
	s := New(zerolog.Nop())
	s.SetImmediate(map[string]any{"answer": "right away"})

	rec := submit(t, s.Handler(), "hi")
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["answer"] != "right away" {
		t.Errorf("response = %v", body)
	}
	if _, ok := body["task_id"]; ok {
		t.Error("immediate response must not carry a task id")
	}
}

func TestServer_FailSubmissions(t *testing.T) {
	s := New(zerolog.Nop())
	s.FailSubmissions(http.StatusUnauthorized, "bad key")

	rec := submit(t, s.Handler(), "hi")
	if rec.Code != http.StatusUnauthorized || rec.Body.String() != "bad key" {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}
