package poller

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that sequential status requests reuse
// pooled connections.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5
	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		if _, err := client.Do(ctx, Request{URL: server.URL, Timeout: 5 * time.Second}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

func TestClient_Do_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"running","progress":40}`))
	}))
	defer server.Close()

	resp, err := NewClient().Do(context.Background(), Request{URL: server.URL})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.Payload.Kind != KindObject {
		t.Fatalf("Payload.Kind = %v, want object", resp.Payload.Kind)
	}
	if s, _ := resp.Payload.String("status"); s != "running" {
		t.Errorf("status = %q, want running", s)
	}
	if f, _ := resp.Payload.Number("progress"); f != 40 {
		t.Errorf("progress = %v, want 40", f)
	}
}

func TestClient_Do_TextIsNotParsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"status":"done"}`))
	}))
	defer server.Close()

	resp, err := NewClient().Do(context.Background(), Request{URL: server.URL})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.Payload.Kind != KindText {
		t.Errorf("Payload.Kind = %v, want text", resp.Payload.Kind)
	}
	if resp.Payload.Text != `{"status":"done"}` {
		t.Errorf("Payload.Text = %q", resp.Payload.Text)
	}
}

func TestClient_Do_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	_, err := NewClient().Do(context.Background(), Request{URL: server.URL})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Do() error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, http.StatusBadGateway)
	}
	if httpErr.Body != "upstream unavailable" {
		t.Errorf("Body = %q, want %q", httpErr.Body, "upstream unavailable")
	}
}

func TestClient_Do_HeadersAndBody(t *testing.T) {
	var gotAuth, gotType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	_, err := NewClient().Do(context.Background(), Request{
		Method:      http.MethodPost,
		URL:         server.URL,
		Headers:     map[string]string{"Authorization": "Bearer abc"},
		Body:        []byte("hello"),
		ContentType: "text/plain",
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "text/plain" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody != "hello" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestClient_Do_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient().Do(ctx, Request{URL: server.URL, Timeout: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestClient_Do_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewClient().Do(context.Background(), Request{URL: server.URL, Timeout: 20 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}
}

// TestClient_Close verifies that Close() is safe to call, idempotent and
// nil-safe.
func TestClient_Close(t *testing.T) {
	client := NewClient()
	client.Close()
	client.Close()

	var nilClient *Client
	nilClient.Close()
}

func TestNewMultipart(t *testing.T) {
	body, contentType, err := NewMultipart(
		[][2]string{{"query", "top products"}, {"api_key", ""}},
		&File{Name: "sales.csv", Content: strings.NewReader("a,b\n1,2\n")},
	)
	if err != nil {
		t.Fatalf("NewMultipart() error = %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("content type = %q, err = %v", contentType, err)
	}

	form, err := multipart.NewReader(strings.NewReader(string(body)), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm() error = %v", err)
	}
	if got := form.Value["query"]; len(got) != 1 || got[0] != "top products" {
		t.Errorf("query = %v", got)
	}
	if _, ok := form.Value["api_key"]; ok {
		t.Error("empty api_key should be omitted")
	}
	files := form.File["file"]
	if len(files) != 1 || files[0].Filename != "sales.csv" {
		t.Fatalf("file parts = %v", files)
	}
}
