package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/internal/mockserver"
)

// executeCmd runs the root command with args and returns captured stdout
// and stderr. Global flag variables are reset first since cobra keeps them
// between executions.
func executeCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	configFile, envFile, logLevel, prettyLogs = "", "", "info", false
	askFile, askQuiet, pollQuiet = "", false, false
	historyClear, historyJSON = false, false
	mockAddr, mockImmediate = "", ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskpoll.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// startMock serves a scripted API and points the TASKPOLL_API_* variables at it.
func startMock(t *testing.T, script ...mockserver.Step) *mockserver.Server {
	t.Helper()
	mock := mockserver.New(zerolog.Nop(), script...)
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	t.Setenv("TASKPOLL_API_SUBMIT_URL", srv.URL+"/analyze")
	t.Setenv("TASKPOLL_API_STATUS_URL", srv.URL+"/status/")
	t.Setenv("TASKPOLL_POLL_DELAYS", "100ms")
	return mock
}

func TestVersion(t *testing.T) {
	out, _, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "taskpoll dev") {
		t.Errorf("output = %q", out)
	}
}

func TestAsk_EndToEnd(t *testing.T) {
	mock := startMock(t)

	dataset := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(dataset, []byte("region,revenue\nemea,10\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, errOut, err := executeCmd(t, "ask", "--file", dataset, "which", "region", "grew?")
	if err != nil {
		t.Fatalf("ask error = %v, stderr = %s", err, errOut)
	}

	if !strings.Contains(out, "Revenue grew 12%") {
		t.Errorf("stdout = %q, want the scripted answer", out)
	}
	if !strings.Contains(errOut, "25%") || !strings.Contains(errOut, "[done]") {
		t.Errorf("stderr = %q, want progress lines", errOut)
	}

	subs := mock.Submissions()
	if len(subs) != 1 || subs[0].Query != "which region grew?" || subs[0].FileName != "sales.csv" {
		t.Errorf("submissions = %+v", subs)
	}
}

func TestAsk_Quiet(t *testing.T) {
	startMock(t, mockserver.Step{JSON: map[string]any{"status": "done", "result": "42"}})

	out, errOut, err := executeCmd(t, "ask", "-q", "--log-level", "error", "q")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if strings.TrimSpace(out) != "42" {
		t.Errorf("stdout = %q, want 42", out)
	}
	if strings.Contains(errOut, "[polling]") {
		t.Errorf("stderr = %q, want no progress", errOut)
	}
}

func TestAsk_TaskError(t *testing.T) {
	startMock(t, mockserver.Step{JSON: map[string]any{"status": "error", "message": "dataset unreadable"}})

	_, _, err := executeCmd(t, "ask", "-q", "q")
	if err == nil || !strings.Contains(err.Error(), "dataset unreadable") {
		t.Errorf("ask error = %v, want task error", err)
	}
}

func TestAsk_MissingFile(t *testing.T) {
	startMock(t)

	_, _, err := executeCmd(t, "ask", "--file", "/nonexistent/data.csv", "q")
	if err == nil || !strings.Contains(err.Error(), "failed to open dataset") {
		t.Errorf("ask error = %v, want open error", err)
	}
}

func TestPoll_UnknownTask(t *testing.T) {
	startMock(t)

	_, _, err := executeCmd(t, "poll", "-q", "nope")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("poll error = %v, want 404", err)
	}
}

func TestHistory_RecordsAsk(t *testing.T) {
	startMock(t, mockserver.Step{JSON: map[string]any{"status": "done", "result": map[string]any{"answer": "EMEA"}}})

	dbPath := filepath.Join(t.TempDir(), "history.db")
	configPath := writeConfig(t, `
history:
  backend: sqlite
  user: ada
  domain: sales
  sqlite:
    path: `+dbPath+`
`)

	if _, _, err := executeCmd(t, "ask", "-c", configPath, "-q", "best region?"); err != nil {
		t.Fatalf("ask error = %v", err)
	}

	out, _, err := executeCmd(t, "history", "-c", configPath)
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	for _, want := range []string{"STATE", "done", "best region?", "EMEA"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}

	out, _, err = executeCmd(t, "history", "-c", configPath, "--clear")
	if err != nil || !strings.Contains(out, "History cleared") {
		t.Fatalf("history --clear = %q, %v", out, err)
	}

	out, _, err = executeCmd(t, "history", "-c", configPath)
	if err != nil || !strings.Contains(out, "No recorded runs.") {
		t.Errorf("history after clear = %q, %v", out, err)
	}
}

func TestHistory_NoBackend(t *testing.T) {
	startMock(t)

	_, _, err := executeCmd(t, "history")
	if err == nil || !strings.Contains(err.Error(), "no history backend") {
		t.Errorf("history error = %v", err)
	}
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name string
		snap taskpoll.Snapshot
		want string
	}{
		{"submitting", taskpoll.Snapshot{State: taskpoll.StateSubmitting}, "[submitting]"},
		{
			"polling with progress",
			taskpoll.Snapshot{State: taskpoll.StatePolling, TaskID: "t1", Progress: 40, HasProgress: true, Message: "analyzing"},
			"[polling] task t1 40% analyzing",
		},
		{"done hides message", taskpoll.Snapshot{State: taskpoll.StateDone, TaskID: "t1", Message: "m"}, "[done]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatProgress(tt.snap); got != tt.want {
				t.Errorf("formatProgress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("multi\nline   text", 20); got != "multi line text" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate() = %q", got)
	}
}
