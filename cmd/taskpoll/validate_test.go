package main

import (
	"strings"
	"testing"
)

func TestRunValidate_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
api:
  submit_url: https://api.example.com/analyze
  status_url: https://api.example.com/status/
  timeout: 10s
polling:
  delays: [500ms, 1s]
  max_wait: 2m
history:
  backend: memory
  user: ada
  domain: sales
`)

	output, _, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Submit URL: https://api.example.com/analyze",
		"Status URL: https://api.example.com/status/",
		"Timeout:    10s",
		"Delays:     2 custom (first 500ms)",
		"Max wait:   2m0s",
		"History:    memory (ada/sales)",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot:\n%s", phrase, output)
		}
	}
}

func TestRunValidate_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
api:
  status_url: https://api.example.com/status/
`)

	output, _, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	for _, phrase := range []string{"(none, poll only)", "default (first 1.2s)", "unbounded", "History:    none"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot:\n%s", phrase, output)
		}
	}
}

func TestRunValidate_EnvOnly(t *testing.T) {
	t.Setenv("TASKPOLL_API_STATUS_URL", "http://localhost:8090/status/")

	output, _, err := executeCmd(t, "validate")
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	if !strings.Contains(output, "http://localhost:8090/status/") {
		t.Errorf("output = %q", output)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing status url", `api: {submit_url: https://example.com/analyze}`, "api.status_url is required"},
		{"bad scheme", `api: {status_url: ftp://example.com/}`, "must be http or https"},
		{"bad backend", "api: {status_url: https://example.com/s/}\nhistory: {backend: mongo}", "history.backend"},
		{"bad yaml", "api: [", "failed to parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCmd(t, "validate", "-c", writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("validate command expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, _, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v, want read error", err)
	}
}
