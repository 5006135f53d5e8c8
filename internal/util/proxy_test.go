package util

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestNewProxyFunc_Explicit(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "", "internal.example")

	req, _ := http.NewRequest(http.MethodGet, "https://api.openai.com/v1/chat/completions", nil)
	u, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy func failed: %v", err)
	}
	if u == nil || u.Host != "proxy.local:3128" {
		t.Errorf("expected proxy.local:3128, got %v", u)
	}

	req, _ = http.NewRequest(http.MethodGet, "https://internal.example/v1/messages", nil)
	u, err = proxy(req)
	if err != nil {
		t.Fatalf("proxy func failed: %v", err)
	}
	if u != nil {
		t.Errorf("expected no proxy for NO_PROXY host, got %v", u)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false, true)

	logger.Debug().Msg("hidden")
	logger.Info().Str("batch_id", "b1").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at info level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if entry["batch_id"] != "b1" || entry["message"] != "visible" {
		t.Errorf("unexpected log entry: %v", entry)
	}
}

func TestNewLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, true, true)
	logger.Debug().Msg("shown")

	if !strings.Contains(buf.String(), "shown") {
		t.Error("expected debug output in verbose mode")
	}
}
