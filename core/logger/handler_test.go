package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"log/slog"
)

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: aw,
		format: formatKV,
	})

	log := slog.New(handler).With("component", "session")
	LogEvent(Background(), log, slog.LevelInfo, "session.cleared",
		slog.String("status", "ok"),
		slog.Int64("chat_id", 42),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=session", "event=session.cleared", "status=ok", "chat_id=42"}
	if len(tokens) != len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: aw,
		format: formatJSON,
	})

	log := slog.New(handler).With("component", "api")
	LogEvent(Background(), log, slog.LevelError, "api.call",
		slog.String("api_op", "transactions.create"),
		slog.String("err", "boom"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", line, err)
	}
	if decoded["component"] != "api" || decoded["event"] != "api.call" || decoded["err"] != "boom" {
		t.Fatalf("unexpected fields: %v", decoded)
	}
	// component must precede free-form keys in the raw output
	if strings.Index(line, `"component"`) > strings.Index(line, `"err"`) {
		t.Fatalf("key order not applied: %s", line)
	}
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelWarn,
		writer: aw,
		format: formatKV,
	})

	log := slog.New(handler)
	log.Info("dropped")
	log.Warn("kept")
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestSanitizeLimit(t *testing.T) {
	in := "abc\x00def\x1b[31m"
	got := SanitizeLimit(in, 6)
	if got != "abcdef" {
		t.Fatalf("got %q", got)
	}
	if SanitizeLimit("hello", 0) != "" {
		t.Fatal("zero limit must return empty string")
	}
}
