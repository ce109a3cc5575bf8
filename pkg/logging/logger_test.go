package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).With("contact_id", "****0001")
	logger.Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["contact_id"] != "****0001" {
		t.Fatalf("expected contact_id attribute, got %v", entry)
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+51900000001"); got != "********0001" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskPhone("123"); got != "123" {
		t.Fatalf("short values should pass through, got %q", got)
	}
}
