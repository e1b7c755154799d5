package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json debug", config: Config{Level: DebugLevel, Format: JSONFormat}},
		{name: "text info", config: Config{Level: InfoLevel, Format: TextFormat}},
		{name: "empty format defaults to json", config: Config{Level: WarnLevel}},
		{name: "invalid level falls back to info", config: Config{Level: "loud", Format: JSONFormat}},
		{name: "invalid format", config: Config{Level: InfoLevel, Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Output = &bytes.Buffer{}
			log, err := NewZapLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewZapLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && log == nil {
				t.Fatal("NewZapLogger() returned nil logger")
			}
		})
	}
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{Level: WarnLevel, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Debug("debug entry")
	log.Info("info entry")
	log.Warn("warn entry")
	log.Error("error entry")
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "debug entry") || strings.Contains(out, "info entry") {
		t.Fatalf("entries below warn must be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn entry") || !strings.Contains(out, "error entry") {
		t.Fatalf("expected warn and error entries, got %q", out)
	}
}

func TestZapLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{Level: InfoLevel, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.With("node_id", "node-a").Info("lease acquired", "lock_id", "job-1")
	_ = log.Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode entry: %v (%q)", err, buf.String())
	}
	if entry["message"] != "lease acquired" {
		t.Errorf("unexpected message: %v", entry["message"])
	}
	if entry["node_id"] != "node-a" || entry["lock_id"] != "job-1" {
		t.Errorf("missing structured fields: %v", entry)
	}
	if entry["level"] != "info" {
		t.Errorf("unexpected level: %v", entry["level"])
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Fatalf("ParseLogLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseLogLevel("trace"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestParseLogFormat(t *testing.T) {
	if f, err := ParseLogFormat("console"); err != nil || f != TextFormat {
		t.Errorf("console should map to text, got %s, %v", f, err)
	}
	if f, err := ParseLogFormat("json"); err != nil || f != JSONFormat {
		t.Errorf("json should map to json, got %s, %v", f, err)
	}
	if _, err := ParseLogFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNop()
	log.Debug("x")
	log.Info("x", "k", "v")
	log.Warn("x")
	log.Error("x")
	if log.With("k", "v") == nil {
		t.Fatal("With must return a logger")
	}
}
