package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWriterStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "subscriber"))
	log.Info("subscribed", String("topic", "notify"), Int("port", 1883), Err(errors.New("boom")))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["message"] != "subscribed" || got["comp"] != "subscriber" || got["topic"] != "notify" {
		t.Fatalf("unexpected record: %v", got)
	}
	if got["err"] != "boom" || got["port"] != float64(1883) {
		t.Fatalf("unexpected fields: %v", got)
	}
	if _, ok := got["error"]; ok {
		t.Fatalf("error field should be named err: %v", got)
	}
	if c, _ := got["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller: %v", got["caller"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Debug("hidden")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("below-level records written: %q", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
	if log.Enabled(LevelInfo) || !log.Enabled(LevelError) {
		t.Fatalf("Enabled mismatch")
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatalf("zero value should report IsZero")
	}
	zero.Info("ignored")
	if Nop().IsZero() {
		t.Fatalf("Nop is a configured logger")
	}
	Nop().Error("ignored", Err(nil))
}

func TestNewConsoleLevel(t *testing.T) {
	log := NewConsole("debug")
	if log.IsZero() {
		t.Fatalf("console logger should be configured")
	}
	if !log.Enabled(LevelDebug) || log.Enabled(LevelTrace) {
		t.Fatalf("console level not applied")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace":   LevelTrace,
		" DEBUG ": LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServiceApplyWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listener.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("first")
	log.Debug("filtered")

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("second")
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") || strings.Contains(out, "filtered") {
		t.Fatalf("unexpected log file: %q", out)
	}
	if svc.Config().Level != "debug" {
		t.Fatalf("config not recorded")
	}
}
