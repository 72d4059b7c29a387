package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := Init(Options{Writer: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = Init(Options{}) })
	return &buf
}

func TestVerboseGating(t *testing.T) {
	buf := captureOutput(t)

	verbose := false
	log := NewWithCallback("workflow", func() bool { return verbose })

	log.Debug("hidden %d", 1)
	log.Info("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("Expected no output while not verbose, got %q", buf.String())
	}

	log.Warn("always shown")
	if !strings.Contains(buf.String(), "always shown") {
		t.Errorf("Expected warning in output, got %q", buf.String())
	}

	verbose = true
	log.Debug("estimate took %dms", 42)
	out := buf.String()
	if !strings.Contains(out, "estimate took 42ms") {
		t.Errorf("Expected debug message once verbose, got %q", out)
	}
	if !strings.Contains(out, "workflow") {
		t.Errorf("Expected component name in output, got %q", out)
	}
}

func TestFieldsAreWritten(t *testing.T) {
	buf := captureOutput(t)

	log := NewWithCallback("api", func() bool { return true })
	log.DebugWithFields("request finished", []Field{F("endpoint", "/estimate"), Count(3), Error(errors.New("boom"))})

	out := buf.String()
	for _, want := range []string{"request finished", "/estimate", "count", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output, got %q", want, out)
		}
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	captureOutput(t)

	var log *Logger
	log.Debug("nothing")
	log.Warn("still fine")
}

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "contractis.log")
	if err := Init(Options{File: path}); err != nil {
		t.Fatalf("Init with file failed: %v", err)
	}
	t.Cleanup(func() { _ = Init(Options{}) })

	Nop("settings").Error("could not persist")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "could not persist") {
		t.Errorf("Expected error in log file, got %q", string(data))
	}
}
