// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(9), "LEVEL(9)"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %s, want %s", int(tt.level), got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": LevelDebug, "": LevelInfo, "WARNING": LevelWarn, "error": LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	if LevelWarn.toSlogLevel() != slog.LevelWarn {
		t.Error("warn mismatch")
	}
	if Level(42).toSlogLevel() != slog.LevelInfo {
		t.Error("unknown levels map to info")
	}
}

// TestNew_OutputAndService tests text output with the service attribute.
func TestNew_OutputAndService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "launchpad", Output: &buf})
	logger.Debug("hidden")
	logger.Info("deploying", "app", "api")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered")
	}
	if !strings.Contains(out, "deploying") || !strings.Contains(out, "app=api") || !strings.Contains(out, "service=launchpad") {
		t.Errorf("unexpected output: %s", out)
	}
}

// TestNew_JSON tests JSON output.
func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(Config{JSON: true, Output: &buf}).Warn("careful", "n", 2)
	if !strings.Contains(buf.String(), `"msg":"careful"`) {
		t.Errorf("expected JSON output, got %s", buf.String())
	}
}

// TestNew_WithLogDir tests the daily JSON file.
func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Quiet: true, LogDir: dir, Service: "launchpad"})
	logger.Info("written to file", "stage", "production")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "launchpad_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"stage":"production"`) {
		t.Errorf("file content: %s", data)
	}
}

// TestNew_UnwritableLogDir tests that file logging failures are not fatal.
func TestNew_UnwritableLogDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}
	logger := New(Config{Quiet: true, LogDir: filepath.Join(blocker, "logs")})
	logger.Info("still works")
	if logger.file != nil {
		t.Error("file should be nil when the directory cannot be created")
	}
}

// TestExporter_ReceivesEntriesWithInheritedAttrs tests export through With.
func TestExporter_ReceivesEntriesWithInheritedAttrs(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Level: LevelInfo, Service: "launchpad", Exporter: exp})

	child := logger.With("app", "api")
	child.Debug("filtered")
	child.Error("deploy failed", "error", errors.New("boom"))

	entries := exp.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != LevelError || e.Message != "deploy failed" || e.Service != "launchpad" {
		t.Errorf("entry = %+v", e)
	}
	if e.Attrs["app"] != "api" || e.Attrs["error"] != "boom" {
		t.Errorf("attrs = %v", e.Attrs)
	}
	if got := exp.Messages(LevelWarn); len(got) != 1 {
		t.Errorf("Messages(Warn) = %v", got)
	}
}

type failingExporter struct{ BufferedExporter }

func (f *failingExporter) Flush(context.Context) error { return errors.New("flush failed") }

// TestClose_ReturnsFirstError tests Close error handling and idempotence.
func TestClose_ReturnsFirstError(t *testing.T) {
	logger := New(Config{Quiet: true, Exporter: &failingExporter{}})
	if err := logger.Close(); err == nil || !strings.Contains(err.Error(), "flush failed") {
		t.Errorf("Close() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

// TestLogger_ConcurrentUse tests logging from many goroutines.
func TestLogger_ConcurrentUse(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.With("worker", n).Info("tick")
		}(i)
	}
	wg.Wait()
	if got := len(exp.Entries()); got != 20 {
		t.Errorf("got %d entries, want 20", got)
	}
}

func TestNop(t *testing.T) {
	Nop().Error("nothing happens")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.launchpad/logs"); got != filepath.Join(home, ".launchpad/logs") {
		t.Errorf("expandPath = %s", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath = %s", got)
	}
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")}))
	l.Info("one")
	l.Error("two")

	if !strings.Contains(a.String(), "one") || !strings.Contains(a.String(), "two") {
		t.Errorf("a = %s", a.String())
	}
	if strings.Contains(b.String(), "one") || !strings.Contains(b.String(), "k=v") {
		t.Errorf("b = %s", b.String())
	}
}
