package app

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLogHandler_Format(t *testing.T) {
	var buf strings.Builder
	h := &logHandler{w: &buf, opID: "20240116T120005Z-Find"}

	r := slog.NewRecord(
		time.Date(2024, 1, 16, 12, 0, 5, 0, time.UTC),
		slog.LevelInfo,
		"scan complete",
		0,
	)
	r.AddAttrs(slog.Int("files", 42), slog.String("root", "/t"))

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	want := "2024-01-16T12:00:05Z\tINFO\t20240116T120005Z-Find\tscan complete\tfiles=42\troot=/t\n"
	if got != want {
		t.Errorf("Handle() output = %q, want %q", got, want)
	}
}

func TestLogHandler_WithAttrs(t *testing.T) {
	var buf strings.Builder
	var h slog.Handler = &logHandler{w: &buf, opID: "op"}
	h = h.WithAttrs([]slog.Attr{slog.String("run", "id-1")})

	r := slog.NewRecord(time.Date(2024, 1, 16, 12, 0, 5, 0, time.UTC), slog.LevelWarn, "drift", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if !strings.Contains(buf.String(), "\trun=id-1") {
		t.Errorf("output missing pre-set attr: %q", buf.String())
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, f, err := newLogger(dir, "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("hello", "k", "v")

	if f.Name() != dir+"/dupenukem.log" {
		t.Errorf("log file = %q, want %q", f.Name(), dir+"/dupenukem.log")
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "\ttest-op\thello\tk=v\n") {
		t.Errorf("log file content = %q, want the logged line", data)
	}
}
