package logging

import (
	"compress/gzip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestRotableLoggerRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	l, err := NewRotableLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Write([]byte("before rotation\n"))
	if err := l.Rotate(); err != nil {
		t.Fatal(err)
	}
	l.Write([]byte("after\n"))

	current, _ := os.ReadFile(path)
	if string(current) != "after\n" {
		t.Fatalf("current log %q", current)
	}

	archives, _ := filepath.Glob(filepath.Join(dir, "app.log.*.gz"))
	if len(archives) != 1 {
		t.Fatalf("found %d archives", len(archives))
	}

	fd, err := os.Open(archives[0])
	if err != nil {
		t.Fatal(err)
	}
	defer fd.Close()

	zr, err := gzip.NewReader(fd)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(zr)
	if string(data) != "before rotation\n" {
		t.Fatalf("archived %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
