package rtmpdump

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/drnu/drnu-downloader/server/internal/rtmp"
)

// fakeRtmpdump writes a shell script standing in for rtmpdump.
func fakeRtmpdump(t *testing.T, body string) string {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	path := filepath.Join(t.TempDir(), "rtmpdump")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const successScript = `
echo "RTMPDump v2.4" >&2
echo "Connecting ..." >&2
echo "INFO: Connected..." >&2
echo "INFO: Metadata:" >&2
echo "INFO:   duration              12.50" >&2
echo "Starting download at: 0.000 kB" >&2
printf 'FLV-PAYLOAD'
printf '0.011 kB / 3.25 sec (26.0%%)\r' >&2
echo "" >&2
echo "Download complete" >&2
`

func TestEngineStreamsProcessOutput(t *testing.T) {
	e := New(Config{Path: fakeRtmpdump(t, successScript), ConnectTimeout: 5 * time.Second})

	s := rtmp.NewStream(e, "rtmp://vod.example.test/cms/mp4:episode.mp4")
	defer s.Close()

	var durations []rtmp.DurationEvent
	s.OnDuration(func(d rtmp.DurationEvent) { durations = append(durations, d) })

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "FLV-PAYLOAD" {
		t.Fatalf("got %q", got)
	}

	if len(durations) != 1 || durations[0].Total != 12500*time.Millisecond {
		t.Fatalf("durations %+v", durations)
	}
	if ts := e.Timestamp(1); ts != 3250 {
		t.Fatalf("timestamp %d, want 3250", ts)
	}
}

func TestEngineConnectFailure(t *testing.T) {
	script := `
echo "Connecting ..." >&2
echo "ERROR: Problem accessing the DNS. (addr: vod.example.test)" >&2
exit 1
`
	e := New(Config{Path: fakeRtmpdump(t, script), ConnectTimeout: 5 * time.Second})

	s := rtmp.NewStream(e, "rtmp://vod.example.test/app")
	defer s.Close()

	err := s.Open()
	if !errors.Is(err, rtmp.ErrConnection) {
		t.Fatalf("got %v", err)
	}

	var ee *rtmp.EngineError
	if !errors.As(err, &ee) || ee.Level != rtmp.LogError {
		t.Fatalf("diagnostic not carried: %v", err)
	}
	if hub.refs() != 0 {
		t.Fatalf("socket references leaked: %d", hub.refs())
	}
}

func TestEngineFailedExitIsReadError(t *testing.T) {
	script := `
echo "INFO: Connected..." >&2
echo "Starting download at: 0.000 kB" >&2
printf 'partial'
exit 1
`
	e := New(Config{Path: fakeRtmpdump(t, script), ConnectTimeout: 5 * time.Second})

	s := rtmp.NewStream(e, "rtmp://vod.example.test/app")
	defer s.Close()

	got, err := io.ReadAll(s)
	if !errors.Is(err, rtmp.ErrIO) {
		t.Fatalf("got %v", err)
	}
	if string(got) != "partial" {
		t.Fatalf("got %q before the failure", got)
	}
}

func TestEngineRejectsNonRtmpURL(t *testing.T) {
	e := New(Config{Path: fakeRtmpdump(t, "exit 0\n")})

	s := rtmp.NewStream(e, "http://example.test/video.mp4")
	if err := s.Open(); !errors.Is(err, rtmp.ErrConnection) {
		t.Fatalf("got %v", err)
	}
}

func TestEngineMissingExecutable(t *testing.T) {
	e := New(Config{Path: filepath.Join(t.TempDir(), "missing-rtmpdump")})

	s := rtmp.NewStream(e, "rtmp://vod.example.test/app")
	if err := s.Open(); !errors.Is(err, rtmp.ErrConnection) {
		t.Fatalf("got %v", err)
	}
	if hub.refs() != 0 {
		t.Fatalf("socket references leaked: %d", hub.refs())
	}
}

func TestEngineAllocLimit(t *testing.T) {
	e := New(Config{MaxSessions: 1})

	h := e.Alloc()
	if h == 0 {
		t.Fatal("first alloc failed")
	}
	if e.Alloc() != 0 {
		t.Fatal("alloc beyond limit succeeded")
	}
	e.Free(h)
	if e.Alloc() == 0 {
		t.Fatal("alloc after free failed")
	}
}
