package rtmpdump

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/drnu/drnu-downloader/server/internal/rtmp"
)

type lineKind int

const (
	lineLog lineKind = iota
	lineProgress
	lineConnected
	lineStarted
)

// line is one parsed stderr record of rtmpdump.
type line struct {
	kind     lineKind
	level    rtmp.LogLevel
	msg      string
	duration float64 // seconds, set by metadata lines
	elapsed  float64 // seconds, set by progress lines
}

var (
	// "INFO:   duration              2700.00"
	durationRe = regexp.MustCompile(`^\s*duration\s+([0-9]+(?:\.[0-9]+)?)\s*$`)
	// "1234.567 kB / 12.34 sec (5.6%)"
	progressRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?) kB / ([0-9]+(?:\.[0-9]+)?) sec`)

	prefixes = []struct {
		tag   string
		level rtmp.LogLevel
	}{
		{"CRIT:", rtmp.LogCritical},
		{"ERROR:", rtmp.LogError},
		{"WARNING:", rtmp.LogWarning},
		{"INFO:", rtmp.LogInfo},
		{"DEBUG2:", rtmp.LogDebug2},
		{"DEBUG:", rtmp.LogDebug},
	}
)

func parseLine(s string) line {
	s = strings.TrimRight(s, " \t")

	if m := progressRe.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		secs, _ := strconv.ParseFloat(m[2], 64)
		return line{kind: lineProgress, level: rtmp.LogDebug2, msg: s, elapsed: secs}
	}

	l := line{kind: lineLog, level: rtmp.LogInfo, msg: s}
	for _, p := range prefixes {
		if strings.HasPrefix(s, p.tag) {
			l.level = p.level
			l.msg = strings.TrimPrefix(s, p.tag)
			break
		}
	}

	body := strings.TrimSpace(l.msg)
	switch {
	case strings.HasPrefix(body, "Starting download at"),
		strings.HasPrefix(body, "Starting Live Stream"):
		l.kind = lineStarted
	case strings.HasPrefix(body, "Connected"):
		l.kind = lineConnected
	}

	if m := durationRe.FindStringSubmatch(l.msg); m != nil {
		l.duration, _ = strconv.ParseFloat(m[1], 64)
	}

	l.msg = body
	return l
}

// splitLines is a bufio.SplitFunc splitting on both '\r' and '\n';
// rtmpdump rewrites its progress line in place with carriage returns.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
