// Package rtmpdump drives the rtmpdump executable as a protocol engine.
// Each connected session is one rtmpdump process writing the media to
// its stdout; diagnostics and telemetry are parsed from its stderr.
package rtmpdump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drnu/drnu-downloader/server/internal/rtmp"
)

const (
	DefaultPath           = "rtmpdump"
	DefaultConnectTimeout = 30 * time.Second
	DefaultMaxSessions    = 8

	// exit status rtmpdump uses for a download that ended early
	exitIncomplete = 2
)

var schemes = map[string]struct{}{
	"rtmp": {}, "rtmpt": {}, "rtmpe": {}, "rtmpte": {}, "rtmps": {}, "rtmpts": {},
}

type Config struct {
	// executable name or path
	Path           string
	ConnectTimeout time.Duration
	// network timeout handed to rtmpdump, in seconds; 0 keeps its default
	Timeout     int
	Live        bool
	MaxSessions int
}

// Engine implements rtmp.Engine. It is safe for concurrent use; each
// session handle must be used by one goroutine at a time.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	sessions map[rtmp.Handle]*session
	next     rtmp.Handle
	resolved string
}

func New(cfg Config) *Engine {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	return &Engine{
		cfg:      cfg,
		sessions: make(map[rtmp.Handle]*session),
	}
}

type session struct {
	url string

	cmd    *exec.Cmd
	stdout io.ReadCloser

	connected chan struct{}
	started   chan struct{}
	// closed once stderr has been drained, i.e. the process exited
	done chan struct{}

	connectOnce sync.Once
	startOnce   sync.Once
	reapOnce    sync.Once
	exitErr     error

	duration  atomic.Uint64 // math.Float64bits of seconds
	timestamp atomic.Uint32 // milliseconds
}

func (e *Engine) session(h rtmp.Handle) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[h]
}

func (e *Engine) Alloc() rtmp.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sessions) >= e.cfg.MaxSessions {
		return 0
	}

	e.next++
	h := e.next
	e.sessions[h] = &session{}
	return h
}

func (e *Engine) Free(h rtmp.Handle) {
	e.mu.Lock()
	delete(e.sessions, h)
	e.mu.Unlock()
}

func (e *Engine) Init(h rtmp.Handle) {
	e.mu.Lock()
	if _, ok := e.sessions[h]; ok {
		e.sessions[h] = &session{}
	}
	e.mu.Unlock()
}

func (e *Engine) SetupURL(h rtmp.Handle, rawURL string) bool {
	s := e.session(h)
	if s == nil {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		hub.dispatch(rtmp.LogError, fmt.Sprintf("invalid url %q: %s", rawURL, err))
		return false
	}
	if _, ok := schemes[strings.ToLower(u.Scheme)]; !ok || u.Host == "" {
		hub.dispatch(rtmp.LogError, fmt.Sprintf("unsupported url %q", rawURL))
		return false
	}

	s.url = rawURL
	return true
}

func (e *Engine) args(s *session) []string {
	args := []string{"-r", s.url, "-o", "-"}
	if e.cfg.Live {
		args = append(args, "--live")
	}
	if e.cfg.Timeout > 0 {
		args = append(args, "--timeout", strconv.Itoa(e.cfg.Timeout))
	}
	switch lvl := hub.Level(); {
	case lvl >= rtmp.LogDebug2:
		args = append(args, "--debug")
	case lvl >= rtmp.LogDebug:
		args = append(args, "--verbose")
	}
	return args
}

// Connect spawns rtmpdump and waits until it reports a connection.
func (e *Engine) Connect(h rtmp.Handle) bool {
	s := e.session(h)
	if s == nil || s.url == "" || s.cmd != nil {
		return false
	}

	e.mu.Lock()
	path := e.resolved
	e.mu.Unlock()
	if path == "" {
		path = e.cfg.Path
	}

	cmd := exec.Command(path, e.args(s)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		hub.dispatch(rtmp.LogError, err.Error())
		return false
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		hub.dispatch(rtmp.LogError, err.Error())
		return false
	}

	s.connected = make(chan struct{})
	s.started = make(chan struct{})
	s.done = make(chan struct{})

	if err := cmd.Start(); err != nil {
		hub.dispatch(rtmp.LogError, fmt.Sprintf("failed to start rtmpdump: %s", err))
		return false
	}

	s.cmd = cmd
	s.stdout = stdout

	slog.Debug("rtmpdump started", slog.Int("pid", cmd.Process.Pid), slog.String("url", s.url))

	go s.consume(stderr)

	if !s.await(s.connected, e.cfg.ConnectTimeout) {
		s.kill()
		return false
	}
	return true
}

// ConnectStream waits until rtmpdump starts delivering media.
func (e *Engine) ConnectStream(h rtmp.Handle) bool {
	s := e.session(h)
	if s == nil || s.cmd == nil {
		return false
	}
	if !s.await(s.started, e.cfg.ConnectTimeout) {
		s.kill()
		return false
	}
	return true
}

func (e *Engine) Read(h rtmp.Handle, p []byte) int {
	s := e.session(h)
	if s == nil || s.stdout == nil {
		return -1
	}
	if len(p) == 0 {
		return 0
	}

	for {
		n, err := s.stdout.Read(p)
		if n > 0 {
			return n
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return s.finish()
		}
		hub.dispatch(rtmp.LogError, fmt.Sprintf("reading stream: %s", err))
		return -1
	}
}

// finish reaps the process at end of data. A failed exit is reported as a
// read failure; an incomplete one only as a warning.
func (s *session) finish() int {
	err := s.reap()
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitIncomplete {
		hub.dispatch(rtmp.LogWarning, "download may be incomplete")
		return 0
	}

	hub.dispatch(rtmp.LogError, fmt.Sprintf("rtmpdump: %s", err))
	return -1
}

func (e *Engine) Close(h rtmp.Handle) {
	s := e.session(h)
	if s == nil || s.cmd == nil {
		return
	}
	s.kill()
}

func (e *Engine) Duration(h rtmp.Handle) float64 {
	s := e.session(h)
	if s == nil {
		return 0
	}
	return math.Float64frombits(s.duration.Load())
}

func (e *Engine) Timestamp(h rtmp.Handle) uint32 {
	s := e.session(h)
	if s == nil {
		return 0
	}
	return s.timestamp.Load()
}

func (e *Engine) LogSetLevel(level rtmp.LogLevel) { hub.setLevel(level) }

func (e *Engine) SetLogCallback(cb rtmp.LogCallback) { hub.setCallback(cb) }

func (e *Engine) InitSockets() bool {
	path, ok := hub.acquire(e.cfg.Path)
	if !ok {
		hub.dispatch(rtmp.LogError, fmt.Sprintf("%s not found in PATH", e.cfg.Path))
		return false
	}

	e.mu.Lock()
	e.resolved = path
	e.mu.Unlock()
	return true
}

func (e *Engine) CleanupSockets() { hub.release() }

func (s *session) consume(stderr io.Reader) {
	defer close(s.done)

	sc := bufio.NewScanner(stderr)
	sc.Split(splitLines)

	for sc.Scan() {
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		l := parseLine(raw)
		switch l.kind {
		case lineProgress:
			s.timestamp.Store(uint32(l.elapsed * 1000))
			s.connectOnce.Do(func() { close(s.connected) })
			s.startOnce.Do(func() { close(s.started) })
			continue
		case lineConnected:
			s.connectOnce.Do(func() { close(s.connected) })
		case lineStarted:
			s.connectOnce.Do(func() { close(s.connected) })
			s.startOnce.Do(func() { close(s.started) })
		}

		if l.duration > 0 {
			s.duration.Store(math.Float64bits(l.duration))
		}

		hub.dispatch(l.level, l.msg)
	}
}

// await blocks until ch is closed, the process exits or timeout elapses.
func (s *session) await(ch <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-ch:
		return true
	case <-s.done:
		select {
		case <-ch:
			return true
		default:
			return false
		}
	case <-t.C:
		hub.dispatch(rtmp.LogError, fmt.Sprintf("timed out after %s", timeout))
		return false
	}
}

func (s *session) kill() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	select {
	case <-s.done:
	default:
		s.cmd.Process.Kill()
	}
	s.reap()
}

// reap waits for stderr to drain and the process to exit, exactly once.
func (s *session) reap() error {
	s.reapOnce.Do(func() {
		<-s.done
		s.exitErr = s.cmd.Wait()
	})
	return s.exitErr
}
