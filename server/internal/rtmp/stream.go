package rtmp

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Opening a stream installs the process wide diagnostic callback, so only
// one Stream may be opening at a time. A stream that is streaming keeps the
// callback installed: open a second Stream only after the first is closed.
var opening sync.Mutex

// the stream whose diagnostic callback is installed on the engine
var (
	installedMu sync.Mutex
	installed   *Stream
)

// Stream exposes one engine session as a forward-only io.Reader.
//
// The session is opened lazily by the first Read. Once the engine reports
// end of data every further Read returns io.EOF. An engine failure is
// returned by the failing Read and by every Read after it. Once an opened
// stream has been closed every further Read returns ErrClosed. A Stream
// serves one session and is not safe for concurrent use.
type Stream struct {
	engine Engine
	url    string
	logger *slog.Logger

	handle      Handle
	sockets     bool
	isOpen      bool
	canRead     bool
	closed      bool
	position    int64
	durReported bool
	// sticky read failure
	err error

	staging []byte

	// first Critical or Error diagnostic seen since Open
	failure atomic.Pointer[EngineError]

	onDuration []func(DurationEvent)
	onElapsed  []func(ElapsedEvent)
}

func NewStream(engine Engine, url string) *Stream {
	return &Stream{
		engine: engine,
		url:    url,
		logger: slog.Default().With(slog.String("url", url)),
	}
}

// OnDuration registers fn to receive the total duration. Observers run
// synchronously inside Read, in registration order.
func (s *Stream) OnDuration(fn func(DurationEvent)) { s.onDuration = append(s.onDuration, fn) }

// OnElapsed registers fn to receive the playback position after each read.
func (s *Stream) OnElapsed(fn func(ElapsedEvent)) { s.onElapsed = append(s.onElapsed, fn) }

func (s *Stream) URL() string     { return s.url }
func (s *Stream) IsOpen() bool    { return s.isOpen }
func (s *Stream) CanRead() bool   { return s.isOpen && s.canRead }
func (s *Stream) Position() int64 { return s.position }

// Open establishes the session. On failure everything acquired so far is
// released and the stream is closed for good.
func (s *Stream) Open() (err error) {
	if s.closed {
		return ErrClosed
	}
	if s.isOpen {
		return nil
	}

	opening.Lock()
	defer opening.Unlock()

	defer func() {
		if err != nil {
			s.release()
		}
	}()

	s.engine.LogSetLevel(LogAll)
	s.installCallback()

	s.handle = s.engine.Alloc()
	if s.handle == 0 {
		return ErrAllocation
	}

	s.engine.Init(s.handle)
	if err := s.checkFailure(); err != nil {
		return err
	}

	if !s.engine.SetupURL(s.handle, s.url) {
		return s.stepFailed(ErrConnection)
	}
	if err := s.checkFailure(); err != nil {
		return err
	}

	if !s.engine.InitSockets() {
		return s.stepFailed(ErrConnection)
	}
	s.sockets = true

	if !s.engine.Connect(s.handle) {
		return s.stepFailed(ErrConnection)
	}
	if err := s.checkFailure(); err != nil {
		return err
	}

	if !s.engine.ConnectStream(s.handle) {
		return s.stepFailed(ErrSession)
	}
	if err := s.checkFailure(); err != nil {
		return err
	}

	s.isOpen = true
	s.canRead = true

	s.logger.Info("rtmp session established")
	return nil
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	return s.ReadInto(p, 0, len(p))
}

// ReadInto reads up to count bytes into p[offset:offset+count].
//
// When the engine reports an error during a read that still delivered
// bytes, those bytes are copied into p and returned together with the
// error.
func (s *Stream) ReadInto(p []byte, offset, count int) (int, error) {
	if offset < 0 || count < 0 || offset > len(p) || count > len(p)-offset {
		return 0, fmt.Errorf("rtmp: read range [%d:%d] outside buffer of %d bytes", offset, offset+count, len(p))
	}
	if s.closed {
		return 0, ErrClosed
	}
	if s.err != nil {
		return 0, s.err
	}
	if !s.isOpen {
		if err := s.Open(); err != nil {
			return 0, err
		}
	}
	if !s.canRead {
		return 0, io.EOF
	}
	if count == 0 {
		return 0, nil
	}

	var n int
	if offset == 0 && count == len(p) {
		n = s.engine.Read(s.handle, p)
	} else {
		buf := s.stage(count)
		n = s.engine.Read(s.handle, buf)
		if n > 0 {
			copy(p[offset:], buf[:n])
		}
	}

	if n < 0 {
		return 0, s.fail(s.stepFailed(&EngineError{Level: LogError, Message: "read failed"}))
	}
	if err := s.checkFailure(); err != nil {
		s.position += int64(n)
		return n, s.fail(err)
	}

	if n == 0 {
		s.canRead = false
	} else {
		s.position += int64(n)
		if !s.durReported {
			s.durReported = true
			s.emitDuration(DurationEvent{Total: seconds(s.engine.Duration(s.handle))})
		}
	}

	if ts := s.engine.Timestamp(s.handle); ts != 0 {
		s.emitElapsed(ElapsedEvent{
			Elapsed:  time.Duration(ts) * time.Millisecond,
			Position: s.position,
		})
	}

	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Close releases the session and the socket subsystem. It may be called
// any number of times. Closing a stream that was never opened does
// nothing: a later Read still opens it.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	if !s.isOpen && s.handle == 0 && !s.sockets {
		return nil
	}
	s.release()
	return nil
}

// release frees everything the stream holds and makes it terminal.
func (s *Stream) release() {
	s.closed = true
	s.clearCallback()

	if s.handle != 0 {
		s.engine.Close(s.handle)
		s.engine.Free(s.handle)
		s.handle = 0
	}
	if s.sockets {
		s.engine.CleanupSockets()
		s.sockets = false
	}

	if s.isOpen {
		s.logger.Info("rtmp session closed", slog.Int64("bytes", s.position))
	}
	s.isOpen = false
	s.canRead = false
}

func (s *Stream) fail(err error) error {
	s.err = err
	s.canRead = false
	return err
}

func (s *Stream) installCallback() {
	installedMu.Lock()
	defer installedMu.Unlock()

	s.engine.SetLogCallback(s.diagnostic)
	installed = s
}

// clearCallback detaches the engine callback if it still belongs to s.
func (s *Stream) clearCallback() {
	installedMu.Lock()
	defer installedMu.Unlock()

	if installed == s {
		s.engine.SetLogCallback(nil)
		installed = nil
	}
}

func (s *Stream) Write(p []byte) (int, error) { return 0, &UnsupportedError{Op: "write"} }

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	return 0, &UnsupportedError{Op: "seek"}
}

func (s *Stream) Len() (int64, error) { return 0, &UnsupportedError{Op: "length"} }

func (s *Stream) SetPosition(pos int64) error { return &UnsupportedError{Op: "set position"} }

func (s *Stream) diagnostic(level LogLevel, msg string) {
	if level <= LogError {
		s.failure.CompareAndSwap(nil, &EngineError{Level: level, Message: msg})
		return
	}
	s.logger.Debug("rtmp", slog.String("level", level.String()), slog.String("msg", msg))
}

func (s *Stream) checkFailure() error {
	if f := s.failure.Load(); f != nil {
		return f
	}
	return nil
}

// stepFailed returns err, joined with the engine's own explanation when
// one was reported.
func (s *Stream) stepFailed(err error) error {
	if f := s.failure.Load(); f != nil {
		return fmt.Errorf("%w: %w", err, f)
	}
	return err
}

func (s *Stream) stage(n int) []byte {
	if cap(s.staging) < n {
		s.staging = make([]byte, n)
	}
	return s.staging[:n]
}

func (s *Stream) emitDuration(e DurationEvent) {
	for _, fn := range s.onDuration {
		fn(e)
	}
}

func (s *Stream) emitElapsed(e ElapsedEvent) {
	for _, fn := range s.onElapsed {
		fn(e)
	}
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
