package rtmp

import (
	"errors"
	"fmt"
)

var (
	ErrAllocation = errors.New("rtmp: unable to open stream")
	ErrConnection = errors.New("rtmp: failed to establish connection")
	ErrSession    = errors.New("rtmp: failed to establish session")
	ErrClosed     = errors.New("rtmp: stream is closed")

	// ErrIO matches every *EngineError.
	ErrIO = errors.New("rtmp: engine failure")
)

// EngineError is a failure reported by the engine through its diagnostic
// callback.
type EngineError struct {
	Level   LogLevel
	Message string
}

func (e *EngineError) Error() string { return fmt.Sprintf("rtmp: %s: %s", e.Level, e.Message) }

func (e *EngineError) Is(target error) bool { return target == ErrIO }

// UnsupportedError is returned by every operation a forward-only stream
// cannot perform. It matches errors.ErrUnsupported.
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("rtmp: %s is not supported on a forward-only stream", e.Op)
}

func (e *UnsupportedError) Is(target error) bool { return target == errors.ErrUnsupported }
