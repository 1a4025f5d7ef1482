package rtmp

import "time"

type DurationEvent struct {
	Total time.Duration
}

type ElapsedEvent struct {
	Elapsed time.Duration
	// bytes read from the stream so far
	Position int64
}
