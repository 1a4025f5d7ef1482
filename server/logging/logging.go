package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/drnu/drnu-downloader/server/config"
)

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the default slog logger writing to stdout and, when
// enabled, to a log file rotated daily until ctx is done. The returned
// function flushes and closes the file.
func Setup(ctx context.Context, c config.LoggingConfig) (func(), error) {
	writers := []io.Writer{os.Stdout}
	cleanup := func() {}

	if c.EnableFileLogging {
		fl, err := NewRotableLogger(c.LogPath)
		if err != nil {
			return nil, err
		}

		go func() {
			t := time.NewTicker(24 * time.Hour)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if err := fl.Rotate(); err != nil {
						slog.Error("failed to rotate log", slog.Any("err", err))
					}
				}
			}
		}()

		writers = append(writers, fl)
		cleanup = func() { fl.Close() }
	}

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(c.Level),
	}))
	slog.SetDefault(logger)

	return cleanup, nil
}
