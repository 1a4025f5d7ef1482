package archiver

import (
	"context"
	"log/slog"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/drnu/drnu-downloader/server/archive"
	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/events"
)

type Message = archive.Entity

type Repository interface {
	Archive(ctx context.Context, e *archive.Entity) error
}

// Archiver stores every completed download published on the bus.
type Archiver struct {
	repo    Repository
	bus     evbus.Bus
	// the subscribed callback, kept to unsubscribe the same value
	handler func(internal.ProcessSnapshot)
	ch      chan *Message
	done    chan struct{}
}

func New(repo Repository) *Archiver {
	return &Archiver{
		repo: repo,
		ch:   make(chan *Message, 16),
		done: make(chan struct{}),
	}
}

// Register subscribes the archiver to completed downloads and starts its
// writer goroutine. Call Stop to drain it.
func (a *Archiver) Register(bus evbus.Bus) error {
	a.bus = bus
	a.handler = a.onCompleted
	go a.run()
	return bus.Subscribe(events.TopicCompleted, a.handler)
}

func (a *Archiver) onCompleted(s internal.ProcessSnapshot) {
	a.Publish(FromSnapshot(s))
}

func (a *Archiver) Publish(m *Message) {
	a.ch <- m
}

func (a *Archiver) run() {
	defer close(a.done)

	for m := range a.ch {
		slog.Info(
			"archiving completed download",
			slog.String("title", m.Title),
			slog.String("source", m.URL),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.repo.Archive(ctx, m); err != nil {
			slog.Error("failed to archive download", slog.String("id", m.Id), slog.Any("err", err))
		}
		cancel()
	}
}

// Stop flushes pending messages. Publish must not be called afterwards.
func (a *Archiver) Stop() {
	if a.bus != nil {
		a.bus.Unsubscribe(events.TopicCompleted, a.handler)
	}
	close(a.ch)
	<-a.done
}

func FromSnapshot(s internal.ProcessSnapshot) *Message {
	return &Message{
		Id:         s.Id,
		URL:        s.URL,
		Title:      s.Title,
		StreamURI:  s.StreamURI,
		Bitrate:    s.Bitrate,
		Path:       s.Output.SavedFilePath,
		Bytes:      s.Progress.Bytes,
		DurationMs: s.Progress.DurationMs,
		CreatedAt:  time.Now(),
	}
}
