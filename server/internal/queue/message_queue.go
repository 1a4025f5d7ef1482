package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/metrics"
)

// MessageQueue runs downloads in publication order on a fixed number of
// workers. The server uses a single worker: only one stream may be
// opening or streaming per process.
type MessageQueue struct {
	concurrency   int
	downloadQueue chan downloaders.Downloader
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewMessageQueue(concurrency, capacity int) (*MessageQueue, error) {
	if concurrency <= 0 {
		return nil, errors.New("invalid queue size")
	}
	if capacity < concurrency {
		capacity = concurrency
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &MessageQueue{
		concurrency:   concurrency,
		downloadQueue: make(chan downloaders.Downloader, capacity),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Publish download job
func (m *MessageQueue) Publish(d downloaders.Downloader) {
	d.SetPending(true)

	select {
	case m.downloadQueue <- d:
		metrics.QueueLength.Inc()
		slog.Info("published download", slog.String("id", d.GetId()))
	case <-m.ctx.Done():
		slog.Warn("queue stopped, dropping download", slog.String("id", d.GetId()))
	}
}

func (m *MessageQueue) SetupConsumers() {
	for i := 0; i < m.concurrency; i++ {
		go m.downloadWorker(i)
	}
}

func (m *MessageQueue) downloadWorker(workerId int) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case p := <-m.downloadQueue:
			if p == nil {
				continue
			}
			metrics.QueueLength.Dec()

			if p.IsCompleted() {
				continue
			}

			slog.Info("download worker started",
				slog.Int("worker", workerId),
				slog.String("id", p.GetId()),
			)

			if err := p.Start(); err != nil {
				slog.Warn("download worker finished with error",
					slog.Int("worker", workerId),
					slog.String("id", p.GetId()),
				)
			}
		}
	}
}

// Stop makes the workers exit after their current download. Published
// but unstarted downloads are dropped.
func (m *MessageQueue) Stop() {
	m.cancel()
}
