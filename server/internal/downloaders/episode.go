package downloaders

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/download"
	"github.com/drnu/drnu-downloader/server/internal/events"
	"github.com/drnu/drnu-downloader/server/internal/rtmp"
	"github.com/drnu/drnu-downloader/server/sys"
)

const EpisodeDownloaderName = "episode"

// EpisodeDownloader is a queued download of one episode page.
type EpisodeDownloader struct {
	client  *download.Client
	bus     evbus.Bus
	minFree uint64

	title     string
	streamURI string
	bitrate   int
	errMsg    string
	progress  internal.DownloadProgress
	output    internal.DownloadOutput

	cancel   context.CancelFunc
	stopped  bool
	throttle rate.Sometimes

	// embedded
	DownloaderBase
}

type EpisodeOption func(*EpisodeDownloader)

// WithMinFreeSpace makes Start fail when the output volume has less than
// n bytes available.
func WithMinFreeSpace(n uint64) EpisodeOption {
	return func(e *EpisodeDownloader) { e.minFree = n }
}

func WithBus(bus evbus.Bus) EpisodeOption {
	return func(e *EpisodeDownloader) { e.bus = bus }
}

func NewEpisodeDownloader(url string, client *download.Client, opts ...EpisodeOption) *EpisodeDownloader {
	e := &EpisodeDownloader{
		client:   client,
		bus:      events.Bus(),
		throttle: rate.Sometimes{First: 1, Interval: 500 * time.Millisecond},
	}
	// in base
	e.Id = uuid.NewString()
	e.URL = url
	e.CreatedAt = time.Now()

	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *EpisodeDownloader) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.mutex.Lock()
	if e.stopped {
		e.progress.Status = internal.StatusStopped
		e.Completed = true
		e.mutex.Unlock()
		return context.Canceled
	}
	e.cancel = cancel
	e.Pending = false
	e.progress.Status = internal.StatusDownloading
	e.mutex.Unlock()

	e.publish(events.TopicProgress)

	err := e.run(ctx)

	e.mutex.Lock()
	switch {
	case err == nil:
		e.progress.Status = internal.StatusCompleted
	case errors.Is(err, context.Canceled):
		e.progress.Status = internal.StatusStopped
	default:
		e.progress.Status = internal.StatusErrored
		e.errMsg = err.Error()
	}
	e.Completed = true
	e.mutex.Unlock()

	e.publish(events.TopicProgress)

	if err != nil {
		slog.Error("download failed",
			slog.String("id", shortId(e.Id)),
			slog.String("url", e.URL),
			slog.Any("err", err),
		)
		return err
	}

	e.publish(events.TopicCompleted)
	return nil
}

func (e *EpisodeDownloader) run(ctx context.Context) error {
	plan, err := e.client.Resolve(ctx, e.URL)
	if err != nil {
		return err
	}

	e.mutex.Lock()
	e.title = plan.Title
	e.streamURI = plan.Link.URI
	e.bitrate = plan.Link.Bitrate
	if e.output.Path != "" {
		plan.Path = filepath.Join(e.output.Path, filepath.Base(plan.Path))
	}
	e.mutex.Unlock()

	if err := sys.EnsureFreeSpace(filepath.Dir(plan.Path), e.minFree); err != nil {
		return err
	}

	res, err := e.client.Fetch(ctx, plan, e)
	if err != nil {
		return err
	}

	e.UpdateSavedFilePath(res.Path)
	return nil
}

// Stop cancels the download. The stream is closed by the copy loop
// before its next read.
func (e *EpisodeDownloader) Stop() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

func (e *EpisodeDownloader) OnDuration(ev rtmp.DurationEvent) {
	e.mutex.Lock()
	e.progress.DurationMs = ev.Total.Milliseconds()
	e.mutex.Unlock()
}

func (e *EpisodeDownloader) OnElapsed(ev rtmp.ElapsedEvent) {
	e.mutex.Lock()
	e.progress.ElapsedMs = ev.Elapsed.Milliseconds()
	e.progress.Bytes = ev.Position
	if e.progress.DurationMs > 0 {
		e.progress.Percentage = min(100, float64(e.progress.ElapsedMs)/float64(e.progress.DurationMs)*100)
	}
	e.mutex.Unlock()

	e.throttle.Do(func() { e.publish(events.TopicProgress) })
}

func (e *EpisodeDownloader) publish(topic string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(topic, *e.Status())
}

func (e *EpisodeDownloader) Status() *internal.ProcessSnapshot {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return &internal.ProcessSnapshot{
		Id:             e.Id,
		URL:            e.URL,
		Title:          e.title,
		StreamURI:      e.streamURI,
		Bitrate:        e.bitrate,
		Progress:       e.progress,
		Output:         e.output,
		Error:          e.errMsg,
		CreatedAt:      e.CreatedAt,
		DownloaderName: EpisodeDownloaderName,
	}
}

func (e *EpisodeDownloader) SetOutput(o internal.DownloadOutput) {
	e.mutex.Lock()
	e.output = o
	e.mutex.Unlock()
}

func (e *EpisodeDownloader) SetProgress(p internal.DownloadProgress) {
	e.mutex.Lock()
	e.progress = p
	e.mutex.Unlock()
}

func (e *EpisodeDownloader) UpdateSavedFilePath(p string) {
	e.mutex.Lock()
	e.output.SavedFilePath = p
	e.mutex.Unlock()
}

func (e *EpisodeDownloader) RestoreFromSnapshot(snap *internal.ProcessSnapshot) error {
	if snap == nil {
		return errors.New("cannot restore nil snapshot")
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.Id = snap.Id
	e.URL = snap.URL
	e.CreatedAt = snap.CreatedAt
	e.title = snap.Title
	e.streamURI = snap.StreamURI
	e.bitrate = snap.Bitrate
	e.progress = snap.Progress
	e.output = snap.Output
	e.errMsg = snap.Error
	e.Completed = snap.Progress.Status >= internal.StatusCompleted

	return nil
}
