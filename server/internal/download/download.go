package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/drnu/drnu-downloader/server/internal/filename"
	"github.com/drnu/drnu-downloader/server/internal/metrics"
	"github.com/drnu/drnu-downloader/server/internal/resource"
	"github.com/drnu/drnu-downloader/server/internal/rtmp"
)

const (
	DefaultBufferSize = 32 * 1024
	DefaultExtension  = ".flv"
)

type PageScraper interface {
	ResourceURI(ctx context.Context, episodeURI string) (string, error)
}

type ResourceFetcher interface {
	Fetch(ctx context.Context, uri string) (*resource.Resource, error)
}

// Stream is the forward-only media source a download copies from.
// *rtmp.Stream implements it.
type Stream interface {
	io.ReadCloser
	Open() error
	OnDuration(func(rtmp.DurationEvent))
	OnElapsed(func(rtmp.ElapsedEvent))
}

type StreamFactory func(uri string) Stream

// EngineStreams returns a factory of rtmp streams backed by engine.
func EngineStreams(engine rtmp.Engine) StreamFactory {
	return func(uri string) Stream { return rtmp.NewStream(engine, uri) }
}

// Sink receives stream telemetry. Its methods run on the copy loop and
// must return quickly.
type Sink interface {
	OnDuration(rtmp.DurationEvent)
	OnElapsed(rtmp.ElapsedEvent)
}

type Options struct {
	Scraper   PageScraper
	Resources ResourceFetcher
	Streams   StreamFactory
	Sanitize  func(string) string

	OutputDir  string
	Extension  string
	BufferSize int
}

type Client struct {
	scraper   PageScraper
	resources ResourceFetcher
	streams   StreamFactory
	sanitize  func(string) string

	dir     string
	ext     string
	bufSize int
}

func NewClient(o Options) *Client {
	c := &Client{
		scraper:   o.Scraper,
		resources: o.Resources,
		streams:   o.Streams,
		sanitize:  o.Sanitize,
		dir:       o.OutputDir,
		ext:       o.Extension,
		bufSize:   o.BufferSize,
	}
	if c.sanitize == nil {
		c.sanitize = filename.Sanitize
	}
	if c.dir == "" {
		c.dir = "."
	}
	if c.ext == "" {
		c.ext = DefaultExtension
	}
	if c.bufSize <= 0 {
		c.bufSize = DefaultBufferSize
	}
	return c
}

type Result struct {
	Title string
	Path  string
	Link  resource.Link
	Bytes int64
	Took  time.Duration
}

// Plan is what Download resolves before touching the stream.
type Plan struct {
	ResourceURI string
	Resource    *resource.Resource
	Link        resource.Link
	Title       string
	Path        string
}

// Resolve runs every step of a download up to opening the stream.
func (c *Client) Resolve(ctx context.Context, episodeURI string) (*Plan, error) {
	resourceURI, err := c.scraper.ResourceURI(ctx, episodeURI)
	if err != nil {
		return nil, err
	}

	res, err := c.resources.Fetch(ctx, resourceURI)
	if err != nil {
		return nil, err
	}

	link, err := resource.SelectBestLink(res)
	if err != nil {
		return nil, err
	}

	title := res.DisplayTitle()

	return &Plan{
		ResourceURI: resourceURI,
		Resource:    res,
		Link:        link,
		Title:       title,
		Path:        filepath.Join(c.dir, c.sanitize(title+c.ext)),
	}, nil
}

// Download fetches the episode page at episodeURI, picks the best stream
// and copies it to <output dir>/<sanitized title><ext>.
//
// A partially written file is left in place when the copy fails; removing
// it is up to the caller. The stream is opened before the file is
// created, so failing to connect leaves no file behind.
func (c *Client) Download(ctx context.Context, episodeURI string, sink Sink) (*Result, error) {
	plan, err := c.Resolve(ctx, episodeURI)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, plan, sink)
}

// Fetch streams a resolved plan to disk.
func (c *Client) Fetch(ctx context.Context, plan *Plan, sink Sink) (res *Result, err error) {
	start := time.Now()

	metrics.InProgress.Inc()
	defer func() {
		metrics.InProgress.Dec()
		metrics.Downloads.WithLabelValues(metrics.Result(err)).Inc()
	}()

	slog.Info("downloading",
		slog.String("title", plan.Title),
		slog.String("link", plan.Link.URI),
		slog.Int("bitrate", plan.Link.Bitrate),
	)

	stream := c.streams(plan.Link.URI)
	defer stream.Close()

	if sink != nil {
		stream.OnDuration(sink.OnDuration)
		stream.OnElapsed(sink.OnElapsed)
	}

	if err := stream.Open(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(plan.Path), 0o755); err != nil {
		return nil, err
	}

	fd, err := os.Create(plan.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := fd.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	n, err := c.copy(ctx, fd, stream)
	if err != nil {
		return nil, fmt.Errorf("downloading %s to %s after %d bytes: %w", plan.Link.URI, plan.Path, n, err)
	}

	slog.Info("download completed",
		slog.String("path", plan.Path),
		slog.Int64("bytes", n),
		slog.Duration("took", time.Since(start)),
	)

	return &Result{
		Title: plan.Title,
		Path:  plan.Path,
		Link:  plan.Link,
		Bytes: n,
		Took:  time.Since(start),
	}, nil
}

// copy moves src into dst through a fixed size buffer. ctx is checked
// between reads; a read already in progress is never interrupted.
func (c *Client) copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, c.bufSize)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			metrics.BytesDownloaded.Add(float64(nw))
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}

		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
