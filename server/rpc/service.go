package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/download"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/kv"
	"github.com/drnu/drnu-downloader/server/internal/queue"
	"github.com/drnu/drnu-downloader/server/sys"
)

const resolveTimeout = time.Minute

type Service struct {
	db            *kv.Store
	mq            *queue.MessageQueue
	client        *download.Client
	newDownloader func(url string) downloaders.Downloader
	downloadPath  string
}

type Running []internal.ProcessSnapshot
type Pending []string

type NoArgs struct{}

// Preview is what a download of an episode page would fetch.
type Preview struct {
	ResourceURI string `json:"resource_uri"`
	Title       string `json:"title"`
	StreamURI   string `json:"stream_uri"`
	Bitrate     int    `json:"bitrate"`
	Path        string `json:"path"`
}

// Exec queues the download of an episode page.
// The result is the id of the new download. The output path is
// resolved inside the download directory.
func (s *Service) Exec(args internal.DownloadRequest, result *string) error {
	if args.URL == "" {
		return errors.New("missing url")
	}

	var dir string
	if args.Path != "" {
		var err error
		if dir, err = sys.WithinRoot(s.downloadPath, args.Path); err != nil {
			return err
		}
	}

	d := s.newDownloader(args.URL)
	if dir != "" {
		d.SetOutput(internal.DownloadOutput{Path: dir})
	}

	s.db.Set(d)
	s.mq.Publish(d)

	*result = d.GetId()
	return nil
}

// Resolve scrapes and selects the stream of an episode page without
// downloading it.
func (s *Service) Resolve(args internal.DownloadRequest, preview *Preview) error {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	plan, err := s.client.Resolve(ctx, args.URL)
	if err != nil {
		return err
	}

	*preview = Preview{
		ResourceURI: plan.ResourceURI,
		Title:       plan.Title,
		StreamURI:   plan.Link.URI,
		Bitrate:     plan.Link.Bitrate,
		Path:        plan.Path,
	}
	return nil
}

// Progess retrieves the progress of a download given its id
func (s *Service) Progess(args internal.DownloadRequest, progress *internal.DownloadProgress) error {
	dl, err := s.db.Get(args.Id)
	if err != nil {
		return err
	}

	*progress = dl.Status().Progress
	return nil
}

// Pending retrieves the ids of every known download
func (s *Service) Pending(args NoArgs, pending *Pending) error {
	*pending = s.db.Keys()
	return nil
}

func (s *Service) Running(args NoArgs, running *Running) error {
	*running = s.db.All()
	return nil
}

// Kill stops a download given its id and removes it from the store
func (s *Service) Kill(args string, killed *string) error {
	slog.Info("killing download", slog.String("id", args))

	dl, err := s.db.Get(args)
	if err != nil {
		return err
	}

	if err := dl.Stop(); err != nil {
		slog.Info("failed killing download", slog.String("id", args), slog.Any("err", err))
		return err
	}

	s.db.Delete(args)
	*killed = args
	return nil
}

// KillAll stops every download and empties the store
func (s *Service) KillAll(args NoArgs, killed *string) error {
	slog.Info("killing all downloads")

	for _, key := range s.db.Keys() {
		dl, err := s.db.Get(key)
		if err != nil {
			continue
		}

		if err := dl.Stop(); err != nil {
			slog.Info("failed killing download", slog.String("id", key), slog.Any("err", err))
			continue
		}
		s.db.Delete(key)
	}

	return nil
}

// Removes completed downloads
func (s *Service) ClearCompleted(args NoArgs, cleared *int) error {
	for _, key := range s.db.Keys() {
		dl, err := s.db.Get(key)
		if err != nil || !dl.IsCompleted() {
			continue
		}
		s.db.Delete(key)
		*cleared++
	}
	return nil
}
