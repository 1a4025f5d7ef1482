package rest

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/drnu/drnu-downloader/server/archive"
	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/kv"
	"github.com/drnu/drnu-downloader/server/internal/queue"
	"github.com/drnu/drnu-downloader/server/internal/scraper"
	"github.com/drnu/drnu-downloader/server/sys"
)

var ErrInvalidURL = errors.New("url must be an absolute http(s) url")

type Service struct {
	archive       *archive.Repository
	mdb           *kv.Store
	mq            *queue.MessageQueue
	scraper       *scraper.Scraper
	newDownloader func(url string) downloaders.Downloader
	downloadPath  string
}

func NewService(args *ContainerArgs) *Service {
	return &Service{
		archive:       args.Archive,
		mdb:           args.MDB,
		mq:            args.MQ,
		scraper:       args.Scraper,
		newDownloader: args.NewDownloader,
		downloadPath:  args.DownloadPath,
	}
}

func validURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// Exec queues the download of an episode page and returns its id. An
// output path must stay inside the download directory.
func (s *Service) Exec(req internal.DownloadRequest) (string, error) {
	if err := validURL(req.URL); err != nil {
		return "", err
	}

	var dir string
	if req.Path != "" {
		var err error
		if dir, err = sys.WithinRoot(s.downloadPath, req.Path); err != nil {
			return "", err
		}
	}

	d := s.newDownloader(strings.TrimSpace(req.URL))
	if dir != "" {
		d.SetOutput(internal.DownloadOutput{Path: dir})
	}

	id := s.mdb.Set(d)
	s.mq.Publish(d)

	return id, nil
}

func (s *Service) Running(ctx context.Context) ([]internal.ProcessSnapshot, error) {
	select {
	case <-ctx.Done():
		return nil, context.Canceled
	default:
		return s.mdb.All(), nil
	}
}

func (s *Service) Progress(id string) (*internal.ProcessSnapshot, error) {
	d, err := s.mdb.Get(id)
	if err != nil {
		return nil, err
	}
	return d.Status(), nil
}

// Kill stops a download and forgets it.
func (s *Service) Kill(id string) error {
	d, err := s.mdb.Get(id)
	if err != nil {
		return err
	}

	defer s.mdb.Delete(id)
	return d.Stop()
}

// ClearCompleted forgets every finished download.
func (s *Service) ClearCompleted() int {
	cleared := 0
	for _, id := range s.mdb.Keys() {
		d, err := s.mdb.Get(id)
		if err != nil || !d.IsCompleted() {
			continue
		}
		s.mdb.Delete(id)
		cleared++
	}
	return cleared
}

func (s *Service) ProgramID(ctx context.Context, programURL string) (string, error) {
	if err := validURL(programURL); err != nil {
		return "", err
	}
	return s.scraper.ProgramID(ctx, programURL)
}

func (s *Service) FreeSpace() (uint64, error) {
	return sys.FreeSpace(s.downloadPath)
}

func (s *Service) Archived(ctx context.Context, limit, offset int) ([]archive.Entity, error) {
	return s.archive.List(ctx, limit, offset)
}

func (s *Service) DeleteArchived(ctx context.Context, id string) error {
	return s.archive.Delete(ctx, id)
}
