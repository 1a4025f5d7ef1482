package rest

import (
	"github.com/drnu/drnu-downloader/server/archive"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/kv"
	"github.com/drnu/drnu-downloader/server/internal/queue"
	"github.com/drnu/drnu-downloader/server/internal/scraper"
)

type ContainerArgs struct {
	Archive *archive.Repository
	MDB     *kv.Store
	MQ      *queue.MessageQueue
	Scraper *scraper.Scraper
	// builds a download job for an episode page url
	NewDownloader func(url string) downloaders.Downloader
	DownloadPath  string
}
