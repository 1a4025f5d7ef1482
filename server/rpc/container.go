package rpc

import (
	"github.com/go-chi/chi/v5"

	"github.com/drnu/drnu-downloader/server/internal/download"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/kv"
	"github.com/drnu/drnu-downloader/server/internal/queue"
	middlewares "github.com/drnu/drnu-downloader/server/middleware"
)

// Dependency injection container.
func Container(
	db *kv.Store,
	mq *queue.MessageQueue,
	client *download.Client,
	newDownloader func(url string) downloaders.Downloader,
	downloadPath string,
) *Service {
	return &Service{
		db:            db,
		mq:            mq,
		client:        client,
		newDownloader: newDownloader,
		downloadPath:  downloadPath,
	}
}

// RPC service must be registered before applying this router!
func ApplyRouter(feed *Feed) func(chi.Router) {
	return func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)
		r.Get("/ws", WebSocket)
		r.Post("/http", Post)
		r.Get("/events", feed.ServeHTTP)
	}
}
