package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/rpc"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/drnu/drnu-downloader/server/archive"
	"github.com/drnu/drnu-downloader/server/archiver"
	"github.com/drnu/drnu-downloader/server/config"
	"github.com/drnu/drnu-downloader/server/internal/download"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/events"
	"github.com/drnu/drnu-downloader/server/internal/httpclient"
	"github.com/drnu/drnu-downloader/server/internal/kv"
	"github.com/drnu/drnu-downloader/server/internal/metrics"
	"github.com/drnu/drnu-downloader/server/internal/queue"
	"github.com/drnu/drnu-downloader/server/internal/resource"
	"github.com/drnu/drnu-downloader/server/internal/rtmp"
	"github.com/drnu/drnu-downloader/server/internal/rtmp/rtmpdump"
	"github.com/drnu/drnu-downloader/server/internal/scraper"
	middlewares "github.com/drnu/drnu-downloader/server/middleware"
	"github.com/drnu/drnu-downloader/server/rest"
	drnuRPC "github.com/drnu/drnu-downloader/server/rpc"
	"github.com/drnu/drnu-downloader/server/status"
	"github.com/drnu/drnu-downloader/server/user"
)

const (
	queueCapacity   = 64
	shutdownTimeout = 15 * time.Second
)

// Stream telemetry events, re-exported for callers outside server/.
type (
	DurationEvent = rtmp.DurationEvent
	ElapsedEvent  = rtmp.ElapsedEvent
)

// Pipeline is the download stack built from the configuration.
type Pipeline struct {
	Client  *download.Client
	Scraper *scraper.Scraper
	Engine  *rtmpdump.Engine
}

func NewPipeline(conf *config.Config) *Pipeline {
	client := httpclient.WithTimeout(conf.Download.HTTPTimeout)
	ua := conf.Download.UserAgent

	engine := rtmpdump.New(rtmpdump.Config{
		Path:           conf.Paths.RtmpdumpPath,
		ConnectTimeout: conf.Engine.ConnectTimeout,
		Timeout:        conf.Engine.Timeout,
		Live:           conf.Engine.Live,
	})

	sc := scraper.New(client, ua)

	return &Pipeline{
		Client: download.NewClient(download.Options{
			Scraper:    sc,
			Resources:  resource.NewFetcher(client, ua),
			Streams:    download.EngineStreams(engine),
			OutputDir:  conf.Paths.DownloadPath,
			Extension:  conf.Download.Extension,
			BufferSize: conf.Download.BufferSize,
		}),
		Scraper: sc,
		Engine:  engine,
	}
}

type serverConfig struct {
	mdb      *kv.Store
	db       *archive.Repository
	mq       *queue.MessageQueue
	feed     *drnuRPC.Feed
	pipeline *Pipeline
	newDl    func(url string) downloaders.Downloader
	outDir   string
}

// Run serves the api until ctx is done, then drains and persists the
// session.
func Run(ctx context.Context, conf *config.Config) error {
	sqldb, err := archive.Open(conf.Paths.LocalDatabasePath)
	if err != nil {
		return err
	}
	defer sqldb.Close()

	repo := archive.NewRepository(sqldb)

	arc := archiver.New(repo)
	if conf.AutoArchive {
		if err := arc.Register(events.Bus()); err != nil {
			return err
		}
		defer arc.Stop()
	}

	feed, err := drnuRPC.NewFeed(events.Bus())
	if err != nil {
		return err
	}
	defer feed.Close()

	pipeline := NewPipeline(conf)

	newDl := func(url string) downloaders.Downloader {
		return downloaders.NewEpisodeDownloader(
			url,
			pipeline.Client,
			downloaders.WithMinFreeSpace(conf.Download.MinFreeSpace),
		)
	}

	mq, err := queue.NewMessageQueue(conf.Server.QueueSize, queueCapacity)
	if err != nil {
		return err
	}
	mq.SetupConsumers()

	mdb := kv.NewStore(conf.Paths.SessionFilePath)
	go mdb.Restore(mq, func() downloaders.Downloader { return newDl("") })

	srv := newServer(serverConfig{
		mdb:      mdb,
		db:       repo,
		mq:       mq,
		feed:     feed,
		pipeline: pipeline,
		newDl:    newDl,
		outDir:   filepath.Clean(conf.Paths.DownloadPath),
	})

	var (
		network = "tcp"
		address = fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port)
	)

	// support unix sockets
	if strings.HasPrefix(conf.Server.Host, "/") {
		network = "unix"
		address = conf.Server.Host
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		slog.Error("failed to listen", slog.String("err", err.Error()))
		return err
	}

	slog.Info("drnu-downloader started", slog.String("address", address))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		return gracefulShutdown(srv, mdb, mq)
	})

	return g.Wait()
}

func newServer(c serverConfig) *http.Server {
	service := drnuRPC.Container(c.mdb, c.mq, c.pipeline.Client, c.newDl, c.outDir)
	if err := rpc.Register(service); err != nil {
		slog.Warn("rpc service already registered", slog.Any("err", err))
	}

	r := chi.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.Use(corsMiddleware.Handler)

	// Authentication routes
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", user.Login)
		r.Get("/logout", user.Logout)
	})

	// RPC handlers
	r.Route("/rpc", drnuRPC.ApplyRouter(c.feed))

	// REST API handlers
	r.Route("/api/v1", rest.ApplyRouter(&rest.ContainerArgs{
		Archive:       c.db,
		MDB:           c.mdb,
		MQ:            c.mq,
		Scraper:       c.pipeline.Scraper,
		NewDownloader: c.newDl,
		DownloadPath:  c.outDir,
	}))

	// Status
	r.Route("/status", func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)
		r.Group(status.ApplyRouter(c.mdb, c.outDir))
	})

	r.Handle("/metrics", metrics.Handler())

	return &http.Server{Handler: r}
}

func gracefulShutdown(srv *http.Server, mdb *kv.Store, mq *queue.MessageQueue) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)

	mq.Stop()
	if perr := mdb.Persist(); perr != nil {
		slog.Error("failed to persist session", slog.Any("err", perr))
		err = errors.Join(err, perr)
	}
	return err
}
