package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/drnu/drnu-downloader/server"
	"github.com/drnu/drnu-downloader/server/config"
	"github.com/drnu/drnu-downloader/server/logging"
	"github.com/drnu/drnu-downloader/server/sys"
)

var (
	configFile string
	outputDir  string
	conf       *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "drnu-downloader",
	Short:         "Download DR NU episodes over RTMP",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		conf, err = config.Load(configFile)
		if err != nil {
			return err
		}
		if outputDir != "" {
			conf.Paths.DownloadPath = outputDir
		}
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <episode-url>...",
	Short: "Download the best stream of each episode page",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDownload,
}

var programCmd = &cobra.Command{
	Use:   "program <program-url>",
	Short: "Print the id of a program page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := server.NewPipeline(conf).Scraper.ProgramID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download queue behind the http api",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cleanup, err := logging.Setup(cmd.Context(), conf.Logging)
		if err != nil {
			return err
		}
		defer cleanup()

		slog.Info("starting server",
			slog.String("host", conf.Server.Host),
			slog.Int("port", conf.Server.Port),
			slog.String("download_path", conf.Paths.DownloadPath),
		)

		return server.Run(cmd.Context(), conf)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "./config.yml", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Download directory (overrides the config)")

	rootCmd.AddCommand(downloadCmd, programCmd, serveCmd)
}

// progressLog reports stream telemetry at most once per interval.
type progressLog struct {
	total    time.Duration
	throttle rate.Sometimes
}

func (p *progressLog) OnDuration(ev server.DurationEvent) {
	p.total = ev.Total
	slog.Info("stream duration", slog.Duration("total", ev.Total))
}

func (p *progressLog) OnElapsed(ev server.ElapsedEvent) {
	p.throttle.Do(func() {
		attrs := []any{
			slog.String("received", humanize.Bytes(uint64(ev.Position))),
			slog.Duration("elapsed", ev.Elapsed.Truncate(time.Second)),
		}
		if p.total > 0 {
			attrs = append(attrs, slog.String("progress",
				fmt.Sprintf("%.1f%%", min(100, float64(ev.Elapsed)/float64(p.total)*100))))
		}
		slog.Info("downloading", attrs...)
	})
}

func runDownload(cmd *cobra.Command, args []string) error {
	cleanup, err := logging.Setup(cmd.Context(), conf.Logging)
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline := server.NewPipeline(conf)

	failed := 0
	for _, uri := range args {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		plan, err := pipeline.Client.Resolve(cmd.Context(), uri)
		if err == nil {
			err = sys.EnsureFreeSpace(conf.Paths.DownloadPath, conf.Download.MinFreeSpace)
		}
		if err != nil {
			slog.Error("cannot download", slog.String("url", uri), slog.Any("err", err))
			failed++
			continue
		}

		sink := &progressLog{throttle: rate.Sometimes{First: 1, Interval: time.Second}}

		res, err := pipeline.Client.Fetch(cmd.Context(), plan, sink)
		if err != nil {
			slog.Error("download failed", slog.String("url", uri), slog.Any("err", err))
			failed++
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", res.Path, humanize.Bytes(uint64(res.Bytes)), res.Took.Round(time.Second))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(args))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
