package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iconidentify/bsvdl/internal/api"
	"github.com/iconidentify/bsvdl/internal/api/handler"
	"github.com/iconidentify/bsvdl/internal/config"
	"github.com/iconidentify/bsvdl/internal/downloader"
	"github.com/iconidentify/bsvdl/internal/metrics"
	"github.com/iconidentify/bsvdl/internal/service"
	"github.com/iconidentify/bsvdl/pkg/bluesky"
	"github.com/iconidentify/bsvdl/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bsvdl %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting bsvdl",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := os.MkdirAll(cfg.Storage.ScratchDir, 0755); err != nil {
		logger.Error("failed to create scratch directory", "error", err)
		os.Exit(1)
	}

	ffmpegProc, err := ffmpeg.NewProcessor(cfg.FFmpeg.Path)
	if err != nil {
		logger.Error("ffmpeg not available", "path", cfg.FFmpeg.Path, "error", err)
		os.Exit(1)
	}

	// Initialize dependencies
	bsky := bluesky.NewClient(bluesky.Config{
		PDSHost:     cfg.Bluesky.PDSHost,
		AppViewHost: cfg.Bluesky.AppViewHost,
		Identifier:  cfg.Bluesky.Identifier,
		Password:    cfg.Bluesky.Password,
		Timeout:     cfg.Bluesky.Timeout,
		UserAgent:   cfg.Download.UserAgent,
	}, logger)

	if err := login(context.Background(), bsky, cfg.Download, logger); err != nil {
		logger.Error("failed to log in to bluesky", "error", err)
		os.Exit(1)
	}

	dl := downloader.NewHTTPDownloader(cfg.Download)
	dl.SetLogger(logger)

	m := metrics.New()

	// Initialize services
	selector := service.NewSelector(dl, cfg.Bluesky, logger)
	assembler := service.NewAssembler(dl, ffmpegProc, cfg.Storage, cfg.Download, m, logger)
	videoSvc := service.NewVideoService(bsky, bsky, selector, assembler, m, logger)

	// Initialize handlers
	processHandler := handler.NewProcessHandler(videoSvc, cfg.Server.MaxFormSize, logger)
	healthHandler := handler.NewHealthHandler(videoSvc, ffmpegProc.Path(), cfg.Storage.ScratchDir, logger)
	uiHandler := handler.NewUIHandler()

	// Setup router
	router := api.NewRouter(processHandler, healthHandler, uiHandler, m, cfg.Server.RequestTimeout)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown; in-flight downloads get the same window as a request.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newLogger writes JSON logs to stdout and, when a log file is configured,
// to a size-rotated file as well.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

// login creates the bluesky session, retrying transport failures and server
// errors. Rejected credentials fail immediately.
func login(ctx context.Context, bsky *bluesky.Client, cfg config.DownloadConfig, logger *slog.Logger) error {
	retryCfg := downloader.RetryConfigFor(cfg)
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("bluesky login failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	_, err := downloader.RetryWithCheck(ctx, retryCfg, func() (struct{}, error) {
		return struct{}{}, bsky.Login(ctx)
	}, func(err error) bool {
		return !bluesky.IsRejected(err)
	})
	return err
}
