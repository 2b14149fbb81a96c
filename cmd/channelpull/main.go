// Package main wires together the channel pull service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gcstorage "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/brightkite/channelpull/internal/api"
	"github.com/brightkite/channelpull/internal/archive"
	archivegcs "github.com/brightkite/channelpull/internal/archive/gcs"
	archivelocal "github.com/brightkite/channelpull/internal/archive/local"
	archivememory "github.com/brightkite/channelpull/internal/archive/memory"
	"github.com/brightkite/channelpull/internal/chat"
	"github.com/brightkite/channelpull/internal/clock/system"
	"github.com/brightkite/channelpull/internal/config"
	"github.com/brightkite/channelpull/internal/id/uuid"
	"github.com/brightkite/channelpull/internal/logging"
	"github.com/brightkite/channelpull/internal/metrics"
	"github.com/brightkite/channelpull/internal/progress"
	"github.com/brightkite/channelpull/internal/progress/sinks"
	"github.com/brightkite/channelpull/internal/publisher"
	publishermemory "github.com/brightkite/channelpull/internal/publisher/memory"
	publisherpubsub "github.com/brightkite/channelpull/internal/publisher/pubsub"
	"github.com/brightkite/channelpull/internal/pull"
	"github.com/brightkite/channelpull/internal/puller"
	"github.com/brightkite/channelpull/internal/ratelimit"
	"github.com/brightkite/channelpull/internal/registry"
	"github.com/brightkite/channelpull/internal/store"
	memorystorage "github.com/brightkite/channelpull/internal/storage/memory"
	"github.com/brightkite/channelpull/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// A missing .env is fine; env vars win over file values either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		jobStore store.PullJobStore
		msgStore store.MessageStore
		readier  api.Pinger
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, poolErr := postgres.NewPool(ctx, postgres.Config{DSN: cfg.Storage.PostgresDSN})
		if poolErr != nil {
			logger.Fatal("postgres init failed", zap.Error(poolErr))
		}
		defer pool.Close()
		jobStore = postgres.NewJobStore(pool)
		msgStore = postgres.NewMessageStore(pool)
		readier = pool
	default:
		jobStore = memorystorage.NewJobStore()
		msgStore = memorystorage.NewMessageStore()
	}

	// Execution loops do not survive a restart; rows still claiming to run
	// are lies and must fail before the API serves reads.
	if n, recErr := jobStore.FailRunning(ctx, "interrupted by restart"); recErr != nil {
		logger.Warn("startup recovery failed", zap.Error(recErr))
	} else if n > 0 {
		logger.Info("marked interrupted pulls failed", zap.Int("count", n))
	}

	var archiver *archive.Archiver
	switch cfg.Archive.Driver {
	case config.DriverMemory:
		archiver = archive.NewArchiver(archivememory.New(), msgStore, logger.Named("archive"))
	case config.DriverLocal:
		blobs, archErr := archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.LocalDir})
		if archErr != nil {
			logger.Fatal("local archive init failed", zap.Error(archErr))
		}
		archiver = archive.NewArchiver(blobs, msgStore, logger.Named("archive"))
	case config.DriverGCS:
		gcsClient, gcsErr := gcstorage.NewClient(ctx)
		if gcsErr != nil {
			logger.Fatal("gcs client init failed", zap.Error(gcsErr))
		}
		defer func() {
			if closeErr := gcsClient.Close(); closeErr != nil {
				logger.Warn("gcs client close failed", zap.Error(closeErr))
			}
		}()
		blobs, archErr := archivegcs.New(gcsClient, archivegcs.Config{Bucket: cfg.Archive.Bucket})
		if archErr != nil {
			logger.Fatal("gcs archive init failed", zap.Error(archErr))
		}
		archiver = archive.NewArchiver(blobs, msgStore, logger.Named("archive"))
	}

	var pub publisher.Publisher
	switch cfg.Publisher.Driver {
	case config.DriverMemory:
		pub = publishermemory.New()
	case config.DriverPubSub:
		psPub, pubErr := publisherpubsub.New(ctx, cfg.Publisher.ProjectID, cfg.Publisher.Topic)
		if pubErr != nil {
			logger.Fatal("pubsub init failed", zap.Error(pubErr))
		}
		defer func() {
			if closeErr := psPub.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		pub = psPub
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		SinkTimeout:    cfg.Progress.SinkTimeout,
		Logger:         logger.Named("progress"),
	}, sinks.NewLogSink(logger.Named("progress")), promSink)

	reg := registry.New(ctx, registry.Config{MaxActive: cfg.Registry.MaxActive}, logger.Named("registry"))
	reg.StartSweeper(ctx, cfg.Registry.SweepInterval, cfg.Registry.Retention)

	chatClient := chat.New(chat.Config{
		BaseURL: cfg.Chat.BaseURL,
		Token:   cfg.Chat.Token,
		Timeout: cfg.Chat.Timeout,
	}, logger.Named("chat"))

	pullSvc := puller.New(
		reg,
		jobStore,
		msgStore,
		chatClient,
		chatClient,
		chatClient,
		system.New(),
		uuid.New(),
		hub,
		pub,
		archiver,
		puller.Config{
			Limits: pull.Limits{
				DefaultBatchSize: cfg.Pull.DefaultBatchSize,
				MaxBatchSize:     cfg.Pull.MaxBatchSize,
				MinDelay:         cfg.Pull.MinDelay,
				DefaultDelay:     cfg.Pull.DefaultDelay,
			},
			MaxAttempts: cfg.Pull.MaxAttempts,
			Backoff: ratelimit.Backoff{
				Base: cfg.Pull.BackoffBase,
				Max:  cfg.Pull.BackoffMax,
			},
			Estimate: puller.EstimateParams{
				Messages:       cfg.Pull.EstimatedMessages,
				PerMessageCost: cfg.Pull.PerMessageCost,
			},
			Topic: cfg.Publisher.Topic,
		},
		logger.Named("puller"),
	)

	apiServer := api.NewServer(pullSvc, readier, api.Config{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		APIKey:         cfg.HTTP.APIKey,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	go func() {
		logger.Info("http server started", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	// The signal context is already cancelled, so every execution loop stops
	// at its next checkpoint. Wait for them before flushing telemetry.
	if err := pullSvc.Drain(shutdownCtx); err != nil {
		logger.Warn("pull drain incomplete", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
