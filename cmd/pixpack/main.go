package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/amirzhanov/pixpack/internal/actionlog"
	"github.com/amirzhanov/pixpack/internal/api/handlers/batch"
	"github.com/amirzhanov/pixpack/internal/api/router"
	"github.com/amirzhanov/pixpack/internal/api/server"
	"github.com/amirzhanov/pixpack/internal/config"
	"github.com/amirzhanov/pixpack/internal/infra/kafka/consumer"
	"github.com/amirzhanov/pixpack/internal/infra/kafka/producer"
	batchmsg "github.com/amirzhanov/pixpack/internal/kafka/handlers/batch"
	"github.com/amirzhanov/pixpack/internal/pipeline"
	batchrepo "github.com/amirzhanov/pixpack/internal/repository/batch"
	batchsvc "github.com/amirzhanov/pixpack/internal/service/batch"
	"github.com/amirzhanov/pixpack/internal/storage/file"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	// Collect slave DSNs for replica connections.
	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))

	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}
	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Initialize file storage (MinIO).
	storage, err := file.NewStorage(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Initialize repository, producer, pipeline, and service layer.
	repo := batchrepo.NewRepository(db)
	p := producer.New(&cfg.Kafka, strategy)
	pl := pipeline.New(pipeline.Config{
		Workers:    cfg.Pipeline.Workers,
		MaxUpscale: cfg.Pipeline.MaxUpscale,
		Quality:    cfg.Pipeline.Quality,
		GPSTags:    cfg.Sanitize.GPSTags,
		SerialTags: cfg.Sanitize.SerialTags,
	})
	actions := actionlog.New(actionlog.DefaultMax)
	service := batchsvc.NewService(repo, storage, p, pl, actions)

	// Kafka message handler for created batches.
	createdHandler := batchmsg.NewCreatedHandler(service)

	// HTTP handler for batch routes.
	batchHandler := batch.NewHandler(service)

	// Kafka consumer for processing created batch events.
	c := consumer.New(&cfg.Kafka, strategy, createdHandler)

	// Start Kafka consumer in a separate goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)

	// Start HTTP server in a separate goroutine.
	r := router.Setup(batchHandler)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for Kafka consumer goroutine to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close Kafka producer and consumer clients.
	if err = p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err = c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
}
