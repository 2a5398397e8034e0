package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/talent-pipeline/internal/app"
	"github.com/suPer8Hu/talent-pipeline/internal/config"
	"github.com/suPer8Hu/talent-pipeline/internal/logger"
	"github.com/suPer8Hu/talent-pipeline/internal/scheduler"
	"github.com/suPer8Hu/talent-pipeline/internal/store/rabbitmq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("init", zap.Error(err))
	}
	defer a.Close()
	a.NotifyOnBatchReady()

	sched := scheduler.New(a.Worker, a.Queue, scheduler.Options{
		PollInterval:    cfg.WorkerPollInterval,
		BatchLimit:      cfg.WorkerBatchLimit,
		ResultsPerQuery: cfg.WorkerMaxResultsPerQuery,
		StaleLeaseAfter: cfg.WorkerStaleLeaseAfter,
	}, lg.Named("scheduler"))
	if err := sched.Start(ctx); err != nil {
		lg.Fatal("scheduler", zap.Error(err))
	}
	defer sched.Stop()

	if cfg.RabbitURL == "" {
		lg.Info("RABBIT_URL not set, enrich consumer disabled")
		<-ctx.Done()
		lg.Info("worker shutting down")
		return
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, lg.Named("consumer"))
	if err != nil {
		lg.Fatal("rabbit consumer", zap.Error(err))
	}
	defer consumer.Close()

	err = consumer.Consume(ctx, func(ctx context.Context, req rabbitmq.EnrichRequest) error {
		start := time.Now()
		sum, err := a.Pipeline.EnrichBatch(ctx, req.SearchBatchID, req.MaxProfiles)
		if err != nil {
			return err
		}
		lg.Info("enrich request done",
			zap.Uint64("search_id", req.SearchBatchID),
			zap.Int("enriched", sum.Enriched),
			zap.Int("failed", sum.Failed),
			zap.Duration("cost", time.Since(start)))
		return nil
	})
	if err != nil {
		lg.Error("consumer stopped", zap.Error(err))
	}
	lg.Info("worker shutting down")
}
