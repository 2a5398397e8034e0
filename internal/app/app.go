// Package app wires configuration into the stores, providers and services
// shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/suPer8Hu/talent-pipeline/internal/ai"
	"github.com/suPer8Hu/talent-pipeline/internal/config"
	"github.com/suPer8Hu/talent-pipeline/internal/db"
	"github.com/suPer8Hu/talent-pipeline/internal/enrich"
	"github.com/suPer8Hu/talent-pipeline/internal/intent"
	"github.com/suPer8Hu/talent-pipeline/internal/metrics"
	"github.com/suPer8Hu/talent-pipeline/internal/people"
	"github.com/suPer8Hu/talent-pipeline/internal/queue"
	"github.com/suPer8Hu/talent-pipeline/internal/results"
	"github.com/suPer8Hu/talent-pipeline/internal/search"
	"github.com/suPer8Hu/talent-pipeline/internal/store/rabbitmq"
	"github.com/suPer8Hu/talent-pipeline/internal/store/redisstore"
)

type App struct {
	Cfg      config.Config
	Log      *zap.Logger
	DB       *gorm.DB
	Registry *prometheus.Registry

	Queue    *queue.Repo
	Results  *results.Repo
	People   *people.Repo
	Worker   *search.Worker
	Pipeline *enrich.Pipeline

	Planner   *intent.Planner
	Publisher *rabbitmq.Publisher // nil when RABBIT_URL is empty

	redis *redis.Client
}

// New opens the database (running migrations) and the optional Redis and
// RabbitMQ connections, then builds the services.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a := &App{
		Cfg:      cfg,
		Log:      log,
		DB:       gdb,
		Registry: reg,
		Queue:    queue.NewRepo(gdb),
		Results:  results.NewRepo(gdb),
		People:   people.NewRepo(gdb),
	}

	serper := search.NewSerperProvider(cfg.SerperBaseURL, cfg.SerperAPIKey, cfg.ProviderTimeout)
	a.Worker = search.NewWorker(a.Queue, a.Results, serper, log.Named("search"))

	salesql := enrich.NewSalesQLClient(cfg.SalesQLBaseURL, cfg.SalesQLAPIKey, cfg.ProviderTimeout)
	a.Pipeline = enrich.NewPipeline(a.Results, a.People, salesql, cfg.EnrichDelay, log.Named("enrich"))

	if cfg.RedisAddr != "" {
		rdb, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		a.Pipeline.WithNotFoundCache(redisstore.NewNotFoundCache(rdb, cfg.NotFoundTTL))
	}

	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = pub
	}

	provider, err := ai.NewDefaultRegistry(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		log.Warn("ai provider unavailable, planning with keyword extraction and query templates",
			zap.String("provider", cfg.AIProvider), zap.Error(err))
		a.Planner = intent.NewPlanner(
			intent.KeywordExtractor{},
			intent.TemplateSynthesizer{},
			a.Queue,
			a.Worker,
			intent.KeywordParserVersion,
			log.Named("planner"),
		)
	} else {
		a.Planner = intent.NewPlanner(
			intent.NewLLMExtractor(provider),
			intent.NewLLMSynthesizer(provider),
			a.Queue,
			a.Worker,
			cfg.ParserVersion,
			log.Named("planner"),
		)
	}
	return a, nil
}

// NotifyOnBatchReady makes the search worker queue enrichment for every batch
// it finishes. No-op without RabbitMQ.
func (a *App) NotifyOnBatchReady() {
	if a.Publisher != nil {
		a.Worker.WithNotifier(a.Publisher)
	}
}

func (a *App) Close() {
	if a.Publisher != nil {
		_ = a.Publisher.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
