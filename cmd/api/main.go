package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/talent-pipeline/internal/app"
	"github.com/suPer8Hu/talent-pipeline/internal/config"
	"github.com/suPer8Hu/talent-pipeline/internal/httpapi"
	"github.com/suPer8Hu/talent-pipeline/internal/httpapi/handlers"
	"github.com/suPer8Hu/talent-pipeline/internal/logger"
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

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("init", zap.Error(err))
	}
	defer a.Close()
	a.NotifyOnBatchReady()

	deps := handlers.Deps{
		Queue:           a.Queue,
		Results:         a.Results,
		People:          a.People,
		Worker:          a.Worker,
		Enricher:        a.Pipeline,
		Planner:         a.Planner,
		BatchLimit:      cfg.WorkerBatchLimit,
		ResultsPerQuery: cfg.WorkerMaxResultsPerQuery,
		ParserVersion:   cfg.ParserVersion,
	}
	// a typed nil would defeat the handler's nil check
	if a.Publisher != nil {
		deps.Publisher = a.Publisher
	}
	h := handlers.NewHandler(deps, lg.Named("http"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, lg.Named("http"), a.Registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("api listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
}
