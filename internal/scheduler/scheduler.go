// Package scheduler drives the search worker and lease recovery on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/suPer8Hu/talent-pipeline/internal/search"
)

type SearchRunner interface {
	RunOnce(ctx context.Context, batchLimit, resultsPerQuery int) (search.Summary, error)
}

type LeaseReleaser interface {
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Options struct {
	PollInterval    time.Duration
	BatchLimit      int
	ResultsPerQuery int
	// StaleLeaseAfter <= 0 disables lease recovery.
	StaleLeaseAfter time.Duration
}

// Scheduler wraps robfig/cron. Overlapping ticks are skipped, so at most one
// worker pass runs at a time in this process, including the pass Start runs
// right away.
type Scheduler struct {
	cron     *cron.Cron
	chain    cron.Chain
	runner   SearchRunner
	releaser LeaseReleaser
	opts     Options
	log      *zap.Logger

	first sync.WaitGroup
}

func New(runner SearchRunner, releaser LeaseReleaser, opts Options, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log: log.Named("cron")}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl)),
		chain:    cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		runner:   runner,
		releaser: releaser,
		opts:     opts,
		log:      log,
	}
}

// Start registers the jobs, starts the cron loop and runs one pass right away.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.opts.PollInterval <= 0 {
		return fmt.Errorf("scheduler: poll interval must be positive")
	}
	// one wrapped job shared by the cron entry and the first pass, so the
	// skip-if-running guard covers both
	tick := s.chain.Then(cron.FuncJob(func() { s.Tick(ctx) }))

	spec := fmt.Sprintf("@every %s", s.opts.PollInterval)
	if _, err := s.cron.AddJob(spec, tick); err != nil {
		return fmt.Errorf("cron.AddJob(%q): %w", spec, err)
	}
	if s.releaser != nil && s.opts.StaleLeaseAfter > 0 {
		every := fmt.Sprintf("@every %s", s.opts.StaleLeaseAfter/2)
		release := s.chain.Then(cron.FuncJob(func() { s.ReleaseStale(ctx) }))
		if _, err := s.cron.AddJob(every, release); err != nil {
			return fmt.Errorf("cron.AddJob(%q): %w", every, err)
		}
	}

	s.cron.Start()
	s.log.Info("scheduler started", zap.String("spec", spec))

	s.first.Add(1)
	go func() {
		defer s.first.Done()
		tick.Run()
	}()
	return nil
}

// Stop stops the cron loop and waits for running jobs, the first pass
// included.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.first.Wait()
	s.log.Info("scheduler stopped")
}

// Tick runs one search worker pass.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sum, err := s.runner.RunOnce(ctx, s.opts.BatchLimit, s.opts.ResultsPerQuery)
	if err != nil {
		s.log.Error("search worker pass", zap.Error(err))
		return
	}
	if len(sum.Processed)+len(sum.Failed) > 0 {
		s.log.Info("search worker pass",
			zap.Int("processed", len(sum.Processed)),
			zap.Int("failed", len(sum.Failed)))
	}
}

func (s *Scheduler) ReleaseStale(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.releaser.ReleaseStale(ctx, s.opts.StaleLeaseAfter)
	if err != nil {
		s.log.Error("release stale leases", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Warn("released stale leases", zap.Int64("count", n))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
