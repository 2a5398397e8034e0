package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/talent-pipeline/internal/metrics"
	"github.com/suPer8Hu/talent-pipeline/internal/queue"
	"github.com/suPer8Hu/talent-pipeline/internal/results"
)

// Provider runs one query against an external search engine. It may return
// fewer hits than limit.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]results.Hit, error)
}

// Notifier is told when a batch has results and can be enriched.
type Notifier interface {
	BatchReady(ctx context.Context, batchID uint64) error
}

type Queue interface {
	LeasePending(ctx context.Context, limit int) ([]queue.Item, error)
	MarkDone(ctx context.Context, id uint64, leaseToken string) error
	MarkFailed(ctx context.Context, id uint64, leaseToken, reason string) error
}

type ResultStore interface {
	SaveResults(ctx context.Context, batchID uint64, query string, hits []results.Hit) error
}

type Processed struct {
	ID       uint64 `json:"search_id"`
	Query    string `json:"query"`
	HitCount int    `json:"saved"`
}

type Failure struct {
	ID    uint64 `json:"search_id"`
	Query string `json:"query"`
	Error string `json:"error"`
}

type Summary struct {
	Processed []Processed `json:"processed"`
	Failed    []Failure   `json:"failed"`
}

type Worker struct {
	queue    Queue
	results  ResultStore
	provider Provider
	notifier Notifier
	log      *zap.Logger
}

func NewWorker(q Queue, rs ResultStore, p Provider, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{queue: q, results: rs, provider: p, log: log}
}

// WithNotifier sets who hears about batches that finished searching.
func (w *Worker) WithNotifier(n Notifier) *Worker {
	w.notifier = n
	return w
}

// RunOnce leases up to batchLimit pending queries and runs them one by one.
// A failing item is marked failed and reported in the summary; it never
// stops the rest of the batch. Only a failed lease is returned as an error.
func (w *Worker) RunOnce(ctx context.Context, batchLimit, resultsPerQuery int) (Summary, error) {
	sum := Summary{Processed: []Processed{}, Failed: []Failure{}}

	items, err := w.queue.LeasePending(ctx, batchLimit)
	if err != nil {
		return sum, fmt.Errorf("lease pending queries: %w", err)
	}
	if len(items) == 0 {
		return sum, nil
	}

	for _, it := range items {
		start := time.Now()
		n, err := w.runItem(ctx, it, resultsPerQuery)
		if err != nil {
			if markErr := w.queue.MarkFailed(ctx, it.ID, it.Lease(), err.Error()); markErr != nil {
				w.log.Error("mark query failed",
					zap.Uint64("search_id", it.ID), zap.Error(markErr))
			}
			metrics.QueueItemsTotal.WithLabelValues(string(queue.StatusFailed)).Inc()
			w.log.Warn("search query failed",
				zap.Uint64("search_id", it.ID),
				zap.String("query", it.Query),
				zap.Duration("cost", time.Since(start)),
				zap.Error(err))
			sum.Failed = append(sum.Failed, Failure{ID: it.ID, Query: it.Query, Error: err.Error()})
			continue
		}

		metrics.QueueItemsTotal.WithLabelValues(string(queue.StatusDone)).Inc()
		metrics.SearchHitsTotal.Add(float64(n))
		w.log.Info("search query done",
			zap.Uint64("search_id", it.ID),
			zap.Int("hits", n),
			zap.Duration("cost", time.Since(start)))
		sum.Processed = append(sum.Processed, Processed{ID: it.ID, Query: it.Query, HitCount: n})

		if w.notifier != nil && n > 0 {
			if err := w.notifier.BatchReady(ctx, it.ID); err != nil {
				w.log.Warn("notify batch ready", zap.Uint64("search_id", it.ID), zap.Error(err))
			}
		}
	}
	return sum, nil
}

func (w *Worker) runItem(ctx context.Context, it queue.Item, resultsPerQuery int) (int, error) {
	hits, err := w.provider.Search(ctx, it.Query, resultsPerQuery)
	if err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}
	if resultsPerQuery > 0 && len(hits) > resultsPerQuery {
		hits = hits[:resultsPerQuery]
	}
	if err := w.results.SaveResults(ctx, it.ID, it.Query, hits); err != nil {
		return 0, fmt.Errorf("save results: %w", err)
	}
	if err := w.queue.MarkDone(ctx, it.ID, it.Lease()); err != nil {
		return 0, fmt.Errorf("mark done: %w", err)
	}
	return len(hits), nil
}
