package intent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/suPer8Hu/talent-pipeline/internal/queue"
	"github.com/suPer8Hu/talent-pipeline/internal/search"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, queries []string, meta queue.Metadata) (int, error)
}

type SearchRunner interface {
	RunOnce(ctx context.Context, batchLimit, resultsPerQuery int) (search.Summary, error)
}

type PlanOptions struct {
	RunSearch          bool
	BatchLimit         int
	MaxResultsPerQuery int
}

type PlanResult struct {
	Parsed         Intent           `json:"parsed"`
	GeneratedCount int              `json:"generated_count"`
	Generated      []GeneratedQuery `json:"generated"`
	Enqueued       int              `json:"enqueued"`
	WorkerSummary  *search.Summary  `json:"worker_summary,omitempty"`
}

// Planner runs extract, synthesize and enqueue for one request, and can
// drain one worker batch right after.
type Planner struct {
	extractor     Extractor
	synthesizer   Synthesizer
	queue         Enqueuer
	runner        SearchRunner
	parserVersion string
	log           *zap.Logger
}

func NewPlanner(e Extractor, s Synthesizer, q Enqueuer, runner SearchRunner, parserVersion string, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{
		extractor:     e,
		synthesizer:   s,
		queue:         q,
		runner:        runner,
		parserVersion: parserVersion,
		log:           log,
	}
}

func (p *Planner) Plan(ctx context.Context, text string, opts PlanOptions) (PlanResult, error) {
	in, err := p.extractor.Extract(ctx, text)
	if err != nil {
		return PlanResult{}, err
	}

	generated, err := p.synthesizer.Synthesize(ctx, in)
	if err != nil {
		return PlanResult{Parsed: in}, err
	}

	queries := make([]string, 0, len(generated))
	for _, g := range generated {
		queries = append(queries, g.Query)
	}
	meta := queue.Metadata{
		Technologies:  in.Technologies,
		Locations:     in.Locations,
		ParserVersion: p.parserVersion,
	}
	n, err := p.queue.Enqueue(ctx, queries, meta)
	if err != nil {
		return PlanResult{Parsed: in, Generated: generated}, fmt.Errorf("enqueue queries: %w", err)
	}

	res := PlanResult{
		Parsed:         in,
		GeneratedCount: len(generated),
		Generated:      generated,
		Enqueued:       n,
	}
	p.log.Info("request planned",
		zap.Strings("technologies", in.Technologies),
		zap.Strings("locations", in.Locations),
		zap.Int("enqueued", n))

	if opts.RunSearch && p.runner != nil {
		sum, err := p.runner.RunOnce(ctx, opts.BatchLimit, opts.MaxResultsPerQuery)
		if err != nil {
			return res, fmt.Errorf("run search worker: %w", err)
		}
		res.WorkerSummary = &sum
	}
	return res, nil
}
