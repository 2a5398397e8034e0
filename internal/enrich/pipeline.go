package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/talent-pipeline/internal/metrics"
	"github.com/suPer8Hu/talent-pipeline/internal/people"
	"github.com/suPer8Hu/talent-pipeline/internal/results"
)

const maxReportedFailures = 100

// Provider resolves a profile URL to the provider's person payload, or
// ErrNotFound.
type Provider interface {
	Enrich(ctx context.Context, profileURL string) (map[string]any, error)
}

type LinkSource interface {
	GetProfileLinks(ctx context.Context, batchID uint64) ([]results.ProfileLink, error)
}

type PeopleStore interface {
	ExistingLinks(ctx context.Context, batchID uint64) (map[string]struct{}, error)
	Upsert(ctx context.Context, rec *people.Record) error
}

// NotFoundCache remembers profiles the provider recently had nothing for.
type NotFoundCache interface {
	IsNotFound(ctx context.Context, profileURL string) (bool, error)
	MarkNotFound(ctx context.Context, profileURL string) error
}

type Failure struct {
	Link  string `json:"link"`
	Error string `json:"error"`
}

type Summary struct {
	SearchBatchID   uint64    `json:"search_id"`
	FoundURLs       int       `json:"found_urls"`
	AlreadyEnriched int       `json:"already_enriched"`
	Enriched        int       `json:"enriched"`
	NotFound        int       `json:"not_found"`
	Failed          int       `json:"failed"`
	Failures        []Failure `json:"failures"`
}

type Pipeline struct {
	links    LinkSource
	people   PeopleStore
	provider Provider
	cache    NotFoundCache
	delay    time.Duration
	sleep    func(time.Duration)
	log      *zap.Logger
}

// NewPipeline builds a pipeline that waits delay after every provider call.
func NewPipeline(links LinkSource, store PeopleStore, provider Provider, delay time.Duration, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		links:    links,
		people:   store,
		provider: provider,
		delay:    delay,
		sleep:    time.Sleep,
		log:      log,
	}
}

func (p *Pipeline) WithNotFoundCache(c NotFoundCache) *Pipeline {
	p.cache = c
	return p
}

// EnrichBatch enriches the profile links found by one search batch that are
// not enriched yet. maxProfiles > 0 caps how many links are sent to the
// provider. Provider errors are counted per link; store errors abort.
func (p *Pipeline) EnrichBatch(ctx context.Context, batchID uint64, maxProfiles int) (Summary, error) {
	sum := Summary{SearchBatchID: batchID, Failures: []Failure{}}

	candidates, err := p.links.GetProfileLinks(ctx, batchID)
	if err != nil {
		return sum, fmt.Errorf("load profile links: %w", err)
	}
	candidates = uniqueLinks(candidates)
	sum.FoundURLs = len(candidates)
	if len(candidates) == 0 {
		return sum, nil
	}

	existing, err := p.people.ExistingLinks(ctx, batchID)
	if err != nil {
		return sum, fmt.Errorf("load enriched links: %w", err)
	}

	todo := make([]results.ProfileLink, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := existing[c.Link]; ok {
			sum.AlreadyEnriched++
			continue
		}
		todo = append(todo, c)
	}
	metrics.EnrichmentsTotal.WithLabelValues("already_enriched").Add(float64(sum.AlreadyEnriched))

	if maxProfiles > 0 && len(todo) > maxProfiles {
		todo = todo[:maxProfiles]
	}

	for _, c := range todo {
		outcome, err := p.enrichOne(ctx, batchID, c)
		if err != nil {
			return sum, err
		}
		switch outcome.kind {
		case outcomeEnriched:
			sum.Enriched++
		case outcomeNotFound:
			sum.NotFound++
		case outcomeFailed:
			sum.Failed++
			if len(sum.Failures) < maxReportedFailures {
				sum.Failures = append(sum.Failures, Failure{Link: c.Link, Error: outcome.err.Error()})
			}
			p.log.Warn("enrich profile failed",
				zap.Uint64("search_id", batchID),
				zap.String("link", c.Link),
				zap.Error(outcome.err))
		}
		metrics.EnrichmentsTotal.WithLabelValues(string(outcome.kind)).Inc()

		if outcome.calledProvider && p.delay > 0 {
			p.sleep(p.delay)
		}
	}

	p.log.Info("enrich batch done",
		zap.Uint64("search_id", batchID),
		zap.Int("found", sum.FoundURLs),
		zap.Int("already_enriched", sum.AlreadyEnriched),
		zap.Int("enriched", sum.Enriched),
		zap.Int("not_found", sum.NotFound),
		zap.Int("failed", sum.Failed))
	return sum, nil
}

type outcomeKind string

const (
	outcomeEnriched outcomeKind = "enriched"
	outcomeNotFound outcomeKind = "not_found"
	outcomeFailed   outcomeKind = "failed"
)

type outcome struct {
	kind           outcomeKind
	err            error
	calledProvider bool
}

// enrichOne returns an error only when the people store fails.
func (p *Pipeline) enrichOne(ctx context.Context, batchID uint64, c results.ProfileLink) (outcome, error) {
	key := NormalizeProfileURL(c.Link)
	if p.cache != nil {
		hit, err := p.cache.IsNotFound(ctx, key)
		if err != nil {
			p.log.Warn("not-found cache lookup", zap.String("link", c.Link), zap.Error(err))
		} else if hit {
			return outcome{kind: outcomeNotFound}, nil
		}
	}

	payload, err := p.provider.Enrich(ctx, c.Link)
	if errors.Is(err, ErrNotFound) {
		if p.cache != nil {
			if err := p.cache.MarkNotFound(ctx, key); err != nil {
				p.log.Warn("not-found cache store", zap.String("link", c.Link), zap.Error(err))
			}
		}
		return outcome{kind: outcomeNotFound, calledProvider: true}, nil
	}
	if err != nil {
		return outcome{kind: outcomeFailed, err: err, calledProvider: true}, nil
	}

	src := c.ResultID
	rec, err := people.Normalize(batchID, &src, c.Link, payload)
	if err != nil {
		return outcome{kind: outcomeFailed, err: err, calledProvider: true}, nil
	}
	if err := p.people.Upsert(ctx, rec); err != nil {
		return outcome{}, fmt.Errorf("upsert person %s: %w", c.Link, err)
	}
	return outcome{kind: outcomeEnriched, calledProvider: true}, nil
}

// uniqueLinks keeps the first occurrence of every link.
func uniqueLinks(in []results.ProfileLink) []results.ProfileLink {
	seen := make(map[string]struct{}, len(in))
	out := make([]results.ProfileLink, 0, len(in))
	for _, c := range in {
		if _, dup := seen[c.Link]; dup {
			continue
		}
		seen[c.Link] = struct{}{}
		out = append(out, c)
	}
	return out
}
