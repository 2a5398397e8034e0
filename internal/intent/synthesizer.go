package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/suPer8Hu/talent-pipeline/internal/ai"
)

const synthesizePrompt = `You generate Google search queries that find developer profiles on LinkedIn.
For each location return one query, as a JSON array in exactly this format:
[{"location":"<Location>","query":"site:linkedin.com/in (\"term1\" OR \"term2\") <Location>"}]
Return only valid JSON, no explanations and no code fences.`

// LLMSynthesizer asks a chat model for one search query per location.
type LLMSynthesizer struct {
	provider ai.Provider
}

func NewLLMSynthesizer(p ai.Provider) *LLMSynthesizer {
	return &LLMSynthesizer{provider: p}
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, in Intent) ([]GeneratedQuery, error) {
	in = withDefaults(in)
	user := fmt.Sprintf("Tech Stack: %s\nLocations: %s",
		strings.Join(in.Technologies, ", "), strings.Join(in.Locations, ", "))

	out, err := s.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: synthesizePrompt},
		{Role: ai.RoleUser, Content: user},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize queries: %w", err)
	}

	var generated []GeneratedQuery
	if err := json.Unmarshal([]byte(stripFences(out)), &generated); err != nil {
		// some models wrap the array in an object
		var wrapped struct {
			Queries []GeneratedQuery `json:"queries"`
		}
		if err2 := json.Unmarshal([]byte(stripFences(out)), &wrapped); err2 != nil || wrapped.Queries == nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		generated = wrapped.Queries
	}

	kept := generated[:0]
	for _, g := range generated {
		g.Query = strings.TrimSpace(g.Query)
		g.Location = strings.TrimSpace(g.Location)
		if g.Query != "" {
			kept = append(kept, g)
		}
	}
	return kept, nil
}

// TemplateSynthesizer builds queries without a model:
// site:linkedin.com/in ("t1" OR "t2") <Location>.
type TemplateSynthesizer struct{}

func (TemplateSynthesizer) Synthesize(_ context.Context, in Intent) ([]GeneratedQuery, error) {
	in = withDefaults(in)
	if len(in.Technologies) == 0 {
		return nil, fmt.Errorf("intent: no technologies to search for")
	}
	terms := make([]string, 0, len(in.Technologies))
	for _, t := range in.Technologies {
		terms = append(terms, strconv.Quote(t))
	}
	group := strings.Join(terms, " OR ")
	if len(terms) > 1 {
		group = "(" + group + ")"
	}

	out := make([]GeneratedQuery, 0, len(in.Locations))
	for _, loc := range in.Locations {
		out = append(out, GeneratedQuery{
			Location: loc,
			Query:    fmt.Sprintf("site:linkedin.com/in %s %s", group, loc),
		})
	}
	return out, nil
}

func withDefaults(in Intent) Intent {
	in.Technologies = cleanList(in.Technologies)
	in.Locations = cleanList(in.Locations)
	if len(in.Locations) == 0 {
		in.Locations = append([]string(nil), DefaultLocations...)
	}
	return in
}
