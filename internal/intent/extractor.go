package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/suPer8Hu/talent-pipeline/internal/ai"
)

const extractPrompt = `You extract structured data from recruitment requests.
Return only a JSON object with two fields:
"tech_stack": array of technologies, frameworks or roles mentioned,
"locations": array of cities or regions.
If the location is a whole country, list its top tech cities instead.
Example: {"tech_stack": ["Ruby", "Ruby on Rails"], "locations": ["Bangalore", "Hyderabad"]}`

// LLMExtractor asks a chat model to pull technologies and locations out of a
// request.
type LLMExtractor struct {
	provider ai.Provider
}

func NewLLMExtractor(p ai.Provider) *LLMExtractor {
	return &LLMExtractor{provider: p}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{}, fmt.Errorf("intent: empty request")
	}
	out, err := e.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: extractPrompt},
		{Role: ai.RoleUser, Content: text},
	})
	if err != nil {
		return Intent{}, fmt.Errorf("extract intent: %w", err)
	}

	var in Intent
	if err := json.Unmarshal([]byte(stripFences(out)), &in); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	in.Technologies = cleanList(in.Technologies)
	in.Locations = cleanList(in.Locations)
	// nothing recognised: search for the request text itself
	if len(in.Technologies) == 0 {
		in.Technologies = []string{text}
	}
	return in, nil
}

// KeywordParserVersion tags queue items planned by KeywordExtractor.
const KeywordParserVersion = "keyword-v1"

// KeywordExtractor reads a request without a model. Text after the last
// " in " lists locations separated by commas or "and"; the rest is searched
// as one technology phrase.
type KeywordExtractor struct{}

func (KeywordExtractor) Extract(_ context.Context, text string) (Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{}, fmt.Errorf("intent: empty request")
	}
	tech, where := text, ""
	if i := strings.LastIndex(text, " in "); i > 0 {
		tech, where = text[:i], text[i+len(" in "):]
	}

	var locs []string
	for _, part := range strings.FieldsFunc(where, func(r rune) bool { return r == ',' || r == ';' || r == '/' }) {
		locs = append(locs, strings.Split(part, " and ")...)
	}
	return Intent{
		Technologies: cleanList([]string{tech}),
		Locations:    cleanList(locs),
	}, nil
}
