// Package intent turns a free-text hiring request into search queries.
//
// Extraction and query synthesis are external collaborators (usually an LLM)
// hidden behind the Extractor and Synthesizer interfaces.
package intent

import (
	"context"
	"errors"
	"strings"
)

// DefaultLocations is used when a request names no location.
var DefaultLocations = []string{"Bangalore", "Hyderabad", "Mumbai", "Delhi", "Pune"}

// ErrMalformedOutput means a collaborator answered with something that is not
// the expected JSON document.
var ErrMalformedOutput = errors.New("intent: malformed model output")

type Intent struct {
	Technologies []string `json:"tech_stack"`
	Locations    []string `json:"locations"`
}

type GeneratedQuery struct {
	Location string `json:"location"`
	Query    string `json:"query"`
}

type Extractor interface {
	Extract(ctx context.Context, text string) (Intent, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, in Intent) ([]GeneratedQuery, error)
}

// cleanList trims entries and drops empty and repeated ones, keeping order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
