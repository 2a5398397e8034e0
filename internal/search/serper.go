package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/talent-pipeline/internal/metrics"
	"github.com/suPer8Hu/talent-pipeline/internal/results"
)

// APIError is a non-2xx answer from the search provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serper: status %d: %s", e.StatusCode, e.Body)
}

// SerperProvider searches Google through serper.dev and keeps profile hits only.
type SerperProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewSerperProvider(baseURL, apiKey string, timeout time.Duration) *SerperProvider {
	if baseURL == "" {
		baseURL = "https://google.serper.dev"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SerperProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

type serperReq struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResp struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (p *SerperProvider) Search(ctx context.Context, query string, limit int) ([]results.Hit, error) {
	if p.Client == nil {
		return nil, errors.New("serper: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("serper: api key is required")
	}
	if limit <= 0 {
		limit = 20
	}

	b, err := json.Marshal(serperReq{Q: query, Num: limit})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/search", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", p.APIKey)

	start := time.Now()
	resp, err := p.Client.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues("serper").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded serperResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("serper: decode response: %w", err)
	}

	hits := make([]results.Hit, 0, len(decoded.Organic))
	for _, o := range decoded.Organic {
		if !results.IsProfileLink(o.Link) {
			continue
		}
		hits = append(hits, results.Hit{Title: o.Title, Link: o.Link, Snippet: o.Snippet})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}
