package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/talent-pipeline/internal/metrics"
)

// ErrNotFound means the provider has no person for the profile. It is an
// expected outcome, not a failure.
var ErrNotFound = errors.New("enrich: no person found")

// APIError is a non-2xx, non-404 answer from the enrichment provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("salesql error %d: %s", e.StatusCode, e.Body)
}

// NormalizeProfileURL strips whitespace, query, fragment and trailing slashes.
func NormalizeProfileURL(raw string) string {
	u := strings.TrimSpace(raw)
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/")
}

type SalesQLClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewSalesQLClient(baseURL, apiKey string, timeout time.Duration) *SalesQLClient {
	if baseURL == "" {
		baseURL = "https://api-public.salesql.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SalesQLClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Enrich looks a person up by profile URL. A 404 yields ErrNotFound; any
// other non-200 yields *APIError.
func (c *SalesQLClient) Enrich(ctx context.Context, profileURL string) (map[string]any, error) {
	if c.Client == nil {
		return nil, errors.New("salesql: http client is nil")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("salesql: missing api key, set SALESQL_API_KEY")
	}

	q := url.Values{}
	q.Set("linkedin_url", NormalizeProfileURL(profileURL))
	endpoint := fmt.Sprintf("%s/persons/enrich/?%s", strings.TrimRight(c.BaseURL, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.Client.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues("salesql").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: msg}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("salesql: decode response: %w", err)
	}
	if payload == nil {
		return nil, errors.New("salesql: empty response")
	}
	return payload, nil
}
