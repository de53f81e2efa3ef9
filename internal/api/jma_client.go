package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"tenki/internal/config"
	"tenki/internal/metrics"
	"tenki/internal/models"
)

// Client fetches the JMA area metadata and per-region forecast documents.
// It never retries: each call performs at most one request.
type Client struct {
	client      *http.Client
	limiter     *rate.Limiter
	areaURL     string
	forecastURL string
}

type Option func(*Client)

// WithHTTPClient replaces the default transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithRateLimit spaces out requests; rps <= 0 leaves the client unlimited
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithAreaURL(u string) Option {
	return func(c *Client) {
		c.areaURL = u
	}
}

// WithForecastURL sets the forecast URL template; %s is replaced by the region code
func WithForecastURL(template string) Option {
	return func(c *Client) {
		c.forecastURL = template
	}
}

// NewJMAClient creates a new JMA client pointed at the public bosai endpoints
func NewJMAClient(opts ...Option) *Client {
	c := &Client{
		client:      &http.Client{},
		areaURL:     config.DefaultAreaURL,
		forecastURL: config.DefaultForecastURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewJMAClientFromConfig builds a client from the jma section of the config file
func NewJMAClientFromConfig(cfg *config.Config) *Client {
	return NewJMAClient(
		WithHTTPClient(&http.Client{Timeout: cfg.JMA.RequestTimeout}),
		WithRateLimit(cfg.JMA.RateLimit, cfg.JMA.Burst),
		WithAreaURL(cfg.JMA.AreaURL),
		WithForecastURL(cfg.JMA.ForecastURL),
	)
}

// FetchJSON performs a GET and returns the body if it is valid JSON
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	return c.fetch(ctx, "json", rawURL)
}

// GetAreaDocument fetches the region hierarchy document.
// Its structure is left to the area package, which tolerates missing fields.
func (c *Client) GetAreaDocument(ctx context.Context) (json.RawMessage, error) {
	return c.fetch(ctx, "area", c.areaURL)
}

// GetForecast fetches and decodes the forecast sections for one region code
func (c *Client) GetForecast(ctx context.Context, code string) ([]models.ForecastSection, error) {
	u := c.BuildForecastURL(code)

	body, err := c.fetch(ctx, "forecast", u)
	if err != nil {
		return nil, err
	}

	var sections []models.ForecastSection
	if err := json.Unmarshal(body, &sections); err != nil {
		return nil, decodeError(u, fmt.Errorf("failed to decode forecast sections: %w", err))
	}

	return sections, nil
}

// BuildForecastURL returns the forecast document URL for a region code
func (c *Client) BuildForecastURL(code string) string {
	return fmt.Sprintf(c.forecastURL, url.PathEscape(code))
}

func (c *Client) fetch(ctx context.Context, endpoint, rawURL string) (body json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordRemoteFetch(endpoint, time.Since(start), err)
	}()

	if c.limiter != nil {
		if waitErr := c.limiter.Wait(ctx); waitErr != nil {
			return nil, networkError(rawURL, fmt.Errorf("rate limit wait canceled: %w", waitErr))
		}
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if reqErr != nil {
		return nil, networkError(rawURL, fmt.Errorf("failed to build request: %w", reqErr))
	}
	req.Header.Set("Accept", "application/json")

	resp, doErr := c.client.Do(req)
	if doErr != nil {
		return nil, networkError(rawURL, fmt.Errorf("failed to fetch: %w", doErr))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, networkError(rawURL, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(snippet)))
	}

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, networkError(rawURL, fmt.Errorf("failed to read body: %w", readErr))
	}

	if !json.Valid(data) {
		return nil, decodeError(rawURL, fmt.Errorf("response body is not valid JSON (%d bytes)", len(data)))
	}

	return json.RawMessage(data), nil
}
