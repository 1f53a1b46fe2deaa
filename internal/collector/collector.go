package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"reeltrack/internal/domain"
	"reeltrack/internal/service"
)

// Config holds collection API client configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client implements service.Collector against an HTTP collection API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "collector"),
	}
}

var _ service.Collector = (*Client)(nil)

// Collect fetches content records for one source locator. Transient HTTP
// failures are retried with exponential backoff; the caller sees only the
// final error.
func (c *Client) Collect(ctx context.Context, locator string, params service.CollectParams) ([]domain.ContentRecord, error) {
	q := url.Values{}
	q.Set("target", locator)
	q.Set("min_views", strconv.FormatInt(params.MinViews, 10))
	q.Set("max_age_days", strconv.Itoa(params.MaxAgeDays))
	reqURL := c.baseURL + "/collect?" + q.Encode()

	var resp *apiResponse
	var err error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err = c.doRequest(ctx, reqURL, params.AuthToken)
		if err == nil {
			break
		}

		if attempt == c.maxAttempts {
			return nil, fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"locator", locator,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	records := c.transform(resp.Items)
	c.logger.Debug("collected", "locator", locator, "records", len(records))
	return records, nil
}

func (c *Client) doRequest(ctx context.Context, reqURL, authToken string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ReelTrack/1.0")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &apiResp, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Client) transform(items []apiItem) []domain.ContentRecord {
	records := make([]domain.ContentRecord, 0, len(items))

	for _, it := range items {
		rec := domain.ContentRecord{
			URL:          it.URL,
			Views:        it.Views,
			Likes:        it.Likes,
			Comments:     it.Comments,
			AuthorHandle: it.AuthorHandle,
			AuthorName:   it.AuthorName,
			DurationSec:  it.DurationSec,
			Caption:      it.Caption,
		}

		if it.PublishedAt != "" {
			t, err := time.Parse(time.RFC3339, it.PublishedAt)
			if err != nil {
				c.logger.Warn("failed to parse publish date",
					"url", it.URL,
					"published_at", it.PublishedAt,
				)
			} else {
				rec.PublishedAt = &t
			}
		}

		records = append(records, rec)
	}

	return records
}
