// Package deliver sends normalized records to the StudySync backend.
package deliver

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hyperifyio/studysync/internal/item"
)

// DefaultBaseURL is the hosted backend used when no api.base is configured.
const DefaultBaseURL = "https://studysync-tyz6.onrender.com"

// ErrUnauthorized reports a missing, expired or rejected API token.
var ErrUnauthorized = errors.New("studysync api rejected the token; sign up or log in and configure api.token")

// HTTPError carries the status and body of a non-2xx response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 300))
}

// Unwrap maps 401/403 to ErrUnauthorized.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Stats is the backend's count of what a bulk call changed.
type Stats struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
}

type bulkResponse struct {
	OK    bool   `json:"ok"`
	Stats Stats  `json:"stats"`
	Error string `json:"error"`
}

// Client posts batches to {BaseURL}/assignments/bulk.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	UserAgent  string
	Retry      RetryConfig
	Logger     zerolog.Logger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return base + path
}

// Bulk upserts records. The backend keys records by source_uid, and every
// attempt of one call carries the same Idempotency-Key so a retried batch
// is not counted twice. An empty batch is not sent.
func (c *Client) Bulk(ctx context.Context, records []item.Record) (Stats, error) {
	if len(records) == 0 {
		return Stats{}, nil
	}
	if strings.TrimSpace(c.Token) == "" {
		return Stats{}, ErrUnauthorized
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return Stats{}, fmt.Errorf("encode batch: %w", err)
	}
	key := uuid.NewString()
	url := c.endpoint("/assignments/bulk")

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Idempotency-Key", key)
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		return req, nil
	}

	c.Logger.Debug().Str("url", url).Int("records", len(records)).Str("idempotency_key", key).Msg("bulk deliver")
	body, err := doWithRetry(ctx, c.httpClient(), build, c.Retry, c.Logger)
	if err != nil {
		return Stats{}, err
	}
	var out bulkResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Stats{}, fmt.Errorf("decode bulk response: %w body=%s", err, snippet(body, 300))
	}
	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = "ok=false"
		}
		return out.Stats, fmt.Errorf("bulk rejected: %s", msg)
	}
	return out.Stats, nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	url := c.endpoint("/health")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode, Body: body}
	}
	return nil
}
