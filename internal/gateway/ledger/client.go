// Package ledger is the HTTP client the dispatcher uses to talk to the
// execution ledger API. Every mutating call carries a stable Idempotency-Key
// so that retries collapse onto one ledger row.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"copyflow/internal/domain"
	"copyflow/internal/logger"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const maxAttemptsCeiling = 5

// Options configures the client. Zero values fall back to safe defaults.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
}

func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("ledger base url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ledger base url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 || attempts > maxAttemptsCeiling {
		attempts = maxAttemptsCeiling
	}
	base := opts.BackoffBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	capDur := opts.BackoffCap
	if capDur < base {
		capDur = 5 * time.Second
	}
	return &Client{
		baseURL:     parsed,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		backoffBase: base,
		backoffCap:  capDur,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Subscribers returns the enabled followers of a strategy.
func (c *Client) Subscribers(ctx context.Context, strategyID string) ([]domain.Subscriber, error) {
	path := "/v1/copy/subscribers?enabledOnly=true&strategyId=" + url.QueryEscape(strategyID)
	body, _, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var subs []domain.Subscriber
	if err := unmarshalItems(body, &subs); err != nil {
		return nil, fmt.Errorf("parse subscribers response: %w", err)
	}
	return subs, nil
}

// RecentTrades returns the newest source trades of a strategy, newest first.
func (c *Client) RecentTrades(ctx context.Context, strategyID string, limit int) ([]domain.SourceTrade, error) {
	if limit <= 0 {
		limit = 10
	}
	path := "/v1/strategies/" + url.PathEscape(strategyID) + "/trades?limit=" + strconv.Itoa(limit)
	body, _, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var trades []domain.SourceTrade
	if err := unmarshalItems(body, &trades); err != nil {
		return nil, fmt.Errorf("parse trades response: %w", err)
	}
	return trades, nil
}

// PostExecution submits one ledger row. idemSuffix distinguishes the failure
// record of a pair from its primary record; the key is otherwise stable
// across retries.
func (c *Client) PostExecution(ctx context.Context, exec domain.Execution, idemSuffix string) (time.Duration, error) {
	if err := exec.Validate(); err != nil {
		return 0, err
	}
	key := exec.IdempotencyKey() + idemSuffix
	_, latency, err := c.do(ctx, http.MethodPost, "/v1/copy/executions", exec, key)
	return latency, err
}

// do performs one logical request with bounded retries. Transport errors and
// 5xx answers back off and retry; 4xx answers are terminal. Each attempt
// carries a fresh X-Request-Id while the Idempotency-Key stays fixed.
func (c *Client) do(ctx context.Context, method, path string, payload any, idemKey string) ([]byte, time.Duration, error) {
	if c == nil || c.httpClient == nil {
		return nil, 0, fmt.Errorf("ledger client not initialized")
	}
	endpoint, err := c.resolveEndpoint(path)
	if err != nil {
		return nil, 0, err
	}

	var payloadBytes []byte
	if payload != nil {
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, time.Since(start), err
			}
		}

		var body io.Reader
		if payloadBytes != nil {
			body = bytes.NewReader(payloadBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
		if err != nil {
			return nil, time.Since(start), fmt.Errorf("build request: %w", err)
		}
		if payloadBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idemKey != "" {
			req.Header.Set("Idempotency-Key", idemKey)
		}
		req.Header.Set("X-Request-Id", uuid.NewString())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("call ledger api: %w", err)
			if ctx.Err() != nil {
				return nil, time.Since(start), lastErr
			}
			logger.Warnf("[ledger] %s %s attempt=%d transport err=%v", method, path, attempt+1, err)
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read ledger response: %w", readErr)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, time.Since(start), nil
		}
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(data)}
		if !statusErr.Retryable() {
			return nil, time.Since(start), statusErr
		}
		lastErr = statusErr
		logger.Warnf("[ledger] %s %s attempt=%d status=%d", method, path, attempt+1, resp.StatusCode)
	}
	if lastErr == nil {
		lastErr = errors.New("ledger request failed")
	}
	return nil, time.Since(start), fmt.Errorf("exhausted %d attempts: %w", c.maxAttempts, lastErr)
}

// backoff doubles per attempt with up to one base interval of jitter.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase << uint(attempt)
	if d > c.backoffCap || d <= 0 {
		d = c.backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(c.backoffBase) + 1))
	if d+jitter > c.backoffCap {
		return c.backoffCap
	}
	return d + jitter
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) resolveEndpoint(path string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("ledger base url not set")
	}
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = "/"
	}
	query := ""
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		query = trimmed[idx+1:]
		trimmed = trimmed[:idx]
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	base := *c.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/") + trimmed
	base.RawPath = ""
	base.RawQuery = query
	base.Fragment = ""
	return &base, nil
}

// unmarshalItems tolerates both an {"items": [...]} envelope and a bare
// array body.
func unmarshalItems(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	items := gjson.GetBytes(body, "items")
	if items.IsArray() {
		return json.Unmarshal([]byte(items.Raw), out)
	}
	if gjson.ParseBytes(body).IsArray() {
		return json.Unmarshal(body, out)
	}
	if !gjson.GetBytes(body, "items").Exists() {
		return fmt.Errorf("no items in response")
	}
	return nil
}
