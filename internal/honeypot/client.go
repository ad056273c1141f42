// Package honeypot is the reputation source: it queries a third-party
// honeypot-detection API for one token and normalizes the answer into a
// risk.ReputationRecord.
//
// Fetch never returns an error. Timeouts, non-2xx responses and unparseable
// bodies are retried with exponential backoff; once retries are exhausted a
// failure record with a neutral score is returned instead.
package honeypot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/tokensafe/internal/circuitbreaker"
	"github.com/mbd888/tokensafe/internal/logging"
	"github.com/mbd888/tokensafe/internal/metrics"
	"github.com/mbd888/tokensafe/internal/retry"
	"github.com/mbd888/tokensafe/internal/risk"
	"github.com/mbd888/tokensafe/internal/traces"
	"github.com/mbd888/tokensafe/internal/validation"
)

// Defaults for Config fields left at zero.
const (
	DefaultBaseURL    = "https://api.honeypot.is/v2/IsHoneypot"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = time.Second

	// BreakerKey is the circuit breaker key for the upstream API.
	BreakerKey = "honeypot"

	maxBodySize = 2 << 20
)

// ErrMalformedBody is returned when the upstream body is not JSON at all.
var ErrMalformedBody = errors.New("honeypot: malformed response body")

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("honeypot: upstream returned %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("honeypot: upstream returned %d", e.Code)
}

// Config for the reputation client.
type Config struct {
	BaseURL string
	APIKey  string // sent as X-API-KEY when set
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after the first.
	MaxRetries int
	// RetryDelay is the base of the exponential backoff.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Client fetches reputation records. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBreaker guards the upstream with a circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// New creates a reputation client. Zero-valued config fields take defaults.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attempts is the total number of calls Fetch makes before giving up.
func (c *Client) Attempts() int {
	return c.cfg.MaxRetries + 1
}

// Fetch returns the reputation record for address on chainID.
func (c *Client) Fetch(ctx context.Context, address string, chainID int64) risk.ReputationRecord {
	addr, ok := validation.NormalizeAddress(address)
	ctx = logging.WithToken(ctx, addr, chainID)
	if !ok {
		logging.L(ctx).Warn("reputation lookup for malformed address")
	}

	ctx, span := traces.StartSpan(ctx, "honeypot.Fetch",
		traces.Source(string(risk.SourceReputation)),
		traces.TokenAddr(addr),
		traces.ChainID(chainID),
	)
	defer span.End()

	start := time.Now()
	payload, err := c.fetchWithRetry(ctx, addr, chainID)
	metrics.SourceDuration.WithLabelValues(string(risk.SourceReputation)).Observe(time.Since(start).Seconds())

	if err != nil {
		traces.Fail(span, err)
		metrics.SourceResultsTotal.WithLabelValues(string(risk.SourceReputation), string(risk.StatusError)).Inc()

		msg := fmt.Sprintf("reputation lookup failed after %d attempts: %v", c.Attempts(), err)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			msg = "reputation lookup skipped: " + err.Error()
		}
		logging.L(ctx).Warn("reputation source unavailable", "error", err)
		return risk.ReputationFailure(msg)
	}

	metrics.SourceResultsTotal.WithLabelValues(string(risk.SourceReputation), string(risk.StatusOK)).Inc()
	return Normalize(payload)
}

func (c *Client) fetchWithRetry(ctx context.Context, addr string, chainID int64) (map[string]any, error) {
	policy := retry.Policy{
		MaxAttempts: c.Attempts(),
		BaseDelay:   c.cfg.RetryDelay,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			metrics.UpstreamRetriesTotal.WithLabelValues(string(risk.SourceReputation)).Inc()
			logging.L(ctx).Info("retrying reputation lookup",
				"attempt", attempt+1,
				"wait_ms", wait.Milliseconds(),
				"error", err,
			)
		},
	}

	var payload map[string]any
	call := func() error {
		return policy.Do(ctx, func(ctx context.Context) error {
			p, err := c.get(ctx, addr, chainID)
			if err != nil {
				return err
			}
			payload = p
			return nil
		})
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.ExecuteCtx(ctx, BreakerKey, call)
	} else {
		err = call()
	}
	return payload, err
}

// get performs one attempt, bounded by the per-attempt timeout.
func (c *Client) get(ctx context.Context, addr string, chainID int64) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("honeypot: invalid base URL: %w", err))
	}
	q := u.Query()
	q.Set("address", addr)
	q.Set("chainID", strconv.FormatInt(chainID, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("honeypot: create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("honeypot: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("honeypot: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	// Valid JSON of an unexpected shape is missing data, not a failure.
	payload, ok := decoded.(map[string]any)
	if !ok {
		payload = map[string]any{}
	}
	return payload, nil
}
