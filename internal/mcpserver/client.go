package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/tokensafe/internal/analysis"
	"github.com/mbd888/tokensafe/internal/onchain"
	"github.com/mbd888/tokensafe/internal/paywall"
	"github.com/mbd888/tokensafe/internal/retry"
)

// Config holds the configuration for connecting to the TokenSafe API.
type Config struct {
	APIURL     string        // Base URL, e.g. "http://localhost:8080"
	Timeout    time.Duration // per request; default 60s
	MaxRetries int           // retries after a transport error or 5xx
	RetryDelay time.Duration // first retry wait; doubled each time
}

// Client is a pure HTTP client for the TokenSafe API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Policy
}

// NewClient creates a new client for the TokenSafe API.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetries + 1,
			BaseDelay:   cfg.RetryDelay,
			MaxDelay:    10 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PaymentRequiredError is returned when the API is paywalled and the call
// carried no proof of payment.
type PaymentRequiredError struct {
	Requirement paywall.PaymentRequirement
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment required: %s %s on chain %d to %s",
		e.Requirement.Price, e.Requirement.Currency, e.Requirement.ChainID, e.Requirement.Recipient)
}

// doRequest makes an HTTP request to the API and returns the response body.
// Transport errors and 5xx responses are retried per the client policy.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var data []byte
	if body != nil {
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var out json.RawMessage
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var reqBody io.Reader
		if data != nil {
			reqBody = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return retry.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusPaymentRequired {
			var pr PaymentRequiredError
			if json.Unmarshal(respBody, &pr.Requirement) == nil && pr.Requirement.Price != "" {
				return retry.Permanent(&pr)
			}
		}
		if resp.StatusCode >= 400 {
			var apiErr apiError
			var msg string
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
				msg = fmt.Sprintf("API error (%d): %s", resp.StatusCode, apiErr.Message)
			} else {
				msg = fmt.Sprintf("API error (%d): %s", resp.StatusCode, string(respBody))
			}
			if resp.StatusCode >= 500 {
				return errors.New(msg)
			}
			return retry.Permanent(errors.New(msg))
		}

		out = json.RawMessage(respBody)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeToken runs one analysis.
func (c *Client) AnalyzeToken(ctx context.Context, address string, chainID int64) (*analysis.Report, error) {
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/analyze", nil, analysis.AnalyzeRequest{
		TokenAddress: address,
		ChainID:      chainID,
	})
	if err != nil {
		return nil, err
	}
	var report analysis.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// AnalyzeBatch analyzes several tokens in one call. Items come back in
// request order.
func (c *Client) AnalyzeBatch(ctx context.Context, tokens []analysis.TokenRequest) ([]analysis.BatchItem, error) {
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/analyze/batch", nil, analysis.BatchRequest{Tokens: tokens})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []analysis.BatchItem `json:"results"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return resp.Results, nil
}

// GetTokenSafety runs one analysis through the path-style route.
func (c *Client) GetTokenSafety(ctx context.Context, address string, chainID int64) (*analysis.Report, error) {
	q := url.Values{}
	q.Set("chainId", strconv.FormatInt(chainID, 10))
	raw, err := c.doRequest(ctx, http.MethodGet, "/v1/tokens/"+url.PathEscape(address)+"/safety", q, nil)
	if err != nil {
		return nil, err
	}
	var report analysis.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// ListChains returns the chains the service can analyze.
func (c *Client) ListChains(ctx context.Context) ([]onchain.ChainInfo, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/v1/chains", nil, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Chains []onchain.ChainInfo `json:"chains"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode chains: %w", err)
	}
	return resp.Chains, nil
}
