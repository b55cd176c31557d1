package rpchealth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Static errors for health checks.
var (
	// ErrUnhealthy is returned when the node answers but does not report "ok".
	ErrUnhealthy = errors.New("rpchealth: node unhealthy")
	// ErrServerError is returned when the node returns a 5xx status code.
	ErrServerError = errors.New("rpchealth: server error")
	// ErrRateLimited is returned when the node returns a 429 status code.
	ErrRateLimited = errors.New("rpchealth: rate limited")
	// ErrRequestFailed is returned when the node returns another non-2xx status code.
	ErrRequestFailed = errors.New("rpchealth: request failed")
)

// Checker checks a single endpoint.
type Checker interface {
	// Check returns nil if the endpoint is healthy.
	Check(ctx context.Context, endpoint string) error
}

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
}

// rpcResponse is the subset of a JSON-RPC 2.0 response the checker reads.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HTTPChecker calls the JSON-RPC getHealth method over HTTP.
type HTTPChecker struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// CheckerOption is a function that configures an HTTPChecker.
type CheckerOption func(*HTTPChecker)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) CheckerOption {
	return func(hc *HTTPChecker) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) CheckerOption {
	return func(hc *HTTPChecker) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) CheckerOption {
	return func(hc *HTTPChecker) {
		hc.baseBackoff = d
	}
}

// NewHTTPChecker creates a new HTTPChecker. Per-check deadlines come from the
// caller's context.
func NewHTTPChecker(opts ...CheckerOption) *HTTPChecker {
	c := &HTTPChecker{
		httpClient:  &http.Client{},
		maxRetries:  1,
		baseBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify interface implementation at compile time.
var _ Checker = (*HTTPChecker)(nil)

// Check implements Checker. A node is healthy when getHealth returns "ok".
func (c *HTTPChecker) Check(ctx context.Context, endpoint string) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getHealth"})
	if err != nil {
		return fmt.Errorf("rpchealth: marshal request: %w", err)
	}

	var resp rpcResponse
	if err := c.doRequestWithRetry(ctx, endpoint, body, &resp); err != nil {
		return err
	}

	if resp.Error != nil {
		return fmt.Errorf("%w: %d %s", ErrUnhealthy, resp.Error.Code, resp.Error.Message)
	}

	var result string
	if err := json.Unmarshal(resp.Result, &result); err != nil || result != "ok" {
		return fmt.Errorf("%w: result %s", ErrUnhealthy, string(resp.Result))
	}
	return nil
}

// doRequestWithRetry performs the request with exponential backoff retry.
func (c *HTTPChecker) doRequestWithRetry(ctx context.Context, url string, body []byte, result any) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("rpchealth: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, url, body, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) || ctx.Err() != nil {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("rpchealth: max retries exceeded: %w", lastErr)
}

// doRequest performs a single JSON-RPC POST.
func (c *HTTPChecker) doRequest(ctx context.Context, url string, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpchealth: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("rpchealth: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &retryableError{err: fmt.Errorf("rpchealth: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("rpchealth: unmarshal response: %w", err)
	}
	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
