package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mqerk/notisync/internal/credential"
	"github.com/mqerk/notisync/internal/model"
)

// Client is a thin HTTP client for the student portal REST API. It handles
// Bearer token authentication, JSON decoding, and bounded retry with
// exponential backoff on transient network failures. Responses carrying an
// error status are never retried.
//
// The client itself does not log; callers decide what a failure means.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	maxAttempts int
	backoffBase time.Duration

	// sleep waits between attempts; swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a portal API client. The baseURL should be the API
// root (e.g. https://portal.example.com/api). maxAttempts and backoffBase
// bound the retry loop; zero values fall back to 3 attempts and 250ms.
func NewClient(baseURL, token string, maxAttempts int, backoffBase time.Duration) *Client {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = 250 * time.Millisecond
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		sleep:       sleepCtx,
	}
}

// NewClientFromKeyring builds a client whose bearer token is read from the
// system keyring.
func NewClientFromKeyring(cfg model.APIConfig) (*Client, error) {
	token, err := credential.Token()
	if err != nil {
		return nil, fmt.Errorf("loading portal token: %w", err)
	}
	return NewClient(cfg.BaseURL, token, cfg.MaxAttempts, cfg.BackoffBase), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// get performs a GET request with retry on transient failure.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, result)
}

// put performs a PUT request with retry on transient failure.
func (c *Client) put(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodPut, path, result)
}

// delete performs a DELETE request with retry on transient failure.
func (c *Client) delete(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodDelete, path, result)
}

// do issues the request up to maxAttempts times. A failure with no
// response waits backoffBase × 2^attempt and retries; no wait follows the
// final attempt. A response with an error status fails immediately as a
// StatusError.
func (c *Client) do(ctx context.Context, method, path string, result interface{}) error {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &TransientError{Err: err}
			if attempt < c.maxAttempts-1 {
				if serr := c.sleep(ctx, c.backoffBase<<uint(attempt)); serr != nil {
					return serr
				}
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}
		return nil
	}

	return lastErr
}
