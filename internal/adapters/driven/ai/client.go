package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of an error response is kept in the error text
const maxErrorBody = 512

// restClient is the JSON-over-HTTP transport shared by every provider.
// Network failures, timeouts, 429 and 5xx responses wrap the unavailable
// sentinel so callers can retry them; other failures are plain errors.
type restClient struct {
	provider    string
	http        *http.Client
	limiter     *rate.Limiter
	timeout     time.Duration
	unavailable error
}

func newRestClient(provider string, timeout time.Duration, requestsPerSecond float64, unavailable error) *restClient {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	return &restClient{
		provider:    provider,
		http:        &http.Client{},
		limiter:     rate.NewLimiter(limit, burst),
		timeout:     timeout,
		unavailable: unavailable,
	}
}

// do sends in as the JSON body (nil for none) and decodes the response into out.
func (c *restClient) do(ctx context.Context, method, url string, headers map[string]string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %v: %w", c.provider, err, c.unavailable)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", c.provider, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.provider, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %v: %w", c.provider, err, c.unavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %v: %w", c.provider, err, c.unavailable)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s: status %d: %s: %w", c.provider, resp.StatusCode, snippet(respBody), c.unavailable)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s: status %d: %s", c.provider, resp.StatusCode, snippet(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: parse response: %w", c.provider, err)
	}
	return nil
}

func (c *restClient) close() {
	c.http.CloseIdleConnections()
}

func snippet(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
