// Package transport is the HTTP leaf used by every provider adapter.
// It exposes plain GET/POST/DELETE round trips that return the raw response
// body, so protocol logic (polling, uploads, multipart) stays in the callers.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Error is a failed round trip: a network-level failure (StatusCode 0) or an
// HTTP response with status >= 400. Message carries the provider's error text.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport: %s", e.Message)
	}
	return fmt.Sprintf("transport: status %d: %s", e.StatusCode, e.Message)
}

// Client issues provider API requests over a single shared http.Client.
type Client struct {
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a transport client. A zero timeout means no client-side
// deadline; callers bound requests through ctx instead.
func NewClient(timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "transport").Logger(),
	}
}

// Send performs one round trip and returns the response body.
// Status >= 400 returns *Error carrying the status and body text; the body
// is still returned so callers can inspect structured error payloads.
func (c *Client) Send(ctx context.Context, method, url string, headers map[string]string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("build request: %v", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	c.log.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request complete")

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return data, &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	return data, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.Send(ctx, http.MethodGet, url, headers, nil)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body io.Reader) ([]byte, error) {
	return c.Send(ctx, http.MethodPost, url, headers, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.Send(ctx, http.MethodDelete, url, headers, nil)
}
