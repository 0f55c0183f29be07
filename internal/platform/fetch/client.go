// Package fetch is the outbound HTTP client used for publishers and
// practitioner directories. Every call is bounded by the client timeout.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBody caps how much of a response is read.
	DefaultMaxBody = 512 << 20
)

// ErrBodyTooLarge is returned by body reads once a response exceeds the cap.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	maxBody    int64
}

// NewClient returns a client whose calls each time out after timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		userAgent:  userAgent,
		maxBody:    DefaultMaxBody,
	}
}

// WithMaxBody sets the response size cap. Non-positive values keep the
// current cap.
func (c *Client) WithMaxBody(n int64) *Client {
	if n > 0 {
		c.maxBody = n
	}
	return c
}

// Get issues a GET and hands the body to fn. The timeout covers fn too, so a
// slow body read cannot outlive it.
func (c *Client) Get(ctx context.Context, url, accept string, fn func(body io.Reader) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", url, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{URL: url, Status: resp.StatusCode}
	}
	return fn(&cappedReader{r: resp.Body, remaining: c.maxBody})
}

// cappedReader fails with ErrBodyTooLarge instead of ending early, so a
// truncated body is never mistaken for a complete one.
type cappedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (r *cappedReader) Read(p []byte) (int, error) {
	if r.exceeded {
		return 0, ErrBodyTooLarge
	}
	// Read one byte past the cap to detect overflow.
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.r.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, ErrBodyTooLarge
	}
	return n, err
}

// GetJSON decodes a JSON response body into v.
func (c *Client) GetJSON(ctx context.Context, url, accept string, v interface{}) error {
	return c.Get(ctx, url, accept, func(body io.Reader) error {
		if err := json.NewDecoder(body).Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", url, err)
		}
		return nil
	})
}
