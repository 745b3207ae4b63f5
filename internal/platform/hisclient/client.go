// Package hisclient is the HTTP transport shared by every call to the HIS
// (Medihelp) API. It builds escaped URLs from path segments, sends JSON
// bodies, and hands back the raw status and body so callers can decide what
// a non-2xx answer means for their step.
package hisclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/platform/payload"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
	errBodyPreview = 300
)

// StatusError is returned when the HIS answers with a non-2xx status.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > errBodyPreview {
		body = body[:errBodyPreview]
	}
	if body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Status, body)
}

// Response is a completed upstream exchange.
type Response struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Value decodes the body into a tagged payload value.
func (r *Response) Value() payload.Value {
	return payload.Decode(r.Body)
}

// Err returns a *StatusError for non-2xx responses and nil otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{
		Method: r.Method,
		URL:    r.URL,
		Status: r.Status,
		Body:   strings.TrimSpace(string(r.Body)),
	}
}

// Client talks to one HIS API base URL.
type Client struct {
	base       string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout replaces the HTTP client with one using the given timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.httpClient = &http.Client{Timeout: d}
	}
}

// WithLogger sets the logger used for per-request debug lines.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a Client for base, e.g. http://host:8070/Medihelp-api.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Base returns the configured base URL.
func (c *Client) Base() string { return c.base }

// URL joins path segments onto the base, escaping each segment.
func (c *Client) URL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.base)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// Get issues a GET to the URL built from segments.
func (c *Client) Get(ctx context.Context, segments ...string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, c.URL(segments...), nil)
}

// Do sends a request to an absolute URL. A non-nil body is encoded as JSON.
// Only transport failures are returned as errors; status handling is left to
// the caller through Response.Err.
func (c *Client) Do(ctx context.Context, method, target string, body interface{}) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response %s %s: %w", method, target, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("his request")

	return &Response{
		Method: method,
		URL:    target,
		Status: resp.StatusCode,
		Body:   data,
	}, nil
}
