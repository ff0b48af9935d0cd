// Package http is the fluent, retry-aware outbound client used by the REST
// gateway driver to talk to the hosted backend.
//
//	api := http.NewClient(baseURL, http.WithHeader("apikey", key))
//	resp, err := api.Get("/rest/v1/menu_items").
//	    Query("select", "*").
//	    Query("order", "name.asc").
//	    Send(ctx)
//	var items []models.MenuItem
//	err = resp.JSON(&items)
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	gohttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uvci/resto/pkg/logger"
)

var defaultTransport = &gohttp.Transport{
	Proxy:               gohttp.ProxyFromEnvironment,
	MaxIdleConns:        200,
	MaxIdleConnsPerHost: 100,
	IdleConnTimeout:     90 * time.Second,
}

// Client sends requests relative to a base URL with a fixed set of headers.
type Client struct {
	base    string
	headers map[string]string
	hc      *gohttp.Client
	timeout time.Duration
}

type Option func(*Client)

func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithHTTPClient swaps the underlying client, e.g. for an httptest server.
func WithHTTPClient(hc *gohttp.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTimeout sets the default per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(base string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(base, "/"),
		headers: map[string]string{"Accept": "application/json"},
		hc:      &gohttp.Client{Transport: defaultTransport},
		timeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.base }

func (c *Client) Get(path string) *Request    { return c.newRequest(gohttp.MethodGet, path) }
func (c *Client) Post(path string) *Request   { return c.newRequest(gohttp.MethodPost, path) }
func (c *Client) Put(path string) *Request    { return c.newRequest(gohttp.MethodPut, path) }
func (c *Client) Patch(path string) *Request  { return c.newRequest(gohttp.MethodPatch, path) }
func (c *Client) Delete(path string) *Request { return c.newRequest(gohttp.MethodDelete, path) }

func (c *Client) newRequest(method, path string) *Request {
	h := make(map[string]string, len(c.headers)+2)
	for k, v := range c.headers {
		h[k] = v
	}
	return &Request{
		client:    c,
		method:    method,
		path:      path,
		headers:   h,
		query:     url.Values{},
		timeout:   c.timeout,
		retries:   1,
		retryWait: 200 * time.Millisecond,
	}
}

// Request is a fluent request builder.
type Request struct {
	client    *Client
	method    string
	path      string
	headers   map[string]string
	query     url.Values
	body      any
	timeout   time.Duration
	retries   int
	retryWait time.Duration
}

func (r *Request) Header(key, value string) *Request {
	r.headers[key] = value
	return r
}

// Bearer sets Authorization: Bearer <token>. An empty token is ignored.
func (r *Request) Bearer(token string) *Request {
	if token == "" {
		return r
	}
	return r.Header("Authorization", "Bearer "+token)
}

// Query appends a query parameter. Repeated keys are kept.
func (r *Request) Query(key, value string) *Request {
	r.query.Add(key, value)
	return r
}

// Body sets the request body. Strings and byte slices are sent raw; anything
// else is JSON encoded.
func (r *Request) Body(v any) *Request {
	r.body = v
	return r
}

func (r *Request) Timeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// Retry sets the total number of attempts and the first backoff, which
// doubles on each attempt. Only transport errors and 5xx answers are retried.
func (r *Request) Retry(n int, wait time.Duration) *Request {
	if n < 1 {
		n = 1
	}
	r.retries = n
	r.retryWait = wait
	return r
}

// URL is the absolute request URL including the query string.
func (r *Request) URL() string {
	u := r.client.base + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	return u
}

// Send executes the request. A non-2xx answer is returned as a Response, not
// an error; use Throw to turn it into one.
func (r *Request) Send(ctx context.Context) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		resp, err := r.do(ctx)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			if attempt == r.retries {
				return resp, nil
			}
			err = resp.Throw()
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < r.retries {
			backoff := time.Duration(float64(r.retryWait) * math.Pow(2, float64(attempt-1)))
			logger.Warn("http: request failed, retrying",
				"method", r.method, "path", r.path, "attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("http: %s %s: %w", r.method, r.path, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("http: %d attempt(s) failed for %s %s: %w", r.retries, r.method, r.path, lastErr)
}

func (r *Request) do(ctx context.Context) (*Response, error) {
	body, ct, err := r.buildBody()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := gohttp.NewRequestWithContext(ctx, r.method, r.URL(), body)
	if err != nil {
		return nil, fmt.Errorf("http: build request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := r.client.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http: read body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Raw: raw}, nil
}

func (r *Request) buildBody() (io.Reader, string, error) {
	switch v := r.body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(v), "text/plain", nil
	case []byte:
		return bytes.NewReader(v), "application/octet-stream", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("http: marshal body: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

// Response is a fully read HTTP answer.
type Response struct {
	StatusCode int
	Headers    gohttp.Header
	Raw        []byte
}

func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

func (r *Response) JSON(dest any) error {
	if err := json.Unmarshal(r.Raw, dest); err != nil {
		return fmt.Errorf("http: decode JSON: %w", err)
	}
	return nil
}

func (r *Response) Text() string { return string(r.Raw) }

func (r *Response) Header(key string) string { return r.Headers.Get(key) }

// StatusError is a non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: request failed with status %d: %s", e.Code, e.Body)
}

// Throw returns a *StatusError when the status is not 2xx.
func (r *Response) Throw() error {
	if r.OK() {
		return nil
	}
	return &StatusError{Code: r.StatusCode, Body: string(r.Raw)}
}

// StatusCode extracts the HTTP status from an error returned by Throw.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
