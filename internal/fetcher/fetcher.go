package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Client performs GET requests with a fixed desktop-browser header set
// and automatic retry on transient server errors. One Client is shared
// by the page fetch path, the redirect resolver, and the download
// manager; per-call-site timeouts come from the caller's context.
type Client struct {
	// httpClient is the underlying HTTP client. Redirects are followed
	// by the default policy, so the final URL is read from the
	// response's request.
	httpClient *http.Client

	// userAgent never varies between requests. The mobile page
	// template differs structurally, so a stable desktop identity is
	// required for extraction to work.
	userAgent string

	// maxRetries is the retry budget for retryable status codes.
	maxRetries int

	// backoff is the base delay before the first retry; it doubles on
	// each subsequent attempt.
	backoff time.Duration

	// maxBodySize caps how much of a page response body is read.
	maxBodySize int64
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent overrides the fixed User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxRetries sets the retry budget for transient 5xx responses.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBackoff sets the base retry delay. The delay doubles per
// attempt: backoff, 2*backoff, 4*backoff, ...
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

// WithMaxBodySize caps the page response body size.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		c.maxBodySize = size
	}
}

// NewClient creates a Client with the crawl defaults: a desktop Chrome
// User-Agent, 5 retries on HTTP 500/502/503/504 with exponential
// backoff starting at 2 seconds, and a 10MB body cap.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		maxRetries:  5,
		backoff:     2 * time.Second,
		maxBodySize: 10 * 1024 * 1024, // 10MB
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is the result of one page fetch.
type Response struct {
	// RequestURL is the URL that was asked for.
	RequestURL string

	// FinalURL is the URL the response actually came from, after any
	// redirects. Callers compare it against RequestURL to detect
	// silent redirection.
	FinalURL string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// Body is the raw response body.
	Body []byte

	// Text is the body decoded to UTF-8 text using the resolved
	// charset.
	Text string

	// Encoding is the charset label the body was decoded with.
	Encoding string
}

// Redirected reports whether the final URL differs from the requested
// one.
func (r *Response) Redirected() bool {
	return r.FinalURL != r.RequestURL
}

// retryableStatus reports whether a status code is worth retrying.
// Only transient server errors qualify; everything else propagates.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Fetch performs a GET request against url, retrying transient server
// errors up to the configured budget. The returned Response carries
// both the raw bytes and the charset-decoded text.
//
// Failures surface as *FetchError (network error, context timeout, or
// exhausted retry budget) or *HTTPStatusError (non-2xx final response
// outside the retryable set). Timeouts are the caller's business: wrap
// ctx with the per-call-site budget before calling.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	var lastStatus int

	for attempt := 0; ; attempt++ {
		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, &FetchError{URL: url, Attempts: attempt + 1, Err: err}
		}

		if retryableStatus(resp.StatusCode) {
			drainAndClose(resp)
			lastStatus = resp.StatusCode
			if attempt >= c.maxRetries {
				return nil, &FetchError{
					URL:      url,
					Attempts: attempt + 1,
					Err:      &HTTPStatusError{URL: url, StatusCode: lastStatus},
				}
			}
			if err := c.waitRetry(ctx, attempt); err != nil {
				return nil, &FetchError{URL: url, Attempts: attempt + 1, Err: err}
			}
			continue
		}

		return c.readResponse(url, resp)
	}
}

// get issues a single GET with the fixed browser header set.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.ApplyHeaders(req)
	return c.httpClient.Do(req)
}

// ApplyHeaders sets the fixed desktop-browser header set on a request.
// Exported so the download manager sends the same identity with its
// image requests.
func (c *Client) ApplyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// Do exposes the underlying client for callers that need to stream a
// response body themselves (image downloads).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// readResponse reads and decodes a non-retryable response.
func (c *Client) readResponse(requestURL string, resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	finalURL := requestURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: finalURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, &FetchError{URL: requestURL, Attempts: 1, Err: err}
	}

	text, enc := decodeText(body)
	return &Response{
		RequestURL: requestURL,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		Text:       text,
		Encoding:   enc,
	}, nil
}

// waitRetry sleeps for the exponential backoff of the given attempt,
// aborting early on context cancellation.
func (c *Client) waitRetry(ctx context.Context, attempt int) error {
	delay := c.backoff << attempt
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// drainAndClose discards a response body so the connection can be
// reused across retries.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
