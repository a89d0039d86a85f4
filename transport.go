package bookexport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// defaultUserAgent is sent when no user agent is configured.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// maxResponseSize bounds a single response body. Defaults to 256 MB.
const maxResponseSize int64 = 256 * 1024 * 1024

// Transport fetches raw bytes from vendor endpoints. Implementations must
// carry the user's session credentials (cookies) and return the response body
// unparsed.
type Transport interface {
	Get(ctx context.Context, rawURL string, query url.Values, header http.Header) ([]byte, error)
}

// transportOptions are the settings of an HTTPTransport.
type transportOptions struct {
	client    *http.Client
	jar       http.CookieJar
	userAgent string
	timeout   time.Duration
	maxSize   int64
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*transportOptions)

// WithHTTPClient replaces the underlying client. Cookie jar and timeout
// options still apply to it.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(o *transportOptions) {
		o.client = c
	}
}

// WithCookieJar sets the jar holding the user's vendor session cookies.
func WithCookieJar(jar http.CookieJar) TransportOption {
	return func(o *transportOptions) {
		o.jar = jar
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) TransportOption {
	return func(o *transportOptions) {
		o.userAgent = userAgent
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) TransportOption {
	return func(o *transportOptions) {
		o.timeout = timeout
	}
}

// WithMaxResponseSize bounds the size of a single response body.
func WithMaxResponseSize(n int64) TransportOption {
	return func(o *transportOptions) {
		o.maxSize = n
	}
}

// HTTPTransport is the default Transport, backed by net/http.
// It is safe for concurrent use.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
	maxSize   int64
}

// NewHTTPTransport constructs an HTTPTransport.
func NewHTTPTransport(options ...TransportOption) *HTTPTransport {
	opts := transportOptions{
		userAgent: defaultUserAgent,
		maxSize:   maxResponseSize,
	}
	for _, opt := range options {
		opt(&opts)
	}

	client := &http.Client{}
	if opts.client != nil {
		c := *opts.client
		client = &c
	}
	if opts.jar != nil {
		client.Jar = opts.jar
	}
	if opts.timeout > 0 {
		client.Timeout = opts.timeout
	}

	return &HTTPTransport{
		client:    client,
		userAgent: opts.userAgent,
		maxSize:   opts.maxSize,
	}
}

// Get performs a GET of rawURL with query merged into any query it already
// has. A non-2xx response or network failure is returned as a *FetchError.
func (t *HTTPTransport) Get(ctx context.Context, rawURL string, query url.Values, header http.Header) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("bookexport: parse URL %q: %v: %w", rawURL, err, ErrMalformedInput)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	// Read up to maxSize+1 to detect an oversized body.
	buf := bytes.NewBuffer(nil)
	n, err := io.Copy(buf, io.LimitReader(resp.Body, t.maxSize+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if n > t.maxSize {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("response exceeds %d bytes", t.maxSize)}
	}
	return buf.Bytes(), nil
}
