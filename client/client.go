// Package client builds the HTTP client shared by the YouTube collaborators
// and provides the generic GET-to-file fetch used for cover thumbnails.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/ytget/yt2ogg/internal/logger"
)

// DefaultUserAgent is a desktop browser user agent sent with every request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// defaultTransport is a tuned HTTP transport reused across clients. It bounds
// connection setup only; request duration is unbounded unless a client
// timeout is configured.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	// Response decoding is done by the callers that ask for compression.
	DisableCompression: true,
	ReadBufferSize:     16 * 1024,
	WriteBufferSize:    16 * 1024,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	// Timeout bounds a whole request including the body. Zero means no limit.
	Timeout   time.Duration
	UserAgent string
	ProxyURL  string
}

// Client wraps http.Client with default headers. Every call is a single
// attempt.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string

	log *logger.ComponentLogger
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// New creates a Client with the tuned transport and no request timeout.
func New() *Client {
	return &Client{
		HTTPClient: &http.Client{Transport: defaultTransport},
		UserAgent:  DefaultUserAgent,
		log:        logger.WithComponent(logger.ComponentClient),
	}
}

// NewWith creates a Client from cfg. An unparsable proxy URL is an error.
func NewWith(cfg Config) (*Client, error) {
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	tr := defaultTransport.Clone()
	if cfg.ProxyURL != "" {
		proxyFunc, err := proxyFromURLString(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		tr.Proxy = proxyFunc
	}

	timeout := cfg.Timeout
	if timeout < 0 {
		timeout = 0
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout, Transport: tr},
		UserAgent:  ua,
		log:        logger.WithComponent(logger.ComponentClient),
	}, nil
}

// Do sends req after filling in the User-Agent header when it is missing.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		ua := c.UserAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		req.Header.Set("User-Agent", ua)
	}
	c.logger().Debug("request", logger.Fields{"method": req.Method, "url": req.URL.Redacted()})
	return c.httpClient().Do(req)
}

// Get performs a single GET. Non-2xx answers are returned as *StatusError
// with the body already closed.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Fetch downloads rawURL into dest and returns the number of bytes written.
// dest is removed if the transfer fails part way.
func (c *Client) Fetch(ctx context.Context, rawURL, dest string) (int64, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return n, fmt.Errorf("write %s: %w", dest, err)
	}

	c.logger().Debug("fetched", logger.Fields{"dest": dest, "bytes": n})
	return n, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Transport: defaultTransport}
	}
	return c.HTTPClient
}

func (c *Client) logger() *logger.ComponentLogger {
	if c.log == nil {
		c.log = logger.WithComponent(logger.ComponentClient)
	}
	return c.log
}

// proxyFromURLString parses a proxy URL and returns a Proxy function.
func proxyFromURLString(raw string) (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q needs a scheme and host", raw)
	}
	return http.ProxyURL(u), nil
}
