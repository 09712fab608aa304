package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/clinicscan/internal/model"
)

// Default request settings.
const (
	DefaultUserAgent      = "myfootdr-archive-scraper/0.1 (https://www.myfootdr.com.au/)"
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultMaxBodySize    = int64(model.MaxPageSize)
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultAcceptLanguage = "en-AU,en;q=0.9"
	maxRedirects          = 10
)

// errInvalidRequest marks requests that cannot be built; retrying them is pointless.
var errInvalidRequest = errors.New("invalid request")

// Response is a successful fetch.
type Response struct {
	// URL is the final address after redirects.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentType is the Content-Type header value.
	ContentType string

	// Body is the response body, at most the configured body size.
	Body []byte
}

// Client fetches archived pages over HTTP.
// It applies headers, per-attempt timeouts, retries, rate limiting and an
// optional SOCKS5 proxy. A Client is safe for concurrent use.
//
// Design decision: Retries live here, not in the crawler. The crawler only
// needs "document or failure"; how many times the archive was asked is a
// transport concern.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	headers      map[string]string
	cookie       string
	timeout      time.Duration
	maxRetries   int
	retryDelay   time.Duration
	maxBodySize  int64
	limiter      *HostLimiter
	proxyAddress string
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the timeout of a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets the number of attempts per fetch.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the base delay between attempts.
// The delay grows linearly with the attempt number.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeaders sets extra request headers.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithCookie sets a raw Cookie header value (e.g., "session=abc").
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithMaxBodySize sets the maximum number of body bytes read.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		c.maxBodySize = size
	}
}

// WithLimiter sets the host rate limiter.
func WithLimiter(l *HostLimiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithProxy routes requests through a SOCKS5 proxy.
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client.
// It fails only when the proxy address is malformed; the proxy is not
// contacted until the first request.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
	if c.proxyAddress != "" {
		dial, err := socks5DialContext(c.proxyAddress)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil
		transport.DialContext = dial
	}

	c.httpClient = &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c, nil
}

// socks5DialContext builds a dial function through the SOCKS5 proxy at address.
func socks5DialContext(address string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	u, err := parseProxyAddress(address)
	if err != nil {
		return nil, err
	}
	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// parseProxyAddress accepts "host:port" or "socks5://[user:pass@]host:port".
func parseProxyAddress(address string) (*url.URL, error) {
	if !strings.Contains(address, "://") {
		address = "socks5://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, ErrInvalidProxyAddress
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, ErrInvalidProxyAddress
	}
	if u.Scheme == "socks5h" {
		u.Scheme = "socks5"
	}
	if !isValidHostPort(u.Host) || (u.Path != "" && u.Path != "/") {
		return nil, ErrInvalidProxyAddress
	}
	return u, nil
}

// isValidHostPort checks for a non-empty host and a port in 1..65535.
func isValidHostPort(hostport string) bool {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the configured proxy address, or "".
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// Fetch returns the HTML body of addr.
// Failures after all attempts wrap ErrRetriesExhausted; a non-HTML response
// returns ErrNotHTML at once.
func (c *Client) Fetch(ctx context.Context, addr string) ([]byte, error) {
	resp, err := c.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !model.IsHTML(resp.ContentType) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotHTML, addr, resp.ContentType)
	}
	return resp.Body, nil
}

// Get fetches addr, retrying on network errors and non-2xx responses.
func (c *Client) Get(ctx context.Context, addr string) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 && c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.retryDelay):
			}
		}

		c.logger.Debug("fetching", "url", addr, "attempt", attempt, "max_attempts", c.maxRetries)
		resp, err := c.do(ctx, addr)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, errInvalidRequest) {
			return nil, err
		}

		lastErr = err
		c.logger.Warn("request failed", "url", addr, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, addr, c.maxRetries, lastErr)
}

// do performs one attempt.
func (c *Client) do(ctx context.Context, addr string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.WaitURL(ctx, addr); err != nil {
			return nil, err
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", defaultAccept)
	req.Header.Set("Accept-Language", defaultAcceptLanguage)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // draining for connection reuse
		return nil, fmt.Errorf("%w: %d for %s", ErrStatus, resp.StatusCode, addr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
