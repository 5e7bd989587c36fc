package binance

import (
	"net/http"
	"time"

	"portfoliowatch/internal/provider/ratelimit"
)

// DefaultBaseURL is the public, key-less Binance spot API root.
const DefaultBaseURL = "https://api.binance.com"

// Name is reported as the quote source.
const Name = "Binance"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=binance_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Binance ticker price endpoint.
type Client struct {
	// baseURL is the API root, without a trailing slash.
	baseURL string
	// httpClient performs the requests.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// limiter paces individual requests; nil means unlimited.
	limiter ratelimit.Limiter
	// requestTimeout bounds a single request; zero means no deadline.
	requestTimeout time.Duration
	// maxConcurrency bounds in-flight requests per Fetch; <= 0 means one
	// goroutine per symbol.
	maxConcurrency int
	now            func() time.Time
}

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
			baseURL = baseURL[:len(baseURL)-1]
		}
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithLimiter paces every outgoing request through l.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithRequestTimeout bounds each single ticker request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithMaxConcurrency bounds the number of requests a Fetch keeps in flight.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) {
		c.maxConcurrency = n
	}
}

// WithClock overrides the clock used to stamp quotes.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Binance client.
func NewClient(options ...Option) *Client {
	var client = &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		now:        time.Now,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

func (c *Client) Name() string { return Name }
