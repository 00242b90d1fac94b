package sdk

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Version is reported in the User-Agent header.
const Version = "1.0.0"

// Config holds the configuration for the Jira client. NewClient copies it,
// so changes made after construction have no effect on the client.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://yourcompany.atlassian.net").
//	    WithCredentials("me@company.com", token).
//	    WithTimeout(20 * time.Second).
//	    WithRetries(5)
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL is the Jira site, e.g. "https://yourcompany.atlassian.net".
	// A trailing slash is removed.
	BaseURL string

	// Username is the account e-mail used for basic authentication
	Username string

	// APIToken is the API token used as the basic-auth secret
	APIToken string

	// Proxy is an explicit proxy decision. When nil the environment
	// (HTTP_PROXY, HTTPS_PROXY, NO_PROXY) is consulted once at construction.
	Proxy *ProxyResolution

	// Timeout bounds a single attempt, including redirects and reading the body.
	// Default: 30s
	Timeout time.Duration

	// RetryConfig holds retry-related settings.
	RetryConfig RetryConfig

	// TransportConfig holds connection pool settings.
	TransportConfig TransportConfig

	// Headers are added to every request and override the fixed headers.
	Headers map[string]string

	// RateLimit caps outgoing requests per second; zero disables pacing.
	RateLimit float64

	// RateBurst is the limiter burst size. Default: 1
	RateBurst int

	// Observer receives request and retry notifications.
	// If nil, NoopObserver is used.
	Observer Observer

	// Clock drives backoff waits. If nil, the system clock is used.
	Clock Clock

	// Getenv reads proxy variables. If nil, os.Getenv is used.
	Getenv func(string) string
}

// RetryConfig holds retry-related configuration.
type RetryConfig struct {
	// MaxRetries is the total number of attempts for retryable failures.
	// Default: 3
	MaxRetries int

	// InitialInterval is the wait after the first failed attempt.
	// Default: 1s
	InitialInterval time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// MaxInterval caps a single wait; zero means uncapped.
	MaxInterval time.Duration

	// Strategy replaces the exponential policy when set.
	Strategy RetryStrategy
}

// TransportConfig holds HTTP transport configuration for connection pooling.
type TransportConfig struct {
	// PoolSize bounds idle and total connections per host.
	// Default: 10
	PoolSize int

	// IdleConnTimeout is how long an idle connection is kept.
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	// Default: 10s
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns a Config with the defaults:
//   - Timeout: 30 seconds
//   - Retries: 3 attempts, waiting 1s then 2s
//   - Connection pool: 10 connections
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		RetryConfig: RetryConfig{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Multiplier:      2.0,
		},
		TransportConfig: TransportConfig{
			PoolSize:            10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Headers:  make(map[string]string),
		Observer: &NoopObserver{},
	}
}

// WithBaseURL sets the Jira site URL.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithCredentials sets the basic-auth identity and API token.
func (c *Config) WithCredentials(username, apiToken string) *Config {
	c.Username = username
	c.APIToken = apiToken
	return c
}

// WithProxy sets an explicit proxy decision.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithProxy(sdk.ExplicitProxy(sdk.ProxyConfig{"https": "http://proxy:8080"}))
func (c *Config) WithProxy(proxy *ProxyResolution) *Config {
	c.Proxy = proxy
	return c
}

// WithTimeout sets the per-attempt timeout.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRetries sets the total number of attempts for retryable failures.
func (c *Config) WithRetries(maxRetries int) *Config {
	c.RetryConfig.MaxRetries = maxRetries
	return c
}

// WithRetryStrategy replaces the exponential backoff policy.
func (c *Config) WithRetryStrategy(strategy RetryStrategy) *Config {
	c.RetryConfig.Strategy = strategy
	return c
}

// WithHeader adds a custom header to be sent with all requests.
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithRateLimit paces outgoing requests to rps per second.
func (c *Config) WithRateLimit(rps float64, burst int) *Config {
	c.RateLimit = rps
	c.RateBurst = burst
	return c
}

// WithObserver sets a custom observer for monitoring SDK operations.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithClock replaces the clock used for backoff waits.
func (c *Config) WithClock(clock Clock) *Config {
	c.Clock = clock
	return c
}

// Validate validates the configuration and sets defaults for missing values.
// This is called automatically by NewClient.
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL cannot be empty", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid base URL: %v", ErrInvalidConfig, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL must have a scheme and host", ErrInvalidConfig)
	}
	if c.Username == "" || c.APIToken == "" {
		return fmt.Errorf("%w: username and API token are required", ErrInvalidConfig)
	}
	if c.Proxy != nil {
		if err := c.Proxy.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryConfig.MaxRetries < 1 {
		c.RetryConfig.MaxRetries = 1
	}
	if c.RetryConfig.InitialInterval <= 0 {
		c.RetryConfig.InitialInterval = time.Second
	}
	if c.RetryConfig.Multiplier <= 1 {
		c.RetryConfig.Multiplier = 2.0
	}
	if c.TransportConfig.PoolSize <= 0 {
		c.TransportConfig.PoolSize = 10
	}
	if c.TransportConfig.IdleConnTimeout <= 0 {
		c.TransportConfig.IdleConnTimeout = 90 * time.Second
	}
	if c.TransportConfig.TLSHandshakeTimeout <= 0 {
		c.TransportConfig.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	return nil
}

func (c *Config) clone() *Config {
	copied := *c
	copied.Headers = make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		copied.Headers[k] = v
	}
	if c.Proxy != nil {
		p := c.Proxy.copy()
		copied.Proxy = &p
	}
	return &copied
}

func (c *Config) retryStrategy() RetryStrategy {
	if c.RetryConfig.Strategy != nil {
		return c.RetryConfig.Strategy
	}
	return &ExponentialBackoffStrategy{
		InitialInterval: c.RetryConfig.InitialInterval,
		Multiplier:      c.RetryConfig.Multiplier,
		MaxInterval:     c.RetryConfig.MaxInterval,
	}
}
