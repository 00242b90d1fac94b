package sdk

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want %v", config.Timeout, 30*time.Second)
	}

	if config.RetryConfig.MaxRetries != 3 {
		t.Errorf("MaxRetries = %v, want %v", config.RetryConfig.MaxRetries, 3)
	}

	if config.RetryConfig.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want %v", config.RetryConfig.InitialInterval, time.Second)
	}

	if config.RetryConfig.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want %v", config.RetryConfig.Multiplier, 2.0)
	}

	if config.TransportConfig.PoolSize != 10 {
		t.Errorf("PoolSize = %v, want %v", config.TransportConfig.PoolSize, 10)
	}

	if config.Proxy != nil {
		t.Errorf("Proxy = %v, want nil", config.Proxy)
	}

	if config.Headers == nil {
		t.Error("Headers should not be nil")
	}
}

func TestConfig_WithBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantURL string
	}{
		{
			name:    "cloud site",
			url:     "https://example.atlassian.net",
			wantURL: "https://example.atlassian.net",
		},
		{
			name:    "trailing slash removed",
			url:     "https://example.atlassian.net/",
			wantURL: "https://example.atlassian.net",
		},
		{
			name:    "several trailing slashes removed",
			url:     "http://localhost:8080//",
			wantURL: "http://localhost:8080",
		},
		{
			name:    "context path kept",
			url:     "https://jira.corp.example/jira/",
			wantURL: "https://jira.corp.example/jira",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig().WithBaseURL(tt.url).WithCredentials("me@example.com", "token")
			if err := config.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if config.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %v, want %v", config.BaseURL, tt.wantURL)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "valid config",
			config:  DefaultConfig().WithBaseURL("https://example.atlassian.net").WithCredentials("a@b.c", "t"),
			wantErr: false,
		},
		{
			name:    "empty base URL",
			config:  DefaultConfig().WithCredentials("a@b.c", "t"),
			wantErr: true,
		},
		{
			name:    "base URL without scheme",
			config:  DefaultConfig().WithBaseURL("example.atlassian.net").WithCredentials("a@b.c", "t"),
			wantErr: true,
		},
		{
			name:    "missing token",
			config:  DefaultConfig().WithBaseURL("https://example.atlassian.net").WithCredentials("a@b.c", ""),
			wantErr: true,
		},
		{
			name:    "missing username",
			config:  DefaultConfig().WithBaseURL("https://example.atlassian.net").WithCredentials("", "t"),
			wantErr: true,
		},
		{
			name: "bad explicit proxy",
			config: DefaultConfig().WithBaseURL("https://example.atlassian.net").WithCredentials("a@b.c", "t").
				WithProxy(ExplicitProxy(ProxyConfig{"https": "proxy-without-scheme"})),
			wantErr: true,
		},
		{
			name: "zero values get defaults",
			config: &Config{
				BaseURL:  "https://example.atlassian.net",
				Username: "a@b.c",
				APIToken: "t",
			},
			wantErr: false,
			check: func(t *testing.T, c *Config) {
				if c.Timeout != 30*time.Second {
					t.Errorf("Timeout = %v, want 30s", c.Timeout)
				}
				if c.RetryConfig.MaxRetries != 1 {
					t.Errorf("MaxRetries = %v, want 1", c.RetryConfig.MaxRetries)
				}
				if c.TransportConfig.PoolSize != 10 {
					t.Errorf("PoolSize = %v, want 10", c.TransportConfig.PoolSize)
				}
				if c.Observer == nil || c.Clock == nil {
					t.Error("Observer and Clock should be defaulted")
				}
			},
		},
		{
			name: "rate burst defaults to one",
			config: DefaultConfig().WithBaseURL("https://example.atlassian.net").WithCredentials("a@b.c", "t").
				WithRateLimit(5, 0),
			check: func(t *testing.T, c *Config) {
				if c.RateBurst != 1 {
					t.Errorf("RateBurst = %v, want 1", c.RateBurst)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if tt.check != nil {
				tt.check(t, tt.config)
			}
		})
	}
}

func TestConfig_Chaining(t *testing.T) {
	config := DefaultConfig().
		WithBaseURL("https://example.atlassian.net").
		WithCredentials("me@example.com", "secret").
		WithTimeout(10*time.Second).
		WithRetries(5).
		WithHeader("X-Trace", "1").
		WithRetryStrategy(&ConstantBackoffStrategy{Interval: time.Millisecond})

	if config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", config.Timeout)
	}
	if config.RetryConfig.MaxRetries != 5 {
		t.Errorf("MaxRetries = %v, want 5", config.RetryConfig.MaxRetries)
	}
	if config.Headers["X-Trace"] != "1" {
		t.Errorf("Headers[X-Trace] = %v, want 1", config.Headers["X-Trace"])
	}
	if _, ok := config.retryStrategy().(*ConstantBackoffStrategy); !ok {
		t.Errorf("retryStrategy() = %T, want *ConstantBackoffStrategy", config.retryStrategy())
	}
}

func TestConfig_CopiedByNewClient(t *testing.T) {
	config := DefaultConfig().
		WithBaseURL("https://example.atlassian.net/").
		WithCredentials("me@example.com", "secret").
		WithHeader("X-Original", "yes")

	c, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	config.Headers["X-Original"] = "changed"
	config.BaseURL = "https://other.example"

	internal := c.(*client)
	if internal.config.Headers["X-Original"] != "yes" {
		t.Errorf("client header changed to %v", internal.config.Headers["X-Original"])
	}
	if internal.config.BaseURL != "https://example.atlassian.net" {
		t.Errorf("client BaseURL = %v", internal.config.BaseURL)
	}
	if config.BaseURL != "https://other.example" {
		t.Errorf("caller config should not be normalised in place")
	}
}

func TestConfig_ProxyMapCopiedByNewClient(t *testing.T) {
	proxies := ProxyConfig{"http": "http://proxy.corp:8080"}
	config := DefaultConfig().
		WithBaseURL("http://jira.example.test").
		WithCredentials("me@example.com", "secret").
		WithProxy(&ProxyResolution{Source: ProxySourceExplicit, Proxies: proxies})

	c, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	proxies["http"] = "http://127.0.0.1:1"
	proxies["https"] = "http://127.0.0.1:2"

	got := c.Proxy()
	if got.Proxies["http"] != "http://proxy.corp:8080" {
		t.Errorf("client http proxy changed to %v", got.Proxies["http"])
	}
	if _, ok := got.Proxies["https"]; ok {
		t.Errorf("client picked up https proxy added after construction")
	}

	internal := c.(*client)
	u, err := internal.transport.proxy.ProxyFunc()(&http.Request{URL: &url.URL{Scheme: "http", Host: "jira.example.test"}})
	if err != nil {
		t.Fatalf("ProxyFunc() error = %v", err)
	}
	if u == nil || u.Host != "proxy.corp:8080" {
		t.Errorf("request routed via %v, want proxy.corp:8080", u)
	}

	got.Proxies["http"] = "http://elsewhere:1"
	if c.Proxy().Proxies["http"] != "http://proxy.corp:8080" {
		t.Errorf("Proxy() result shares the client's map")
	}
}
