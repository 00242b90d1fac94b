package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// newHTTPTransport creates the pooled transport from a validated config.
func newHTTPTransport(config *Config) (*httpTransport, error) {
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	proxy := ResolveProxy(config.Proxy, config.Getenv)
	if err := proxy.Validate(); err != nil {
		return nil, err
	}

	pool := config.TransportConfig.PoolSize
	transport := &http.Transport{
		Proxy: proxy.ProxyFunc(),
		DialContext: (&net.Dialer{
			Timeout:   config.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          pool,
		MaxIdleConnsPerHost:   pool,
		MaxConnsPerHost:       pool,
		IdleConnTimeout:       config.TransportConfig.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TransportConfig.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Atlassian-Token", "no-check")
	headers.Set("User-Agent", "jira-nest-go-sdk/"+Version)
	headers.Set("Cache-Control", "no-cache")
	for key, value := range config.Headers {
		headers.Set(key, value)
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}

	return &httpTransport{
		client:        client,
		config:        config,
		baseURL:       baseURL,
		proxy:         proxy,
		headers:       headers,
		limiter:       limiter,
		retryExecutor: newRetryExecutor(config.retryStrategy(), config.Clock, config.RetryConfig.MaxRetries, config.Observer),
		observer:      config.Observer,
	}, nil
}

// do executes a request through the retry machine.
func (t *httpTransport) do(ctx context.Context, req *Request) (*Response, error) {
	fullURL := t.resolve(req)

	var body []byte
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, NewError(ErrorTypeValidation, fmt.Sprintf("failed to marshal request body: %v", err), err)
		}
		body = data
	}

	t.observer.OnRequestStart(req.Method, req.Path)
	start := t.config.Clock.Now()

	var resp *Response
	state := t.retryExecutor.Execute(ctx, req.Method, req.Path, func(attempt int) error {
		r, err := t.performHTTPRequest(ctx, req.Method, fullURL, req.Path, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	duration := t.config.Clock.Now().Sub(start)
	if state.Phase == PhaseSucceeded {
		resp.Attempts = state.Attempts()
		t.observer.OnRequestEnd(req.Method, req.Path, resp.StatusCode, duration, nil)
		return resp, nil
	}

	finalErr := asError(state.Err)
	finalErr.WithContext(&ErrorContext{
		URL:      fullURL,
		Method:   req.Method,
		Duration: duration,
		Attempts: state.Attempts(),
	})
	t.observer.OnRequestEnd(req.Method, req.Path, finalErr.StatusCode, duration, finalErr)
	return nil, finalErr
}

// performHTTPRequest performs a single attempt.
func (t *httpTransport) performHTTPRequest(ctx context.Context, method, fullURL, path string, body []byte) (*Response, error) {
	op := method + " " + path

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, NewError(ErrorTypeUnknown, fmt.Sprintf("%s rate limiter: %v", op, err), err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, NewError(ErrorTypeUnknown, fmt.Sprintf("failed to create request: %v", err), err)
	}
	for key, values := range t.headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	httpReq.SetBasicAuth(t.config.Username, t.config.APIToken)

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, op, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, "reading response of "+op, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		httpErr := &HTTPError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       string(respBody),
		}
		return nil, httpErr.ToError()
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Raw:        string(respBody),
	}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if !json.Valid(respBody) {
			var probe interface{}
			decodeErr := json.Unmarshal(respBody, &probe)
			return nil, (&DecodeError{Body: string(respBody), Err: decodeErr}).ToError()
		}
		resp.Body = json.RawMessage(respBody)
	}
	return resp, nil
}

// resolve builds the full URL for req.
func (t *httpTransport) resolve(req *Request) string {
	full := t.config.BaseURL + req.Path
	if len(req.Query) > 0 {
		full += "?" + req.Query.Encode()
	}
	return full
}

// close releases idle pooled connections.
func (t *httpTransport) close() error {
	t.client.CloseIdleConnections()
	return nil
}

func asError(err error) *Error {
	if sdkErr, ok := err.(*Error); ok {
		return sdkErr
	}
	return NewError(ErrorTypeUnknown, fmt.Sprintf("%v", err), err)
}
