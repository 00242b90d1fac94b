package sdk

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// httpTransport owns the pooled HTTP client and runs every request
// through the retry machine.
//
// The implementation is split between:
//   - transport.go: the transport type, request/response values and path helpers
//   - native.go: construction and the single-attempt round trip
type httpTransport struct {
	// client is the pooled HTTP client; its Transport carries the proxy decision
	client *http.Client
	// config is the validated, private copy of the client configuration
	config *Config
	// baseURL is the parsed base URL for the API
	baseURL *url.URL
	// proxy is the proxy decision made at construction
	proxy ProxyResolution
	// headers are the fixed headers merged with Config.Headers
	headers http.Header
	// limiter paces requests when Config.RateLimit is set
	limiter *rate.Limiter
	// retryExecutor drives the retry state machine
	retryExecutor *retryExecutor
	// observer for monitoring operations
	observer Observer
}

// Request describes one API call.
//
// Example:
//
//	req := sdk.NewRequest(http.MethodGet, "/rest/api/3/search").
//	    WithQuery("jql", "project = ABC").
//	    WithQuery("maxResults", "50")
type Request struct {
	Method string
	// Path is appended to the base URL, e.g. "/rest/api/3/field"
	Path string
	// Query holds the query parameters
	Query url.Values
	// Body is encoded as JSON when non-nil
	Body interface{}
}

// NewRequest creates a request for method and path.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Query: url.Values{}}
}

// WithQuery adds a query parameter.
func (r *Request) WithQuery(key, value string) *Request {
	if r.Query == nil {
		r.Query = url.Values{}
	}
	r.Query.Add(key, value)
	return r
}

// WithBody sets the JSON body.
func (r *Request) WithBody(body interface{}) *Request {
	r.Body = body
	return r
}

// Response is a successful (2xx) API response.
type Response struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// Header holds the response headers
	Header http.Header
	// Body is the response payload exactly as received; nil when the body was empty
	Body json.RawMessage
	// Raw is the response text for diagnostics
	Raw string
	// Attempts is the number of attempts the request needed
	Attempts int
}

// HasData reports whether the response carried a JSON payload other than null.
func (r *Response) HasData() bool {
	if r == nil {
		return false
	}
	trimmed := strings.TrimSpace(string(r.Body))
	return trimmed != "" && trimmed != "null"
}

// Decode unmarshals the payload into dest.
func (r *Response) Decode(dest interface{}) error {
	if !r.HasData() {
		return nil
	}
	if err := json.Unmarshal(r.Body, dest); err != nil {
		return (&DecodeError{Body: string(r.Body), Err: err}).ToError()
	}
	return nil
}
