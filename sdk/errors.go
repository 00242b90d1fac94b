package sdk

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Common errors returned by the SDK. Every *Error matches exactly one of
// the classification sentinels through errors.Is.
//
// Example:
//
//	resp, err := client.Execute(ctx, sdk.NewRequest(http.MethodGet, "/rest/api/3/field"))
//	switch {
//	case errors.Is(err, sdk.ErrTimeout):
//	    // every attempt timed out
//	case errors.Is(err, sdk.ErrHTTPStatus):
//	    // Jira answered with 4xx/5xx, see sdk.StatusCode(err)
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClientClosed is returned when an operation is attempted on a closed client
	ErrClientClosed = errors.New("client is closed")

	// ErrTimeout is returned when every attempt of a request timed out
	ErrTimeout = errors.New("request timeout")

	// ErrConnection is returned when the remote host could not be reached
	ErrConnection = errors.New("connection failure")

	// ErrHTTPStatus is returned when the server answered with a 4xx or 5xx status
	ErrHTTPStatus = errors.New("http error status")

	// ErrDecode is returned when a successful response is not valid JSON
	ErrDecode = errors.New("invalid JSON response")

	// ErrUnknown is returned for failures that fit no other class
	ErrUnknown = errors.New("unknown error")
)

// ErrorType classifies a failed request. Only timeouts and connection
// failures are retried; every other type ends the request immediately.
type ErrorType int

const (
	// ErrorTypeUnknown represents an unclassified failure (redirect loops, canceled contexts, ...)
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTimeout represents a request that exceeded the configured timeout
	ErrorTypeTimeout
	// ErrorTypeConnection represents DNS, dial, reset, TLS and proxy-connect failures
	ErrorTypeConnection
	// ErrorTypeHTTP represents a delivered request rejected with a 4xx/5xx status
	ErrorTypeHTTP
	// ErrorTypeDecode represents a 2xx response whose body is not valid JSON
	ErrorTypeDecode
	// ErrorTypeValidation represents invalid input or configuration
	ErrorTypeValidation
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeHTTP:
		return "http"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the failure value returned by every client operation.
// It records how the request failed, whether the failure class is
// retryable, and where it happened.
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    fmt.Printf("type=%s status=%d attempts=%d\n",
//	        sdkErr.Type, sdkErr.StatusCode, sdkErr.Context.Attempts)
//	    fmt.Println(sdkErr.Body) // raw server text for diagnostics
//	}
type Error struct {
	// Type categorizes the error for handling decisions
	Type ErrorType `json:"type"`
	// Message is a human-readable error description
	Message string `json:"message"`
	// StatusCode is the HTTP status for ErrorTypeHTTP, zero otherwise
	StatusCode int `json:"status_code,omitempty"`
	// Body is the raw response text for ErrorTypeHTTP and ErrorTypeDecode
	Body string `json:"body,omitempty"`
	// Timestamp is when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// Retryable indicates whether the failure class is retried by the client
	Retryable bool `json:"retryable"`
	// Context describes the request that failed
	Context *ErrorContext `json:"context,omitempty"`
	// wrapped is the underlying error, if any
	wrapped error
}

// ErrorContext describes the request that failed.
type ErrorContext struct {
	// URL is the full URL of the failed request
	URL string `json:"url,omitempty"`
	// Method is the HTTP method used
	Method string `json:"method,omitempty"`
	// Duration is the wall time spent, backoff included
	Duration time.Duration `json:"duration,omitempty"`
	// Attempts is the number of attempts made
	Attempts int `json:"attempts,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error: %s", e.Type, e.Message)
	if e.Context != nil && e.Context.URL != "" {
		msg = fmt.Sprintf("%s (%s %s, attempts: %d)", msg, e.Context.Method, e.Context.URL, e.Context.Attempts)
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	switch e.Type {
	case ErrorTypeTimeout:
		return target == ErrTimeout
	case ErrorTypeConnection:
		return target == ErrConnection
	case ErrorTypeHTTP:
		return target == ErrHTTPStatus
	case ErrorTypeDecode:
		return target == ErrDecode
	case ErrorTypeValidation:
		return target == ErrInvalidConfig
	default:
		return target == ErrUnknown
	}
}

// IsRetryable returns true if the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// WithContext adds error context
func (e *Error) WithContext(ctx *ErrorContext) *Error {
	e.Context = ctx
	return e
}

// NewError creates a new enhanced error
func NewError(errType ErrorType, message string, wrapped error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: isRetryableType(errType),
		wrapped:   wrapped,
	}
}

func isRetryableType(errType ErrorType) bool {
	switch errType {
	case ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// HTTPError is a response with a 4xx or 5xx status. The request reached
// the server and was rejected, so it is never retried.
type HTTPError struct {
	// StatusCode is the HTTP status code from the response
	StatusCode int
	// Status is the status line text, e.g. "404 Not Found"
	Status string
	// Body is the raw response text
	Body string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, truncate(e.Body, 512))
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsNotFound returns true for 404 responses
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized returns true for 401 and 403 responses
func (e *HTTPError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ToError converts HTTPError to the enhanced Error type
func (e *HTTPError) ToError() *Error {
	err := NewError(ErrorTypeHTTP, e.Error(), e)
	err.StatusCode = e.StatusCode
	err.Body = e.Body
	return err
}

// NetworkError is a failure to reach the server: DNS resolution, dial,
// connection reset, TLS handshake or proxy connect.
type NetworkError struct {
	// Op is the operation that failed (e.g. "GET /rest/api/3/field")
	Op string
	// Err is the underlying network error
	Err error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ToError converts NetworkError to the enhanced Error type
func (e *NetworkError) ToError() *Error {
	return NewError(ErrorTypeConnection, e.Error(), e)
}

// TimeoutError represents an attempt that exceeded the client timeout.
type TimeoutError struct {
	// Op is the operation that timed out
	Op string
	// Err is the underlying error reported by the transport
	Err error
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s", e.Op)
}

// Unwrap returns the underlying error
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ToError converts TimeoutError to the enhanced Error type
func (e *TimeoutError) ToError() *Error {
	return NewError(ErrorTypeTimeout, e.Error(), e)
}

// DecodeError is a 2xx response whose body could not be parsed as JSON.
type DecodeError struct {
	// Body is the raw response text
	Body string
	// Err is the parser error
	Err error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

// Unwrap returns the parser error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ToError converts DecodeError to the enhanced Error type
func (e *DecodeError) ToError() *Error {
	err := NewError(ErrorTypeDecode, e.Error(), e)
	err.Body = e.Body
	return err
}

// classifyTransportError maps an error returned by http.Client.Do onto
// the error taxonomy. ctx is the caller's context: once it is done the
// failure is the caller's, not the network's.
func classifyTransportError(ctx context.Context, op string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewError(ErrorTypeUnknown, fmt.Sprintf("%s aborted: %v", op, ctxErr), ctxErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return (&TimeoutError{Op: op, Err: err}).ToError()
	}

	if isConnectionError(err) {
		return (&NetworkError{Op: op, Err: err}).ToError()
	}

	return NewError(ErrorTypeUnknown, fmt.Sprintf("%s failed: %v", op, err), err)
}

func isConnectionError(err error) bool {
	var (
		opErr      *net.OpError
		dnsErr     *net.DNSError
		certErr    *tls.CertificateVerificationError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		recordErr  tls.RecordHeaderError
		invalidErr x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return true
	case errors.As(err, &certErr), errors.As(err, &authErr), errors.As(err, &hostErr),
		errors.As(err, &recordErr), errors.As(err, &invalidErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return true
	}
	return false
}

// IsProxyError reports whether err came from connecting to a proxy.
func IsProxyError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "proxyconnect"
}

// IsRetryable reports whether err belongs to a retryable class
// (timeout or connection failure).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.IsRetryable()
	}
	var netErr *NetworkError
	var timeoutErr *TimeoutError
	return errors.As(err, &netErr) || errors.As(err, &timeoutErr)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0 when the
// request never produced a status.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.StatusCode
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
