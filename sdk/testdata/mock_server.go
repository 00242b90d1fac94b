package testdata

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockServer is a fake Jira REST API backed by httptest.
type MockServer struct {
	*httptest.Server
	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	requestCount atomic.Int32
	requests     []RecordedRequest
}

// HandlerFunc returns a status and a payload. A json.RawMessage or []byte
// payload is written verbatim; anything else is JSON-encoded.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (int, interface{})

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Headers  http.Header
	Body     []byte
	Time     time.Time
}

// NewMockServer creates a mock with serverInfo, myself and field handlers.
func NewMockServer() *MockServer {
	ms := &MockServer{
		handlers: make(map[string]HandlerFunc),
		requests: make([]RecordedRequest, 0),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRequest)

	ms.Server = httptest.NewServer(mux)
	ms.setupDefaultHandlers()

	return ms
}

func (ms *MockServer) setupDefaultHandlers() {
	ms.RegisterHandler("GET /status", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]string{"state": "RUNNING"}
	})

	ms.RegisterHandler("GET /rest/api/3/serverInfo", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, json.RawMessage(ServerInfoJSON)
	})

	ms.RegisterHandler("GET /rest/api/3/myself", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		if _, _, ok := r.BasicAuth(); !ok {
			return http.StatusUnauthorized, map[string]interface{}{
				"errorMessages": []string{"You are not authenticated."},
			}
		}
		return http.StatusOK, json.RawMessage(MyselfJSON)
	})

	ms.RegisterHandler("GET /rest/api/3/field", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, json.RawMessage(FieldsJSON)
	})
}

// RegisterHandler registers a handler for "METHOD /path". A pattern
// ending in "/" matches every path below it.
func (ms *MockServer) RegisterHandler(pattern string, handler HandlerFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[pattern] = handler
}

func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0)
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Headers:  r.Header.Clone(),
		Body:     body,
		Time:     time.Now(),
	})
	ms.mu.Unlock()

	ms.requestCount.Add(1)

	pattern := r.Method + " " + r.URL.Path
	ms.mu.RLock()
	handler, exact := ms.handlers[pattern]
	if !exact {
		for p, h := range ms.handlers {
			if strings.HasSuffix(p, "/") && strings.HasPrefix(pattern, p) {
				handler = h
				break
			}
		}
	}
	ms.mu.RUnlock()

	if handler == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errorMessages": []string{"Not found: " + r.URL.Path},
		})
		return
	}

	status, response := handler(w, r)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	switch v := response.(type) {
	case nil:
	case json.RawMessage:
		w.Write(v)
	case []byte:
		w.Write(v)
	default:
		json.NewEncoder(w).Encode(v)
	}
}

// GetRequestCount returns the total number of requests received
func (ms *MockServer) GetRequestCount() int {
	return int(ms.requestCount.Load())
}

// CountRequests returns how many requests hit path.
func (ms *MockServer) CountRequests(path string) int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	n := 0
	for _, r := range ms.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// GetRequests returns all recorded requests
func (ms *MockServer) GetRequests() []RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]RecordedRequest, len(ms.requests))
	copy(result, ms.requests)
	return result
}

// Reset clears all recorded requests
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.requestCount.Store(0)
	ms.requests = ms.requests[:0]
}

// WithErrorResponse sets up a handler that returns a Jira error body
func (ms *MockServer) WithErrorResponse(pattern string, statusCode int, errorMsg string) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return statusCode, map[string]interface{}{
			"errorMessages": []string{errorMsg},
			"errors":        map[string]string{},
		}
	})
}

// WithRawResponse sets up a handler that writes body verbatim
func (ms *MockServer) WithRawResponse(pattern string, statusCode int, body string) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return statusCode, []byte(body)
	})
}

// WithDelayedResponse sets up a handler that delays before responding
func (ms *MockServer) WithDelayedResponse(pattern string, delay time.Duration, handler HandlerFunc) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
		return handler(w, r)
	})
}

// WithSearchIssues serves GET /rest/api/3/search from issues, honouring
// startAt and maxResults.
func (ms *MockServer) WithSearchIssues(issues []json.RawMessage) {
	ms.RegisterHandler("GET /rest/api/3/search", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		q := r.URL.Query()
		startAt, _ := strconv.Atoi(q.Get("startAt"))
		maxResults, _ := strconv.Atoi(q.Get("maxResults"))
		if maxResults <= 0 {
			maxResults = 50
		}

		end := startAt + maxResults
		if end > len(issues) {
			end = len(issues)
		}
		page := []json.RawMessage{}
		if startAt < len(issues) {
			page = issues[startAt:end]
		}

		return http.StatusOK, map[string]interface{}{
			"startAt":    startAt,
			"maxResults": maxResults,
			"total":      len(issues),
			"issues":     page,
			"names":      map[string]string{"summary": "Summary"},
		}
	})
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	if ms.Server != nil {
		ms.Server.Close()
	}
}
