package sdk

import (
	"context"
	"net/http"
	"net/url"
	"sync"
)

// Jira REST endpoints used by the client.
const (
	PathServerInfo = "/rest/api/3/serverInfo"
	PathMyself     = "/rest/api/3/myself"
	PathFields     = "/rest/api/3/field"
	PathSearch     = "/rest/api/3/search"
	PathIssue      = "/rest/api/3/issue"
)

// Client is an authenticated Jira REST client with bounded retries.
//
// All methods are safe for concurrent use; retry state is kept per call.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://yourcompany.atlassian.net").
//	    WithCredentials(email, token))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	fields, err := client.GetCustomFields(ctx)
//	if err != nil {
//	    if sdk.StatusCode(err) == http.StatusUnauthorized {
//	        log.Println("check the API token")
//	    }
//	}
type Client interface {
	// Execute sends req and runs the retry machine until it stops.
	// A 2xx response with an empty or whitespace-only body is a success whose
	// Body is nil (HasData reports false), not a decode error, so 204 replies
	// and empty 200s are usable. Any other body that is not JSON is ErrDecode.
	//
	// Example:
	//
	//	resp, err := client.Execute(ctx, sdk.NewRequest(http.MethodGet, "/rest/api/3/project"))
	//	if err == nil {
	//	    fmt.Println(string(resp.Body))
	//	}
	Execute(ctx context.Context, req *Request) (*Response, error)

	// Get performs a GET and decodes the payload into dest.
	Get(ctx context.Context, path string, query url.Values, dest interface{}) error

	// TestConnection warms up with serverInfo, then reports whether
	// /myself returned data. Failures of the warm-up call are tolerated.
	TestConnection(ctx context.Context) bool

	// CheckConnection is TestConnection with details.
	CheckConnection(ctx context.Context) (*ConnectionReport, error)

	// ServerInfo returns the site metadata.
	ServerInfo(ctx context.Context) (*ServerInfo, error)

	// Myself returns the authenticated user.
	Myself(ctx context.Context) (*User, error)

	// GetFields returns every field definition.
	GetFields(ctx context.Context) ([]Field, error)

	// GetCustomFields returns the fields with custom == true, in server order.
	GetCustomFields(ctx context.Context) ([]Field, error)

	// SearchIssues fetches one page of a JQL search.
	SearchIssues(ctx context.Context, req SearchRequest) (*SearchPage, error)

	// SearchAllIssues pages through a JQL search. On a failed page it
	// returns the issues fetched so far together with the error.
	SearchAllIssues(ctx context.Context, jql string, opts *SearchOptions) ([]Issue, error)

	// Proxy returns the proxy decision made at construction.
	Proxy() ProxyResolution

	// Close releases pooled connections. Close is safe to call multiple times.
	Close() error
}

// client is the concrete Client.
type client struct {
	transport *httpTransport
	config    *Config
	mu        sync.RWMutex
	closed    bool
}

// NewClient creates a client from a copy of config. The proxy is resolved
// here, once.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://yourcompany.atlassian.net/").
//	    WithCredentials("me@company.com", token).
//	    WithRetries(5)
//	client, err := sdk.NewClient(config)
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	cfg := config.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport, err := newHTTPTransport(cfg)
	if err != nil {
		return nil, NewError(ErrorTypeValidation, "failed to create transport: "+err.Error(), err)
	}

	return &client{
		transport: transport,
		config:    cfg,
	}, nil
}

// Execute runs a request through the retry machine
func (c *client) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if req == nil || req.Method == "" {
		return nil, NewError(ErrorTypeValidation, "request method is required", nil)
	}
	return c.transport.do(ctx, req)
}

// Get performs a GET and decodes the result
func (c *client) Get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	req := NewRequest(http.MethodGet, path)
	if query != nil {
		req.Query = query
	}
	resp, err := c.Execute(ctx, req)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	return resp.Decode(dest)
}

// TestConnection reports whether the authenticated call returned data
func (c *client) TestConnection(ctx context.Context) bool {
	report, err := c.CheckConnection(ctx)
	return err == nil && report.Connected()
}

// CheckConnection runs the two-step connection check
func (c *client) CheckConnection(ctx context.Context) (*ConnectionReport, error) {
	report := &ConnectionReport{}

	info, err := c.ServerInfo(ctx)
	if err != nil {
		report.ServerInfoErr = err
	} else {
		report.ServerInfo = info
	}

	resp, err := c.Execute(ctx, NewRequest(http.MethodGet, PathMyself))
	if err != nil {
		return report, err
	}
	report.Attempts = resp.Attempts
	if !resp.HasData() {
		return report, nil
	}

	var user User
	if err := resp.Decode(&user); err != nil {
		return report, err
	}
	report.User = &user
	return report, nil
}

// ServerInfo fetches site metadata
func (c *client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.Get(ctx, PathServerInfo, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Myself fetches the authenticated user
func (c *client) Myself(ctx context.Context) (*User, error) {
	var user User
	if err := c.Get(ctx, PathMyself, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetFields fetches all field definitions
func (c *client) GetFields(ctx context.Context) ([]Field, error) {
	var fields []Field
	if err := c.Get(ctx, PathFields, nil, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// GetCustomFields filters GetFields by the custom flag
func (c *client) GetCustomFields(ctx context.Context) ([]Field, error) {
	fields, err := c.GetFields(ctx)
	if err != nil {
		return nil, err
	}
	return FilterCustomFields(fields), nil
}

// Proxy returns the resolved proxy decision
func (c *client) Proxy() ProxyResolution {
	return c.transport.proxy.copy()
}

// Close closes the client and releases resources
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.transport.close()
}

// checkClosed checks if the client is closed
func (c *client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// FilterCustomFields keeps the fields marked custom, preserving order.
func FilterCustomFields(fields []Field) []Field {
	custom := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Custom {
			custom = append(custom, f)
		}
	}
	return custom
}
