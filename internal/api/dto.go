package api

import (
	"github.com/birbparty/jira-nest/internal/etl"
	"github.com/birbparty/jira-nest/internal/ingest"
	"github.com/birbparty/jira-nest/sdk"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks"`
}

// IssueSummary is the compact issue view returned by the issue endpoints
type IssueSummary struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Summary     string  `json:"summary"`
	Status      string  `json:"status"`
	Assignee    *string `json:"assignee"`
	Updated     string  `json:"updated"`
	Description *string `json:"description"`
}

// IssuesResponse wraps a list of issues fetched from Jira
type IssuesResponse struct {
	IssueType string          `json:"issue_type,omitempty"`
	JQL       string          `json:"jql,omitempty"`
	Count     int             `json:"count"`
	Issues    []*IssueSummary `json:"issues"`
	Saved     bool            `json:"saved,omitempty"`
	Inserted  int             `json:"inserted,omitempty"`
	Updated   int             `json:"updated,omitempty"`
}

// StoredResponse wraps staged issues
type StoredResponse struct {
	IssueType string               `json:"issue_type"`
	Hours     int                  `json:"hours"`
	Count     int                  `json:"count"`
	Issues    []*etl.StagingRecord `json:"issues"`
}

// SyncResponse reports a sync run
type SyncResponse struct {
	Status string             `json:"status"`
	Result *ingest.SyncResult `json:"result"`
}

// FieldsResponse lists field definitions
type FieldsResponse struct {
	Count  int         `json:"count"`
	Fields []sdk.Field `json:"fields"`
}

// ConnectionResponse reports the Jira connection check
type ConnectionResponse struct {
	Connected   bool   `json:"connected"`
	Proxy       string `json:"proxy"`
	User        string `json:"user,omitempty"`
	Email       string `json:"email,omitempty"`
	ServerTitle string `json:"server_title,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StatsResponse counts staged issues per type
type StatsResponse struct {
	Total  int64            `json:"total"`
	ByType map[string]int64 `json:"by_type"`
}

// Error codes
const (
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUpstream       = "UPSTREAM_ERROR"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
)

// NewErrorResponse creates a new error response
func NewErrorResponse(err string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: err,
		Code:  code,
	}
}

// NewErrorResponseWithDetails creates a new error response with details
func NewErrorResponseWithDetails(err string, code string, details string) *ErrorResponse {
	return &ErrorResponse{
		Error:   err,
		Code:    code,
		Details: details,
	}
}

// ConvertToIssueSummary flattens an issue into its summary view
func ConvertToIssueSummary(issue sdk.Issue) *IssueSummary {
	row := etl.Flatten(issue)
	assignee, _ := row.Get(etl.ColAssignee)
	description, _ := row.Get(etl.ColDescription)

	return &IssueSummary{
		ID:          issue.ID,
		Key:         issue.Key,
		Summary:     row.String(etl.ColSummary),
		Status:      row.String(etl.ColStatus),
		Assignee:    assignee,
		Updated:     row.String(etl.ColUpdated),
		Description: description,
	}
}

// ConvertToIssueSummaries converts a list of issues
func ConvertToIssueSummaries(issues []sdk.Issue) []*IssueSummary {
	out := make([]*IssueSummary, 0, len(issues))
	for _, issue := range issues {
		out = append(out, ConvertToIssueSummary(issue))
	}
	return out
}
