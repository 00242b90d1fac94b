package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/birbparty/jira-nest/internal/database"
	"github.com/birbparty/jira-nest/internal/etl"
	"github.com/birbparty/jira-nest/internal/ingest"
	"github.com/birbparty/jira-nest/internal/telemetry"
	"github.com/birbparty/jira-nest/sdk"
)

const (
	serviceName    = "jira-nest-api"
	serviceVersion = "1.0.0"
)

// JiraClient is the part of sdk.Client the handlers call directly
type JiraClient interface {
	GetFields(ctx context.Context) ([]sdk.Field, error)
	GetCustomFields(ctx context.Context) ([]sdk.Field, error)
	CheckConnection(ctx context.Context) (*sdk.ConnectionReport, error)
	Proxy() sdk.ProxyResolution
}

// SyncService is implemented by *ingest.Service
type SyncService interface {
	FetchUpdatedYesterday(ctx context.Context, issueType string) ([]sdk.Issue, error)
	SyncIssueType(ctx context.Context, issueType string) (*ingest.SyncResult, error)
	Search(ctx context.Context, jql string, saveToDB bool) (*ingest.SearchResult, error)
	Stored(ctx context.Context, issueType string, hours int) ([]*etl.StagingRecord, error)
}

// IssueStore answers lookups on the staging table
type IssueStore interface {
	FindByKey(ctx context.Context, issueKey string) (*etl.StagingRecord, error)
	CountByIssueType(ctx context.Context) (map[string]int64, error)
}

// HealthCheck reports the health of one dependency
type HealthCheck func(ctx context.Context) error

// Handler holds all dependencies for API handlers
type Handler struct {
	jira   JiraClient
	sync   SyncService
	store  IssueStore
	checks map[string]HealthCheck
}

// NewHandler creates a new handler instance. store may be nil when no
// database is configured.
func NewHandler(jira JiraClient, sync SyncService, store IssueStore, checks map[string]HealthCheck) *Handler {
	if checks == nil {
		checks = make(map[string]HealthCheck)
	}
	return &Handler{
		jira:   jira,
		sync:   sync,
		store:  store,
		checks: checks,
	}
}

// FetchYesterday handles GET /api/jira/issues/yesterday/:issueType
func (h *Handler) FetchYesterday(c *fiber.Ctx) error {
	issueType := c.Params("issueType")
	if issueType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("issueType parameter is required", ErrCodeInvalidRequest),
		)
	}

	issues, err := h.sync.FetchUpdatedYesterday(c.UserContext(), issueType)
	if err != nil {
		return writeError(c, err, "Failed to fetch issues from Jira")
	}

	return c.JSON(&IssuesResponse{
		IssueType: issueType,
		Count:     len(issues),
		Issues:    ConvertToIssueSummaries(issues),
	})
}

// SyncIssueType handles POST /api/jira/issues/sync/:issueType
func (h *Handler) SyncIssueType(c *fiber.Ctx) error {
	issueType := c.Params("issueType")
	if issueType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("issueType parameter is required", ErrCodeInvalidRequest),
		)
	}

	result, err := h.sync.SyncIssueType(c.UserContext(), issueType)
	if err != nil {
		return writeError(c, err, fmt.Sprintf("Sync of %s failed", issueType))
	}

	return c.JSON(&SyncResponse{Status: "completed", Result: result})
}

// StoredIssues handles GET /api/jira/issues/stored/:issueType?hours=24
func (h *Handler) StoredIssues(c *fiber.Ctx) error {
	issueType := c.Params("issueType")
	hours := c.QueryInt("hours", 24)
	if hours <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("hours must be a positive integer", ErrCodeInvalidRequest),
		)
	}

	records, err := h.sync.Stored(c.UserContext(), issueType, hours)
	if err != nil {
		return writeError(c, err, "Failed to load stored issues")
	}
	if records == nil {
		records = []*etl.StagingRecord{}
	}

	return c.JSON(&StoredResponse{
		IssueType: issueType,
		Hours:     hours,
		Count:     len(records),
		Issues:    records,
	})
}

// Search handles GET /api/jira/issues/search?jql=...&saveToDb=false
func (h *Handler) Search(c *fiber.Ctx) error {
	jql := strings.TrimSpace(c.Query("jql"))
	if jql == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("jql query parameter is required", ErrCodeInvalidRequest),
		)
	}
	saveToDB := c.QueryBool("saveToDb", false)

	result, err := h.sync.Search(c.UserContext(), jql, saveToDB)
	if err != nil {
		return writeError(c, err, "Search failed")
	}

	return c.JSON(&IssuesResponse{
		JQL:      jql,
		Count:    len(result.Issues),
		Issues:   ConvertToIssueSummaries(result.Issues),
		Saved:    result.Saved,
		Inserted: result.Inserted,
		Updated:  result.Updated,
	})
}

// IssueByKey handles GET /api/jira/issues/key/:issueKey
func (h *Handler) IssueByKey(c *fiber.Ctx) error {
	if h.store == nil {
		return writeError(c, ingest.ErrStorageDisabled, "Issue lookup unavailable")
	}

	rec, err := h.store.FindByKey(c.UserContext(), c.Params("issueKey"))
	if err != nil {
		return writeError(c, err, "Failed to load issue")
	}
	return c.JSON(rec)
}

// Stats handles GET /api/jira/stats
func (h *Handler) Stats(c *fiber.Ctx) error {
	if h.store == nil {
		return writeError(c, ingest.ErrStorageDisabled, "Stats unavailable")
	}

	counts, err := h.store.CountByIssueType(c.UserContext())
	if err != nil {
		return writeError(c, err, "Failed to count issues")
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return c.JSON(&StatsResponse{Total: total, ByType: counts})
}

// Fields handles GET /api/jira/fields
func (h *Handler) Fields(c *fiber.Ctx) error {
	fields, err := h.jira.GetFields(c.UserContext())
	if err != nil {
		return writeError(c, err, "Failed to fetch fields")
	}
	return c.JSON(&FieldsResponse{Count: len(fields), Fields: fields})
}

// CustomFields handles GET /api/jira/fields/custom
func (h *Handler) CustomFields(c *fiber.Ctx) error {
	fields, err := h.jira.GetCustomFields(c.UserContext())
	if err != nil {
		return writeError(c, err, "Failed to fetch custom fields")
	}
	return c.JSON(&FieldsResponse{Count: len(fields), Fields: fields})
}

// Connection handles GET /api/jira/connection
func (h *Handler) Connection(c *fiber.Ctx) error {
	resp := &ConnectionResponse{Proxy: h.jira.Proxy().String()}

	report, err := h.jira.CheckConnection(c.UserContext())
	if report != nil {
		if report.User != nil {
			resp.User = report.User.DisplayName
			resp.Email = report.User.EmailAddress
		}
		if report.ServerInfo != nil {
			resp.ServerTitle = report.ServerInfo.ServerTitle
		}
	}
	resp.Connected = err == nil && report.Connected()

	if !resp.Connected {
		if err != nil {
			resp.Error = err.Error()
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	status := "healthy"
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}

	response := &HealthResponse{
		Status:  status,
		Service: serviceName,
		Version: serviceVersion,
		Uptime:  time.Since(startTime).String(),
		Checks:  checks,
	}

	statusCode := fiber.StatusOK
	if status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Root handles GET /
func (h *Handler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": serviceName,
		"version": serviceVersion,
		"status":  "running",
		"endpoints": fiber.Map{
			"jira": fiber.Map{
				"yesterday":     "GET /api/jira/issues/yesterday/:issueType",
				"sync":          "POST /api/jira/issues/sync/:issueType",
				"stored":        "GET /api/jira/issues/stored/:issueType?hours=24",
				"search":        "GET /api/jira/issues/search?jql=...&saveToDb=false",
				"issue":         "GET /api/jira/issues/key/:issueKey",
				"stats":         "GET /api/jira/stats",
				"fields":        "GET /api/jira/fields",
				"custom_fields": "GET /api/jira/fields/custom",
				"connection":    "GET /api/jira/connection",
			},
			"health":  "GET /health",
			"metrics": "GET /metrics",
		},
	})
}

// writeError maps err to a status and error code. Jira timeouts become 504,
// other failures talking to Jira 502.
func writeError(c *fiber.Ctx, err error, message string) error {
	status, code := classify(err)

	telemetry.WithContext(c.UserContext()).
		WithError(err).
		WithField("path", c.Path()).
		WithField("status", status).
		Warn(message)

	return c.Status(status).JSON(NewErrorResponseWithDetails(message, code, err.Error()))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrStorageDisabled):
		return fiber.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, database.ErrNotFound):
		return fiber.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, ErrCodeTimeout
	}

	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		switch sdkErr.Type {
		case sdk.ErrorTypeTimeout:
			return fiber.StatusGatewayTimeout, ErrCodeTimeout
		case sdk.ErrorTypeHTTP, sdk.ErrorTypeConnection, sdk.ErrorTypeDecode:
			return fiber.StatusBadGateway, ErrCodeUpstream
		case sdk.ErrorTypeValidation:
			return fiber.StatusBadRequest, ErrCodeInvalidRequest
		}
	}

	return fiber.StatusInternalServerError, ErrCodeInternalError
}

var startTime = time.Now()
