package sdk

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// DefaultSearchFields are requested when a search names no fields.
var DefaultSearchFields = []string{
	"summary", "description", "status", "priority", "assignee", "reporter",
	"created", "updated", "resolutiondate", "issuetype", "project", "labels",
	"components", "customfield_10000", "customfield_10001", "customfield_10002",
}

// DefaultSearchExpand is the expand parameter used when none is given.
const DefaultSearchExpand = "names,schema"

// DefaultPageSize is the page size for searches; it is also Jira's cap.
const DefaultPageSize = 100

// SearchRequest describes one page of a JQL search.
type SearchRequest struct {
	JQL        string
	StartAt    int
	MaxResults int
	// Fields defaults to DefaultSearchFields; use []string{"*all"} for everything
	Fields []string
	// Expand defaults to DefaultSearchExpand
	Expand string
}

// SearchPage is one page of search results.
type SearchPage struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
	// Names maps field ids to display names when expand includes "names"
	Names map[string]string `json:"names,omitempty"`
}

// SearchOptions tunes SearchAllIssues.
type SearchOptions struct {
	// PageSize defaults to DefaultPageSize
	PageSize int
	Fields   []string
	Expand   string
	// Limit stops paging once this many issues are collected; zero means no limit
	Limit int
	// OnPage is called after each page is fetched
	OnPage func(page *SearchPage)
}

func (r SearchRequest) query() map[string][]string {
	fields := r.Fields
	if len(fields) == 0 {
		fields = DefaultSearchFields
	}
	expand := r.Expand
	if expand == "" {
		expand = DefaultSearchExpand
	}
	maxResults := r.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultPageSize
	}
	return map[string][]string{
		"jql":        {r.JQL},
		"startAt":    {strconv.Itoa(r.StartAt)},
		"maxResults": {strconv.Itoa(maxResults)},
		"fields":     {strings.Join(fields, ",")},
		"expand":     {expand},
	}
}

// SearchIssues fetches one page of a JQL search
func (c *client) SearchIssues(ctx context.Context, req SearchRequest) (*SearchPage, error) {
	if strings.TrimSpace(req.JQL) == "" {
		return nil, NewError(ErrorTypeValidation, "jql cannot be empty", nil)
	}

	httpReq := NewRequest(http.MethodGet, PathSearch)
	for key, values := range req.query() {
		for _, v := range values {
			httpReq.WithQuery(key, v)
		}
	}

	resp, err := c.Execute(ctx, httpReq)
	if err != nil {
		return nil, err
	}

	page := &SearchPage{}
	if err := resp.Decode(page); err != nil {
		return nil, err
	}
	return page, nil
}

// SearchAllIssues pages through a JQL search
func (c *client) SearchAllIssues(ctx context.Context, jql string, opts *SearchOptions) ([]Issue, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []Issue
	startAt := 0
	for {
		page, err := c.SearchIssues(ctx, SearchRequest{
			JQL:        jql,
			StartAt:    startAt,
			MaxResults: pageSize,
			Fields:     opts.Fields,
			Expand:     opts.Expand,
		})
		if err != nil {
			return all, err
		}
		if opts.OnPage != nil {
			opts.OnPage(page)
		}

		all = append(all, page.Issues...)
		if opts.Limit > 0 && len(all) >= opts.Limit {
			return all[:opts.Limit], nil
		}
		if len(page.Issues) < pageSize || len(all) >= page.Total {
			return all, nil
		}
		startAt += pageSize
	}
}
