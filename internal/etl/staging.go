package etl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/birbparty/jira-nest/sdk"
)

// StagingRecord is the relational form of an issue kept in the staging table.
type StagingRecord struct {
	ID                  int64           `json:"id,omitempty"`
	IssueID             string          `json:"issue_id"`
	IssueKey            string          `json:"issue_key"`
	IssueType           string          `json:"issue_type,omitempty"`
	Summary             string          `json:"summary,omitempty"`
	Description         *string         `json:"description,omitempty"`
	Status              string          `json:"status,omitempty"`
	StatusCategory      string          `json:"status_category,omitempty"`
	Priority            string          `json:"priority,omitempty"`
	AssigneeEmail       string          `json:"assignee_email,omitempty"`
	AssigneeDisplayName string          `json:"assignee_display_name,omitempty"`
	ReporterEmail       string          `json:"reporter_email,omitempty"`
	ReporterDisplayName string          `json:"reporter_display_name,omitempty"`
	ProjectKey          string          `json:"project_key,omitempty"`
	ProjectName         string          `json:"project_name,omitempty"`
	CreatedDate         *time.Time      `json:"created_date,omitempty"`
	UpdatedDate         *time.Time      `json:"updated_date,omitempty"`
	ResolutionDate      *time.Time      `json:"resolution_date,omitempty"`
	Labels              string          `json:"labels,omitempty"`
	Components          string          `json:"components,omitempty"`
	CustomFields        json.RawMessage `json:"custom_fields,omitempty"`
	RawJSON             json.RawMessage `json:"raw_json,omitempty"`
	FetchDate           time.Time       `json:"fetch_date"`
	LastModifiedDate    time.Time       `json:"last_modified_date"`
}

// Jira renders timestamps with a numeric zone and no colon.
var jiraTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseJiraTime parses a Jira timestamp into UTC.
func ParseJiraTime(s string) (time.Time, error) {
	for _, layout := range jiraTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized Jira timestamp %q", s)
}

type stagingFields struct {
	IssueType *struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	Status *struct {
		Name           string `json:"name"`
		StatusCategory *struct {
			Name string `json:"name"`
		} `json:"statusCategory"`
	} `json:"status"`
	Priority *struct {
		Name string `json:"name"`
	} `json:"priority"`
	Assignee *sdk.User `json:"assignee"`
	Reporter *sdk.User `json:"reporter"`
	Project  *struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"project"`
	Summary        string   `json:"summary"`
	Created        string   `json:"created"`
	Updated        string   `json:"updated"`
	ResolutionDate string   `json:"resolutiondate"`
	Labels         []string `json:"labels"`
	Components     []struct {
		Name string `json:"name"`
	} `json:"components"`
}

// ToStagingRecord maps an issue to a staging record. defaultType is used
// when the issue carries no issuetype field. Unparseable timestamps are
// left empty.
func ToStagingRecord(issue sdk.Issue, defaultType string, fetchedAt time.Time) (*StagingRecord, error) {
	rec := &StagingRecord{
		IssueID:          issue.ID,
		IssueKey:         issue.Key,
		IssueType:        defaultType,
		FetchDate:        fetchedAt,
		LastModifiedDate: fetchedAt,
	}

	raw, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("failed to encode issue %s: %w", issue.Key, err)
	}
	rec.RawJSON = raw

	fieldsJSON, err := json.Marshal(issue.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields of %s: %w", issue.Key, err)
	}
	var f stagingFields
	if err := json.Unmarshal(fieldsJSON, &f); err != nil {
		return nil, fmt.Errorf("failed to decode fields of %s: %w", issue.Key, err)
	}

	rec.Summary = f.Summary
	rec.Description = Description(issue.Fields["description"])
	rec.CreatedDate = optionalTime(f.Created)
	rec.UpdatedDate = optionalTime(f.Updated)
	rec.ResolutionDate = optionalTime(f.ResolutionDate)

	if f.IssueType != nil && f.IssueType.Name != "" {
		rec.IssueType = f.IssueType.Name
	}
	if f.Status != nil {
		rec.Status = f.Status.Name
		if f.Status.StatusCategory != nil {
			rec.StatusCategory = f.Status.StatusCategory.Name
		}
	}
	if f.Priority != nil {
		rec.Priority = f.Priority.Name
	}
	if f.Assignee != nil {
		rec.AssigneeEmail = f.Assignee.EmailAddress
		rec.AssigneeDisplayName = f.Assignee.DisplayName
	}
	if f.Reporter != nil {
		rec.ReporterEmail = f.Reporter.EmailAddress
		rec.ReporterDisplayName = f.Reporter.DisplayName
	}
	if f.Project != nil {
		rec.ProjectKey = f.Project.Key
		rec.ProjectName = f.Project.Name
	}

	rec.Labels = strings.Join(f.Labels, ",")
	names := make([]string, 0, len(f.Components))
	for _, c := range f.Components {
		names = append(names, c.Name)
	}
	rec.Components = strings.Join(names, ",")

	custom := make(map[string]json.RawMessage)
	for name, value := range issue.Fields {
		if strings.HasPrefix(name, customFieldPrefix) && !isNull(value) {
			custom[name] = value
		}
	}
	if len(custom) > 0 {
		if rec.CustomFields, err = json.Marshal(custom); err != nil {
			return nil, fmt.Errorf("failed to encode custom fields of %s: %w", issue.Key, err)
		}
	}

	return rec, nil
}

func optionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := ParseJiraTime(s)
	if err != nil {
		return nil
	}
	return &t
}
