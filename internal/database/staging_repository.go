package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/birbparty/jira-nest/internal/etl"
)

var ErrNotFound = errors.New("staging record not found")

const stagingColumns = `id, issue_id, issue_key, issue_type, summary, description, status, status_category,
	priority, assignee_email, assignee_display_name, reporter_email, reporter_display_name,
	project_key, project_name, created_date, updated_date, resolution_date, labels, components,
	custom_fields, raw_json, fetch_date, last_modified_date`

// StagingRepository stores the latest copy of each issue.
type StagingRepository struct {
	db *DB
}

// NewStagingRepository creates a new staging repository
func NewStagingRepository(db *DB) *StagingRepository {
	return &StagingRepository{db: db}
}

// Upsert stores records keyed by issue key. A new key is inserted; a known
// key has its content replaced while fetch_date keeps the first fetch.
// A failing record does not stop the others; their errors are joined.
func (r *StagingRepository) Upsert(ctx context.Context, records []*etl.StagingRecord) (inserted, updated int, err error) {
	query := `
		INSERT INTO jira_issue_staging (
			issue_id, issue_key, issue_type, summary, description, status, status_category,
			priority, assignee_email, assignee_display_name, reporter_email, reporter_display_name,
			project_key, project_name, created_date, updated_date, resolution_date, labels, components,
			custom_fields, raw_json, fetch_date, last_modified_date
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $22
		)
		ON CONFLICT (issue_key) DO UPDATE SET
			summary = EXCLUDED.summary,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			status_category = EXCLUDED.status_category,
			priority = EXCLUDED.priority,
			assignee_email = EXCLUDED.assignee_email,
			assignee_display_name = EXCLUDED.assignee_display_name,
			reporter_email = EXCLUDED.reporter_email,
			reporter_display_name = EXCLUDED.reporter_display_name,
			updated_date = EXCLUDED.updated_date,
			resolution_date = EXCLUDED.resolution_date,
			labels = EXCLUDED.labels,
			components = EXCLUDED.components,
			custom_fields = EXCLUDED.custom_fields,
			raw_json = EXCLUDED.raw_json,
			last_modified_date = EXCLUDED.last_modified_date
		RETURNING (xmax = 0) AS inserted
	`

	var errs []error
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		var wasInsert bool
		err := r.db.QueryRow(ctx, query,
			rec.IssueID, rec.IssueKey, nullString(rec.IssueType), nullString(rec.Summary), rec.Description,
			nullString(rec.Status), nullString(rec.StatusCategory), nullString(rec.Priority),
			nullString(rec.AssigneeEmail), nullString(rec.AssigneeDisplayName),
			nullString(rec.ReporterEmail), nullString(rec.ReporterDisplayName),
			nullString(rec.ProjectKey), nullString(rec.ProjectName),
			rec.CreatedDate, rec.UpdatedDate, rec.ResolutionDate,
			nullString(rec.Labels), nullString(rec.Components),
			nullJSON(rec.CustomFields), rawOrEmpty(rec.RawJSON), fetchTime(rec.FetchDate),
		).Scan(&wasInsert)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to upsert issue %s: %w", rec.IssueKey, err))
			continue
		}

		if wasInsert {
			inserted++
		} else {
			updated++
		}
	}

	return inserted, updated, errors.Join(errs...)
}

// FindByKey returns the record for an issue key
func (r *StagingRepository) FindByKey(ctx context.Context, issueKey string) (*etl.StagingRecord, error) {
	query := `SELECT ` + stagingColumns + ` FROM jira_issue_staging WHERE issue_key = $1`

	rec, err := scanRecord(r.db.QueryRow(ctx, query, issueKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get staging record: %w", err)
	}
	return rec, nil
}

// FindByIssueType returns the records of a type first fetched within [from, to].
func (r *StagingRepository) FindByIssueType(ctx context.Context, issueType string, from, to time.Time) ([]*etl.StagingRecord, error) {
	return r.findBetween(ctx, "fetch_date", issueType, from, to)
}

// FindModifiedBetween returns the records of a type written by a sync within
// [from, to], whether that sync inserted or updated them.
func (r *StagingRepository) FindModifiedBetween(ctx context.Context, issueType string, from, to time.Time) ([]*etl.StagingRecord, error) {
	return r.findBetween(ctx, "last_modified_date", issueType, from, to)
}

// findBetween filters on column, one of the two timestamp columns above.
func (r *StagingRepository) findBetween(ctx context.Context, column, issueType string, from, to time.Time) ([]*etl.StagingRecord, error) {
	query := `SELECT ` + stagingColumns + `
		FROM jira_issue_staging
		WHERE issue_type = $1 AND ` + column + ` BETWEEN $2 AND $3
		ORDER BY ` + column + ` DESC, issue_key`

	rows, err := r.db.Query(ctx, query, issueType, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query staging records: %w", err)
	}
	defer rows.Close()

	records := make([]*etl.StagingRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staging record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staging records: %w", err)
	}
	return records, nil
}

// DeleteOlderThan removes records first fetched before cutoff
func (r *StagingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM jira_issue_staging WHERE fetch_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old staging records: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountByIssueType returns the number of stored records per issue type
func (r *StagingRepository) CountByIssueType(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(issue_type, ''), COUNT(*)
		FROM jira_issue_staging
		GROUP BY issue_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count staging records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var issueType string
		var n int64
		if err := rows.Scan(&issueType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[issueType] = n
	}
	return counts, rows.Err()
}

func scanRecord(row pgx.Row) (*etl.StagingRecord, error) {
	var (
		rec                                    etl.StagingRecord
		issueType, summary, status, category   *string
		priority, aEmail, aName, rEmail, rName *string
		projectKey, projectName, labels, comps *string
		customFields, rawJSON                  []byte
	)

	err := row.Scan(
		&rec.ID, &rec.IssueID, &rec.IssueKey, &issueType, &summary, &rec.Description,
		&status, &category, &priority, &aEmail, &aName, &rEmail, &rName,
		&projectKey, &projectName, &rec.CreatedDate, &rec.UpdatedDate, &rec.ResolutionDate,
		&labels, &comps, &customFields, &rawJSON, &rec.FetchDate, &rec.LastModifiedDate,
	)
	if err != nil {
		return nil, err
	}

	rec.IssueType = deref(issueType)
	rec.Summary = deref(summary)
	rec.Status = deref(status)
	rec.StatusCategory = deref(category)
	rec.Priority = deref(priority)
	rec.AssigneeEmail = deref(aEmail)
	rec.AssigneeDisplayName = deref(aName)
	rec.ReporterEmail = deref(rEmail)
	rec.ReporterDisplayName = deref(rName)
	rec.ProjectKey = deref(projectKey)
	rec.ProjectName = deref(projectName)
	rec.Labels = deref(labels)
	rec.Components = deref(comps)
	if len(customFields) > 0 {
		rec.CustomFields = json.RawMessage(customFields)
	}
	rec.RawJSON = json.RawMessage(rawJSON)
	return &rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func rawOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func fetchTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
