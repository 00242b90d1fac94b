package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
)

// StagingTable holds one row per issue key.
const StagingTable = "jira_issue_staging"

// DefaultLoaderTable receives the loader's appended rows.
const DefaultLoaderTable = "jira_issues"

var ErrInvalidTableName = errors.New("invalid table name")

// Postgres truncates identifiers at 63 bytes; schema-qualified names are
// not accepted.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateTableName rejects names that are not plain identifiers.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	return nil
}

// raw_json is JSON rather than JSONB so the issue text, and with it the
// field order exports are built from, comes back exactly as Jira sent it.
var stagingSchema = []string{`
CREATE TABLE IF NOT EXISTS jira_issue_staging (
	id                    BIGSERIAL PRIMARY KEY,
	issue_id              TEXT NOT NULL,
	issue_key             TEXT NOT NULL UNIQUE,
	issue_type            TEXT,
	summary               TEXT,
	description           TEXT,
	status                TEXT,
	status_category       TEXT,
	priority              TEXT,
	assignee_email        TEXT,
	assignee_display_name TEXT,
	reporter_email        TEXT,
	reporter_display_name TEXT,
	project_key           TEXT,
	project_name          TEXT,
	created_date          TIMESTAMPTZ,
	updated_date          TIMESTAMPTZ,
	resolution_date       TIMESTAMPTZ,
	labels                TEXT,
	components            TEXT,
	custom_fields         JSONB,
	raw_json              JSON NOT NULL,
	fetch_date            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_modified_date    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_jira_issue_staging_type_fetch ON jira_issue_staging (issue_type, fetch_date)`,
	`CREATE INDEX IF NOT EXISTS idx_jira_issue_staging_fetch ON jira_issue_staging (fetch_date)`,
	`CREATE INDEX IF NOT EXISTS idx_jira_issue_staging_type_modified ON jira_issue_staging (issue_type, last_modified_date)`,
}

const loaderSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	issue_key     TEXT,
	issue_id      TEXT,
	summary       TEXT,
	status        TEXT,
	assignee      TEXT,
	updated       TEXT,
	description   TEXT,
	custom_fields JSONB,
	loaded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema creates the staging table and the loader table when they
// do not exist. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, db *DB, loaderTable string) error {
	for _, stmt := range stagingSchema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create staging table: %w", err)
		}
	}

	if loaderTable == "" {
		return nil
	}
	if err := ValidateTableName(loaderTable); err != nil {
		return err
	}
	if _, err := db.Exec(ctx, fmt.Sprintf(loaderSchema, pq.QuoteIdentifier(loaderTable))); err != nil {
		return fmt.Errorf("failed to create table %s: %w", loaderTable, err)
	}
	return nil
}
