package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/birbparty/jira-nest/internal/etl"
)

var loaderColumns = []string{
	"issue_key", "issue_id", "summary", "status", "assignee", "updated", "description",
	"custom_fields", "loaded_at",
}

// RowRepository appends flattened rows to a loader table.
type RowRepository struct {
	db  *DB
	now func() time.Time
}

// NewRowRepository creates a new row repository
func NewRowRepository(db *DB) *RowRepository {
	return &RowRepository{db: db, now: time.Now}
}

// Append bulk-inserts rows into table with COPY. Nothing is deduplicated:
// loading the same issues twice yields duplicate rows.
func (r *RowRepository) Append(ctx context.Context, table string, rows []*etl.Row) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	values, err := LoaderValues(rows, r.now().UTC())
	if err != nil {
		return 0, err
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{table}, loaderColumns, pgx.CopyFromRows(values))
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows into %s: %w", table, err)
	}
	return n, nil
}

// LoaderValues converts rows to COPY tuples in loader column order.
// Custom fields are folded into one JSON object.
func LoaderValues(rows []*etl.Row, loadedAt time.Time) ([][]interface{}, error) {
	out := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		var custom interface{}
		if fields := row.CustomFields(); len(fields) > 0 {
			data, err := json.Marshal(fields)
			if err != nil {
				return nil, fmt.Errorf("failed to encode custom fields of %s: %w", row.String(etl.ColIssueKey), err)
			}
			custom = json.RawMessage(data)
		}

		out = append(out, []interface{}{
			cell(row, etl.ColIssueKey),
			cell(row, etl.ColIssueID),
			cell(row, etl.ColSummary),
			cell(row, etl.ColStatus),
			cell(row, etl.ColAssignee),
			cell(row, etl.ColUpdated),
			cell(row, etl.ColDescription),
			custom,
			loadedAt,
		})
	}
	return out, nil
}

func cell(row *etl.Row, column string) interface{} {
	v, _ := row.Get(column)
	if v == nil {
		return nil
	}
	return *v
}
