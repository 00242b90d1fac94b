package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/jira-nest/internal/etl"
	"github.com/birbparty/jira-nest/internal/telemetry"
	"github.com/birbparty/jira-nest/sdk"
)

// RowAppender appends flattened rows to a table
type RowAppender interface {
	Append(ctx context.Context, table string, rows []*etl.Row) (int64, error)
}

// ExportUploader stores a finished CSV export
type ExportUploader interface {
	UploadExport(ctx context.Context, name string, body io.Reader, contentType string) (string, error)
}

// Options holds one loader run's inputs
type Options struct {
	URL      string
	Email    string
	APIToken string
	ProxyURL string

	Days     int
	Project  string
	JQLExtra string
	Table    string
	CSVPath  string
	PageSize int
	Limit    int
	Preview  int

	Out      io.Writer
	Observer sdk.Observer
	Now      time.Time
}

// Sinks are the optional destinations; nil fields are skipped
type Sinks struct {
	Rows    RowAppender
	Exports ExportUploader
}

// Summary reports what a run did
type Summary struct {
	JQL       string
	Fetched   int
	CSVPath   string
	Appended  int64
	ExportKey string
}

// Run searches Jira, flattens the issues, writes the CSV and feeds the sinks.
func Run(ctx context.Context, opts *Options, sinks Sinks) (*Summary, error) {
	log := telemetry.Entry().WithField("component", "loader")
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cfg := sdk.DefaultConfig().
		WithBaseURL(opts.URL).
		WithCredentials(opts.Email, opts.APIToken)
	if opts.ProxyURL != "" {
		cfg = cfg.WithProxy(sdk.ExplicitProxy(sdk.ProxyConfig{"http": opts.ProxyURL, "https": opts.ProxyURL}))
	}
	if opts.Observer != nil {
		cfg = cfg.WithObserver(opts.Observer)
	}

	client, err := sdk.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jira client: %w", err)
	}
	defer client.Close()

	summary := &Summary{
		JQL:     etl.UpdatedSinceJQL(now, opts.Days, opts.Project, opts.JQLExtra),
		CSVPath: opts.CSVPath,
	}
	log.WithField("jql", summary.JQL).Info("Searching Jira")

	issues, err := client.SearchAllIssues(ctx, summary.JQL, &sdk.SearchOptions{
		PageSize: opts.PageSize,
		Limit:    opts.Limit,
		OnPage: func(page *sdk.SearchPage) {
			log.WithFields(logrus.Fields{
				"start_at": page.StartAt,
				"count":    len(page.Issues),
				"total":    page.Total,
			}).Debug("Fetched page")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search failed after %d issues: %w", len(issues), err)
	}
	summary.Fetched = len(issues)

	if len(issues) == 0 {
		fmt.Fprintln(out, "No issues matched; nothing to load.")
		return summary, nil
	}

	rows := etl.FlattenAll(issues)
	fmt.Fprintf(out, "Fetched %d issues\n", len(rows))
	if err := printPreview(out, rows, opts.Preview); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := etl.WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	if err := writeFile(opts.CSVPath, buf.Bytes()); err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "📄 CSV written to %s\n", opts.CSVPath)

	var errs []error
	if sinks.Exports != nil {
		key, err := sinks.Exports.UploadExport(ctx, filepath.Base(opts.CSVPath), bytes.NewReader(buf.Bytes()), "text/csv")
		if err != nil {
			errs = append(errs, fmt.Errorf("upload: %w", err))
		} else {
			summary.ExportKey = key
			fmt.Fprintf(out, "☁️  CSV uploaded to %s\n", key)
		}
	}

	if sinks.Rows == nil {
		fmt.Fprintln(out, "DB_URL not set; skipping database load.")
		return summary, errors.Join(errs...)
	}

	n, err := sinks.Rows.Append(ctx, opts.Table, rows)
	if err != nil {
		errs = append(errs, fmt.Errorf("database load: %w", err))
		return summary, errors.Join(errs...)
	}
	summary.Appended = n
	fmt.Fprintln(out, "✅ Data inserted successfully into DB (no conflict handling).")

	return summary, errors.Join(errs...)
}

func printPreview(out io.Writer, rows []*etl.Row, n int) error {
	if n <= 0 {
		return nil
	}
	if n > len(rows) {
		n = len(rows)
	}
	fmt.Fprintf(out, "First %d rows:\n", n)
	return etl.WriteCSV(out, rows[:n])
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
