package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/birbparty/jira-nest/internal/database"
	"github.com/birbparty/jira-nest/internal/storage"
	"github.com/birbparty/jira-nest/internal/telemetry"
	"github.com/birbparty/jira-nest/sdk"
)

func main() {
	app := &cli.App{
		Name:  "jira-loader",
		Usage: "export recently updated Jira issues to CSV and append them to a database table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", EnvVars: []string{"JIRA_URL"}, Usage: "Jira site URL", Required: true},
			&cli.StringFlag{Name: "email", EnvVars: []string{"JIRA_EMAIL"}, Usage: "Jira account email", Required: true},
			&cli.StringFlag{Name: "token", EnvVars: []string{"JIRA_API_TOKEN"}, Usage: "Jira API token", Required: true},
			&cli.StringFlag{Name: "proxy", EnvVars: []string{"JIRA_PROXY_URL"}, Usage: "explicit proxy URL for http and https"},
			&cli.IntFlag{Name: "days", EnvVars: []string{"DAYS"}, Value: 5, Usage: "look back this many days"},
			&cli.StringFlag{Name: "project", EnvVars: []string{"PROJECT"}, Usage: "limit to one project key"},
			&cli.StringFlag{Name: "jql-extra", EnvVars: []string{"JQL_EXTRA"}, Usage: "extra JQL clause ANDed to the query"},
			&cli.StringFlag{Name: "table", EnvVars: []string{"TABLE_NAME"}, Value: database.DefaultLoaderTable, Usage: "destination table"},
			&cli.StringFlag{Name: "csv", EnvVars: []string{"CSV_PATH"}, Value: "jira_issues.csv", Usage: "CSV output path"},
			&cli.IntFlag{Name: "max-results", EnvVars: []string{"MAX_RESULTS"}, Value: sdk.DefaultPageSize, Usage: "search page size"},
			&cli.IntFlag{Name: "limit", EnvVars: []string{"LIMIT"}, Value: 1000, Usage: "stop after this many issues; 0 for all"},
			&cli.IntFlag{Name: "preview", Value: 5, Usage: "rows to print before writing"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	telemetry.InitLogger(telemetry.NewConfigFromEnv())
	log := telemetry.Entry().WithField("component", "loader")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ValidateTableName(c.String("table")); err != nil {
		return err
	}

	var sinks Sinks
	if database.Configured() {
		db, err := openDB(ctx, c.String("table"))
		if err != nil {
			return err
		}
		defer db.Close()
		sinks.Rows = database.NewRowRepository(db)
	}

	spaces, err := storage.NewSpacesClient(storage.NewSpacesConfigFromEnv())
	switch {
	case err == nil:
		sinks.Exports = spaces
	case errors.Is(err, storage.ErrNotConfigured):
		log.Debug("Spaces not configured; CSV stays local")
	default:
		return err
	}

	summary, err := Run(ctx, &Options{
		URL:      c.String("url"),
		Email:    c.String("email"),
		APIToken: c.String("token"),
		ProxyURL: c.String("proxy"),
		Days:     c.Int("days"),
		Project:  c.String("project"),
		JQLExtra: c.String("jql-extra"),
		Table:    c.String("table"),
		CSVPath:  c.String("csv"),
		PageSize: c.Int("max-results"),
		Limit:    c.Int("limit"),
		Preview:  c.Int("preview"),
		Out:      os.Stdout,
		Observer: telemetry.NewSDKObserver(log),
	}, sinks)
	if summary != nil {
		log.WithField("fetched", summary.Fetched).WithField("appended", summary.Appended).Info("Loader finished")
	}
	return err
}

func openDB(ctx context.Context, table string) (*database.DB, error) {
	cfg, err := database.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, db, table); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
