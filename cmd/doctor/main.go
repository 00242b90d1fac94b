package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/birbparty/jira-nest/internal/doctor"
)

func main() {
	app := &cli.App{
		Name:  "jira-doctor",
		Usage: "troubleshoot Jira connectivity, credentials and proxies",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Jira site URL, e.g. https://yourcompany.atlassian.net",
				EnvVars: []string{"JIRA_URL"},
			},
			&cli.StringFlag{
				Name:    "email",
				Usage:   "Jira account email",
				EnvVars: []string{"JIRA_EMAIL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Jira API token",
				EnvVars: []string{"JIRA_API_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "proxy",
				Usage:   `proxy URL, "env" to use HTTP(S)_PROXY at request time, or "none"`,
				EnvVars: []string{"JIRA_PROXY_URL"},
			},
			&cli.StringFlag{
				Name:  "fields-out",
				Usage: "where to save the field catalogue",
				Value: doctor.DefaultFieldsFile,
			},
			&cli.BoolFlag{
				Name:  "non-interactive",
				Usage: "never prompt; take everything from flags and environment",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ Connection test failed. Please check your URL and credentials. (%v)\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := !c.Bool("non-interactive") &&
		(isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()))

	opts := doctor.Options{
		URL:        c.String("url"),
		Email:      c.String("email"),
		APIToken:   c.String("token"),
		Proxy:      doctor.ProxyFromFlag(c.String("proxy")),
		FieldsFile: c.String("fields-out"),
	}

	var prompter *doctor.Prompter
	if interactive {
		prompter = doctor.NewPrompter(os.Stdin, os.Stdout)
		opts.AskProxy = !c.IsSet("proxy")
	}

	return doctor.New(os.Stdout).Run(ctx, opts, prompter)
}
