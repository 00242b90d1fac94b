// Package doctor diagnoses Jira connectivity: proxy, reachability,
// credentials and the field catalogue.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/birbparty/jira-nest/sdk"
)

const (
	connectivityTimeout = 15 * time.Second
	authTimeout         = 20 * time.Second
	// DefaultFieldsFile is where the field catalogue is written
	DefaultFieldsFile = "jira_fields.json"
)

var (
	// ErrInvalidURL is returned for a Jira URL without an http(s) scheme
	ErrInvalidURL = errors.New("URL should start with https://")
	// ErrMissingInput is returned when a required value was not supplied
	ErrMissingInput = errors.New("missing required input")
)

// Options is everything a run needs; empty values are prompted for when
// a Prompter is available.
type Options struct {
	URL        string
	Email      string
	APIToken   string
	Proxy      *sdk.ProxyResolution
	FieldsFile string
	// AskProxy runs the proxy questions before anything else
	AskProxy bool
}

type styles struct {
	header lipgloss.Style
	ok     lipgloss.Style
	fail   lipgloss.Style
	warn   lipgloss.Style
	dim    lipgloss.Style
}

func newStyles() styles {
	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		fail:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		dim:    lipgloss.NewStyle().Faint(true),
	}
}

// Doctor runs the troubleshooting steps and reports to out
type Doctor struct {
	out    io.Writer
	style  styles
	getenv func(string) string
	// newClient is replaced in tests
	newClient func(*sdk.Config) (sdk.Client, error)
}

// New creates a Doctor writing to out
func New(out io.Writer) *Doctor {
	return &Doctor{
		out:       out,
		style:     newStyles(),
		getenv:    os.Getenv,
		newClient: sdk.NewClient,
	}
}

// Run executes every step. prompter may be nil for non-interactive runs,
// in which case every value must already be in opts.
func (d *Doctor) Run(ctx context.Context, opts Options, prompter *Prompter) error {
	if opts.AskProxy && prompter != nil {
		proxy, err := d.ConfigureProxy(prompter)
		if err != nil {
			return err
		}
		opts.Proxy = proxy
	}

	d.header("JIRA CONNECTION TROUBLESHOOTING")

	var err error
	if opts.URL, err = d.value(prompter, opts.URL, "Enter your Jira URL (e.g., https://yourcompany.atlassian.net): ", "Jira URL"); err != nil {
		return err
	}
	opts.URL = strings.TrimRight(opts.URL, "/")

	if err := d.CheckURL(opts.URL); err != nil {
		return err
	}
	if opts.Proxy != nil {
		fmt.Fprintf(d.out, "Using proxy: %s\n", opts.Proxy)
	}

	fmt.Fprintf(d.out, "\n1. Testing basic connectivity to: %s\n", opts.URL)
	if _, err := d.CheckConnectivity(ctx, opts.URL, opts.Proxy); err != nil {
		return err
	}

	if opts.Email, err = d.value(prompter, opts.Email, "Enter your Jira username/email: ", "Jira email"); err != nil {
		return err
	}
	if opts.APIToken, err = d.value(prompter, opts.APIToken, "Enter your API token: ", "API token"); err != nil {
		return err
	}

	fmt.Fprintln(d.out, "\n2. Testing authentication...")
	if _, err := d.CheckAuth(ctx, opts); err != nil {
		return err
	}

	fmt.Fprintln(d.out, "\n3. Proceeding with field retrieval...")
	return d.FieldReport(ctx, opts)
}

// CheckURL validates the Jira URL; an unusual host only warns
func (d *Doctor) CheckURL(raw string) error {
	if !strings.HasPrefix(raw, "http") {
		d.failure(ErrInvalidURL.Error())
		return ErrInvalidURL
	}
	if !strings.Contains(raw, ".atlassian.net") && !strings.Contains(raw, "localhost") {
		d.warn("Are you sure this is a correct Jira URL?")
	}
	return nil
}

// CheckConnectivity sends an unauthenticated GET to {url}/status. Any
// response counts as reachable.
func (d *Doctor) CheckConnectivity(ctx context.Context, baseURL string, proxy *sdk.ProxyResolution) (int, error) {
	resolved := sdk.ResolveProxy(proxy, d.getenv)
	client := &http.Client{
		Timeout:   connectivityTimeout,
		Transport: &http.Transport{Proxy: resolved.ProxyFunc()},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		d.failure(fmt.Sprintf("Basic connectivity failed: %v", err))
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		if sdk.IsProxyError(err) {
			d.failure(fmt.Sprintf("Proxy error: %v", err))
			fmt.Fprintln(d.out, "Try these solutions:")
			fmt.Fprintln(d.out, "- Check proxy settings")
			fmt.Fprintln(d.out, "- Contact IT for correct proxy configuration")
			fmt.Fprintln(d.out, "- Try connecting without proxy if possible")
		} else {
			d.failure(fmt.Sprintf("Basic connectivity failed: %v", err))
		}
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	d.success(fmt.Sprintf("Basic connectivity OK (Status: %d)", resp.StatusCode))
	return resp.StatusCode, nil
}

// CheckAuth calls /myself once, without retries
func (d *Doctor) CheckAuth(ctx context.Context, opts Options) (*sdk.User, error) {
	client, err := d.client(opts, authTimeout, 1)
	if err != nil {
		d.failure(fmt.Sprintf("Authentication test failed: %v", err))
		return nil, err
	}
	defer client.Close()

	user, err := client.Myself(ctx)
	if err != nil {
		if status := sdk.StatusCode(err); status != 0 {
			d.failure(fmt.Sprintf("Authentication failed (Status: %d)", status))
			var sdkErr *sdk.Error
			if errors.As(err, &sdkErr) {
				fmt.Fprintf(d.out, "   Response: %s\n", sdkErr.Body)
			}
		} else {
			d.failure(fmt.Sprintf("Authentication test failed: %v", err))
		}
		return nil, err
	}

	d.success("Authentication successful!")
	fmt.Fprintf(d.out, "   User: %s\n", orUnknown(user.DisplayName))
	fmt.Fprintf(d.out, "   Email: %s\n", orUnknown(user.EmailAddress))
	return user, nil
}

// FieldReport checks the connection with the regular retry policy, prints
// the field catalogue and saves it to opts.FieldsFile.
func (d *Doctor) FieldReport(ctx context.Context, opts Options) error {
	client, err := d.client(opts, 0, 0)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Fprintln(d.out, "Testing connection...")
	report, err := client.CheckConnection(ctx)
	if report != nil && report.ServerInfo != nil {
		fmt.Fprintf(d.out, "Server: %s - %s\n", orUnknown(report.ServerInfo.ServerTitle), orUnknown(report.ServerInfo.Version))
	}
	if err != nil || !report.Connected() {
		d.failure("Failed to connect to Jira. Please check your credentials and URL.")
		if err == nil {
			err = errors.New("authentication returned no user")
		}
		return err
	}
	d.success("Connection successful! Logged in as: " + orUnknown(report.User.DisplayName))

	d.header("Fetching all fields...")
	fields, err := client.GetFields(ctx)
	if err != nil {
		d.failure("Failed to fetch fields. Check the error messages above.")
		return err
	}

	d.printFields(fields)

	path := opts.FieldsFile
	if path == "" {
		path = DefaultFieldsFile
	}
	if err := SaveFields(path, fields); err != nil {
		d.failure(fmt.Sprintf("Failed to save fields: %v", err))
		return err
	}
	fmt.Fprintf(d.out, "\nFull field data saved to '%s'\n", path)
	return nil
}

func (d *Doctor) printFields(fields []sdk.Field) {
	fmt.Fprintf(d.out, "Successfully fetched %d fields:\n", len(fields))
	fmt.Fprintln(d.out, "\nField Summary:")
	fmt.Fprintln(d.out, strings.Repeat("-", 80))
	fmt.Fprintln(d.out, d.style.header.Render(fmt.Sprintf("%-20s %-30s %-15s %s", "ID", "Name", "Type", "Custom")))
	fmt.Fprintln(d.out, strings.Repeat("-", 80))

	for _, line := range FieldTable(fields, 10) {
		fmt.Fprintln(d.out, line)
	}
	if len(fields) > 10 {
		fmt.Fprintln(d.out, d.style.dim.Render(fmt.Sprintf("... and %d more fields", len(fields)-10)))
	}

	custom := sdk.FilterCustomFields(fields)
	if len(custom) > 0 {
		fmt.Fprintf(d.out, "\nFound %d custom fields:\n", len(custom))
		for i, f := range custom {
			if i == 5 {
				break
			}
			fmt.Fprintf(d.out, "  - %s (ID: %s)\n", orNA(f.Name), orNA(f.ID))
		}
	}
}

// FieldTable formats the first limit fields as fixed-width rows
func FieldTable(fields []sdk.Field, limit int) []string {
	var lines []string
	for i, f := range fields {
		if i == limit {
			break
		}
		custom := "No"
		if f.Custom {
			custom = "Yes"
		}
		name := orNA(f.Name)
		if r := []rune(name); len(r) > 28 {
			name = string(r[:28])
		}
		typ := "N/A"
		if f.Schema != nil && f.Schema.Type != "" {
			typ = f.Schema.Type
		}
		lines = append(lines, fmt.Sprintf("%-20s %-30s %-15s %s", orNA(f.ID), name, typ, custom))
	}
	return lines
}

// SaveFields writes fields as indented JSON
func SaveFields(path string, fields []sdk.Field) error {
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (d *Doctor) client(opts Options, timeout time.Duration, attempts int) (sdk.Client, error) {
	cfg := sdk.DefaultConfig().
		WithBaseURL(opts.URL).
		WithCredentials(opts.Email, opts.APIToken).
		WithProxy(opts.Proxy)
	cfg.Getenv = d.getenv
	if timeout > 0 {
		cfg.WithTimeout(timeout)
	}
	if attempts > 0 {
		cfg.WithRetries(attempts)
	}
	return d.newClient(cfg)
}

func (d *Doctor) value(p *Prompter, current, question, name string) (string, error) {
	if current != "" || p == nil {
		if current == "" {
			d.failure(fmt.Sprintf("%s is required", name))
			return "", fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
		return current, nil
	}
	answer, err := p.Ask(question)
	if err != nil {
		return "", err
	}
	if answer == "" {
		d.failure(fmt.Sprintf("%s is required", name))
		return "", fmt.Errorf("%w: %s", ErrMissingInput, name)
	}
	return answer, nil
}

func (d *Doctor) header(title string) {
	fmt.Fprintln(d.out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(d.out, d.style.header.Render(title))
	fmt.Fprintln(d.out, strings.Repeat("=", 60))
}

func (d *Doctor) success(msg string) {
	fmt.Fprintln(d.out, d.style.ok.Render("✅ "+msg))
}

func (d *Doctor) failure(msg string) {
	fmt.Fprintln(d.out, d.style.fail.Render("❌ "+msg))
}

func (d *Doctor) warn(msg string) {
	fmt.Fprintln(d.out, d.style.warn.Render("⚠️  "+msg))
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
