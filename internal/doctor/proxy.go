package doctor

import (
	"fmt"
	"net"
	"net/url"

	"github.com/birbparty/jira-nest/sdk"
)

// ConfigureProxy walks the user through the proxy questions. A nil
// result means "no explicit choice": the client falls back to the
// environment.
func (d *Doctor) ConfigureProxy(p *Prompter) (*sdk.ProxyResolution, error) {
	d.header("PROXY CONFIGURATION")

	behind, err := p.Confirm("Are you behind a corporate proxy? (y/n): ")
	if err != nil || !behind {
		return nil, err
	}

	fmt.Fprintln(d.out, "\nProxy configuration options:")
	fmt.Fprintln(d.out, "1. Auto-detect from environment variables")
	fmt.Fprintln(d.out, "2. Manual configuration")
	fmt.Fprintln(d.out, "3. Skip proxy (direct connection)")

	choice, err := p.Ask("Choose option (1/2/3): ")
	if err != nil {
		return nil, err
	}

	if choice == "1" {
		env := sdk.EnvProxyConfig(d.getenv)
		if env.HTTPProxy != "" || env.HTTPSProxy != "" {
			fmt.Fprintln(d.out, "Found system proxy settings:")
			if env.HTTPProxy != "" {
				fmt.Fprintf(d.out, "  HTTP: %s\n", sdk.Redact(env.HTTPProxy))
			}
			if env.HTTPSProxy != "" {
				fmt.Fprintf(d.out, "  HTTPS: %s\n", sdk.Redact(env.HTTPSProxy))
			}
			return sdk.DeferredProxy(), nil
		}
		d.warn("No system proxy found. Please configure manually.")
		choice = "2"
	}

	if choice != "2" {
		return nil, nil
	}

	host, err := p.Ask("Enter proxy host (e.g., proxy.company.com): ")
	if err != nil {
		return nil, err
	}
	port, err := p.Ask("Enter proxy port (e.g., 8080): ")
	if err != nil {
		return nil, err
	}
	user, err := p.Ask("Proxy username (press Enter if none): ")
	if err != nil {
		return nil, err
	}
	pass, err := p.Ask("Proxy password (press Enter if none): ")
	if err != nil {
		return nil, err
	}

	proxyURL := ManualProxyURL(host, port, user, pass)
	return sdk.ExplicitProxy(sdk.ProxyConfig{"http": proxyURL, "https": proxyURL}), nil
}

// ManualProxyURL builds http://[user:pass@]host:port. Credentials are used
// only when both are given.
func ManualProxyURL(host, port, user, pass string) string {
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)}
	if user != "" && pass != "" {
		u.User = url.UserPassword(user, pass)
	}
	return u.String()
}

// ProxyFromFlag maps the --proxy flag: "" keeps environment resolution,
// "env" defers to the runtime, "none" forces direct, anything else is a
// proxy URL for both schemes.
func ProxyFromFlag(value string) *sdk.ProxyResolution {
	switch value {
	case "":
		return nil
	case "env":
		return sdk.DeferredProxy()
	case "none":
		return sdk.DirectConnection()
	default:
		return sdk.ExplicitProxy(sdk.ProxyConfig{"http": value, "https": value})
	}
}
