// Package sdk is a Jira Cloud REST client built for batch extraction and
// troubleshooting behind corporate networks.
//
// # Features
//
// The client provides:
//   - Basic authentication with an account e-mail and API token
//   - Connection pooling (10 connections by default) with keep-alive and gzip
//   - Proxy resolution performed once at construction: explicit proxies,
//     else HTTP_PROXY/HTTPS_PROXY/NO_PROXY, else a direct connection
//   - Bounded retries with exponential backoff (1s, 2s, 4s, ...) for
//     timeouts and connection failures only
//   - Structured errors: timeout, connection, HTTP status, decode, unknown
//   - Context support for cancellation
//
// # Basic Usage
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://yourcompany.atlassian.net").
//	    WithCredentials(os.Getenv("JIRA_EMAIL"), os.Getenv("JIRA_API_TOKEN")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if !client.TestConnection(ctx) {
//	    log.Fatal("cannot reach Jira")
//	}
//
//	issues, err := client.SearchAllIssues(ctx, "project = ABC", nil)
//
// # Retries
//
// Every Execute runs a small state machine (see RetryPhase). HTTP error
// statuses are never retried: the server received the request and
// rejected it. Backoff waits go through Config.Clock so tests can replace
// time.
//
// # Proxies
//
// Use ExplicitProxy for a fixed proxy, DeferredProxy to leave the choice to
// net/http at request time, or DirectConnection to ignore the environment.
//
// # Error Handling
//
//	_, err := client.GetFields(ctx)
//	switch {
//	case errors.Is(err, sdk.ErrTimeout), errors.Is(err, sdk.ErrConnection):
//	    // network trouble; sdk.IsProxyError(err) tells if the proxy refused us
//	case errors.Is(err, sdk.ErrHTTPStatus):
//	    log.Printf("jira answered %d", sdk.StatusCode(err))
//	}
package sdk
