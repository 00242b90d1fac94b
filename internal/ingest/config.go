package ingest

import (
	"os"
	"strconv"
	"strings"
)

// DefaultIssueTypes are synced when JIRA_ISSUE_TYPES is unset
var DefaultIssueTypes = []string{"Bug", "Story", "Task"}

// CustomSearchType is the issue type given to ad-hoc search results that
// carry no type of their own
const CustomSearchType = "Custom_Search"

// Config controls the sync service
type Config struct {
	// Project limits the sync JQL to one project key
	Project    string
	IssueTypes []string
	PageSize   int
	// RetentionDays is how long staged issues are kept
	RetentionDays int
}

// NewConfigFromEnv reads JIRA_PROJECT, JIRA_ISSUE_TYPES, JIRA_PAGE_SIZE and
// RETENTION_DAYS.
func NewConfigFromEnv() *Config {
	cfg := &Config{
		Project:       os.Getenv("JIRA_PROJECT"),
		IssueTypes:    DefaultIssueTypes,
		PageSize:      getEnvInt("JIRA_PAGE_SIZE", 100),
		RetentionDays: getEnvInt("RETENTION_DAYS", 30),
	}

	if raw := os.Getenv("JIRA_ISSUE_TYPES"); raw != "" {
		cfg.IssueTypes = ParseIssueTypes(raw)
	}

	return cfg
}

// ParseIssueTypes splits a comma separated list, dropping blanks
func ParseIssueTypes(raw string) []string {
	var types []string
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			types = append(types, t)
		}
	}
	return types
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
