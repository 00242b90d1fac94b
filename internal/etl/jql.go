package etl

import (
	"fmt"
	"time"
)

const (
	jqlMinuteLayout = "2006-01-02 15:04"
	jqlDayLayout    = "2006-01-02"
)

// UpdatedSinceJQL selects issues updated in the last days, measured in UTC
// from now. project and extra are optional.
//
//	project = ABC AND updated >= '2024-03-01 10:00' AND statusCategory != Done
func UpdatedSinceJQL(now time.Time, days int, project, extra string) string {
	since := now.UTC().AddDate(0, 0, -days).Format(jqlMinuteLayout)
	jql := fmt.Sprintf("updated >= '%s'", since)
	if project != "" {
		jql = fmt.Sprintf("project = %s AND %s", project, jql)
	}
	if extra != "" {
		jql = fmt.Sprintf("%s AND %s", jql, extra)
	}
	return jql
}

// UpdatedOnJQL selects issues updated during the calendar day of day, in
// day's location. issueType and project are optional and wrap the range.
func UpdatedOnJQL(day time.Time, issueType, project string) string {
	d := day.Format(jqlDayLayout)
	jql := fmt.Sprintf("updated >= '%s 00:00' AND updated <= '%s 23:59'", d, d)
	if issueType != "" {
		jql = fmt.Sprintf("issueType = '%s' AND (%s)", issueType, jql)
	}
	if project != "" {
		jql = fmt.Sprintf("project = '%s' AND (%s)", project, jql)
	}
	return jql
}

// YesterdayJQL is UpdatedOnJQL for the day before now.
func YesterdayJQL(now time.Time, issueType, project string) string {
	return UpdatedOnJQL(now.AddDate(0, 0, -1), issueType, project)
}
