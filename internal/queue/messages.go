package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the outcome a sync event reports
type EventType string

const (
	EventSyncCompleted EventType = "sync.completed"
	EventSyncFailed    EventType = "sync.failed"
)

// DefaultStreamName is the JetStream stream holding sync events
const DefaultStreamName = "JIRA_SYNC"

// Subject names for the event types
const (
	SubjectSyncCompleted = "jira.sync.completed"
	SubjectSyncFailed    = "jira.sync.failed"
	SubjectWildcard      = "jira.sync.>"
)

// SyncEvent announces the end of one sync run
type SyncEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	IssueType  string    `json:"issue_type"`
	JQL        string    `json:"jql"`
	Fetched    int       `json:"fetched"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// NewSyncEvent creates an event; a non-nil runErr makes it a failure event.
func NewSyncEvent(issueType, jql string, fetched, inserted, updated int, duration time.Duration, runErr error) *SyncEvent {
	ev := &SyncEvent{
		ID:         uuid.NewString(),
		Type:       EventSyncCompleted,
		Timestamp:  time.Now().UTC(),
		IssueType:  issueType,
		JQL:        jql,
		Fetched:    fetched,
		Inserted:   inserted,
		Updated:    updated,
		DurationMS: duration.Milliseconds(),
	}
	if runErr != nil {
		ev.Type = EventSyncFailed
		ev.Error = runErr.Error()
	}
	return ev
}

// Subject returns the subject the event is published on
func (e *SyncEvent) Subject() string {
	if e.Type == EventSyncFailed {
		return SubjectSyncFailed
	}
	return SubjectSyncCompleted
}

// Marshal converts the event to JSON bytes
func (e *SyncEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalSyncEvent unmarshals a sync event from JSON
func UnmarshalSyncEvent(data []byte) (*SyncEvent, error) {
	var ev SyncEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
