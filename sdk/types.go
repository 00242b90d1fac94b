package sdk

import (
	"encoding/json"
)

// Field is one entry of GET /rest/api/3/field.
//
// The typed members cover what callers usually need; Raw holds the exact
// object the server sent, and MarshalJSON returns it unchanged so a saved
// field list is lossless.
type Field struct {
	ID          string       `json:"id"`
	Key         string       `json:"key,omitempty"`
	Name        string       `json:"name"`
	Custom      bool         `json:"custom"`
	Orderable   bool         `json:"orderable,omitempty"`
	Navigable   bool         `json:"navigable,omitempty"`
	Searchable  bool         `json:"searchable,omitempty"`
	ClauseNames []string     `json:"clauseNames,omitempty"`
	Schema      *FieldSchema `json:"schema,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// FieldSchema describes the value type of a field.
type FieldSchema struct {
	Type     string `json:"type"`
	Items    string `json:"items,omitempty"`
	System   string `json:"system,omitempty"`
	Custom   string `json:"custom,omitempty"`
	CustomID int64  `json:"customId,omitempty"`
}

// SchemaType returns the schema type or "unknown".
func (f Field) SchemaType() string {
	if f.Schema == nil || f.Schema.Type == "" {
		return "unknown"
	}
	return f.Schema.Type
}

// UnmarshalJSON decodes the typed members and keeps the raw object.
func (f *Field) UnmarshalJSON(data []byte) error {
	type plain Field
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = Field(p)
	f.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the raw object when present.
func (f Field) MarshalJSON() ([]byte, error) {
	if len(f.Raw) > 0 {
		return f.Raw, nil
	}
	type plain Field
	return json.Marshal(plain(f))
}

// User is the subset of a Jira user returned by /myself and issue fields.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Active       bool   `json:"active"`
	TimeZone     string `json:"timeZone,omitempty"`
	AccountType  string `json:"accountType,omitempty"`
	Self         string `json:"self,omitempty"`
}

// ServerInfo is the response of /rest/api/3/serverInfo.
type ServerInfo struct {
	BaseURL        string `json:"baseUrl"`
	Version        string `json:"version"`
	VersionNumbers []int  `json:"versionNumbers,omitempty"`
	DeploymentType string `json:"deploymentType,omitempty"`
	BuildNumber    int64  `json:"buildNumber,omitempty"`
	ServerTitle    string `json:"serverTitle,omitempty"`
}

// Issue is one search result. Fields are kept undecoded because their
// shape depends on the site's field configuration.
type Issue struct {
	ID     string                     `json:"id"`
	Key    string                     `json:"key"`
	Self   string                     `json:"self,omitempty"`
	Fields map[string]json.RawMessage `json:"fields"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the issue and keeps the raw object.
func (i *Issue) UnmarshalJSON(data []byte) error {
	type plain Issue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Issue(p)
	i.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the raw object when present.
func (i Issue) MarshalJSON() ([]byte, error) {
	if len(i.Raw) > 0 {
		return i.Raw, nil
	}
	type plain Issue
	return json.Marshal(plain(i))
}

// Field decodes a single field into dest. It reports false when the field
// is absent or null.
func (i Issue) Field(name string, dest interface{}) (bool, error) {
	raw, ok := i.Fields[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, (&DecodeError{Body: string(raw), Err: err}).ToError()
	}
	return true, nil
}

// StringField returns a string field, or "" when it is absent or not a string.
func (i Issue) StringField(name string) string {
	var s string
	if ok, err := i.Field(name, &s); !ok || err != nil {
		return ""
	}
	return s
}

// ConnectionReport is the detailed result of CheckConnection.
type ConnectionReport struct {
	// ServerInfo is nil when the warm-up call failed
	ServerInfo *ServerInfo
	// ServerInfoErr is the warm-up failure, which does not fail the check
	ServerInfoErr error
	// User is the authenticated account
	User *User
	// Attempts is the number of attempts the /myself call needed
	Attempts int
}

// Connected reports whether the authenticated call returned a user.
func (r *ConnectionReport) Connected() bool {
	return r != nil && r.User != nil
}
