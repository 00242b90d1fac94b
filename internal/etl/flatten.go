package etl

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/birbparty/jira-nest/sdk"
)

// Base columns, in output order.
const (
	ColIssueKey    = "issue_key"
	ColIssueID     = "issue_id"
	ColSummary     = "summary"
	ColStatus      = "status"
	ColAssignee    = "assignee"
	ColUpdated     = "updated"
	ColDescription = "description"
)

const customFieldPrefix = "customfield_"

// Row is one flattened issue. A nil value is a null cell.
type Row struct {
	columns []string
	values  map[string]*string
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]*string)}
}

// Set stores a value, appending the column on first use.
func (r *Row) Set(column string, value *string) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Columns returns the column names in insertion order.
func (r *Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Get returns the value of column and whether the column exists.
func (r *Row) Get(column string) (*string, bool) {
	v, ok := r.values[column]
	return v, ok
}

// String returns the value of column, or "" for null and missing cells.
func (r *Row) String(column string) string {
	if v := r.values[column]; v != nil {
		return *v
	}
	return ""
}

// CustomFields returns the customfield_* cells.
func (r *Row) CustomFields() map[string]*string {
	out := make(map[string]*string)
	for _, c := range r.columns {
		if strings.HasPrefix(c, customFieldPrefix) {
			out[c] = r.values[c]
		}
	}
	return out
}

// MarshalJSON writes the row as an object in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(c)
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(r.values[c])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type namedRef struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Flatten turns an issue into a row: the base columns first, then every
// customfield_* in the order the server sent them.
func Flatten(issue sdk.Issue) *Row {
	row := NewRow()
	row.Set(ColIssueKey, strPtr(issue.Key))
	row.Set(ColIssueID, strPtr(issue.ID))
	row.Set(ColSummary, stringValue(issue.Fields["summary"]))

	var status namedRef
	if ok, _ := issue.Field("status", &status); ok {
		row.Set(ColStatus, strPtr(status.Name))
	} else {
		row.Set(ColStatus, nil)
	}

	var assignee namedRef
	if ok, _ := issue.Field("assignee", &assignee); ok {
		row.Set(ColAssignee, strPtr(assignee.DisplayName))
	} else {
		row.Set(ColAssignee, nil)
	}

	row.Set(ColUpdated, stringValue(issue.Fields["updated"]))
	row.Set(ColDescription, Description(issue.Fields["description"]))

	for _, name := range customFieldOrder(issue) {
		row.Set(name, stringValue(issue.Fields[name]))
	}
	return row
}

// FlattenAll flattens every issue.
func FlattenAll(issues []sdk.Issue) []*Row {
	rows := make([]*Row, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, Flatten(issue))
	}
	return rows
}

// Description renders a description field: ADF documents become plain
// text, strings pass through, anything else is kept as JSON text.
func Description(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	var doc ADFNode
	if raw[0] == '{' && json.Unmarshal(raw, &doc) == nil && doc.Content != nil {
		return strPtr(ExtractADFText(doc))
	}
	return stringValue(raw)
}

// ADFNode is a node of an Atlassian Document Format tree.
type ADFNode struct {
	Type    string    `json:"type,omitempty"`
	Text    *string   `json:"text,omitempty"`
	Content []ADFNode `json:"content,omitempty"`
}

// ExtractADFText joins, for each child of node, its text and then the
// text of its own children, separated by single spaces.
func ExtractADFText(node ADFNode) string {
	parts := make([]string, 0, len(node.Content))
	for _, child := range node.Content {
		if child.Text != nil {
			parts = append(parts, *child.Text)
		}
		if child.Content != nil {
			parts = append(parts, ExtractADFText(child))
		}
	}
	return strings.Join(parts, " ")
}

// customFieldOrder lists customfield_* keys in document order. Fields is a
// map, so the order is recovered from the raw object when available.
func customFieldOrder(issue sdk.Issue) []string {
	var names []string
	if len(issue.Raw) > 0 {
		names = rawFieldOrder(issue.Raw)
	}
	if names == nil {
		for name := range issue.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	out := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, customFieldPrefix) {
			out = append(out, n)
		}
	}
	return out
}

func rawFieldOrder(raw json.RawMessage) []string {
	var envelope struct {
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || isNull(envelope.Fields) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(envelope.Fields))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var names []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)
		names = append(names, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil
		}
	}
	return names
}

// stringValue renders a JSON value as a cell: strings unquoted, null as a
// null cell, everything else as compact JSON text.
func stringValue(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return &s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strPtr(string(raw))
	}
	return strPtr(buf.String())
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func strPtr(s string) *string {
	return &s
}
