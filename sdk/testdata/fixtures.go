package testdata

import (
	"encoding/json"
	"fmt"
)

// ServerInfoJSON is a Jira Cloud serverInfo payload.
const ServerInfoJSON = `{"baseUrl":"https://example.atlassian.net","version":"1001.0.0-SNAPSHOT","versionNumbers":[1001,0,0],"deploymentType":"Cloud","buildNumber":100256,"serverTitle":"Jira"}`

// MyselfJSON is a /myself payload.
const MyselfJSON = `{"self":"https://example.atlassian.net/rest/api/3/user?accountId=5b10a2844c20165700ede21g","accountId":"5b10a2844c20165700ede21g","emailAddress":"mia@example.com","displayName":"Mia Krystof","active":true,"timeZone":"Australia/Sydney","accountType":"atlassian"}`

// FieldsJSON holds five fields, two of them custom (positions 2 and 4).
const FieldsJSON = `[
  {"id":"summary","key":"summary","name":"Summary","custom":false,"orderable":true,"navigable":true,"searchable":true,"clauseNames":["summary"],"schema":{"type":"string","system":"summary"}},
  {"id":"customfield_10000","key":"customfield_10000","name":"Story Points","custom":true,"orderable":true,"navigable":true,"searchable":true,"clauseNames":["cf[10000]","Story Points"],"schema":{"type":"number","custom":"com.atlassian.jira.plugin.system.customfieldtypes:float","customId":10000}},
  {"id":"status","key":"status","name":"Status","custom":false,"orderable":false,"navigable":true,"searchable":true,"clauseNames":["status"],"schema":{"type":"status","system":"status"}},
  {"id":"customfield_10001","key":"customfield_10001","name":"Team","custom":true,"orderable":true,"navigable":true,"searchable":true,"clauseNames":["cf[10001]","Team"],"schema":{"type":"option","custom":"com.atlassian.jira.plugin.system.customfieldtypes:select","customId":10001},"untranslatedName":"Team"},
  {"id":"assignee","key":"assignee","name":"Assignee","custom":false,"orderable":true,"navigable":true,"searchable":true,"clauseNames":["assignee"],"schema":{"type":"user","system":"assignee"}}
]`

// IssueJSON builds a search-result issue with an ADF description and two
// custom fields.
func IssueJSON(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
  "id":"%d",
  "key":"ABC-%d",
  "self":"https://example.atlassian.net/rest/api/3/issue/%d",
  "fields":{
    "summary":"Issue number %d",
    "status":{"name":"In Progress","statusCategory":{"key":"indeterminate","name":"In Progress"}},
    "assignee":{"accountId":"u1","displayName":"Mia Krystof","emailAddress":"mia@example.com"},
    "reporter":{"accountId":"u2","displayName":"Ola Nordmann","emailAddress":"ola@example.com"},
    "priority":{"name":"High"},
    "issuetype":{"name":"Bug"},
    "project":{"key":"ABC","name":"Alpha"},
    "labels":["backend","urgent"],
    "components":[{"name":"api"},{"name":"db"}],
    "created":"2024-03-01T09:15:00.000+0000",
    "updated":"2024-03-02T10:30:00.000+0000",
    "resolutiondate":null,
    "description":{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"Hello"},{"type":"text","text":"world"}]}]},
    "customfield_10000":5,
    "customfield_10001":{"value":"Core"}
  }
}`, 10000+n, n, 10000+n, n))
}

// Issues builds count issues numbered from 1.
func Issues(count int) []json.RawMessage {
	out := make([]json.RawMessage, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, IssueJSON(i))
	}
	return out
}
