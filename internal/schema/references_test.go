package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReferences_Clean(t *testing.T) {
	app, issues := Validate([]byte(fullDoc))
	require.Empty(t, issues)

	assert.Empty(t, CheckReferences(app))
}

func TestCheckReferences_Dangling(t *testing.T) {
	app, issues := Validate([]byte(`{
	  "version": "1",
	  "app": {
	    "databaseSchema": {"tasks": {"fields": {"title": "string"}}},
	    "authentication": {"enabled": true, "userTable": "members", "emailField": "e",
	      "passwordField": "p", "postLoginScreen": "dashboard", "authRedirectScreen": "auth:signup"}
	  },
	  "screens": {
	    "a": {"components": [
	      {"type": "list", "dataSource": "notes", "children": [
	        {"type": "button", "action": {"type": "deleteRecord", "table": "notes", "recordId": "{{id}}"}}
	      ]},
	      {"type": "button", "action": {"type": "submit", "table": "tasks", "fields": {},
	        "onSuccess": {"type": "navigate", "target": "done"}}},
	      {"type": "button", "action": {"type": "submit", "target": "https://x.test", "fields": {}}},
	      {"type": "button", "action": {"type": "popup", "message": "?",
	        "buttons": [{"label": "go", "action": {"type": "navigate", "target": "auth:login"}}]}}
	    ]}
	  },
	  "initialScreen": "start"
	}`))
	require.Empty(t, issues)

	warnings := CheckReferences(app)

	got := map[string]string{}
	for _, w := range warnings {
		assert.Equal(t, SeverityWarning, w.Severity)
		got[w.Path] = w.Message
	}
	assert.Equal(t, map[string]string{
		"initialScreen":                      `unknown screen "start"`,
		"app.authentication.postLoginScreen": `unknown screen "dashboard"`,
		"app.authentication.userTable":       `unknown table "members"`,
		"screens.a.components[0].dataSource": `unknown table "notes"`,
		"screens.a.components[0].children[0].action.table": `unknown table "notes"`,
		"screens.a.components[1].action.onSuccess.target":  `unknown screen "done"`,
	}, got)
	assert.NoError(t, Err(warnings))
}
