package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/store"
)

const listApp = `{
  "version": "1",
  "app": {
    "designTokens": {"accent": "#f00"},
    "databaseSchema": {"tasks": {"fields": {"title": "string"}}}
  },
  "screens": {
    "home": {"title": "Tasks", "components": [
      {"type": "text", "text": "Hello {{session.user.name}}", "color": "$accent"},
      {"type": "text", "text": "secret", "showIf": "session.isLoggedIn"},
      {"type": "list", "dataSource": "tasks", "children": [
        {"type": "text", "text": "{{title}}"},
        {"type": "button", "label": "x", "action": {"type": "deleteRecord", "table": "tasks", "recordId": "{{id}}"}}
      ]}
    ]}
  },
  "initialScreen": "home"
}`

func TestView_RendersResolvedTree(t *testing.T) {
	rt, err := New(mustApp(t, listApp), store.Snapshot{"tasks": {{"id": "1", "title": "Milk"}, {"id": "2", "title": "Eggs"}}})
	require.NoError(t, err)

	v := rt.View()

	assert.Equal(t, "home", v.Screen)
	assert.Equal(t, KindScreen, v.Kind)
	assert.Equal(t, "Tasks", v.Title)
	require.Len(t, v.Nodes, 2, "showIf hides the logged-in text")
	assert.Equal(t, "Hello ", v.Nodes[0].Props["text"])
	assert.Equal(t, "#f00", v.Nodes[0].Props["color"])

	list := v.Nodes[1]
	require.Len(t, list.Rows, 2)
	assert.Equal(t, "Eggs", list.Rows[1].Children[0].Props["text"])
	assert.JSONEq(t, `{"type":"deleteRecord","table":"tasks","recordId":"{{id}}"}`, string(list.Rows[0].Children[1].Action))
}

func TestView_PopupsAndGuard(t *testing.T) {
	rt := newRuntime(t, nil, WithScreen("home"))
	rt.Dispatch(context.Background(), model.Popup{Message: "hi", Buttons: []model.PopupButton{{Label: "A"}, {Label: "B", Variant: "primary"}}})

	v := rt.View()

	assert.Equal(t, KindAuthLogin, v.Kind)
	assert.Equal(t, "home", v.RedirectedFrom)
	assert.Empty(t, v.Nodes)
	require.Len(t, v.Popups, 1)
	assert.Equal(t, []PopupButtonView{{Label: "A"}, {Label: "B", Variant: "primary"}}, v.Popups[0].Buttons)
}

func TestInstanceState(t *testing.T) {
	rt := newRuntime(t, usersSeed())
	rt.SetFormState(map[string]any{"emailInput": "a@b.com", "passwordInput": "x", "keep": "1"})
	rt.Dispatch(context.Background(), model.Navigate{Target: "public"})

	st := rt.InstanceState()

	assert.Equal(t, "public", st.Screen)
	assert.Nil(t, st.Session)
	assert.Equal(t, "1", st.Form["keep"])
}
