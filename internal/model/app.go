package model

import (
	"encoding/json"
	"strings"
)

// Reserved screen ids resolving to the built-in auth variants.
const (
	ScreenAuthLogin  = "auth:login"
	ScreenAuthSignup = "auth:signup"

	reservedPrefix = "auth:"
)

// IsReservedScreen reports whether id is handled by a built-in auth variant.
func IsReservedScreen(id string) bool { return strings.HasPrefix(id, reservedPrefix) }

// ComponentType is the closed set of renderable component kinds.
type ComponentType string

const (
	ComponentText       ComponentType = "text"
	ComponentInput      ComponentType = "input"
	ComponentButton     ComponentType = "button"
	ComponentImage      ComponentType = "image"
	ComponentList       ComponentType = "list"
	ComponentCard       ComponentType = "card"
	ComponentSelect     ComponentType = "select"
	ComponentCheckbox   ComponentType = "checkbox"
	ComponentContainer  ComponentType = "container"
	ComponentDivider    ComponentType = "divider"
	ComponentDatepicker ComponentType = "datepicker"
	ComponentTimepicker ComponentType = "timepicker"
)

var componentTypes = map[ComponentType]struct{}{
	ComponentText: {}, ComponentInput: {}, ComponentButton: {}, ComponentImage: {},
	ComponentList: {}, ComponentCard: {}, ComponentSelect: {}, ComponentCheckbox: {},
	ComponentContainer: {}, ComponentDivider: {}, ComponentDatepicker: {}, ComponentTimepicker: {},
}

// Valid reports whether t is a known component type.
func (t ComponentType) Valid() bool { _, ok := componentTypes[t]; return ok }

// FieldType is the closed set of database column types.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldTime    FieldType = "time"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldDate, FieldTime:
		return true
	}
	return false
}

// Extra holds object keys the runtime does not interpret. They are re-emitted on marshal.
type Extra map[string]json.RawMessage

// App is a validated application definition. It is immutable once built.
type App struct {
	Version       string
	Meta          Meta
	Screens       map[string]*Screen
	InitialScreen string
	Extra         Extra
}

// Meta is the "app" block: theme, tokens, database schema and auth config.
type Meta struct {
	Theme          map[string]any
	DesignTokens   map[string]any
	DatabaseSchema map[string]*Table
	Auth           *AuthConfig
	Extra          Extra
}

// Table declares the columns of a table.
type Table struct {
	Fields map[string]FieldDef
	Extra  Extra
}

// FieldDef declares a single column. Short is set when it was written as a bare type string.
type FieldDef struct {
	Type  FieldType
	Short bool
	Extra Extra
}

// AuthConfig configures the auth actions and the screen guard.
type AuthConfig struct {
	Enabled            bool
	UserTable          string
	EmailField         string
	PasswordField      string
	PostLoginScreen    string
	AuthRedirectScreen string
	Extra              Extra
}

// Screen is a named view with a component tree.
type Screen struct {
	ID           string
	Title        string
	RequiresAuth bool
	Components   []*Component
	Extra        Extra
}

// Component is a node of the component tree. Renderer-specific properties live in Extra.
type Component struct {
	ID         string
	Type       ComponentType
	Action     Action
	ActionRaw  json.RawMessage
	DataSource *DataSource
	ShowIf     string
	Children   []*Component
	Extra      Extra
}

// DataSource binds a component to a table.
type DataSource struct {
	Table string
	Raw   json.RawMessage
}

// Auth returns the auth config or a disabled zero value.
func (a *App) Auth() AuthConfig {
	if a == nil || a.Meta.Auth == nil {
		return AuthConfig{}
	}
	return *a.Meta.Auth
}

// Token returns a design token by name.
func (a *App) Token(name string) (any, bool) {
	if a == nil || a.Meta.DesignTokens == nil {
		return nil, false
	}
	v, ok := a.Meta.DesignTokens[name]
	return v, ok
}

// HasTable reports whether the database schema declares table.
func (a *App) HasTable(table string) bool {
	if a == nil {
		return false
	}
	_, ok := a.Meta.DatabaseSchema[table]
	return ok
}

// Screen returns the screen by id.
func (a *App) Screen(id string) (*Screen, bool) {
	if a == nil {
		return nil, false
	}
	s, ok := a.Screens[id]
	return s, ok && s != nil
}

// Walk visits every component of every screen depth-first.
func (a *App) Walk(fn func(screenID string, c *Component)) {
	for id, s := range a.Screens {
		if s == nil {
			continue
		}
		for _, c := range s.Components {
			c.Walk(func(cc *Component) { fn(id, cc) })
		}
	}
}

// Walk visits c and its descendants depth-first.
func (c *Component) Walk(fn func(*Component)) {
	if c == nil {
		return
	}
	fn(c)
	for _, ch := range c.Children {
		ch.Walk(fn)
	}
}

// Props decodes the renderer properties (all keys the runtime does not interpret).
func (c *Component) Props() map[string]any {
	out := make(map[string]any, len(c.Extra))
	for k, raw := range c.Extra {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			out[k] = v
		}
	}
	return out
}

// --- marshaling ---

func marshalWith(extra Extra, known map[string]any) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(extra)+len(known))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range known {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return json.Marshal(out)
}

// MarshalJSON emits the definition including unrecognized keys.
func (a *App) MarshalJSON() ([]byte, error) {
	return marshalWith(a.Extra, map[string]any{
		"version":       a.Version,
		"app":           &a.Meta,
		"screens":       a.Screens,
		"initialScreen": a.InitialScreen,
	})
}

// MarshalJSON emits the app block including unrecognized keys.
func (m *Meta) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
	if m.Theme != nil {
		known["theme"] = m.Theme
	}
	if m.DesignTokens != nil {
		known["designTokens"] = m.DesignTokens
	}
	if m.DatabaseSchema != nil {
		known["databaseSchema"] = m.DatabaseSchema
	}
	if m.Auth != nil {
		known["authentication"] = m.Auth
	}
	return marshalWith(m.Extra, known)
}

// MarshalJSON emits the table declaration.
func (t *Table) MarshalJSON() ([]byte, error) {
	return marshalWith(t.Extra, map[string]any{"fields": t.Fields})
}

// MarshalJSON emits either the shorthand string or the object form.
func (f FieldDef) MarshalJSON() ([]byte, error) {
	if f.Short && len(f.Extra) == 0 {
		return json.Marshal(string(f.Type))
	}
	return marshalWith(f.Extra, map[string]any{"type": string(f.Type)})
}

// MarshalJSON emits the auth block.
func (c *AuthConfig) MarshalJSON() ([]byte, error) {
	known := map[string]any{"enabled": c.Enabled}
	put := func(k, v string) {
		if v != "" {
			known[k] = v
		}
	}
	put("userTable", c.UserTable)
	put("emailField", c.EmailField)
	put("passwordField", c.PasswordField)
	put("postLoginScreen", c.PostLoginScreen)
	put("authRedirectScreen", c.AuthRedirectScreen)
	return marshalWith(c.Extra, known)
}

// MarshalJSON emits the screen including unrecognized keys.
func (s *Screen) MarshalJSON() ([]byte, error) {
	known := map[string]any{"components": s.Components}
	if s.Components == nil {
		known["components"] = []*Component{}
	}
	if s.ID != "" {
		known["id"] = s.ID
	}
	if s.Title != "" {
		known["title"] = s.Title
	}
	if s.RequiresAuth {
		known["requiresAuth"] = true
	}
	return marshalWith(s.Extra, known)
}

// MarshalJSON emits the component including unrecognized keys. The action is re-emitted verbatim.
func (c *Component) MarshalJSON() ([]byte, error) {
	known := map[string]any{"type": string(c.Type)}
	if c.ID != "" {
		known["id"] = c.ID
	}
	switch {
	case len(c.ActionRaw) > 0:
		known["action"] = c.ActionRaw
	case c.Action != nil:
		known["action"] = c.Action
	}
	if c.DataSource != nil {
		if len(c.DataSource.Raw) > 0 {
			known["dataSource"] = c.DataSource.Raw
		} else {
			known["dataSource"] = map[string]string{"table": c.DataSource.Table}
		}
	}
	if c.ShowIf != "" {
		known["showIf"] = c.ShowIf
	}
	if c.Children != nil {
		known["children"] = c.Children
	}
	return marshalWith(c.Extra, known)
}
