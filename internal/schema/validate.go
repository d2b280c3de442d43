package schema

import (
	"encoding/json"
	"strings"

	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/template"
)

// Validate parses raw UI-JSON text into an application definition.
// On any structural error it returns nil and the full list of issues; it never panics.
// Unrecognized keys are kept and re-emitted by the model's MarshalJSON.
func Validate(text []byte) (*model.App, []Issue) {
	p := &parser{}
	if !json.Valid(text) {
		var v any
		err := json.Unmarshal(text, &v)
		p.errorf("$", "malformed JSON: %v", err)
		return nil, p.issues
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(text, &root); err != nil || root == nil {
		p.errorf("$", "expected object")
		return nil, p.issues
	}

	app := &model.App{
		Version:       p.str(root, "", "version", true),
		InitialScreen: p.str(root, "", "initialScreen", true),
		Extra:         rest(root, "version", "app", "screens", "initialScreen"),
	}

	if raw, ok := root["app"]; ok && !isNull(raw) {
		app.Meta = p.meta("app", raw)
	} else {
		p.errorf("app", "required")
	}

	if raw, ok := root["screens"]; ok && !isNull(raw) {
		if obj, ok := p.object("screens", raw); ok {
			app.Screens = make(map[string]*model.Screen, len(obj))
			for _, id := range sortedKeys(obj) {
				if s := p.screen(child("screens", id), id, obj[id]); s != nil {
					app.Screens[id] = s
				}
			}
		}
	} else {
		p.errorf("screens", "required")
	}

	if len(p.issues) > 0 {
		return nil, p.issues
	}
	return app, nil
}

func (p *parser) meta(path string, raw json.RawMessage) model.Meta {
	obj, ok := p.object(path, raw)
	if !ok {
		return model.Meta{}
	}
	m := model.Meta{
		Theme:        p.anyMap(obj, path, "theme"),
		DesignTokens: p.anyMap(obj, path, "designTokens"),
		Extra:        rest(obj, "theme", "designTokens", "databaseSchema", "authentication"),
	}
	for _, name := range sortedKeys(m.DesignTokens) {
		switch m.DesignTokens[name].(type) {
		case map[string]any, []any:
			p.errorf(child(child(path, "designTokens"), name), "design token must be a primitive value")
		}
	}
	if raw, ok := obj["databaseSchema"]; ok && !isNull(raw) {
		m.DatabaseSchema = p.databaseSchema(child(path, "databaseSchema"), raw)
	}
	if raw, ok := obj["authentication"]; ok && !isNull(raw) {
		m.Auth = p.auth(child(path, "authentication"), raw)
	}
	return m
}

func (p *parser) databaseSchema(path string, raw json.RawMessage) map[string]*model.Table {
	obj, ok := p.object(path, raw)
	if !ok {
		return nil
	}
	out := make(map[string]*model.Table, len(obj))
	for _, name := range sortedKeys(obj) {
		tpath := child(path, name)
		tobj, ok := p.object(tpath, obj[name])
		if !ok {
			continue
		}
		t := &model.Table{Fields: map[string]model.FieldDef{}, Extra: rest(tobj, "fields")}
		if fraw, ok := tobj["fields"]; ok && !isNull(fraw) {
			if fobj, ok := p.object(child(tpath, "fields"), fraw); ok {
				for _, fname := range sortedKeys(fobj) {
					if fd, ok := p.field(child(child(tpath, "fields"), fname), fobj[fname]); ok {
						t.Fields[fname] = fd
					}
				}
			}
		}
		out[name] = t
	}
	return out
}

func (p *parser) field(path string, raw json.RawMessage) (model.FieldDef, bool) {
	var short string
	if err := json.Unmarshal(raw, &short); err == nil {
		ft := model.FieldType(short)
		if !ft.Valid() {
			p.errorf(path, "unknown field type %q", short)
			return model.FieldDef{}, false
		}
		return model.FieldDef{Type: ft, Short: true}, true
	}
	obj, ok := p.object(path, raw)
	if !ok {
		return model.FieldDef{}, false
	}
	typ := p.str(obj, path, "type", true)
	ft := model.FieldType(typ)
	if typ != "" && !ft.Valid() {
		p.errorf(child(path, "type"), "unknown field type %q", typ)
		return model.FieldDef{}, false
	}
	return model.FieldDef{Type: ft, Extra: rest(obj, "type")}, true
}

func (p *parser) auth(path string, raw json.RawMessage) *model.AuthConfig {
	obj, ok := p.object(path, raw)
	if !ok {
		return nil
	}
	c := &model.AuthConfig{
		Enabled:            p.boolean(obj, path, "enabled"),
		UserTable:          p.str(obj, path, "userTable", false),
		EmailField:         p.str(obj, path, "emailField", false),
		PasswordField:      p.str(obj, path, "passwordField", false),
		PostLoginScreen:    p.str(obj, path, "postLoginScreen", false),
		AuthRedirectScreen: p.str(obj, path, "authRedirectScreen", false),
		Extra: rest(obj, "enabled", "userTable", "emailField", "passwordField",
			"postLoginScreen", "authRedirectScreen"),
	}
	if c.Enabled {
		if c.UserTable == "" {
			p.errorf(child(path, "userTable"), "required when authentication is enabled")
		}
		if c.EmailField == "" {
			p.errorf(child(path, "emailField"), "required when authentication is enabled")
		}
		if c.PasswordField == "" {
			p.errorf(child(path, "passwordField"), "required when authentication is enabled")
		}
	}
	return c
}

func (p *parser) screen(path, id string, raw json.RawMessage) *model.Screen {
	obj, ok := p.object(path, raw)
	if !ok {
		return nil
	}
	s := &model.Screen{
		ID:           p.str(obj, path, "id", false),
		Title:        p.str(obj, path, "title", false),
		RequiresAuth: p.boolean(obj, path, "requiresAuth"),
		Extra:        rest(obj, "id", "title", "requiresAuth", "components"),
	}
	if s.ID == "" {
		s.ID = id
	}
	if model.IsReservedScreen(id) {
		p.errorf(path, "screen id %q uses the reserved auth: prefix", id)
	}
	if craw, ok := obj["components"]; ok && !isNull(craw) {
		s.Components = p.components(child(path, "components"), craw)
	}
	return s
}

func (p *parser) components(path string, raw json.RawMessage) []*model.Component {
	arr, ok := p.array(path, raw)
	if !ok {
		return nil
	}
	out := make([]*model.Component, 0, len(arr))
	for i, craw := range arr {
		if c := p.component(index(path, i), craw); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (p *parser) component(path string, raw json.RawMessage) *model.Component {
	obj, ok := p.object(path, raw)
	if !ok {
		return nil
	}
	c := &model.Component{
		ID:     p.str(obj, path, "id", false),
		ShowIf: p.str(obj, path, "showIf", false),
		Extra:  rest(obj, "id", "type", "action", "dataSource", "showIf", "children"),
	}
	typ := p.str(obj, path, "type", true)
	c.Type = model.ComponentType(typ)
	if typ != "" && !c.Type.Valid() {
		p.errorf(child(path, "type"), "unknown component type %q", typ)
	}
	if araw, ok := obj["action"]; ok && !isNull(araw) {
		c.Action = p.action(child(path, "action"), araw)
		c.ActionRaw = araw
	}
	if draw, ok := obj["dataSource"]; ok && !isNull(draw) {
		c.DataSource = p.dataSource(child(path, "dataSource"), draw)
	}
	if strings.TrimSpace(c.ShowIf) != "" {
		if err := template.CompileCondition(c.ShowIf); err != nil {
			p.errorf(child(path, "showIf"), "invalid condition: %v", err)
		}
	}
	if chraw, ok := obj["children"]; ok && !isNull(chraw) {
		c.Children = p.components(child(path, "children"), chraw)
	}
	return c
}

func (p *parser) dataSource(path string, raw json.RawMessage) *model.DataSource {
	var table string
	if err := json.Unmarshal(raw, &table); err == nil {
		if table == "" {
			p.errorf(path, "must not be empty")
		}
		return &model.DataSource{Table: table, Raw: raw}
	}
	obj, ok := p.object(path, raw)
	if !ok {
		return nil
	}
	return &model.DataSource{Table: p.str(obj, path, "table", true), Raw: raw}
}
