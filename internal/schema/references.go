package schema

import (
	"fmt"

	"github.com/and161185/uiruntime/internal/model"
)

// CheckReferences reports dangling screen and table references as warnings.
// It is independent of Validate and never fails the definition.
func CheckReferences(app *model.App) []Issue {
	if app == nil {
		return nil
	}
	r := &refChecker{app: app}

	r.screen("initialScreen", app.InitialScreen)
	if ac := app.Meta.Auth; ac != nil {
		apath := "app.authentication"
		if ac.PostLoginScreen != "" {
			r.screen(child(apath, "postLoginScreen"), ac.PostLoginScreen)
		}
		if ac.AuthRedirectScreen != "" {
			r.screen(child(apath, "authRedirectScreen"), ac.AuthRedirectScreen)
		}
		if ac.UserTable != "" {
			r.table(child(apath, "userTable"), ac.UserTable)
		}
	}

	for _, id := range sortedKeys(app.Screens) {
		s := app.Screens[id]
		if s == nil {
			continue
		}
		base := child(child("screens", id), "components")
		for i, c := range s.Components {
			r.component(index(base, i), c)
		}
	}
	return r.issues
}

type refChecker struct {
	app    *model.App
	issues []Issue
}

func (r *refChecker) warnf(path, format string, args ...any) {
	r.issues = append(r.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

func (r *refChecker) screen(path, id string) {
	if id == "" || model.IsReservedScreen(id) {
		return
	}
	if _, ok := r.app.Screen(id); !ok {
		r.warnf(path, "unknown screen %q", id)
	}
}

func (r *refChecker) table(path, name string) {
	if name == "" {
		return
	}
	if !r.app.HasTable(name) {
		r.warnf(path, "unknown table %q", name)
	}
}

func (r *refChecker) component(path string, c *model.Component) {
	if c == nil {
		return
	}
	if c.DataSource != nil {
		r.table(child(path, "dataSource"), c.DataSource.Table)
	}
	if c.Action != nil {
		r.action(child(path, "action"), c.Action)
	}
	for i, ch := range c.Children {
		r.component(index(child(path, "children"), i), ch)
	}
}

func (r *refChecker) action(path string, a model.Action) {
	switch v := a.(type) {
	case model.Navigate:
		r.screen(child(path, "target"), v.Target)
	case model.Popup:
		for i, b := range v.Buttons {
			if b.Action != nil {
				r.action(child(index(child(path, "buttons"), i), "action"), b.Action)
			}
		}
	case model.Submit:
		if v.IsDatabase() {
			r.table(child(path, "table"), v.Table)
		}
		r.nested(path, "onSuccess", v.OnSuccess)
		r.nested(path, "onError", v.OnError)
	case model.DeleteRecord:
		r.table(child(path, "table"), v.Table)
		r.nested(path, "onSuccess", v.OnSuccess)
	case model.Login:
		r.nested(path, "onSuccess", v.OnSuccess)
		r.nested(path, "onError", v.OnError)
	case model.Signup:
		r.nested(path, "onSuccess", v.OnSuccess)
		r.nested(path, "onError", v.OnError)
	case model.Logout:
		r.nested(path, "onSuccess", v.OnSuccess)
	}
}

func (r *refChecker) nested(path, key string, a model.Action) {
	if a != nil {
		r.action(child(path, key), a)
	}
}
