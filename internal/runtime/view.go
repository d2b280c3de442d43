package runtime

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/template"
)

// Node is a resolved component handed to a renderer: tokens and templates applied,
// hidden components dropped, list components expanded per record.
type Node struct {
	ID       string              `json:"id,omitempty"`
	Type     model.ComponentType `json:"type"`
	Props    map[string]any      `json:"props,omitempty"`
	Action   json.RawMessage     `json:"action,omitempty"`
	Children []Node              `json:"children,omitempty"`
	Rows     []Row               `json:"rows,omitempty"`
}

// Row is one record of a dataSource-bound component with its rendered children.
type Row struct {
	Item     model.Record `json:"item"`
	Children []Node       `json:"children"`
}

// PopupButtonView is a popup button as shown to the user.
type PopupButtonView struct {
	Label   string `json:"label"`
	Variant string `json:"variant,omitempty"`
}

// PopupView is an open popup as shown to the user.
type PopupView struct {
	ID      string            `json:"id"`
	Title   string            `json:"title,omitempty"`
	Message string            `json:"message"`
	Variant string            `json:"variant"`
	Buttons []PopupButtonView `json:"buttons"`
}

// View is everything a renderer needs for one frame.
type View struct {
	Screen         string         `json:"screen"`
	Kind           ResolutionKind `json:"kind"`
	RedirectedFrom string         `json:"redirectedFrom,omitempty"`
	Title          string         `json:"title,omitempty"`
	Nodes          []Node         `json:"nodes"`
	Popups         []PopupView    `json:"popups"`
	Session        *model.Session `json:"session,omitempty"`
	Form           FormState      `json:"form"`
}

// View renders the current frame.
func (r *Runtime) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.screens.Resolve(r.state.Screen, r.state.Session)
	v := View{
		Screen:         res.ScreenID,
		Kind:           res.Kind,
		RedirectedFrom: res.RedirectedFrom,
		Nodes:          []Node{},
		Popups:         make([]PopupView, 0, len(r.popups)),
		Session:        r.state.Session.Clone(),
		Form:           r.state.Form.Clone(),
	}
	if res.Screen != nil {
		b := r.state.Binding(nil)
		v.Title = template.Format(r.tokens.Resolve(res.Screen.Title, b))
		v.Nodes = r.renderAll(res.Screen.Components, nil)
	}
	for _, p := range r.popups {
		pv := PopupView{ID: p.ID, Title: p.Title, Message: p.Message, Variant: p.Variant}
		for _, b := range p.Buttons {
			pv.Buttons = append(pv.Buttons, PopupButtonView{Label: b.Label, Variant: b.Variant})
		}
		v.Popups = append(v.Popups, pv)
	}
	return v
}

// renderAll renders sibling components. Callers hold r.mu.
func (r *Runtime) renderAll(cs []*model.Component, item model.Record) []Node {
	out := make([]Node, 0, len(cs))
	for _, c := range cs {
		if n, ok := r.render(c, item); ok {
			out = append(out, n)
		}
	}
	return out
}

func (r *Runtime) render(c *model.Component, item model.Record) (Node, bool) {
	if c == nil {
		return Node{}, false
	}
	b := r.state.Binding(item)
	visible, err := template.Visible(c.ShowIf, b)
	if err != nil {
		r.log.Warn("showIf evaluation failed", zap.String("component", c.ID), zap.Error(err))
	}
	if !visible {
		return Node{}, false
	}

	n := Node{ID: c.ID, Type: c.Type, Action: c.ActionRaw}
	if props := c.Props(); len(props) > 0 {
		if resolved, ok := r.tokens.Resolve(props, b).(map[string]any); ok {
			n.Props = resolved
		}
	}
	if c.DataSource == nil {
		n.Children = r.renderAll(c.Children, item)
		return n, true
	}
	rows := r.state.Records.Rows(c.DataSource.Table)
	n.Rows = make([]Row, 0, len(rows))
	for _, rec := range rows {
		n.Rows = append(n.Rows, Row{Item: rec, Children: r.renderAll(c.Children, rec)})
	}
	return n, true
}
