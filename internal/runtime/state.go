// Package runtime interprets an application definition: it resolves the visible screen and
// executes declarative actions against session, form and record state.
package runtime

import (
	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/store"
	"github.com/and161185/uiruntime/internal/template"
)

// FormState maps form field id -> current value. It is treated as immutable by the
// dispatcher: every change produces a new map.
type FormState map[string]any

// Clone returns a deep copy.
func (f FormState) Clone() FormState {
	out := make(FormState, len(f))
	for k, v := range f {
		out[k] = model.CloneValue(v)
	}
	return out
}

// without returns a copy lacking the given field ids.
func (f FormState) without(ids ...string) FormState {
	out := f.Clone()
	for _, id := range ids {
		delete(out, id)
	}
	return out
}

// merge returns a copy with partial applied; nil values remove the key.
func (f FormState) merge(partial map[string]any) FormState {
	out := f.Clone()
	for k, v := range partial {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = model.CloneValue(v)
	}
	return out
}

// State is the explicit runtime context passed into and returned from the dispatcher.
// Records is mutated in place; Screen, Session and Form are replaced.
type State struct {
	Screen  string
	Session *model.Session
	Form    FormState
	Records *store.Store
}

// Binding returns the template binding for this state and an optional list item.
func (s State) Binding(item model.Record) template.Binding {
	return template.Binding{Item: item, Session: s.Session, Form: map[string]any(s.Form)}
}

// Popup is a transient modal emitted by a popup action.
type Popup struct {
	ID      string              `json:"id"`
	Title   string              `json:"title,omitempty"`
	Message string              `json:"message"`
	Variant string              `json:"variant"`
	Buttons []model.PopupButton `json:"-"`
	item    model.Record
	depth   int
}

// Submission is a pending non-database submit handed to the network collaborator.
type Submission struct {
	Target    string
	Payload   map[string]any
	Fields    map[string]string
	OnSuccess model.Action
	OnError   model.Action
	item      model.Record
	depth     int
}

// Effects are the side effects of one dispatch besides state changes.
type Effects struct {
	Popups      []Popup
	Submissions []Submission
}

// fieldIDs lists the form ids referenced by a destination->source mapping.
func fieldIDs(fields map[string]string) []string {
	out := make([]string, 0, len(fields))
	for _, src := range fields {
		out = append(out, src)
	}
	return out
}
