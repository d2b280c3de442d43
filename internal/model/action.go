package model

import "encoding/json"

// ActionType is the "type" discriminator of an action.
type ActionType string

const (
	ActionNavigate     ActionType = "navigate"
	ActionPopup        ActionType = "popup"
	ActionGoBack       ActionType = "goBack"
	ActionSubmit       ActionType = "submit"
	ActionDeleteRecord ActionType = "deleteRecord"
	ActionLogin        ActionType = "auth:login"
	ActionSignup       ActionType = "auth:signup"
	ActionLogout       ActionType = "auth:logout"
)

// Valid reports whether t is one of the closed set of action kinds.
func (t ActionType) Valid() bool {
	switch t {
	case ActionNavigate, ActionPopup, ActionGoBack, ActionSubmit,
		ActionDeleteRecord, ActionLogin, ActionSignup, ActionLogout:
		return true
	}
	return false
}

// SubmitTargetDatabase routes a submit into the record store.
const SubmitTargetDatabase = "database"

// Action is a closed sum type: one struct per kind, matched with a type switch.
type Action interface {
	Kind() ActionType
	isAction()
}

// Navigate sets the active screen id.
type Navigate struct {
	Target string
}

// Popup shows a transient modal.
type Popup struct {
	Title   string
	Message string
	Variant string
	Buttons []PopupButton
}

// PopupButton is a modal button; Action runs after the modal is dismissed.
type PopupButton struct {
	Label   string
	Variant string
	Action  Action
}

// GoBack returns to the initial screen.
type GoBack struct{}

// Submit sends mapped form values to the record store or to a remote target.
// Fields maps destination field name -> form field id.
type Submit struct {
	Target    string
	Table     string
	Fields    map[string]string
	OnSuccess Action
	OnError   Action
}

// IsDatabase reports whether the submit targets the record store.
func (s Submit) IsDatabase() bool { return s.Target == SubmitTargetDatabase || s.Target == "" }

// DeleteRecord removes a record by id. RecordID may be a {{template}}.
type DeleteRecord struct {
	Table     string
	RecordID  string
	OnSuccess Action
}

// Login authenticates against the user table. Fields maps user column -> form field id.
type Login struct {
	Fields    map[string]string
	OnSuccess Action
	OnError   Action
}

// Signup creates a user and logs in. Fields maps user column -> form field id.
type Signup struct {
	Fields    map[string]string
	OnSuccess Action
	OnError   Action
}

// Logout clears the session.
type Logout struct {
	OnSuccess Action
}

// Unknown carries an action type outside the closed set. Dispatching it is a logged no-op.
type Unknown struct {
	Type string
}

func (Navigate) Kind() ActionType     { return ActionNavigate }
func (Popup) Kind() ActionType        { return ActionPopup }
func (GoBack) Kind() ActionType       { return ActionGoBack }
func (Submit) Kind() ActionType       { return ActionSubmit }
func (DeleteRecord) Kind() ActionType { return ActionDeleteRecord }
func (Login) Kind() ActionType        { return ActionLogin }
func (Signup) Kind() ActionType       { return ActionSignup }
func (Logout) Kind() ActionType       { return ActionLogout }
func (u Unknown) Kind() ActionType    { return ActionType(u.Type) }

func (Navigate) isAction()     {}
func (Popup) isAction()        {}
func (GoBack) isAction()       {}
func (Submit) isAction()       {}
func (DeleteRecord) isAction() {}
func (Login) isAction()        {}
func (Signup) isAction()       {}
func (Logout) isAction()       {}
func (Unknown) isAction()      {}

// --- marshaling ---

type actionJSON map[string]any

func (m actionJSON) opt(k string, v any, set bool) {
	if set {
		m[k] = v
	}
}

func (a Navigate) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionJSON{"type": ActionNavigate, "target": a.Target})
}

func (a Popup) MarshalJSON() ([]byte, error) {
	m := actionJSON{"type": ActionPopup, "message": a.Message}
	m.opt("title", a.Title, a.Title != "")
	m.opt("variant", a.Variant, a.Variant != "")
	if len(a.Buttons) > 0 {
		btns := make([]actionJSON, 0, len(a.Buttons))
		for _, b := range a.Buttons {
			bm := actionJSON{"label": b.Label}
			bm.opt("variant", b.Variant, b.Variant != "")
			bm.opt("action", b.Action, b.Action != nil)
			btns = append(btns, bm)
		}
		m["buttons"] = btns
	}
	return json.Marshal(m)
}

func (a GoBack) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionJSON{"type": ActionGoBack})
}

func (a Submit) MarshalJSON() ([]byte, error) {
	m := actionJSON{"type": ActionSubmit, "target": a.Target, "fields": a.Fields}
	if a.Target == "" {
		m["target"] = SubmitTargetDatabase
	}
	m.opt("table", a.Table, a.Table != "")
	m.opt("onSuccess", a.OnSuccess, a.OnSuccess != nil)
	m.opt("onError", a.OnError, a.OnError != nil)
	return json.Marshal(m)
}

func (a DeleteRecord) MarshalJSON() ([]byte, error) {
	m := actionJSON{"type": ActionDeleteRecord, "table": a.Table, "recordId": a.RecordID}
	m.opt("onSuccess", a.OnSuccess, a.OnSuccess != nil)
	return json.Marshal(m)
}

func (a Login) MarshalJSON() ([]byte, error) {
	m := actionJSON{"type": ActionLogin, "fields": a.Fields}
	m.opt("onSuccess", a.OnSuccess, a.OnSuccess != nil)
	m.opt("onError", a.OnError, a.OnError != nil)
	return json.Marshal(m)
}

func (a Signup) MarshalJSON() ([]byte, error) {
	m := actionJSON{"type": ActionSignup, "fields": a.Fields}
	m.opt("onSuccess", a.OnSuccess, a.OnSuccess != nil)
	m.opt("onError", a.OnError, a.OnError != nil)
	return json.Marshal(m)
}

func (a Logout) MarshalJSON() ([]byte, error) {
	m := actionJSON{"type": ActionLogout}
	m.opt("onSuccess", a.OnSuccess, a.OnSuccess != nil)
	return json.Marshal(m)
}

func (a Unknown) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionJSON{"type": a.Type})
}
