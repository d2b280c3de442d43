package schema

import (
	"encoding/json"

	"github.com/and161185/uiruntime/internal/model"
)

// ParseAction decodes a single action (with nested onSuccess/onError/buttons).
// Issue paths are rooted at "action".
func ParseAction(raw json.RawMessage) (model.Action, []Issue) {
	p := &parser{}
	a := p.action("action", raw)
	if len(p.issues) > 0 {
		return nil, p.issues
	}
	return a, nil
}

func (p *parser) action(path string, raw json.RawMessage) model.Action {
	obj, ok := p.object(path, raw)
	if !ok {
		return nil
	}
	typ := model.ActionType(p.str(obj, path, "type", true))
	switch typ {
	case "":
		return nil
	case model.ActionNavigate:
		return model.Navigate{Target: p.str(obj, path, "target", true)}
	case model.ActionPopup:
		return p.popup(path, obj)
	case model.ActionGoBack:
		return model.GoBack{}
	case model.ActionSubmit:
		s := model.Submit{
			Target:    p.str(obj, path, "target", false),
			Table:     p.str(obj, path, "table", false),
			Fields:    p.stringMap(obj, path, "fields", true),
			OnSuccess: p.nested(obj, path, "onSuccess"),
			OnError:   p.nested(obj, path, "onError"),
		}
		if s.Target == "" {
			s.Target = model.SubmitTargetDatabase
		}
		if s.IsDatabase() && s.Table == "" {
			p.errorf(child(path, "table"), "required for database submit")
		}
		return s
	case model.ActionDeleteRecord:
		return model.DeleteRecord{
			Table:     p.str(obj, path, "table", true),
			RecordID:  p.recordID(obj, path),
			OnSuccess: p.nested(obj, path, "onSuccess"),
		}
	case model.ActionLogin:
		return model.Login{
			Fields:    p.stringMap(obj, path, "fields", true),
			OnSuccess: p.nested(obj, path, "onSuccess"),
			OnError:   p.nested(obj, path, "onError"),
		}
	case model.ActionSignup:
		return model.Signup{
			Fields:    p.stringMap(obj, path, "fields", true),
			OnSuccess: p.nested(obj, path, "onSuccess"),
			OnError:   p.nested(obj, path, "onError"),
		}
	case model.ActionLogout:
		return model.Logout{OnSuccess: p.nested(obj, path, "onSuccess")}
	default:
		p.errorf(child(path, "type"), "unknown action type %q", string(typ))
		return model.Unknown{Type: string(typ)}
	}
}

func (p *parser) nested(obj map[string]json.RawMessage, path, key string) model.Action {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return nil
	}
	return p.action(child(path, key), raw)
}

// recordID accepts a string (possibly a {{template}}) or a number.
func (p *parser) recordID(obj map[string]json.RawMessage, path string) string {
	raw, ok := obj["recordId"]
	if !ok || isNull(raw) {
		p.errorf(child(path, "recordId"), "required")
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		p.errorf(child(path, "recordId"), "expected string or number")
		return ""
	}
	switch v.(type) {
	case string, float64:
		return model.IDString(v)
	default:
		p.errorf(child(path, "recordId"), "expected string or number")
		return ""
	}
}

func (p *parser) popup(path string, obj map[string]json.RawMessage) model.Popup {
	pu := model.Popup{
		Title:   p.str(obj, path, "title", false),
		Message: p.str(obj, path, "message", true),
		Variant: p.str(obj, path, "variant", false),
	}
	raw, ok := obj["buttons"]
	if !ok || isNull(raw) {
		return pu
	}
	bpath := child(path, "buttons")
	arr, ok := p.array(bpath, raw)
	if !ok {
		return pu
	}
	for i, braw := range arr {
		ipath := index(bpath, i)
		bobj, ok := p.object(ipath, braw)
		if !ok {
			continue
		}
		pu.Buttons = append(pu.Buttons, model.PopupButton{
			Label:   p.str(bobj, ipath, "label", false),
			Variant: p.str(bobj, ipath, "variant", false),
			Action:  p.nested(bobj, ipath, "action"),
		})
	}
	return pu
}
