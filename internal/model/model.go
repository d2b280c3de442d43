// Package model defines the application definition, actions and runtime records.
package model

import (
	"fmt"
	"strconv"
)

// IDKey is the record key holding the generated record id.
const IDKey = "id"

// Record is a single row of a table in the record store. Values are JSON-compatible.
type Record map[string]any

// ID returns the record id in its string form ("" if absent).
func (r Record) ID() string {
	return IDString(r[IDKey])
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// Map returns the record as a plain map (deep copy).
func (r Record) Map() map[string]any {
	return map[string]any(r.Clone())
}

// Session is the currently logged-in user. A nil *Session means logged out.
type Session struct {
	User Record `json:"user"`
}

// LoggedIn reports whether s holds a user.
func (s *Session) LoggedIn() bool { return s != nil && s.User != nil }

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	return &Session{User: s.User.Clone()}
}

// IDString normalizes an id value (string, JSON number, integer) to its string form.
func IDString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// CloneValue deep-copies JSON-like values (maps, slices, scalars).
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = CloneValue(vv)
		}
		return out
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = CloneValue(vv)
		}
		return out
	default:
		return v
	}
}
