package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/and161185/uiruntime/internal/model"
)

// parser accumulates issues while decoding raw JSON objects level by level.
type parser struct {
	issues []Issue
}

func (p *parser) errorf(path, format string, args ...any) {
	p.issues = append(p.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// object decodes raw as a JSON object.
func (p *parser) object(path string, raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		p.errorf(path, "expected object")
		return nil, false
	}
	return m, true
}

// array decodes raw as a JSON array.
func (p *parser) array(path string, raw json.RawMessage) ([]json.RawMessage, bool) {
	var a []json.RawMessage
	if err := json.Unmarshal(raw, &a); err != nil || a == nil {
		p.errorf(path, "expected array")
		return nil, false
	}
	return a, true
}

// str reads an optional string key; required reports a missing key as an issue.
func (p *parser) str(obj map[string]json.RawMessage, path, key string, required bool) string {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		if required {
			p.errorf(child(path, key), "required")
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		p.errorf(child(path, key), "expected string")
		return ""
	}
	if required && s == "" {
		p.errorf(child(path, key), "must not be empty")
	}
	return s
}

func (p *parser) boolean(obj map[string]json.RawMessage, path, key string) bool {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		p.errorf(child(path, key), "expected boolean")
	}
	return b
}

// anyMap reads an optional object of arbitrary JSON values.
func (p *parser) anyMap(obj map[string]json.RawMessage, path, key string) map[string]any {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		p.errorf(child(path, key), "expected object")
		return nil
	}
	return m
}

// stringMap reads an object whose values must all be strings.
func (p *parser) stringMap(obj map[string]json.RawMessage, path, key string, required bool) map[string]string {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		if required {
			p.errorf(child(path, key), "required")
		}
		return nil
	}
	m, ok := p.object(child(path, key), raw)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for _, k := range sortedKeys(m) {
		var s string
		if err := json.Unmarshal(m[k], &s); err != nil {
			p.errorf(child(child(path, key), k), "expected string")
			continue
		}
		out[k] = s
	}
	return out
}

// rest returns the keys not in known, preserved for re-serialization.
func rest(obj map[string]json.RawMessage, known ...string) model.Extra {
	skip := make(map[string]struct{}, len(known))
	for _, k := range known {
		skip[k] = struct{}{}
	}
	var out model.Extra
	for k, v := range obj {
		if _, ok := skip[k]; ok {
			continue
		}
		if out == nil {
			out = model.Extra{}
		}
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
