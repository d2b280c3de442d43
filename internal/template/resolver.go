// Package template resolves $design-token references and {{path}} interpolation
// against the runtime binding context, and evaluates showIf conditions.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/and161185/uiruntime/internal/model"
)

var (
	placeholder = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)
	// identifiers with optional [n] indexes go through jsonpath
	indexedPath = regexp.MustCompile(`^[A-Za-z_]\w*(?:\.[A-Za-z_]\w*|\[\d+\])*$`)
	// keys with dashes or inner spaces are walked segment by segment
	dottedPath = regexp.MustCompile(`^[\w-]+(?: [\w-]+)*(?:\.[\w-]+(?: [\w-]+)*)*$`)
)

// Binding is the data a template is resolved against.
type Binding struct {
	Item    model.Record   // list-item record for dataSource-bound components
	Session *model.Session // nil when logged out
	Form    map[string]any // current form state
}

// Root builds the lookup root: item fields at the top level plus item, form and session.
func (b Binding) Root() map[string]any {
	root := make(map[string]any, len(b.Item)+3)
	for k, v := range b.Item {
		root[k] = v
	}
	if b.Item != nil {
		root["item"] = map[string]any(b.Item)
	}
	form := b.Form
	if form == nil {
		form = map[string]any{}
	}
	root["form"] = form
	root["session"] = sessionView(b.Session)
	return root
}

func sessionView(s *model.Session) map[string]any {
	v := map[string]any{
		"isLoggedIn":  s.LoggedIn(),
		"isLoggedOut": !s.LoggedIn(),
	}
	if s.LoggedIn() {
		v["user"] = map[string]any(s.User)
	}
	return v
}

// Resolver applies token and template rules. It is safe for concurrent use.
type Resolver struct {
	tokens map[string]any
}

// New returns a resolver over the given design tokens.
func New(tokens map[string]any) *Resolver {
	return &Resolver{tokens: tokens}
}

// Resolve walks strings, maps and slices applying both rules. Other values pass through.
func (r *Resolver) Resolve(v any, b Binding) any {
	switch t := v.(type) {
	case string:
		return r.String(t, b)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = r.Resolve(vv, b)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = r.Resolve(vv, b)
		}
		return out
	default:
		return v
	}
}

// String resolves a single string. A "$name" string becomes the token value (which may be
// non-string); anything containing {{...}} is interpolated. Unknown tokens stay literal.
func (r *Resolver) String(s string, b Binding) any {
	if tok, ok := r.Token(s); ok {
		return tok
	}
	if strings.Contains(s, "{{") {
		return Interpolate(s, b)
	}
	return s
}

// Token looks up a "$name" reference.
func (r *Resolver) Token(s string) (any, bool) {
	if len(s) < 2 || s[0] != '$' {
		return nil, false
	}
	v, ok := r.tokens[s[1:]]
	return v, ok
}

// Interpolate substitutes every {{path}} placeholder. Unresolvable paths become "".
func Interpolate(s string, b Binding) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	root := b.Root()
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		path := placeholder.FindStringSubmatch(m)[1]
		v, ok := lookup(path, root)
		if !ok {
			return ""
		}
		return Format(v)
	})
}

// Lookup resolves a dotted path, optionally with [n] indexes, against the binding.
// Anything else, such as an expression or a wildcard, resolves to nothing.
func Lookup(path string, b Binding) (any, bool) {
	return lookup(path, b.Root())
}

func lookup(path string, root map[string]any) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	if indexedPath.MatchString(path) {
		if v, err := jsonpath.Get("$."+path, root); err == nil {
			return v, v != nil
		}
	}
	if !dottedPath.MatchString(path) {
		return nil, false
	}
	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if rec, isRec := cur.(model.Record); isRec {
				m = rec
			} else {
				return nil, false
			}
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Format renders a resolved value for string interpolation.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case map[string]any, []any, model.Record:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
