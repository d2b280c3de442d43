package runtime

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/uiruntime/internal/crypto"
	"github.com/and161185/uiruntime/internal/limiter"
	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/store"
	"github.com/and161185/uiruntime/internal/template"
)

// DefaultMaxDepth caps nested onSuccess/onError/button chains.
const DefaultMaxDepth = 16

const (
	defaultPopupVariant = "info"
	defaultButtonLabel  = "OK"
)

// Dispatcher is the action reducer. It is total: every action yields a state, never an error.
type Dispatcher struct {
	app      *model.App
	verifier crypto.Verifier
	limiter  limiter.Limiter
	scope    []byte
	maxDepth int
	log      *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithVerifier sets the credential verification capability.
func WithVerifier(v crypto.Verifier) DispatcherOption {
	return func(d *Dispatcher) { d.verifier = v }
}

// WithLimiter makes auth:login consult l; scope partitions counters (e.g. per app).
func WithLimiter(l limiter.Limiter, scope string) DispatcherOption {
	return func(d *Dispatcher) { d.limiter, d.scope = l, limiter.HashScope(scope) }
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithDispatchLogger sets the logger for runtime warnings.
func WithDispatchLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher constructs a dispatcher for app. The default verifier accepts argon2id
// hashes and legacy plaintext seeds.
func NewDispatcher(app *model.App, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		app:      app,
		verifier: crypto.Argon2Verifier{Legacy: true},
		maxDepth: DefaultMaxDepth,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch applies a to st and returns the new state plus side effects.
// item is the list-item record the action was triggered from (nil outside lists).
func (d *Dispatcher) Dispatch(ctx context.Context, st State, a model.Action, item model.Record) (State, Effects) {
	if st.Records == nil {
		st.Records = store.New(nil)
	}
	var eff Effects
	d.run(ctx, &st, a, item, 0, &eff)
	return st, eff
}

// dispatchAt continues a chain at the given depth (async completions, popup buttons).
func (d *Dispatcher) dispatchAt(ctx context.Context, st State, a model.Action, item model.Record, depth int) (State, Effects) {
	var eff Effects
	d.run(ctx, &st, a, item, depth, &eff)
	return st, eff
}

func (d *Dispatcher) run(ctx context.Context, st *State, a model.Action, item model.Record, depth int, eff *Effects) {
	if a == nil {
		return
	}
	if depth > d.maxDepth {
		d.log.Warn("action chain too deep, stopping",
			zap.String("type", string(a.Kind())),
			zap.Int("depth", depth),
		)
		return
	}
	next := func(n model.Action) { d.run(ctx, st, n, item, depth+1, eff) }

	switch v := a.(type) {
	case model.Navigate:
		st.Screen = v.Target
	case model.GoBack:
		st.Screen = d.app.InitialScreen
	case model.Popup:
		eff.Popups = append(eff.Popups, d.popup(*st, v, item, depth))
	case model.Submit:
		d.submit(st, v, item, depth, eff, next)
	case model.DeleteRecord:
		d.deleteRecord(st, v, item, next)
	case model.Login:
		d.login(ctx, st, v, next)
	case model.Signup:
		d.signup(st, v, next)
	case model.Logout:
		st.Session = nil
		if v.OnSuccess != nil {
			next(v.OnSuccess)
			return
		}
		st.Screen = d.app.InitialScreen
	default:
		d.log.Warn("unknown action type, ignoring", zap.String("type", string(a.Kind())))
	}
}

func (d *Dispatcher) popup(st State, v model.Popup, item model.Record, depth int) Popup {
	b := st.Binding(item)
	p := Popup{
		ID:      uuid.Must(uuid.NewV4()).String(),
		Title:   template.Interpolate(v.Title, b),
		Message: template.Interpolate(v.Message, b),
		Variant: v.Variant,
		Buttons: v.Buttons,
		item:    item,
		depth:   depth,
	}
	if p.Variant == "" {
		p.Variant = defaultPopupVariant
	}
	if len(p.Buttons) == 0 {
		p.Buttons = []model.PopupButton{{Label: defaultButtonLabel}}
	}
	return p
}

// tableKnown reports whether a table is declared in the schema or present in the store.
func (d *Dispatcher) tableKnown(st *State, table string) bool {
	return d.app.HasTable(table) || st.Records.HasTable(table)
}

// payload maps destination field -> form value; absent form values are skipped.
func payload(form FormState, fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for dst, src := range fields {
		if v, ok := form[src]; ok {
			out[dst] = model.CloneValue(v)
		}
	}
	return out
}

func (d *Dispatcher) submit(st *State, v model.Submit, item model.Record, depth int, eff *Effects, next func(model.Action)) {
	data := payload(st.Form, v.Fields)
	if !v.IsDatabase() {
		eff.Submissions = append(eff.Submissions, Submission{
			Target:    v.Target,
			Payload:   data,
			Fields:    v.Fields,
			OnSuccess: v.OnSuccess,
			OnError:   v.OnError,
			item:      item,
			depth:     depth + 1,
		})
		return
	}
	if !d.tableKnown(st, v.Table) {
		d.log.Warn("submit to unknown table", zap.String("table", v.Table))
		next(v.OnError)
		return
	}
	st.Records.EnsureTable(v.Table)
	if _, err := st.Records.Insert(v.Table, model.Record(data)); err != nil {
		d.log.Warn("submit insert failed", zap.String("table", v.Table), zap.Error(err))
		next(v.OnError)
		return
	}
	st.Form = st.Form.without(fieldIDs(v.Fields)...)
	next(v.OnSuccess)
}

func (d *Dispatcher) deleteRecord(st *State, v model.DeleteRecord, item model.Record, next func(model.Action)) {
	if !d.tableKnown(st, v.Table) {
		d.log.Warn("delete from unknown table", zap.String("table", v.Table))
		return
	}
	id := template.Interpolate(v.RecordID, st.Binding(item))
	if !st.Records.Delete(v.Table, id) {
		return
	}
	next(v.OnSuccess)
}
