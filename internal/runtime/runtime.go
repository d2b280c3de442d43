package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/uiruntime/internal/crypto"
	"github.com/and161185/uiruntime/internal/errs"
	"github.com/and161185/uiruntime/internal/limiter"
	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/store"
	"github.com/and161185/uiruntime/internal/submit"
	"github.com/and161185/uiruntime/internal/template"
)

var errNoSubmitter = errors.New("no submitter configured")

type options struct {
	log        *zap.Logger
	submitter  submit.Submitter
	disp       []DispatcherOption
	store      []store.Option
	records    *store.Store
	session    *model.Session
	screen     string
	form       FormState
	afterAsync func()
}

// Option configures a Runtime.
type Option func(*options)

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSubmitter sets the collaborator for non-database submits. Without one they fail.
func WithSubmitter(s submit.Submitter) Option {
	return func(o *options) { o.submitter = s }
}

// WithCredentialVerifier overrides the auth credential verifier.
func WithCredentialVerifier(v crypto.Verifier) Option {
	return func(o *options) { o.disp = append(o.disp, WithVerifier(v)) }
}

// WithLoginLimiter makes auth:login consult l under the given scope.
func WithLoginLimiter(l limiter.Limiter, scope string) Option {
	return func(o *options) { o.disp = append(o.disp, WithLimiter(l, scope)) }
}

// WithActionDepth caps nested action chains.
func WithActionDepth(n int) Option {
	return func(o *options) { o.disp = append(o.disp, WithMaxDepth(n)) }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(g store.IDGenerator) Option {
	return func(o *options) { o.store = append(o.store, store.WithIDGenerator(g)) }
}

// WithRecords runs the runtime on an existing record store instead of seeding a new one.
// The seed passed to New and WithIDGenerator are then ignored.
func WithRecords(s *store.Store) Option {
	return func(o *options) { o.records = s }
}

// WithSession restores a previously persisted session.
func WithSession(s *model.Session) Option {
	return func(o *options) { o.session = s.Clone() }
}

// WithScreen restores the active screen id instead of starting at initialScreen.
func WithScreen(id string) Option {
	return func(o *options) { o.screen = id }
}

// WithForm restores form state.
func WithForm(f FormState) Option {
	return func(o *options) { o.form = f.Clone() }
}

// WithAfterAsync registers a hook run after each asynchronous submit completion.
func WithAfterAsync(fn func()) Option {
	return func(o *options) { o.afterAsync = fn }
}

// Runtime is a running application instance. All entry points are serialized.
type Runtime struct {
	mu        sync.Mutex
	app       *model.App
	disp      *Dispatcher
	screens   *ScreenResolver
	tokens    *template.Resolver
	state     State
	popups    []Popup
	submitter submit.Submitter
	pending   sync.WaitGroup
	log       *zap.Logger

	afterAsync func()
}

// New starts a runtime for a validated app seeded with data. Tables declared in the
// database schema but absent from seed start empty.
func New(app *model.App, seed store.Snapshot, opts ...Option) (*Runtime, error) {
	if app == nil {
		return nil, fmt.Errorf("runtime: %w: nil app", errs.ErrInvalidDefinition)
	}
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	records := o.records
	if records == nil {
		records = store.New(seed, o.store...)
	}
	for name := range app.Meta.DatabaseSchema {
		records.EnsureTable(name)
	}
	screen := o.screen
	if screen == "" {
		screen = app.InitialScreen
	}
	form := o.form
	if form == nil {
		form = FormState{}
	}

	r := &Runtime{
		app:        app,
		disp:       NewDispatcher(app, append([]DispatcherOption{WithDispatchLogger(o.log)}, o.disp...)...),
		screens:    NewScreenResolver(app),
		tokens:     template.New(app.Meta.DesignTokens),
		submitter:  o.submitter,
		log:        o.log,
		afterAsync: o.afterAsync,
		state: State{
			Screen:  screen,
			Session: o.session,
			Form:    form,
			Records: records,
		},
	}
	return r, nil
}

// App returns the application definition.
func (r *Runtime) App() *model.App { return r.app }

// Tokens returns the design token resolver.
func (r *Runtime) Tokens() *template.Resolver { return r.tokens }

// ResolveScreen resolves a screen id for the given session.
func (r *Runtime) ResolveScreen(id string, sess *model.Session) Resolution {
	return r.screens.Resolve(id, sess)
}

// ActiveScreen returns the active screen id before resolution.
func (r *Runtime) ActiveScreen() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Screen
}

// Current resolves the active screen against the current session.
func (r *Runtime) Current() Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.screens.Resolve(r.state.Screen, r.state.Session)
}

type dispatchConfig struct {
	item model.Record
}

// DispatchOption configures a single dispatch.
type DispatchOption func(*dispatchConfig)

// WithItem binds the list-item record the action was triggered from.
func WithItem(item model.Record) DispatchOption {
	return func(c *dispatchConfig) { c.item = item.Clone() }
}

// Dispatch executes a and everything it chains synchronously. Non-database submits
// complete later on their own goroutine.
func (r *Runtime) Dispatch(ctx context.Context, a model.Action, opts ...DispatchOption) {
	var cfg dispatchConfig
	for _, o := range opts {
		o(&cfg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, eff := r.disp.Dispatch(ctx, r.state, a, cfg.item)
	r.apply(ctx, st, eff)
}

// apply commits a dispatch result. Callers hold r.mu.
func (r *Runtime) apply(ctx context.Context, st State, eff Effects) {
	r.state = st
	r.popups = append(r.popups, eff.Popups...)
	for _, s := range eff.Submissions {
		r.launch(ctx, s)
	}
}

func (r *Runtime) launch(ctx context.Context, s Submission) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		actx := context.WithoutCancel(ctx)
		err := errNoSubmitter
		if r.submitter != nil {
			err = r.submitter.Submit(actx, s.Target, s.Payload)
		}
		r.complete(actx, s, err)
		if r.afterAsync != nil {
			r.afterAsync()
		}
	}()
}

func (r *Runtime) complete(ctx context.Context, s Submission, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := s.OnSuccess
	if err != nil {
		r.log.Warn("submit failed", zap.String("target", s.Target), zap.Error(err))
		next = s.OnError
	} else {
		r.state.Form = r.state.Form.without(fieldIDs(s.Fields)...)
	}
	if next == nil {
		return
	}
	st, eff := r.disp.dispatchAt(ctx, r.state, next, s.item, s.depth)
	r.apply(ctx, st, eff)
}

// Wait blocks until every pending submission has completed, including ones chained
// from completions.
func (r *Runtime) Wait() {
	r.pending.Wait()
}

// FormState returns a copy of the form state.
func (r *Runtime) FormState() FormState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Form.Clone()
}

// SetFormState merges partial into the form state; nil values remove keys.
func (r *Runtime) SetFormState(partial map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Form = r.state.Form.merge(partial)
}

// Records returns a read-only deep snapshot of the record store.
func (r *Runtime) Records() store.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Records.Snapshot()
}

// Rows returns the records of one table, for dataSource-bound components.
func (r *Runtime) Rows(table string) []model.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Records.Rows(table)
}

// Session returns a copy of the session, nil when logged out.
func (r *Runtime) Session() *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Session.Clone()
}

// Popups returns the open popups, oldest first.
func (r *Runtime) Popups() []Popup {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Popup, len(r.popups))
	copy(out, r.popups)
	return out
}

// PressPopupButton dismisses the popup and dispatches the pressed button's action, if any.
func (r *Runtime) PressPopupButton(ctx context.Context, popupID string, button int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, p := range r.popups {
		if p.ID == popupID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("popup %q: %w", popupID, errs.ErrNotFound)
	}
	p := r.popups[idx]
	if button < 0 || button >= len(p.Buttons) {
		return fmt.Errorf("popup %q button %d: %w", popupID, button, errs.ErrNotFound)
	}
	r.popups = append(r.popups[:idx:idx], r.popups[idx+1:]...)

	if a := p.Buttons[button].Action; a != nil {
		st, eff := r.disp.dispatchAt(ctx, r.state, a, p.item, p.depth+1)
		r.apply(ctx, st, eff)
	}
	return nil
}

// Binding returns the template binding for the current state.
func (r *Runtime) Binding(item model.Record) template.Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.state.Binding(item)
	b.Session = b.Session.Clone()
	b.Form = map[string]any(r.state.Form.Clone())
	return b
}

// Resolve applies design tokens and templates to a component property value.
func (r *Runtime) Resolve(v any, item model.Record) any {
	return r.tokens.Resolve(v, r.Binding(item))
}

// Visible evaluates a component's showIf condition, failing open.
func (r *Runtime) Visible(c *model.Component, item model.Record) bool {
	if c == nil {
		return false
	}
	ok, err := template.Visible(c.ShowIf, r.Binding(item))
	if err != nil {
		r.log.Warn("showIf evaluation failed", zap.String("component", c.ID), zap.Error(err))
	}
	return ok
}

// InstanceState returns the persistable per-instance state.
func (r *Runtime) InstanceState() model.InstanceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.InstanceState{
		Screen:  r.state.Screen,
		Session: r.state.Session.Clone(),
		Form:    map[string]any(r.state.Form.Clone()),
	}
}
