package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/uiruntime/internal/crypto"
	"github.com/and161185/uiruntime/internal/errs"
	"github.com/and161185/uiruntime/internal/limiter"
	"github.com/and161185/uiruntime/internal/metrics"
	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/repository"
	"github.com/and161185/uiruntime/internal/runtime"
	"github.com/and161185/uiruntime/internal/schema"
	"github.com/and161185/uiruntime/internal/store"
	"github.com/and161185/uiruntime/internal/submit"
)

const sealPurpose = "uiruntime/instance-state"

// Opened is the result of opening an application instance.
type Opened struct {
	InstanceID uuid.UUID
	Tokens     model.Tokens
	View       runtime.View
}

// RuntimeService runs application instances on behalf of remote renderers.
type RuntimeService interface {
	// Open starts a new instance of a stored application.
	Open(ctx context.Context, appID uuid.UUID) (Opened, error)
	// View renders the current frame of an instance.
	View(ctx context.Context, instanceID uuid.UUID) (runtime.View, error)
	// Dispatch executes a raw action JSON, optionally bound to a list item.
	Dispatch(ctx context.Context, instanceID uuid.UUID, action []byte, item model.Record) (runtime.View, error)
	// SetForm merges partial form values; nil values remove keys.
	SetForm(ctx context.Context, instanceID uuid.UUID, partial map[string]any) (runtime.View, error)
	// PressButton dismisses a popup via one of its buttons.
	PressButton(ctx context.Context, instanceID uuid.UUID, popupID string, button int) (runtime.View, error)
	// Close waits for pending submissions, persists and forgets the instance.
	Close(ctx context.Context, instanceID uuid.UUID) error
}

// RuntimeDeps are the collaborators of RuntimeServiceImpl. Submitter and Limiter are optional.
type RuntimeDeps struct {
	Apps      repository.AppRepository
	Instances repository.InstanceRepository
	Tokens    *TokenIssuer
	SealKey   []byte
	Submitter submit.Submitter
	Limiter   limiter.Limiter
	MaxDepth  int
	Log       *zap.Logger
}

type instance struct {
	id      uuid.UUID
	appID   uuid.UUID
	rt      *runtime.Runtime
	data    *appData
	persist sync.Mutex
}

// appData is the record store shared by every live instance of one app in this process.
// Snapshots are written under save, so a later write always contains an earlier one.
type appData struct {
	records *store.Store
	refs    int
	save    sync.Mutex
}

type RuntimeServiceImpl struct {
	deps    RuntimeDeps
	sealKey []byte
	log     *zap.Logger

	mu     sync.Mutex
	live   map[uuid.UUID]*instance
	shared map[uuid.UUID]*appData
}

var _ RuntimeService = (*RuntimeServiceImpl)(nil)

// NewRuntimeService constructs RuntimeService. The seal key is derived from deps.SealKey.
func NewRuntimeService(deps RuntimeDeps) (*RuntimeServiceImpl, error) {
	if deps.Apps == nil || deps.Instances == nil || deps.Tokens == nil {
		return nil, errors.New("runtime service: missing repositories or token issuer")
	}
	key, err := pkgcrypto.DeriveKey(deps.SealKey, sealPurpose)
	if err != nil {
		return nil, fmt.Errorf("runtime service: seal key: %w", err)
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &RuntimeServiceImpl{
		deps:    deps,
		sealKey: key,
		log:     log,
		live:    make(map[uuid.UUID]*instance),
		shared:  make(map[uuid.UUID]*appData),
	}, nil
}

// Open loads the app, starts a runtime seeded with its data and issues an access token.
func (s *RuntimeServiceImpl) Open(ctx context.Context, appID uuid.UUID) (Opened, error) {
	stored, err := s.deps.Apps.Get(ctx, appID)
	if err != nil {
		return Opened{}, fmt.Errorf("open app %s: %w", appID, err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return Opened{}, err
	}
	in, err := s.start(id, stored, model.InstanceState{})
	if err != nil {
		return Opened{}, err
	}
	tok, err := s.deps.Tokens.Issue(id)
	if err == nil {
		err = s.save(ctx, in)
	}
	if err != nil {
		s.release(in)
		return Opened{}, err
	}

	s.mu.Lock()
	s.live[id] = in
	s.mu.Unlock()
	metrics.InstanceOpened()
	s.log.Info("instance opened", zap.String("instance_id", id.String()), zap.String("app_id", appID.String()))

	return Opened{InstanceID: id, Tokens: tok, View: in.rt.View()}, nil
}

// start builds the runtime for an instance from a stored app and restored state.
func (s *RuntimeServiceImpl) start(id uuid.UUID, stored *model.StoredApp, st model.InstanceState) (*instance, error) {
	app, issues := schema.Validate(stored.Definition)
	if app == nil {
		return nil, schema.Err(issues)
	}
	data, err := s.acquire(stored)
	if err != nil {
		return nil, err
	}

	in := &instance{id: id, appID: stored.ID, data: data}
	opts := []runtime.Option{
		runtime.WithLogger(s.log.With(zap.String("instance_id", id.String()))),
		runtime.WithRecords(data.records),
		runtime.WithSession(st.Session),
		runtime.WithScreen(st.Screen),
		runtime.WithForm(st.Form),
		runtime.WithAfterAsync(func() {
			if err := s.save(context.Background(), in); err != nil {
				s.log.Warn("persist after submit failed", zap.String("instance_id", id.String()), zap.Error(err))
			}
		}),
	}
	if s.deps.Submitter != nil {
		opts = append(opts, runtime.WithSubmitter(s.deps.Submitter))
	}
	if s.deps.Limiter != nil {
		opts = append(opts, runtime.WithLoginLimiter(s.deps.Limiter, stored.ID.String()))
	}
	if s.deps.MaxDepth > 0 {
		opts = append(opts, runtime.WithActionDepth(s.deps.MaxDepth))
	}
	rt, err := runtime.New(app, nil, opts...)
	if err != nil {
		s.release(in)
		return nil, err
	}
	in.rt = rt
	return in, nil
}

// acquire returns the shared record store of an app, seeding it from the stored
// snapshot when no instance of the app is live.
func (s *RuntimeServiceImpl) acquire(stored *model.StoredApp) (*appData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.shared[stored.ID]; ok {
		d.refs++
		return d, nil
	}
	seed, err := DecodeSnapshot(stored.Data)
	if err != nil {
		return nil, err
	}
	d := &appData{records: store.New(seed), refs: 1}
	s.shared[stored.ID] = d
	return d, nil
}

func (s *RuntimeServiceImpl) release(in *instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(in)
}

func (s *RuntimeServiceImpl) releaseLocked(in *instance) {
	if d, ok := s.shared[in.appID]; ok && d == in.data {
		if d.refs--; d.refs <= 0 {
			delete(s.shared, in.appID)
		}
	}
}

// instance returns a live instance, resuming it from storage when this process has not seen it.
func (s *RuntimeServiceImpl) instance(ctx context.Context, id uuid.UUID) (*instance, error) {
	s.mu.Lock()
	in, ok := s.live[id]
	s.mu.Unlock()
	if ok {
		return in, nil
	}

	rec, err := s.deps.Instances.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", id, err)
	}
	plain, err := pkgcrypto.Open(s.sealKey, id.Bytes(), rec.Sealed)
	if err != nil {
		return nil, fmt.Errorf("instance %s: unseal: %w", id, errs.ErrUnauthorized)
	}
	var st model.InstanceState
	if err := json.Unmarshal(plain, &st); err != nil {
		return nil, fmt.Errorf("instance %s: decode state: %w", id, err)
	}
	stored, err := s.deps.Apps.Get(ctx, rec.AppID)
	if err != nil {
		return nil, fmt.Errorf("instance %s app: %w", id, err)
	}
	in, err = s.start(id, stored, st)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.live[id]; ok {
		s.releaseLocked(in)
		return cur, nil
	}
	s.live[id] = in
	metrics.InstanceOpened()
	s.log.Info("instance resumed", zap.String("instance_id", id.String()))
	return in, nil
}

// saveRecords writes the shared record store of the instance's app.
func (s *RuntimeServiceImpl) saveRecords(ctx context.Context, in *instance) error {
	in.data.save.Lock()
	defer in.data.save.Unlock()

	data, err := json.Marshal(in.data.records.Snapshot())
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := s.deps.Apps.SaveData(ctx, in.appID, data); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	return nil
}

// save persists the record store of the app and the sealed instance state.
func (s *RuntimeServiceImpl) save(ctx context.Context, in *instance) error {
	if err := s.saveRecords(ctx, in); err != nil {
		return err
	}
	in.persist.Lock()
	defer in.persist.Unlock()

	plain, err := json.Marshal(in.rt.InstanceState())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	sealed, err := pkgcrypto.Seal(s.sealKey, in.id.Bytes(), plain)
	if err != nil {
		return fmt.Errorf("seal state: %w", err)
	}
	return s.deps.Instances.Save(ctx, &model.Instance{ID: in.id, AppID: in.appID, Sealed: sealed})
}

// View renders the current frame.
func (s *RuntimeServiceImpl) View(ctx context.Context, instanceID uuid.UUID) (runtime.View, error) {
	in, err := s.instance(ctx, instanceID)
	if err != nil {
		return runtime.View{}, err
	}
	return in.rt.View(), nil
}

// Dispatch parses and executes an action.
func (s *RuntimeServiceImpl) Dispatch(ctx context.Context, instanceID uuid.UUID, action []byte, item model.Record) (runtime.View, error) {
	a, issues := schema.ParseAction(action)
	if a == nil {
		if err := schema.Err(issues); err != nil {
			return runtime.View{}, err
		}
		return runtime.View{}, fmt.Errorf("%w: empty action", errs.ErrInvalidDefinition)
	}
	in, err := s.instance(ctx, instanceID)
	if err != nil {
		return runtime.View{}, err
	}
	metrics.RecordAction(string(a.Kind()))
	in.rt.Dispatch(ctx, a, runtime.WithItem(item))
	return s.commit(ctx, in)
}

// SetForm merges partial form values.
func (s *RuntimeServiceImpl) SetForm(ctx context.Context, instanceID uuid.UUID, partial map[string]any) (runtime.View, error) {
	in, err := s.instance(ctx, instanceID)
	if err != nil {
		return runtime.View{}, err
	}
	in.rt.SetFormState(partial)
	return s.commit(ctx, in)
}

// PressButton dismisses a popup through one of its buttons.
func (s *RuntimeServiceImpl) PressButton(ctx context.Context, instanceID uuid.UUID, popupID string, button int) (runtime.View, error) {
	in, err := s.instance(ctx, instanceID)
	if err != nil {
		return runtime.View{}, err
	}
	if err := in.rt.PressPopupButton(ctx, popupID, button); err != nil {
		return runtime.View{}, err
	}
	return s.commit(ctx, in)
}

func (s *RuntimeServiceImpl) commit(ctx context.Context, in *instance) (runtime.View, error) {
	if err := s.save(ctx, in); err != nil {
		s.log.Error("persist instance", zap.String("instance_id", in.id.String()), zap.Error(err))
		return runtime.View{}, err
	}
	return in.rt.View(), nil
}

// Close finishes pending submissions, writes the final record snapshot and drops the instance.
func (s *RuntimeServiceImpl) Close(ctx context.Context, instanceID uuid.UUID) error {
	s.mu.Lock()
	in, ok := s.live[instanceID]
	delete(s.live, instanceID)
	s.mu.Unlock()

	if ok {
		in.rt.Wait()
		metrics.InstanceClosed()
		err := s.saveRecords(ctx, in)
		s.release(in)
		if err != nil {
			return err
		}
	}
	if err := s.deps.Instances.Delete(ctx, instanceID); err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	s.log.Info("instance closed", zap.String("instance_id", instanceID.String()))
	return nil
}
