// Package service contains host services: application publishing and runtime instances.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/uiruntime/internal/errs"
	"github.com/and161185/uiruntime/internal/metrics"
	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/repository"
	"github.com/and161185/uiruntime/internal/schema"
	"github.com/and161185/uiruntime/internal/store"
)

// Report is the editor-facing outcome of validating a definition.
type Report struct {
	Issues   []schema.Issue `json:"issues"`
	Warnings []schema.Issue `json:"warnings"`
}

// OK reports whether the definition has no structural errors.
func (r Report) OK() bool { return len(r.Issues) == 0 }

// AppService validates and stores application definitions.
type AppService interface {
	// Validate checks definition text without storing it.
	Validate(ctx context.Context, text []byte) Report
	// Publish validates and stores a new application with an optional data snapshot.
	Publish(ctx context.Context, name string, text, data []byte) (uuid.UUID, Report, error)
	// UpdateDefinition validates and replaces the definition of an existing application.
	UpdateDefinition(ctx context.Context, id uuid.UUID, text []byte) (Report, error)
}

type AppServiceImpl struct {
	apps repository.AppRepository
	log  *zap.Logger
}

var _ AppService = (*AppServiceImpl)(nil)

// NewAppService constructs AppService.
func NewAppService(apps repository.AppRepository, log *zap.Logger) *AppServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AppServiceImpl{apps: apps, log: log}
}

// Validate runs the structural validator and, when it passes, the reference pass.
func (s *AppServiceImpl) Validate(_ context.Context, text []byte) Report {
	app, issues := schema.Validate(text)
	rep := Report{Issues: issues}
	if app != nil {
		rep.Warnings = schema.CheckReferences(app)
	}
	if rep.Issues == nil {
		rep.Issues = []schema.Issue{}
	}
	if rep.Warnings == nil {
		rep.Warnings = []schema.Issue{}
	}
	metrics.RecordValidation(rep.OK())
	return rep
}

// Publish stores a valid definition. Invalid definitions return the report and an error
// wrapping errs.ErrInvalidDefinition.
func (s *AppServiceImpl) Publish(ctx context.Context, name string, text, data []byte) (uuid.UUID, Report, error) {
	rep := s.Validate(ctx, text)
	if !rep.OK() {
		return uuid.Nil, rep, schema.Err(rep.Issues)
	}
	if len(data) > 0 {
		if _, err := DecodeSnapshot(data); err != nil {
			return uuid.Nil, rep, err
		}
	}
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, rep, err
	}
	err = s.apps.Create(ctx, &model.StoredApp{
		ID:         id,
		Name:       name,
		Definition: json.RawMessage(text),
		Data:       json.RawMessage(data),
	})
	if err != nil {
		return uuid.Nil, rep, fmt.Errorf("create app: %w", err)
	}
	s.log.Info("app published", zap.String("app_id", id.String()), zap.String("name", name))
	return id, rep, nil
}

// UpdateDefinition replaces the definition text after validation.
func (s *AppServiceImpl) UpdateDefinition(ctx context.Context, id uuid.UUID, text []byte) (Report, error) {
	if id == uuid.Nil {
		return Report{}, fmt.Errorf("%w: empty app id", errs.ErrNotFound)
	}
	rep := s.Validate(ctx, text)
	if !rep.OK() {
		return rep, schema.Err(rep.Issues)
	}
	if err := s.apps.UpdateDefinition(ctx, id, text); err != nil {
		return rep, err
	}
	return rep, nil
}

// DecodeSnapshot parses a databaseData snapshot: table name -> array of record objects.
func DecodeSnapshot(data []byte) (store.Snapshot, error) {
	if len(data) == 0 {
		return store.Snapshot{}, nil
	}
	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: data snapshot: %v", errs.ErrInvalidDefinition, err)
	}
	if snap == nil {
		snap = store.Snapshot{}
	}
	return snap, nil
}
