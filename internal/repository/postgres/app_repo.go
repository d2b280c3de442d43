package postgres

import (
	"context"
	"encoding/json"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/uiruntime/internal/errs"
	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/repository"
)

// AppRepo implements AppRepository using PostgreSQL.
type AppRepo struct{ db *DB }

var _ repository.AppRepository = (*AppRepo)(nil)

// NewAppRepo constructs an app repository.
func NewAppRepo(db *DB) *AppRepo { return &AppRepo{db: db} }

// Create inserts a new app row. An empty data snapshot is stored as {}.
func (r *AppRepo) Create(ctx context.Context, a *model.StoredApp) error {
	const q = `
INSERT INTO apps (id, name, definition, data)
VALUES ($1, $2, $3, $4)`
	data := a.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.Name, []byte(a.Definition), []byte(data))
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects an app by ID.
func (r *AppRepo) Get(ctx context.Context, id uuid.UUID) (*model.StoredApp, error) {
	const q = `
SELECT id, name, definition, data, created_at, updated_at
FROM apps WHERE id=$1`
	var (
		a         model.StoredApp
		def, data []byte
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.Name, &def, &data, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	a.Definition = def
	a.Data = data
	return &a, nil
}

// UpdateDefinition replaces the definition text.
func (r *AppRepo) UpdateDefinition(ctx context.Context, id uuid.UUID, definition []byte) error {
	const q = `UPDATE apps SET definition=$2, updated_at=now() WHERE id=$1`
	return r.update(ctx, q, id, definition)
}

// SaveData replaces the record store snapshot.
func (r *AppRepo) SaveData(ctx context.Context, id uuid.UUID, data []byte) error {
	const q = `UPDATE apps SET data=$2, updated_at=now() WHERE id=$1`
	return r.update(ctx, q, id, data)
}

func (r *AppRepo) update(ctx context.Context, q string, id uuid.UUID, payload []byte) error {
	tag, err := r.db.Pool.Exec(ctx, q, id, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
