package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/uiruntime/internal/errs"
	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/repository"
)

// InstanceRepo implements InstanceRepository using PostgreSQL.
type InstanceRepo struct{ db *DB }

var _ repository.InstanceRepository = (*InstanceRepo)(nil)

// NewInstanceRepo constructs an instance repository.
func NewInstanceRepo(db *DB) *InstanceRepo { return &InstanceRepo{db: db} }

// Save upserts the sealed instance state.
func (r *InstanceRepo) Save(ctx context.Context, in *model.Instance) error {
	const q = `
INSERT INTO app_instances (id, app_id, sealed)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET sealed=EXCLUDED.sealed, updated_at=now()
WHERE app_instances.app_id=EXCLUDED.app_id`
	tag, err := r.db.Pool.Exec(ctx, q, in.ID, in.AppID, in.Sealed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAlreadyExists
	}
	return nil
}

// Get selects an instance by ID.
func (r *InstanceRepo) Get(ctx context.Context, id uuid.UUID) (*model.Instance, error) {
	const q = `
SELECT id, app_id, sealed, updated_at
FROM app_instances WHERE id=$1`
	var in model.Instance
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&in.ID, &in.AppID, &in.Sealed, &in.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &in, nil
}

// Delete removes an instance row.
func (r *InstanceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM app_instances WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}
