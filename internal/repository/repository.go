// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/uiruntime/internal/model"
)

// AppRepository stores application definitions and their record store snapshots.
type AppRepository interface {
	// Create inserts a new application.
	Create(ctx context.Context, a *model.StoredApp) error
	// Get loads an application by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.StoredApp, error)
	// UpdateDefinition replaces the definition text.
	UpdateDefinition(ctx context.Context, id uuid.UUID, definition []byte) error
	// SaveData replaces the record store snapshot.
	SaveData(ctx context.Context, id uuid.UUID, data []byte) error
}

// InstanceRepository stores sealed per-instance runtime state.
type InstanceRepository interface {
	// Save inserts or replaces the sealed state of an instance.
	Save(ctx context.Context, in *model.Instance) error
	// Get loads an instance by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Instance, error)
	// Delete removes an instance; deleting an absent instance is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}
