package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// StoredApp is a persisted application: its definition text and the record store snapshot.
type StoredApp struct {
	ID         uuid.UUID
	Name       string
	Definition json.RawMessage
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Instance is a persisted runtime instance. Sealed holds the encrypted InstanceState.
type Instance struct {
	ID        uuid.UUID
	AppID     uuid.UUID
	Sealed    []byte
	UpdatedAt time.Time
}

// InstanceState is the per-instance runtime state persisted between requests.
type InstanceState struct {
	Screen  string         `json:"screen"`
	Session *Session       `json:"session,omitempty"`
	Form    map[string]any `json:"form,omitempty"`
}

// Tokens is an issued instance access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}
