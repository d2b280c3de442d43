// Package convert maps domain values to and from the protobuf Struct messages carried over gRPC.
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/runtime"
	"github.com/and161185/uiruntime/internal/service"
)

// --- helpers ---

// ToStruct encodes v as JSON and re-reads it as a Struct. v must encode to a JSON object.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("to struct: %w", err)
	}
	return s, nil
}

// FromStruct decodes a Struct into dst through its JSON form. A nil Struct decodes as {}.
func FromStruct(s *structpb.Struct, dst any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("from struct: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// DefinitionText returns definition source text. Definitions travel either as a JSON string
// holding the raw text (so syntax errors reach the validator) or as an embedded object.
func DefinitionText(raw json.RawMessage) []byte {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []byte(text)
	}
	return raw
}

// --- requests ---

// ValidateRequest carries a definition to check.
type ValidateRequest struct {
	Definition json.RawMessage `json:"definition"`
}

// PublishRequest carries a definition to store with an optional databaseData snapshot.
type PublishRequest struct {
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// OpenRequest names the stored application to start.
type OpenRequest struct {
	AppID string `json:"appId"`
}

// DispatchRequest carries a raw action and the list item it was triggered from.
type DispatchRequest struct {
	Action json.RawMessage `json:"action"`
	Item   model.Record    `json:"item,omitempty"`
}

// SetFormRequest carries partial form values; null removes a key.
type SetFormRequest struct {
	Form map[string]any `json:"form"`
}

// PressButtonRequest names the popup and the zero-based button index.
type PressButtonRequest struct {
	PopupID string `json:"popupId"`
	Button  int    `json:"button"`
}

// FromProtoOpen decodes an Open request and parses its app id.
func FromProtoOpen(s *structpb.Struct) (uuid.UUID, error) {
	var req OpenRequest
	if err := FromStruct(s, &req); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromString(req.AppID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad app id: %w", err)
	}
	return id, nil
}

// --- responses ---

// PublishResponse is the result of Publish.
type PublishResponse struct {
	AppID  string         `json:"appId,omitempty"`
	Report service.Report `json:"report"`
}

// OpenResponse is the result of Open.
type OpenResponse struct {
	InstanceID  string       `json:"instanceId"`
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	View        runtime.View `json:"view"`
}

// ToProtoReport encodes a validation report.
func ToProtoReport(r service.Report) (*structpb.Struct, error) {
	return ToStruct(r)
}

// ToProtoPublish encodes a Publish result; a nil id is omitted.
func ToProtoPublish(id uuid.UUID, r service.Report) (*structpb.Struct, error) {
	resp := PublishResponse{Report: r}
	if id != uuid.Nil {
		resp.AppID = id.String()
	}
	return ToStruct(resp)
}

// ToProtoOpened encodes an opened instance with its first frame.
func ToProtoOpened(o service.Opened) (*structpb.Struct, error) {
	return ToStruct(OpenResponse{
		InstanceID:  o.InstanceID.String(),
		AccessToken: o.Tokens.AccessToken,
		ExpiresAt:   o.Tokens.ExpiresAt.UTC(),
		View:        o.View,
	})
}

// ToProtoView encodes a rendered frame.
func ToProtoView(v runtime.View) (*structpb.Struct, error) {
	return ToStruct(v)
}
