// Package grpcserver exposes the application runtime over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/uiruntime/internal/convert"
	"github.com/and161185/uiruntime/internal/errs"
	"github.com/and161185/uiruntime/internal/runtime"
	"github.com/and161185/uiruntime/internal/service"
)

// PublicMethods do not require an instance token.
var PublicMethods = []string{MethodValidate, MethodPublish, MethodOpen}

// Server wires services into gRPC handlers.
type Server struct {
	apps      service.AppService
	instances service.RuntimeService
}

var _ RuntimeServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(apps service.AppService, instances service.RuntimeService) *Server {
	return &Server{apps: apps, instances: instances}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "bad instance state")
	case errors.Is(err, errs.ErrInvalidDefinition):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Errorf(codes.AlreadyExists, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

func encoded(s *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

func decode(in *structpb.Struct, dst any) error {
	if err := convert.FromStruct(in, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}
	return nil
}

func instanceID(ctx context.Context) (uuid.UUID, error) {
	id, ok := InstanceIDFromCtx(ctx)
	if !ok {
		return uuid.Nil, status.Error(codes.Unauthenticated, "no auth")
	}
	return id, nil
}

// --- Apps ---

// Validate checks a definition and returns the issue report. Invalid definitions are not an RPC error.
func (s *Server) Validate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req convert.ValidateRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return encoded(convert.ToProtoReport(s.apps.Validate(ctx, convert.DefinitionText(req.Definition))))
}

// Publish validates and stores a definition.
func (s *Server) Publish(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req convert.PublishRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "empty name")
	}
	id, rep, err := s.apps.Publish(ctx, req.Name, convert.DefinitionText(req.Definition), req.Data)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidDefinition) && !rep.OK() {
			// invalid definitions answer with the report
			return encoded(convert.ToProtoPublish(uuid.Nil, rep))
		}
		return nil, toStatus("publish", err)
	}
	return encoded(convert.ToProtoPublish(id, rep))
}

// --- Instances ---

// Open starts an instance and returns its access token with the first frame.
func (s *Server) Open(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	appID, err := convert.FromProtoOpen(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	o, err := s.instances.Open(ctx, appID)
	if err != nil {
		return nil, toStatus("open", err)
	}
	return encoded(convert.ToProtoOpened(o))
}

func (s *Server) view(v runtime.View, err error, op string) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(op, err)
	}
	return encoded(convert.ToProtoView(v))
}

// View renders the current frame.
func (s *Server) View(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := instanceID(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.instances.View(ctx, id)
	return s.view(v, err, "view")
}

// Dispatch runs an action and returns the resulting frame.
func (s *Server) Dispatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := instanceID(ctx)
	if err != nil {
		return nil, err
	}
	var req convert.DispatchRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if len(req.Action) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty action")
	}
	v, err := s.instances.Dispatch(ctx, id, req.Action, req.Item)
	return s.view(v, err, "dispatch")
}

// SetForm merges form values and returns the resulting frame.
func (s *Server) SetForm(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := instanceID(ctx)
	if err != nil {
		return nil, err
	}
	var req convert.SetFormRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	v, err := s.instances.SetForm(ctx, id, req.Form)
	return s.view(v, err, "set form")
}

// PressButton dismisses a popup and returns the resulting frame.
func (s *Server) PressButton(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := instanceID(ctx)
	if err != nil {
		return nil, err
	}
	var req convert.PressButtonRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.PopupID == "" {
		return nil, status.Error(codes.InvalidArgument, "empty popupId")
	}
	v, err := s.instances.PressButton(ctx, id, req.PopupID, req.Button)
	return s.view(v, err, "press button")
}

// Close ends the instance. Its token stops working.
func (s *Server) Close(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := instanceID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.instances.Close(ctx, id); err != nil {
		return nil, toStatus("close", err)
	}
	return &structpb.Struct{}, nil
}
