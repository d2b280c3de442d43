package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "uiruntime.v1.Runtime"

// Method names of the Runtime service.
const (
	MethodValidate    = "Validate"
	MethodPublish     = "Publish"
	MethodOpen        = "Open"
	MethodView        = "View"
	MethodDispatch    = "Dispatch"
	MethodSetForm     = "SetForm"
	MethodPressButton = "PressButton"
	MethodClose       = "Close"
)

// FullMethod returns the "/service/method" path used on the wire.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// RuntimeServer is the server API of the Runtime service. Every message is a Struct.
type RuntimeServer interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Publish(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Open(context.Context, *structpb.Struct) (*structpb.Struct, error)
	View(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Dispatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetForm(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PressButton(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(RuntimeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RuntimeServer), ctx, req.(*structpb.Struct))
			}
			if ic == nil {
				return h(ctx, in)
			}
			return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}, h)
		},
	}
}

// ServiceDesc describes the Runtime service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuntimeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodValidate, RuntimeServer.Validate),
		unary(MethodPublish, RuntimeServer.Publish),
		unary(MethodOpen, RuntimeServer.Open),
		unary(MethodView, RuntimeServer.View),
		unary(MethodDispatch, RuntimeServer.Dispatch),
		unary(MethodSetForm, RuntimeServer.SetForm),
		unary(MethodPressButton, RuntimeServer.PressButton),
		unary(MethodClose, RuntimeServer.Close),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterRuntimeServer registers srv on s.
func RegisterRuntimeServer(s grpc.ServiceRegistrar, srv RuntimeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the Runtime service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with in and returns the response Struct.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
