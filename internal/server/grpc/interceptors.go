package grpcserver

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/uiruntime/internal/metrics"
)

// healthPrefix calls are counted but not logged; health checks would flood the log.
const healthPrefix = "/grpc.health.v1.Health/"

// levelFor picks a log level from the outcome of a call.
func levelFor(c codes.Code) zapcore.Level {
	switch c {
	case codes.OK, codes.Canceled:
		return zapcore.InfoLevel
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// LoggingUnary logs each call and counts it by method and status code.
// Request and response bodies are never logged.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)
		metrics.RecordRequest(info.FullMethod, code.String())

		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return resp, err
		}
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Stringer("code", code),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", peerAddr(ctx)),
		}
		if code != codes.OK {
			fields = append(fields, zap.String("msg", status.Convert(err).Message()))
		}
		if ce := log.Check(levelFor(code), "grpc"); ce != nil {
			ce.Write(fields...)
		}
		return resp, err
	}
}

func recovered(log *zap.Logger, method string, r any) error {
	log.Error("panic",
		zap.String("method", method),
		zap.Any("reason", r),
		zap.StackSkip("stack", 2),
	)
	return status.Error(codes.Internal, "internal")
}

// RecoverUnary turns handler panics into codes.Internal.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(log, info.FullMethod, r)
			}
		}()
		return next(ctx, req)
	}
}

// RecoverStream is RecoverUnary for streaming handlers such as health Watch.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(log, info.FullMethod, r)
			}
		}()
		return next(srv, ss)
	}
}
