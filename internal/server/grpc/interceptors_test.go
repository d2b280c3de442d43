package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/uiruntime/internal/metrics"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestLoggingUnary_LevelsAndFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		level zapcore.Level
	}{
		{"ok", nil, zapcore.InfoLevel},
		{"client error", status.Error(codes.InvalidArgument, "empty action"), zapcore.WarnLevel},
		{"server error", status.Error(codes.Internal, "db"), zapcore.ErrorLevel},
		{"plain error", errors.New("boom"), zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := observed()
			ctx := peer.NewContext(context.Background(), &peer.Peer{
				Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242},
			})
			info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodDispatch)}

			resp, err := LoggingUnary(log)(ctx, "req", info, func(context.Context, any) (any, error) {
				return "resp", tt.err
			})
			require.Equal(t, "resp", resp)
			require.Equal(t, tt.err, err)

			entries := logs.All()
			require.Len(t, entries, 1)
			require.Equal(t, tt.level, entries[0].Level)
			fields := entries[0].ContextMap()
			require.Equal(t, info.FullMethod, fields["method"])
			require.Equal(t, "127.0.0.1:4242", fields["peer"])
			_, hasMsg := fields["msg"]
			require.Equal(t, tt.err != nil, hasMsg)
		})
	}
}

func TestLoggingUnary_HealthIsQuietButCounted(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	method := "/grpc.health.v1.Health/Check"
	info := &grpc.UnaryServerInfo{FullMethod: method}
	_, err := LoggingUnary(log)(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.Zero(t, logs.Len())
	require.GreaterOrEqual(t, requestCount(t, method, "OK"), 1.0)
}

func TestLoggingUnary_CountsRequests(t *testing.T) {
	t.Parallel()

	method := FullMethod(MethodClose)
	info := &grpc.UnaryServerInfo{FullMethod: method}
	before := requestCount(t, method, "NotFound")
	_, err := LoggingUnary(zaptest.NewLogger(t))(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "gone")
	})
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Equal(t, before+1, requestCount(t, method, "NotFound"))
}

func requestCount(t *testing.T, method, code string) float64 {
	t.Helper()
	mfs, err := metrics.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "uiruntime_grpc_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == method && labels["code"] == code {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRecoverUnary(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	ic := RecoverUnary(log)
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodPressButton)}

	_, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("oh no")
	})
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, 1, logs.FilterMessage("panic").Len())

	resp, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, resp)
}

func TestRecoverStream(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}
	err := RecoverStream(log)(nil, nil, info, func(any, grpc.ServerStream) error {
		panic(errors.New("stream broke"))
	})
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, 1, logs.Len())
}
