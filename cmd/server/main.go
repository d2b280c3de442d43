// Command uirt-server hosts stored UI applications over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/uiruntime/internal/config"
	"github.com/and161185/uiruntime/internal/limiter"
	"github.com/and161185/uiruntime/internal/metrics"
	"github.com/and161185/uiruntime/internal/migrate"
	"github.com/and161185/uiruntime/internal/repository/postgres"
	grpcserver "github.com/and161185/uiruntime/internal/server/grpc"
	"github.com/and161185/uiruntime/internal/service"
	"github.com/and161185/uiruntime/internal/submit"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const stopGrace = 5 * time.Second

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	dev := bindFlags(&cfg)
	flag.Parse()

	logger := zap.Must(zap.NewProduction())
	if *dev {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.Bool("tls", cfg.TLS()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *dev, logger); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// bindFlags lets command-line flags override the loaded environment.
func bindFlags(cfg *config.Config) *bool {
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus listen address (empty disables)")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "PostgreSQL DSN")
	flag.StringVar(&cfg.JWTKey, "jwt-key", cfg.JWTKey, "HS256 signing key (required)")
	flag.StringVar(&cfg.SealKey, "seal-key", cfg.SealKey, "instance state sealing key (required)")
	flag.DurationVar(&cfg.AccessTTL, "access-ttl", cfg.AccessTTL, "instance token TTL")
	flag.DurationVar(&cfg.SubmitTimeout, "submit-timeout", cfg.SubmitTimeout, "remote submit timeout")
	flag.StringVar(&cfg.SubmitAllowHosts, "submit-allow-hosts", cfg.SubmitAllowHosts, "comma separated remote submit hosts (empty allows any public host)")
	flag.BoolVar(&cfg.SubmitAllowPrivate, "submit-allow-private", cfg.SubmitAllowPrivate, "allow remote submits to private and loopback addresses")
	flag.IntVar(&cfg.MaxDepth, "max-depth", cfg.MaxDepth, "nested action depth cap (0 = default)")
	flag.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate (PEM)")
	flag.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS private key (PEM)")
	return flag.Bool("dev", false, "development logging and server reflection")
}

func newSubmitter(cfg config.Config, log *zap.Logger) *submit.HTTP {
	opts := []submit.HTTPOption{submit.WithAllowHosts(cfg.AllowHosts()...)}
	if cfg.SubmitAllowPrivate {
		opts = append(opts, submit.WithPrivateNetworks())
	}
	return submit.NewHTTP(cfg.SubmitTimeout, log, opts...)
}

// run migrates the schema, wires services and serves until ctx is done.
func run(ctx context.Context, cfg config.Config, dev bool, log *zap.Logger) error {
	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	db, pool, err := postgres.New(ctx, cfg.DSN, cfg.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	apps := postgres.NewAppRepo(db)
	tokens, err := service.NewTokenIssuer([]byte(cfg.JWTKey), cfg.AccessTTL)
	if err != nil {
		return err
	}
	rt, err := service.NewRuntimeService(service.RuntimeDeps{
		Apps:      apps,
		Instances: postgres.NewInstanceRepo(db),
		Tokens:    tokens,
		SealKey:   []byte(cfg.SealKey),
		Submitter: newSubmitter(cfg, log),
		Limiter:   limiter.NewPG(pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlock),
		MaxDepth:  cfg.MaxDepth,
		Log:       log,
	})
	if err != nil {
		return err
	}

	s, hs, err := newGRPC(cfg, dev, log)
	if err != nil {
		return err
	}
	grpcserver.RegisterRuntimeServer(s, grpcserver.New(service.NewAppService(apps, log), rt))

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", lis.Addr().String()))
		return s.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		gracefulStop(s)
		return nil
	})
	if cfg.MetricsAddr != "" {
		ms := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := ms.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), stopGrace)
			defer cancel()
			return ms.Shutdown(sctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func newGRPC(cfg config.Config, dev bool, log *zap.Logger) (*grpc.Server, *health.Server, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(log),
			grpcserver.LoggingUnary(log),
			grpcserver.AuthUnary([]byte(cfg.JWTKey), grpcserver.PublicMethods...),
		),
		grpc.ChainStreamInterceptor(grpcserver.RecoverStream(log)),
	}
	if cfg.TLS() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, nil, fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if dev {
		reflection.Register(s)
	}
	return s, hs, nil
}

// gracefulStop drains in-flight calls, forcing a stop after stopGrace.
func gracefulStop(s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.Stop()
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
