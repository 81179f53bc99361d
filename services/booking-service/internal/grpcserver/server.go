package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/salonbook/salonbook/libs/grpcx"
	"github.com/salonbook/salonbook/libs/runtime"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "salonbook.booking"

type Config struct {
	Addr       string
	CheckEvery time.Duration
	Checks     []runtime.ReadyCheck
}

type Server struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
	checks []runtime.ReadyCheck
	every  time.Duration
	done   chan struct{}
}

// Start listens on cfg.Addr and serves grpc.health.v1 until ctx is cancelled. The
// reported status follows the ready checks, re-evaluated every cfg.CheckEvery.
func Start(ctx context.Context, logger *slog.Logger, cfg Config) (*Server, error) {
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = 5 * time.Second
	}
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		srv: grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(
				grpcx.UnaryServerRequestIDInterceptor(),
				grpcx.UnaryServerLoggingInterceptor(logger),
			),
		),
		health: health.NewServer(),
		lis:    lis,
		logger: logger,
		checks: cfg.Checks,
		every:  cfg.CheckEvery,
		done:   make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.refresh(ctx)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := s.srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go s.watch(ctx)

	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// Done is closed once the server has stopped after ctx cancellation.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) watch(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.srv.GracefulStop()
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Server) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := runtime.RunChecks(ctx, s.checks...); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("readiness check failed", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
