// Package health serves the standard gRPC health protocol for socialsyncd.
// The reported status follows the backend connectivity check.
package health

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/socialsync/internal/logging"
)

// Service is the name the daemon registers besides the overall "" entry.
const Service = "socialsync.Sync"

// Server wraps a grpc.Server exposing grpc.health.v1.
type Server struct {
	address   string
	logger    logging.Logger
	reachable func() bool
	interval  time.Duration
	health    *grpchealth.Server
}

// NewServer builds a server on address. reachable reports backend reachability
// and is polled every interval.
func NewServer(address string, l logging.Logger, reachable func() bool, interval time.Duration) *Server {
	if l == nil {
		l = logging.Nop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		address:   address,
		logger:    l.With("module", "health"),
		reachable: reachable,
		interval:  interval,
		health:    grpchealth.NewServer(),
	}
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.refresh()
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting health server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}

func (s *Server) watch(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.reachable != nil && !s.reachable() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}
