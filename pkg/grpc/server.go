// Package grpc runs the gRPC probe endpoint: the standard health service
// (grpc.health.v1.Health) plus reflection, behind recovery, logging and
// metrics interceptors. The serving status follows the database and the
// catalog data source.
//
//	srv := grpc.New()
//	go srv.Serve(lis)
//	srv.SetServing(grpc.ServiceCatalog, false)
//	srv.Stop()
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/metrics"
)

// Health service names. The empty name is the overall server status.
const (
	ServiceOverall  = ""
	ServiceDatabase = "resto.database"
	ServiceCatalog  = "resto.catalog"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resto",
		Subsystem: "grpc",
		Name:      "handled_total",
		Help:      "Total number of gRPC calls completed by method and code.",
	}, []string{"grpc_method", "grpc_code"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resto",
		Subsystem: "grpc",
		Name:      "handling_seconds",
		Help:      "Histogram of gRPC response latency in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"grpc_method"})
)

func init() {
	_ = metrics.Register(requestsTotal)
	_ = metrics.Register(requestDuration)
}

func recoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("grpc: panic recovered", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

func observeInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)

	requestsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()
	requestDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
	logger.Debug("grpc: request", "method", info.FullMethod, "duration_ms", time.Since(start).Milliseconds(), "code", code.String())
	return resp, err
}

// Server is the probe server.
type Server struct {
	srv    *grpc.Server
	health *health.Server
}

func New() *Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(recoveryInterceptor, observeInterceptor),
		grpc.MaxRecvMsgSize(1<<20),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	for _, svc := range []string{ServiceOverall, ServiceDatabase, ServiceCatalog} {
		hs.SetServingStatus(svc, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return &Server{srv: srv, health: hs}
}

// Listen opens a TCP listener on addr (":9090").
func Listen(addr string) (net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc: listen on %s: %w", addr, err)
	}
	return lis, nil
}

// Serve blocks until Stop.
func (s *Server) Serve(lis net.Listener) error {
	logger.Info("grpc: server starting", "addr", lis.Addr().String())
	if err := s.srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc: serve: %w", err)
	}
	return nil
}

// SetServing flips the status of one health service. The overall status is
// SERVING only while the database is.
func (s *Server) SetServing(service string, ok bool) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !ok {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(service, st)
	if service == ServiceDatabase {
		s.health.SetServingStatus(ServiceOverall, st)
	}
}

// Stop drains in-flight RPCs, marking every service NOT_SERVING first.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
	logger.Info("grpc: server stopped")
}
