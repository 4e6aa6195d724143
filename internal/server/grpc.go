package server

import (
	"LiqWatch/internal/observability"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	grpc_metric "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Server wraps the gRPC server and the HTTP/JSON mux.
type Server struct {
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	svc           RiskService
	healthChecker *observability.HealthChecker
	metrics       *observability.Metrics
	corsOrigins   []string
	logger        zerolog.Logger
}

// Deps holds what the API needs. HealthChecker, Metrics and Registerer may
// be nil. CORS headers are only sent when CORSOrigins is non-empty.
type Deps struct {
	Service       RiskService
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Registerer    prometheus.Registerer
	CORSOrigins   []string
	Logger        zerolog.Logger
}

// New creates a server with the risk service, gRPC health and reflection
// registered.
func New(grpcAddr, httpAddr string, deps Deps) *Server {
	s := &Server{
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		svc:           deps.Service,
		healthChecker: deps.HealthChecker,
		metrics:       deps.Metrics,
		corsOrigins:   deps.CORSOrigins,
		logger:        deps.Logger,
	}

	grpcMetrics := grpc_metric.NewServerMetrics()
	grpcMetrics.EnableHandlingTimeHistogram()

	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor(), s.observeUnary))
	s.grpcServer.RegisterService(&riskServiceDesc, deps.Service)
	grpcMetrics.InitializeMetrics(s.grpcServer)
	if deps.Registerer != nil {
		if err := deps.Registerer.Register(grpcMetrics); err != nil {
			s.logger.Warn().Err(err).Msg("grpc metrics not registered")
		}
	}

	s.healthServer = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.healthServer)
	s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	reflection.Register(s.grpcServer)
	return s
}

// MarkServing flips the risk service's gRPC health to SERVING. Called once
// the first snapshot is available.
func (s *Server) MarkServing() {
	s.healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// StartGRPC listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeGRPC(ctx, lis)
}

// ServeGRPC serves on lis until ctx is cancelled.
func (s *Server) ServeGRPC(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// StartHTTP serves the HTTP/JSON API and health endpoints until ctx is
// cancelled.
func (s *Server) StartHTTP(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) observeUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	method := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
	code := status.Code(err)
	s.observe("grpc."+method, code, start)
	if code == codes.Internal {
		s.logger.Error().Err(err).Str("method", info.FullMethod).Msg("request failed")
	}
	return resp, err
}

func (s *Server) observe(endpoint string, code codes.Code, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, code.String()).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if code != codes.OK {
		s.metrics.QueryErrors.WithLabelValues(endpoint, code.String()).Inc()
	}
}
