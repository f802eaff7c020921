package grpc

import (
	"context"
	"log/slog"
	"net"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"

	grpc_logging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"

	"github.com/harryn0502/tracelens/internal/config"
	"github.com/harryn0502/tracelens/internal/contextkey"
	"github.com/harryn0502/tracelens/internal/grpc/handler"
	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/translator"
)

// Server wraps the gRPC server with configuration and lifecycle management.
type Server struct {
	server   *grpc.Server
	listener net.Listener
	cfg      config.Config
}

// NewServer creates the OTLP gRPC ingest server with logging and recovery
// interceptors and the standard health and reflection services.
func NewServer(cfg config.Config, ch chan *model.Span) (*Server, error) {
	tr := translator.NewTranslator()

	loggerOpts := []grpc_logging.Option{
		grpc_logging.WithLogOnEvents(grpc_logging.StartCall, grpc_logging.FinishCall),
	}

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc_recovery.UnaryServerInterceptor(),
			grpc_logging.UnaryServerInterceptor(InterceptorLogger(slog.Default()), loggerOpts...),
			projectInterceptor(cfg),
		),
		grpc.MaxRecvMsgSize(cfg.GRPCMaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.GRPCMaxSendMsgSize),
	)

	traceHandler := handler.NewTraceServiceHandler(tr, ch)
	collectortracepb.RegisterTraceServiceServer(s, traceHandler)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("otlp.collector.trace.v1.TraceService", grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(s)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return nil, err
	}

	return &Server{
		server:   s,
		listener: lis,
		cfg:      cfg,
	}, nil
}

// Start begins serving gRPC requests.
func (s *Server) Start() error {
	slog.Info("Starting gRPC server", "port", s.cfg.GRPCPort)
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the gRPC server.
func (s *Server) Stop() {
	slog.Info("Stopping gRPC server")
	s.server.GracefulStop()
}

// Addr returns the server's listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// projectInterceptor stamps the request context with the project name from
// the x-project metadata key, falling back to the configured default. The
// handler applies it to ingested spans as their session name.
func projectInterceptor(cfg config.Config) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		project := cfg.DefaultProject
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if projects := md.Get("x-project"); len(projects) > 0 {
				project = projects[0]
			}
		}
		if project != "" {
			ctx = context.WithValue(ctx, contextkey.ProjectKey, project)
		}
		return next(ctx, req)
	}
}

// InterceptorLogger adapts slog logger to interceptor logger interface.
func InterceptorLogger(l *slog.Logger) grpc_logging.Logger {
	return grpc_logging.LoggerFunc(func(ctx context.Context, lvl grpc_logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}
