// Package api runs the marketcal network listeners: the JSON HTTP API and a
// gRPC endpoint carrying the standard health service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"marketcal/internal/config"
)

// shutdownTimeout bounds the graceful HTTP shutdown after ctx is done.
const shutdownTimeout = 10 * time.Second

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr string
	grpcAddr string // empty disables gRPC
	handler  http.Handler
	log      *slog.Logger

	mu      sync.Mutex
	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *health.Server
}

// NewServer creates a Server configured from cfg, serving handler over HTTP.
// gRPC is enabled when cfg.Server.GRPCPort is set.
func NewServer(cfg *config.Config, handler http.Handler, log *slog.Logger) *Server {
	s := &Server{
		httpAddr: cfg.Server.Addr(),
		handler:  handler,
		log:      log,
	}
	if cfg.Server.GRPCPort > 0 {
		s.grpcAddr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
	}
	return s
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	var grpcLis net.Listener
	if s.grpcAddr != "" {
		if grpcLis, err = net.Listen("tcp", s.grpcAddr); err != nil {
			httpLis.Close()
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve serves on the given listeners until ctx is done, then shuts down
// gracefully. grpcLis may be nil.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	s.mu.Lock()
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpSrv := s.httpSrv
	var grpcSrv *grpc.Server
	if grpcLis != nil {
		s.grpcSrv, s.health = newGRPCServer()
		grpcSrv = s.grpcSrv
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("http server listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcSrv != nil {
		g.Go(func() error {
			s.log.Info("grpc server listening", "addr", grpcLis.Addr().String())
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers. The
// health service reports NOT_SERVING while in-flight calls drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpSrv, grpcSrv, hs := s.httpSrv, s.grpcSrv, s.health
	s.mu.Unlock()

	if hs != nil {
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		hs.Shutdown()
	}
	if grpcSrv != nil {
		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
	}
	if httpSrv == nil {
		return nil
	}
	s.log.Info("shutting down")
	return httpSrv.Shutdown(ctx)
}
