package api

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"marketcal/internal/config"
)

func TestNewServer(t *testing.T) {
	cfg := &config.Config{Server: config.Server{Host: "127.0.0.1", Port: 8080, GRPCPort: 9090}}
	s := NewServer(cfg, http.NotFoundHandler(), slog.Default())
	assert.Equal(t, "127.0.0.1:8080", s.httpAddr)
	assert.Equal(t, "127.0.0.1:9090", s.grpcAddr)

	cfg.Server.GRPCPort = 0
	assert.Empty(t, NewServer(cfg, http.NotFoundHandler(), slog.Default()).grpcAddr)
}

func TestServeHTTPAndHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	s := NewServer(&config.Config{}, mux, slog.New(slog.NewTextHandler(io.Discard, nil)))

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, httpLis, grpcLis) }()

	resp, err := http.Get("http://" + httpLis.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	hc := healthpb.NewHealthClient(conn)
	for _, svc := range []string{"", ServiceName} {
		res, err := hc.Check(callCtx, &healthpb.HealthCheckRequest{Service: svc})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.GetStatus(), "service %q", svc)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
