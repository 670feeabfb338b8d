package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/goliatone/go-churnform/pkg/resources"
)

// HealthService is the service name reported next to the overall status.
const HealthService = "churnform.Predictor"

// NewHealth returns a health server that reports NOT_SERVING until the
// resources load.
func NewHealth() *health.Server {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// HealthObserver flips h according to the outcome of the resource load.
func HealthObserver(h *health.Server) resources.Observer {
	return func(_ *resources.Resources, err error) {
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		h.SetServingStatus("", status)
		h.SetServingStatus(HealthService, status)
	}
}

// ServeHealth serves the gRPC health protocol on addr until ctx is done.
func ServeHealth(ctx context.Context, addr string, h *health.Server, log *zap.SugaredLogger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: grpc listen %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, h)

	errChan := make(chan error, 1)
	go func() {
		log.Infow("grpc health listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server: grpc serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	h.Shutdown()
	grpcServer.GracefulStop()
	return nil
}
