package app

import (
	"context"
	"errors"
	"net"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcsvc "github.com/vladislavdragonenkov/carrier-pricelist/internal/service/grpc"
)

// apiServer: gRPC API расчёта доставки вместе с grpc.health.v1 и reflection.
type apiServer struct {
	server *grpc.Server
	health *health.Server
	logger *log.Entry
}

func newAPIServer(svc *grpcsvc.ShippingCostService, logger *log.Entry) *apiServer {
	interceptorMetrics := grpcServerMetrics(logger)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptorMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterShippingCostServer(server, svc)
	interceptorMetrics.InitializeMetrics(server)
	reflection.Register(server)

	hs := health.NewServer()
	for _, name := range []string{"", grpcsvc.ServiceName} {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(server, hs)

	return &apiServer{server: server, health: hs, logger: logger}
}

// grpcServerMetrics возвращает уже зарегистрированные метрики, если Run
// вызывается в процессе повторно.
func grpcServerMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	m := promgrpc.NewServerMetrics()
	err := prometheus.Register(m)
	if err == nil {
		return m
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
			return existing
		}
	}
	logger.WithError(err).Warn("grpc metrics are not exported")
	return m
}

// serve обслуживает lis до отмены ctx. После отмены возвращает ctx.Err().
func (a *apiServer) serve(ctx context.Context, lis net.Listener) error {
	served := make(chan error, 1)
	go func() { served <- a.server.Serve(lis) }()
	a.logger.WithField("addr", lis.Addr().String()).Info("gRPC API запущен")

	select {
	case err := <-served:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		a.stop()
		return ctx.Err()
	}
}

// stop переводит health в NOT_SERVING и даёт активным вызовам shutdownTimeout на завершение.
func (a *apiServer) stop() {
	a.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		a.server.GracefulStop()
		close(drained)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()
	select {
	case <-drained:
		a.logger.Info("gRPC API остановлен")
	case <-timer.C:
		a.logger.Warn("активные вызовы не завершились за отведённое время, соединения закрыты")
		a.server.Stop()
	}
}
