package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/carrier-pricelist/internal/health"
)

// startMetricsServer отдаёт /metrics и health-эндпоинты; сервер живёт до отмены ctx.
// Занятый адрес не останавливает сервис: ошибка только логируется.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, checks *healthcheck.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checks.HealthHandler())
	mux.Handle("/readyz", checks.ReadinessHandler())
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	entry := logger.WithField("addr", addr)
	go func() {
		entry.Info("HTTP: /metrics /healthz /readyz /livez")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Warn("metrics server stopped")
		}
	}()
	context.AfterFunc(ctx, func() { shutdownHTTP(srv, logger) })
	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics server shutdown")
	}
}
