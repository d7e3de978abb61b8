package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
)

const shutdownTimeout = 5 * time.Second

// NewRouter serves /healthz and /metrics from reg.
func NewRouter(reg *prometheus.Registry, health http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	return r
}

// StartMonitoringServer serves the monitoring endpoints on port until ctx is
// done, then shuts down gracefully.
func StartMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	storage StoragePinger,
	sess SessionReader,
	port int,
	apiHost string,
) error {
	log = log.With(slog.String("op", "server.StartMonitoringServer"))

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           NewRouter(reg, NewHealthChecker(storage, apiHost, sess, log)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "Monitoring server started", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.ErrorContext(ctx, "Monitoring server failed", sl.Err(err))
			return fmt.Errorf("monitoring server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Monitoring server shutdown failed", sl.Err(err))
		return fmt.Errorf("monitoring server shutdown: %w", err)
	}
	log.InfoContext(shutdownCtx, "Monitoring server stopped")

	return nil
}
