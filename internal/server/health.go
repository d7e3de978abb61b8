package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/oeee-cafe/oeee-client/internal/session"
)

// StoragePinger reports whether the durable store answers.
type StoragePinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to StoragePinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SessionReader exposes the session state to the health report.
type SessionReader interface {
	State() session.State
}

// HealthChecker serves /healthz.
type HealthChecker struct {
	storage    StoragePinger
	apiHost    string
	session    SessionReader
	httpClient *http.Client
	log        *slog.Logger
}

// NewHealthChecker creates the /healthz handler. sess may be nil; the session
// state is informational and never fails the check.
func NewHealthChecker(storage StoragePinger, apiHost string, sess SessionReader, log *slog.Logger) *HealthChecker {
	clientTO := 5
	return &HealthChecker{
		storage:    storage,
		apiHost:    apiHost,
		session:    sess,
		httpClient: &http.Client{Timeout: time.Duration(clientTO) * time.Second},
		log:        log,
	}
}

func (h *HealthChecker) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	h.log.DebugContext(req.Context(), "Performing health checks...")

	var err error
	status := make(map[string]string)
	overallStatus := http.StatusOK

	if err = h.storage.Ping(req.Context()); err != nil {
		status["storage"] = "unavailable"
		overallStatus = http.StatusServiceUnavailable
		h.log.WarnContext(req.Context(), "Health check failed: storage ping", sl.Err(err))
	} else {
		status["storage"] = "ok"
	}

	resp, err := h.httpClient.Head(h.apiHost) //nolint:noctx // ctx is overhead for this healthcheck
	switch {
	case err != nil:
		status["api_host"] = "unreachable"
		overallStatus = http.StatusServiceUnavailable
		h.log.WarnContext(req.Context(), "Health check failed: api host unreachable", "host", h.apiHost, sl.Err(err))
	case resp.StatusCode >= http.StatusInternalServerError:
		status["api_host"] = "degraded"
		overallStatus = http.StatusServiceUnavailable
		h.log.WarnContext(
			req.Context(),
			"Health check failed: api host returned error status",
			"host",
			h.apiHost,
			"status_code",
			resp.StatusCode,
		)
	default:
		status["api_host"] = "ok"
	}
	if resp != nil {
		if err = resp.Body.Close(); err != nil {
			h.log.WarnContext(req.Context(), "Failed to close response body", sl.Err(err))
		}
	}

	if h.session != nil {
		state := h.session.State()
		switch {
		case state.IsCheckingAuth:
			status["session"] = "checking"
		case state.IsAuthenticated:
			status["session"] = "authenticated"
		default:
			status["session"] = "anonymous"
		}
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(overallStatus)
	if err = json.NewEncoder(writer).Encode(status); err != nil {
		h.log.ErrorContext(req.Context(), "Failed to write health check response", sl.Err(err))
	}

	h.log.DebugContext(req.Context(), "Health checks completed", "status", overallStatus)
}
