package client

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// CreateHTTPClient initializes an HTTP client that keeps its cookies in jar
// and traces every request.
func CreateHTTPClient(log *slog.Logger, jar http.CookieJar, timeout time.Duration) *http.Client {
	return &http.Client{
		Jar:       jar,
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			log.Debug("Redirected to URL", "URL", req.URL)

			return nil
		},
	}
}
