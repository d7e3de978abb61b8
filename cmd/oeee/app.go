package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"

	"github.com/oeee-cafe/oeee-client/internal/api"
	"github.com/oeee-cafe/oeee-client/internal/client"
	"github.com/oeee-cafe/oeee-client/internal/config"
	"github.com/oeee-cafe/oeee-client/internal/cookies"
	"github.com/oeee-cafe/oeee-client/internal/kv"
	"github.com/oeee-cafe/oeee-client/internal/metrics"
	"github.com/oeee-cafe/oeee-client/internal/push"
	"github.com/oeee-cafe/oeee-client/internal/securestore"
	"github.com/oeee-cafe/oeee-client/internal/server"
	"github.com/oeee-cafe/oeee-client/internal/session"
)

// Namespaces of the durable store.
const (
	nsCookies = "cookies"
	nsSession = "session"
)

// app holds everything a command needs.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics

	storage server.StoragePinger
	cookies *cookies.Store
	tokens  *push.TokenStore
	api     *api.Client
	session *session.Controller

	closeFn func()
}

// backend opens the secure store of a namespace on the configured driver.
type backend struct {
	open  func(namespace string) kv.Store
	ping  server.PingFunc
	close func()
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, sources ...securestore.KeySource) (*app, error) {
	// Create a separate registry for metrics with exemplar
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	back, err := openBackend(ctx, cfg, appMetrics)
	if err != nil {
		return nil, err
	}

	vault := securestore.NewVault(log, appMetrics, sources...)
	fs := afero.NewOsFs()
	openNamespace := func(name string) kv.Store {
		namespace := cfg.Namespace(name)

		var plain kv.Store
		if cfg.Storage.Driver != config.DriverMemory {
			plain = kv.NewFileStore(fs, filepath.Join(cfg.Storage.PlainDir, namespace+".json"))
		}

		store, tier := vault.Open(ctx, namespace, back.open(namespace), plain)
		log.DebugContext(ctx, "Opened namespace", "namespace", namespace, "tier", tier)

		return store
	}

	records, err := cookies.NewRecordStore(ctx, log, openNamespace(nsCookies), appMetrics)
	if err != nil {
		back.close()
		return nil, err
	}
	cookieStore := cookies.NewStore(log, records, appMetrics)

	jar := client.NewCookieJar(log, cookieStore)
	httpClient := client.CreateHTTPClient(log, jar, cfg.API.Timeout)

	apiClient, err := api.NewClient(log, httpClient, cfg.API.BaseURL, appMetrics)
	if err != nil {
		back.close()
		return nil, err
	}

	sessionStore := openNamespace(nsSession)
	tokens := push.NewTokenStore(sessionStore)
	controller := session.NewController(ctx, log, apiClient, sessionStore, cookieStore, tokens, appMetrics)

	return &app{
		cfg:     cfg,
		log:     log,
		reg:     reg,
		metrics: appMetrics,
		storage: back.ping,
		cookies: cookieStore,
		tokens:  tokens,
		api:     apiClient,
		session: controller,
		closeFn: back.close,
	}, nil
}

func (a *app) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		dtb, err := kv.NewDatabase(
			cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Dbname)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}

		return &backend{
			open:  func(namespace string) kv.Store { return kv.NewPostgresStore(dtb, namespace, m) },
			ping:  dtb.Ping,
			close: dtb.Close,
		}, nil
	case config.DriverSQLite:
		dtb, err := kv.OpenSQLite(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, err
		}

		return &backend{
			open:  func(namespace string) kv.Store { return kv.NewSQLiteStore(dtb, namespace, m) },
			ping:  dtb.PingContext,
			close: func() { _ = dtb.Close() },
		}, nil
	default:
		stores := map[string]*kv.MemoryStore{}

		return &backend{
			open: func(namespace string) kv.Store {
				if _, ok := stores[namespace]; !ok {
					stores[namespace] = kv.NewMemoryStore()
				}
				return stores[namespace]
			},
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}
}
