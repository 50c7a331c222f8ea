// Package app assembles the configured runtime shared by panelflowd and
// panelctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"panelflow/internal/adapters/panels"
	"panelflow/internal/blob"
	"panelflow/internal/config"
	"panelflow/internal/core"
	"panelflow/internal/events"
	"panelflow/internal/infra/lock"
	"panelflow/internal/logging"
	"panelflow/internal/reconcile"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Registry   *prometheus.Registry
	Metrics    *core.PrometheusMetrics
	Store      core.PersistentStore
	Blobs      blob.Store
	Archive    *blob.UploadArchive
	Service    *core.Service
	Reconciler *reconcile.Reconciler

	closers []func() error
}

// New opens every backend named by cfg. On error whatever was already
// opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logging.OrNop(logger), Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = core.NewPrometheusMetrics(a.Registry)

	a.Store, err = core.OpenPersistentStore(ctx, cfg.StorageSettings(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	if c, ok := a.Store.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.Blobs, err = blob.Open(ctx, cfg.BlobSettings())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	a.Archive = blob.NewUploadArchive(a.Blobs, nil)

	locker, err := a.openLocker(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.openPublisher()
	if err != nil {
		return nil, err
	}

	a.Service = core.NewService(a.Store,
		core.WithLogger(a.Logger),
		core.WithMetrics(a.Metrics),
		core.WithLocker(locker),
		core.WithPublisher(publisher),
	)
	a.Reconciler = reconcile.New(a.Store, reconcile.Options{
		Workers:   cfg.Reconcile.Workers,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
		Publisher: publisher,
		Archive:   a.Archive,
	})
	a.Logger.Info("runtime ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", string(a.Blobs.Driver())),
		zap.String("lock", cfg.Lock.Driver),
		zap.Bool("events", cfg.MQTT.Broker != ""))
	return a, nil
}

func (a *App) openLocker(ctx context.Context) (lock.Locker, error) {
	if lock.Driver(a.Config.Lock.Driver) != lock.DriverRedis {
		return lock.NewLocal(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis %s: %w", a.Config.Redis.Addr, err)
	}
	return lock.NewRedis(client, lock.RedisOptions{TTL: a.Config.Lock.TTL, Logger: a.Logger}), nil
}

func (a *App) openPublisher() (events.Publisher, error) {
	if a.Config.MQTT.Broker == "" {
		return events.Noop{}, nil
	}
	publisher, err := events.DialMQTT(a.Config.MQTTSettings(), a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		publisher.Close()
		return nil
	})
	return publisher, nil
}

// Routes mounts the API under /api/v1/ plus /metrics and /healthz. exports
// may be nil.
func (a *App) Routes(exports panels.ExportScheduler) http.Handler {
	api := panels.NewHandler(a.Service, a.Reconciler)
	api.Archives = a.Archive
	api.Logger = a.Logger
	api.MaxUploadBytes = a.Config.HTTP.MaxUploadBytes
	if exports != nil {
		api.Exports = exports
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", api)
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Close releases backends, most recently opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
