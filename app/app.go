// Package app assembles the scheduling service from configuration: stores,
// audit log, metrics, monitoring, the HTTP API and the MQTT bridge.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/rbtsched/api"
	"github.com/kilianp07/rbtsched/config"
	"github.com/kilianp07/rbtsched/core/audit"
	auditstore "github.com/kilianp07/rbtsched/core/audit/store"
	"github.com/kilianp07/rbtsched/core/clock"
	coremetrics "github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
	coremon "github.com/kilianp07/rbtsched/core/monitoring"
	"github.com/kilianp07/rbtsched/core/scheduling"
	"github.com/kilianp07/rbtsched/core/store"
	"github.com/kilianp07/rbtsched/infra/logger"
	inframetrics "github.com/kilianp07/rbtsched/infra/metrics"
	"github.com/kilianp07/rbtsched/infra/monitoring"
	"github.com/kilianp07/rbtsched/infra/mqtt"
	"github.com/kilianp07/rbtsched/infra/store/memory"
	"github.com/kilianp07/rbtsched/infra/store/sqlite"
	"github.com/kilianp07/rbtsched/internal/eventbus"
)

// App holds the assembled service and the resources it owns.
type App struct {
	Service *scheduling.Service
	Router  *gin.Engine

	cfg    *config.Config
	bus    *eventbus.TypedBus[model.ScheduleEvent]
	events auditstore.Store
	db     *sqlite.DB
	sink   coremetrics.MetricsSink
	log    logger.Logger
}

// New builds the application. Nothing listens and no broker connection is
// opened until Run.
func New(cfg *config.Config) (*App, error) {
	logger.Configure(cfg.Logging)
	log := logger.New("app")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	a := &App{cfg: cfg, log: log, bus: eventbus.NewTyped[model.ScheduleEvent]()}
	repos, err := a.openRepositories(context.Background())
	if err != nil {
		return nil, a.fail(err)
	}
	if a.events, err = auditstore.New(cfg.Audit); err != nil {
		return nil, a.fail(fmt.Errorf("audit store: %w", err))
	}
	if a.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, a.fail(fmt.Errorf("metrics sink: %w", err))
	}

	auditLog := audit.New(a.events, audit.WithBus(a.bus), audit.WithLogger(logger.New("audit")))
	a.Service, err = scheduling.New(cfg.Scheduling, scheduling.Deps{
		Repos:   repos,
		Audit:   auditLog,
		Clock:   clock.System{},
		Logger:  logger.New("scheduling"),
		Metrics: a.sink,
	})
	if err != nil {
		return nil, a.fail(err)
	}
	a.Router = api.NewRouter(a.Service, api.Options{Token: cfg.HTTP.Token, Logger: logger.New("api")})
	return a, nil
}

func (a *App) openRepositories(ctx context.Context) (store.Repositories, error) {
	var seed memory.Seed
	if path := a.cfg.Storage.Seed; path != "" {
		var err error
		if seed, err = memory.LoadSeed(path); err != nil {
			return store.Repositories{}, fmt.Errorf("load seed %s: %w", path, err)
		}
	}
	switch a.cfg.Storage.Backend {
	case "sqlite":
		db, err := sqlite.Open(a.cfg.Storage.Path)
		if err != nil {
			return store.Repositories{}, fmt.Errorf("open sqlite: %w", err)
		}
		a.db = db
		if err := db.Import(ctx, seed); err != nil {
			return store.Repositories{}, fmt.Errorf("import seed: %w", err)
		}
		return db.Repositories(), nil
	default:
		return seed.Repositories(), nil
	}
}

func (a *App) fail(err error) error {
	if cerr := a.Close(); cerr != nil {
		a.log.Errorf("close after failed start: %v", cerr)
	}
	return err
}

// Run serves the API, forwards audit events to metrics and MQTT, and blocks
// until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	var client *mqtt.PahoClient
	if a.cfg.MQTT.Broker != "" {
		var err error
		if client, err = mqtt.NewPahoClient(a.cfg.MQTT); err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	collected := inframetrics.StartEventCollector(ctx, a.bus, a.sink)
	g.Go(func() error {
		<-collected
		return nil
	})

	if client != nil {
		bridged := mqtt.NewBridge(client, a.cfg.MQTT.TopicPrefix, logger.New("mqtt_bridge")).Run(ctx, a.bus)
		g.Go(func() error {
			<-bridged
			client.Disconnect()
			return nil
		})
	}

	if a.cfg.Metrics.HasSink("prometheus") {
		addr := net.JoinHostPort("", a.cfg.Metrics.PrometheusPort)
		g.Go(func() error {
			defer coremon.Recover()
			return inframetrics.StartPromServer(ctx, addr, nil, logger.New("metrics"))
		})
	}

	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: a.Router, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSeconds)*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer coremon.Recover()
		a.log.Infof("serving api on %s", a.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases stores, sinks and the event bus.
func (a *App) Close() error {
	if a.bus != nil {
		a.bus.Close()
	}
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if c, ok := a.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
