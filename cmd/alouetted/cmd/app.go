package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/time/rate"

	"github.com/GoCodeAlone/alouette"
	"github.com/GoCodeAlone/alouette/backend"
	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/eventbus"
	"github.com/GoCodeAlone/alouette/httpapi"
	"github.com/GoCodeAlone/alouette/logging"
	"github.com/GoCodeAlone/alouette/metrics"
	"github.com/GoCodeAlone/alouette/storage"
)

// newApp wires the daemon. The registry is initialized on start and shut
// down on stop; the status server and the config watcher follow it.
func newApp(opts serveOptions, extra ...fx.Option) *fx.App {
	return fx.New(append([]fx.Option{appModule(opts)}, extra...)...)
}

func appModule(opts serveOptions) fx.Option {
	return fx.Options(
		fx.Supply(opts),
		fx.Provide(
			provideLogger,
			providePlatform,
			provideStore,
			provideBus,
			provideMetrics,
			provideConfigManager,
			provideInvoker,
			provideRegistry,
			provideRouter,
		),
		fx.Invoke(registerRegistry, registerConfigWatcher, registerStatusServer),
		fx.WithLogger(func(l *logging.ZapLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Zap()}
		}),
	)
}

func provideLogger(lc fx.Lifecycle, opts serveOptions) (*logging.ZapLogger, logging.Logger, error) {
	zl, err := logging.NewProductionLogger(opts.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = zl.Sync()
	}))
	return zl, zl, nil
}

func providePlatform(opts serveOptions) config.Platform {
	name := opts.Platform
	if name == "" {
		name = runtime.GOOS
	}
	return config.Platform{Name: name, Android: name == "android", IOS: name == "ios"}
}

func provideStore(opts serveOptions) (storage.Store, error) {
	if opts.DataFile == "" {
		return storage.NewMemory(storage.DefaultPrefix), nil
	}
	return storage.NewFile(opts.DataFile, storage.DefaultPrefix)
}

func provideBus(logger logging.Logger) *eventbus.Bus {
	return eventbus.New(eventbus.WithLogger(logger))
}

func provideMetrics(bus *eventbus.Bus) (*metrics.Metrics, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		eventbus.NewPrometheusCollector(bus, ""),
	)
	m, err := metrics.New(reg, "")
	if err != nil {
		return nil, nil, err
	}
	return m, reg, nil
}

// provideConfigManager loads persisted settings and, when a config file is
// given, applies it on top.
func provideConfigManager(opts serveOptions, store storage.Store, bus *eventbus.Bus, logger logging.Logger, platform config.Platform) (*config.Manager, error) {
	m := config.NewManager(store,
		config.WithBus(bus),
		config.WithLogger(logger),
		config.WithPlatform(platform),
	)
	ctx := context.Background()
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	if opts.ConfigFile != "" {
		cfg, err := config.LoadFile(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := m.Apply(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func provideInvoker(opts serveOptions, manager *config.Manager, logger logging.Logger, m *metrics.Metrics) (backend.Invoker, error) {
	cfg := manager.Snapshot()
	invokerOpts := []backend.HTTPOption{
		backend.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.LLM.Timeout) * time.Millisecond}),
		backend.WithPerformance(cfg.Performance),
		backend.WithInvokerLogger(logger),
		backend.WithInvokerMetrics(m),
	}
	if opts.RateLimit > 0 {
		burst := max(cfg.Performance.MaxConcurrentRequests, 1)
		invokerOpts = append(invokerOpts, backend.WithRateLimit(rate.Limit(opts.RateLimit), burst))
	}
	invoker, err := backend.NewHTTPInvoker(opts.BackendURL, invokerOpts...)
	if err != nil {
		return nil, err
	}
	return invoker, nil
}

type registryParams struct {
	fx.In

	Invoker  backend.Invoker
	Bus      *eventbus.Bus
	Logger   logging.Logger
	Manager  *config.Manager
	Platform config.Platform
	Metrics  *metrics.Metrics
}

func provideRegistry(p registryParams) *alouette.Registry {
	return alouette.NewRegistry(alouette.Dependencies{
		Invoker:  p.Invoker,
		Bus:      p.Bus,
		Logger:   p.Logger,
		Config:   p.Manager.Snapshot(),
		Platform: p.Platform,
	}, alouette.WithMetrics(p.Metrics))
}

func provideRouter(registry *alouette.Registry, reg *prometheus.Registry, logger logging.Logger) http.Handler {
	return httpapi.NewRouter(registry, httpapi.WithGatherer(reg), httpapi.WithLogger(logger))
}

func registerRegistry(lc fx.Lifecycle, registry *alouette.Registry) {
	lc.Append(fx.Hook{
		OnStart: registry.Initialize,
		OnStop: func(ctx context.Context) error {
			registry.Shutdown(ctx)
			return nil
		},
	})
}

func registerConfigWatcher(lc fx.Lifecycle, opts serveOptions, manager *config.Manager, logger logging.Logger) {
	if opts.ConfigFile == "" {
		return
	}

	var (
		watcher *config.Watcher
		cancel  context.CancelFunc
		done    = make(chan struct{})
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w, err := config.NewWatcher(opts.ConfigFile, manager, logger)
			if err != nil {
				return err
			}
			watcher = w
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Config watcher stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			err := watcher.Close()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return err
		},
	})
}

func registerStatusServer(lc fx.Lifecycle, opts serveOptions, handler http.Handler, logger logging.Logger) {
	srv := &http.Server{
		Addr:              opts.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("Status server listening", "addr", ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Status server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
