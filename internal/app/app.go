package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/raulk/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dbpoll/internal/config"
	"dbpoll/internal/domain"
	"dbpoll/internal/etl"
	"dbpoll/internal/etl/sinks"
	"dbpoll/internal/metrics"
	"dbpoll/internal/storage"
)

// Source states reported by Health besides the poller's own states.
const (
	StateFailed  = "failed"
	StateStopped = "stopped"
)

// App owns everything one configuration generation needs: the sink, the
// metrics endpoint and one instance per configured source.
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	clock   clock.Clock
	stdout  io.Writer
	metrics *metrics.Metrics

	server *metrics.Server
	db     *storage.DB
	sink   etl.Sink

	mu        sync.Mutex
	instances map[string]etl.Instance
	final     map[string]string
}

type Option func(*App)

// WithClock replaces the wall clock used by every poll loop.
func WithClock(c clock.Clock) Option { return func(a *App) { a.clock = c } }

// WithStdout redirects the stdout sink.
func WithStdout(w io.Writer) Option { return func(a *App) { a.stdout = w } }

// WithSink bypasses the configured sink.
func WithSink(s etl.Sink) Option { return func(a *App) { a.sink = s } }

// New creates an App for cfg. Nothing is opened until Startup.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		log:       log,
		clock:     clock.New(),
		stdout:    os.Stdout,
		metrics:   metrics.New(),
		instances: make(map[string]etl.Instance),
		final:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Startup opens the sink and, when configured, the metrics endpoint.
func (a *App) Startup(ctx context.Context) error {
	if a.sink == nil {
		sink, err := a.openSink()
		if err != nil {
			return err
		}
		a.sink = sink
	}

	if a.cfg.Metrics.Listen != "" {
		srv, err := metrics.Start(a.cfg.Metrics.Listen, a.metrics, a.Health, a.log)
		if err != nil {
			a.Shutdown(ctx)
			return err
		}
		a.server = srv
	}
	return nil
}

func (a *App) openSink() (etl.Sink, error) {
	switch a.cfg.Sink.Type {
	case config.SinkSQLite:
		db, err := storage.New(a.cfg.Sink.Path)
		if err != nil {
			return nil, fmt.Errorf("app: open sqlite sink: %w", err)
		}
		a.db = db
		a.log.Info().Str("path", db.Path()).Msg("app: writing records to sqlite")
		return &sinks.SQLite{Store: storage.NewRecordStore(db)}, nil
	default:
		return sinks.NewJSONLines(a.stdout), nil
	}
}

// Shutdown releases what Startup opened. Sources stop through the context
// passed to RunSources.
func (a *App) Shutdown(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			a.log.Warn().Err(err).Msg("app: metrics shutdown")
		}
		a.server = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// MetricsAddr is the bound metrics address, or "" when disabled.
func (a *App) MetricsAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// RunSources runs every configured source until ctx is cancelled or every
// source has returned. A failing source never stops the others; all
// failures are returned joined.
func (a *App) RunSources(ctx context.Context) error {
	env := etl.Env{Log: a.log, Clock: a.clock, Metrics: a.metrics, Sink: a.sink}

	var (
		g      errgroup.Group
		errMu  sync.Mutex
		failed []error
	)
	record := func(name string, err error) {
		a.finish(name, err)
		if err != nil {
			errMu.Lock()
			failed = append(failed, err)
			errMu.Unlock()
		}
	}

	for _, cfg := range a.cfg.SourceConfigs() {
		inst, err := a.build(cfg, env)
		if err != nil {
			a.log.Error().Err(err).Str("source", cfg.Name).Msg("app: source not started")
			record(cfg.Name, err)
			continue
		}

		a.mu.Lock()
		a.instances[cfg.Name] = inst
		a.mu.Unlock()

		name := cfg.Name
		g.Go(func() error {
			defer inst.Close()
			err := inst.Run(ctx)
			record(name, err)
			return nil
		})
	}

	g.Wait()
	return errors.Join(failed...)
}

func (a *App) build(cfg domain.SourceConfig, env etl.Env) (etl.Instance, error) {
	src, err := etl.GetSource(string(cfg.Connection.Driver))
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", cfg.Name, err)
	}
	return src.Build(cfg, env)
}

func (a *App) finish(name string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.instances, name)
	if err != nil {
		a.final[name] = StateFailed
	} else {
		a.final[name] = StateStopped
	}
}

// Health reports the state of every configured source.
func (a *App) Health() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.instances)+len(a.final))
	for name, state := range a.final {
		out[name] = state
	}
	for name, inst := range a.instances {
		out[name] = inst.State()
	}
	return out
}
