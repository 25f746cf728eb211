package app

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"dbpoll/internal/config"
	"dbpoll/internal/etl/sources"
	"dbpoll/internal/logging"
)

// Runner loads a configuration file and runs it. With Watch set, a change
// to the file shuts every source down gracefully and starts a fresh App
// from the new configuration once every old poller has released its
// running token; an invalid file is logged and ignored.
type Runner struct {
	ConfigPath string
	Watch      bool
	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer
	Options   []Option
}

// Run blocks until ctx is cancelled or, without Watch, until every source
// has returned. Failures of individual sources are returned joined.
func (r *Runner) Run(ctx context.Context) error {
	cfg, err := config.Load(r.ConfigPath)
	if err != nil {
		return err
	}

	var changes <-chan struct{}
	if r.Watch {
		changes, err = config.Watch(ctx, r.ConfigPath, r.logger(cfg))
		if err != nil {
			return err
		}
	}

	for {
		next, err := r.generation(ctx, cfg, changes)
		if next == nil {
			return err
		}
		cfg = next
	}
}

func (r *Runner) logger(cfg *config.Config) zerolog.Logger {
	w := r.LogOutput
	if w == nil {
		w = os.Stderr
	}
	return logging.NewWriter(w, cfg.Logging())
}

// generation runs one configuration. It returns the next configuration
// when a reload was accepted, or nil with the final error otherwise.
func (r *Runner) generation(ctx context.Context, cfg *config.Config, changes <-chan struct{}) (*config.Config, error) {
	log := r.logger(cfg)
	a := New(cfg, log, r.Options...)
	if err := a.Startup(ctx); err != nil {
		return nil, err
	}
	defer a.Shutdown(context.WithoutCancel(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.RunSources(runCtx) }()

	var idle <-chan struct{}
	for {
		select {
		case err := <-done:
			if changes == nil || ctx.Err() != nil {
				return nil, err
			}
			if err != nil {
				log.Error().Err(err).Msg("app: sources stopped")
			}
			log.Info().Msg("app: all sources finished, waiting for a configuration change")
			done = nil
			idle = ctx.Done()

		case <-idle:
			return nil, nil

		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			next, err := config.Load(r.ConfigPath)
			if err != nil {
				log.Error().Err(err).Msg("app: reload rejected, keeping current configuration")
				continue
			}
			log.Info().Msg("app: configuration changed, restarting sources")
			cancel()
			if err := sources.Guard.WaitAll(ctx); err != nil {
				log.Warn().Strs("sources", sources.Guard.Running()).
					Msg("app: interrupted while sources finish their last tick")
				if done != nil {
					return nil, <-done
				}
				return nil, nil
			}
			select {
			case err := <-done:
				if err != nil {
					log.Warn().Err(err).Msg("app: sources failed before reload")
				}
			default:
			}
			return next, nil
		}
	}
}
