package sources

import (
	"context"
	"fmt"

	"dbpoll/internal/dbclient"
	"dbpoll/internal/domain"
	"dbpoll/internal/etl"
	"dbpoll/internal/schedule"
	"dbpoll/internal/service"
)

// ── MySQL Source ───────────────────────────────────────────
// Runs a fixed statement against MySQL on a cron schedule and emits one
// record per tick. Delivery is fire-and-forget: nothing is acknowledged
// back to the database.

// Guard is shared by every MySQL instance in the process so that a source
// restarted by a config reload never overlaps with its predecessor.
var Guard = &service.RunningGuard{}

type mysqlSource struct{}

func init() { etl.RegisterSource(&mysqlSource{}) }

func (s *mysqlSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  string(domain.DatabaseDriverMySQL),
		Label: "MySQL Query",
	}
}

func (s *mysqlSource) CanAcknowledge() bool { return false }

func (s *mysqlSource) Build(cfg domain.SourceConfig, env etl.Env) (etl.Instance, error) {
	log := env.Log.With().Str("source", cfg.Name).Logger()

	sched, err := schedule.New(cfg.Schedule, log)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", cfg.Name, err)
	}

	pool, err := dbclient.NewPool(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", cfg.Name, err)
	}

	poller, err := service.NewPoller(service.PollerConfig{
		Name:                cfg.Name,
		Statement:           cfg.Statement,
		Schedule:            sched,
		DB:                  pool,
		Sink:                env.Sink,
		Mapper:              etl.NewRowMapper(cfg.Name, cfg.TimeEncoding, log, env.Metrics),
		OnError:             cfg.OnError,
		CircuitTripFailures: cfg.CircuitTripFailures,
		Guard:               Guard,
		Clock:               env.Clock,
		Log:                 env.Log,
		Metrics:             env.Metrics,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &mysqlInstance{poller: poller, pool: pool}, nil
}

type mysqlInstance struct {
	poller *service.Poller
	pool   *dbclient.Pool
}

func (i *mysqlInstance) Run(ctx context.Context) error {
	return i.poller.Run(ctx)
}

func (i *mysqlInstance) State() string {
	return i.poller.State().String()
}

func (i *mysqlInstance) Close() error {
	return i.pool.Close()
}
