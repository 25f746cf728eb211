package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raulk/clock"
	"github.com/rs/zerolog"

	"dbpoll/internal/dbclient"
	"dbpoll/internal/domain"
	"dbpoll/internal/etl"
	"dbpoll/internal/metrics"
	"dbpoll/internal/schedule"
)

// ─────────────────────────────────────────────────────────────
// Poller: runs one source's statement on its schedule
// ─────────────────────────────────────────────────────────────

// State is the poll loop's lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateWaiting
	StateQuerying
	StateEmitting
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWaiting:
		return "waiting"
	case StateQuerying:
		return "querying"
	case StateEmitting:
		return "emitting"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Database runs a statement and reports pool statistics.
// *dbclient.Pool implements it.
type Database interface {
	Query(ctx context.Context, statement string) (*dbclient.ResultSet, error)
	Stats() sql.DBStats
}

// PollerConfig wires a Poller. Name, Statement, Schedule, DB and Sink are
// required; everything else has a default.
type PollerConfig struct {
	Name      string
	Statement string
	Schedule  *schedule.Schedule
	DB        Database
	Sink      etl.Sink
	Mapper    *etl.RowMapper

	// OnError defaults to ErrorPolicyFail.
	OnError             domain.ErrorPolicy
	CircuitTripFailures int
	// NewBackOff builds the retry policy used by ErrorPolicySkip.
	NewBackOff func() backoff.BackOff

	Guard   *RunningGuard
	Clock   clock.Clock
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

type Poller struct {
	name       string
	statement  string
	schedule   *schedule.Schedule
	db         Database
	sink       etl.Sink
	mapper     *etl.RowMapper
	onError    domain.ErrorPolicy
	newBackOff func() backoff.BackOff
	circuit    *circuit
	guard      *RunningGuard
	clock      clock.Clock
	log        zerolog.Logger
	metrics    *metrics.Metrics

	state atomic.Int32
}

// errShutdown marks a tick whose record a blocked sink gave up on because
// shutdown cancelled the hand-off.
var errShutdown = errors.New("poller: shutdown during send")

func NewPoller(cfg PollerConfig) (*Poller, error) {
	switch {
	case cfg.Name == "":
		return nil, errors.New("poller: name is required")
	case cfg.Statement == "":
		return nil, fmt.Errorf("poller %q: statement is required", cfg.Name)
	case cfg.Schedule == nil:
		return nil, fmt.Errorf("poller %q: schedule is required", cfg.Name)
	case cfg.DB == nil:
		return nil, fmt.Errorf("poller %q: database is required", cfg.Name)
	case cfg.Sink == nil:
		return nil, fmt.Errorf("poller %q: sink is required", cfg.Name)
	}

	p := &Poller{
		name:       cfg.Name,
		statement:  cfg.Statement,
		schedule:   cfg.Schedule,
		db:         cfg.DB,
		sink:       cfg.Sink,
		mapper:     cfg.Mapper,
		onError:    cfg.OnError,
		newBackOff: cfg.NewBackOff,
		guard:      cfg.Guard,
		clock:      cfg.Clock,
		log:        cfg.Log.With().Str("source", cfg.Name).Logger(),
		metrics:    cfg.Metrics,
	}
	if p.onError == "" {
		p.onError = domain.ErrorPolicyFail
	}
	if p.onError == domain.ErrorPolicySkip {
		p.circuit = newCircuit(cfg.CircuitTripFailures)
	}
	if p.newBackOff == nil {
		p.newBackOff = defaultBackOff
	}
	if p.guard == nil {
		p.guard = &RunningGuard{}
	}
	if p.clock == nil {
		p.clock = clock.New()
	}
	if p.mapper == nil {
		p.mapper = etl.NewRowMapper(p.name, domain.TimeEncodingObject, p.log, p.metrics)
	}
	return p, nil
}

// defaultBackOff allows three attempts in total.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(b, 2)
}

func (p *Poller) Name() string {
	return p.name
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
	p.metrics.PollerState(p.name, int(s))
}

// Run executes the poll loop until ctx is cancelled or a fatal error occurs.
// Cancellation while waiting or while handing a record to the sink is a
// clean shutdown and returns nil. A query in flight is not interrupted.
// Without a schedule the statement runs once and Run returns.
func (p *Poller) Run(ctx context.Context) error {
	if !p.guard.TryLock(p.name) {
		return fmt.Errorf("poller %q: already running", p.name)
	}
	defer p.guard.Unlock(p.name)
	defer p.setState(StateShuttingDown)

	p.setState(StateStarting)
	p.log.Info().Str("schedule", p.schedule.String()).Msg("poller: started")

	if p.schedule.Once() {
		err := p.tick(ctx)
		if err != nil && !errors.Is(err, errShutdown) {
			return p.fail(err)
		}
		p.log.Info().Msg("poller: run-once finished")
		return nil
	}

	for {
		now := p.clock.Now()
		next, err := p.schedule.Next(now)
		if err != nil {
			return p.fail(err)
		}
		delay := next.Sub(now)
		if delay < 0 {
			delay = 0
		}

		timer := p.clock.Timer(delay)
		p.setState(StateWaiting)
		p.log.Debug().Time("next", next).Dur("delay", delay).Msg("poller: waiting")

		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info().Msg("poller: shutting down")
			return nil
		case <-timer.C:
		}

		err = p.tick(ctx)
		switch {
		case err == nil:
		case errors.Is(err, errShutdown):
			p.log.Info().Msg("poller: shutting down")
			return nil
		case p.onError == domain.ErrorPolicySkip && isDatabaseError(err):
			p.log.Warn().Err(err).Msg("poller: tick failed, waiting for next fire time")
		default:
			return p.fail(err)
		}
	}
}

func (p *Poller) fail(err error) error {
	p.log.Error().Err(err).Msg("poller: stopped")
	return fmt.Errorf("poller %q: %w", p.name, err)
}

func isDatabaseError(err error) bool {
	return errors.Is(err, dbclient.ErrConnection) || errors.Is(err, dbclient.ErrQuery)
}

// tick runs the statement once and hands the record to the sink.
func (p *Poller) tick(ctx context.Context) error {
	if open, until := p.circuit.isOpen(p.clock.Now()); open {
		p.metrics.Tick(p.name, metrics.TickSkipped)
		p.log.Warn().Time("until", until).Msg("poller: circuit open, skipping tick")
		return nil
	}

	p.setState(StateQuerying)
	start := p.clock.Now()
	rs, err := p.query(context.WithoutCancel(ctx))
	p.metrics.QueryDuration(p.name, p.clock.Since(start))
	p.metrics.PoolStats(p.name, p.db.Stats())
	p.circuit.record(p.clock.Now(), err)
	if err != nil {
		p.metrics.Tick(p.name, metrics.TickFailed)
		return err
	}

	p.setState(StateEmitting)
	rows := p.mapper.Map(rs)
	rec := etl.NewRecord(p.name, p.clock.Now(), rows)
	if err := p.sink.Send(ctx, []etl.Record{rec}); err != nil {
		if ctx.Err() != nil {
			p.metrics.Tick(p.name, metrics.TickFailed)
			p.log.Warn().Err(err).Int("rows", len(rows)).Time("captured_at", rec.Timestamp).
				Msg("poller: record dropped, sink gave up during shutdown")
			return errShutdown
		}
		p.metrics.Tick(p.name, metrics.TickFailed)
		return fmt.Errorf("send: %w", err)
	}

	p.metrics.Tick(p.name, metrics.TickOK)
	p.metrics.Rows(p.name, len(rows))
	p.log.Debug().Int("rows", len(rows)).Msg("poller: record emitted")
	return nil
}

// query runs the statement. Under ErrorPolicySkip a failed connection
// attempt is retried with backoff; statement errors are not.
func (p *Poller) query(ctx context.Context) (*dbclient.ResultSet, error) {
	if p.onError != domain.ErrorPolicySkip {
		return p.db.Query(ctx, p.statement)
	}

	var rs *dbclient.ResultSet
	op := func() error {
		var err error
		rs, err = p.db.Query(ctx, p.statement)
		if err != nil && !errors.Is(err, dbclient.ErrConnection) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		p.log.Warn().Err(err).Dur("retry_in", d).Msg("poller: connection failed, retrying")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(p.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return rs, nil
}
