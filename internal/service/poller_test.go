package service_test

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/raulk/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbpoll/internal/dbclient"
	"dbpoll/internal/domain"
	"dbpoll/internal/etl"
	"dbpoll/internal/etl/sinks"
	"dbpoll/internal/schedule"
	"dbpoll/internal/service"
)

// ─────────────────────────────────────────────────────────────
// Poller tests
// The mock clock only moves when the test calls Add, so every test
// waits for StateWaiting (set after the timer exists) before advancing.
// ─────────────────────────────────────────────────────────────

const usersQuery = "SELECT id, name FROM users"

var noon = time.Date(2024, 1, 1, 12, 3, 0, 0, time.UTC)

func newMockPool(t *testing.T) (*dbclient.Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	pool := dbclient.NewPoolFromDB(sqlx.NewDb(db, "mysql"))
	t.Cleanup(func() { pool.Close() })
	return pool, mock
}

func usersRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("BIGINT", int64(0)),
		mock.NewColumn("name").OfType("VARCHAR", ""),
	).AddRow(int64(1), []byte("Alice"))
}

func mustSchedule(t *testing.T, expr string) *schedule.Schedule {
	t.Helper()
	s, err := schedule.New(domain.ScheduleSpec{Expression: domain.OptionalString(expr)}, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func mockClock(at time.Time) *clock.Mock {
	c := clock.NewMock()
	c.Set(at)
	return c
}

func run(ctx context.Context, p *service.Poller) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- p.Run(ctx) }()
	return ch
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func waitState(t *testing.T, p *service.Poller, s service.State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == s }, 2*time.Second, time.Millisecond,
		"state never became %s (now %s)", s, p.State())
}

// countingDB counts Query calls so tests can tell ticks apart.
type countingDB struct {
	service.Database
	calls atomic.Int32
}

func (c *countingDB) Query(ctx context.Context, statement string) (*dbclient.ResultSet, error) {
	defer c.calls.Add(1)
	return c.Database.Query(ctx, statement)
}

func TestPoller_EmitsOnSchedule(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectPrepare(usersQuery).ExpectQuery().WillReturnRows(usersRows(mock))

	clk := mockClock(noon)
	sink := &etl.MockSink{}
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, "*/10 * * * *"),
		DB:        pool,
		Sink:      sink,
		Clock:     clk,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := run(ctx, p)

	waitState(t, p, service.StateWaiting)
	assert.Empty(t, sink.Records())

	clk.Add(7 * time.Minute)
	require.Eventually(t, func() bool { return len(sink.Records()) == 1 }, 2*time.Second, time.Millisecond)

	rec := sink.Records()[0]
	assert.Equal(t, time.Date(2024, 1, 1, 12, 10, 0, 0, time.UTC), rec.Timestamp)
	msg, err := json.Marshal(rec.Message)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"name":"Alice"}]`, string(msg))
	require.Len(t, sink.Batches, 1)
	assert.Len(t, sink.Batches[0], 1)

	waitState(t, p, service.StateWaiting)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, service.StateShuttingDown, p.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoller_ShutdownWhileWaiting(t *testing.T) {
	pool, mock := newMockPool(t)
	clk := mockClock(noon)
	sink := &etl.MockSink{}
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, "*/10 * * * *"),
		DB:        pool,
		Sink:      sink,
		Clock:     clk,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, p)
	waitState(t, p, service.StateWaiting)

	cancel()
	require.NoError(t, waitDone(t, done))
	clk.Add(time.Hour)

	assert.Empty(t, sink.Records())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// blockingConnector never hands out a connection until its context ends.
type blockingConnector struct{}

func (blockingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingConnector) Driver() driver.Driver { return nil }

func TestPoller_AcquireTimeoutIsFatal(t *testing.T) {
	db := sqlx.NewDb(sql.OpenDB(blockingConnector{}), "mysql")
	pool := dbclient.NewPoolFromDB(db, dbclient.WithAcquireTimeout(50*time.Millisecond))
	defer pool.Close()

	clk := mockClock(noon)
	sink := &etl.MockSink{}
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, "*/10 * * * *"),
		DB:        pool,
		Sink:      sink,
		Clock:     clk,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	done := run(context.Background(), p)
	waitState(t, p, service.StateWaiting)
	clk.Add(7 * time.Minute)

	err = waitDone(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, dbclient.ErrConnection)
	assert.Empty(t, sink.Records())
}

func TestPoller_RunOnce(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectPrepare(usersQuery).ExpectQuery().WillReturnRows(usersRows(mock))

	sink := &etl.MockSink{}
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, ""),
		DB:        pool,
		Sink:      sink,
		Clock:     mockClock(noon),
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, waitDone(t, run(context.Background(), p)))
	require.Len(t, sink.Records(), 1)
	assert.Equal(t, noon, sink.Records()[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoller_QueryErrorIsFatalByDefault(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectPrepare(usersQuery).WillReturnError(errors.New("Table 'app.users' doesn't exist"))

	sink := &etl.MockSink{}
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, ""),
		DB:        pool,
		Sink:      sink,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	err = waitDone(t, run(context.Background(), p))
	assert.ErrorIs(t, err, dbclient.ErrQuery)
	assert.Empty(t, sink.Records())
}

func TestPoller_SkipPolicyContinues(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectPrepare(usersQuery).WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectPrepare(usersQuery).ExpectQuery().WillReturnRows(usersRows(mock))

	db := &countingDB{Database: pool}
	clk := mockClock(noon)
	sink := &etl.MockSink{}
	p, err := service.NewPoller(service.PollerConfig{
		Name:       "users",
		Statement:  usersQuery,
		Schedule:   mustSchedule(t, "*/10 * * * *"),
		DB:         db,
		Sink:       sink,
		OnError:    domain.ErrorPolicySkip,
		NewBackOff: func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) },
		Clock:      clk,
		Log:        zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := run(ctx, p)

	waitState(t, p, service.StateWaiting)
	clk.Add(7 * time.Minute)
	require.Eventually(t, func() bool {
		return db.calls.Load() == 1 && p.State() == service.StateWaiting
	}, 2*time.Second, time.Millisecond)
	assert.Empty(t, sink.Records())

	clk.Add(10 * time.Minute)
	require.Eventually(t, func() bool { return len(sink.Records()) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 20, 0, 0, time.UTC), sink.Records()[0].Timestamp)

	waitState(t, p, service.StateWaiting)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoller_SinkErrorIsFatal(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectPrepare(usersQuery).ExpectQuery().WillReturnRows(usersRows(mock))

	sinkErr := errors.New("pipeline closed")
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, ""),
		DB:        pool,
		Sink:      &etl.MockSink{Err: sinkErr},
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	err = waitDone(t, run(context.Background(), p))
	assert.ErrorIs(t, err, sinkErr)
}

// blockingSink holds every batch until the caller gives up.
type blockingSink struct{}

func (blockingSink) Send(ctx context.Context, _ []etl.Record) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPoller_ShutdownDuringSend(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectPrepare(usersQuery).ExpectQuery().WillReturnRows(usersRows(mock))

	var logs bytes.Buffer
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, ""),
		DB:        pool,
		Sink:      blockingSink{},
		Log:       zerolog.New(&logs),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, p)
	waitState(t, p, service.StateEmitting)
	cancel()
	assert.NoError(t, waitDone(t, done))

	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"rows":1`)
	assert.Contains(t, logs.String(), "record dropped")
}

func TestPoller_InFlightTickReachesSinkAfterCancel(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectPrepare(usersQuery).ExpectQuery().WillReturnRows(usersRows(mock))

	var out bytes.Buffer
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, ""),
		DB:        pool,
		Sink:      sinks.NewJSONLines(&out),
		Clock:     mockClock(noon),
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, waitDone(t, run(ctx, p)))

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.JSONEq(t,
		`{"source":"users","timestamp":"2024-01-01T12:03:00Z","message":[{"id":1,"name":"Alice"}]}`,
		out.String())
}

// gatedDB holds every query until the test releases it, so the test can
// move the clock while a statement is in flight.
type gatedDB struct {
	service.Database
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedDB(db service.Database) *gatedDB {
	return &gatedDB{Database: db, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedDB) Query(ctx context.Context, statement string) (*dbclient.ResultSet, error) {
	g.started <- struct{}{}
	<-g.release
	defer g.calls.Add(1)
	return g.Database.Query(ctx, statement)
}

func (g *gatedDB) awaitQuery(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("query never started")
	}
}

func TestPoller_MissedFireTimesAreNotReplayed(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectPrepare(usersQuery).ExpectQuery().WillReturnRows(usersRows(mock))
	mock.ExpectPrepare(usersQuery).ExpectQuery().WillReturnRows(usersRows(mock))

	clk := mockClock(noon)
	db := newGatedDB(pool)
	sink := &etl.MockSink{}
	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, "*/10 * * * *"),
		DB:        db,
		Sink:      sink,
		Clock:     clk,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := run(ctx, p)

	// 12:10 fires and the query runs until 12:35, past 12:20 and 12:30.
	waitState(t, p, service.StateWaiting)
	clk.Add(7 * time.Minute)
	db.awaitQuery(t)
	clk.Add(25 * time.Minute)
	db.release <- struct{}{}
	require.Eventually(t, func() bool {
		return db.calls.Load() == 1 && len(sink.Records()) == 1 && p.State() == service.StateWaiting
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 35, 0, 0, time.UTC), sink.Records()[0].Timestamp)

	// Nothing is queued for the missed fire times: 12:39 is still quiet.
	clk.Add(4 * time.Minute)
	select {
	case <-db.started:
		t.Fatal("a missed fire time was replayed")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Len(t, sink.Records(), 1)

	// The next boundary after the late tick is 12:40.
	clk.Add(time.Minute)
	db.awaitQuery(t)
	clk.Add(25 * time.Minute)
	db.release <- struct{}{}
	require.Eventually(t, func() bool {
		return db.calls.Load() == 2 && len(sink.Records()) == 2 && p.State() == service.StateWaiting
	}, 2*time.Second, time.Millisecond)

	recs := sink.Records()
	assert.Equal(t, time.Date(2024, 1, 1, 13, 5, 0, 0, time.UTC), recs[1].Timestamp)
	assert.True(t, recs[0].Timestamp.Before(recs[1].Timestamp), "records leave in tick order")

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoller_GuardPreventsOverlap(t *testing.T) {
	pool, _ := newMockPool(t)
	guard := &service.RunningGuard{}
	require.True(t, guard.TryLock("users"))
	defer guard.Unlock("users")

	p, err := service.NewPoller(service.PollerConfig{
		Name:      "users",
		Statement: usersQuery,
		Schedule:  mustSchedule(t, ""),
		DB:        pool,
		Sink:      &etl.MockSink{},
		Guard:     guard,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Error(t, p.Run(context.Background()))
}

func TestNewPoller_RequiresCollaborators(t *testing.T) {
	_, err := service.NewPoller(service.PollerConfig{Name: "users"})
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "waiting", service.StateWaiting.String())
	assert.Equal(t, "shutting_down", service.StateShuttingDown.String())
}
