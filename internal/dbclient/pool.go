package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dbpoll/internal/domain"

	"github.com/jmoiron/sqlx"
)

// DefaultAcquireTimeout bounds how long Acquire waits for a connection.
const DefaultAcquireTimeout = 3 * time.Second

// Pool is a MySQL connection pool holding at most one live connection.
// Connections are opened lazily on the first Acquire and recycled afterwards.
type Pool struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithAcquireTimeout overrides DefaultAcquireTimeout.
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.acquireTimeout = d
		}
	}
}

// NewPool creates a pool for the given connection. Nothing is dialed here.
func NewPool(cfg domain.ConnectionConfig, opts ...PoolOption) (*Pool, error) {
	cfg = cfg.WithDefaults()
	if cfg.Driver != domain.DatabaseDriverMySQL {
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	p := &Pool{acquireTimeout: DefaultAcquireTimeout}
	for _, opt := range opts {
		opt(p)
	}

	db, err := sqlx.Open("mysql", buildMySQLDSN(cfg, p.acquireTimeout))
	if err != nil {
		return nil, &Error{Op: OpAcquire, Err: fmt.Errorf("open mysql: %w", err)}
	}
	p.db = db
	p.configure()
	return p, nil
}

// NewPoolFromDB wraps an already opened handle, used with sqlmock and
// custom connectors.
func NewPoolFromDB(db *sqlx.DB, opts ...PoolOption) *Pool {
	p := &Pool{db: db, acquireTimeout: DefaultAcquireTimeout}
	for _, opt := range opts {
		opt(p)
	}
	p.configure()
	return p
}

func (p *Pool) configure() {
	p.db.SetMaxOpenConns(1)
	p.db.SetMaxIdleConns(1)
}

// Acquire takes the pool's connection, opening it if needed, and pings it.
// It gives up after the acquisition timeout.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, &Error{Op: OpAcquire, Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, &Error{Op: OpAcquire, Err: err}
	}
	return &Conn{conn: conn}, nil
}

// Query acquires the connection, executes statement and gives the
// connection back.
func (p *Pool) Query(ctx context.Context, statement string) (*ResultSet, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.Execute(ctx, statement)
}

// Ping checks the database is reachable within the acquisition timeout.
func (p *Pool) Ping(ctx context.Context) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Stats returns the pool's database/sql statistics.
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

func (p *Pool) Close() error {
	return p.db.Close()
}

// Conn is a connection checked out of a Pool. It must be closed to return
// it to the pool.
type Conn struct {
	conn *sqlx.Conn
}

// Execute prepares statement, runs it without parameters and materializes
// every row. The statement is prepared on each call.
func (c *Conn) Execute(ctx context.Context, statement string) (*ResultSet, error) {
	stmt, err := c.conn.PreparexContext(ctx, statement)
	if err != nil {
		return nil, &Error{Op: OpPrepare, Err: err}
	}
	defer stmt.Close()

	rows, err := stmt.QueryxContext(ctx)
	if err != nil {
		return nil, &Error{Op: OpQuery, Err: err}
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, &Error{Op: OpQuery, Err: fmt.Errorf("columns: %w", err)}
	}
	columns := make([]Column, len(types))
	for i, ct := range types {
		columns[i] = Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}

	result := &ResultSet{Columns: columns}
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, &Error{Op: OpQuery, Err: fmt.Errorf("scan row: %w", err)}
		}
		values := make([]NativeValue, len(raw))
		for i, v := range raw {
			nv, err := FromDriver(v, columns[i].DatabaseType)
			if err != nil {
				return nil, &Error{Op: OpQuery, Err: fmt.Errorf("column %q: %w", columns[i].Name, err)}
			}
			values[i] = nv
		}
		result.Rows = append(result.Rows, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: OpQuery, Err: fmt.Errorf("iterate: %w", err)}
	}
	return result, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
