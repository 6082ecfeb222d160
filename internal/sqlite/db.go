package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rpggio/mailscope/internal/repository"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Options configures the connection pool.
type Options struct {
	MaxOpenConns   int
	MaxIdleConns   int
	AcquireTimeout time.Duration
	BusyTimeout    time.Duration
}

// DefaultOptions returns the pool settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:   8,
		MaxIdleConns:   4,
		AcquireTimeout: 5 * time.Second,
		BusyTimeout:    5 * time.Second,
	}
}

// DB wraps a pooled SQLite database
type DB struct {
	*sql.DB
	opts Options

	mu     sync.Mutex
	lastTS int64
}

// New opens the database file at path with WAL journaling and foreign keys.
// ":memory:" is accepted but limited to a single connection, since every
// in-memory connection is its own database.
func New(path string, opts Options) (*DB, error) {
	def := DefaultOptions()
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = def.MaxOpenConns
	}
	if opts.MaxIdleConns <= 0 || opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = min(def.MaxIdleConns, opts.MaxOpenConns)
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = def.AcquireTimeout
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = def.BusyTimeout
	}
	if path == ":memory:" {
		opts.MaxOpenConns = 1
		opts.MaxIdleConns = 1
	}

	db, err := sql.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: db, opts: opts}, nil
}

func dsn(path string, busy time.Duration) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_txlock=immediate",
		path, busy.Milliseconds())
}

// Options returns the effective pool settings.
func (db *DB) Options() Options {
	return db.opts
}

// RunMigrations applies the embedded schema. It is idempotent.
func (db *DB) RunMigrations() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Acquire takes a dedicated connection from the pool, waiting at most the
// configured acquire timeout. The caller must Close the connection.
func (db *DB) Acquire(ctx context.Context) (*sql.Conn, error) {
	if err := repository.CheckContext(ctx); err != nil {
		return nil, err
	}
	actx, cancel := context.WithTimeout(ctx, db.opts.AcquireTimeout)
	defer cancel()

	conn, err := db.Conn(actx)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, repository.Canceled(ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: no connection within %s", repository.ErrPoolTimeout, db.opts.AcquireTimeout)
	}
	return nil, fmt.Errorf("failed to acquire connection: %w", err)
}

// withConn runs fn on a pooled connection and releases it on every path.
func (db *DB) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// withTx runs fn in a transaction on a pooled connection, committing when fn
// returns nil.
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return db.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// now returns a strictly increasing microsecond timestamp so rows written
// back to back never share created_ts.
func (db *DB) now() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts := time.Now().UnixMicro()
	if ts <= db.lastTS {
		ts = db.lastTS + 1
	}
	db.lastTS = ts
	return ts
}

// PoolStats summarizes pool usage for maintenance logging.
type PoolStats struct {
	MaxOpen      int           `json:"max_open"`
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

// PoolStats returns current pool statistics.
func (db *DB) PoolStats() PoolStats {
	s := db.Stats()
	return PoolStats{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// Optimize merges FTS index segments.
func (db *DB) Optimize(ctx context.Context) error {
	return db.withConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `INSERT INTO messages_fts(messages_fts) VALUES('optimize')`); err != nil {
			return storeErr(ctx, "failed to optimize search index", err)
		}
		return nil
	})
}
