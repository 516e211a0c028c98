package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/transaction"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Connection binds a database handle to a dialect, a transaction manager and
// a logger. Statements run on the transaction carried by the context, if any.
type Connection struct {
	db      *sql.DB
	dialect Dialect
	tx      *transaction.Manager
	logger  *zap.Logger
}

// Option configures a Connection
type Option func(*Connection)

// WithLogger sets the logger used for statement logging
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConnection wraps an open database handle
func NewConnection(db *sql.DB, dialect Dialect, opts ...Option) *Connection {
	c := &Connection{
		db:      db,
		dialect: dialect,
		tx:      transaction.NewManager(db),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open opens a database with one of the registered drivers (postgres, pgx, sqlite3)
func Open(driver, dsn string, opts ...Option) (*Connection, error) {
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// each sqlite connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	return NewConnection(db, dialect, opts...), nil
}

// DB returns the underlying database handle
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Dialect returns the connection's SQL dialect
func (c *Connection) Dialect() Dialect {
	return c.dialect
}

// Logger returns the connection's logger
func (c *Connection) Logger() *zap.Logger {
	return c.logger
}

// Close closes the underlying database handle
func (c *Connection) Close() error {
	return c.db.Close()
}

// Table starts a new query against a table
func (c *Connection) Table(name string) Builder {
	return NewSQLBuilder(c, name)
}

// Transaction runs fn inside a transaction carried by the context passed to
// fn. An error or panic from fn rolls back; the error is returned unchanged.
func (c *Connection) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.tx.WithTransaction(ctx, fn)
}

func (c *Connection) executor(ctx context.Context) Executor {
	if tx, ok := transaction.FromContext(ctx); ok {
		return tx.Tx()
	}
	return c.db
}

func (c *Connection) query(ctx context.Context, sqlStr string, args []interface{}) ([]Row, error) {
	start := time.Now()
	rows, err := c.executor(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		c.logFailure(sqlStr, args, err)
		return nil, fmt.Errorf("failed to execute query: %w", ConvertDBError(err))
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	c.logStatement(sqlStr, args, start, int64(len(results)))
	return results, nil
}

func (c *Connection) queryRow(ctx context.Context, sqlStr string, args []interface{}, dest ...interface{}) error {
	start := time.Now()
	if err := c.executor(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(dest...); err != nil {
		c.logFailure(sqlStr, args, err)
		return ConvertDBError(err)
	}
	c.logStatement(sqlStr, args, start, 1)
	return nil
}

func (c *Connection) exec(ctx context.Context, sqlStr string, args []interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := c.executor(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		c.logFailure(sqlStr, args, err)
		return nil, fmt.Errorf("failed to execute statement: %w", ConvertDBError(err))
	}
	affected, _ := res.RowsAffected()
	c.logStatement(sqlStr, args, start, affected)
	return res, nil
}

func (c *Connection) logStatement(sqlStr string, args []interface{}, start time.Time, rows int64) {
	c.logger.Debug("query executed",
		zap.String("sql", sqlStr),
		zap.Any("args", args),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("rows", rows),
	)
}

func (c *Connection) logFailure(sqlStr string, args []interface{}, err error) {
	c.logger.Debug("query failed",
		zap.String("sql", sqlStr),
		zap.Any("args", args),
		zap.Error(err),
	)
}
