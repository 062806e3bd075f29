// Package database provides the data access layer: a lazy PostgreSQL client
// executing generated SQL, a PostgREST table accessor, and migrations.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/cr360/cr360/internal/config"
	apperrors "github.com/cr360/cr360/internal/errors"
	"github.com/cr360/cr360/internal/observability"
)

// Row is a single result row preserving driver column order. Values are
// keyed by column name but serialize as an ordered JSON object.
type Row struct {
	columns []string
	values  []interface{}
}

// Columns returns the column names in driver order
func (r Row) Columns() []string {
	return r.columns
}

// Get returns the value for a column and whether the column exists
func (r Row) Get(column string) (interface{}, bool) {
	for i, name := range r.columns {
		if name == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// MarshalJSON serializes the row as an object with keys in column order
func (r Row) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range r.columns {
		if i > 0 {
			sb.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		sb.Write(key)
		sb.WriteByte(':')
		value, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		sb.Write(value)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

// NewRow builds a row from parallel column and value slices
func NewRow(columns []string, values []interface{}) Row {
	return Row{columns: columns, values: values}
}

// Client executes SQL against PostgreSQL. The connection opens lazily on
// first use and reconnects transparently when it has gone away. Lazy init is
// unlocked: a concurrent first use may open one redundant connection, which
// the pool absorbs.
type Client struct {
	dsn    string
	db     *sql.DB
	logger *observability.Logger
}

// NewClient creates a client for the configured database. No connection is
// opened until the first query.
func NewClient(cfg config.DatabaseConfig) *Client {
	return &Client{
		dsn:    cfg.DSN(),
		logger: observability.NewLogger("database"),
	}
}

// NewClientWithDB wraps an existing database handle, used in tests
func NewClientWithDB(db *sql.DB) *Client {
	return &Client{
		db:     db,
		logger: observability.NewLogger("database"),
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if c.db != nil {
		if err := c.db.PingContext(ctx); err == nil {
			return nil
		}
		// Connection has gone away, reopen
		c.db.Close()
		c.db = nil
	}

	if c.dsn == "" {
		return apperrors.NewDatabaseConnectionError(sql.ErrConnDone)
	}

	db, err := sql.Open("postgres", c.dsn)
	if err != nil {
		return apperrors.NewDatabaseConnectionError(err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return apperrors.NewDatabaseConnectionError(err)
	}

	c.db = db
	c.logger.Info(ctx, "Database connection established", nil)
	return nil
}

// Ping verifies connectivity, connecting first if needed
func (c *Client) Ping(ctx context.Context) error {
	return c.ensureConnected(ctx)
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// ExecuteQuery runs a SQL statement. SELECT-shaped statements fetch all rows
// as ordered column-to-value mappings; any other shape executes in a
// transaction and returns an empty result. Driver rejections surface as
// SQLExecutionError, anything unexpected as DatabaseError.
func (c *Client) ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	start := time.Now()

	if err := c.ensureConnected(ctx); err != nil {
		observability.RecordDBMetrics("connect", time.Since(start), err)
		return nil, err
	}

	isSelect := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT")

	var rows []Row
	var err error
	if isSelect {
		rows, err = c.queryRows(ctx, query, args...)
	} else {
		rows, err = c.execStatement(ctx, query, args...)
	}

	operation := "exec"
	if isSelect {
		operation = "select"
	}
	observability.RecordDBMetrics(operation, time.Since(start), err)

	if err != nil {
		c.logger.Error(ctx, "Query execution failed", err, map[string]interface{}{
			"query_length": len(query),
		})
		return nil, err
	}

	c.logger.Debug(ctx, "Query executed", map[string]interface{}{
		"row_count":   len(rows),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return rows, nil
}

func (c *Client) queryRows(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	result, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer result.Close()

	columns, err := result.Columns()
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	rows := []Row{}
	for result.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := result.Scan(pointers...); err != nil {
			return nil, apperrors.NewDatabaseError(err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		rows = append(rows, Row{columns: columns, values: values})
	}

	if err := result.Err(); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	return rows, nil
}

func (c *Client) execStatement(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return nil, classifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	return []Row{}, nil
}

// classifyError maps a statement failure to the error taxonomy: rejections
// coming from the server are execution errors, everything else is unexpected.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*pq.Error); ok {
		return apperrors.NewSQLExecutionError(err)
	}
	if err == sql.ErrConnDone || err == context.DeadlineExceeded || err == context.Canceled {
		return apperrors.NewDatabaseError(err)
	}
	// Generic driver errors still mean the statement was rejected
	return apperrors.NewSQLExecutionError(err)
}
