// Package sqlpool adapts connection pools to the narrow acquire / execute /
// release contract used by sqldir.
package sqlpool

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Pool hands out exclusively owned connections. Implementations must be
// safe for concurrent use.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Stat() Stat
	Close()
}

// Conn is a single checked-out connection. It is not safe for concurrent
// use; Release returns it to the pool and may be called more than once.
type Conn interface {
	Execute(ctx context.Context, sql string, args []any) (*Result, error)
	Release()
}

// Result is what a statement returned, before any key normalisation.
type Result struct {
	Rows []map[string]any

	// RowsAffected is the driver reported count when available, the number
	// of returned rows otherwise.
	RowsAffected int64
	// Command is the server command tag (e.g. "INSERT 0 1") when the driver
	// exposes it.
	Command string
	Fields  []string
}

type Stat struct {
	// Acquired is the number of connections currently checked out.
	Acquired int
	// Total is the number of open connections, idle or not.
	Total int
}

// SQLState extracts the SQLSTATE code from a driver error, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
