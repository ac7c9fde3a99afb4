package sqlpool

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"sync"

	"github.com/georgysavva/scany/v2/sqlscan"
	"golang.org/x/xerrors"
)

// StdPool is a Pool over database/sql. Each acquisition pins one *sql.Conn.
//
// Statements that return rows (SELECT, WITH, ... RETURNING) report the number
// of rows returned as RowsAffected; all others report the driver's affected
// count.
type StdPool struct {
	db *sql.DB
}

var _ Pool = (*StdPool)(nil)

// NewStd wraps an open *sql.DB. Close closes it.
func NewStd(db *sql.DB) *StdPool {
	return &StdPool{db: db}
}

// OpenStd opens a database/sql pool for a registered driver ("postgres",
// "sqlite3", ...).
func OpenStd(driver, dsn string) (*StdPool, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, xerrors.Errorf("opening %s database: %w", driver, err)
	}
	return NewStd(db), nil
}

// DB exposes the underlying handle, mostly for fixtures.
func (p *StdPool) DB() *sql.DB {
	return p.db
}

func (p *StdPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &stdConn{c: c}, nil
}

func (p *StdPool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *StdPool) Stat() Stat {
	s := p.db.Stats()
	return Stat{Acquired: s.InUse, Total: s.OpenConnections}
}

func (p *StdPool) Close() {
	if err := p.db.Close(); err != nil {
		log.Warnw("closing database", "error", err)
	}
}

type stdConn struct {
	c    *sql.Conn
	once sync.Once
}

// rowsRe matches statements that produce a result set. database/sql only
// reports affected counts through Exec, so everything else goes there.
var rowsRe = regexp.MustCompile(`(?is)^(select|with|values|table|show|explain|pragma)\b|\breturning\b`)

// returnsRows reports whether query, ignoring leading comments, is expected
// to produce rows.
func returnsRows(query string) bool {
	q := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			end := strings.IndexByte(q, '\n')
			if end < 0 {
				return false
			}
			q = strings.TrimSpace(q[end+1:])
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q, "*/")
			if end < 0 {
				return false
			}
			q = strings.TrimSpace(q[end+2:])
		default:
			return rowsRe.MatchString(q)
		}
	}
}

func (c *stdConn) Execute(ctx context.Context, query string, args []any) (*Result, error) {
	if !returnsRows(query) {
		r, err := c.c.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		n, err := r.RowsAffected()
		if err != nil {
			// not every driver reports it for every statement
			n = 0
		}
		return &Result{Rows: []map[string]any{}, RowsAffected: n, Fields: []string{}}, nil
	}

	rows, err := c.c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	fields, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}

	var out []map[string]any
	if err := sqlscan.ScanAll(&out, rows); err != nil {
		return nil, err
	}
	for _, row := range out {
		for k, v := range row {
			// several drivers return text columns as []byte
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
	}

	return &Result{
		Rows:         out,
		RowsAffected: int64(len(out)),
		Fields:       fields,
	}, nil
}

func (c *stdConn) Release() {
	c.once.Do(func() {
		if err := c.c.Close(); err != nil {
			log.Debugw("returning connection", "error", err)
		}
	})
}
