package sqlpool

import (
	"context"
	"sync"

	"github.com/georgysavva/scany/v2/pgxscan"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/metrics"
)

var log = logging.Logger("sqlpool")

// PgxPool is a Pool over pgxpool.
type PgxPool struct {
	pool *pgxpool.Pool
}

var _ Pool = (*PgxPool)(nil)

// NewPgx parses connString and opens a pool. The pool connects lazily.
func NewPgx(ctx context.Context, connString string) (*PgxPool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, xerrors.Errorf("parsing connection string: %w", err)
	}
	return NewPgxFromConfig(ctx, cfg)
}

// NewPgxFromConfig opens a pool from an already parsed config. Notice and
// connect hooks are installed for logging and metrics.
func NewPgxFromConfig(ctx context.Context, cfg *pgxpool.Config) (*PgxPool, error) {
	p := &PgxPool{}

	cfg.ConnConfig.OnNotice = func(conn *pgconn.PgConn, n *pgconn.Notice) {
		log.Warnw("database notice", "message", n.Message, "detail", n.Detail)
	}
	cfg.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		if p.pool != nil {
			stats.Record(ctx, metrics.DBOpenConnections.M(int64(p.pool.Stat().TotalConns())))
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, xerrors.Errorf("creating pgx pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

func (p *PgxPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{c: c}, nil
}

// Ping checks that a connection can be established.
func (p *PgxPool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PgxPool) Stat() Stat {
	s := p.pool.Stat()
	return Stat{Acquired: int(s.AcquiredConns()), Total: int(s.TotalConns())}
}

func (p *PgxPool) Close() {
	p.pool.Close()
}

type pgxConn struct {
	c    *pgxpool.Conn
	once sync.Once
}

func (c *pgxConn) Execute(ctx context.Context, sql string, args []any) (*Result, error) {
	qargs := args
	if len(args) == 0 {
		// transaction control must not go through the extended protocol
		qargs = []any{pgx.QueryExecModeSimpleProtocol}
	}

	rows, err := c.c.Query(ctx, sql, qargs...)
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(rows.FieldDescriptions()))
	for _, fd := range rows.FieldDescriptions() {
		fields = append(fields, fd.Name)
	}

	var out []map[string]any
	if err := pgxscan.ScanAll(&out, rows); err != nil {
		return nil, err
	}

	tag := rows.CommandTag()
	res := &Result{
		Rows:         out,
		RowsAffected: tag.RowsAffected(),
		Command:      tag.String(),
		Fields:       fields,
	}
	if res.RowsAffected == 0 {
		res.RowsAffected = int64(len(out))
	}
	return res, nil
}

func (c *pgxConn) Release() {
	c.once.Do(c.c.Release)
}
