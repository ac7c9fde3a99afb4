package sqldir

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/filecoin-project/sqldir/lib/sqlpool"
	"github.com/filecoin-project/sqldir/lib/sqltemplate"
	"github.com/filecoin-project/sqldir/metrics"
)

// Session scopes one logical unit of work: at most one connection, and
// whether that connection outlives the statement that acquired it.
//
// Plain member calls use a fresh session per call with keepAlive unset, so
// every call checks a connection out and returns it. A transaction shares one
// session with keepAlive set from begin until commit or rollback, which pins
// a single connection for all of its statements.
//
// A Session is not safe for concurrent use; Tx serialises access to its own.
type Session struct {
	pool   sqlpool.Pool
	dbName string

	conn      sqlpool.Conn
	keepAlive bool
}

func newSession(pool sqlpool.Pool, dbName string) *Session {
	return &Session{pool: pool, dbName: dbName}
}

// run sends one statement, acquiring a connection if the session has none.
// Unless keepAlive is set the connection is returned to the pool before run
// returns, whether or not the statement succeeded.
func (s *Session) run(ctx context.Context, member string, st sqltemplate.Statement) (*sqlpool.Result, error) {
	ctx = metrics.WithDB(ctx, s.dbName)
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Member, member))

	if s.conn == nil {
		stop := metrics.Timer(ctx, metrics.DBAcquireWait)
		c, err := s.pool.Acquire(ctx)
		stop()
		if err != nil {
			stats.Record(ctx, metrics.DBAcquireErrors.M(1))
			return nil, &Error{Kind: KindConnection, Member: member, Err: err}
		}
		stats.Record(ctx, metrics.DBAcquires.M(1))
		s.conn = c
	}

	start := time.Now()
	res, err := s.conn.Execute(ctx, st.SQL, st.Params)
	took := metrics.SinceInMilliseconds(start)

	if !s.keepAlive {
		s.release()
	}

	stats.Record(ctx, metrics.DBHits.M(1), metrics.DBTotalWait.M(took))
	metrics.Waits.Observe(took)
	if err != nil {
		_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(metrics.ErrorKind, KindExecution.String())}, metrics.DBErrors.M(1))
		return nil, &Error{Kind: KindExecution, Member: member, SQLState: sqlpool.SQLState(err), Err: err}
	}
	stats.Record(ctx, metrics.DBRows.M(int64(len(res.Rows))))
	return res, nil
}

// release hands the connection back to the pool, if the session holds one.
func (s *Session) release() {
	if s.conn == nil {
		return
	}
	s.conn.Release()
	s.conn = nil
}

// pinned reports whether a connection is currently held.
func (s *Session) pinned() bool {
	return s.conn != nil
}
