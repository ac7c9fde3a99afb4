package sqldir

import (
	"context"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/lib/sqlpool"
)

var errBroken = xerrors.New("syntax error at or near \"broken\"")

type execRecord struct {
	conn   int
	sql    string
	params []any
}

// testPool is an in-memory sqlpool.Pool that records which connection ran
// which statement.
type testPool struct {
	lk sync.Mutex

	nextID   int
	acquired int
	execs    []execRecord

	acquireErr error
	// respond produces rows for a statement; nil means no rows.
	respond func(sql string, params []any) ([]map[string]any, error)
}

var _ sqlpool.Pool = (*testPool)(nil)

func (p *testPool) Acquire(ctx context.Context) (sqlpool.Conn, error) {
	p.lk.Lock()
	defer p.lk.Unlock()

	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.nextID++
	p.acquired++
	return &testConn{p: p, id: p.nextID}, nil
}

func (p *testPool) Stat() sqlpool.Stat {
	p.lk.Lock()
	defer p.lk.Unlock()
	return sqlpool.Stat{Acquired: p.acquired, Total: p.nextID}
}

func (p *testPool) Close() {}

func (p *testPool) records() []execRecord {
	p.lk.Lock()
	defer p.lk.Unlock()
	return append([]execRecord(nil), p.execs...)
}

// connsFor returns the connection ids that ran statements starting with prefix.
func (p *testPool) connsFor(prefix string) []int {
	var out []int
	for _, r := range p.records() {
		if strings.HasPrefix(r.sql, prefix) {
			out = append(out, r.conn)
		}
	}
	return out
}

type testConn struct {
	p        *testPool
	id       int
	released bool
}

func (c *testConn) Execute(ctx context.Context, sql string, args []any) (*sqlpool.Result, error) {
	c.p.lk.Lock()
	if c.released {
		c.p.lk.Unlock()
		panic("execute on released connection")
	}
	c.p.execs = append(c.p.execs, execRecord{conn: c.id, sql: sql, params: args})
	respond := c.p.respond
	c.p.lk.Unlock()

	if respond == nil {
		return &sqlpool.Result{}, nil
	}
	rows, err := respond(sql, args)
	if err != nil {
		return nil, err
	}
	fields := []string{}
	if len(rows) > 0 {
		for k := range rows[0] {
			fields = append(fields, k)
		}
	}
	return &sqlpool.Result{Rows: rows, RowsAffected: int64(len(rows)), Fields: fields}, nil
}

func (c *testConn) Release() {
	c.p.lk.Lock()
	defer c.p.lk.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.p.acquired--
}

var testFiles = fstest.MapFS{
	"get_account.sql":    {Data: []byte("SELECT * FROM account WHERE id = $PG{id}")},
	"create-account.sql": {Data: []byte("INSERT INTO account (id, first_name) VALUES ($PG{id}, !PG{firstName}) RETURNING *")},
	"list_accounts.sql":  {Data: []byte("SELECT * FROM account ORDER BY id")},
	"fail.sql":           {Data: []byte("SELECT broken")},
}

func newTestDir(t *testing.T, p *testPool, opts ...Option) *Dir {
	d, err := NewFS(p, testFiles, opts...)
	require.NoError(t, err)
	return d
}

func member(t *testing.T, l interface{ Lookup(string) (*Query, bool) }, name string) *Query {
	q, ok := l.Lookup(name)
	require.True(t, ok, "member %s", name)
	return q
}

// accountRows answers every statement with rows shaped like an account
// table; "SELECT broken" fails.
func accountRows(sql string, params []any) ([]map[string]any, error) {
	switch {
	case strings.Contains(sql, "broken"):
		return nil, errBroken
	case strings.HasPrefix(sql, "SELECT * FROM account WHERE"):
		if params[0] == 404 {
			return nil, nil
		}
		return []map[string]any{{"id": params[0], "first_name": "timo", "last_name": "mars"}}, nil
	case strings.HasPrefix(sql, "SELECT * FROM account ORDER BY"):
		return []map[string]any{
			{"id": 1, "first_name": "timo"},
			{"id": 2, "first_name": "timoteo"},
		}, nil
	case strings.HasPrefix(sql, "INSERT"):
		return []map[string]any{{"id": params[0], "first_name": params[1]}}, nil
	}
	return nil, nil
}
