package sqldir

import (
	"context"
	"time"

	"github.com/filecoin-project/sqldir/lib/sqlpool"
	"github.com/filecoin-project/sqldir/lib/sqltemplate"
)

// runner sends a compiled statement on behalf of a member. The directory
// runs every call on its own short lived session; a transaction runs on its
// pinned one.
type runner interface {
	run(ctx context.Context, member string, st sqltemplate.Statement) (*sqlpool.Result, error)
}

// QueryEvent is delivered to AfterQuery hooks once per member call.
type QueryEvent struct {
	Member string
	// Statement is the resolved SQL with secret parameters redacted. Empty
	// when the template could not be resolved.
	Statement string
	// Tx is the transaction id, empty outside transactions.
	Tx   string
	Took time.Duration
	Rows int
	Err  error
}

func (q *Query) execute(ctx context.Context, args []any) (*Result, error) {
	st, err := q.tmpl.Resolve(args...)
	if err != nil {
		err = &Error{Kind: KindTemplate, Member: q.name, Err: err}
		q.after(QueryEvent{Member: q.name, Tx: q.txID(), Err: err})
		return nil, err
	}

	start := time.Now()
	raw, err := q.r.run(ctx, q.name, st)
	ev := QueryEvent{Member: q.name, Statement: st.String(), Tx: q.txID(), Took: time.Since(start), Err: err}
	if err != nil {
		q.after(ev)
		return nil, err
	}

	res := &Result{
		Rows:     make([]Row, len(raw.Rows)),
		RowCount: raw.RowsAffected,
		Command:  raw.Command,
		Fields:   make([]string, len(raw.Fields)),
	}
	for i, row := range raw.Rows {
		res.Rows[i] = CamelRow(row)
	}
	for i, f := range raw.Fields {
		res.Fields[i] = CamelKey(f)
	}

	ev.Rows = len(res.Rows)
	q.after(ev)
	return res, nil
}

func (q *Query) txID() string {
	if tx, ok := q.r.(*Tx); ok {
		return tx.ID()
	}
	return ""
}

func (q *Query) after(ev QueryEvent) {
	if ev.Err != nil {
		log.Debugw("query failed", "member", ev.Member, "sql", ev.Statement, "tx", ev.Tx, "error", ev.Err)
	} else {
		log.Debugw("query", "member", ev.Member, "sql", ev.Statement, "tx", ev.Tx, "took", ev.Took, "rows", ev.Rows)
	}
	for _, h := range q.d.opts.hooks {
		h(ev)
	}
}
