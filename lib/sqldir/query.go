package sqldir

import (
	"context"
	"reflect"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/lib/sqltemplate"
)

// Row is one result row, keyed by camelCased column name.
type Row = map[string]any

// Result is the full response of a member call.
type Result struct {
	Rows []Row `json:"rows"`
	// RowCount is the number of rows the statement affected, or the number
	// of rows returned for statements that produce a result set.
	RowCount int64 `json:"rowCount"`
	// Command is the server command tag when the driver exposes one.
	Command string `json:"command,omitempty"`
	// Fields lists the camelCased column names in select order.
	Fields []string `json:"fields"`
}

var ErrHashKey = xerrors.New("hash key")

// Query is one template file bound to the place its statements run: the
// pool, or a transaction's pinned connection.
type Query struct {
	name string
	file string
	tmpl *sqltemplate.Template

	d *Dir
	r runner
}

func (q *Query) Name() string { return q.name }

// File is the template file the query was loaded from.
func (q *Query) File() string { return q.file }

// Template returns the parsed template behind the member.
func (q *Query) Template() *sqltemplate.Template { return q.tmpl }

// Resolve compiles the template without running it.
func (q *Query) Resolve(args ...any) (sqltemplate.Statement, error) {
	st, err := q.tmpl.Resolve(args...)
	if err != nil {
		return st, &Error{Kind: KindTemplate, Member: q.name, Err: err}
	}
	return st, nil
}

func (q *Query) bind(r runner) *Query {
	cp := *q
	cp.r = r
	return &cp
}

// Query runs the statement and returns its rows.
func (q *Query) Query(ctx context.Context, args ...any) ([]Row, error) {
	res, err := q.execute(ctx, args)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// One returns the first row, or nil when the statement returned none.
func (q *Query) One(ctx context.Context, args ...any) (Row, error) {
	rows, err := q.Query(ctx, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// FullResponse returns rows together with the statement metadata.
func (q *Query) FullResponse(ctx context.Context, args ...any) (*Result, error) {
	return q.execute(ctx, args)
}

// Hash returns a function that runs the statement and indexes the rows by
// the value of key. key is camelCased first, so "account_id" and
// "accountId" are equivalent. Rows are visited in result order and a later
// row replaces an earlier one with the same key value. A row without the key,
// or with a value that cannot be a map key, fails the whole call.
func (q *Query) Hash(key string) func(ctx context.Context, args ...any) (map[any]Row, error) {
	key = CamelKey(key)
	return func(ctx context.Context, args ...any) (map[any]Row, error) {
		rows, err := q.Query(ctx, args...)
		if err != nil {
			return nil, err
		}

		for i, row := range rows {
			v, ok := row[key]
			if !ok {
				return nil, &Error{Kind: KindTemplate, Member: q.name, Err: xerrors.Errorf("row %d has no column %q: %w", i, key, ErrHashKey)}
			}
			if v = hashKey(v); v != nil && !reflect.TypeOf(v).Comparable() {
				return nil, &Error{Kind: KindTemplate, Member: q.name, Err: xerrors.Errorf("row %d: %T cannot be used as a key: %w", i, v, ErrHashKey)}
			}
		}

		return lo.KeyBy(rows, func(r Row) any { return hashKey(r[key]) }), nil
	}
}

func hashKey(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
