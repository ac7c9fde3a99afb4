// Package sqldir turns a directory of .sql templates into callable queries.
//
// Every regular file named <stem>.sql becomes a member named after the
// camelCased stem (get_account.sql and get-account.sql both give getAccount).
// Members run on a pooled connection that is returned after each call, or,
// through Tx, on one connection pinned for the whole transaction. Result
// rows have their column names camelCased.
//
// Templates are parsed once, when the Dir is built. A malformed template or
// two files mapping to the same member name fail New and NewFS instead of the
// later call.
//
//	d, err := sqldir.New(pool, "./sql")
//	getAccount, _ := d.Lookup("getAccount")
//	row, err := getAccount.One(ctx, sqltemplate.Args{"id": 123})
package sqldir

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/lib/sqlpool"
	"github.com/filecoin-project/sqldir/lib/sqltemplate"
)

var log = logging.Logger("sqldir")

// Ext marks query template files.
const Ext = ".sql"

type options struct {
	bindvar sqltemplate.Bindvar
	hooks   []func(QueryEvent)
	name    string
}

type Option func(*options)

// WithBindvar selects the placeholder style of the target driver.
func WithBindvar(b sqltemplate.Bindvar) Option {
	return func(o *options) { o.bindvar = b }
}

// WithAfterQuery registers a hook called synchronously after every member
// call, successful or not.
func WithAfterQuery(h func(QueryEvent)) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// WithName tags metrics with a database name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Dir is the set of members loaded from one directory. It never changes after
// construction and is safe for concurrent use; concurrent member calls each
// get their own connection.
type Dir struct {
	pool    sqlpool.Pool
	opts    options
	members map[string]*Query
}

var _ runner = (*Dir)(nil)

// New loads dirPath. The directory is read once, synchronously; New either
// returns a complete Dir or an error.
func New(pool sqlpool.Pool, dirPath string, opts ...Option) (*Dir, error) {
	if _, err := os.Stat(dirPath); err != nil {
		return nil, &Error{Kind: KindIO, Err: xerrors.Errorf("reading query directory %s: %w", dirPath, err)}
	}
	return NewFS(pool, os.DirFS(dirPath), opts...)
}

// NewFS loads the root of fsys, e.g. an embed.FS sub tree.
func NewFS(pool sqlpool.Pool, fsys fs.FS, opts ...Option) (*Dir, error) {
	d := &Dir{pool: pool}
	for _, o := range opts {
		o(&d.opts)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: xerrors.Errorf("reading query directory: %w", err)}
	}

	members := make(map[string]*Query)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		file := e.Name()
		stem := strings.TrimSuffix(file, path.Ext(file))
		if path.Ext(file) != Ext || stem == "" {
			continue
		}

		name := MemberName(stem)
		if prev, ok := members[name]; ok {
			return nil, &Error{Kind: KindTemplate, Member: name, Err: xerrors.Errorf("%s and %s map to the same member", prev.file, file)}
		}

		tmpl, err := sqltemplate.ParseFile(fsys, file, sqltemplate.WithBindvar(d.opts.bindvar))
		if err != nil {
			if errors.Is(err, sqltemplate.ErrTemplate) {
				return nil, &Error{Kind: KindTemplate, Member: name, Err: err}
			}
			return nil, &Error{Kind: KindIO, Member: name, Err: xerrors.Errorf("reading %s: %w", file, err)}
		}

		members[name] = &Query{name: name, file: file, tmpl: tmpl, d: d, r: d}
	}
	d.members = members

	log.Debugw("loaded query directory", "members", len(members))
	return d, nil
}

// Lookup returns the named member, which runs on the pool.
func (d *Dir) Lookup(name string) (*Query, bool) {
	q, ok := d.members[name]
	return q, ok
}

// Names lists the members in lexical order.
func (d *Dir) Names() []string {
	names := lo.Keys(d.members)
	sort.Strings(names)
	return names
}

// Pool returns the pool members run on.
func (d *Dir) Pool() sqlpool.Pool {
	return d.pool
}

func (d *Dir) run(ctx context.Context, member string, st sqltemplate.Statement) (*sqlpool.Result, error) {
	return newSession(d.pool, d.opts.name).run(ctx, member, st)
}
