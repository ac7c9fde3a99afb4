package sqldir

import (
	"context"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/lib/sqlpool"
	"github.com/filecoin-project/sqldir/lib/sqltemplate"
	"github.com/filecoin-project/sqldir/metrics"
)

type TxState int

const (
	NotStarted TxState = iota
	Active
	Committed
	RolledBack
)

func (s TxState) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

var savepointRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Tx runs member calls and transaction control statements on one pinned
// connection. It has no way to start another transaction, so transactions
// cannot nest.
//
// A statement that fails inside an active transaction does not roll it back:
// the transaction stays active and keeps its connection until the caller
// calls Rollback or Commit. Dir.BeginTransaction wraps this for callers that
// want it handled.
type Tx struct {
	d  *Dir
	id string

	lk    sync.Mutex
	sess  *Session
	state TxState
}

var _ runner = (*Tx)(nil)

// Tx returns a new transaction in the NotStarted state. Nothing is sent to
// the store until Begin.
func (d *Dir) Tx() *Tx {
	return &Tx{
		d:    d,
		id:   uuid.NewString(),
		sess: newSession(d.pool, d.opts.name),
	}
}

func (tx *Tx) ID() string { return tx.id }

func (tx *Tx) State() TxState {
	tx.lk.Lock()
	defer tx.lk.Unlock()
	return tx.state
}

func (tx *Tx) stateErr(op string) error {
	return &Error{Kind: KindTxState, Member: op, Err: xerrors.Errorf("transaction %s is %s", tx.id, tx.state)}
}

// Begin pins a connection and starts the transaction. If the begin statement
// fails the connection is returned and the transaction stays NotStarted.
func (tx *Tx) Begin(ctx context.Context) error {
	tx.lk.Lock()
	defer tx.lk.Unlock()

	if tx.state != NotStarted {
		return tx.stateErr("begin")
	}

	tx.sess.keepAlive = true
	if _, err := tx.sess.run(ctx, "begin", sqltemplate.Raw("begin")); err != nil {
		tx.sess.keepAlive = false
		tx.sess.release()
		return err
	}

	tx.state = Active
	log.Debugw("transaction started", "tx", tx.id)
	return nil
}

// Savepoint marks a point that RollbackTo can return to.
func (tx *Tx) Savepoint(ctx context.Context, name string) error {
	return tx.control(ctx, "savepoint", name, "savepoint "+name)
}

// RollbackTo undoes everything after the named savepoint. The transaction
// stays active.
func (tx *Tx) RollbackTo(ctx context.Context, name string) error {
	return tx.control(ctx, "rollback to", name, "rollback to "+name)
}

func (tx *Tx) control(ctx context.Context, op, name, sql string) error {
	tx.lk.Lock()
	defer tx.lk.Unlock()

	if tx.state != Active {
		return tx.stateErr(op)
	}
	if !savepointRe.MatchString(name) {
		return &Error{Kind: KindTemplate, Member: op, Err: xerrors.Errorf("invalid savepoint name %q", name)}
	}

	_, err := tx.sess.run(ctx, op, sqltemplate.Raw(sql))
	return err
}

// Rollback aborts the transaction and returns its connection. The
// transaction ends RolledBack even when the rollback statement fails.
func (tx *Tx) Rollback(ctx context.Context) error {
	tx.lk.Lock()
	defer tx.lk.Unlock()

	if tx.state != Active {
		return tx.stateErr("rollback")
	}

	tx.sess.keepAlive = false
	_, err := tx.sess.run(ctx, "rollback", sqltemplate.Raw("rollback"))
	tx.sess.release()
	tx.state = RolledBack

	tx.record(ctx, "rollback")
	return err
}

// Commit commits and returns the connection. If the commit statement fails
// the transaction stays active with its connection pinned; the caller is
// expected to Rollback.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.lk.Lock()
	defer tx.lk.Unlock()

	if tx.state != Active {
		return tx.stateErr("commit")
	}

	if _, err := tx.sess.run(ctx, "commit", sqltemplate.Raw("commit")); err != nil {
		return err
	}
	tx.sess.release()
	tx.sess.keepAlive = false
	tx.state = Committed

	tx.record(ctx, "commit")
	return nil
}

func (tx *Tx) record(ctx context.Context, outcome string) {
	log.Debugw("transaction finished", "tx", tx.id, "outcome", outcome)
	ctx = metrics.WithDB(ctx, tx.d.opts.name)
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(metrics.Outcome, outcome)}, metrics.TxOutcomes.M(1))
	metrics.CountTx(ctx, tx.d.opts.name, outcome)
}

func (tx *Tx) run(ctx context.Context, member string, st sqltemplate.Statement) (*sqlpool.Result, error) {
	tx.lk.Lock()
	defer tx.lk.Unlock()

	if tx.state != Active {
		return nil, tx.stateErr(member)
	}
	return tx.sess.run(ctx, member, st)
}

// Lookup returns the named member bound to this transaction.
func (tx *Tx) Lookup(name string) (*Query, bool) {
	q, ok := tx.d.members[name]
	if !ok {
		return nil, false
	}
	return q.bind(tx), true
}

func (tx *Tx) Names() []string {
	return tx.d.Names()
}

// BeginTransaction runs f inside a transaction. The transaction is committed
// when f returns (true, nil) and rolled back otherwise, including when f
// panics. f must not keep tx after it returns.
func (d *Dir) BeginTransaction(ctx context.Context, f func(tx *Tx) (commit bool, err error)) (didCommit bool, retErr error) {
	tx := d.Tx()
	if err := tx.Begin(ctx); err != nil {
		return false, err
	}

	defer func() {
		if p := recover(); p != nil {
			if tx.State() == Active {
				if err := tx.Rollback(ctx); err != nil {
					log.Errorw("rollback after panic", "tx", tx.id, "error", err)
				}
			}
			panic(p)
		}
	}()

	commit, err := f(tx)
	if st := tx.State(); st != Active {
		// f finished the transaction itself
		return st == Committed, err
	}

	if err != nil || !commit {
		if rerr := tx.Rollback(ctx); rerr != nil {
			err = multierr.Append(err, rerr)
		}
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			err = multierr.Append(err, rerr)
		}
		return false, err
	}
	return true, nil
}
