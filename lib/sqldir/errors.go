package sqldir

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"

	"github.com/filecoin-project/sqldir/lib/sqlpool"
)

// Kind classifies every error returned by this package.
type Kind int

const (
	// KindIO: the query directory or a template file could not be read.
	KindIO Kind = iota + 1
	// KindTemplate: a template failed to compile or the arguments did not fit.
	// No connection was touched.
	KindTemplate
	// KindConnection: no connection could be acquired. The session is left
	// without a connection.
	KindConnection
	// KindExecution: the store rejected the statement. The connection was
	// released or kept according to the session before this was returned.
	KindExecution
	// KindTxState: the transaction is not in a state that allows the call.
	// Nothing was sent to the store.
	KindTxState
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTemplate:
		return "template"
	case KindConnection:
		return "connection"
	case KindExecution:
		return "execution"
	case KindTxState:
		return "transaction state"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every Dir, Query and Tx operation. Compare it against
// the kind sentinels with errors.Is.
type Error struct {
	Kind Kind
	// Member is the query (or transaction control statement) involved, if any.
	Member string
	// SQLState is the store's error code for execution errors, when known.
	SQLState string
	Err      error
}

func (e *Error) Error() string {
	msg := "sqldir: " + e.Kind.String() + " error"
	if e.Member != "" {
		msg += " in " + e.Member
	}
	if e.SQLState != "" {
		msg += " (SQLSTATE " + e.SQLState + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrExecution) works
// on any wrapped *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Member == "" && t.Kind == e.Kind
}

var (
	ErrIO                      = &Error{Kind: KindIO}
	ErrTemplate                = &Error{Kind: KindTemplate}
	ErrConnection              = &Error{Kind: KindConnection}
	ErrExecution               = &Error{Kind: KindExecution}
	ErrInvalidTransactionState = &Error{Kind: KindTxState}
)

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsUniqueViolation reports whether the store rejected a statement for
// breaking a unique or primary key constraint.
func IsUniqueViolation(err error) bool {
	return sqlpool.SQLState(err) == pgerrcode.UniqueViolation
}

// IsSerializationFailure reports whether the store aborted the transaction
// because of a concurrent update. Retrying is up to the caller.
func IsSerializationFailure(err error) bool {
	s := sqlpool.SQLState(err)
	return s == pgerrcode.SerializationFailure || s == pgerrcode.DeadlockDetected
}
