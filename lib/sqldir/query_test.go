package sqldir

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/sqldir/lib/sqltemplate"
)

func TestQueryShapes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	d := newTestDir(t, &testPool{respond: accountRows})
	get := member(t, d, "getAccount")

	rows, err := get.Query(ctx, sqltemplate.Args{"id": 123})
	req.NoError(err)
	req.Equal([]Row{{"id": 123, "firstName": "timo", "lastName": "mars"}}, rows)

	row, err := get.One(ctx, sqltemplate.Args{"id": 123})
	req.NoError(err)
	req.Equal(Row{"id": 123, "firstName": "timo", "lastName": "mars"}, row)

	res, err := get.FullResponse(ctx, sqltemplate.Args{"id": 123})
	req.NoError(err)
	req.Len(res.Rows, 1)
	req.EqualValues(1, res.RowCount)
	req.ElementsMatch([]string{"id", "firstName", "lastName"}, res.Fields)
}

func TestOneWithoutRows(t *testing.T) {
	d := newTestDir(t, &testPool{respond: accountRows})

	row, err := member(t, d, "getAccount").One(context.Background(), sqltemplate.Args{"id": 404})
	require.NoError(t, err)
	require.Nil(t, row)

	rows, err := member(t, d, "getAccount").Query(context.Background(), sqltemplate.Args{"id": 404})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestHash(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t, &testPool{respond: accountRows})
	list := member(t, d, "listAccounts")

	byID, err := list.Hash("id")(ctx)
	require.NoError(t, err)
	require.Equal(t, map[any]Row{
		1: {"id": 1, "firstName": "timo"},
		2: {"id": 2, "firstName": "timoteo"},
	}, byID)

	// keys are camelCased like the rows
	byName, err := list.Hash("first_name")(ctx)
	require.NoError(t, err)
	require.Len(t, byName, 2)
	require.Equal(t, 2, byName["timoteo"]["id"])

	_, err = list.Hash("missing")(ctx)
	require.True(t, errors.Is(err, ErrHashKey))
	require.True(t, errors.Is(err, ErrTemplate))
}

func TestHashCollisionsLastWins(t *testing.T) {
	p := &testPool{respond: func(sql string, params []any) ([]map[string]any, error) {
		return []map[string]any{
			{"org_id": []byte("a"), "n": 1},
			{"org_id": []byte("b"), "n": 2},
			{"org_id": []byte("a"), "n": 3},
		}, nil
	}}
	d := newTestDir(t, p)

	byOrg, err := member(t, d, "listAccounts").Hash("orgId")(context.Background())
	require.NoError(t, err)
	require.Len(t, byOrg, 2)
	require.Equal(t, 3, byOrg["a"]["n"])
	require.Equal(t, 2, byOrg["b"]["n"])
}

func TestHashUnhashableKey(t *testing.T) {
	p := &testPool{respond: func(sql string, params []any) ([]map[string]any, error) {
		return []map[string]any{{"tags": []string{"x"}}}, nil
	}}
	d := newTestDir(t, p)

	_, err := member(t, d, "listAccounts").Hash("tags")(context.Background())
	require.True(t, errors.Is(err, ErrHashKey))
}

func TestResolve(t *testing.T) {
	d := newTestDir(t, &testPool{})

	st, err := member(t, d, "createAccount").Resolve(sqltemplate.Args{"id": 1, "firstName": "timo"})
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO account (id, first_name) VALUES ($1, $2) RETURNING *", st.SQL)

	_, err = member(t, d, "createAccount").Resolve(1, 2)
	require.True(t, errors.Is(err, ErrTemplate))
}

func TestErrorHelpers(t *testing.T) {
	err := &Error{Kind: KindExecution, Member: "createAccount", SQLState: "23505"}
	require.Equal(t, "sqldir: execution error in createAccount (SQLSTATE 23505)", err.Error())
	require.True(t, errors.Is(err, ErrExecution))
	require.False(t, errors.Is(err, ErrConnection))
	require.Equal(t, Kind(0), KindOf(errors.New("plain")))
}

func TestStoreErrorCodes(t *testing.T) {
	ctx := context.Background()
	var storeErr error
	p := &testPool{respond: func(sql string, params []any) ([]map[string]any, error) {
		return nil, storeErr
	}}
	d := newTestDir(t, p)
	create := member(t, d, "createAccount")

	storeErr = &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key value violates unique constraint"}
	_, err := create.One(ctx, sqltemplate.Args{"id": 1, "firstName": "timo"})
	require.True(t, errors.Is(err, ErrExecution))
	require.True(t, IsUniqueViolation(err))
	require.False(t, IsSerializationFailure(err))
	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "23505", e.SQLState)

	storeErr = &pq.Error{Code: pgerrcode.SerializationFailure}
	_, err = create.One(ctx, sqltemplate.Args{"id": 1, "firstName": "timo"})
	require.True(t, IsSerializationFailure(err))
	require.False(t, IsUniqueViolation(err))

	storeErr = errBroken
	_, err = create.One(ctx, sqltemplate.Args{"id": 1, "firstName": "timo"})
	require.True(t, errors.Is(err, ErrExecution))
	require.False(t, IsUniqueViolation(err))
	require.False(t, IsSerializationFailure(err))
	require.Equal(t, 0, p.Stat().Acquired)
}
