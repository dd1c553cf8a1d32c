package runner

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/opsql/dburl"
	"github.com/shipq/opsql/internal/testmodel"
	"github.com/shipq/opsql/logging"
	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/compile"
	"github.com/shipq/opsql/query/lambda"
)

var models = testmodel.Registry()

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mk, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mk
}

func mustCompile(t *testing.T, d compile.Dialect, seq query.Sequence) []*query.Command {
	t.Helper()
	cmds, err := compile.NewCompiler(d, models).Compile(seq)
	require.NoError(t, err)
	return cmds
}

func TestExecRunsInOneTransaction(t *testing.T) {
	db, mk := newMock(t)
	cmds, err := compile.NewCompiler(compile.Postgres, models).Batch(
		query.UpdateEntity(testmodel.Demo{Id: 1, Code: "a", Name: "x"}),
		query.UpdateEntity(testmodel.Demo{Id: 2, Code: "b", Name: "y"}),
	)
	require.NoError(t, err)
	require.Len(t, cmds, 2)

	mk.ExpectBegin()
	mk.ExpectExec(cmds[0].Text).WithArgs("a", "x").WillReturnResult(sqlmock.NewResult(0, 1))
	mk.ExpectExec(cmds[1].Text).WithArgs("b", "y").WillReturnResult(sqlmock.NewResult(0, 1))
	mk.ExpectCommit()

	n, err := New(db, compile.Postgres).Exec(context.Background(), cmds...)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestExecRollsBackOnFailure(t *testing.T) {
	db, mk := newMock(t)
	cmds, err := compile.NewCompiler(compile.Postgres, models).Batch(
		query.UpdateEntity(testmodel.Demo{Id: 1, Code: "a", Name: "x"}),
		query.UpdateEntity(testmodel.Demo{Id: 2, Code: "b", Name: "y"}),
	)
	require.NoError(t, err)

	boom := errors.New("boom")
	mk.ExpectBegin()
	mk.ExpectExec(cmds[0].Text).WillReturnResult(sqlmock.NewResult(0, 1))
	mk.ExpectExec(cmds[1].Text).WillReturnError(boom)
	mk.ExpectRollback()

	_, err = New(db, compile.Postgres).Exec(context.Background(), cmds...)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "command 1")
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestExecSingleCommandSkipsTransaction(t *testing.T) {
	db, mk := newMock(t)
	cmds := mustCompile(t, compile.MySQL, query.From("Demo").Where(lambda.MustParse("d => d.Id > 3")).Delete())
	require.Len(t, cmds, 1)

	mk.ExpectExec(cmds[0].Text).WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := New(db, compile.MySQL).Exec(context.Background(), cmds...)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestInsertIdentity(t *testing.T) {
	t.Run("last insert id", func(t *testing.T) {
		db, mk := newMock(t)
		cmd := mustCompile(t, compile.MySQL, query.InsertEntity(testmodel.Demo{Code: "c", Name: "n"}))[0]
		require.Equal(t, query.KindIdentity, cmd.Kind)

		mk.ExpectExec(cmd.Text).WithArgs("c", "n").WillReturnResult(sqlmock.NewResult(42, 1))

		id, err := New(db, compile.MySQL).Insert(context.Background(), cmd)
		require.NoError(t, err)
		assert.EqualValues(t, 42, id)
		require.NoError(t, mk.ExpectationsWereMet())
	})

	t.Run("returning", func(t *testing.T) {
		db, mk := newMock(t)
		cmd := mustCompile(t, compile.Postgres, query.InsertEntity(testmodel.Demo{Code: "c", Name: "n"}))[0]
		require.Equal(t, query.KindScalar, cmd.Kind)

		mk.ExpectQuery(cmd.Text).WithArgs("c", "n").WillReturnRows(sqlmock.NewRows([]string{"Id"}).AddRow(int64(9)))

		id, err := New(db, compile.Postgres).Insert(context.Background(), cmd)
		require.NoError(t, err)
		assert.EqualValues(t, 9, id)
		require.NoError(t, mk.ExpectationsWereMet())
	})

	t.Run("no identity", func(t *testing.T) {
		db, _ := newMock(t)
		cmd := mustCompile(t, compile.MySQL, query.InsertEntity(testmodel.Tag{Owner: 1, Label: "x"}))[0]

		_, err := New(db, compile.MySQL).Insert(context.Background(), cmd)
		assert.ErrorIs(t, err, ErrNoIdentity)
	})
}

func TestNamedArguments(t *testing.T) {
	cmd := mustCompile(t, compile.SQLServer, query.InsertEntity(testmodel.Demo{Code: "c", Name: "n"}))[0]
	r := New(nil, compile.SQLServer)

	args, out := r.args(cmd)
	require.Len(t, args, 3)
	require.NotNil(t, out)
	assert.Equal(t, sql.Named("p0", "c"), args[0])
	assert.Equal(t, sql.Named("p1", "n"), args[1])
	outArg := args[2].(sql.NamedArg)
	assert.Equal(t, "p2", outArg.Name)
	assert.IsType(t, sql.Out{}, outArg.Value)

	*out = int64(12)
	id, err := toInt64(*out)
	require.NoError(t, err)
	assert.EqualValues(t, 12, id)

	pos, out := New(nil, compile.SQLite).args(cmd)
	assert.Nil(t, out)
	assert.Equal(t, []any{"c", "n", nil}, pos)
}

func TestToInt64(t *testing.T) {
	for _, v := range []any{int64(5), 5, int32(5), float64(5), []byte("5"), "5"} {
		n, err := toInt64(v)
		require.NoError(t, err, "%T", v)
		assert.EqualValues(t, 5, n, "%T", v)
	}
	_, err := toInt64(nil)
	assert.ErrorIs(t, err, ErrNoIdentity)
	_, err = toInt64(struct{}{})
	assert.Error(t, err)
}

func TestQueryAndScalarOnSQLite(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	r, err := Open(ctx, "sqlite::memory:", WithLogger(logging.New(&logs, logging.FormatJSON, -4)))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	require.Equal(t, compile.SQLite, r.Dialect())
	require.NoError(t, testmodel.Setup(ctx, r.DB().(*sql.DB)))

	c := compile.NewCompiler(r.Dialect(), models)

	sel, err := c.CompileQuery(query.From("Demo").Where(lambda.MustParse(`d => d.Code.StartsWith("c0")`)).OrderByDescending(lambda.MustParse("d => d.Id")).Take(2))
	require.NoError(t, err)
	rows, err := r.Query(ctx, sel)
	require.NoError(t, err)
	var ids []int64
	for rows.Next() {
		var id int64
		var code, name string
		require.NoError(t, rows.Scan(&id, &code, &name))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []int64{9, 8}, ids)

	ins, err := c.CompileQuery(query.InsertEntity(testmodel.Demo{Code: "c11", Name: "eleven"}))
	require.NoError(t, err)
	id, err := r.Insert(ctx, ins)
	require.NoError(t, err)
	assert.EqualValues(t, 11, id)

	count, err := c.CompileQuery(query.From("Demo").Count())
	require.NoError(t, err)
	var n int64
	require.NoError(t, r.Scalar(ctx, count, &n))
	assert.EqualValues(t, 11, n)

	bulk, err := compile.NewCompiler(r.Dialect(), models, compile.WithMaxParameters(2)).Compile(
		query.InsertEntity([]testmodel.Demo{{Code: "x", Name: "1"}, {Code: "y", Name: "2"}, {Code: "z", Name: "3"}}))
	require.NoError(t, err)
	require.Len(t, bulk, 3)
	affected, err := r.Exec(ctx, bulk...)
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)

	assert.Contains(t, logs.String(), "sql_query_completed")
	assert.Contains(t, logs.String(), "sql_insert_completed")
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "mongodb://localhost/x")
	assert.ErrorIs(t, err, dburl.ErrUnknownDialect)

	_, err = Open(ctx, "sqlserver://sa@localhost/app")
	assert.ErrorIs(t, err, dburl.ErrNoDriver)

	_, err = Open(ctx, "postgres://localhost:notaport/db")
	assert.Error(t, err)
}

func TestCloseWithoutOpen(t *testing.T) {
	assert.NoError(t, New(nil, compile.MySQL).Close())
}
