package compile

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/shipq/opsql/internal/testmodel"
	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/lambda"
)

// openSQLite returns a seeded in-memory database.
func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, testmodel.Setup(context.Background(), db))
	return db
}

func queryRows(t *testing.T, db *sql.DB, cmd *query.Command) [][]any {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), cmd.Text, cmd.Args()...)
	require.NoError(t, err, cmd.Text)
	defer rows.Close()
	cols, err := rows.Columns()
	require.NoError(t, err)
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		out = append(out, vals)
	}
	require.NoError(t, rows.Err())
	return out
}

func scalar(t *testing.T, db *sql.DB, text string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.QueryRowContext(context.Background(), text, args...).Scan(&n), text)
	return n
}

func exec(t *testing.T, db *sql.DB, cmds []*query.Command) int64 {
	t.Helper()
	var total int64
	for _, cmd := range cmds {
		res, err := db.ExecContext(context.Background(), cmd.Text, cmd.Args()...)
		require.NoError(t, err, cmd.Text)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		total += n
	}
	return total
}

func TestSQLiteNestedPaging(t *testing.T) {
	db := openSQLite(t)
	seq := query.From("Demo").
		OrderBy(lambda.MustParse("d => d.Code")).
		Skip(1).
		Where(lambda.MustParse("d => d.Id <= 10")).
		Skip(1).
		Take(1)

	rows := queryRows(t, db, compileQuery(t, SQLite, seq))
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0][0])
}

func TestSQLiteUnion(t *testing.T) {
	db := openSQLite(t)
	q1 := query.From("Demo").Where(lambda.MustParse("d => d.Id <= 2"))
	q2 := query.From("Demo").Where(lambda.MustParse("d => d.Id >= 9"))

	assert.Len(t, queryRows(t, db, compileQuery(t, SQLite, q1.Union(q2))), 4)
	assert.Len(t, queryRows(t, db, compileQuery(t, SQLite, q1.Union(q2).Take(2))), 2)
}

func TestSQLiteLikeEscaping(t *testing.T) {
	db := openSQLite(t)
	exec(t, db, compileAll(t, SQLite, query.InsertEntity(testmodel.Demo{Code: "a_1", Name: "x"})))
	exec(t, db, compileAll(t, SQLite, query.InsertEntity(testmodel.Demo{Code: "ab1", Name: "y"})))

	rows := queryRows(t, db, compileQuery(t, SQLite, query.From("Demo").Where(lambda.MustParse(`d => d.Code.StartsWith("a_")`))))
	require.Len(t, rows, 1)
	assert.Equal(t, "a_1", rows[0][1])
}

func TestSQLiteAggregates(t *testing.T) {
	db := openSQLite(t)

	count := compileQuery(t, SQLite, query.From("Demo").Count(lambda.MustParse("d => d.Id > 5")))
	assert.EqualValues(t, 5, scalar(t, db, count.Text, count.Args()...))

	exists := compileQuery(t, SQLite, query.From("Client").Any(lambda.MustParse("c => c.Orders.Any(o => o.Total > 15)")))
	assert.Len(t, queryRows(t, db, exists), 1)

	none := compileQuery(t, SQLite, query.From("Demo").Any(lambda.MustParse("d => d.Id > 100")))
	assert.Empty(t, queryRows(t, db, none))
}

func TestSQLiteIncludeCollection(t *testing.T) {
	db := openSQLite(t)
	seq := query.From("Client").
		Include(lambda.MustParse("c => c.Orders")).
		OrderBy(lambda.MustParse("c => c.Name")).
		Take(1)

	rows := queryRows(t, db, compileQuery(t, SQLite, seq))
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "acme", r[1])
	}
}

func TestSQLiteInsert(t *testing.T) {
	db := openSQLite(t)

	cmd := compileAll(t, SQLite, query.InsertEntity(testmodel.Demo{Code: "c11", Name: "eleven"}))[0]
	require.Equal(t, query.KindScalar, cmd.Kind)
	assert.EqualValues(t, 11, scalar(t, db, cmd.Text, cmd.Args()...))

	demos := []testmodel.Demo{{Code: "x1", Name: "a"}, {Code: "x2", Name: "b"}, {Code: "x3", Name: "c"}}
	cmds := compileAll(t, SQLite, query.InsertEntity(demos), WithMaxParameters(4))
	require.Len(t, cmds, 2)
	assert.EqualValues(t, 3, exec(t, db, cmds))
	assert.EqualValues(t, 14, scalar(t, db, `SELECT COUNT(*) FROM "Demo"`))

	copied := query.From("Demo").Where(lambda.MustParse("d => d.Id <= 2")).Insert("Demo")
	assert.EqualValues(t, 2, exec(t, db, compileAll(t, SQLite, copied)))
}

func TestSQLiteUpdateAndDelete(t *testing.T) {
	db := openSQLite(t)

	double := query.From("Order").
		Where(lambda.MustParse(`o => o.Client.Name == "acme"`)).
		Update(lambda.MustParse("o => new Order { Total = o.Total * 2 }"))
	assert.EqualValues(t, 2, exec(t, db, compileAll(t, SQLite, double)))
	assert.EqualValues(t, 61, scalar(t, db, `SELECT CAST(SUM("Total") AS INTEGER) FROM "Order" WHERE "ClientId" = 1`))

	rename := query.From("Demo").
		Where(lambda.MustParse("d => d.Id == 3")).
		Update(lambda.MustParse(`d => new Demo { Name = d.Code + "!" }`))
	assert.EqualValues(t, 1, exec(t, db, compileAll(t, SQLite, rename)))
	var name string
	require.NoError(t, db.QueryRow(`SELECT "Name" FROM "Demo" WHERE "Id" = 3`).Scan(&name))
	assert.Equal(t, "c03!", name)

	drop := query.From("Order").Where(lambda.MustParse(`o => o.Client.Name == "globex"`)).Delete()
	assert.EqualValues(t, 1, exec(t, db, compileAll(t, SQLite, drop)))

	assert.EqualValues(t, 3, exec(t, db, compileAll(t, SQLite, query.DeleteEntity([]testmodel.Demo{{Id: 1}, {Id: 2}, {Id: 4}}))))
	assert.EqualValues(t, 7, scalar(t, db, `SELECT COUNT(*) FROM "Demo"`))
}
