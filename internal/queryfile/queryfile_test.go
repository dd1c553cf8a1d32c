package queryfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/compile"
)

func compileFile(t *testing.T, f *File, d compile.Dialect, opts ...compile.Option) []Result {
	t.Helper()
	reg, err := f.Registry()
	require.NoError(t, err)
	results, err := f.Compile(compile.NewCompiler(d, reg, opts...))
	require.NoError(t, err)
	return results
}

func TestLoad(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "shop.yaml"))
	require.NoError(t, err)

	assert.Len(t, f.Entities, 3)
	assert.Len(t, f.Statements, 8)
	assert.Equal(t, "acme", f.Vars["client"])

	reg, err := f.Registry()
	require.NoError(t, err)
	demo, err := reg.Entity("Demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo", demo.Table)
	require.NotNil(t, demo.Identity())
	assert.Equal(t, "Id", demo.Identity().Field)
	assert.Equal(t, "varchar", demo.Column("Code").DBType)
	assert.Equal(t, 20, demo.Column("Code").Size)

	order, err := reg.Entity("Order")
	require.NoError(t, err)
	nav := order.Navigation("Client")
	require.NotNil(t, nav)
	assert.False(t, nav.Many)
	assert.Equal(t, "ClientId", nav.Keys[0].Local)
	assert.Equal(t, "Id", nav.Keys[0].Foreign)

	_, err = Load(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}

func TestCompileFile(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "shop.yaml"))
	require.NoError(t, err)
	results := compileFile(t, f, compile.SQLServer)
	require.Len(t, results, 8)

	byName := make(map[string]Result)
	for _, r := range results {
		byName[r.Name] = r
	}

	t.Run("vars are inlined or bound", func(t *testing.T) {
		page := byName["page"]
		require.Len(t, page.Commands, 1)
		assert.Equal(t, "SELECT TOP 3 t0.[Id], t0.[Code], t0.[Name]\n"+
			"FROM [Demo] t0\n"+
			"WHERE t0.[Id] <= 10\n"+
			"ORDER BY t0.[Code]", page.Commands[0].Text)

		acme := byName["acme orders"].Commands[0]
		assert.Equal(t, "SELECT t0.[Id], t0.[ClientId], t0.[Total], t0.[Placed]\n"+
			"FROM [Order] t0\n"+
			"LEFT JOIN [Client] t1 ON t1.[Id] = t0.[ClientId]\n"+
			"WHERE t1.[Name] = @p0", acme.Text)
		assert.Equal(t, []any{"acme"}, acme.Args())
	})

	t.Run("collection navigation", func(t *testing.T) {
		assert.Equal(t, "SELECT t0.[Id], t0.[Name]\n"+
			"FROM [Client] t0\n"+
			"WHERE EXISTS (SELECT 1 FROM [Order] t1 WHERE t1.[ClientId] = t0.[Id] AND t1.[Total] > 15)",
			byName["big spenders"].Commands[0].Text)
	})

	t.Run("unnamed statement", func(t *testing.T) {
		join, ok := byName["statement 4"]
		require.True(t, ok)
		assert.Equal(t, "SELECT t0.[Id], t1.[Name]\n"+
			"FROM [Order] t0\n"+
			"INNER JOIN [Client] t1 ON t1.[Id] = t0.[ClientId]", join.Commands[0].Text)
	})

	t.Run("aggregate", func(t *testing.T) {
		count := byName["count"].Commands[0]
		assert.Equal(t, "SELECT COUNT(*)\nFROM [Demo] t0\nWHERE t0.[Id] > 5", count.Text)
		assert.Equal(t, query.KindScalar, count.Kind)
	})

	t.Run("insert row", func(t *testing.T) {
		ins := byName["add demo"].Commands[0]
		assert.Equal(t, "INSERT INTO [Demo] ([Code], [Name])\n"+
			"VALUES (@p0, @p1);\n"+
			"SET @p2 = SCOPE_IDENTITY()", ins.Text)
		assert.Equal(t, "varchar", ins.Parameters[0].DBType)
		assert.Equal(t, 20, ins.Parameters[0].Size)
		out, ok := ins.Output()
		require.True(t, ok)
		assert.Equal(t, "Int64", out.DBType)
	})

	t.Run("update rows compile separately", func(t *testing.T) {
		upd := byName["rename"].Commands
		require.Len(t, upd, 2)
		assert.Equal(t, "UPDATE [Demo]\n"+
			"SET [Code] = @p0, [Name] = @p1\n"+
			"WHERE [Id] = 2", upd[1].Text)
		assert.Equal(t, []any{"b", "y"}, upd[1].Args())
	})

	t.Run("bare operation", func(t *testing.T) {
		assert.Equal(t, "SELECT DISTINCT t0.[Code]\nFROM [Demo] t0", byName["codes"].Commands[0].Text)
	})
}

func TestCompileBatch(t *testing.T) {
	f, err := Parse([]byte(`
batch: true
entities:
  - name: Demo
    columns:
      - {field: Id, key: true, identity: true}
      - {field: Code}
      - {field: Name}
statements:
  - update:
      entity: Demo
      rows:
        - {Id: 1, Code: a, Name: x}
        - {Id: 2, Code: b, Name: y}
  - break: true
  - raw: UPDATE [Demo] SET [Name] = {0} WHERE [Id] = {1}
    args: [z, 3]
`))
	require.NoError(t, err)

	results := compileFile(t, f, compile.SQLServer)
	require.Len(t, results, 1)
	assert.Equal(t, "batch", results[0].Name)
	cmds := results[0].Commands
	require.Len(t, cmds, 2)
	assert.Equal(t, "UPDATE [Demo]\n"+
		"SET [Code] = @p0, [Name] = @p1\n"+
		"WHERE [Id] = 1;\n"+
		"UPDATE [Demo]\n"+
		"SET [Code] = @p2, [Name] = @p3\n"+
		"WHERE [Id] = 2", cmds[0].Text)
	assert.Equal(t, "UPDATE [Demo] SET [Name] = @p0 WHERE [Id] = 3", cmds[1].Text)
	assert.Equal(t, []any{"z"}, cmds[1].Args())

	pg := compileFile(t, f, compile.Postgres)
	assert.Len(t, pg[0].Commands, 3)
}

func TestSnakeNaming(t *testing.T) {
	f, err := Parse([]byte(`
naming: snake
entities:
  - name: OrderItem
    columns:
      - {field: Id, key: true}
      - {field: UnitPrice}
statements:
  - from: OrderItem
`))
	require.NoError(t, err)

	results := compileFile(t, f, compile.Postgres)
	assert.Equal(t, "SELECT t0.\"id\", t0.\"unit_price\"\nFROM \"order_items\" t0", results[0].Commands[0].Text)
}

func TestDeleteStatements(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "shop.yaml"))
	require.NoError(t, err)
	f.Statements = []Statement{
		{Name: "purge", Delete: &Rows{Entity: "Demo", Rows: []map[string]any{{"Id": 4}, {"Id": 5}}}},
		{Name: "empty", Source: Source{From: "Demo", Ops: []Op{{Kind: "delete"}}}},
	}

	results := compileFile(t, f, compile.SQLServer)
	require.Len(t, results, 2)
	assert.Equal(t, "DELETE FROM [Demo]\nWHERE [Id] IN (4, 5)", results[0].Commands[0].Text)
	assert.Equal(t, "DELETE FROM [Demo]", results[1].Commands[0].Text)
}

func TestLeftJoin(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "shop.yaml"))
	require.NoError(t, err)
	extra, err := Parse([]byte(`
statements:
  - name: clients and orders
    from: Client
    ops:
      - leftJoin:
          entity: Order
          outer: c => c.Id
          inner: o => o.ClientId
          result: (c, o) => new { c.Name, o.Total }
`))
	require.NoError(t, err)
	f.Statements = extra.Statements

	results := compileFile(t, f, compile.SQLServer)
	text := results[0].Commands[0].Text
	assert.Contains(t, text, "LEFT JOIN [Order] t1 ON t1.[ClientId] = t0.[Id]")
	assert.Contains(t, text, "SELECT t0.[Name], t1.[Total]")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no statements", "entities: []\n", "statements list is required"},
		{"unknown field", "statements:\n  - from: Demo\n    limit: 3\n", "limit"},
		{"bad naming", "naming: camel\nstatements:\n  - from: Demo\n", "naming must be exact or snake"},
		{"two keys", "statements:\n  - from: Demo\n    ops:\n      - {take: 1, skip: 2}\n", "exactly one key"},
		{"sequence op", "statements:\n  - from: Demo\n    ops:\n      - [take]\n", "a name or a one-key mapping"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	base := "entities:\n  - name: Demo\n    columns:\n      - {field: Id, key: true}\n"
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown op", "statements:\n  - from: Demo\n    ops:\n      - shuffle\n", "ops[0] shuffle: unknown operation"},
		{"missing lambda", "statements:\n  - from: Demo\n    ops:\n      - where\n", "needs a lambda"},
		{"undefined var", "statements:\n  - from: Demo\n    ops:\n      - where: d => d.Id == $nope\n", "undefined variable $nope"},
		{"bad count", "statements:\n  - from: Demo\n    ops:\n      - take: many\n", "ops[0] take"},
		{"empty statement", "statements:\n  - name: nothing\n", "nothing: statement needs one of"},
		{"rows without entity", "statements:\n  - insert: {rows: [{Id: 1}]}\n", "entity is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(base + tt.yaml))
			require.NoError(t, err)
			reg, err := f.Registry()
			require.NoError(t, err)
			_, err = f.Compile(compile.NewCompiler(compile.SQLServer, reg))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegistryErrors(t *testing.T) {
	f, err := Parse([]byte(`
entities:
  - name: Client
    columns:
      - {field: Id, key: true}
    navigations:
      - {field: Orders, target: Order, keys: [Id], many: true}
statements:
  - from: Client
`))
	require.NoError(t, err)
	_, err = f.Registry()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not Local=Foreign")

	f.Entities[0].Navigations = nil
	f.Entities[0].Columns[0].Field = ""
	_, err = f.Registry()
	assert.ErrorContains(t, err, "field is required")
}

func TestLoadRelativeToWorkingDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.yaml")
	require.NoError(t, os.WriteFile(path, []byte("statements:\n  - raw: SELECT 1\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	results := compileFile(t, f, compile.SQLite)
	require.Len(t, results, 1)
	assert.Equal(t, "SELECT 1", results[0].Commands[0].Text)
}
