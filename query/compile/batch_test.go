package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/opsql/internal/testmodel"
	"github.com/shipq/opsql/query"
)

func TestBatchMergesRowCountStatements(t *testing.T) {
	a := query.UpdateEntity(testmodel.Demo{Id: 1, Code: "a", Name: "x"})
	b := query.UpdateEntity(testmodel.Demo{Id: 2, Code: "b", Name: "y"})

	cmds, err := NewCompiler(SQLServer, models).Batch(a, b)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "UPDATE [Demo]\n"+
		"SET [Code] = @p0, [Name] = @p1\n"+
		"WHERE [Id] = 1;\n"+
		"UPDATE [Demo]\n"+
		"SET [Code] = @p2, [Name] = @p3\n"+
		"WHERE [Id] = 2", cmds[0].Text)
	assert.Equal(t, []any{"a", "x", "b", "y"}, cmds[0].Args())
	assert.Equal(t, query.KindExec, cmds[0].Kind)
}

func TestBatchNilStartsNewRoundTrip(t *testing.T) {
	a := query.UpdateEntity(testmodel.Demo{Id: 1, Code: "a", Name: "x"})
	b := query.UpdateEntity(testmodel.Demo{Id: 2, Code: "b", Name: "y"})

	cmds, err := NewCompiler(SQLServer, models).Batch(a, nil, b)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "UPDATE [Demo]\n"+
		"SET [Code] = @p0, [Name] = @p1\n"+
		"WHERE [Id] = 2", cmds[1].Text)
}

func TestBatchRespectsParameterLimit(t *testing.T) {
	a := query.UpdateEntity(testmodel.Demo{Id: 1, Code: "a", Name: "x"})
	b := query.UpdateEntity(testmodel.Demo{Id: 2, Code: "b", Name: "y"})
	c := query.UpdateEntity(testmodel.Demo{Id: 3, Code: "c", Name: "z"})

	cmds, err := NewCompiler(SQLite, models, WithMaxParameters(4)).Batch(a, b, c)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Len(t, cmds[0].Parameters, 4)
	assert.Len(t, cmds[1].Parameters, 2)
}

func TestBatchKeepsQueriesAndOutputsApart(t *testing.T) {
	upd := query.UpdateEntity(testmodel.Demo{Id: 1, Code: "a", Name: "x"})
	ins := query.InsertEntity(testmodel.Demo{Code: "n", Name: "m"})
	sel := query.From("Demo")

	cmds, err := NewCompiler(SQLServer, models).Batch(upd, ins, upd, sel)
	require.NoError(t, err)
	require.Len(t, cmds, 4)
	assert.Equal(t, query.KindExec, cmds[0].Kind)
	_, hasOutput := cmds[1].Output()
	assert.True(t, hasOutput)
	assert.Equal(t, query.KindExec, cmds[2].Kind)
	assert.Equal(t, query.KindQuery, cmds[3].Kind)
}

func TestBatchPostgresNeverMerges(t *testing.T) {
	a := query.UpdateEntity(testmodel.Demo{Id: 1, Code: "a", Name: "x"})
	b := query.UpdateEntity(testmodel.Demo{Id: 2, Code: "b", Name: "y"})

	cmds, err := NewCompiler(Postgres, models).Batch(a, b)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "UPDATE \"Demo\"\n"+
		"SET \"Code\" = $1, \"Name\" = $2\n"+
		"WHERE \"Id\" = 2", cmds[1].Text)
}

func TestBatchRaw(t *testing.T) {
	raw := query.Raw{Text: `UPDATE "Demo" SET "Name" = {0} WHERE "Id" = {1}`, Args: []any{"x", 3}}

	cmds, err := NewCompiler(Postgres, models).Batch(raw)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, `UPDATE "Demo" SET "Name" = $1 WHERE "Id" = 3`, cmds[0].Text)
	assert.Equal(t, []any{"x"}, cmds[0].Args())

	cmds, err = NewCompiler(SQLite, models, WithParameterized(false)).Batch(&raw)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "Demo" SET "Name" = 'x' WHERE "Id" = 3`, cmds[0].Text)
}
