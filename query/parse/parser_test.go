package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/opsql/internal/testmodel"
	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/lambda"
)

var models = testmodel.Registry()

func parseSelect(t *testing.T, seq query.Sequence) *query.SelectInfo {
	t.Helper()
	sel, err := ParseSelect(seq, models)
	require.NoError(t, err)
	return sel
}

func TestParseSingleLevel(t *testing.T) {
	sel := parseSelect(t, query.From("Demo").
		Where(lambda.MustParse("d => d.Id <= 10")).
		OrderBy(lambda.MustParse("d => d.Code")).
		ThenByDescending(lambda.MustParse("d => d.Name")).
		Skip(1).
		Take(18))

	assert.Equal(t, "Demo", sel.From)
	assert.Equal(t, 0, sel.Depth())
	require.Len(t, sel.Where, 1)
	require.Len(t, sel.OrderBy, 2)
	assert.False(t, sel.OrderBy[0].Desc)
	assert.True(t, sel.OrderBy[1].Desc)
	assert.Equal(t, 1, sel.Skip)
	assert.Equal(t, 18, sel.Take)
	assert.True(t, sel.PicksAll())
}

func TestParseLevelBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		seq   query.Sequence
		depth int
	}{
		{"where after take", query.From("Demo").Take(3).Where(lambda.MustParse("d => d.Id > 1")), 1},
		{"where after skip", query.From("Demo").Skip(3).Where(lambda.MustParse("d => d.Id > 1")), 1},
		{"skip then take", query.From("Demo").Skip(3).Take(2), 0},
		{"two paging runs", query.From("Demo").Skip(1).Where(lambda.MustParse("d => d.Id <= 10")).Skip(1).Take(1), 1},
		{"after distinct", query.From("Demo").Distinct().OrderBy(lambda.MustParse("d => d.Code")), 1},
		{"as subquery", query.From("Demo").AsSubquery().Where(lambda.MustParse("d => d.Id > 1")), 1},
		{"union then take", query.From("Demo").Union(query.From("Demo")).Take(2), 1},
		{"count after take", query.From("Demo").Take(3).Count(), 1},
		{"orderby replaces", query.From("Demo").OrderBy(lambda.MustParse("d => d.Id")).OrderBy(lambda.MustParse("d => d.Code")), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.depth, parseSelect(t, tt.seq).Depth())
		})
	}
}

func TestParseSkipsAccumulate(t *testing.T) {
	sel := parseSelect(t, query.From("Demo").Skip(2).Skip(3))
	assert.Equal(t, 5, sel.Skip)
	assert.Equal(t, 0, sel.Depth())
}

func TestParseInlinesProjection(t *testing.T) {
	sel := parseSelect(t, query.From("Demo").
		Select(lambda.MustParse("d => new { d.Id, N = d.Name }")).
		Where(lambda.MustParse(`x => x.N == "a"`)))

	require.Len(t, sel.Where, 1)
	assert.Equal(t, `(t) => (t.Name == "a")`, sel.Where[0].String())
	assert.False(t, sel.PicksAll())
}

func TestParseFirstAndCountExpand(t *testing.T) {
	first := parseSelect(t, query.From("Demo").First(lambda.MustParse("d => d.Id == 2")))
	assert.Equal(t, 1, first.Take)
	assert.Len(t, first.Where, 1)

	count := parseSelect(t, query.From("Demo").Count(lambda.MustParse("d => d.Id > 5")))
	require.NotNil(t, count.Aggregate)
	assert.Equal(t, query.OpCount, count.Aggregate.Kind)
	assert.Len(t, count.Where, 1)

	sum := parseSelect(t, query.From("Demo").Select(lambda.MustParse("d => d.Id")).Sum())
	require.NotNil(t, sum.Aggregate.Selector)
	assert.Equal(t, "(t) => t.Id", sum.Aggregate.Selector.String())
}

func TestParseJoins(t *testing.T) {
	sel := parseSelect(t, query.From("Order").
		GroupJoin("Client",
			lambda.MustParse("o => o.ClientId"),
			lambda.MustParse("c => c.Id"),
			lambda.MustParse("(o, c) => new { o.Id, c.Name }")).
		DefaultIfEmpty())

	require.Len(t, sel.Joins, 1)
	assert.Equal(t, query.LeftJoin, sel.Joins[0].Kind)
	assert.Equal(t, "Client", sel.Joins[0].Entity)
	assert.Equal(t, "Client", sel.SourceEntity(1))
	require.NotNil(t, sel.Select)
	assert.Len(t, sel.Select.Params, 2)

	_, err := ParseSelect(query.From("Order").DefaultIfEmpty(), models)
	assert.True(t, query.IsUnsupported(err), "got %v", err)
}

func TestParseCollectionIsSplit(t *testing.T) {
	sel := parseSelect(t, query.From("Client").
		Include(lambda.MustParse("c => c.Orders")).
		OrderBy(lambda.MustParse("c => c.Name")).
		Take(1))

	assert.True(t, sel.HasMany)
	require.NotNil(t, sel.SubQuery)
	inner := sel.SubQuery
	assert.True(t, inner.SubQueryOfMany)
	assert.Equal(t, 1, inner.Take)
	assert.Len(t, inner.OrderBy, 1, "paged parents keep their order")
	assert.Empty(t, inner.Includes)

	plain := parseSelect(t, query.From("Order").Include(lambda.MustParse("o => o.Client")))
	assert.False(t, plain.HasMany)

	_, err := ParseSelect(query.From("Client").Include(lambda.MustParse("c => c.Orders")).Take(1).Where(lambda.MustParse("c => c.Id > 0")), models)
	assert.True(t, query.IsUnsupported(err), "got %v", err)
}

func TestParseStatements(t *testing.T) {
	info, err := Parse(query.InsertEntity(testmodel.Demo{Code: "c"}), models)
	require.NoError(t, err)
	ins := info.(*query.InsertInfo)
	assert.Equal(t, testmodel.Demo{Code: "c"}, ins.Entity)

	info, err = Parse(query.From("Demo").Where(lambda.MustParse("d => d.Id > 1")).Insert("Demo"), models)
	require.NoError(t, err)
	assert.Equal(t, "Demo", info.(*query.InsertInfo).Into)

	info, err = Parse(query.From("Demo").Update(lambda.MustParse(`d => new Demo { Name = "x" }`)), models)
	require.NoError(t, err)
	upd := info.(*query.UpdateInfo)
	require.NotNil(t, upd.Select)
	assert.IsType(t, query.ObjectInit{}, upd.Expr.Body)

	info, err = Parse(query.From("Demo").Delete(), models)
	require.NoError(t, err)
	assert.NotNil(t, info.(*query.DeleteInfo).Select)

	_, err = Parse(query.From("Demo").Update(lambda.MustParse(`d => d.Name`)), models)
	assert.True(t, query.IsUnsupported(err), "got %v", err)

	_, err = Parse(query.From("Demo").Take(2).Where(lambda.MustParse("d => d.Id > 1")).Update(lambda.MustParse(`d => new Demo { Name = "x" }`)), models)
	assert.True(t, query.IsUnsupported(err), "got %v", err)

	_, err = Parse(query.From("Demo").Count().Insert("Demo"), models)
	assert.Error(t, err)
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		seq  query.Sequence
	}{
		{"empty", query.Sequence{}},
		{"no source", query.Sequence{{Kind: query.OpWhere}}},
		{"negative take", query.From("Demo").Take(-1)},
		{"after aggregate", query.From("Demo").Count().Where(lambda.MustParse("d => d.Id > 1"))},
		{"union of scalar", query.From("Demo").Union(query.From("Demo").Count())},
		{"grouped without select", query.From("Demo").GroupBy(lambda.MustParse("d => d.Code"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.seq, models)
			assert.Error(t, err)
		})
	}
}
