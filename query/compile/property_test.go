package compile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shipq/opsql/internal/testmodel"
	"github.com/shipq/opsql/proptest"
	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/lambda"
)

// randomDemoQuery builds a query over Demo from random filters and paging.
func randomDemoQuery(g *proptest.Generator) (query.Sequence, string) {
	seq := query.From("Demo")
	var desc []string
	for i := g.Intn(3); i > 0; i-- {
		switch g.Intn(3) {
		case 0:
			n := g.IntRange(0, 20)
			seq = seq.Where(lambda.MustParse(fmt.Sprintf("d => d.Id <= %d", n)))
			desc = append(desc, fmt.Sprintf("Id<=%d", n))
		case 1:
			s := g.SQLString()
			seq = seq.Where(lambda.MustParse("d => d.Name == $s", map[string]any{"s": s}))
			desc = append(desc, fmt.Sprintf("Name==%q", s))
		default:
			s := g.SQLString()
			seq = seq.Where(lambda.MustParse("d => d.Code.Contains($s)", map[string]any{"s": s}))
			desc = append(desc, fmt.Sprintf("Code~%q", s))
		}
	}
	if g.Bool() {
		seq = seq.OrderBy(lambda.MustParse("d => d.Code"))
		desc = append(desc, "OrderBy")
	}
	if g.Bool() {
		n := g.IntRange(1, 5)
		seq = seq.Skip(n)
		desc = append(desc, fmt.Sprintf("Skip %d", n))
	}
	if g.Bool() {
		n := g.IntRange(1, 5)
		seq = seq.Take(n)
		desc = append(desc, fmt.Sprintf("Take %d", n))
	}
	return seq, strings.Join(desc, ", ")
}

func placeholderCount(d Dialect, text string, params int) int {
	n := 0
	for i := 0; i < params; i++ {
		if strings.Contains(text, d.Placeholder(i)) {
			n++
		}
	}
	return n
}

func TestPropertyCompileIsDeterministic(t *testing.T) {
	proptest.CheckWithLabel(t, "deterministic", proptest.Config{NumTrials: 200}, func(g *proptest.Generator) (string, bool) {
		seq, desc := randomDemoQuery(g)
		d := proptest.Pick(g, Dialects())
		c := NewCompiler(d, testmodel.Registry(), WithParameterized(g.Bool()))
		a, errA := c.CompileQuery(seq)
		b, errB := c.CompileQuery(seq)
		if errA != nil || errB != nil {
			return fmt.Sprintf("%s on %s: %v / %v", desc, d.Name(), errA, errB), false
		}
		return desc + " on " + d.Name(), a.Text == b.Text && len(a.Parameters) == len(b.Parameters)
	})
}

func TestPropertyParametersAreNumberedInOrder(t *testing.T) {
	proptest.CheckWithLabel(t, "numbered", proptest.Config{NumTrials: 200}, func(g *proptest.Generator) (string, bool) {
		seq, desc := randomDemoQuery(g)
		d := proptest.OneOf[Dialect](g, SQLServer, Oracle, Postgres)
		cmd, err := NewCompiler(d, models).CompileQuery(seq)
		if err != nil {
			return desc + ": " + err.Error(), false
		}
		for i, p := range cmd.Parameters {
			if p.Name != fmt.Sprintf("p%d", i) {
				return desc + ": bad name " + p.Name, false
			}
		}
		if strings.ContainsRune(cmd.Text, 0) {
			return desc + ": unresolved token", false
		}
		return desc, placeholderCount(d, cmd.Text, len(cmd.Parameters)) == len(cmd.Parameters)
	})
}

func TestPropertyLiteralsAreQuoted(t *testing.T) {
	proptest.CheckWithLabel(t, "quoted", proptest.Config{NumTrials: 200}, func(g *proptest.Generator) (string, bool) {
		s := g.SQLString()
		d := proptest.Pick(g, Dialects())
		seq := query.From("Demo").Where(lambda.MustParse("d => d.Name == $s", map[string]any{"s": s}))
		cmd, err := NewCompiler(d, models, WithParameterized(false)).CompileQuery(seq)
		if err != nil {
			return err.Error(), false
		}
		lit := d.FormatString(s, false)
		return fmt.Sprintf("%q on %s", s, d.Name()), strings.HasSuffix(cmd.Text, " = "+lit) && len(cmd.Parameters) == 0
	})
}
