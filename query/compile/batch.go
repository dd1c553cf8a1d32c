package compile

import (
	"strconv"
	"strings"

	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/parse"
)

// Batch compiles several statements for execution in as few round trips as
// the dialect allows. A nil statement ends the current round trip.
//
// Consecutive row-count statements are merged into one command while their
// combined parameters stay within the limit. Queries, scalars and commands
// with output parameters always run on their own.
func (c *Compiler) Batch(stmts ...query.Statement) ([]*query.Command, error) {
	st := c.newState()
	var out []*query.Command
	var group []pendingCommand
	params := 0
	flush := func() {
		if len(group) == 0 {
			return
		}
		p := group[0]
		if len(group) > 1 {
			texts := make([]string, len(group))
			for i, g := range group {
				texts[i] = g.text
			}
			p = pendingCommand{text: c.dialect.BatchWrap(texts), kind: query.KindExec}
		}
		out = append(out, st.finish(p))
		group, params = nil, 0
	}

	for i, stmt := range stmts {
		var pending []pendingCommand
		switch v := stmt.(type) {
		case nil:
			flush()
			continue
		case query.Sequence:
			info, err := parse.Parse(v, c.provider)
			if err != nil {
				return nil, err
			}
			if pending, err = st.statement(info); err != nil {
				return nil, err
			}
		case query.Raw:
			pending = []pendingCommand{st.raw(v)}
		case *query.Raw:
			pending = []pendingCommand{st.raw(*v)}
		default:
			return nil, query.Unsupported("batch", "statement %d has type %T", i, stmt)
		}

		for _, p := range pending {
			if !c.dialect.MergesBatches() || p.kind != query.KindExec || st.hasOutput(p.text) {
				flush()
				out = append(out, st.finish(p))
				continue
			}
			n := countTokens(p.text)
			if len(group) > 0 && params+n > c.maxParams {
				flush()
			}
			group = append(group, p)
			params += n
		}
	}
	flush()
	return out, nil
}

// raw substitutes {i} placeholders with the formatted arguments.
func (st *state) raw(r query.Raw) pendingCommand {
	pairs := make([]string, 0, 2*len(r.Args))
	for i, a := range r.Args {
		lit, err := st.f.Format(a, nil)
		if err != nil {
			lit = st.f.Bind(a, "", nil)
		}
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", lit)
	}
	text := r.Text
	if len(pairs) > 0 {
		text = strings.NewReplacer(pairs...).Replace(text)
	}
	return pendingCommand{text: text, kind: query.KindExec}
}
