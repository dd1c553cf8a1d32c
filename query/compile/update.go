package compile

import (
	"strings"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

func (st *state) update(info *query.UpdateInfo) ([]pendingCommand, error) {
	var cmd pendingCommand
	var err error
	if info.Select != nil {
		cmd, err = st.updateSelect(info.Select, info.Expr)
	} else {
		cmd, err = st.updateEntity(info.Entity)
	}
	if err != nil {
		return nil, err
	}
	return []pendingCommand{cmd}, nil
}

// keyCondition renders key = value for every key of ent read from v.
func (st *state) keyCondition(ent *meta.Entity, keys []*meta.Column, v any) (string, error) {
	conds := make([]string, len(keys))
	for i, k := range keys {
		val, err := ent.Value(v, k.Field)
		if err != nil {
			return "", err
		}
		if val == nil {
			return "", &query.ConstraintViolationError{Entity: ent.Name, Reason: "key " + k.Field + " is nil"}
		}
		lit, err := st.f.Format(val, k)
		if err != nil {
			return "", err
		}
		conds[i] = st.d.QuoteIdentifier(k.Name) + " = " + lit
	}
	return strings.Join(conds, " AND "), nil
}

func (st *state) updateEntity(v any) (pendingCommand, error) {
	ent, err := st.provider.EntityOf(v)
	if err != nil {
		return pendingCommand{}, err
	}
	keys := ent.Keys()
	if len(keys) == 0 {
		return pendingCommand{}, &query.ConstraintViolationError{Entity: ent.Name, Reason: "update needs a key column"}
	}
	var sets []string
	for _, c := range ent.Columns {
		if c.Key || c.Identity {
			continue
		}
		val, err := ent.Value(v, c.Field)
		if err != nil {
			return pendingCommand{}, err
		}
		lit, err := st.f.FormatWithDefault(val, c)
		if err != nil {
			return pendingCommand{}, err
		}
		sets = append(sets, st.d.QuoteIdentifier(c.Name)+" = "+lit)
	}
	if len(sets) == 0 {
		return pendingCommand{}, query.Unsupported(string(query.OpUpdate), "%s has only key columns", ent.Name)
	}
	where, err := st.keyCondition(ent, keys, v)
	if err != nil {
		return pendingCommand{}, err
	}
	tb := &TextBuilder{}
	tb.Line("UPDATE ", st.d.QuoteIdentifier(ent.Table))
	tb.Line("SET ", strings.Join(sets, ", "))
	tb.Line("WHERE ", where)
	return pendingCommand{text: tb.String(), kind: query.KindExec}, nil
}

func (st *state) updateSelect(sel *query.SelectInfo, set *query.Lambda) (pendingCommand, error) {
	if set == nil {
		return pendingCommand{}, query.Unsupported(string(query.OpUpdate), "update of a query needs a lambda")
	}
	f, err := st.filter(sel, query.OpUpdate, set)
	if err != nil {
		return pendingCommand{}, err
	}
	var tb *TextBuilder
	if !f.joined {
		tb = &TextBuilder{}
		tb.Line("UPDATE ", st.d.QuoteIdentifier(f.ent.Table))
		tb.Line("SET ", f.setList("", func(a assignment, _ int) string { return a.val.sql }))
		if f.where != "" {
			tb.Line("WHERE ", f.where)
		}
		return pendingCommand{text: tb.String(), kind: query.KindExec}, nil
	}

	switch st.d.Update() {
	case UpdateFromJoin:
		tb = st.updateFromJoin(f)
	case UpdateJoin:
		tb = st.updateJoin(f)
	case UpdateFromDerived:
		tb, err = st.updateFromDerived(f)
	case UpdateMerge:
		tb, err = st.updateMerge(f)
	}
	if err != nil {
		return pendingCommand{}, err
	}
	return pendingCommand{text: tb.String(), kind: query.KindExec}, nil
}

// setList renders the SET items, qualifying the target columns with alias.
func (f *filtered) setList(alias string, value func(assignment, int) string) string {
	parts := make([]string, len(f.sets))
	for i, a := range f.sets {
		parts[i] = f.s.columnRef(alias, a.col.Name) + " = " + value(a, i)
	}
	return strings.Join(parts, ", ")
}

func (f *filtered) whereLine(tb *TextBuilder) {
	if f.where != "" {
		tb.Line("WHERE ", f.where)
	}
}

func (st *state) updateFromJoin(f *filtered) *TextBuilder {
	tb := &TextBuilder{}
	root := f.s.sources[0].alias
	tb.Line("UPDATE ", root)
	tb.Line("SET ", f.setList("", func(a assignment, _ int) string { return a.val.sql }))
	f.s.writeFrom(tb)
	f.whereLine(tb)
	return tb
}

func (st *state) updateJoin(f *filtered) *TextBuilder {
	tb := &TextBuilder{}
	root := f.s.sources[0].alias
	tb.Line("UPDATE ", st.d.QuoteIdentifier(f.ent.Table), " ", root)
	from := &TextBuilder{}
	f.s.writeFrom(from)
	tb.lines = append(tb.lines, from.lines[1:]...)
	tb.Line("SET ", f.setList(root, func(a assignment, _ int) string { return a.val.sql }))
	f.whereLine(tb)
	return tb
}

// derivedRows selects the key columns and the new values of every matched
// row, named Key<i> and Value<i>.
func (st *state) derivedRows(f *filtered) (*TextBuilder, []string, error) {
	keys := st.keyColumns(f.ent)
	if len(keys) == 0 {
		return nil, nil, query.Unsupported(string(query.OpUpdate), "%s has no key to match joined rows", f.ent.Name)
	}
	root := f.s.sources[0].alias
	items := make([]string, 0, len(keys)+len(f.sets))
	for i, k := range keys {
		items = append(items, root+"."+k+" AS "+st.d.QuoteIdentifier(keyAlias(i)))
	}
	for i, a := range f.sets {
		items = append(items, a.val.sql+" AS "+st.d.QuoteIdentifier(valueAlias(i)))
	}
	tb := &TextBuilder{}
	tb.Line("SELECT ", strings.Join(items, ", "))
	f.s.writeFrom(tb)
	f.whereLine(tb)
	return tb, keys, nil
}

func (st *state) updateFromDerived(f *filtered) (*TextBuilder, error) {
	rows, keys, err := st.derivedRows(f)
	if err != nil {
		return nil, err
	}
	table := st.d.QuoteIdentifier(f.ent.Table)
	tb := &TextBuilder{}
	tb.Line("UPDATE ", table)
	tb.Line("SET ", f.setList("", func(_ assignment, i int) string {
		return "t0." + st.d.QuoteIdentifier(valueAlias(i))
	}))
	tb.Block("FROM (", rows, ") t0")
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = table + "." + k + " = t0." + st.d.QuoteIdentifier(keyAlias(i))
	}
	tb.Line("WHERE ", strings.Join(conds, " AND "))
	return tb, nil
}

func (st *state) updateMerge(f *filtered) (*TextBuilder, error) {
	rows, keys, err := st.derivedRows(f)
	if err != nil {
		return nil, err
	}
	tb := &TextBuilder{}
	tb.Line("MERGE INTO ", st.d.QuoteIdentifier(f.ent.Table), " t0")
	tb.Block("USING (", rows, ") t1")
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = "t0." + k + " = t1." + st.d.QuoteIdentifier(keyAlias(i))
	}
	tb.Line("ON (", strings.Join(conds, " AND "), ")")
	tb.Line("WHEN MATCHED THEN UPDATE SET ", f.setList("t0", func(_ assignment, i int) string {
		return "t1." + st.d.QuoteIdentifier(valueAlias(i))
	}))
	return tb, nil
}
