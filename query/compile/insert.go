package compile

import (
	"reflect"
	"strings"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

func (st *state) insert(info *query.InsertInfo) ([]pendingCommand, error) {
	if info.Select != nil {
		cmd, err := st.insertSelect(info)
		if err != nil {
			return nil, err
		}
		return []pendingCommand{cmd}, nil
	}
	ent, err := st.provider.EntityOf(info.Entity)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(info.Entity)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return st.insertMany(ent, rv)
	}
	cmd, err := st.insertOne(ent, info.Entity)
	if err != nil {
		return nil, err
	}
	return []pendingCommand{cmd}, nil
}

// sequenceNext renders the next value of the sequence feeding an identity.
func (st *state) sequenceNext(ent *meta.Entity, id *meta.Column) string {
	seq := id.Sequence
	if seq == "" {
		seq = ent.Table + "_SEQ"
	}
	return st.d.QuoteIdentifier(seq) + ".NEXTVAL"
}

// values renders the insert values of v, skipping the identity column.
func (st *state) values(ent *meta.Entity, v any) ([]string, error) {
	var out []string
	for _, c := range ent.Columns {
		if c.Identity {
			continue
		}
		val, err := ent.Value(v, c.Field)
		if err != nil {
			return nil, err
		}
		lit, err := st.f.FormatWithDefault(val, c)
		if err != nil {
			return nil, err
		}
		out = append(out, lit)
	}
	return out, nil
}

func (st *state) insertColumns(ent *meta.Entity) []string {
	var names []string
	for _, c := range ent.Columns {
		if !c.Identity {
			names = append(names, st.d.QuoteIdentifier(c.Name))
		}
	}
	return names
}

func (st *state) insertOne(ent *meta.Entity, v any) (pendingCommand, error) {
	names := st.insertColumns(ent)
	values, err := st.values(ent, v)
	if err != nil {
		return pendingCommand{}, err
	}
	id := ent.Identity()
	if id != nil && st.d.Identity() == IdentitySequence {
		names = append([]string{st.d.QuoteIdentifier(id.Name)}, names...)
		values = append([]string{st.sequenceNext(ent, id)}, values...)
	}
	if len(names) == 0 {
		return pendingCommand{}, query.Unsupported(string(query.OpInsert), "%s has no insertable columns", ent.Name)
	}

	tb := &TextBuilder{}
	tb.Line("INSERT INTO ", st.d.QuoteIdentifier(ent.Table), " (", strings.Join(names, ", "), ")")
	tb.Line("VALUES (", strings.Join(values, ", "), ")")
	kind := query.KindExec
	if id != nil {
		switch st.d.Identity() {
		case IdentityOutput:
			tb.Append(";")
			tb.Line("SET ", st.f.Output(outputType(id)), " = SCOPE_IDENTITY()")
		case IdentitySequence:
			tb.Line("RETURNING ", st.d.QuoteIdentifier(id.Name), " INTO ", st.f.Output(outputType(id)))
		case IdentityReturning:
			tb.Line("RETURNING ", st.d.QuoteIdentifier(id.Name))
			kind = query.KindScalar
		case IdentityLastInsertID:
			kind = query.KindIdentity
		}
	}
	return pendingCommand{text: tb.String(), kind: kind}, nil
}

// insertMany writes multi-row inserts, starting a new command before a row
// that would exceed the parameter limit or the row limit.
func (st *state) insertMany(ent *meta.Entity, rv reflect.Value) ([]pendingCommand, error) {
	if rv.Len() == 0 {
		return nil, query.Unsupported(string(query.OpInsert), "no %s rows to insert", ent.Name)
	}
	names := st.insertColumns(ent)
	if len(names) == 0 {
		return nil, query.Unsupported(string(query.OpInsert), "%s has no insertable columns", ent.Name)
	}
	oracle := st.d.Identity() == IdentitySequence
	id := ent.Identity()

	var cmds []pendingCommand
	var rows []string
	params := 0
	flush := func() {
		if len(rows) == 0 {
			return
		}
		tb := &TextBuilder{}
		switch {
		case oracle && id != nil:
			cols := append([]string{st.d.QuoteIdentifier(id.Name)}, names...)
			tb.Line("INSERT INTO ", st.d.QuoteIdentifier(ent.Table), " (", strings.Join(cols, ", "), ")")
			tb.Line("SELECT ", st.sequenceNext(ent, id), ", t0.*")
			tb.Block("FROM (", dualUnion(rows), ") t0")
		case oracle:
			tb.Line("INSERT INTO ", st.d.QuoteIdentifier(ent.Table), " (", strings.Join(names, ", "), ")")
			tb.lines = append(tb.lines, dualUnion(rows).lines...)
		default:
			tb.Line("INSERT INTO ", st.d.QuoteIdentifier(ent.Table), " (", strings.Join(names, ", "), ")")
			tb.Line("VALUES")
			for i, r := range rows {
				if i < len(rows)-1 {
					r += ","
				}
				tb.Line(indentUnit, r)
			}
		}
		cmds = append(cmds, pendingCommand{text: tb.String(), kind: query.KindExec})
		rows, params = nil, 0
	}

	for i := 0; i < rv.Len(); i++ {
		values, err := st.values(ent, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		row := "(" + strings.Join(values, ", ") + ")"
		if oracle {
			row = strings.Join(values, ", ")
		}
		n := countTokens(row)
		if len(rows) > 0 && (params+n > st.c.maxParams || len(rows) == maxRows) {
			flush()
		}
		rows = append(rows, row)
		params += n
	}
	flush()
	return cmds, nil
}

func dualUnion(rows []string) *TextBuilder {
	tb := &TextBuilder{}
	for i, r := range rows {
		if i > 0 {
			tb.Line("UNION ALL")
		}
		tb.Line("SELECT ", r, " FROM DUAL")
	}
	return tb
}

// insertSelect writes INSERT INTO ... SELECT, mapping each projected path to
// a column of the target entity.
func (st *state) insertSelect(info *query.InsertInfo) (pendingCommand, error) {
	target, err := st.provider.Entity(info.Into)
	if err != nil {
		return pendingCommand{}, err
	}
	sel, p, err := st.selectLevel(info.Select, levelOperand)
	if err != nil {
		return pendingCommand{}, err
	}
	visible := p.visible()
	wrap := len(visible) != len(p.cols)
	var names, picked []string
	for _, c := range visible {
		tc := target.Column(c.path)
		if tc == nil {
			return pendingCommand{}, &query.MappingError{Path: c.path, Entity: target.Name}
		}
		if tc.Identity {
			wrap = true
			continue
		}
		names = append(names, st.d.QuoteIdentifier(tc.Name))
		picked = append(picked, "t0."+st.d.QuoteIdentifier(c.name))
	}
	if len(names) == 0 {
		return pendingCommand{}, query.Unsupported(string(query.OpInsert), "nothing to insert into %s", target.Name)
	}

	tb := &TextBuilder{}
	tb.Line("INSERT INTO ", st.d.QuoteIdentifier(target.Table), " (", strings.Join(names, ", "), ")")
	if wrap {
		tb.Line("SELECT ", strings.Join(picked, ", "))
		tb.Block("FROM (", sel, ") t0")
	} else {
		tb.lines = append(tb.lines, sel.lines...)
	}
	return pendingCommand{text: tb.String(), kind: query.KindExec}, nil
}

// outputType is the parameter type of a generated identity.
func outputType(c *meta.Column) string {
	if c.DBType != "" {
		return c.DBType
	}
	if c.GoType != nil {
		t := c.GoType
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		switch t.Kind() {
		case reflect.Int32, reflect.Uint32:
			return "Int32"
		case reflect.Int16, reflect.Uint16:
			return "Int16"
		}
	}
	return "Int64"
}
