package compile

import (
	"reflect"
	"strings"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

func (st *state) delete(info *query.DeleteInfo) ([]pendingCommand, error) {
	if info.Select == nil {
		return st.deleteEntities(info.Entity)
	}
	f, err := st.filter(info.Select, query.OpDelete, nil)
	if err != nil {
		return nil, err
	}
	table := st.d.QuoteIdentifier(f.ent.Table)
	tb := &TextBuilder{}
	switch {
	case !f.joined:
		tb.Line("DELETE FROM ", table)
		f.whereLine(tb)
	case st.d.RowID() == "":
		tb.Line("DELETE ", f.s.sources[0].alias)
		f.s.writeFrom(tb)
		f.whereLine(tb)
	default:
		rowID := st.d.RowID()
		rows := &TextBuilder{}
		rows.Line("SELECT ", f.s.sources[0].alias, ".", rowID)
		f.s.writeFrom(rows)
		f.whereLine(rows)
		tb.Line("DELETE FROM ", table)
		tb.Block("WHERE "+rowID+" IN (", rows, ")")
	}
	return []pendingCommand{{text: tb.String(), kind: query.KindExec}}, nil
}

// deleteEntities deletes one entity or a slice of entities by key. A single
// key column becomes IN lists; composite keys get one command per entity.
func (st *state) deleteEntities(v any) ([]pendingCommand, error) {
	ent, err := st.provider.EntityOf(v)
	if err != nil {
		return nil, err
	}
	keys := ent.Keys()
	if len(keys) == 0 {
		return nil, &query.ConstraintViolationError{Entity: ent.Name, Reason: "delete needs a key column"}
	}
	var items []any
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			items = append(items, rv.Index(i).Interface())
		}
	} else {
		items = []any{v}
	}
	if len(items) == 0 {
		return nil, query.Unsupported(string(query.OpDelete), "no %s rows to delete", ent.Name)
	}

	table := st.d.QuoteIdentifier(ent.Table)
	if len(keys) > 1 || len(items) == 1 {
		cmds := make([]pendingCommand, len(items))
		for i, item := range items {
			where, err := st.keyCondition(ent, keys, item)
			if err != nil {
				return nil, err
			}
			cmds[i] = deleteWhere(table, where)
		}
		return cmds, nil
	}
	return st.deleteIn(ent, keys[0], items)
}

func (st *state) deleteIn(ent *meta.Entity, key *meta.Column, items []any) ([]pendingCommand, error) {
	table := st.d.QuoteIdentifier(ent.Table)
	col := st.d.QuoteIdentifier(key.Name)
	var cmds []pendingCommand
	var values []string
	params := 0
	flush := func() {
		if len(values) == 0 {
			return
		}
		cmds = append(cmds, deleteWhere(table, col+" IN ("+strings.Join(values, ", ")+")"))
		values, params = nil, 0
	}
	for _, item := range items {
		val, err := ent.Value(item, key.Field)
		if err != nil {
			return nil, err
		}
		if val == nil {
			return nil, &query.ConstraintViolationError{Entity: ent.Name, Reason: "key " + key.Field + " is nil"}
		}
		lit, err := st.f.Format(val, key)
		if err != nil {
			return nil, err
		}
		n := countTokens(lit)
		if len(values) > 0 && (params+n > st.c.maxParams || len(values) == maxRows) {
			flush()
		}
		values = append(values, lit)
		params += n
	}
	flush()
	return cmds, nil
}

func deleteWhere(table, where string) pendingCommand {
	tb := &TextBuilder{}
	tb.Line("DELETE FROM ", table)
	tb.Line("WHERE ", where)
	return pendingCommand{text: tb.String(), kind: query.KindExec}
}
