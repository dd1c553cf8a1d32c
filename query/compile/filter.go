package compile

import (
	"strconv"
	"strings"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

// assignment is one SET item of an update.
type assignment struct {
	col *meta.Column
	val fragment
}

// filtered is the row selection of an UPDATE or DELETE over a query: the
// scope holding its sources, the WHERE condition and the assignments.
type filtered struct {
	s     *scope
	ent   *meta.Entity
	where string
	sets  []assignment
	// joined is set when the rows cannot be addressed through the target
	// table alone: explicit joins, navigation joins or correlated subqueries.
	joined bool
}

func checkFilter(sel *query.SelectInfo, op query.OpKind) error {
	switch {
	case sel.SubQuery != nil, sel.HasMany:
		return query.Unsupported(string(op), "cannot %s a derived table", strings.ToLower(string(op)))
	case sel.Paged():
		return query.Unsupported(string(op), "Skip and Take")
	case sel.GroupBy != nil:
		return query.Unsupported(string(op), "GroupBy")
	case sel.Distinct:
		return query.Unsupported(string(op), "Distinct")
	case len(sel.Unions) > 0:
		return query.Unsupported(string(op), "Union")
	case sel.Aggregate != nil, sel.Any:
		return query.Unsupported(string(op), "aggregates")
	}
	return nil
}

// filter compiles sel's sources, conditions and, for updates, the
// assignments of set. It first compiles with aliases; when nothing beyond
// the target table is involved it compiles again without them.
func (st *state) filter(sel *query.SelectInfo, op query.OpKind, set *query.Lambda) (*filtered, error) {
	if err := checkFilter(sel, op); err != nil {
		return nil, err
	}
	f, err := st.compileFilter(sel, set, false)
	if err != nil {
		return nil, err
	}
	if f.joined {
		return f, nil
	}
	return st.compileFilter(sel, set, true)
}

func (st *state) compileFilter(sel *query.SelectInfo, set *query.Lambda, bare bool) (*filtered, error) {
	s := st.newScope(NewAliasTable())
	children := st.children
	f := &filtered{s: s}
	var err error
	if bare {
		f.ent, err = s.addTable(sel.From, "")
	} else if _, err = s.sourceLevel(sel); err == nil {
		f.ent = s.sources[0].entity
	}
	if err != nil {
		return nil, err
	}
	if set != nil {
		if f.sets, err = s.assignments(f.ent, set); err != nil {
			return nil, err
		}
	}
	if len(sel.Where) > 0 {
		if f.where, err = s.conditions(sel.Where); err != nil {
			return nil, err
		}
	}
	f.joined = s.hasJoins() || st.children != children
	return f, nil
}

// assignments renders the member bindings of l, which builds an object of
// the target entity.
func (s *scope) assignments(target *meta.Entity, l *query.Lambda) ([]assignment, error) {
	oi, ok := l.Body.(query.ObjectInit)
	if !ok {
		return nil, query.Unsupported(string(query.OpUpdate), "update lambda must build an object, got %s", l.Body)
	}
	if len(oi.Bindings) == 0 {
		return nil, query.Unsupported(string(query.OpUpdate), "update sets no members")
	}
	s.bind(l)
	out := make([]assignment, len(oi.Bindings))
	for i, b := range oi.Bindings {
		c := target.Column(b.Field)
		if c == nil {
			return nil, &query.MappingError{Path: b.Field, Entity: target.Name}
		}
		v, err := s.valueWith(b.Value, c)
		if err != nil {
			return nil, err
		}
		out[i] = assignment{col: c, val: v}
	}
	return out, nil
}

// keyColumns returns the columns identifying rows of e in a derived row
// selection, falling back to the dialect's row id.
func (st *state) keyColumns(e *meta.Entity) []string {
	var names []string
	for _, k := range e.Keys() {
		names = append(names, st.d.QuoteIdentifier(k.Name))
	}
	if len(names) == 0 && st.d.RowID() != "" {
		names = []string{st.d.RowID()}
	}
	return names
}

func keyAlias(i int) string   { return "Key" + strconv.Itoa(i) }
func valueAlias(i int) string { return "Value" + strconv.Itoa(i) }
