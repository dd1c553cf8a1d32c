package compile

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

// cursor is a row source reached while resolving a member chain: a table
// (entity set) or a derived table (plan set). prefix locates the row inside
// the plan; byKey makes it a key prefix instead of a path prefix.
type cursor struct {
	alias  string
	entity *meta.Entity
	plan   *plan
	prefix string
	byKey  bool
}

func (c cursor) lookup(at string) *column {
	if c.byKey {
		return c.plan.byKey[at]
	}
	return c.plan.byPath[at]
}

// contains reports whether the plan has columns below at.
func (c cursor) contains(at string) bool {
	if _, ok := c.plan.entities[at]; ok {
		return true
	}
	for _, col := range c.plan.cols {
		p := col.path
		if c.byKey {
			p = col.key
		} else if col.hidden {
			continue
		}
		if strings.HasPrefix(p, at+".") {
			return true
		}
	}
	return false
}

// ref is what a member chain resolves to: a column, a row, or a collection
// navigation of a row.
type ref struct {
	cursor

	sql  string
	bare string
	col  *meta.Column
	typ  reflect.Type

	many    *meta.Navigation
	manyKey string
	owner   cursor
}

func (r *ref) isColumn() bool { return r.sql != "" }

func (r *ref) fragment() fragment {
	return fragment{sql: r.sql, prec: precAtom, typ: r.typ, col: r.col, bare: r.bare}
}

// scope resolves lambda parameters of one SELECT level (or of a correlated
// subquery inside it) to row sources and collects the navigation joins the
// level's clauses need.
type scope struct {
	st      *state
	d       Dialect
	aliases *AliasTable
	sources []cursor
	pos     query.Positions
	parent  *scope
	prefix  string

	// keyed is the inner plan of a one-to-many split; expressions of the
	// outer level resolve against its columns by key.
	keyed *plan

	from      *TextBuilder
	navJoins  []string
	navigated bool
}

func (st *state) newScope(aliases *AliasTable) *scope {
	return &scope{st: st, d: st.d, aliases: aliases, pos: make(query.Positions), from: &TextBuilder{}}
}

// child returns a scope for a correlated subquery. It shares the alias
// counter and falls back to s for parameters it does not bind.
func (s *scope) child() *scope {
	s.st.children++
	c := s.st.newScope(s.aliases)
	c.parent = s
	c.prefix = "s" + strconv.Itoa(s.st.children) + ":"
	return c
}

// bind assigns the parameters of l to their positions.
func (s *scope) bind(l *query.Lambda) {
	if l == nil {
		return
	}
	for i, p := range l.Params {
		s.pos[p] = i
	}
}

func (s *scope) columnRef(alias, name string) string {
	if alias == "" {
		return s.d.QuoteIdentifier(name)
	}
	return alias + "." + s.d.QuoteIdentifier(name)
}

func (s *scope) mapping(e query.Expr, entity *meta.Entity) error {
	err := &query.MappingError{Path: e.String()}
	if entity != nil {
		err.Entity = entity.Name
	}
	return err
}

// resolve follows a member chain from a bound parameter, joining the
// navigations it crosses.
func (s *scope) resolve(e query.Expr) (*ref, error) {
	root, names := query.RootParam(e)
	if root == nil {
		return nil, query.Unsupported("member", "%s is not a member chain", e)
	}
	i, ok := s.pos[root]
	if !ok {
		if s.parent != nil {
			return s.parent.resolve(e)
		}
		return nil, query.Unsupported("parameter", "%s is not in scope", root.Name)
	}
	if i >= len(s.sources) {
		return nil, query.Unsupported("parameter", "%s has no row source", root.Name)
	}
	cur := s.sources[i]
	key := "#" + strconv.Itoa(i)
	if cur.byKey {
		cur.prefix = key
	}
	if len(names) == 0 && cur.plan != nil && cur.plan.scalar && !cur.byKey {
		if c := cur.plan.byPath[""]; c != nil {
			return &ref{cursor: cur, sql: s.columnRef(cur.alias, c.name), bare: c.name, col: c.meta, typ: c.typ}, nil
		}
	}
	for n, name := range names {
		last := n == len(names)-1
		var nav *meta.Navigation
		if cur.plan != nil {
			at := joinPath(cur.prefix, name)
			if c := cur.lookup(at); c != nil {
				if !last {
					return nil, s.mapping(e, nil)
				}
				return &ref{cursor: cur, sql: s.columnRef(cur.alias, c.name), bare: c.name, col: c.meta, typ: c.typ}, nil
			}
			if cur.contains(at) {
				cur.prefix = at
				key += "." + name
				continue
			}
			if ent := cur.plan.entities[cur.prefix]; ent != nil {
				nav = ent.Navigation(name)
			}
			if nav == nil {
				return nil, s.mapping(e, cur.plan.entities[cur.prefix])
			}
		} else {
			if c := cur.entity.Column(name); c != nil {
				if !last {
					return nil, s.mapping(e, cur.entity)
				}
				return &ref{cursor: cur, sql: s.columnRef(cur.alias, c.Name), bare: c.Name, col: c, typ: c.GoType}, nil
			}
			if nav = cur.entity.Navigation(name); nav == nil {
				return nil, s.mapping(e, cur.entity)
			}
		}
		key += "." + name
		if nav.Many {
			if !last {
				return nil, query.Unsupported("member", "%s: members of collection %s", e, name)
			}
			return &ref{many: nav, manyKey: key, owner: cur}, nil
		}
		alias, target, err := s.navJoin(cur, key, nav)
		if err != nil {
			return nil, err
		}
		cur = cursor{alias: alias, entity: target}
	}
	return &ref{cursor: cur}, nil
}

// localRef renders the member field of the row at owner.
func (s *scope) localRef(owner cursor, field string) (string, error) {
	if owner.plan != nil {
		c := owner.lookup(joinPath(owner.prefix, field))
		if c == nil {
			return "", &query.MappingError{Path: joinPath(owner.prefix, field)}
		}
		return s.columnRef(owner.alias, c.name), nil
	}
	c := owner.entity.Column(field)
	if c == nil {
		return "", &query.MappingError{Path: field, Entity: owner.entity.Name}
	}
	return s.columnRef(owner.alias, c.Name), nil
}

// navJoin returns the alias joining nav from owner, adding a LEFT JOIN on
// first use. An explicit join to the same table on the same keys is reused.
func (s *scope) navJoin(owner cursor, key string, nav *meta.Navigation) (string, *meta.Entity, error) {
	target, err := s.st.provider.Entity(nav.Target)
	if err != nil {
		return "", nil, err
	}
	if alias, ok := s.aliases.Navigation(s.prefix + key); ok {
		return alias, target, nil
	}
	locals := make([]string, len(nav.Keys))
	foreign := make([]string, len(nav.Keys))
	for i, kp := range nav.Keys {
		l, err := s.localRef(owner, kp.Local)
		if err != nil {
			return "", nil, err
		}
		if target.Column(kp.Foreign) == nil {
			return "", nil, &query.MappingError{Path: kp.Foreign, Entity: target.Name}
		}
		locals[i], foreign[i] = l, kp.Foreign
	}
	s.navigated = true
	if alias, ok := s.aliases.Join(joinKey(target.Table, locals, foreign)); ok {
		s.aliases.SetNavigation(s.prefix+key, alias)
		return alias, target, nil
	}
	alias := s.aliases.Next()
	s.aliases.SetNavigation(s.prefix+key, alias)
	conds := make([]string, len(locals))
	for i := range locals {
		conds[i] = s.columnRef(alias, target.Column(foreign[i]).Name) + " = " + locals[i]
	}
	s.navJoins = append(s.navJoins, "LEFT JOIN "+s.d.QuoteIdentifier(target.Table)+" "+alias+" ON "+strings.Join(conds, " AND "))
	return alias, target, nil
}

// =============================================================================
// Sources
// =============================================================================

// addTable makes an entity table the next row source.
func (s *scope) addTable(name, alias string) (*meta.Entity, error) {
	e, err := s.st.provider.Entity(name)
	if err != nil {
		return nil, err
	}
	s.sources = append(s.sources, cursor{alias: alias, entity: e})
	return e, nil
}

// addDerived makes a compiled SELECT the next row source.
func (s *scope) addDerived(p *plan, alias string) {
	s.sources = append(s.sources, cursor{alias: alias, plan: p})
}

// sourceLevel adds info's root source and explicit joins to s, compiling
// derived tables as needed, and writes the FROM and JOIN lines.
func (s *scope) sourceLevel(info *query.SelectInfo) (sub *plan, err error) {
	root := s.aliases.Alias("#0")
	if info.SubQuery != nil {
		tb, p, err := s.st.selectLevel(info.SubQuery, levelNested)
		if err != nil {
			return nil, err
		}
		s.addDerived(p, root)
		s.from.Block("FROM (", tb, ") "+root)
		sub = p
	} else {
		e, err := s.addTable(info.From, root)
		if err != nil {
			return nil, err
		}
		s.from.Line("FROM ", s.d.QuoteIdentifier(e.Table), " ", root)
	}
	for i := range info.Joins {
		s.aliases.Alias("#" + strconv.Itoa(i+1))
	}
	for i, j := range info.Joins {
		if err := s.join(i+1, j); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// join adds the explicit join at pos. Navigation joins its ON clause needs
// are written ahead of it.
func (s *scope) join(pos int, j query.Join) error {
	alias := s.aliases.Alias("#" + strconv.Itoa(pos))
	var table string
	var sub *TextBuilder
	if j.Sub != nil {
		tb, p, err := s.st.selectLevel(j.Sub, levelNested)
		if err != nil {
			return err
		}
		s.addDerived(p, alias)
		sub = tb
	} else {
		e, err := s.addTable(j.Entity, alias)
		if err != nil {
			return err
		}
		table = e.Table
	}

	s.bind(j.OuterKey)
	s.bind(j.InnerKey)
	navs := len(s.navJoins)
	outer, inner := keyParts(j.OuterKey.Body), keyParts(j.InnerKey.Body)
	if len(outer) != len(inner) {
		return query.Unsupported(string(query.OpJoin), "join keys have %d and %d members", len(outer), len(inner))
	}
	conds := make([]string, len(outer))
	var outerSQL, innerFields []string
	for i := range outer {
		o, err := s.value(outer[i])
		if err != nil {
			return err
		}
		in, err := s.value(inner[i])
		if err != nil {
			return err
		}
		conds[i] = in.sql + " = " + o.sql
		if m, ok := inner[i].(query.Member); ok && m.Target == query.Expr(j.InnerKey.Params[pos]) {
			outerSQL = append(outerSQL, o.sql)
			innerFields = append(innerFields, m.Name)
		}
	}
	if table != "" && j.Kind != query.RightJoin {
		for i := range outerSQL {
			s.aliases.RegisterJoin(joinKey(table, outerSQL[i:i+1], innerFields[i:i+1]), alias)
		}
		if len(outerSQL) == len(outer) {
			s.aliases.RegisterJoin(joinKey(table, outerSQL, innerFields), alias)
		}
	}

	for _, nj := range s.navJoins[navs:] {
		s.from.Line(nj)
	}
	s.navJoins = s.navJoins[:navs]

	on := " ON " + strings.Join(conds, " AND ")
	kind := string(j.Kind) + " JOIN "
	if sub != nil {
		s.from.Block(kind+"(", sub, ") "+alias+on)
	} else {
		s.from.Line(kind, s.d.QuoteIdentifier(table), " ", alias, on)
	}
	return nil
}

// keyParts splits a composite key new { a, b } into its members.
func keyParts(e query.Expr) []query.Expr {
	switch v := e.(type) {
	case query.New:
		return v.Args
	case query.ObjectInit:
		out := make([]query.Expr, len(v.Bindings))
		for i, b := range v.Bindings {
			out[i] = b.Value
		}
		return out
	}
	return []query.Expr{e}
}

// writeFrom writes the FROM clause, explicit joins and the remaining
// navigation joins.
func (s *scope) writeFrom(tb *TextBuilder) {
	tb.lines = append(tb.lines, s.from.lines...)
	for _, j := range s.navJoins {
		tb.Line(j)
	}
}

func (s *scope) hasJoins() bool {
	return len(s.sources) > 1 || len(s.navJoins) > 0 || s.navigated
}
