package compile

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

// column is one output column of a compiled SELECT level.
type column struct {
	// name is the output name; sql the select expression.
	name string
	sql  string
	// bare is the column name sql refers to, "" for computed expressions.
	bare string
	// path is the member path in the projection, key the positional key of
	// the projected expression.
	path string
	key  string

	// hidden columns are selected for an enclosing level only.
	hidden bool
	meta   *meta.Column
	typ    reflect.Type
}

// selectItem renders the column for a SELECT list.
func (c *column) selectItem(d Dialect) string {
	if c.bare == c.name {
		return c.sql
	}
	return c.sql + " AS " + d.QuoteIdentifier(c.name)
}

// orderCol is an ordering a nested level exposes to the level that selects
// from it.
type orderCol struct {
	name string
	desc bool
}

// plan is the output shape of a compiled SELECT level, indexed by
// projection path and by expression key.
type plan struct {
	cols   []*column
	byPath map[string]*column
	byKey  map[string]*column
	names  map[string]bool

	// entities maps a path or key prefix to the entity projected there.
	entities map[string]*meta.Entity
	// scalar is set for single-value projections (aggregates, Select(x =>
	// x.Name)).
	scalar bool
	order  []orderCol
}

func newPlan() *plan {
	return &plan{
		byPath:   make(map[string]*column),
		byKey:    make(map[string]*column),
		names:    make(map[string]bool),
		entities: make(map[string]*meta.Entity),
	}
}

// add appends c, renaming it Name1, Name2, ... when the name is taken.
func (p *plan) add(c *column) *column {
	base := c.name
	if base == "" {
		base = "Value"
	}
	name := base
	for i := 1; p.names[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	c.name = name
	p.names[name] = true
	p.cols = append(p.cols, c)
	if !c.hidden {
		if _, ok := p.byPath[c.path]; !ok {
			p.byPath[c.path] = c
		}
	}
	if c.key != "" {
		if _, ok := p.byKey[c.key]; !ok {
			p.byKey[c.key] = c
		}
	}
	return c
}

// entity records that an entity is projected at path and key.
func (p *plan) entity(path, key string, e *meta.Entity) {
	if _, ok := p.entities[path]; !ok {
		p.entities[path] = e
	}
	if key != "" {
		if _, ok := p.entities[key]; !ok {
			p.entities[key] = e
		}
	}
}

// visible returns the columns an enclosing level sees as the row.
func (p *plan) visible() []*column {
	out := make([]*column, 0, len(p.cols))
	for _, c := range p.cols {
		if !c.hidden {
			out = append(out, c)
		}
	}
	return out
}

// expose returns the column computing key, adding a hidden one when the
// projection does not have it.
func (p *plan) expose(key, sql string, typ reflect.Type, col *meta.Column) *column {
	if c, ok := p.byKey[key]; ok {
		return c
	}
	for _, c := range p.cols {
		if c.sql == sql {
			if key != "" {
				p.byKey[key] = c
			}
			return c
		}
	}
	return p.add(&column{name: hiddenName(key), sql: sql, key: key, hidden: true, typ: typ, meta: col})
}

func (p *plan) outputColumns() []query.OutputColumn {
	var out []query.OutputColumn
	for _, c := range p.cols {
		if !c.hidden {
			out = append(out, query.OutputColumn{Name: c.name, Path: c.path})
		}
	}
	return out
}

// hiddenName derives a column name from the last member of a key.
func hiddenName(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	ok := key != ""
	for _, r := range key {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			ok = false
			break
		}
	}
	if !ok || key[0] >= '0' && key[0] <= '9' {
		return "Key"
	}
	return key
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}

// =============================================================================
// Projection
// =============================================================================

// project builds the plan of a level's projection.
func (s *scope) project(info *query.SelectInfo, allowMany bool) (*plan, error) {
	p := newPlan()
	if info.PicksAll() {
		root := &query.Parameter{Name: "row"}
		if info.Select != nil {
			root = info.Select.Params[0]
			s.bind(info.Select)
		} else {
			s.pos[root] = 0
		}
		if err := s.expand(p, "", root, allowMany); err != nil {
			return nil, err
		}
		for _, inc := range info.Includes {
			s.bind(inc)
			_, names := query.RootParam(inc.Body)
			if err := s.expand(p, strings.Join(names, "."), inc.Body, allowMany); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	s.bind(info.Select)
	body := info.Select.Body
	if _, isNew := body.(query.New); !isNew {
		if _, isInit := body.(query.ObjectInit); !isInit {
			p.scalar = true
		}
	}
	if err := s.expand(p, "", body, allowMany); err != nil {
		return nil, err
	}
	if p.scalar && len(p.cols) > 1 {
		p.scalar = false
	}
	return p, nil
}

// expand adds the columns produced by e at path.
func (s *scope) expand(p *plan, path string, e query.Expr, allowMany bool) error {
	switch v := e.(type) {
	case query.New:
		for i, a := range v.Args {
			name := ""
			if i < len(v.Fields) {
				name = v.Fields[i]
			}
			if name == "" {
				name = query.InferName(a)
			}
			if err := s.expand(p, joinPath(path, name), a, allowMany); err != nil {
				return err
			}
		}
		return nil
	case query.ObjectInit:
		for _, b := range v.Bindings {
			if err := s.expand(p, joinPath(path, b.Field), b.Value, allowMany); err != nil {
				return err
			}
		}
		return nil
	case query.Member, *query.Parameter:
		r, err := s.resolve(e)
		if err != nil {
			return err
		}
		switch {
		case r.many != nil:
			if !allowMany {
				return query.Unsupported(string(query.OpSelect), "collection %s outside a one-to-many projection", e)
			}
			alias, target, err := s.navJoin(r.owner, r.manyKey, r.many)
			if err != nil {
				return err
			}
			return s.expandEntity(p, path, "", alias, target)
		case r.isColumn():
			return s.addValue(p, path, e, r.fragment())
		case r.entity != nil && r.plan == nil:
			return s.expandEntity(p, path, query.Key(e, s.pos), r.alias, r.entity)
		case r.plan != nil:
			return s.expandDerived(p, path, query.Key(e, s.pos), r)
		}
		return query.Unsupported(string(query.OpSelect), "cannot project %s", e)
	}
	f, err := s.value(e)
	if err != nil {
		return err
	}
	return s.addValue(p, path, e, f)
}

func (s *scope) addValue(p *plan, path string, e query.Expr, f fragment) error {
	name := path
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = f.bare
	}
	p.add(&column{name: name, sql: f.sql, bare: f.bare, path: path, key: query.Key(e, s.pos), meta: f.col, typ: f.typ})
	return nil
}

func (s *scope) expandEntity(p *plan, path, key, alias string, e *meta.Entity) error {
	p.entity(path, key, e)
	for _, c := range e.Columns {
		ref := s.columnRef(alias, c.Name)
		col := &column{name: c.Name, sql: ref, bare: c.Name, path: joinPath(path, c.Field), meta: c, typ: c.GoType}
		if key != "" {
			col.key = key + "." + c.Field
		}
		p.add(col)
	}
	return nil
}

// expandDerived copies the visible columns of a derived row at r.
func (s *scope) expandDerived(p *plan, path, key string, r *ref) error {
	prefix := r.prefix
	for _, c := range r.plan.cols {
		if c.hidden {
			continue
		}
		rel, ok := relPath(prefix, c.path, r.byKey, c.key)
		if !ok {
			continue
		}
		col := &column{name: c.name, sql: s.columnRef(r.alias, c.name), bare: c.name, path: joinPath(path, rel), meta: c.meta, typ: c.typ}
		if key != "" {
			col.key = joinPath(key, rel)
		}
		p.add(col)
	}
	for at, e := range r.plan.entities {
		if r.byKey != strings.HasPrefix(at, "#") {
			continue
		}
		if rel, ok := relPath(prefix, at, false, ""); ok {
			p.entity(joinPath(path, rel), joinPath(key, rel), e)
		}
	}
	return nil
}

// relPath returns the part of a column's path below prefix.
func relPath(prefix, path string, byKey bool, key string) (string, bool) {
	if byKey {
		path = key
	}
	switch {
	case prefix == "":
		return path, true
	case path == prefix:
		return "", true
	case strings.HasPrefix(path, prefix+"."):
		return path[len(prefix)+1:], true
	}
	return "", false
}
