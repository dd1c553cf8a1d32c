package compile

import (
	"strconv"
	"strings"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

// levelMode is where a compiled SELECT level ends up.
type levelMode int

const (
	// levelTop is the statement itself and keeps its ORDER BY.
	levelTop levelMode = iota
	// levelNested is a derived table. It orders only when paged and hands
	// its ordering to the enclosing level as hidden columns.
	levelNested
	// levelOperand is a union operand or an IN subquery. It orders only
	// when paged.
	levelOperand
)

const rowNumberColumn = "Row_Number0"

// selectLevel compiles info, and the levels it nests, into a SELECT.
func (st *state) selectLevel(info *query.SelectInfo, mode levelMode) (*TextBuilder, *plan, error) {
	if info.HasMany {
		if mode != levelTop {
			return nil, nil, query.Unsupported(string(query.OpSelect), "collection navigations can only be projected by the outermost query")
		}
		return st.manyLevel(info)
	}
	return st.plainLevel(info, mode, nil)
}

// orderItem is one rendered sort key.
type orderItem struct {
	f    fragment
	key  string
	desc bool
}

func (o orderItem) String() string {
	if o.desc {
		return o.f.sql + " DESC"
	}
	return o.f.sql
}

func joinOrder(items []orderItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, ", ")
}

func (s *scope) orderItems(obs []query.OrderBy) ([]orderItem, error) {
	items := make([]orderItem, 0, len(obs))
	for _, ob := range obs {
		s.bind(ob.Key)
		f, err := s.value(ob.Key.Body)
		if err != nil {
			return nil, err
		}
		items = append(items, orderItem{f: f, key: query.Key(ob.Key.Body, s.pos), desc: ob.Desc})
	}
	return items, nil
}

// inherit orders by the ordering a derived source exposed.
func (s *scope) inherit(sub *plan) []orderItem {
	items := make([]orderItem, len(sub.order))
	for i, o := range sub.order {
		items[i] = orderItem{f: fragment{sql: s.columnRef(s.sources[0].alias, o.name), prec: precAtom}, desc: o.desc}
	}
	return items
}

// level is a SELECT being assembled: the select list, the FROM..HAVING
// lines and the ordering, before paging is applied.
type level struct {
	st       *state
	info     *query.SelectInfo
	mode     levelMode
	distinct bool
	top      string
	cols     []string
	body     *TextBuilder
	order    []orderItem
	p        *plan
}

func (lv *level) render(withOrder bool) *TextBuilder {
	tb := &TextBuilder{}
	head := "SELECT "
	if lv.distinct {
		head += "DISTINCT "
	}
	tb.Line(head, lv.top, strings.Join(lv.cols, ", "))
	tb.lines = append(tb.lines, lv.body.lines...)
	if withOrder && len(lv.order) > 0 {
		tb.Line("ORDER BY ", joinOrder(lv.order))
	}
	return tb
}

// plainLevel compiles a level that is not a one-to-many split. needs are
// expressions the enclosing split reads by key; they become hidden columns.
func (st *state) plainLevel(info *query.SelectInfo, mode levelMode, needs []*query.Lambda) (*TextBuilder, *plan, error) {
	if (info.Aggregate != nil || info.Any) && (info.Distinct || info.GroupBy != nil || info.Paged()) {
		return nil, nil, query.Unsupported(string(query.OpSelect), "aggregates over a distinct, grouped or paged level must be nested")
	}
	s := st.newScope(NewAliasTable())
	sub, err := s.sourceLevel(info)
	if err != nil {
		return nil, nil, err
	}

	lv := &level{st: st, info: info, mode: mode, distinct: info.Distinct, body: &TextBuilder{}}
	switch {
	case info.Aggregate != nil:
		lv.p, err = s.aggregate(info.Aggregate)
		if err == nil {
			lv.cols = []string{lv.p.cols[0].sql}
		}
	case info.Any:
		lv.p = newPlan()
		lv.p.scalar = true
		lv.cols = []string{"1"}
	default:
		lv.p, err = s.project(info, false)
		if err == nil {
			for _, need := range needs {
				s.bind(need)
				f, err := s.value(need.Body)
				if err != nil {
					return nil, nil, err
				}
				lv.p.expose(query.Key(need.Body, s.pos), f.sql, f.typ, f.col)
			}
		}
	}
	if err != nil {
		return nil, nil, err
	}

	var conds []string
	if len(info.Where) > 0 {
		where, err := s.conditions(info.Where)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, where)
	}
	var group, having string
	if info.GroupBy != nil {
		s.bind(info.GroupBy)
		keys := keyParts(info.GroupBy.Body)
		parts := make([]string, len(keys))
		for i, k := range keys {
			f, err := s.value(k)
			if err != nil {
				return nil, nil, err
			}
			parts[i] = f.sql
		}
		group = strings.Join(parts, ", ")
		if len(info.Having) > 0 {
			if having, err = s.conditions(info.Having); err != nil {
				return nil, nil, err
			}
		}
	}
	if info.Aggregate == nil && !info.Any {
		if lv.order, err = s.orderItems(info.OrderBy); err != nil {
			return nil, nil, err
		}
		if len(lv.order) == 0 && sub != nil && st.inherits(info) {
			lv.order = s.inherit(sub)
		}
		if len(info.Unions) > 0 {
			lv.order = nil
		}
	}
	if info.Any && st.d.Paging() == PagingRowNum {
		if len(conds) > 0 {
			conds[0] = "(" + conds[0] + ")"
		}
		conds = append(conds, "ROWNUM <= 1")
	}

	s.writeFrom(lv.body)
	if len(conds) > 0 {
		lv.body.Line("WHERE ", strings.Join(conds, " AND "))
	}
	if group != "" {
		lv.body.Line("GROUP BY ", group)
	}
	if having != "" {
		lv.body.Line("HAVING ", having)
	}

	if info.Aggregate == nil && !info.Any {
		if mode == levelNested && len(info.Unions) == 0 {
			lv.exposeOrder()
		}
		if len(lv.p.cols) == 0 {
			return nil, nil, query.Unsupported(string(query.OpSelect), "projection has no columns")
		}
		lv.cols = make([]string, len(lv.p.cols))
		for i, c := range lv.p.cols {
			lv.cols[i] = c.selectItem(st.d)
		}
	}

	var tb *TextBuilder
	switch {
	case info.Any:
		tb = lv.any()
	case info.Paged():
		tb, err = lv.paged()
	default:
		tb = lv.render(mode == levelTop)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := st.unions(tb, info); err != nil {
		return nil, nil, err
	}
	return tb, lv.p, nil
}

// inherits reports whether a level without its own ordering keeps the
// ordering of its derived source.
func (st *state) inherits(info *query.SelectInfo) bool {
	return !info.Distinct && info.GroupBy == nil && info.Aggregate == nil && !info.Any &&
		!info.HasMany && len(info.Unions) == 0
}

// exposeOrder hands the level's ordering to the enclosing level. A distinct
// level can only expose orderings it already selects.
func (lv *level) exposeOrder() {
	if len(lv.order) == 0 {
		return
	}
	if lv.distinct {
		for _, o := range lv.order {
			if lv.find(o.f.sql) == nil {
				return
			}
		}
	}
	for _, o := range lv.order {
		var c *column
		if lv.distinct {
			c = lv.find(o.f.sql)
		} else {
			c = lv.p.expose(o.key, o.f.sql, o.f.typ, o.f.col)
		}
		lv.p.order = append(lv.p.order, orderCol{name: c.name, desc: o.desc})
	}
}

func (lv *level) find(sql string) *column {
	for _, c := range lv.p.cols {
		if c.sql == sql {
			return c
		}
	}
	return nil
}

func (lv *level) any() *TextBuilder {
	switch lv.st.d.Paging() {
	case PagingOffsetFetch, PagingRowNumber:
		lv.top = "TOP 1 "
		return lv.render(false)
	case PagingLimitOffset:
		tb := lv.render(false)
		tb.Line(lv.st.d.Limit(0, 1))
		return tb
	}
	return lv.render(false)
}

// paged applies the dialect's paging to the level.
func (lv *level) paged() (*TextBuilder, error) {
	d := lv.st.d
	skip, take := lv.info.Skip, lv.info.Take
	switch d.Paging() {
	case PagingLimitOffset:
		tb := lv.render(true)
		tb.Line(d.Limit(skip, take))
		return tb, nil
	case PagingOffsetFetch:
		if skip == 0 {
			lv.top = "TOP " + strconv.Itoa(take) + " "
			return lv.render(true), nil
		}
		tb := lv.render(false)
		order := "(SELECT NULL)"
		if len(lv.order) > 0 {
			order = joinOrder(lv.order)
		}
		tb.Line("ORDER BY ", order)
		line := "OFFSET " + strconv.Itoa(skip) + " ROWS"
		if take > 0 {
			line += " FETCH NEXT " + strconv.Itoa(take) + " ROWS ONLY"
		}
		tb.Line(line)
		return tb, nil
	case PagingRowNumber:
		if skip == 0 {
			lv.top = "TOP " + strconv.Itoa(take) + " "
			return lv.render(true), nil
		}
		return lv.rowNumber(skip, take)
	}
	return lv.rowNum(skip, take), nil
}

// wrapperList selects every column of p from the derived table t0.
func wrapperList(d Dialect, p *plan) string {
	parts := make([]string, len(p.cols))
	for i, c := range p.cols {
		parts[i] = "t0." + d.QuoteIdentifier(c.name)
	}
	return strings.Join(parts, ", ")
}

// rowNumber pages with ROW_NUMBER() OVER(...) in a derived table.
func (lv *level) rowNumber(skip, take int) (*TextBuilder, error) {
	d := lv.st.d
	rn := d.QuoteIdentifier(rowNumberColumn)
	order := "(SELECT NULL)"
	var inner *TextBuilder
	if lv.distinct {
		// ROW_NUMBER() would make every row distinct; number the distinct
		// rows in a second derived table instead.
		if len(lv.order) > 0 {
			parts := make([]string, len(lv.order))
			for i, o := range lv.order {
				c := lv.find(o.f.sql)
				if c == nil {
					return nil, query.Unsupported(string(query.OpDistinct), "paging a distinct query ordered by an unselected value")
				}
				parts[i] = "t0." + d.QuoteIdentifier(c.name)
				if o.desc {
					parts[i] += " DESC"
				}
			}
			order = strings.Join(parts, ", ")
		}
		inner = &TextBuilder{}
		inner.Line("SELECT ", wrapperList(d, lv.p), ", ROW_NUMBER() OVER(ORDER BY ", order, ") AS ", rn)
		inner.Block("FROM (", lv.render(false), ") t0")
	} else {
		if len(lv.order) > 0 {
			order = joinOrder(lv.order)
		}
		cols := lv.cols
		lv.cols = append(append([]string(nil), cols...), "ROW_NUMBER() OVER(ORDER BY "+order+") AS "+rn)
		inner = lv.render(false)
		lv.cols = cols
	}
	tb := &TextBuilder{}
	tb.Line("SELECT ", wrapperList(d, lv.p))
	tb.Block("FROM (", inner, ") t0")
	where := "WHERE t0." + rn + " > " + strconv.Itoa(skip)
	if take > 0 {
		where += " AND t0." + rn + " <= " + strconv.Itoa(skip+take)
	}
	tb.Line(where)
	if lv.mode == levelTop {
		tb.Line("ORDER BY t0.", rn)
	}
	return tb, nil
}

// rowNum pages with ROWNUM over an ordered derived table: two levels when
// only taking, three when skipping.
func (lv *level) rowNum(skip, take int) *TextBuilder {
	d := lv.st.d
	cols := wrapperList(d, lv.p)
	core := lv.render(true)
	if skip == 0 {
		tb := &TextBuilder{}
		tb.Line("SELECT ", cols)
		tb.Block("FROM (", core, ") t0")
		tb.Line("WHERE ROWNUM <= ", strconv.Itoa(take))
		return tb
	}
	rn := d.QuoteIdentifier(rowNumberColumn)
	mid := &TextBuilder{}
	mid.Line("SELECT ", cols, ", ROWNUM AS ", rn)
	mid.Block("FROM (", core, ") t0")
	tb := &TextBuilder{}
	tb.Line("SELECT ", cols)
	tb.Block("FROM (", mid, ") t0")
	where := "WHERE t0." + rn + " > " + strconv.Itoa(skip)
	if take > 0 {
		where += " AND t0." + rn + " <= " + strconv.Itoa(skip+take)
	}
	tb.Line(where)
	if lv.mode == levelTop {
		tb.Line("ORDER BY t0.", rn)
	}
	return tb
}

// unions appends each union operand to tb. Paged operands are wrapped so
// their ORDER BY and paging stay inside the operand.
func (st *state) unions(tb *TextBuilder, info *query.SelectInfo) error {
	for _, u := range info.Unions {
		if u.HasMany {
			return query.Unsupported(string(query.OpUnion), "operands cannot project collection navigations")
		}
		utb, up, err := st.selectLevel(u, levelOperand)
		if err != nil {
			return err
		}
		if u.Paged() {
			w := &TextBuilder{}
			w.Line("SELECT ", wrapperList(st.d, up))
			w.Block("FROM (", utb, ") t0")
			utb = w
		}
		tb.Line("UNION ALL")
		tb.lines = append(tb.lines, utb.lines...)
	}
	return nil
}

// aggregate builds the single-column plan of an aggregate level.
func (s *scope) aggregate(agg *query.Aggregate) (*plan, error) {
	p := newPlan()
	p.scalar = true
	if agg.Kind == query.OpCount || agg.Selector == nil {
		if agg.Kind != query.OpCount {
			return nil, query.Unsupported(string(agg.Kind), "needs a selector")
		}
		p.add(&column{name: "Value", sql: "COUNT(*)", typ: int64Type})
		return p, nil
	}
	s.bind(agg.Selector)
	f, err := s.value(agg.Selector.Body)
	if err != nil {
		return nil, err
	}
	typ := f.typ
	if agg.Kind == query.OpAverage {
		typ = float64Type
	}
	p.add(&column{name: "Value", sql: aggregateFuncs[string(agg.Kind)] + "(" + f.sql + ")", typ: typ})
	return p, nil
}

// =============================================================================
// One-to-many split
// =============================================================================

// manyLevel compiles the outer half of a one-to-many split: the parent rows
// selected by the inner level, left joined to the projected collections and
// ordered so each parent's children are contiguous.
func (st *state) manyLevel(info *query.SelectInfo) (*TextBuilder, *plan, error) {
	inner := info.SubQuery
	params := levelParams(info)
	if inner == nil || params == nil {
		return nil, nil, query.Unsupported(string(query.OpSelect), "malformed one-to-many query")
	}

	var needs []*query.Lambda
	owners := make(map[string]*meta.Entity)
	pos := make(query.Positions, len(params))
	for i, p := range params {
		pos[p] = i
	}
	manyExprs, err := st.manyPaths(info)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range manyExprs {
		owner := e.(query.Member).Target
		ent, err := st.entityAt(inner, pos, owner)
		if err != nil {
			return nil, nil, err
		}
		nav := ent.Navigation(e.(query.Member).Name)
		owners[query.Key(owner, pos)] = ent
		for _, kp := range nav.Keys {
			needs = append(needs, query.Fn(query.Member{Target: owner, Name: kp.Local}, params...))
		}
	}
	for _, ob := range info.OrderBy {
		needs = append(needs, query.Fn(ob.Key.Body, params...))
	}
	var rootKeys []query.Expr
	for i, p := range params {
		name := inner.SourceEntity(i)
		if name == "" {
			continue
		}
		ent, err := st.provider.Entity(name)
		if err != nil {
			return nil, nil, err
		}
		owners["#"+strconv.Itoa(i)] = ent
		for _, k := range ent.Keys() {
			key := query.Member{Target: p, Name: k.Field}
			rootKeys = append(rootKeys, key)
			needs = append(needs, query.Fn(key, params...))
		}
	}

	innerTB, innerPlan, err := st.plainLevel(inner, levelNested, needs)
	if err != nil {
		return nil, nil, err
	}
	for key, ent := range owners {
		if _, ok := innerPlan.entities[key]; !ok {
			innerPlan.entities[key] = ent
		}
	}

	s := st.newScope(NewAliasTable())
	root := s.aliases.Alias("#0")
	s.keyed = innerPlan
	for i, p := range params {
		s.pos[p] = i
		s.sources = append(s.sources, cursor{alias: root, plan: innerPlan, byKey: true})
	}
	s.from.Block("FROM (", innerTB, ") "+root)

	outer := *info
	outer.Includes = nil
	for _, inc := range info.Includes {
		if _, ok := inc.Body.(query.Member); ok && containsExpr(manyExprs, inc.Body) {
			outer.Includes = append(outer.Includes, inc)
		}
	}
	p, err := s.project(&outer, true)
	if err != nil {
		return nil, nil, err
	}

	order, err := s.orderItems(info.OrderBy)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]bool, len(order))
	for _, o := range order {
		seen[o.f.sql] = true
	}
	for _, k := range rootKeys {
		f, err := s.value(k)
		if err != nil {
			return nil, nil, err
		}
		if !seen[f.sql] {
			seen[f.sql] = true
			order = append(order, orderItem{f: f})
		}
	}

	cols := make([]string, len(p.cols))
	for i, c := range p.cols {
		cols[i] = c.selectItem(st.d)
	}
	tb := &TextBuilder{}
	tb.Line("SELECT ", strings.Join(cols, ", "))
	s.writeFrom(tb)
	if len(order) > 0 {
		tb.Line("ORDER BY ", joinOrder(order))
	}
	return tb, p, nil
}

// levelParams returns the positional parameters the level's lambdas share.
func levelParams(info *query.SelectInfo) []*query.Parameter {
	if info.Select != nil {
		return info.Select.Params
	}
	for _, inc := range info.Includes {
		return inc.Params
	}
	return nil
}

// manyPaths returns the projected or included member chains that end in a
// collection navigation.
func (st *state) manyPaths(info *query.SelectInfo) ([]query.Expr, error) {
	var candidates []query.Expr
	if info.Select != nil {
		switch v := info.Select.Body.(type) {
		case query.New:
			candidates = append(candidates, v.Args...)
		case query.ObjectInit:
			for _, b := range v.Bindings {
				candidates = append(candidates, b.Value)
			}
		}
	}
	for _, inc := range info.Includes {
		candidates = append(candidates, inc.Body)
	}
	params := levelParams(info)
	pos := make(query.Positions, len(params))
	for i, p := range params {
		pos[p] = i
	}
	var out []query.Expr
	for _, e := range candidates {
		m, ok := e.(query.Member)
		if !ok {
			continue
		}
		if root, _ := query.RootParam(m); root == nil {
			continue
		}
		ent, err := st.entityAt(info.SubQuery, pos, m.Target)
		if err != nil || ent == nil {
			continue
		}
		if nav := ent.Navigation(m.Name); nav != nil && nav.Many && !containsExpr(out, e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// entityAt follows the one-to-one navigations of a member chain from a
// source of info and returns the entity it reaches.
func (st *state) entityAt(info *query.SelectInfo, pos query.Positions, e query.Expr) (*meta.Entity, error) {
	root, names := query.RootParam(e)
	if root == nil {
		return nil, query.Unsupported(string(query.OpSelect), "%s is not a member chain", e)
	}
	name := info.SourceEntity(pos[root])
	if name == "" {
		return nil, &query.MappingError{Path: e.String()}
	}
	ent, err := st.provider.Entity(name)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		nav := ent.Navigation(n)
		if nav == nil || nav.Many {
			return nil, &query.MappingError{Path: e.String(), Entity: ent.Name}
		}
		if ent, err = st.provider.Entity(nav.Target); err != nil {
			return nil, err
		}
	}
	return ent, nil
}

func containsExpr(list []query.Expr, e query.Expr) bool {
	key := query.Key(e, nil)
	for _, x := range list {
		if query.Key(x, nil) == key {
			return true
		}
	}
	return false
}
