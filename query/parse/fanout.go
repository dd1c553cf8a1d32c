package parse

import (
	"github.com/shipq/opsql/query"
)

// manyPath reports whether e is a member chain ending in a collection
// navigation of info's sources.
func (ps *parser) manyPath(info *query.SelectInfo, pos query.Positions, e query.Expr) (bool, error) {
	root, names := query.RootParam(e)
	if root == nil || len(names) == 0 || ps.provider == nil {
		return false, nil
	}
	i, ok := pos[root]
	if !ok {
		return false, nil
	}
	entity := info.SourceEntity(i)
	for n, name := range names {
		if entity == "" {
			return false, nil
		}
		ent, err := ps.provider.Entity(entity)
		if err != nil {
			return false, err
		}
		nav := ent.Navigation(name)
		if nav == nil {
			return false, nil
		}
		if nav.Many {
			if n != len(names)-1 {
				return false, query.Unsupported(string(query.OpSelect), "member %s of collection %s", names[n+1], name)
			}
			return true, nil
		}
		entity = nav.Target
	}
	return false, nil
}

// projected returns the top-level (field, value) pairs of a projection.
func projected(body query.Expr) ([]string, []query.Expr, bool) {
	switch v := body.(type) {
	case query.New:
		return v.Fields, v.Args, true
	case query.ObjectInit:
		fields := make([]string, len(v.Bindings))
		values := make([]query.Expr, len(v.Bindings))
		for i, b := range v.Bindings {
			fields[i], values[i] = b.Field, b.Value
		}
		return fields, values, true
	}
	return nil, nil, false
}

// hasMany reports whether the level's rows would be duplicated per child
// row of a collection navigation it projects or includes.
func (ps *parser) hasMany(info *query.SelectInfo) (bool, error) {
	for _, inc := range info.Includes {
		if !info.PicksAll() {
			break
		}
		many, err := ps.manyPath(info, query.PositionsOf(inc), inc.Body)
		if err != nil || many {
			return many, err
		}
	}
	if info.Select == nil {
		return false, nil
	}
	pos := query.PositionsOf(info.Select)
	_, values, ok := projected(info.Select.Body)
	if !ok {
		many, err := ps.manyPath(info, pos, info.Select.Body)
		if many {
			return false, query.Unsupported(string(query.OpSelect), "cannot project a collection navigation as the row")
		}
		return false, err
	}
	for _, v := range values {
		many, err := ps.manyPath(info, pos, v)
		if err != nil || many {
			return many, err
		}
	}
	return false, nil
}

// promoteForFanOut splits a level that projects a collection navigation into
// an inner query over the parent rows only (filters and paging apply to
// parents) and an outer query that joins the children to it. The outer
// level keeps the original projection; its lambdas share the inner level's
// positions and resolve against the inner query's columns.
func (ps *parser) promoteForFanOut(info *query.SelectInfo) (*query.SelectInfo, error) {
	many, err := ps.hasMany(info)
	if err != nil || !many {
		return info, err
	}
	if len(info.Unions) > 0 {
		return nil, query.Unsupported(string(query.OpSelect), "collection navigations cannot be combined with unions")
	}

	inner := *info
	inner.Includes = nil
	for _, inc := range info.Includes {
		m, err := ps.manyPath(info, query.PositionsOf(inc), inc.Body)
		if err != nil {
			return nil, err
		}
		if !m {
			inner.Includes = append(inner.Includes, inc)
		}
	}
	if !info.PicksAll() {
		stripped, err := ps.strip(info)
		if err != nil {
			return nil, err
		}
		inner.Select = stripped
	}
	if info.Aggregate != nil || info.Any {
		// Reductions apply to the parent rows; the children are never joined.
		return &inner, nil
	}
	inner.SubQueryOfMany = true
	if !inner.Paged() {
		inner.OrderBy = nil
	}

	return &query.SelectInfo{
		SubQuery: &inner,
		Select:   info.Select,
		OrderBy:  info.OrderBy,
		Includes: info.Includes,
		HasMany:  true,
	}, nil
}

// strip removes collection navigations from the projection.
func (ps *parser) strip(info *query.SelectInfo) (*query.Lambda, error) {
	pos := query.PositionsOf(info.Select)
	fields, values, _ := projected(info.Select.Body)
	var keptFields []string
	var keptValues []query.Expr
	for i, v := range values {
		many, err := ps.manyPath(info, pos, v)
		if err != nil {
			return nil, err
		}
		if !many {
			keptFields = append(keptFields, fields[i])
			keptValues = append(keptValues, v)
		}
	}
	return query.Fn(query.New{Args: keptValues, Fields: keptFields}, info.Select.Params...), nil
}
