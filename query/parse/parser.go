// Package parse turns an operation sequence into a query info tree.
//
// Operations are consumed left to right into one SELECT level until an
// operation must apply to the level's finished result (anything after Take,
// anything but Skip/Take after Skip, anything after Distinct, AsSubquery or
// a run of Unions). The finished level then becomes the derived table of a
// new outer level and parsing continues there.
//
// Lambdas are stored positionally: parameter 0 is the level's row source and
// parameter i its i-th explicit join. Lambdas written against a projected
// row are rewritten against the sources by inlining the projection.
package parse

import (
	"fmt"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

// Parse classifies seq into a *SelectInfo, *InsertInfo, *UpdateInfo or
// *DeleteInfo. The provider resolves navigations for the one-to-many
// rewrite.
func Parse(seq query.Sequence, p meta.Provider) (query.Info, error) {
	ps := &parser{provider: p}
	return ps.parse(expand(seq))
}

// ParseSelect is Parse for sequences that must produce rows.
func ParseSelect(seq query.Sequence, p meta.Provider) (*query.SelectInfo, error) {
	info, err := Parse(seq, p)
	if err != nil {
		return nil, err
	}
	sel, ok := info.(*query.SelectInfo)
	if !ok {
		return nil, query.Unsupported("Union", "operand is not a query")
	}
	return sel, nil
}

type parser struct {
	provider meta.Provider
}

// expand rewrites shorthand operations into their primitive forms:
// First(p) is Where(p)+Take(1); Count(p) and Any(p) filter first.
func expand(seq query.Sequence) query.Sequence {
	out := make(query.Sequence, 0, len(seq))
	for _, op := range seq {
		switch op.Kind {
		case query.OpFirst:
			if l := op.Lambda(0); l != nil {
				out = append(out, query.Operation{Kind: query.OpWhere, Args: []query.Expr{l}})
			}
			out = append(out, query.Operation{Kind: query.OpTake, Args: []query.Expr{query.Const(1)}})
		case query.OpCount, query.OpAny:
			if l := op.Lambda(0); l != nil {
				out = append(out, query.Operation{Kind: query.OpWhere, Args: []query.Expr{l}})
			}
			out = append(out, query.Operation{Kind: op.Kind})
		default:
			out = append(out, op)
		}
	}
	return out
}

func (ps *parser) parse(seq query.Sequence) (query.Info, error) {
	if len(seq) == 0 {
		return nil, query.Unsupported("", "empty sequence")
	}
	first := seq[0]
	switch first.Kind {
	case query.OpInsert, query.OpUpdate, query.OpDelete:
		if len(seq) > 1 {
			return nil, query.Unsupported(string(seq[1].Kind), "entity statements cannot be followed by other operations")
		}
		return entityStatement(first)
	case query.OpGetTable:
	default:
		return nil, query.Unsupported(string(first.Kind), "a query must start with GetTable")
	}
	entity, ok := first.Constant(0)
	name, isName := entity.(string)
	if !ok || !isName || name == "" {
		return nil, query.Unsupported(string(first.Kind), "expected an entity name")
	}

	lv := newLevel(&query.SelectInfo{From: name})
	for i := 1; i < len(seq); i++ {
		op := seq[i]
		if lv.terminal != "" {
			return nil, query.Unsupported(string(op.Kind), "cannot follow %s", lv.terminal)
		}
		switch op.Kind {
		case query.OpInsert, query.OpUpdate, query.OpDelete:
			if i != len(seq)-1 {
				return nil, query.Unsupported(string(seq[i+1].Kind), "cannot follow %s", op.Kind)
			}
			return ps.statement(lv, op)
		}
		if lv.ends(op) {
			sel, err := ps.finish(lv, false)
			if err != nil {
				return nil, err
			}
			lv = newLevel(&query.SelectInfo{SubQuery: sel})
		}
		if err := ps.apply(lv, op); err != nil {
			return nil, err
		}
		lv.last = op.Kind
	}
	return ps.finish(lv, true)
}

// statement packages the current level as the selection of a trailing
// Insert, Update or Delete.
func (ps *parser) statement(lv *level, op query.Operation) (query.Info, error) {
	sel, err := ps.finish(lv, false)
	if err != nil {
		return nil, err
	}
	switch op.Kind {
	case query.OpInsert:
		v, _ := op.Constant(0)
		into, ok := v.(string)
		if !ok || into == "" {
			return nil, query.Unsupported(string(op.Kind), "insert from a query needs a target entity name")
		}
		if sel.Aggregate != nil || sel.Any {
			return nil, query.Unsupported(string(op.Kind), "cannot insert a scalar result")
		}
		return &query.InsertInfo{Into: into, Select: sel}, nil
	case query.OpUpdate:
		l := op.Lambda(0)
		if l == nil {
			return nil, query.Unsupported(string(op.Kind), "update of a query needs a lambda")
		}
		if len(lv.params) != len(sel.Joins)+1 || sel.SubQuery != nil {
			return nil, query.Unsupported(string(op.Kind), "cannot update a derived table")
		}
		inlined, err := lv.inline(l)
		if err != nil {
			return nil, err
		}
		if _, ok := inlined.Body.(query.ObjectInit); !ok {
			return nil, query.Unsupported(string(op.Kind), "update lambda must build an object, got %s", inlined.Body)
		}
		return &query.UpdateInfo{Expr: inlined, Select: sel}, nil
	default:
		if sel.SubQuery != nil {
			return nil, query.Unsupported(string(op.Kind), "cannot delete from a derived table")
		}
		return &query.DeleteInfo{Select: sel}, nil
	}
}

func entityStatement(op query.Operation) (query.Info, error) {
	v, ok := op.Constant(0)
	if !ok || v == nil {
		return nil, query.Unsupported(string(op.Kind), "expected an entity value")
	}
	switch op.Kind {
	case query.OpInsert:
		return &query.InsertInfo{Entity: v}, nil
	case query.OpUpdate:
		return &query.UpdateInfo{Entity: v}, nil
	default:
		return &query.DeleteInfo{Entity: v}, nil
	}
}

// apply consumes op into lv.
func (ps *parser) apply(lv *level, op query.Operation) error {
	info := lv.info
	switch op.Kind {
	case query.OpWhere:
		l, err := lv.inlineArg(op, 0)
		if err != nil {
			return err
		}
		if lv.grouped() {
			info.Having = append(info.Having, l)
		} else {
			info.Where = append(info.Where, l)
		}
	case query.OpSelect:
		l, err := lv.inlineArg(op, 0)
		if err != nil {
			return err
		}
		info.Select = l
		lv.row = l.Body
		lv.groupKey = nil
	case query.OpOrderBy, query.OpOrderByDescending, query.OpThenBy, query.OpThenByDescending:
		l, err := lv.inlineArg(op, 0)
		if err != nil {
			return err
		}
		if op.Kind == query.OpOrderBy || op.Kind == query.OpOrderByDescending {
			info.OrderBy = nil
		}
		desc := op.Kind == query.OpOrderByDescending || op.Kind == query.OpThenByDescending
		info.OrderBy = append(info.OrderBy, query.OrderBy{Key: l, Desc: desc})
	case query.OpSkip, query.OpTake:
		n, err := count(op)
		if err != nil {
			return err
		}
		if op.Kind == query.OpSkip {
			info.Skip += n
		} else {
			info.Take = n
		}
	case query.OpDistinct:
		info.Distinct = true
		lv.closed = true
	case query.OpAsSubquery:
		lv.closed = true
	case query.OpUnion:
		v, _ := op.Constant(0)
		other, ok := v.(query.Sequence)
		if !ok {
			return query.Unsupported(string(op.Kind), "operand must be a query")
		}
		sub, err := ps.parse(expand(other))
		if err != nil {
			return fmt.Errorf("union operand: %w", err)
		}
		sel, ok := sub.(*query.SelectInfo)
		if !ok || sel.Aggregate != nil || sel.Any {
			return query.Unsupported(string(op.Kind), "operand must produce rows")
		}
		info.Unions = append(info.Unions, sel)
	case query.OpGroupBy:
		l, err := lv.inlineArg(op, 0)
		if err != nil {
			return err
		}
		info.GroupBy = l
		info.OrderBy = nil
		lv.groupKey = l.Body
		lv.groupRow = lv.row
	case query.OpAverage, query.OpMin, query.OpSum, query.OpMax, query.OpCount:
		agg := &query.Aggregate{Kind: op.Kind}
		if op.Kind != query.OpCount {
			if l := op.Lambda(0); l != nil {
				inlined, err := lv.inline(l)
				if err != nil {
					return err
				}
				agg.Selector = inlined
			} else {
				agg.Selector = query.Fn(lv.row, lv.params...)
			}
		}
		info.Aggregate = agg
		lv.terminal = op.Kind
	case query.OpAny:
		info.Any = true
		lv.terminal = op.Kind
	case query.OpJoin, query.OpGroupJoin:
		return ps.join(lv, op)
	case query.OpDefaultIfEmpty:
		if (lv.last != query.OpJoin && lv.last != query.OpGroupJoin) || len(info.Joins) == 0 {
			return query.Unsupported(string(op.Kind), "must follow a join")
		}
		kind := query.LeftJoin
		if v, ok := op.Constant(0); ok && v == true {
			kind = query.RightJoin
		}
		info.Joins[len(info.Joins)-1].Kind = kind
	case query.OpInclude:
		l, err := lv.inlineArg(op, 0)
		if err != nil {
			return err
		}
		if _, names := query.RootParam(l.Body); names == nil {
			return query.Unsupported(string(op.Kind), "expected a navigation path, got %s", l.Body)
		}
		info.Includes = append(info.Includes, l)
	default:
		return query.Unsupported(string(op.Kind), "")
	}
	return nil
}

func (ps *parser) join(lv *level, op query.Operation) error {
	if len(op.Args) != 4 {
		return query.Unsupported(string(op.Kind), "expected inner source, two keys and a result selector")
	}
	outerKey, innerKey, result := op.Lambda(1), op.Lambda(2), op.Lambda(3)
	if outerKey == nil || innerKey == nil || result == nil || len(innerKey.Params) != 1 || len(result.Params) != 2 {
		return query.Unsupported(string(op.Kind), "malformed join lambdas")
	}
	j := query.Join{Kind: query.InnerJoin}
	inner, _ := op.Constant(0)
	switch v := inner.(type) {
	case string:
		j.Entity = v
	case query.Sequence:
		sub, err := ps.parse(expand(v))
		if err != nil {
			return fmt.Errorf("join source: %w", err)
		}
		sel, ok := sub.(*query.SelectInfo)
		if !ok || sel.Aggregate != nil || sel.Any {
			return query.Unsupported(string(op.Kind), "join source must produce rows")
		}
		j.Sub = sel
	default:
		return query.Unsupported(string(op.Kind), "join source must be an entity name or a query")
	}

	outer, err := lv.inline(outerKey)
	if err != nil {
		return err
	}
	jp := innerKey.Params[0]
	lv.params = append(lv.params[:len(lv.params):len(lv.params)], jp)
	j.OuterKey = query.Fn(outer.Body, lv.params...)
	j.InnerKey = query.Fn(innerKey.Body, lv.params...)

	body := substitute(result.Body, map[*query.Parameter]query.Expr{
		result.Params[0]: lv.row,
		result.Params[1]: jp,
	})
	lv.row = simplify(body)
	lv.info.Joins = append(lv.info.Joins, j)
	lv.info.Select = query.Fn(lv.row, lv.params...)
	return nil
}

func count(op query.Operation) (int, error) {
	v, ok := op.Constant(0)
	if !ok {
		return 0, query.Unsupported(string(op.Kind), "expected a constant count")
	}
	n, ok := v.(int)
	if !ok || n < 0 {
		return 0, query.Unsupported(string(op.Kind), "expected a non-negative int, got %v", v)
	}
	return n, nil
}

// finish completes a level. The outermost level also gets the one-to-many
// rewrite.
func (ps *parser) finish(lv *level, outermost bool) (*query.SelectInfo, error) {
	if lv.grouped() && lv.info.Select == nil && lv.info.Aggregate == nil {
		return nil, query.Unsupported(string(query.OpGroupBy), "a grouped sequence needs a Select")
	}
	if !outermost {
		if many, err := ps.hasMany(lv.info); err != nil {
			return nil, err
		} else if many {
			return nil, query.Unsupported(string(query.OpSelect), "collection navigations can only be projected by the outermost query")
		}
		return lv.info, nil
	}
	return ps.promoteForFanOut(lv.info)
}
