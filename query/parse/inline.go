package parse

import (
	"github.com/shipq/opsql/query"
)

// level accumulates one SELECT level.
type level struct {
	info *query.SelectInfo
	// params are the positional row sources: 0 is the root, i the i-th join.
	params []*query.Parameter
	// row is the current row shape expressed over params.
	row query.Expr

	// groupKey and groupRow are set between GroupBy and the Select that
	// consumes the groups.
	groupKey query.Expr
	groupRow query.Expr

	closed   bool
	terminal query.OpKind
	last     query.OpKind
}

func newLevel(info *query.SelectInfo) *level {
	p := query.Param("t")
	return &level{info: info, params: []*query.Parameter{p}, row: p}
}

func (lv *level) grouped() bool { return lv.info.GroupBy != nil }

// ends reports whether op has to apply to the finished result of lv rather
// than be merged into it.
func (lv *level) ends(op query.Operation) bool {
	info := lv.info
	switch {
	case info.Take > 0:
		return true
	case info.Skip > 0 && op.Kind != query.OpSkip && op.Kind != query.OpTake:
		return true
	case len(info.Unions) > 0 && op.Kind != query.OpUnion:
		return true
	case lv.closed:
		return op.Kind != query.OpUnion
	}
	if lv.grouped() {
		switch op.Kind {
		case query.OpGroupBy, query.OpJoin, query.OpGroupJoin, query.OpAny,
			query.OpAverage, query.OpMin, query.OpSum, query.OpMax, query.OpCount:
			return true
		}
	}
	return false
}

// inlineArg inlines the i-th argument of op, which must be a lambda.
func (lv *level) inlineArg(op query.Operation, i int) (*query.Lambda, error) {
	l := op.Lambda(i)
	if l == nil {
		return nil, query.Unsupported(string(op.Kind), "expected a lambda argument")
	}
	return lv.inline(l)
}

// inline rewrites a single-parameter lambda written against the current row
// into a positional lambda over the level's sources.
func (lv *level) inline(l *query.Lambda) (*query.Lambda, error) {
	if len(l.Params) != 1 {
		return nil, query.Unsupported("lambda", "expected one parameter, got %d", len(l.Params))
	}
	if lv.groupKey != nil {
		body, err := lv.inlineGroup(l.Params[0], l.Body)
		if err != nil {
			return nil, err
		}
		return query.Fn(body, lv.params...), nil
	}
	body := substitute(l.Body, map[*query.Parameter]query.Expr{l.Params[0]: lv.row})
	return query.Fn(simplify(body), lv.params...), nil
}

var aggregateMethods = map[string]bool{
	"Count": true, "LongCount": true, "Sum": true, "Min": true, "Max": true, "Average": true,
}

// inlineGroup rewrites a lambda over a group g: g.Key becomes the key
// selector and g.Sum(x => ...) an aggregate call over the pre-group row.
func (lv *level) inlineGroup(g *query.Parameter, body query.Expr) (query.Expr, error) {
	var err error
	out := query.Rewrite(body, func(e query.Expr) (query.Expr, bool) {
		if err != nil {
			return e, true
		}
		switch v := e.(type) {
		case query.Member:
			if v.Target == query.Expr(g) {
				if v.Name != "Key" {
					err = query.Unsupported("GroupBy", "group has no member %s", v.Name)
					return e, true
				}
				return lv.groupKey, true
			}
		case query.Call:
			if len(v.Args) == 0 || v.Args[0] != query.Expr(g) {
				return nil, false
			}
			if !aggregateMethods[v.Name] {
				err = query.Unsupported(v.Name, "not an aggregate over a group")
				return e, true
			}
			if len(v.Args) == 1 {
				return query.Call{Name: v.Name}, true
			}
			sel, ok := v.Args[1].(*query.Lambda)
			if !ok || len(sel.Params) != 1 {
				err = query.Unsupported(v.Name, "expected a selector lambda")
				return e, true
			}
			if v.Name == "Count" || v.Name == "LongCount" {
				err = query.Unsupported(v.Name, "counting with a predicate over a group")
				return e, true
			}
			arg := simplify(substitute(sel.Body, map[*query.Parameter]query.Expr{sel.Params[0]: lv.groupRow}))
			return query.Call{Name: v.Name, Args: []query.Expr{arg}}, true
		case *query.Parameter:
			if v == g {
				err = query.Unsupported("GroupBy", "a group cannot be used as a value")
				return e, true
			}
		}
		return nil, false
	})
	if err != nil {
		return nil, err
	}
	return simplify(out), nil
}

// substitute replaces parameters by expressions.
func substitute(e query.Expr, with map[*query.Parameter]query.Expr) query.Expr {
	return query.Rewrite(e, func(n query.Expr) (query.Expr, bool) {
		if p, ok := n.(*query.Parameter); ok {
			if r, ok := with[p]; ok {
				return r, true
			}
		}
		return nil, false
	})
}

// simplify folds member accesses on constructed objects to the bound value:
// new { A = x.Id }.A is x.Id.
func simplify(e query.Expr) query.Expr {
	return query.Rewrite(e, func(n query.Expr) (query.Expr, bool) {
		m, ok := n.(query.Member)
		if !ok {
			return nil, false
		}
		target := simplify(m.Target)
		if v, ok := field(target, m.Name); ok {
			return v, true
		}
		return query.Member{Target: target, Name: m.Name}, true
	})
}

// field returns the value bound to name by a constructed object.
func field(e query.Expr, name string) (query.Expr, bool) {
	switch v := e.(type) {
	case query.New:
		for i, f := range v.Fields {
			if f == name && i < len(v.Args) {
				return v.Args[i], true
			}
		}
	case query.ObjectInit:
		for _, b := range v.Bindings {
			if b.Field == name {
				return b.Value, true
			}
		}
	}
	return nil, false
}
