package compile

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/parse"
)

var aggregateFuncs = map[string]string{
	"Count": "COUNT", "LongCount": "COUNT", "Sum": "SUM", "Min": "MIN", "Max": "MAX", "Average": "AVG",
}

// visitCall renders method and function calls. For methods the receiver is
// Args[0].
func (s *scope) visitCall(c query.Call) (fragment, error) {
	switch c.Name {
	case "Now":
		if len(c.Args) == 0 {
			return fragment{sql: s.d.NowFunc(), prec: precAtom, typ: timeType}, nil
		}
	case "Coalesce":
		if len(c.Args) >= 2 {
			parts := make([]string, len(c.Args))
			var first fragment
			for i, a := range c.Args {
				f, err := s.valueWith(a, first.col)
				if err != nil {
					return fragment{}, err
				}
				if i == 0 {
					first = f
				}
				parts[i] = f.sql
			}
			return fragment{sql: "COALESCE(" + strings.Join(parts, ", ") + ")", prec: precAtom, typ: first.typ, col: first.col}, nil
		}
	}
	if len(c.Args) == 0 {
		if c.Name == "Count" || c.Name == "LongCount" {
			return fragment{sql: "COUNT(*)", prec: precAtom, typ: int64Type}, nil
		}
		return fragment{}, query.Unsupported(c.Name, "unknown function")
	}

	recv := c.Args[0]
	if root, _ := query.RootParam(recv); root != nil {
		if r, err := s.resolve(recv); err == nil && r.many != nil {
			return s.navAggregate(c, r)
		}
	}

	switch c.Name {
	case "Sum", "Min", "Max", "Average":
		if len(c.Args) == 1 {
			f, err := s.value(recv)
			if err != nil {
				return fragment{}, err
			}
			typ := f.typ
			if c.Name == "Average" {
				typ = float64Type
			}
			return fragment{sql: aggregateFuncs[c.Name] + "(" + f.sql + ")", prec: precAtom, typ: typ}, nil
		}
	case "Contains":
		if len(c.Args) == 2 {
			return s.contains(recv, c.Args[1])
		}
	case "StartsWith", "EndsWith":
		if len(c.Args) == 2 {
			if c.Name == "StartsWith" {
				return s.like(recv, c.Args[1], "", "%")
			}
			return s.like(recv, c.Args[1], "%", "")
		}
	case "ToUpper", "ToLower", "Trim", "Length":
		if len(c.Args) == 1 {
			f, err := s.value(recv)
			if err != nil {
				return fragment{}, err
			}
			switch c.Name {
			case "ToUpper":
				return fragment{sql: "UPPER(" + f.sql + ")", prec: precAtom, typ: stringType}, nil
			case "ToLower":
				return fragment{sql: "LOWER(" + f.sql + ")", prec: precAtom, typ: stringType}, nil
			case "Trim":
				return fragment{sql: s.d.Trim(f.sql), prec: precAtom, typ: stringType}, nil
			}
			return fragment{sql: s.d.Length(f.sql), prec: precAtom, typ: int64Type}, nil
		}
	case "Substring":
		if len(c.Args) == 2 || len(c.Args) == 3 {
			return s.substring(c.Args)
		}
	case "IsNullOrEmpty":
		if len(c.Args) == 1 {
			f, err := s.value(recv)
			if err != nil {
				return fragment{}, err
			}
			x := paren(f, precAdd)
			return fragment{sql: "(" + x + " IS NULL OR " + x + " = '')", prec: precAtom, typ: boolType, pred: true}, nil
		}
	}
	return fragment{}, query.Unsupported(c.Name, "method with %d arguments", len(c.Args)-1)
}

// contains renders collection membership as IN, and substring search on
// strings as LIKE.
func (s *scope) contains(recv, item query.Expr) (fragment, error) {
	if col, ok := recv.(query.Collection); ok && !query.Evaluable(recv) {
		x, err := s.value(item)
		if err != nil {
			return fragment{}, err
		}
		if len(col.Items) == 0 {
			return fragment{sql: "1 = 0", prec: precCmp, typ: boolType, pred: true}, nil
		}
		parts := make([]string, len(col.Items))
		for i, it := range col.Items {
			f, err := s.valueWith(it, x.col)
			if err != nil {
				return fragment{}, err
			}
			parts[i] = f.sql
		}
		return fragment{sql: paren(x, precAdd) + " IN (" + strings.Join(parts, ", ") + ")", prec: precCmp, typ: boolType, pred: true}, nil
	}
	if !query.Evaluable(recv) {
		return s.like(recv, item, "%", "%")
	}
	v, err := query.Eval(recv)
	if err != nil {
		return fragment{}, err
	}
	switch list := v.(type) {
	case string:
		return s.like(recv, item, "%", "%")
	case query.Sequence:
		return s.inSubquery(list, item)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fragment{}, query.Unsupported("Contains", "receiver %T is not a collection", v)
	}
	x, err := s.value(item)
	if err != nil {
		return fragment{}, err
	}
	if rv.Len() == 0 {
		return fragment{sql: "1 = 0", prec: precCmp, typ: boolType, pred: true}, nil
	}
	items, err := s.st.f.Format(v, x.col)
	if err != nil {
		return fragment{}, err
	}
	return fragment{sql: paren(x, precAdd) + " IN (" + items + ")", prec: precCmp, typ: boolType, pred: true}, nil
}

func (s *scope) inSubquery(seq query.Sequence, item query.Expr) (fragment, error) {
	x, err := s.value(item)
	if err != nil {
		return fragment{}, err
	}
	sel, err := parse.ParseSelect(seq, s.st.provider)
	if err != nil {
		return fragment{}, fmt.Errorf("contains: %w", err)
	}
	tb, p, err := s.st.selectLevel(sel, levelOperand)
	if err != nil {
		return fragment{}, err
	}
	if len(p.visible()) != 1 {
		return fragment{}, query.Unsupported("Contains", "subquery must select one column, got %d", len(p.visible()))
	}
	return fragment{sql: paren(x, precAdd) + " IN (" + tb.Inline() + ")", prec: precCmp, typ: boolType, pred: true}, nil
}

// likeEscape is the escape character of LIKE patterns built from values.
const likeEscape = "!"

func (s *scope) like(recv, pattern query.Expr, before, after string) (fragment, error) {
	x, err := s.value(recv)
	if err != nil {
		return fragment{}, err
	}
	if query.Evaluable(pattern) {
		v, err := query.Eval(pattern)
		if err != nil {
			return fragment{}, err
		}
		text, ok := v.(string)
		if !ok {
			text = fmt.Sprint(v)
		}
		escaped := s.escapeLike(text)
		p, err := s.st.f.Format(before+escaped+after, x.col)
		if err != nil {
			return fragment{}, err
		}
		sql := paren(x, precAdd) + " LIKE " + p
		if escaped != text {
			sql += " ESCAPE '" + likeEscape + "'"
		}
		return fragment{sql: sql, prec: precCmp, typ: boolType, pred: true}, nil
	}
	p, err := s.value(pattern)
	if err != nil {
		return fragment{}, err
	}
	expr := p.sql
	if before != "" {
		expr = s.d.Concat("'"+before+"'", paren(p, precMul))
	}
	if after != "" {
		expr = s.d.Concat(expr, "'"+after+"'")
	}
	return fragment{sql: paren(x, precAdd) + " LIKE " + expr, prec: precCmp, typ: boolType, pred: true}, nil
}

func (s *scope) escapeLike(text string) string {
	special := "!%_"
	if _, brackets := s.d.(*SQLServerDialect); brackets {
		special += "["
	}
	if !strings.ContainsAny(text, special) {
		return text
	}
	var b strings.Builder
	for _, r := range text {
		if strings.ContainsRune(special, r) {
			b.WriteString(likeEscape)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// substring renders s.Substring(start[, length]); start is 0-based.
func (s *scope) substring(args []query.Expr) (fragment, error) {
	x, err := s.value(args[0])
	if err != nil {
		return fragment{}, err
	}
	var start string
	if query.Evaluable(args[1]) {
		v, err := query.Eval(args[1])
		if err != nil {
			return fragment{}, err
		}
		n, ok := v.(int)
		if !ok {
			return fragment{}, query.Unsupported("Substring", "start must be an int, got %T", v)
		}
		start = strconv.Itoa(n + 1)
	} else {
		f, err := s.value(args[1])
		if err != nil {
			return fragment{}, err
		}
		start = paren(f, precAdd) + " + 1"
	}
	length := s.d.Length(x.sql)
	if len(args) == 3 {
		f, err := s.value(args[2])
		if err != nil {
			return fragment{}, err
		}
		length = f.sql
	}
	return fragment{sql: s.d.Substring(x.sql, start, length), prec: precAtom, typ: stringType}, nil
}

// navAggregate renders Any, All, Count and the numeric aggregates over a
// collection navigation as a correlated subquery.
func (s *scope) navAggregate(c query.Call, r *ref) (fragment, error) {
	target, err := s.st.provider.Entity(r.many.Target)
	if err != nil {
		return fragment{}, err
	}
	child := s.child()
	alias := s.aliases.Next()
	child.sources = []cursor{{alias: alias, entity: target}}

	var conds []string
	for _, kp := range r.many.Keys {
		fc := target.Column(kp.Foreign)
		if fc == nil {
			return fragment{}, &query.MappingError{Path: kp.Foreign, Entity: target.Name}
		}
		local, err := s.localRef(r.owner, kp.Local)
		if err != nil {
			return fragment{}, err
		}
		conds = append(conds, child.columnRef(alias, fc.Name)+" = "+local)
	}

	var fn *query.Lambda
	if len(c.Args) > 1 {
		l, ok := c.Args[1].(*query.Lambda)
		if !ok || len(l.Params) != 1 {
			return fragment{}, query.Unsupported(c.Name, "expected a lambda over %s", r.many.Field)
		}
		fn = l
		child.bind(fn)
	}

	head := "SELECT 1"
	out := fragment{prec: precAtom, typ: int64Type}
	switch c.Name {
	case "Any", "All":
		if fn != nil {
			p, err := child.predicate(fn.Body)
			if err != nil {
				return fragment{}, err
			}
			if c.Name == "All" {
				conds = append(conds, "NOT "+paren(p, precAtom))
			} else {
				conds = append(conds, paren(p, precAnd))
			}
		} else if c.Name == "All" {
			return fragment{}, query.Unsupported(c.Name, "needs a predicate")
		}
		out.typ, out.pred = boolType, true
	case "Count", "LongCount":
		if fn != nil {
			p, err := child.predicate(fn.Body)
			if err != nil {
				return fragment{}, err
			}
			conds = append(conds, paren(p, precAnd))
		}
		head = "SELECT COUNT(*)"
	case "Sum", "Min", "Max", "Average":
		if fn == nil {
			return fragment{}, query.Unsupported(c.Name, "needs a selector over %s", r.many.Field)
		}
		v, err := child.value(fn.Body)
		if err != nil {
			return fragment{}, err
		}
		head = "SELECT " + aggregateFuncs[c.Name] + "(" + v.sql + ")"
		out.typ = v.typ
	default:
		return fragment{}, query.Unsupported(c.Name, "over collection %s", r.many.Field)
	}

	var b strings.Builder
	b.WriteString(head)
	b.WriteString(" FROM ")
	b.WriteString(s.d.QuoteIdentifier(target.Table))
	b.WriteString(" ")
	b.WriteString(alias)
	for _, j := range child.navJoins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))

	switch c.Name {
	case "Any":
		out.sql = "EXISTS (" + b.String() + ")"
	case "All":
		out.sql = "NOT EXISTS (" + b.String() + ")"
	default:
		out.sql = "(" + b.String() + ")"
	}
	return out, nil
}
