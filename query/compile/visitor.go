package compile

import (
	"reflect"
	"strings"
	"time"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

// Operator precedence of rendered fragments; a child binding looser than its
// parent operator is parenthesized.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCmp
	precAdd
	precMul
	precUnary
	precAtom
)

var (
	boolType    = reflect.TypeOf(false)
	int64Type   = reflect.TypeOf(int64(0))
	float64Type = reflect.TypeOf(float64(0))
	stringType  = reflect.TypeOf("")
	timeType    = reflect.TypeOf(time.Time{})
)

// fragment is a rendered expression.
type fragment struct {
	sql  string
	prec int
	typ  reflect.Type
	// col is the column a plain column reference reads; bare its name.
	col  *meta.Column
	bare string
	// pred marks boolean conditions, which need CASE WHEN to become values.
	pred bool
}

func paren(f fragment, min int) string {
	if f.prec < min {
		return "(" + f.sql + ")"
	}
	return f.sql
}

func (f fragment) isString() bool {
	t := f.typ
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.String {
		return true
	}
	if f.col != nil {
		db := strings.ToLower(f.col.DBType)
		return strings.Contains(db, "char") || strings.Contains(db, "text") || strings.Contains(db, "string")
	}
	return false
}

var sqlOps = map[query.BinaryOp]string{
	query.OpEq: "=", query.OpNe: "<>", query.OpLt: "<", query.OpLe: "<=", query.OpGt: ">", query.OpGe: ">=",
	query.OpAnd: "AND", query.OpOr: "OR",
	query.OpAdd: "+", query.OpSub: "-", query.OpMul: "*", query.OpDiv: "/",
}

// predicate renders e as a condition. Boolean values are compared with
// true.
func (s *scope) predicate(e query.Expr) (fragment, error) {
	f, err := s.visit(e, nil)
	if err != nil {
		return fragment{}, err
	}
	if !f.pred {
		f = fragment{sql: paren(f, precAdd) + " = " + s.d.BoolLiteral(true), prec: precCmp, typ: boolType, pred: true}
	}
	return f, nil
}

// value renders e as a value. Conditions become CASE WHEN.
func (s *scope) value(e query.Expr) (fragment, error) {
	return s.valueWith(e, nil)
}

func (s *scope) valueWith(e query.Expr, ctx *meta.Column) (fragment, error) {
	f, err := s.visit(e, ctx)
	if err != nil {
		return fragment{}, err
	}
	if f.pred {
		f = fragment{
			sql:  "CASE WHEN " + f.sql + " THEN " + s.d.BoolLiteral(true) + " ELSE " + s.d.BoolLiteral(false) + " END",
			prec: precAtom,
			typ:  boolType,
		}
	}
	return f, nil
}

// conditions renders lambdas as one AND-ed condition.
func (s *scope) conditions(ls []*query.Lambda) (string, error) {
	parts := make([]string, 0, len(ls))
	for _, l := range ls {
		s.bind(l)
		f, err := s.predicate(l.Body)
		if err != nil {
			return "", err
		}
		if len(ls) > 1 {
			parts = append(parts, paren(f, precAnd))
		} else {
			parts = append(parts, f.sql)
		}
	}
	return strings.Join(parts, " AND "), nil
}

// visit renders e in its natural form. ctx is the column an evaluable e is
// compared with or assigned to.
func (s *scope) visit(e query.Expr, ctx *meta.Column) (fragment, error) {
	if e == nil {
		return fragment{}, query.Unsupported("expression", "missing operand")
	}
	if _, isLambda := e.(*query.Lambda); !isLambda && query.Evaluable(e) {
		v, err := query.Eval(e)
		if err != nil {
			return fragment{}, err
		}
		sql, err := s.st.f.Format(v, ctx)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: sql, prec: precAtom, typ: reflect.TypeOf(v)}, nil
	}
	if s.keyed != nil {
		switch e.(type) {
		case query.Binary, query.Unary, query.Call:
			if c, ok := s.keyed.byKey[query.Key(e, s.pos)]; ok {
				return fragment{sql: s.columnRef(s.sources[0].alias, c.name), prec: precAtom, typ: c.typ, col: c.meta, bare: c.name}, nil
			}
		}
	}
	switch v := e.(type) {
	case *query.Parameter, query.Member:
		return s.visitMember(e)
	case query.Binary:
		return s.visitBinary(v)
	case query.Unary:
		if v.Op == query.OpNot {
			f, err := s.predicate(v.Operand)
			if err != nil {
				return fragment{}, err
			}
			return fragment{sql: "NOT " + paren(f, precAtom), prec: precNot, typ: boolType, pred: true}, nil
		}
		f, err := s.value(v.Operand)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: "-" + paren(f, precUnary), prec: precUnary, typ: f.typ}, nil
	case query.Call:
		return s.visitCall(v)
	}
	return fragment{}, query.Unsupported("expression", "%s cannot be translated to SQL", e)
}

var dateParts = map[string]string{
	"Year": "year", "Month": "month", "Day": "day", "Hour": "hour", "Minute": "minute", "Second": "second",
}

func (s *scope) visitMember(e query.Expr) (fragment, error) {
	root, _ := query.RootParam(e)
	if root != nil {
		r, err := s.resolve(e)
		switch {
		case err == nil && r.isColumn():
			return r.fragment(), nil
		case err == nil && r.many != nil:
			return fragment{}, query.Unsupported("member", "collection %s used as a value", e)
		case err == nil:
			return fragment{}, query.Unsupported("member", "%s is a row, not a value", e)
		case !query.IsMapping(err):
			return fragment{}, err
		}
		if f, ok, perr := s.property(e); ok || perr != nil {
			return f, perr
		}
		return fragment{}, err
	}
	if f, ok, err := s.property(e); ok || err != nil {
		return f, err
	}
	return fragment{}, query.Unsupported("member", "%s cannot be translated to SQL", e)
}

// property renders members of values: date parts and string length.
func (s *scope) property(e query.Expr) (fragment, bool, error) {
	m, ok := e.(query.Member)
	if !ok {
		return fragment{}, false, nil
	}
	part, isDate := dateParts[m.Name]
	if !isDate && m.Name != "Length" {
		return fragment{}, false, nil
	}
	target, err := s.value(m.Target)
	if err != nil {
		return fragment{}, false, err
	}
	if isDate {
		return fragment{sql: s.d.DatePart(part, target.sql), prec: precAtom, typ: int64Type}, true, nil
	}
	return fragment{sql: s.d.Length(target.sql), prec: precAtom, typ: int64Type}, true, nil
}

func isNull(e query.Expr) bool {
	if !query.Evaluable(e) {
		return false
	}
	v, err := query.Eval(e)
	if err != nil {
		return false
	}
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// operands renders both sides of a binary operation, formatting an evaluable
// side in the context of the other side's column.
func (s *scope) operands(l, r query.Expr) (fragment, fragment, error) {
	if query.Evaluable(l) && !query.Evaluable(r) {
		rf, err := s.value(r)
		if err != nil {
			return fragment{}, fragment{}, err
		}
		lf, err := s.valueWith(l, rf.col)
		return lf, rf, err
	}
	lf, err := s.value(l)
	if err != nil {
		return fragment{}, fragment{}, err
	}
	rf, err := s.valueWith(r, lf.col)
	return lf, rf, err
}

func (s *scope) visitBinary(b query.Binary) (fragment, error) {
	switch {
	case b.Op == query.OpCoalesce:
		l, r, err := s.operands(b.Left, b.Right)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: "COALESCE(" + l.sql + ", " + r.sql + ")", prec: precAtom, typ: l.typ, col: l.col}, nil

	case b.Op.IsLogical():
		prec := precAnd
		if b.Op == query.OpOr {
			prec = precOr
		}
		l, err := s.predicate(b.Left)
		if err != nil {
			return fragment{}, err
		}
		r, err := s.predicate(b.Right)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: paren(l, prec) + " " + sqlOps[b.Op] + " " + paren(r, prec), prec: prec, typ: boolType, pred: true}, nil

	case (b.Op == query.OpEq || b.Op == query.OpNe) && (isNull(b.Left) || isNull(b.Right)):
		x := b.Left
		if isNull(b.Left) {
			x = b.Right
		}
		if isNull(x) {
			return fragment{sql: "1 = 1", prec: precCmp, typ: boolType, pred: true}, nil
		}
		f, err := s.value(x)
		if err != nil {
			return fragment{}, err
		}
		op := " IS NULL"
		if b.Op == query.OpNe {
			op = " IS NOT NULL"
		}
		return fragment{sql: paren(f, precAdd) + op, prec: precCmp, typ: boolType, pred: true}, nil

	case b.Op.IsComparison():
		l, r, err := s.operands(b.Left, b.Right)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: paren(l, precAdd) + " " + sqlOps[b.Op] + " " + paren(r, precAdd), prec: precCmp, typ: boolType, pred: true}, nil
	}

	l, r, err := s.operands(b.Left, b.Right)
	if err != nil {
		return fragment{}, err
	}
	switch b.Op {
	case query.OpAdd:
		if l.isString() || r.isString() {
			return fragment{sql: s.d.Concat(paren(l, precAdd), paren(r, precMul)), prec: precAdd, typ: stringType}, nil
		}
		return arith(l, r, "+", precAdd), nil
	case query.OpSub:
		return arith(l, r, "-", precAdd), nil
	case query.OpMul:
		return arith(l, r, "*", precMul), nil
	case query.OpDiv:
		return arith(l, r, "/", precMul), nil
	case query.OpMod:
		return fragment{sql: s.d.Mod(paren(l, precMul), paren(r, precUnary)), prec: precMul, typ: l.typ}, nil
	}
	return fragment{}, query.Unsupported("operator", "%s", b.Op)
}

func arith(l, r fragment, op string, prec int) fragment {
	typ := l.typ
	if typ == nil {
		typ = r.typ
	}
	return fragment{sql: paren(l, prec) + " " + op + " " + paren(r, prec+1), prec: prec, typ: typ}
}
