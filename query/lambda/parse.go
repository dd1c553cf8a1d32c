// Package lambda parses the textual lambda syntax used by query files and
// tests into query expression trees.
//
//	d => d.Id <= 10 && d.Name.Contains("x")
//	(a, b) => new { a.Id, b.Name }
//	d => new Demo { Code = "x" }
//	g => g.Sum(x => x.Price)
//	d => $ids.Contains(d.Id)
//
// Identifiers prefixed with $ are captured values looked up in the variables
// passed to Parse. Numbers with an m suffix are decimals.
package lambda

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/shipq/opsql/query"
)

// Parse parses a lambda such as "d => d.Id > 0".
func Parse(src string, vars map[string]any) (*query.Lambda, error) {
	p, err := newParser(src, vars)
	if err != nil {
		return nil, err
	}
	l, ok, err := p.tryLambda()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("expected lambda")
	}
	if p.peek().t != tEnd {
		return nil, p.errorf("unexpected %s", p.peek())
	}
	return l, nil
}

// MustParse is Parse for statically known lambdas; it panics on error.
func MustParse(src string, vars ...map[string]any) *query.Lambda {
	var v map[string]any
	if len(vars) > 0 {
		v = vars[0]
	}
	l, err := Parse(src, v)
	if err != nil {
		panic(err)
	}
	return l
}

// ParseExpr parses a parameterless expression, e.g. a captured value.
func ParseExpr(src string, vars map[string]any) (query.Expr, error) {
	p, err := newParser(src, vars)
	if err != nil {
		return nil, err
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.peek().t != tEnd {
		return nil, p.errorf("unexpected %s", p.peek())
	}
	return e, nil
}

type parser struct {
	toks   []token
	i      int
	vars   map[string]any
	scopes []map[string]*query.Parameter
}

func newParser(src string, vars map[string]any) (*parser, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, vars: vars}, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.t != tEnd {
		p.i++
	}
	return t
}

func (p *parser) isOp(val string) bool {
	t := p.peek()
	return t.t == tOp && t.val == val
}

func (p *parser) eat(val string) bool {
	if p.isOp(val) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(val string) error {
	if !p.eat(val) {
		return p.errorf("expected %q, got %s", val, p.peek())
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) lookup(name string) (*query.Parameter, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if prm, ok := p.scopes[i][name]; ok {
			return prm, true
		}
	}
	return nil, false
}

// tryLambda parses "x => body" or "(x, y) => body" when one starts at the
// current token.
func (p *parser) tryLambda() (*query.Lambda, bool, error) {
	var names []string
	switch {
	case p.peek().t == tIdent && p.peekAt(1).t == tOp && p.peekAt(1).val == "=>":
		names = []string{p.next().val}
	case p.isOp("("):
		n := 1
		for {
			t := p.peekAt(n)
			if t.t == tOp && t.val == ")" {
				break
			}
			if t.t != tIdent {
				return nil, false, nil
			}
			names = append(names, t.val)
			n++
			if t := p.peekAt(n); t.t == tOp && t.val == "," {
				n++
			}
		}
		if t := p.peekAt(n + 1); t.t != tOp || t.val != "=>" {
			return nil, false, nil
		}
		p.i += n + 1
	default:
		return nil, false, nil
	}
	if err := p.expect("=>"); err != nil {
		return nil, false, err
	}
	scope := make(map[string]*query.Parameter, len(names))
	params := make([]*query.Parameter, len(names))
	for i, n := range names {
		params[i] = query.Param(n)
		scope[n] = params[i]
	}
	p.scopes = append(p.scopes, scope)
	body, err := p.expr()
	p.scopes = p.scopes[:len(p.scopes)-1]
	if err != nil {
		return nil, false, err
	}
	return query.Fn(body, params...), true, nil
}

func (p *parser) expr() (query.Expr, error) {
	return p.coalesce()
}

func (p *parser) coalesce() (query.Expr, error) {
	left, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if p.eat("??") {
		right, err := p.coalesce()
		if err != nil {
			return nil, err
		}
		return query.Binary{Op: query.OpCoalesce, Left: left, Right: right}, nil
	}
	return left, nil
}

// Binary operator precedence levels, loosest first.
var levels = [][]query.BinaryOp{
	{query.OpOr},
	{query.OpAnd},
	{query.OpEq, query.OpNe, query.OpLt, query.OpLe, query.OpGt, query.OpGe},
	{query.OpAdd, query.OpSub},
	{query.OpMul, query.OpDiv, query.OpMod},
}

func (p *parser) binary(level int) (query.Expr, error) {
	if level == len(levels) {
		return p.unary()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.levelOp(level)
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		left = query.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) levelOp(level int) (query.BinaryOp, bool) {
	t := p.peek()
	if t.t != tOp {
		return "", false
	}
	for _, op := range levels[level] {
		if string(op) == t.val {
			return op, true
		}
	}
	return "", false
}

func (p *parser) unary() (query.Expr, error) {
	switch {
	case p.eat("!"):
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		return query.Not(e), nil
	case p.isOp("-"):
		p.next()
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		if c, ok := e.(query.Constant); ok {
			if v, err := query.Eval(query.Unary{Op: query.OpNegate, Operand: c}); err == nil {
				return query.Const(v), nil
			}
			if d, ok := c.Value.(decimal.Decimal); ok {
				return query.Const(d.Neg()), nil
			}
		}
		return query.Unary{Op: query.OpNegate, Operand: e}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (query.Expr, error) {
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.eat(".") {
		name := p.next()
		if name.t != tIdent {
			return nil, p.errorf("expected member name, got %s", name)
		}
		if !p.isOp("(") {
			e = query.Member{Target: e, Name: name.val}
			continue
		}
		p.next()
		args, err := p.args(")")
		if err != nil {
			return nil, err
		}
		e = query.Method(e, name.val, args...)
	}
	return e, nil
}

// args parses comma-separated arguments, each of which may be a lambda, up
// to the closing delimiter.
func (p *parser) args(closing string) ([]query.Expr, error) {
	var out []query.Expr
	if p.eat(closing) {
		return out, nil
	}
	for {
		l, ok, err := p.tryLambda()
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, l)
		} else {
			e, err := p.expr()
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		if p.eat(closing) {
			return out, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) primary() (query.Expr, error) {
	t := p.peek()
	switch t.t {
	case tNumber:
		p.next()
		return number(t)
	case tString:
		p.next()
		return query.Const(t.val), nil
	case tVar:
		p.next()
		v, ok := p.vars[t.val]
		if !ok {
			return nil, &SyntaxError{Offset: t.pos, Msg: fmt.Sprintf("undefined variable $%s", t.val)}
		}
		return query.Const(v), nil
	case tIdent:
		switch t.val {
		case "true", "false":
			p.next()
			return query.Const(t.val == "true"), nil
		case "null", "nil":
			p.next()
			return query.Const(nil), nil
		case "new":
			p.next()
			return p.newExpr()
		}
		if prm, ok := p.lookup(t.val); ok {
			p.next()
			return prm, nil
		}
		if next := p.peekAt(1); next.t == tOp && next.val == "(" {
			p.next()
			p.next()
			args, err := p.args(")")
			if err != nil {
				return nil, err
			}
			return query.Call{Name: t.val, Args: args}, nil
		}
		return nil, &SyntaxError{Offset: t.pos, Msg: fmt.Sprintf("undefined name %s", t.val)}
	case tOp:
		switch t.val {
		case "(":
			p.next()
			e, err := p.expr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			p.next()
			items, err := p.args("]")
			if err != nil {
				return nil, err
			}
			return query.Collection{Items: items}, nil
		}
	}
	return nil, p.errorf("unexpected %s", t)
}

// newExpr parses "new { ... }" (anonymous object) or "new T { F = ... }"
// (object initializer) after the new keyword.
func (p *parser) newExpr() (query.Expr, error) {
	typeName := ""
	if p.peek().t == tIdent {
		typeName = p.next().val
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var fields []string
	var values []query.Expr
	for !p.eat("}") {
		field := ""
		if p.peek().t == tIdent && p.peekAt(1).t == tOp && p.peekAt(1).val == "=" {
			field = p.next().val
			p.next()
		}
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if field == "" {
			field = query.InferName(e)
			if field == "" {
				return nil, p.errorf("cannot infer a field name for %s", e)
			}
		}
		fields = append(fields, field)
		values = append(values, e)
		if !p.eat(",") {
			if err := p.expect("}"); err != nil {
				return nil, err
			}
			break
		}
	}
	if typeName == "" {
		return query.New{Args: values, Fields: fields}, nil
	}
	bindings := make([]query.Binding, len(fields))
	for i := range fields {
		bindings[i] = query.Binding{Field: fields[i], Value: values[i]}
	}
	return query.ObjectInit{New: query.New{Type: typeName}, Bindings: bindings}, nil
}

func number(t token) (query.Expr, error) {
	s := t.val
	if last := s[len(s)-1]; last == 'm' || last == 'M' {
		d, err := decimal.NewFromString(s[:len(s)-1])
		if err != nil {
			return nil, &SyntaxError{Offset: t.pos, Msg: err.Error()}
		}
		return query.Const(d), nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		return query.Const(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &SyntaxError{Offset: t.pos, Msg: err.Error()}
	}
	return query.Const(f), nil
}
