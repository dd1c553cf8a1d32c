package query

import (
	"fmt"
	"strings"
)

// Expr is a node of a query expression tree.
// The set of implementations is closed: Member, Constant, Binary, Unary,
// Call, *Lambda, New, ObjectInit, *Parameter and Collection.
type Expr interface {
	expr()
	String() string
}

// BinaryOp identifies a binary operator.
type BinaryOp string

const (
	OpEq       BinaryOp = "=="
	OpNe       BinaryOp = "!="
	OpLt       BinaryOp = "<"
	OpLe       BinaryOp = "<="
	OpGt       BinaryOp = ">"
	OpGe       BinaryOp = ">="
	OpAnd      BinaryOp = "&&"
	OpOr       BinaryOp = "||"
	OpAdd      BinaryOp = "+"
	OpSub      BinaryOp = "-"
	OpMul      BinaryOp = "*"
	OpDiv      BinaryOp = "/"
	OpMod      BinaryOp = "%"
	OpCoalesce BinaryOp = "??"
)

// IsComparison reports whether op compares two operands.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// IsLogical reports whether op is AND or OR.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// UnaryOp identifies a unary operator.
type UnaryOp string

const (
	OpNot    UnaryOp = "!"
	OpNegate UnaryOp = "-"
)

// Member is a member access: Target.Name.
type Member struct {
	Target Expr
	Name   string
}

// Constant is a host value captured by the query.
type Constant struct {
	Value any
}

// Binary is a binary operation.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Unary is a unary operation.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// Call is a method or function call. For method calls the receiver is Args[0].
type Call struct {
	Name string
	Args []Expr
}

// Lambda is an anonymous function with positional parameters.
type Lambda struct {
	Params []*Parameter
	Body   Expr
}

// New constructs an object from positional arguments. Fields names the
// argument that each position is bound to; anonymous objects always carry
// Fields.
type New struct {
	Type   string
	Args   []Expr
	Fields []string
}

// Binding assigns Value to Field in an ObjectInit.
type Binding struct {
	Field string
	Value Expr
}

// ObjectInit constructs an object and assigns fields by name.
type ObjectInit struct {
	New      New
	Bindings []Binding
}

// Parameter is a lambda parameter.
type Parameter struct {
	Name string
	Type string
}

// Collection is a list literal.
type Collection struct {
	Items []Expr
}

func (Member) expr()      {}
func (Constant) expr()    {}
func (Binary) expr()      {}
func (Unary) expr()       {}
func (Call) expr()        {}
func (*Lambda) expr()     {}
func (New) expr()         {}
func (ObjectInit) expr()  {}
func (*Parameter) expr()  {}
func (Collection) expr()  {}

func (m Member) String() string { return m.Target.String() + "." + m.Name }

func (c Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case Sequence:
		return "<query>"
	}
	return fmt.Sprintf("%v", c.Value)
}

func (b Binary) String() string {
	return "(" + b.Left.String() + " " + string(b.Op) + " " + b.Right.String() + ")"
}

func (u Unary) String() string { return string(u.Op) + u.Operand.String() }

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name + "()"
	}
	args := make([]string, len(c.Args)-1)
	for i, a := range c.Args[1:] {
		args[i] = a.String()
	}
	return c.Args[0].String() + "." + c.Name + "(" + strings.Join(args, ", ") + ")"
}

func (l *Lambda) String() string {
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name
	}
	return "(" + strings.Join(names, ", ") + ") => " + l.Body.String()
}

func (n New) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		if i < len(n.Fields) {
			parts[i] = n.Fields[i] + " = " + a.String()
		} else {
			parts[i] = a.String()
		}
	}
	return "new " + n.Type + "{" + strings.Join(parts, ", ") + "}"
}

func (o ObjectInit) String() string {
	parts := make([]string, len(o.Bindings))
	for i, b := range o.Bindings {
		parts[i] = b.Field + " = " + b.Value.String()
	}
	return "new " + o.New.Type + "{" + strings.Join(parts, ", ") + "}"
}

func (p *Parameter) String() string { return p.Name }

func (c Collection) String() string {
	parts := make([]string, len(c.Items))
	for i, it := range c.Items {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// =============================================================================
// Construction helpers
// =============================================================================

// Param returns a new lambda parameter.
func Param(name string) *Parameter {
	return &Parameter{Name: name}
}

// Field returns the member access p.name.
func (p *Parameter) Field(name string) Member {
	return Member{Target: p, Name: name}
}

// Field returns the member access m.name.
func (m Member) Field(name string) Member {
	return Member{Target: m, Name: name}
}

// Fn builds a lambda over params.
func Fn(body Expr, params ...*Parameter) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// Const wraps a host value.
func Const(v any) Constant {
	return Constant{Value: v}
}

// Eq returns l == r.
func Eq(l, r Expr) Binary { return Binary{Op: OpEq, Left: l, Right: r} }

// Ne returns l != r.
func Ne(l, r Expr) Binary { return Binary{Op: OpNe, Left: l, Right: r} }

// Lt returns l < r.
func Lt(l, r Expr) Binary { return Binary{Op: OpLt, Left: l, Right: r} }

// Le returns l <= r.
func Le(l, r Expr) Binary { return Binary{Op: OpLe, Left: l, Right: r} }

// Gt returns l > r.
func Gt(l, r Expr) Binary { return Binary{Op: OpGt, Left: l, Right: r} }

// Ge returns l >= r.
func Ge(l, r Expr) Binary { return Binary{Op: OpGe, Left: l, Right: r} }

// And folds the operands with &&.
func And(first Expr, rest ...Expr) Expr {
	out := first
	for _, e := range rest {
		out = Binary{Op: OpAnd, Left: out, Right: e}
	}
	return out
}

// Or folds the operands with ||.
func Or(first Expr, rest ...Expr) Expr {
	out := first
	for _, e := range rest {
		out = Binary{Op: OpOr, Left: out, Right: e}
	}
	return out
}

// Not negates e.
func Not(e Expr) Unary { return Unary{Op: OpNot, Operand: e} }

// Method calls name on the receiver.
func Method(recv Expr, name string, args ...Expr) Call {
	return Call{Name: name, Args: append([]Expr{recv}, args...)}
}

// Anon builds an anonymous object whose field names are inferred from the
// member or parameter names of its arguments.
func Anon(args ...Expr) New {
	fields := make([]string, len(args))
	for i, a := range args {
		fields[i] = InferName(a)
	}
	return New{Args: args, Fields: fields}
}

// InferName returns the field name an anonymous object gives to e.
func InferName(e Expr) string {
	switch v := e.(type) {
	case Member:
		return v.Name
	case *Parameter:
		return v.Name
	}
	return ""
}
