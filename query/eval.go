package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Rewrite returns e with every node for which fn reports true replaced by
// fn's result. Replaced nodes are not visited further; children of other
// nodes are rewritten bottom-up.
func Rewrite(e Expr, fn func(Expr) (Expr, bool)) Expr {
	if e == nil {
		return nil
	}
	if out, ok := fn(e); ok {
		return out
	}
	switch v := e.(type) {
	case Member:
		return Member{Target: Rewrite(v.Target, fn), Name: v.Name}
	case Binary:
		return Binary{Op: v.Op, Left: Rewrite(v.Left, fn), Right: Rewrite(v.Right, fn)}
	case Unary:
		return Unary{Op: v.Op, Operand: Rewrite(v.Operand, fn)}
	case Call:
		return Call{Name: v.Name, Args: rewriteAll(v.Args, fn)}
	case *Lambda:
		return &Lambda{Params: v.Params, Body: Rewrite(v.Body, fn)}
	case New:
		return New{Type: v.Type, Args: rewriteAll(v.Args, fn), Fields: v.Fields}
	case ObjectInit:
		n := Rewrite(v.New, fn).(New)
		bs := make([]Binding, len(v.Bindings))
		for i, b := range v.Bindings {
			bs[i] = Binding{Field: b.Field, Value: Rewrite(b.Value, fn)}
		}
		return ObjectInit{New: n, Bindings: bs}
	case Collection:
		return Collection{Items: rewriteAll(v.Items, fn)}
	}
	return e
}

func rewriteAll(es []Expr, fn func(Expr) (Expr, bool)) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = Rewrite(e, fn)
	}
	return out
}

// Walk calls fn for e and its descendants, depth first, until fn returns
// false for a node.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch v := e.(type) {
	case Member:
		Walk(v.Target, fn)
	case Binary:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case Unary:
		Walk(v.Operand, fn)
	case Call:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	case *Lambda:
		Walk(v.Body, fn)
	case New:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	case ObjectInit:
		Walk(v.New, fn)
		for _, b := range v.Bindings {
			Walk(b.Value, fn)
		}
	case Collection:
		for _, it := range v.Items {
			Walk(it, fn)
		}
	}
}

// Positions maps lambda parameters to their scope positions.
type Positions map[*Parameter]int

// PositionsOf binds each parameter of l to its index.
func PositionsOf(l *Lambda) Positions {
	pos := make(Positions, len(l.Params))
	for i, p := range l.Params {
		pos[p] = i
	}
	return pos
}

// PathKey returns the normalized key of a member chain rooted at a bound
// parameter, e.g. "#0.Client.Name". Evaluable targets are not paths.
func PathKey(e Expr, pos Positions) (string, bool) {
	switch v := e.(type) {
	case *Parameter:
		i, ok := pos[v]
		if !ok {
			return "", false
		}
		return "#" + strconv.Itoa(i), true
	case Member:
		if Evaluable(v) {
			return "", false
		}
		k, ok := PathKey(v.Target, pos)
		if !ok {
			return "", false
		}
		return k + "." + v.Name, true
	}
	return "", false
}

// RootParam returns the parameter a member chain starts from.
func RootParam(e Expr) (*Parameter, []string) {
	var names []string
	for {
		switch v := e.(type) {
		case *Parameter:
			for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
				names[i], names[j] = names[j], names[i]
			}
			return v, names
		case Member:
			names = append(names, v.Name)
			e = v.Target
		default:
			return nil, nil
		}
	}
}

// Key returns a canonical string for e with parameters replaced by their
// positions, so that structurally equal expressions from different lambdas
// produce the same key. Evaluable sub-expressions are folded.
func Key(e Expr, pos Positions) string {
	var b strings.Builder
	writeKey(&b, e, pos)
	return b.String()
}

func writeKey(b *strings.Builder, e Expr, pos Positions) {
	if e == nil {
		b.WriteString("<nil>")
		return
	}
	if _, isLambda := e.(*Lambda); !isLambda && Evaluable(e) {
		if v, err := Eval(e); err == nil {
			fmt.Fprintf(b, "%#v", v)
			return
		}
	}
	switch v := e.(type) {
	case *Parameter:
		if i, ok := pos[v]; ok {
			b.WriteString("#" + strconv.Itoa(i))
		} else {
			b.WriteString("?" + v.Name)
		}
	case Member:
		writeKey(b, v.Target, pos)
		b.WriteString("." + v.Name)
	case Binary:
		b.WriteString("(")
		writeKey(b, v.Left, pos)
		b.WriteString(" " + string(v.Op) + " ")
		writeKey(b, v.Right, pos)
		b.WriteString(")")
	case Unary:
		b.WriteString(string(v.Op))
		writeKey(b, v.Operand, pos)
	case Call:
		b.WriteString(v.Name + "(")
		for i, a := range v.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			writeKey(b, a, pos)
		}
		b.WriteString(")")
	case *Lambda:
		b.WriteString("fn(")
		writeKey(b, v.Body, pos)
		b.WriteString(")")
	case New:
		b.WriteString("new{")
		for i, a := range v.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			writeKey(b, a, pos)
		}
		b.WriteString("}")
	case ObjectInit:
		b.WriteString("init{")
		for i, bd := range v.Bindings {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(bd.Field + "=")
			writeKey(b, bd.Value, pos)
		}
		b.WriteString("}")
	case Collection:
		b.WriteString("[")
		for i, it := range v.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeKey(b, it, pos)
		}
		b.WriteString("]")
	default:
		b.WriteString(e.String())
	}
}

// Evaluable reports whether e references no lambda parameter and can be
// folded into a host value.
func Evaluable(e Expr) bool {
	ok := true
	Walk(e, func(n Expr) bool {
		switch n.(type) {
		case *Parameter, *Lambda, New, ObjectInit, Call:
			ok = false
		}
		return ok
	})
	return ok
}

// Eval folds an evaluable expression into a host value. Member access reads
// struct fields, pointer-to-struct fields and string-keyed map entries.
func Eval(e Expr) (any, error) {
	switch v := e.(type) {
	case Constant:
		return v.Value, nil
	case Member:
		target, err := Eval(v.Target)
		if err != nil {
			return nil, err
		}
		return readMember(target, v.Name)
	case Unary:
		x, err := Eval(v.Operand)
		if err != nil {
			return nil, err
		}
		return evalUnary(v.Op, x)
	case Binary:
		l, err := Eval(v.Left)
		if err != nil {
			return nil, err
		}
		r, err := Eval(v.Right)
		if err != nil {
			return nil, err
		}
		return evalBinary(v.Op, l, r)
	case Collection:
		out := make([]any, len(v.Items))
		for i, it := range v.Items {
			x, err := Eval(it)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	}
	return nil, fmt.Errorf("opsql: %s is not evaluable", e)
}

func readMember(target any, name string) (any, error) {
	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("opsql: member %s of nil value", name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() {
			return nil, fmt.Errorf("opsql: %s has no field %s", rv.Type(), name)
		}
		return f.Interface(), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		f := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !f.IsValid() {
			return nil, nil
		}
		return f.Interface(), nil
	}
	return nil, fmt.Errorf("opsql: cannot read member %s of %T", name, target)
}

func evalUnary(op UnaryOp, x any) (any, error) {
	switch op {
	case OpNot:
		if b, ok := x.(bool); ok {
			return !b, nil
		}
	case OpNegate:
		if x == nil {
			break
		}
		rv := reflect.ValueOf(x)
		out := reflect.New(rv.Type()).Elem()
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out.SetInt(-rv.Int())
			return out.Interface(), nil
		case reflect.Float32, reflect.Float64:
			out.SetFloat(-rv.Float())
			return out.Interface(), nil
		}
	}
	return nil, fmt.Errorf("opsql: cannot apply %s to %T", op, x)
}

func evalBinary(op BinaryOp, l, r any) (any, error) {
	if ls, ok := l.(string); ok && op == OpAdd {
		if rs, ok := r.(string); ok {
			return ls + rs, nil
		}
	}
	if op == OpCoalesce {
		if l == nil {
			return r, nil
		}
		return l, nil
	}
	if lb, ok := l.(bool); ok {
		if rb, ok := r.(bool); ok {
			switch op {
			case OpAnd:
				return lb && rb, nil
			case OpOr:
				return lb || rb, nil
			}
		}
	}
	li, lok := asInt(l)
	ri, rok := asInt(r)
	if lok && rok {
		switch op {
		case OpAdd:
			return li + ri, nil
		case OpSub:
			return li - ri, nil
		case OpMul:
			return li * ri, nil
		case OpDiv:
			if ri == 0 {
				return nil, fmt.Errorf("opsql: division by zero")
			}
			return li / ri, nil
		case OpMod:
			if ri == 0 {
				return nil, fmt.Errorf("opsql: division by zero")
			}
			return li % ri, nil
		}
	}
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if lok && rok {
		switch op {
		case OpAdd:
			return lf + rf, nil
		case OpSub:
			return lf - rf, nil
		case OpMul:
			return lf * rf, nil
		case OpDiv:
			return lf / rf, nil
		}
	}
	return nil, fmt.Errorf("opsql: cannot fold %T %s %T", l, op, r)
}

func asInt(x any) (int64, bool) {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}

func asFloat(x any) (float64, bool) {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	if i, ok := asInt(x); ok {
		return float64(i), true
	}
	return 0, false
}
