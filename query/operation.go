package query

// OpKind identifies one query-building step.
type OpKind string

const (
	OpGetTable          OpKind = "GetTable"
	OpWhere             OpKind = "Where"
	OpSelect            OpKind = "Select"
	OpOrderBy           OpKind = "OrderBy"
	OpOrderByDescending OpKind = "OrderByDescending"
	OpThenBy            OpKind = "ThenBy"
	OpThenByDescending  OpKind = "ThenByDescending"
	OpSkip              OpKind = "Skip"
	OpTake              OpKind = "Take"
	OpFirst             OpKind = "First"
	OpDistinct          OpKind = "Distinct"
	OpAsSubquery        OpKind = "AsSubquery"
	OpUnion             OpKind = "Union"
	OpGroupBy           OpKind = "GroupBy"
	OpAverage           OpKind = "Average"
	OpMin               OpKind = "Min"
	OpSum               OpKind = "Sum"
	OpMax               OpKind = "Max"
	OpCount             OpKind = "Count"
	OpAny               OpKind = "Any"
	OpJoin              OpKind = "Join"
	OpGroupJoin         OpKind = "GroupJoin"
	OpDefaultIfEmpty    OpKind = "DefaultIfEmpty"
	OpInclude           OpKind = "Include"
	OpInsert            OpKind = "Insert"
	OpUpdate            OpKind = "Update"
	OpDelete            OpKind = "Delete"
)

// IsAggregate reports whether k reduces the sequence to one value.
func (k OpKind) IsAggregate() bool {
	switch k {
	case OpAverage, OpMin, OpSum, OpMax, OpCount:
		return true
	}
	return false
}

// Operation is one step of a query. Args carries the step's payload:
// lambdas for Where/Select/OrderBy, constants for Skip/Take, and so on.
type Operation struct {
	Kind OpKind
	Args []Expr
}

// Lambda returns the i-th argument as a lambda, or nil.
func (o Operation) Lambda(i int) *Lambda {
	if i >= len(o.Args) {
		return nil
	}
	l, _ := o.Args[i].(*Lambda)
	return l
}

// Constant returns the value of the i-th argument when it is a constant.
func (o Operation) Constant(i int) (any, bool) {
	if i >= len(o.Args) {
		return nil, false
	}
	c, ok := o.Args[i].(Constant)
	if !ok {
		return nil, false
	}
	return c.Value, true
}

// Sequence is an ordered list of operations describing one statement.
// The builder methods return a new sequence and never modify the receiver.
type Sequence []Operation

// Statement is an item accepted by a batch: a Sequence, a Raw statement, or
// nil to force a new round trip.
type Statement interface {
	statement()
}

func (Sequence) statement() {}

// Raw is literal SQL with {0}, {1}, ... placeholders for Args.
type Raw struct {
	Text string
	Args []any
}

func (Raw) statement() {}

// From starts a sequence over the named entity.
func From(entity string) Sequence {
	return Sequence{{Kind: OpGetTable, Args: []Expr{Const(entity)}}}
}

func (s Sequence) with(kind OpKind, args ...Expr) Sequence {
	out := make(Sequence, len(s), len(s)+1)
	copy(out, s)
	return append(out, Operation{Kind: kind, Args: args})
}

func lambdaArgs(ls []*Lambda) []Expr {
	args := make([]Expr, len(ls))
	for i, l := range ls {
		args[i] = l
	}
	return args
}

// Where filters rows.
func (s Sequence) Where(pred *Lambda) Sequence { return s.with(OpWhere, pred) }

// Select projects rows.
func (s Sequence) Select(proj *Lambda) Sequence { return s.with(OpSelect, proj) }

// OrderBy sorts ascending, replacing earlier orderings.
func (s Sequence) OrderBy(key *Lambda) Sequence { return s.with(OpOrderBy, key) }

// OrderByDescending sorts descending, replacing earlier orderings.
func (s Sequence) OrderByDescending(key *Lambda) Sequence {
	return s.with(OpOrderByDescending, key)
}

// ThenBy adds an ascending sort key.
func (s Sequence) ThenBy(key *Lambda) Sequence { return s.with(OpThenBy, key) }

// ThenByDescending adds a descending sort key.
func (s Sequence) ThenByDescending(key *Lambda) Sequence {
	return s.with(OpThenByDescending, key)
}

// Skip bypasses n rows.
func (s Sequence) Skip(n int) Sequence { return s.with(OpSkip, Const(n)) }

// Take limits the result to n rows.
func (s Sequence) Take(n int) Sequence { return s.with(OpTake, Const(n)) }

// First takes the first row, optionally filtered.
func (s Sequence) First(pred ...*Lambda) Sequence { return s.with(OpFirst, lambdaArgs(pred)...) }

// Distinct removes duplicate rows.
func (s Sequence) Distinct() Sequence { return s.with(OpDistinct) }

// AsSubquery forces everything so far into a derived table.
func (s Sequence) AsSubquery() Sequence { return s.with(OpAsSubquery) }

// Union appends the rows of other (UNION ALL).
func (s Sequence) Union(other Sequence) Sequence { return s.with(OpUnion, Const(other)) }

// GroupBy groups rows by key.
func (s Sequence) GroupBy(key *Lambda) Sequence { return s.with(OpGroupBy, key) }

// Count counts rows, optionally filtered.
func (s Sequence) Count(pred ...*Lambda) Sequence { return s.with(OpCount, lambdaArgs(pred)...) }

// Sum sums the selector, or the current projection when none is given.
func (s Sequence) Sum(sel ...*Lambda) Sequence { return s.with(OpSum, lambdaArgs(sel)...) }

// Max returns the largest selector value.
func (s Sequence) Max(sel ...*Lambda) Sequence { return s.with(OpMax, lambdaArgs(sel)...) }

// Min returns the smallest selector value.
func (s Sequence) Min(sel ...*Lambda) Sequence { return s.with(OpMin, lambdaArgs(sel)...) }

// Average returns the mean selector value.
func (s Sequence) Average(sel ...*Lambda) Sequence { return s.with(OpAverage, lambdaArgs(sel)...) }

// Any reports whether a row exists, optionally filtered.
func (s Sequence) Any(pred ...*Lambda) Sequence { return s.with(OpAny, lambdaArgs(pred)...) }

// Join inner-joins inner, an entity name or a Sequence, on outerKey == innerKey.
// result receives the outer row and the inner row.
func (s Sequence) Join(inner any, outerKey, innerKey, result *Lambda) Sequence {
	return s.with(OpJoin, Const(inner), outerKey, innerKey, result)
}

// GroupJoin is Join whose inner rows become optional when followed by
// DefaultIfEmpty.
func (s Sequence) GroupJoin(inner any, outerKey, innerKey, result *Lambda) Sequence {
	return s.with(OpGroupJoin, Const(inner), outerKey, innerKey, result)
}

// DefaultIfEmpty turns the preceding join into a LEFT join, or a RIGHT join
// when right is true.
func (s Sequence) DefaultIfEmpty(right ...bool) Sequence {
	if len(right) > 0 && right[0] {
		return s.with(OpDefaultIfEmpty, Const(true))
	}
	return s.with(OpDefaultIfEmpty)
}

// Include loads a navigation together with the rows.
func (s Sequence) Include(path *Lambda) Sequence { return s.with(OpInclude, path) }

// Insert inserts v: an entity, a slice of entities, or, after a query, the
// name of the target entity to insert the projected rows into.
func (s Sequence) Insert(v any) Sequence { return s.with(OpInsert, Const(v)) }

// InsertEntity starts an insert of one entity or a slice of entities.
func InsertEntity(v any) Sequence {
	return Sequence{{Kind: OpInsert, Args: []Expr{Const(v)}}}
}

// Update updates an entity (Constant) or the matched rows (Lambda producing
// an ObjectInit).
func (s Sequence) Update(v Expr) Sequence { return s.with(OpUpdate, v) }

// UpdateEntity starts an update of one entity by key.
func UpdateEntity(v any) Sequence {
	return Sequence{{Kind: OpUpdate, Args: []Expr{Const(v)}}}
}

// Delete deletes the matched rows.
func (s Sequence) Delete() Sequence { return s.with(OpDelete) }

// DeleteEntity starts a delete of one entity, or a slice of entities, by key.
func DeleteEntity(v any) Sequence {
	return Sequence{{Kind: OpDelete, Args: []Expr{Const(v)}}}
}
