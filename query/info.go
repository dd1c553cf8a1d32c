package query

// Info is the parsed form of one statement: *SelectInfo, *InsertInfo,
// *UpdateInfo or *DeleteInfo.
type Info interface {
	info()
}

// JoinKind is the kind of an explicit join.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER"
	LeftJoin  JoinKind = "LEFT"
	RightJoin JoinKind = "RIGHT"
)

// Join is an explicit join declared in the sequence. Exactly one of Entity
// and Sub is set.
type Join struct {
	Kind     JoinKind
	Entity   string
	Sub      *SelectInfo
	OuterKey *Lambda
	InnerKey *Lambda
}

// OrderBy is one sort key.
type OrderBy struct {
	Key  *Lambda
	Desc bool
}

// Aggregate is a terminal reduction. Selector is nil for COUNT(*) and for
// aggregates over the current projection.
type Aggregate struct {
	Kind     OpKind
	Selector *Lambda
}

// SelectInfo describes one SELECT level. Lambdas are bound positionally:
// parameter 0 is the row source, parameter i the i-th join.
type SelectInfo struct {
	// From is the source entity when SubQuery is nil.
	From string
	// SubQuery is the derived table this level selects from.
	SubQuery *SelectInfo

	Joins     []Join
	Where     []*Lambda
	GroupBy   *Lambda
	Having    []*Lambda
	OrderBy   []OrderBy
	Select    *Lambda
	Distinct  bool
	Any       bool
	Skip      int
	Take      int
	Aggregate *Aggregate
	Unions    []*SelectInfo
	Includes  []*Lambda

	// HasMany marks the outer half of a one-to-many split. Its lambdas are
	// bound to the same positions as SubQuery's and resolve against the
	// columns SubQuery projects.
	HasMany bool
	// SubQueryOfMany marks the inner half of a one-to-many split.
	SubQueryOfMany bool
}

// Paged reports whether the level skips or limits rows.
func (s *SelectInfo) Paged() bool {
	return s.Skip > 0 || s.Take > 0
}

// Depth returns the number of nested SubQuery levels below s.
func (s *SelectInfo) Depth() int {
	n := 0
	for sub := s.SubQuery; sub != nil; sub = sub.SubQuery {
		n++
	}
	return n
}

// Root returns the innermost level.
func (s *SelectInfo) Root() *SelectInfo {
	cur := s
	for cur.SubQuery != nil {
		cur = cur.SubQuery
	}
	return cur
}

// PicksAll reports whether the level projects its whole row source.
func (s *SelectInfo) PicksAll() bool {
	if s.Select == nil {
		return true
	}
	p, ok := s.Select.Body.(*Parameter)
	return ok && len(s.Select.Params) > 0 && p == s.Select.Params[0]
}

// SourceEntity returns the entity behind lambda position pos: the root
// entity for 0 and the joined entity for i > 0. Derived sources resolve to
// their own root entity when they project it whole; otherwise the result is
// empty.
func (s *SelectInfo) SourceEntity(pos int) string {
	if pos == 0 {
		if s.SubQuery == nil {
			return s.From
		}
		if s.SubQuery.PicksAll() && s.SubQuery.Aggregate == nil && !s.SubQuery.HasMany {
			return s.SubQuery.SourceEntity(0)
		}
		return ""
	}
	if pos-1 >= len(s.Joins) {
		return ""
	}
	j := s.Joins[pos-1]
	if j.Sub != nil {
		if j.Sub.PicksAll() && j.Sub.Aggregate == nil {
			return j.Sub.SourceEntity(0)
		}
		return ""
	}
	return j.Entity
}

// InsertInfo describes an INSERT. Entity holds one entity or a slice of
// entities; otherwise Into names the target and Select produces the rows.
type InsertInfo struct {
	Entity any
	Into   string
	Select *SelectInfo
}

// UpdateInfo describes an UPDATE of one entity by key, or of the rows matched
// by Select using the ObjectInit produced by Expr.
type UpdateInfo struct {
	Entity any
	Expr   *Lambda
	Select *SelectInfo
}

// DeleteInfo describes a DELETE of entities by key, or of the rows matched by
// Select.
type DeleteInfo struct {
	Entity any
	Select *SelectInfo
}

func (*SelectInfo) info() {}
func (*InsertInfo) info() {}
func (*UpdateInfo) info() {}
func (*DeleteInfo) info() {}
