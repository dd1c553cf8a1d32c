package compile

import "strconv"

// AliasTable hands out table aliases for one SELECT level. Aliases are
// "t0", "t1", ... in first-discovery order from a single counter, so the
// root source, the explicit joins (allocated up front in declaration order)
// and the navigation joins found while visiting clauses never collide.
type AliasTable struct {
	n     int
	paths map[string]string
	navs  map[string]string
	joins map[string]string
}

// NewAliasTable returns an empty table.
func NewAliasTable() *AliasTable {
	return &AliasTable{
		paths: make(map[string]string),
		navs:  make(map[string]string),
		joins: make(map[string]string),
	}
}

// Next allocates a fresh alias.
func (a *AliasTable) Next() string {
	alias := "t" + strconv.Itoa(a.n)
	a.n++
	return alias
}

// Alias returns the alias for a path key, allocating one on first use.
func (a *AliasTable) Alias(key string) string {
	if alias, ok := a.paths[key]; ok {
		return alias
	}
	alias := a.Next()
	a.paths[key] = alias
	return alias
}

// Navigation returns the alias already given to a navigation path key.
func (a *AliasTable) Navigation(key string) (string, bool) {
	alias, ok := a.navs[key]
	return alias, ok
}

// SetNavigation records the alias of a navigation path key.
func (a *AliasTable) SetNavigation(key, alias string) {
	a.navs[key] = alias
}

// RegisterJoin records that alias joins a table on key, so a navigation to
// the same table over the same keys reuses it instead of joining again.
func (a *AliasTable) RegisterJoin(key, alias string) {
	if _, ok := a.joins[key]; !ok {
		a.joins[key] = alias
	}
}

// Join returns the alias of an explicit join registered under key.
func (a *AliasTable) Join(key string) (string, bool) {
	alias, ok := a.joins[key]
	return alias, ok
}

// joinKey identifies a join by target table and key pairs, each pair being
// the rendered outer operand and the inner member name.
func joinKey(table string, outer, inner []string) string {
	key := table
	for i := range outer {
		key += "|" + outer[i] + "=" + inner[i]
	}
	return key
}
