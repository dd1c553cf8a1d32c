// Package meta describes how entities map to tables: column descriptors,
// keys, identity columns and navigations between entities.
package meta

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnknownEntity is returned for entity names and types that are neither
// registered nor reflectable.
var ErrUnknownEntity = errors.New("meta: unknown entity")

// Column describes one mapped member of an entity.
type Column struct {
	// Field is the member name used in expressions.
	Field string
	// Name is the column name in the table.
	Name     string
	Key      bool
	Identity bool
	Nullable bool

	Size      int
	Precision int
	Scale     int

	// Default is written instead of a nil or zero value on insert and update.
	Default any
	// DBType overrides the inferred database type, e.g. "varchar".
	DBType string
	// Sequence names the sequence that feeds an identity column on dialects
	// without auto-increment.
	Sequence string

	// GoType is the Go type of the member, nil for hand-registered entities.
	GoType reflect.Type
	index  []int
}

// KeyPair joins a member of the owning entity to a member of the target.
type KeyPair struct {
	Local   string
	Foreign string
}

// Navigation is a member that refers to another entity.
type Navigation struct {
	Field  string
	Target string
	Keys   []KeyPair
	// Many is true for collection navigations (one-to-many).
	Many bool

	targetType reflect.Type
}

// Entity maps a type to a table.
type Entity struct {
	Name        string
	Table       string
	Columns     []*Column
	Navigations []*Navigation
	Type        reflect.Type

	byField map[string]*Column
	navs    map[string]*Navigation
}

// Column returns the column mapped to field, or nil.
func (e *Entity) Column(field string) *Column {
	return e.byField[field]
}

// Navigation returns the navigation named field, or nil.
func (e *Entity) Navigation(field string) *Navigation {
	return e.navs[field]
}

// Keys returns the key columns in declaration order.
func (e *Entity) Keys() []*Column {
	var keys []*Column
	for _, c := range e.Columns {
		if c.Key {
			keys = append(keys, c)
		}
	}
	return keys
}

// Identity returns the identity column, or nil.
func (e *Entity) Identity() *Column {
	for _, c := range e.Columns {
		if c.Identity {
			return c
		}
	}
	return nil
}

// Row is an entity value without a Go type, keyed by member name. Missing
// members read as nil.
type Row struct {
	Entity string
	Values map[string]any
}

// Value reads the member mapped by field from the entity value v, which may
// be a struct, a pointer to a struct, a Row or a map keyed by member name.
func (e *Entity) Value(v any, field string) (any, error) {
	switch row := v.(type) {
	case Row:
		return row.Values[field], nil
	case *Row:
		if row == nil {
			return nil, fmt.Errorf("meta: %s: nil entity", e.Name)
		}
		return row.Values[field], nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("meta: %s: nil entity", e.Name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		mv := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, nil
		}
		return mv.Interface(), nil
	case reflect.Struct:
		if c := e.byField[field]; c != nil && c.index != nil && rv.Type() == e.Type {
			return rv.FieldByIndex(c.index).Interface(), nil
		}
		f := rv.FieldByName(field)
		if !f.IsValid() {
			return nil, fmt.Errorf("meta: %s has no member %s", e.Name, field)
		}
		return f.Interface(), nil
	}
	return nil, fmt.Errorf("meta: %s: cannot read %s from %T", e.Name, field, v)
}

func (e *Entity) init() error {
	if e.Name == "" {
		return fmt.Errorf("meta: entity without a name")
	}
	if e.Table == "" {
		e.Table = e.Name
	}
	e.byField = make(map[string]*Column, len(e.Columns))
	names := make(map[string]bool, len(e.Columns))
	for _, c := range e.Columns {
		if c.Name == "" {
			c.Name = c.Field
		}
		if _, dup := e.byField[c.Field]; dup {
			return fmt.Errorf("meta: %s: duplicate member %s", e.Name, c.Field)
		}
		if names[c.Name] {
			return fmt.Errorf("meta: %s: duplicate column %s", e.Name, c.Name)
		}
		e.byField[c.Field] = c
		names[c.Name] = true
	}
	e.navs = make(map[string]*Navigation, len(e.Navigations))
	for _, n := range e.Navigations {
		if n.Target == "" {
			return fmt.Errorf("meta: %s: navigation %s has no target", e.Name, n.Field)
		}
		if len(n.Keys) == 0 {
			return fmt.Errorf("meta: %s: navigation %s has no join keys", e.Name, n.Field)
		}
		e.navs[n.Field] = n
	}
	return nil
}
