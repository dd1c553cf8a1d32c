package meta

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// entityType returns the struct type behind v: a struct, a pointer to one,
// a slice of either, or a reflect.Type.
func entityType(v any) (reflect.Type, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	for t != nil && (t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrUnknownEntity, v)
	}
	return t, nil
}

// reflectEntity builds an entity from struct tags:
//
//	Id     int       `db:"id,key,identity,seq=demo_seq"`
//	Code   string    `db:",size=20,dbtype=varchar"`
//	Note   *string   `db:",nullable,default=none"`
//	Client *Client   `nav:"ClientId=Id"`
//	Items  []Item    `nav:"Item,Id=OrderId"`
//	Cache  string    `db:"-"`
func reflectEntity(t reflect.Type, naming Naming) (*Entity, error) {
	e := &Entity{Name: t.Name(), Table: naming.Table(t.Name()), Type: t}
	hasKey := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("nav"); ok {
			n, err := parseNav(f, tag)
			if err != nil {
				return nil, fmt.Errorf("meta: %s.%s: %w", t.Name(), f.Name, err)
			}
			e.Navigations = append(e.Navigations, n)
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		c, err := parseColumn(f, tag, naming)
		if err != nil {
			return nil, fmt.Errorf("meta: %s.%s: %w", t.Name(), f.Name, err)
		}
		hasKey = hasKey || c.Key
		e.Columns = append(e.Columns, c)
	}
	if !hasKey {
		for _, c := range e.Columns {
			if c.Field == "Id" || c.Field == "ID" {
				c.Key = true
			}
		}
	}
	if err := e.init(); err != nil {
		return nil, err
	}
	return e, nil
}

func parseColumn(f reflect.StructField, tag string, naming Naming) (*Column, error) {
	c := &Column{Field: f.Name, GoType: f.Type, index: f.Index}
	parts := strings.Split(tag, ",")
	c.Name = parts[0]
	if c.Name == "" {
		c.Name = naming.Column(f.Name)
	}
	if f.Type.Kind() == reflect.Pointer {
		c.Nullable = true
	}
	for _, opt := range parts[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
		var err error
		switch key {
		case "key":
			c.Key = true
		case "identity":
			c.Identity = true
		case "nullable":
			c.Nullable = true
		case "size":
			c.Size, err = strconv.Atoi(val)
		case "precision":
			c.Precision, err = strconv.Atoi(val)
		case "scale":
			c.Scale, err = strconv.Atoi(val)
		case "dbtype":
			c.DBType = val
		case "default":
			c.Default = parseDefault(val)
		case "seq":
			c.Sequence = val
		case "":
		default:
			return nil, fmt.Errorf("unknown db tag option %q", key)
		}
		if err != nil {
			return nil, fmt.Errorf("db tag option %s: %w", key, err)
		}
	}
	return c, nil
}

func parseDefault(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func parseNav(f reflect.StructField, tag string) (*Navigation, error) {
	n := &Navigation{Field: f.Name}
	t := f.Type
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice {
		n.Many = true
		t = t.Elem()
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
	}
	if t.Kind() == reflect.Struct {
		n.Target = t.Name()
		n.targetType = t
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		local, foreign, ok := strings.Cut(part, "=")
		if !ok {
			n.Target = part
			continue
		}
		n.Keys = append(n.Keys, KeyPair{Local: local, Foreign: foreign})
	}
	if len(n.Keys) == 0 {
		return nil, fmt.Errorf("nav tag needs at least one Local=Foreign key pair")
	}
	return n, nil
}
