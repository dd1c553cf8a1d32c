// Package queryfile loads the YAML query files read by the opsql command:
// entity declarations plus a list of statements written as operation
// sequences over lambda text.
//
//	entities:
//	  - name: Demo
//	    columns:
//	      - {field: Id, key: true, identity: true}
//	      - {field: Code, size: 20, dbtype: varchar}
//	      - {field: Name}
//	statements:
//	  - name: page
//	    from: Demo
//	    ops:
//	      - where: d => d.Id <= $max
//	      - orderBy: d => d.Code
//	      - skip: 1
//	      - take: 10
//	    vars: {max: 10}
package queryfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
	"github.com/shipq/opsql/query/compile"
	"github.com/shipq/opsql/query/lambda"
)

// File is a parsed query file.
type File struct {
	// Batch compiles every statement through one batch, merging round trips
	// where the dialect allows it.
	Batch bool `yaml:"batch,omitempty"`

	// Naming is "exact" (default) or "snake" and fills in table and column
	// names the entities leave out.
	Naming string `yaml:"naming,omitempty"`

	// Vars are shared by every statement; statement vars override them.
	Vars map[string]any `yaml:"vars,omitempty"`

	Entities   []EntityDef `yaml:"entities"`
	Statements []Statement `yaml:"statements"`
}

// EntityDef declares one entity.
type EntityDef struct {
	Name        string          `yaml:"name"`
	Table       string          `yaml:"table,omitempty"`
	Columns     []ColumnDef     `yaml:"columns"`
	Navigations []NavigationDef `yaml:"navigations,omitempty"`
}

// ColumnDef declares one column.
type ColumnDef struct {
	Field     string `yaml:"field"`
	Name      string `yaml:"name,omitempty"`
	Key       bool   `yaml:"key,omitempty"`
	Identity  bool   `yaml:"identity,omitempty"`
	Nullable  bool   `yaml:"nullable,omitempty"`
	Size      int    `yaml:"size,omitempty"`
	Precision int    `yaml:"precision,omitempty"`
	Scale     int    `yaml:"scale,omitempty"`
	Default   any    `yaml:"default,omitempty"`
	DBType    string `yaml:"dbtype,omitempty"`
	Sequence  string `yaml:"sequence,omitempty"`
}

// NavigationDef declares a reference (many: false) or collection navigation.
// Keys are "Local=Foreign" member pairs.
type NavigationDef struct {
	Field  string   `yaml:"field"`
	Target string   `yaml:"target"`
	Keys   []string `yaml:"keys"`
	Many   bool     `yaml:"many,omitempty"`
}

// Source is an operation sequence: an entity and the steps applied to it.
type Source struct {
	From string `yaml:"from,omitempty"`
	Ops  []Op   `yaml:"ops,omitempty"`
}

// Statement is one entry of the statements list. Exactly one of From, Insert,
// Update, Delete, Raw or Break is set.
type Statement struct {
	Name   string `yaml:"name,omitempty"`
	Source `yaml:",inline"`
	Vars   map[string]any `yaml:"vars,omitempty"`

	Insert *Rows `yaml:"insert,omitempty"`
	Update *Rows `yaml:"update,omitempty"`
	Delete *Rows `yaml:"delete,omitempty"`

	Raw  string `yaml:"raw,omitempty"`
	Args []any  `yaml:"args,omitempty"`

	// Break starts a new round trip in a batch.
	Break bool `yaml:"break,omitempty"`
}

// Rows are entity values keyed by member name.
type Rows struct {
	Entity string           `yaml:"entity"`
	Rows   []map[string]any `yaml:"rows"`
}

// Op is one step of a sequence, written either as a bare name ("distinct")
// or as a one-key mapping ("take: 5", "where: d => d.Id > 1").
type Op struct {
	Kind string
	Arg  *yaml.Node
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Op) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		o.Kind = n.Value
		return nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return fmt.Errorf("line %d: an operation has exactly one key, got %d", n.Line, len(n.Content)/2)
		}
		o.Kind = n.Content[0].Value
		o.Arg = n.Content[1]
		return nil
	}
	return fmt.Errorf("line %d: an operation is a name or a one-key mapping", n.Line)
}

// JoinSpec is the argument of join and leftJoin. Inner is an entity name or
// a nested sequence.
type JoinSpec struct {
	Entity string  `yaml:"entity,omitempty"`
	Query  *Source `yaml:"query,omitempty"`
	Outer  string  `yaml:"outer"`
	Inner  string  `yaml:"inner"`
	Result string  `yaml:"result"`
}

// Load reads and parses a query file. Unknown fields are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses query file contents.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(f.Statements) == 0 {
		return nil, errors.New("statements list is required and must be non-empty")
	}
	if _, err := f.naming(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) naming() (meta.Naming, error) {
	switch strings.ToLower(f.Naming) {
	case "", "exact":
		return meta.ExactNaming{}, nil
	case "snake":
		return meta.SnakeNaming{}, nil
	}
	return nil, fmt.Errorf("naming must be exact or snake, got %q", f.Naming)
}

// Registry registers the declared entities.
func (f *File) Registry() (*meta.Registry, error) {
	naming, err := f.naming()
	if err != nil {
		return nil, err
	}
	r := meta.NewRegistry(meta.WithNaming(naming))
	for i, def := range f.Entities {
		e, err := def.entity(naming)
		if err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
		if err := r.Register(e); err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
	}
	return r, nil
}

func (def EntityDef) entity(naming meta.Naming) (*meta.Entity, error) {
	if def.Name == "" {
		return nil, errors.New("name is required")
	}
	e := &meta.Entity{Name: def.Name, Table: def.Table}
	if e.Table == "" {
		e.Table = naming.Table(def.Name)
	}
	for j, c := range def.Columns {
		if c.Field == "" {
			return nil, fmt.Errorf("columns[%d]: field is required", j)
		}
		name := c.Name
		if name == "" {
			name = naming.Column(c.Field)
		}
		e.Columns = append(e.Columns, &meta.Column{
			Field:     c.Field,
			Name:      name,
			Key:       c.Key,
			Identity:  c.Identity,
			Nullable:  c.Nullable,
			Size:      c.Size,
			Precision: c.Precision,
			Scale:     c.Scale,
			Default:   c.Default,
			DBType:    c.DBType,
			Sequence:  c.Sequence,
		})
	}
	for j, n := range def.Navigations {
		nav := &meta.Navigation{Field: n.Field, Target: n.Target, Many: n.Many}
		for _, k := range n.Keys {
			local, foreign, ok := strings.Cut(k, "=")
			if !ok {
				return nil, fmt.Errorf("navigations[%d]: key %q is not Local=Foreign", j, k)
			}
			nav.Keys = append(nav.Keys, meta.KeyPair{Local: strings.TrimSpace(local), Foreign: strings.TrimSpace(foreign)})
		}
		e.Navigations = append(e.Navigations, nav)
	}
	return e, nil
}

// Build turns the statement into batch items. Entity statements with several
// rows produce one item per update; inserts and deletes take all rows at once.
func (s *Statement) Build(shared map[string]any) ([]query.Statement, error) {
	vars := make(map[string]any, len(shared)+len(s.Vars))
	for k, v := range shared {
		vars[k] = v
	}
	for k, v := range s.Vars {
		vars[k] = v
	}

	switch {
	case s.Break:
		return []query.Statement{nil}, nil
	case s.Raw != "":
		return []query.Statement{query.Raw{Text: s.Raw, Args: s.Args}}, nil
	case s.Insert != nil:
		rows, err := s.Insert.rows()
		if err != nil {
			return nil, err
		}
		if len(rows) == 1 {
			return []query.Statement{query.InsertEntity(rows[0])}, nil
		}
		return []query.Statement{query.InsertEntity(rows)}, nil
	case s.Update != nil:
		rows, err := s.Update.rows()
		if err != nil {
			return nil, err
		}
		out := make([]query.Statement, len(rows))
		for i, row := range rows {
			out[i] = query.UpdateEntity(row)
		}
		return out, nil
	case s.Delete != nil:
		rows, err := s.Delete.rows()
		if err != nil {
			return nil, err
		}
		return []query.Statement{query.DeleteEntity(rows)}, nil
	case s.From != "":
		seq, err := s.Source.sequence(vars)
		if err != nil {
			return nil, err
		}
		return []query.Statement{seq}, nil
	}
	return nil, errors.New("statement needs one of from, insert, update, delete, raw or break")
}

func (r *Rows) rows() ([]meta.Row, error) {
	if r.Entity == "" {
		return nil, errors.New("entity is required")
	}
	if len(r.Rows) == 0 {
		return nil, fmt.Errorf("no %s rows", r.Entity)
	}
	out := make([]meta.Row, len(r.Rows))
	for i, values := range r.Rows {
		out[i] = meta.Row{Entity: r.Entity, Values: values}
	}
	return out, nil
}

func (src *Source) sequence(vars map[string]any) (query.Sequence, error) {
	if src.From == "" {
		return nil, errors.New("from is required")
	}
	seq := query.From(src.From)
	for i, op := range src.Ops {
		var err error
		seq, err = op.apply(seq, vars)
		if err != nil {
			return nil, fmt.Errorf("ops[%d] %s: %w", i, op.Kind, err)
		}
	}
	return seq, nil
}

func (op Op) lambda(vars map[string]any) (*query.Lambda, error) {
	if op.Arg == nil {
		return nil, errors.New("needs a lambda")
	}
	var src string
	if err := op.Arg.Decode(&src); err != nil {
		return nil, err
	}
	return lambda.Parse(src, vars)
}

// optional returns the lambda argument, or none when the op is bare.
func (op Op) optional(vars map[string]any) ([]*query.Lambda, error) {
	if op.Arg == nil {
		return nil, nil
	}
	l, err := op.lambda(vars)
	if err != nil {
		return nil, err
	}
	return []*query.Lambda{l}, nil
}

func (op Op) count() (int, error) {
	if op.Arg == nil {
		return 0, errors.New("needs a row count")
	}
	var n int
	if err := op.Arg.Decode(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (op Op) apply(seq query.Sequence, vars map[string]any) (query.Sequence, error) {
	withLambda := func(f func(*query.Lambda) query.Sequence) (query.Sequence, error) {
		l, err := op.lambda(vars)
		if err != nil {
			return nil, err
		}
		return f(l), nil
	}
	withOptional := func(f func(...*query.Lambda) query.Sequence) (query.Sequence, error) {
		ls, err := op.optional(vars)
		if err != nil {
			return nil, err
		}
		return f(ls...), nil
	}

	switch op.Kind {
	case "where":
		return withLambda(seq.Where)
	case "select":
		return withLambda(seq.Select)
	case "orderBy":
		return withLambda(seq.OrderBy)
	case "orderByDescending":
		return withLambda(seq.OrderByDescending)
	case "thenBy":
		return withLambda(seq.ThenBy)
	case "thenByDescending":
		return withLambda(seq.ThenByDescending)
	case "groupBy":
		return withLambda(seq.GroupBy)
	case "include":
		return withLambda(seq.Include)
	case "update":
		l, err := op.lambda(vars)
		if err != nil {
			return nil, err
		}
		return seq.Update(l), nil
	case "skip", "take":
		n, err := op.count()
		if err != nil {
			return nil, err
		}
		if op.Kind == "skip" {
			return seq.Skip(n), nil
		}
		return seq.Take(n), nil
	case "first":
		return withOptional(seq.First)
	case "count":
		return withOptional(seq.Count)
	case "sum":
		return withOptional(seq.Sum)
	case "min":
		return withOptional(seq.Min)
	case "max":
		return withOptional(seq.Max)
	case "average":
		return withOptional(seq.Average)
	case "any":
		return withOptional(seq.Any)
	case "distinct":
		return seq.Distinct(), nil
	case "asSubquery":
		return seq.AsSubquery(), nil
	case "delete":
		return seq.Delete(), nil
	case "defaultIfEmpty":
		return seq.DefaultIfEmpty(), nil
	case "insertInto":
		if op.Arg == nil {
			return nil, errors.New("needs an entity name")
		}
		var into string
		if err := op.Arg.Decode(&into); err != nil {
			return nil, err
		}
		return seq.Insert(into), nil
	case "union":
		if op.Arg == nil {
			return nil, errors.New("needs a sequence")
		}
		var other Source
		if err := op.Arg.Decode(&other); err != nil {
			return nil, err
		}
		rhs, err := other.sequence(vars)
		if err != nil {
			return nil, err
		}
		return seq.Union(rhs), nil
	case "join", "leftJoin":
		return op.join(seq, vars)
	}
	return nil, fmt.Errorf("unknown operation")
}

func (op Op) join(seq query.Sequence, vars map[string]any) (query.Sequence, error) {
	if op.Arg == nil {
		return nil, errors.New("needs entity or query, outer, inner and result")
	}
	var j JoinSpec
	if err := op.Arg.Decode(&j); err != nil {
		return nil, err
	}
	var inner any = j.Entity
	if j.Query != nil {
		sub, err := j.Query.sequence(vars)
		if err != nil {
			return nil, err
		}
		inner = sub
	} else if j.Entity == "" {
		return nil, errors.New("needs entity or query")
	}
	var ls [3]*query.Lambda
	for i, src := range []string{j.Outer, j.Inner, j.Result} {
		l, err := lambda.Parse(src, vars)
		if err != nil {
			return nil, err
		}
		ls[i] = l
	}
	if op.Kind == "leftJoin" {
		return seq.GroupJoin(inner, ls[0], ls[1], ls[2]).DefaultIfEmpty(), nil
	}
	return seq.Join(inner, ls[0], ls[1], ls[2]), nil
}

// Result is the compiled output of one statement, or of the whole file in
// batch mode.
type Result struct {
	Name     string
	Commands []*query.Command
}

// Compile compiles every statement with c, whose provider should come from
// Registry.
func (f *File) Compile(c *compile.Compiler) ([]Result, error) {
	if f.Batch {
		var items []query.Statement
		for i := range f.Statements {
			built, err := f.Statements[i].Build(f.Vars)
			if err != nil {
				return nil, fmt.Errorf("statements[%d]: %w", i, err)
			}
			items = append(items, built...)
		}
		cmds, err := c.Batch(items...)
		if err != nil {
			return nil, err
		}
		return []Result{{Name: "batch", Commands: cmds}}, nil
	}

	var results []Result
	for i := range f.Statements {
		s := &f.Statements[i]
		if s.Break {
			continue
		}
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("statement %d", i+1)
		}
		built, err := s.Build(f.Vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		var cmds []*query.Command
		for _, item := range built {
			var more []*query.Command
			if seq, ok := item.(query.Sequence); ok {
				more, err = c.Compile(seq)
			} else {
				more, err = c.Batch(item)
			}
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			cmds = append(cmds, more...)
		}
		results = append(results, Result{Name: name, Commands: cmds})
	}
	return results, nil
}
