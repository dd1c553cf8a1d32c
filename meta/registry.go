package meta

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Provider resolves entity metadata for the compiler. Implementations must
// be safe for concurrent use.
type Provider interface {
	// Entity returns the entity registered under name.
	Entity(name string) (*Entity, error)
	// EntityOf returns the entity for a value, pointer, slice or reflect.Type.
	EntityOf(v any) (*Entity, error)
}

// Registry is a Provider backed by explicit registrations and lazily
// reflected struct types. Lookups are read-mostly.
type Registry struct {
	naming Naming

	mu     sync.RWMutex
	byName map[string]*Entity
	byType map[reflect.Type]*Entity
	// known holds navigation target types that have not been reflected yet.
	known map[string]reflect.Type

	group singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithNaming sets the naming strategy for reflected types.
func WithNaming(n Naming) Option {
	return func(r *Registry) { r.naming = n }
}

// NewRegistry returns an empty registry using ExactNaming unless configured
// otherwise.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		naming: ExactNaming{},
		byName: make(map[string]*Entity),
		byType: make(map[reflect.Type]*Entity),
		known:  make(map[string]reflect.Type),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a hand-described entity.
func (r *Registry) Register(e *Entity) error {
	if err := e.init(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[e.Name]; dup {
		return fmt.Errorf("meta: entity %s already registered", e.Name)
	}
	r.add(e)
	return nil
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(entities ...*Entity) *Registry {
	for _, e := range entities {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// RegisterType reflects v's struct type and registers it.
func (r *Registry) RegisterType(v any) (*Entity, error) {
	return r.EntityOf(v)
}

func (r *Registry) add(e *Entity) {
	r.byName[e.Name] = e
	if e.Type != nil {
		r.byType[e.Type] = e
	}
	delete(r.known, e.Name)
	for _, n := range e.Navigations {
		if n.targetType == nil || n.targetType.Name() != n.Target {
			continue
		}
		if _, ok := r.byName[n.Target]; !ok {
			r.known[n.Target] = n.targetType
		}
	}
}

// Entity implements Provider.
func (r *Registry) Entity(name string) (*Entity, error) {
	r.mu.RLock()
	e, ok := r.byName[name]
	t, pending := r.known[name]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}
	if pending {
		return r.EntityOf(t)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
}

// EntityOf implements Provider. Struct types are reflected on first use;
// concurrent first uses of one type share a single reflection.
func (r *Registry) EntityOf(v any) (*Entity, error) {
	switch x := v.(type) {
	case *Entity:
		return x, nil
	case Row:
		return r.Entity(x.Entity)
	case *Row:
		return r.Entity(x.Entity)
	case []Row:
		return r.rowsEntity(x)
	}
	t, err := entityType(v)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	e, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}
	out, err, _ := r.group.Do(t.PkgPath()+" "+t.String(), func() (any, error) {
		r.mu.RLock()
		e, ok := r.byType[t]
		r.mu.RUnlock()
		if ok {
			return e, nil
		}
		e, err := reflectEntity(t, r.naming)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if prev, ok := r.byName[e.Name]; ok && prev.Type != t {
			return nil, fmt.Errorf("meta: entity %s already registered for another type", e.Name)
		}
		r.add(e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Entity), nil
}

func (r *Registry) rowsEntity(rows []Row) (*Entity, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty row list", ErrUnknownEntity)
	}
	for _, row := range rows[1:] {
		if row.Entity != rows[0].Entity {
			return nil, fmt.Errorf("meta: rows mix %s and %s", rows[0].Entity, row.Entity)
		}
	}
	return r.Entity(rows[0].Entity)
}
