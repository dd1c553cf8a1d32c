package query

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrUnsupported = errors.New("opsql: unsupported operation")
	ErrMapping     = errors.New("opsql: member has no column mapping")
	ErrConstraint  = errors.New("opsql: constraint violation")
	ErrDialect     = errors.New("opsql: unsupported by dialect")
)

// UnsupportedOperationError reports an operation kind or method the compiler
// cannot translate.
type UnsupportedOperationError struct {
	Op     string
	Detail string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("opsql: unsupported operation %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("opsql: unsupported operation %s", e.Op)
}

// Is reports whether target is ErrUnsupported.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupported
}

// Unsupported returns an UnsupportedOperationError.
func Unsupported(op string, format string, args ...any) error {
	return &UnsupportedOperationError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// MappingError reports a member path that does not resolve to a column.
type MappingError struct {
	Path   string
	Entity string
}

func (e *MappingError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("opsql: member %s of %s has no column mapping", e.Path, e.Entity)
	}
	return fmt.Sprintf("opsql: member %s has no column mapping", e.Path)
}

// Is reports whether target is ErrMapping.
func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}

// ConstraintViolationError reports an entity statement that cannot be
// keyed, e.g. an update of an entity without key columns.
type ConstraintViolationError struct {
	Entity string
	Reason string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("opsql: %s: %s", e.Entity, e.Reason)
}

// Is reports whether target is ErrConstraint.
func (e *ConstraintViolationError) Is(target error) bool {
	return target == ErrConstraint
}

// DialectCapabilityError reports a feature the target dialect lacks.
type DialectCapabilityError struct {
	Dialect string
	Feature string
}

func (e *DialectCapabilityError) Error() string {
	return fmt.Sprintf("opsql: %s does not support %s", e.Dialect, e.Feature)
}

// Is reports whether target is ErrDialect.
func (e *DialectCapabilityError) Is(target error) bool {
	return target == ErrDialect
}

// IsMapping reports whether err is or wraps a MappingError.
func IsMapping(err error) bool {
	var e *MappingError
	return errors.As(err, &e)
}

// IsUnsupported reports whether err is or wraps an UnsupportedOperationError.
func IsUnsupported(err error) bool {
	var e *UnsupportedOperationError
	return errors.As(err, &e)
}
