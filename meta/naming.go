package meta

import "github.com/shipq/opsql/dbstrings"

// Naming derives table and column names for reflected types that do not
// name them explicitly.
type Naming interface {
	Table(typeName string) string
	Column(field string) string
}

// ExactNaming uses type and field names unchanged.
type ExactNaming struct{}

func (ExactNaming) Table(typeName string) string { return typeName }
func (ExactNaming) Column(field string) string   { return field }

// SnakeNaming maps OrderItem to order_items and CreatedAt to created_at.
type SnakeNaming struct{}

func (SnakeNaming) Table(typeName string) string { return dbstrings.ToTableName(typeName) }
func (SnakeNaming) Column(field string) string   { return dbstrings.ToSnakeCase(field) }
