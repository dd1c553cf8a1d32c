// Package dbstrings converts between Go identifiers and database names:
// snake_case columns, pluralized table names and back.
package dbstrings

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ToPascalCase converts a snake_case string to PascalCase.
// Examples:
//
//	"user_id" -> "UserId"
//	"created_at" -> "CreatedAt"
//	"id" -> "Id"
func ToPascalCase(s string) string {
	title := cases.Title(language.Und, cases.NoLower)
	parts := strings.Split(s, "_")
	for i, part := range parts {
		parts[i] = title.String(part)
	}
	return strings.Join(parts, "")
}

// ToSnakeCase converts a PascalCase or camelCase string to snake_case,
// keeping acronyms together.
// Examples:
//
//	"UserID" -> "user_id"
//	"CreatedAt" -> "created_at"
//	"HTTPServer" -> "http_server"
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := !unicode.IsUpper(runes[i-1]) && runes[i-1] != '_'
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToSingular converts a plural English word to its singular form.
func ToSingular(s string) string {
	return inflect.Singularize(s)
}

// ToPlural converts a singular English word to its plural form.
func ToPlural(s string) string {
	return inflect.Pluralize(s)
}

// ToTableName converts a type name to a table name (plural snake_case).
// Examples:
//
//	"User" -> "users"
//	"OrderItem" -> "order_items"
//	"Category" -> "categories"
func ToTableName(typeName string) string {
	return ToPlural(ToSnakeCase(typeName))
}

// ToTypeName converts a table name to a type name (singular PascalCase).
func ToTypeName(tableName string) string {
	return ToPascalCase(ToSingular(tableName))
}
