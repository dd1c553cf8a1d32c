package compile

import (
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shipq/opsql/meta"
	"github.com/shipq/opsql/query"
)

// ValueFormatter turns host values into SQL: a bound parameter in
// parameterized mode for strings, bytes, times and GUIDs, and a dialect
// literal for everything else (or for everything in literal mode).
type ValueFormatter struct {
	d             Dialect
	parameterized bool
	b             *binder
}

func newValueFormatter(d Dialect, parameterized bool, b *binder) *ValueFormatter {
	return &ValueFormatter{d: d, parameterized: parameterized, b: b}
}

// Format renders v. col, when known, is the column the value is compared
// with or assigned to; it decides Unicode vs ANSI strings and sizes.
func (f *ValueFormatter) Format(v any, col *meta.Column) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		return f.d.BoolLiteral(x), nil
	case string:
		if f.parameterized {
			return f.param(x, stringDBType(col), col), nil
		}
		return f.d.FormatString(x, ansi(col)), nil
	case []byte:
		if x == nil {
			return "NULL", nil
		}
		if f.parameterized {
			return f.param(x, "Binary", col), nil
		}
		return f.d.FormatBytes(x), nil
	case uuid.UUID:
		if f.parameterized {
			return f.param(x, "Guid", col), nil
		}
		return f.d.FormatGUID(x), nil
	case time.Time:
		if f.parameterized {
			return f.param(x, "DateTime", col), nil
		}
		return f.d.FormatDateTime(x), nil
	case query.Date:
		if f.parameterized {
			return f.param(x.Time(), "Date", col), nil
		}
		return f.d.FormatDate(x.Time()), nil
	case query.DateTimeOffset:
		lit, err := f.d.FormatDateTimeOffset(x.Time)
		if err != nil {
			return "", err
		}
		if f.parameterized {
			return f.param(x.Time, "DateTimeOffset", col), nil
		}
		return lit, nil
	case time.Duration:
		if f.parameterized {
			return f.param(clock(x), "Time", col), nil
		}
		return f.d.FormatTimeOfDay(x), nil
	case decimal.Decimal:
		return x.String(), nil
	case decimal.NullDecimal:
		if !x.Valid {
			return "NULL", nil
		}
		return x.Decimal.String(), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return "", err
		}
		return f.Format(dv, col)
	}
	return f.formatReflect(reflect.ValueOf(v), col)
}

// formatReflect handles named types (enums), pointers and lists.
func (f *ValueFormatter) formatReflect(rv reflect.Value, col *meta.Column) (string, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "NULL", nil
		}
		return f.Format(rv.Elem().Interface(), col)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Bool:
		return f.d.BoolLiteral(rv.Bool()), nil
	case reflect.String:
		return f.Format(rv.String(), col)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 && rv.Kind() == reflect.Slice {
			return f.Format(rv.Bytes(), col)
		}
		items := make([]string, rv.Len())
		for i := range items {
			s, err := f.Format(rv.Index(i).Interface(), col)
			if err != nil {
				return "", err
			}
			items[i] = s
		}
		return strings.Join(items, ", "), nil
	}
	return "", query.Unsupported("value", "cannot format %s", rv.Type())
}

// FormatWithDefault is Format for insert and update values: a nil or zero
// value is replaced by the column's default, when it has one.
func (f *ValueFormatter) FormatWithDefault(v any, col *meta.Column) (string, error) {
	if col != nil && col.Default != nil && isZero(v) {
		return f.Format(col.Default, col)
	}
	return f.Format(v, col)
}

// Bind always registers v as a parameter.
func (f *ValueFormatter) Bind(v any, dbType string, col *meta.Column) string {
	return f.param(v, dbType, col)
}

// Output registers an output parameter.
func (f *ValueFormatter) Output(dbType string) string {
	return f.b.bind(query.DBParameter{DBType: dbType, Direction: query.DirOutput})
}

func (f *ValueFormatter) param(v any, dbType string, col *meta.Column) string {
	p := query.DBParameter{Value: v, DBType: dbType}
	if col != nil {
		if col.DBType != "" {
			p.DBType = col.DBType
		}
		p.Size, p.Precision, p.Scale = col.Size, col.Precision, col.Scale
	}
	return f.b.bind(p)
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.IsZero()
}

// ansi reports whether col stores non-Unicode text.
func ansi(col *meta.Column) bool {
	if col == nil {
		return false
	}
	switch strings.ToLower(col.DBType) {
	case "varchar", "char", "text", "ansistring", "ansistringfixedlength":
		return true
	}
	return false
}

func stringDBType(col *meta.Column) string {
	if ansi(col) {
		return "AnsiString"
	}
	return "String"
}
