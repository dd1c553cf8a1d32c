package compile

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Postgres Dialect
// =============================================================================

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) QuoteIdentifier(name string) string {
	// Escape embedded double quotes by doubling them
	return quoteWith(name, `"`, `"`)
}

func (d *PostgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n+1)
}

func (d *PostgresDialect) Paging() Paging { return PagingLimitOffset }

func (d *PostgresDialect) Limit(skip, take int) string {
	switch {
	case skip > 0 && take > 0:
		return "LIMIT " + strconv.Itoa(take) + " OFFSET " + strconv.Itoa(skip)
	case take > 0:
		return "LIMIT " + strconv.Itoa(take)
	case skip > 0:
		return "OFFSET " + strconv.Itoa(skip)
	}
	return ""
}

func (d *PostgresDialect) BoolLiteral(val bool) string {
	if val {
		return "TRUE"
	}
	return "FALSE"
}

func (d *PostgresDialect) NowFunc() string { return "NOW()" }

func (d *PostgresDialect) Concat(left, right string) string { return left + " || " + right }

func (d *PostgresDialect) Mod(left, right string) string { return left + " % " + right }

func (d *PostgresDialect) Length(s string) string { return "LENGTH(" + s + ")" }

func (d *PostgresDialect) Substring(s, start, length string) string {
	return "SUBSTR(" + s + ", " + start + ", " + length + ")"
}

func (d *PostgresDialect) Trim(s string) string { return "TRIM(" + s + ")" }

func (d *PostgresDialect) DatePart(part, s string) string { return extractDatePart(part, s) }

func (d *PostgresDialect) FormatString(s string, ansi bool) string {
	return singleQuoted(s)
}

func (d *PostgresDialect) FormatBytes(b []byte) string {
	return "decode('" + hexUpper(b) + "', 'hex')"
}

func (d *PostgresDialect) FormatGUID(u uuid.UUID) string {
	return "'" + u.String() + "'::uuid"
}

func (d *PostgresDialect) FormatDateTime(t time.Time) string {
	return "TIMESTAMP '" + timestamp(t, " ") + "'"
}

func (d *PostgresDialect) FormatDate(t time.Time) string {
	return "DATE '" + t.Format("2006-01-02") + "'"
}

func (d *PostgresDialect) FormatDateTimeOffset(t time.Time) (string, error) {
	return "TIMESTAMPTZ '" + timestamp(t, " ") + offset(t) + "'", nil
}

func (d *PostgresDialect) FormatTimeOfDay(v time.Duration) string {
	return "TIME '" + clock(v) + "'"
}

func (d *PostgresDialect) Identity() IdentityStyle { return IdentityReturning }

func (d *PostgresDialect) Update() UpdateStyle { return UpdateFromDerived }

func (d *PostgresDialect) RowID() string { return "ctid" }

// MergesBatches is false: the extended protocol runs one statement per
// round trip.
func (d *PostgresDialect) MergesBatches() bool { return false }

func (d *PostgresDialect) BatchWrap(statements []string) string {
	return strings.Join(statements, ";\n")
}
