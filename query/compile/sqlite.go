package compile

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SQLite Dialect
// =============================================================================

// SQLiteDialect implements Dialect for SQLite (3.35+ for RETURNING).
type SQLiteDialect struct {
	standardBatch
}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) QuoteIdentifier(name string) string {
	return quoteWith(name, `"`, `"`)
}

func (d *SQLiteDialect) Placeholder(n int) string { return "?" }

func (d *SQLiteDialect) Paging() Paging { return PagingLimitOffset }

func (d *SQLiteDialect) Limit(skip, take int) string {
	switch {
	case skip > 0 && take > 0:
		return "LIMIT " + strconv.Itoa(take) + " OFFSET " + strconv.Itoa(skip)
	case take > 0:
		return "LIMIT " + strconv.Itoa(take)
	case skip > 0:
		return "LIMIT -1 OFFSET " + strconv.Itoa(skip)
	}
	return ""
}

func (d *SQLiteDialect) BoolLiteral(val bool) string {
	if val {
		return "1"
	}
	return "0"
}

func (d *SQLiteDialect) NowFunc() string { return "datetime('now')" }

func (d *SQLiteDialect) Concat(left, right string) string { return left + " || " + right }

func (d *SQLiteDialect) Mod(left, right string) string { return left + " % " + right }

func (d *SQLiteDialect) Length(s string) string { return "LENGTH(" + s + ")" }

func (d *SQLiteDialect) Substring(s, start, length string) string {
	return "SUBSTR(" + s + ", " + start + ", " + length + ")"
}

func (d *SQLiteDialect) Trim(s string) string { return "TRIM(" + s + ")" }

var sqliteDateFormats = map[string]string{
	"year": "%Y", "month": "%m", "day": "%d", "hour": "%H", "minute": "%M", "second": "%S",
}

func (d *SQLiteDialect) DatePart(part, s string) string {
	return "CAST(strftime('" + sqliteDateFormats[part] + "', " + s + ") AS INTEGER)"
}

func (d *SQLiteDialect) FormatString(s string, ansi bool) string {
	return singleQuoted(s)
}

func (d *SQLiteDialect) FormatBytes(b []byte) string {
	return "X'" + hexUpper(b) + "'"
}

func (d *SQLiteDialect) FormatGUID(u uuid.UUID) string {
	return "'" + u.String() + "'"
}

func (d *SQLiteDialect) FormatDateTime(t time.Time) string {
	return "'" + timestamp(t, " ") + "'"
}

func (d *SQLiteDialect) FormatDate(t time.Time) string {
	return "'" + t.Format("2006-01-02") + "'"
}

func (d *SQLiteDialect) FormatDateTimeOffset(t time.Time) (string, error) {
	return "'" + timestamp(t, " ") + offset(t) + "'", nil
}

func (d *SQLiteDialect) FormatTimeOfDay(v time.Duration) string {
	return "'" + clock(v) + "'"
}

func (d *SQLiteDialect) Identity() IdentityStyle { return IdentityReturning }

func (d *SQLiteDialect) Update() UpdateStyle { return UpdateFromDerived }

func (d *SQLiteDialect) RowID() string { return "rowid" }

// =============================================================================
// Dialect Singletons
// =============================================================================

var (
	// SQLServer is the SQL Server 2012+ dialect.
	SQLServer Dialect = &SQLServerDialect{}

	// SQLServer2005 is the SQL Server dialect with ROW_NUMBER() paging.
	SQLServer2005 Dialect = &SQLServerDialect{Legacy: true}

	// Oracle is the Oracle dialect.
	Oracle Dialect = &OracleDialect{}

	// MySQL is the MySQL dialect.
	MySQL Dialect = &MySQLDialect{}

	// Postgres is the PostgreSQL dialect.
	Postgres Dialect = &PostgresDialect{}

	// SQLite is the SQLite dialect.
	SQLite Dialect = &SQLiteDialect{}
)
