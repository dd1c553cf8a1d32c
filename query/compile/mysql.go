package compile

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MySQL Dialect
// =============================================================================

// MySQLDialect implements Dialect for MySQL.
type MySQLDialect struct {
	standardBatch
}

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) QuoteIdentifier(name string) string {
	return quoteWith(name, "`", "`")
}

func (d *MySQLDialect) Placeholder(n int) string { return "?" }

func (d *MySQLDialect) Paging() Paging { return PagingLimitOffset }

// Limit uses the LIMIT offset, count form; MySQL has no OFFSET without a
// count, so skipping alone limits to the largest unsigned bigint.
func (d *MySQLDialect) Limit(skip, take int) string {
	switch {
	case skip > 0 && take > 0:
		return "LIMIT " + strconv.Itoa(skip) + ", " + strconv.Itoa(take)
	case take > 0:
		return "LIMIT " + strconv.Itoa(take)
	case skip > 0:
		return "LIMIT " + strconv.Itoa(skip) + ", 18446744073709551615"
	}
	return ""
}

func (d *MySQLDialect) BoolLiteral(val bool) string {
	if val {
		return "1"
	}
	return "0"
}

func (d *MySQLDialect) NowFunc() string { return "NOW()" }

func (d *MySQLDialect) Concat(left, right string) string {
	return "CONCAT(" + left + ", " + right + ")"
}

func (d *MySQLDialect) Mod(left, right string) string { return left + " % " + right }

func (d *MySQLDialect) Length(s string) string { return "CHAR_LENGTH(" + s + ")" }

func (d *MySQLDialect) Substring(s, start, length string) string {
	return "SUBSTRING(" + s + ", " + start + ", " + length + ")"
}

func (d *MySQLDialect) Trim(s string) string { return "TRIM(" + s + ")" }

func (d *MySQLDialect) DatePart(part, s string) string {
	return strings.ToUpper(part) + "(" + s + ")"
}

// FormatString escapes backslashes as well as quotes; MySQL treats the
// backslash as an escape character inside literals.
func (d *MySQLDialect) FormatString(s string, ansi bool) string {
	return singleQuoted(strings.ReplaceAll(s, `\`, `\\`))
}

func (d *MySQLDialect) FormatBytes(b []byte) string {
	return "X'" + hexUpper(b) + "'"
}

func (d *MySQLDialect) FormatGUID(u uuid.UUID) string {
	return "'" + u.String() + "'"
}

func (d *MySQLDialect) FormatDateTime(t time.Time) string {
	return "'" + timestamp(t, " ") + "'"
}

func (d *MySQLDialect) FormatDate(t time.Time) string {
	return "'" + t.Format("2006-01-02") + "'"
}

func (d *MySQLDialect) FormatDateTimeOffset(t time.Time) (string, error) {
	return "", errNoTimeZone(d)
}

func (d *MySQLDialect) FormatTimeOfDay(v time.Duration) string {
	return "'" + clock(v) + "'"
}

func (d *MySQLDialect) Identity() IdentityStyle { return IdentityLastInsertID }

func (d *MySQLDialect) Update() UpdateStyle { return UpdateJoin }

func (d *MySQLDialect) RowID() string { return "" }
