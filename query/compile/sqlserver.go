package compile

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SQL Server Dialect
// =============================================================================

// SQLServerDialect implements Dialect for SQL Server 2012 and later.
type SQLServerDialect struct {
	standardBatch
	// Legacy selects ROW_NUMBER() paging for servers without OFFSET/FETCH.
	Legacy bool
}

func (d *SQLServerDialect) Name() string {
	if d.Legacy {
		return "sqlserver2005"
	}
	return "sqlserver"
}

func (d *SQLServerDialect) QuoteIdentifier(name string) string {
	return quoteWith(name, "[", "]")
}

func (d *SQLServerDialect) Placeholder(n int) string {
	return "@p" + strconv.Itoa(n)
}

func (d *SQLServerDialect) Paging() Paging {
	if d.Legacy {
		return PagingRowNumber
	}
	return PagingOffsetFetch
}

func (d *SQLServerDialect) Limit(skip, take int) string { return "" }

func (d *SQLServerDialect) BoolLiteral(val bool) string {
	if val {
		return "1"
	}
	return "0"
}

func (d *SQLServerDialect) NowFunc() string { return "GETDATE()" }

func (d *SQLServerDialect) Concat(left, right string) string { return left + " + " + right }

func (d *SQLServerDialect) Mod(left, right string) string { return left + " % " + right }

func (d *SQLServerDialect) Length(s string) string { return "LEN(" + s + ")" }

func (d *SQLServerDialect) Substring(s, start, length string) string {
	return "SUBSTRING(" + s + ", " + start + ", " + length + ")"
}

func (d *SQLServerDialect) Trim(s string) string { return "LTRIM(RTRIM(" + s + "))" }

func (d *SQLServerDialect) DatePart(part, s string) string {
	return "DATEPART(" + strings.ToLower(part) + ", " + s + ")"
}

func (d *SQLServerDialect) FormatString(s string, ansi bool) string {
	if ansi {
		return singleQuoted(s)
	}
	return "N" + singleQuoted(s)
}

func (d *SQLServerDialect) FormatBytes(b []byte) string {
	return "0x" + hexUpper(b)
}

func (d *SQLServerDialect) FormatGUID(u uuid.UUID) string {
	return "'" + u.String() + "'"
}

func (d *SQLServerDialect) FormatDateTime(t time.Time) string {
	return "'" + t.Format("2006-01-02T15:04:05.000") + "'"
}

func (d *SQLServerDialect) FormatDate(t time.Time) string {
	return "'" + t.Format("2006-01-02") + "'"
}

func (d *SQLServerDialect) FormatDateTimeOffset(t time.Time) (string, error) {
	return "'" + t.Format("2006-01-02T15:04:05.000") + offset(t) + "'", nil
}

func (d *SQLServerDialect) FormatTimeOfDay(v time.Duration) string {
	return "'" + clock(v) + "'"
}

func (d *SQLServerDialect) Identity() IdentityStyle { return IdentityOutput }

func (d *SQLServerDialect) Update() UpdateStyle { return UpdateFromJoin }

func (d *SQLServerDialect) RowID() string { return "" }
