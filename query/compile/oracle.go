package compile

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Oracle Dialect
// =============================================================================

// OracleDialect implements Dialect for Oracle. It has no LIMIT/OFFSET, so
// paging is emulated with ROWNUM, and identities come from sequences.
type OracleDialect struct{}

func (d *OracleDialect) Name() string { return "oracle" }

func (d *OracleDialect) QuoteIdentifier(name string) string {
	return quoteWith(name, `"`, `"`)
}

func (d *OracleDialect) Placeholder(n int) string {
	return ":p" + strconv.Itoa(n)
}

func (d *OracleDialect) Paging() Paging { return PagingRowNum }

func (d *OracleDialect) Limit(skip, take int) string { return "" }

func (d *OracleDialect) BoolLiteral(val bool) string {
	if val {
		return "1"
	}
	return "0"
}

func (d *OracleDialect) NowFunc() string { return "SYSDATE" }

func (d *OracleDialect) Concat(left, right string) string { return left + " || " + right }

func (d *OracleDialect) Mod(left, right string) string { return "MOD(" + left + ", " + right + ")" }

func (d *OracleDialect) Length(s string) string { return "LENGTH(" + s + ")" }

func (d *OracleDialect) Substring(s, start, length string) string {
	return "SUBSTR(" + s + ", " + start + ", " + length + ")"
}

func (d *OracleDialect) Trim(s string) string { return "TRIM(" + s + ")" }

func (d *OracleDialect) DatePart(part, s string) string { return extractDatePart(part, s) }

func (d *OracleDialect) FormatString(s string, ansi bool) string {
	return singleQuoted(s)
}

func (d *OracleDialect) FormatBytes(b []byte) string {
	return "HEXTORAW('" + hexUpper(b) + "')"
}

func (d *OracleDialect) FormatGUID(u uuid.UUID) string {
	return "HEXTORAW('" + hexUpper(u[:]) + "')"
}

func (d *OracleDialect) FormatDateTime(t time.Time) string {
	if t.Nanosecond() == 0 {
		return "TO_DATE('" + t.Format("2006-01-02 15:04:05") + "', 'YYYY-MM-DD HH24:MI:SS')"
	}
	return "TO_TIMESTAMP('" + timestamp(t, " ") + "', 'YYYY-MM-DD HH24:MI:SS.FF6')"
}

func (d *OracleDialect) FormatDate(t time.Time) string {
	return "TO_DATE('" + t.Format("2006-01-02") + "', 'YYYY-MM-DD')"
}

func (d *OracleDialect) FormatDateTimeOffset(t time.Time) (string, error) {
	return "TO_TIMESTAMP_TZ('" + t.Format("2006-01-02 15:04:05") + " " + offset(t) +
		"', 'YYYY-MM-DD HH24:MI:SS TZH:TZM')", nil
}

func (d *OracleDialect) FormatTimeOfDay(v time.Duration) string {
	return "INTERVAL '0 " + clock(v) + "' DAY TO SECOND"
}

func (d *OracleDialect) Identity() IdentityStyle { return IdentitySequence }

func (d *OracleDialect) Update() UpdateStyle { return UpdateMerge }

func (d *OracleDialect) RowID() string { return "ROWID" }

func (d *OracleDialect) MergesBatches() bool { return true }

// BatchWrap runs several statements as one anonymous PL/SQL block.
func (d *OracleDialect) BatchWrap(statements []string) string {
	var b strings.Builder
	b.WriteString("BEGIN\n")
	for _, s := range statements {
		b.WriteString(s)
		b.WriteString(";\n")
	}
	b.WriteString("END;")
	return b.String()
}
