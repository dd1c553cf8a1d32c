package compile

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shipq/opsql/query"
)

// Paging is a dialect's way of skipping and limiting rows.
type Paging int

const (
	// PagingOffsetFetch uses TOP n, or OFFSET s ROWS FETCH NEXT t ROWS ONLY.
	PagingOffsetFetch Paging = iota
	// PagingLimitOffset uses LIMIT/OFFSET.
	PagingLimitOffset
	// PagingRowNumber wraps the query and filters on ROW_NUMBER() OVER(...).
	PagingRowNumber
	// PagingRowNum wraps the query and filters on ROWNUM.
	PagingRowNum
)

func (p Paging) String() string {
	switch p {
	case PagingOffsetFetch:
		return "offset-fetch"
	case PagingLimitOffset:
		return "limit-offset"
	case PagingRowNumber:
		return "row-number"
	case PagingRowNum:
		return "rownum"
	}
	return fmt.Sprintf("Paging(%d)", int(p))
}

// IdentityStyle is how an insert returns a generated key.
type IdentityStyle int

const (
	// IdentityOutput assigns SCOPE_IDENTITY() to an output parameter.
	IdentityOutput IdentityStyle = iota
	// IdentitySequence inserts <seq>.NEXTVAL and returns it INTO an output
	// parameter.
	IdentitySequence
	// IdentityReturning appends RETURNING and reads one scalar.
	IdentityReturning
	// IdentityLastInsertID relies on the driver's last insert id.
	IdentityLastInsertID
)

func (s IdentityStyle) String() string {
	switch s {
	case IdentityOutput:
		return "output"
	case IdentitySequence:
		return "sequence"
	case IdentityReturning:
		return "returning"
	case IdentityLastInsertID:
		return "last-insert-id"
	}
	return fmt.Sprintf("IdentityStyle(%d)", int(s))
}

// UpdateStyle is how an update that involves other tables is written.
type UpdateStyle int

const (
	// UpdateFromJoin: UPDATE t0 SET ... FROM tbl t0 JOIN ...
	UpdateFromJoin UpdateStyle = iota
	// UpdateJoin: UPDATE tbl t0 JOIN ... SET ...
	UpdateJoin
	// UpdateFromDerived: UPDATE tbl SET ... FROM (SELECT ...) t0 WHERE keys
	UpdateFromDerived
	// UpdateMerge: MERGE INTO tbl USING (SELECT ...) t0 ON (keys) ...
	UpdateMerge
)

// Dialect defines the SQL dialect-specific behavior for compilation:
// identifier quoting, parameter markers, paging, literal formatting and the
// shape of identity retrieval and multi-table statements.
type Dialect interface {
	// Name returns the dialect name for debugging/logging.
	Name() string

	// QuoteIdentifier quotes a table or column name. Aliases are not quoted.
	QuoteIdentifier(name string) string

	// Placeholder returns the marker for the n-th (0-based) parameter, which
	// is named p<n>.
	Placeholder(n int) string

	// Paging returns the dialect's paging strategy.
	Paging() Paging

	// Limit returns the LIMIT/OFFSET clause for PagingLimitOffset dialects
	// and "" for the others. take 0 means no limit.
	Limit(skip, take int) string

	// BoolLiteral returns the SQL literal for a boolean value.
	BoolLiteral(val bool) string

	// NowFunc returns the SQL function for current timestamp.
	NowFunc() string

	// Concat, Mod, Length, Substring, Trim and DatePart write the SQL for
	// the corresponding operations over already rendered operands.
	// Substring's start is 1-based.
	Concat(left, right string) string
	Mod(left, right string) string
	Length(s string) string
	Substring(s, start, length string) string
	Trim(s string) string
	DatePart(part, s string) string

	// Literal formatters. FormatString gets ansi=true for columns declared
	// as non-Unicode.
	FormatString(s string, ansi bool) string
	FormatBytes(b []byte) string
	FormatGUID(u uuid.UUID) string
	FormatDateTime(t time.Time) string
	FormatDate(t time.Time) string
	FormatDateTimeOffset(t time.Time) (string, error)
	FormatTimeOfDay(d time.Duration) string

	// Identity returns how inserts read back generated keys.
	Identity() IdentityStyle

	// Update returns the multi-table update strategy.
	Update() UpdateStyle

	// RowID returns the row identity pseudo-column used to delete joined
	// rows with IN (subquery), or "" when DELETE t0 FROM ... JOIN works.
	RowID() string

	// MergesBatches reports whether several statements can share one round
	// trip; BatchWrap wraps the merged text, e.g. in BEGIN ... END.
	MergesBatches() bool
	BatchWrap(statements []string) string
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlserver", "mssql":
		return SQLServer, nil
	case "sqlserver2005":
		return SQLServer2005, nil
	case "oracle":
		return Oracle, nil
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return nil, fmt.Errorf("unknown dialect: %q", name)
}

// Dialects lists all built-in dialects.
func Dialects() []Dialect {
	return []Dialect{SQLServer, SQLServer2005, Oracle, MySQL, Postgres, SQLite}
}

// =============================================================================
// Shared Helpers
// =============================================================================

func quoteWith(name, open, close string) string {
	return open + strings.ReplaceAll(name, close, close+close) + close
}

func singleQuoted(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func hexUpper(b []byte) string {
	return strings.ToUpper(fmt.Sprintf("%x", b))
}

func clock(d time.Duration) string {
	d = d % (24 * time.Hour)
	if d < 0 {
		d += 24 * time.Hour
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	out := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	if frac := d % time.Second; frac != 0 {
		out += fmt.Sprintf(".%06d", frac/time.Microsecond)
	}
	return out
}

// timestamp renders t as "2006-01-02 15:04:05[.ffffff]".
func timestamp(t time.Time, sep string) string {
	out := t.Format("2006-01-02" + sep + "15:04:05")
	if t.Nanosecond() != 0 {
		out += fmt.Sprintf(".%06d", t.Nanosecond()/1000)
	}
	return out
}

func offset(t time.Time) string {
	return t.Format("-07:00")
}

type standardBatch struct{}

func (standardBatch) MergesBatches() bool { return true }
func (standardBatch) BatchWrap(statements []string) string {
	return strings.Join(statements, ";\n")
}

// extractDatePart is the EXTRACT(<part> FROM x) form shared by Oracle and
// PostgreSQL.
func extractDatePart(part, s string) string {
	return "EXTRACT(" + strings.ToUpper(part) + " FROM " + s + ")"
}

func errNoTimeZone(d Dialect) error {
	return &query.DialectCapabilityError{Dialect: d.Name(), Feature: "time zone offsets"}
}
