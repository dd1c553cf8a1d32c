package compile

import (
	"strconv"
	"strings"

	"github.com/shipq/opsql/query"
)

const indentUnit = "    "

// TextBuilder accumulates SQL one clause per line. Nested SELECTs are
// embedded as indented blocks.
type TextBuilder struct {
	lines []string
}

// Line starts a new line.
func (b *TextBuilder) Line(parts ...string) {
	b.lines = append(b.lines, strings.Join(parts, ""))
}

// Append adds text to the current line.
func (b *TextBuilder) Append(parts ...string) {
	if len(b.lines) == 0 {
		b.Line(parts...)
		return
	}
	b.lines[len(b.lines)-1] += strings.Join(parts, "")
}

// Block writes open on a new line, inner indented one level, then close on
// its own line.
func (b *TextBuilder) Block(open string, inner *TextBuilder, close string) {
	b.Line(open)
	for _, l := range inner.lines {
		b.lines = append(b.lines, indentUnit+l)
	}
	b.Line(close)
}

// Len returns the number of lines.
func (b *TextBuilder) Len() int { return len(b.lines) }

func (b *TextBuilder) String() string {
	return strings.Join(b.lines, "\n")
}

// Inline renders the builder on one line, for subqueries used inside an
// expression.
func (b *TextBuilder) Inline() string {
	var sb strings.Builder
	for i, l := range b.lines {
		l = strings.TrimLeft(l, " ")
		if i > 0 && !strings.HasSuffix(b.lines[i-1], "(") && !strings.HasPrefix(l, ")") {
			sb.WriteByte(' ')
		}
		sb.WriteString(l)
	}
	return sb.String()
}

// =============================================================================
// Parameter tokens
// =============================================================================

// Bound parameters are written as tokens and numbered only when a command is
// finished, so numbering follows the final text order regardless of the
// order in which nested levels, batches and clauses were visited.

const tokenMark = '\x00'

// binder owns the parameters registered during one compile call.
type binder struct {
	next   int
	params map[int]query.DBParameter
}

func newBinder() *binder {
	return &binder{params: make(map[int]query.DBParameter)}
}

func (b *binder) bind(p query.DBParameter) string {
	id := b.next
	b.next++
	if p.Direction == "" {
		p.Direction = query.DirInput
	}
	b.params[id] = p
	return string(tokenMark) + strconv.Itoa(id) + string(tokenMark)
}

// countTokens returns the number of parameters in text.
func countTokens(text string) int {
	return strings.Count(text, string(tokenMark)) / 2
}

// tokenIDs returns the ids of the parameter tokens in text, in order.
func tokenIDs(text string) []int {
	var ids []int
	for {
		start := strings.IndexRune(text, tokenMark)
		if start < 0 {
			return ids
		}
		end := strings.IndexRune(text[start+1:], tokenMark)
		if end < 0 {
			return ids
		}
		end += start + 1
		id, _ := strconv.Atoi(text[start+1 : end])
		ids = append(ids, id)
		text = text[end+1:]
	}
}

// finalize replaces tokens by the dialect's markers and returns the
// parameters in text order, named p0, p1, ...
func (b *binder) finalize(d Dialect, text string) (string, []query.DBParameter) {
	if !strings.ContainsRune(text, tokenMark) {
		return text, nil
	}
	var out strings.Builder
	var params []query.DBParameter
	for {
		start := strings.IndexRune(text, tokenMark)
		if start < 0 {
			out.WriteString(text)
			break
		}
		end := strings.IndexRune(text[start+1:], tokenMark)
		if end < 0 {
			out.WriteString(text)
			break
		}
		end += start + 1
		id, _ := strconv.Atoi(text[start+1 : end])
		p := b.params[id]
		n := len(params)
		p.Name = "p" + strconv.Itoa(n)
		params = append(params, p)

		out.WriteString(text[:start])
		out.WriteString(d.Placeholder(n))
		text = text[end+1:]
	}
	return out.String(), params
}
