package lambda

import (
	"fmt"
	"strings"
)

type tokenType string

const (
	tEnd    tokenType = "end"
	tNumber tokenType = "number"
	tString tokenType = "string"
	tIdent  tokenType = "identifier"
	tVar    tokenType = "variable"
	tOp     tokenType = "operator"
)

type token struct {
	t   tokenType
	val string
	pos int
}

func (t token) String() string {
	if t.t == tEnd {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", t.t, t.val)
}

// Longer operators come first so that "=>" wins over "=".
var operators = []string{
	"=>", "==", "!=", "<=", ">=", "&&", "||", "??",
	"<", ">", "+", "-", "*", "/", "%", "!", ".", ",", "(", ")", "{", "}", "[", "]", "=",
}

// SyntaxError reports a malformed lambda and the byte offset where parsing
// stopped.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("lambda: offset %d: %s", e.Offset, e.Msg)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for {
		for i < len(src) && strings.ContainsRune(" \t\r\n", rune(src[i])) {
			i++
		}
		if i >= len(src) {
			return append(toks, token{t: tEnd, pos: i}), nil
		}
		c := src[i]
		start := i
		switch {
		case isDigit(c):
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i+1 < len(src) && src[i] == '.' && isDigit(src[i+1]) {
				i++
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			if i < len(src) && (src[i] == 'm' || src[i] == 'M') {
				i++
			}
			toks = append(toks, token{t: tNumber, val: src[start:i], pos: start})
		case c == '"' || c == '\'':
			s, n, err := readQuoted(src[i:])
			if err != nil {
				return nil, &SyntaxError{Offset: start, Msg: err.Error()}
			}
			i += n
			toks = append(toks, token{t: tString, val: s, pos: start})
		case c == '$':
			i++
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			if i == start+1 {
				return nil, &SyntaxError{Offset: start, Msg: "expected variable name after $"}
			}
			toks = append(toks, token{t: tVar, val: src[start+1 : i], pos: start})
		case isIdentStart(c):
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{t: tIdent, val: src[start:i], pos: start})
		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{t: tOp, val: op, pos: start})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, &SyntaxError{Offset: start, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
		}
	}
}

// readQuoted reads a quoted string starting at s[0] and returns the unescaped
// value and the number of bytes consumed.
func readQuoted(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\':
			i++
			if i >= len(s) {
				return "", 0, fmt.Errorf("unterminated string")
			}
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}
