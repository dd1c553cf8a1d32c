package proptest

import "time"

// Charsets for string generation.
const (
	CharsetAlpha      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CharsetDigits     = "0123456789"
	CharsetAlphaNum   = CharsetAlpha + CharsetDigits
	CharsetPrintable  = CharsetAlphaNum + " !\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	CharsetIdentStart = CharsetAlpha + "_"
	CharsetIdentBody  = CharsetAlphaNum + "_"
)

// OneOf returns one of values. Panics if values is empty.
func OneOf[T any](g *Generator, values ...T) T {
	if len(values) == 0 {
		panic("proptest: OneOf called with no values")
	}
	return values[g.Intn(len(values))]
}

// Pick returns a random element of a non-empty slice.
func Pick[T any](g *Generator, slice []T) T {
	if len(slice) == 0 {
		panic("proptest: Pick called with empty slice")
	}
	return slice[g.Intn(len(slice))]
}

// SliceN generates a slice of length [minLen, maxLen].
func SliceN[T any](g *Generator, minLen, maxLen int, gen func(*Generator) T) []T {
	out := make([]T, g.IntRange(minLen, maxLen))
	for i := range out {
		out[i] = gen(g)
	}
	return out
}

// StringFrom returns a string of length [0, maxLen] over charset.
func (g *Generator) StringFrom(charset string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	b := make([]byte, g.Intn(maxLen+1))
	for i := range b {
		b[i] = charset[g.Intn(len(charset))]
	}
	return string(b)
}

// String returns a printable ASCII string of length [0, maxLen].
func (g *Generator) String(maxLen int) string {
	return g.StringFrom(CharsetPrintable, maxLen)
}

// Identifier returns a letter or underscore followed by up to maxLen-1
// letters, digits or underscores.
func (g *Generator) Identifier(maxLen int) string {
	if maxLen <= 0 {
		maxLen = 1
	}
	b := make([]byte, g.IntRange(1, maxLen))
	b[0] = CharsetIdentStart[g.Intn(len(CharsetIdentStart))]
	for i := 1; i < len(b); i++ {
		b[i] = CharsetIdentBody[g.Intn(len(CharsetIdentBody))]
	}
	return string(b)
}

// Bytes returns a random byte slice of length [0, maxLen].
func (g *Generator) Bytes(maxLen int) []byte {
	b := make([]byte, g.Intn(maxLen+1))
	for i := range b {
		b[i] = byte(g.Intn(256))
	}
	return b
}

// Time returns a UTC time between 1970 and 2100, truncated to microseconds.
func (g *Generator) Time() time.Time {
	sec := g.Int64Range(0, 4102444800)
	usec := g.Int64Range(0, 999999)
	return time.Unix(sec, usec*1000).UTC()
}

// SQLString returns a string likely to break literal quoting or LIKE
// escaping: quotes, wildcards, brackets, keywords and non-ASCII text.
func (g *Generator) SQLString() string {
	edge := []string{
		"", " ", "'", "''", `"`, "it's", `\`, "%", "_", "!", "[a]", "a_b%",
		"100%", "NULL", "--", "/**/", "; DROP TABLE Demo;", "日本語", "🎉",
		"line1\nline2", "{0}",
	}
	if g.Float64() < 0.7 {
		return Pick(g, edge)
	}
	return g.String(30)
}

// SQLIdentifier returns a reserved word or a random identifier, optionally
// containing the closing quote characters of the dialects.
func (g *Generator) SQLIdentifier() string {
	reserved := []string{
		"select", "from", "where", "order", "group", "key", "user", "table",
		"Order", "Index", "a]b", `a"b`, "a`b",
	}
	if g.Bool() {
		return Pick(g, reserved)
	}
	return g.Identifier(20)
}
