// Package inifile reads and writes the small INI dialect used by opsql.ini.
//
// Sections and keys are case-insensitive. Values may be double-quoted to
// keep leading or trailing spaces and comment characters; unquoted values
// end at a " #" or " ;" inline comment.
package inifile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// File is a parsed INI document.
type File struct {
	Sections []Section
}

// Section is a named group of keys, in file order.
type Section struct {
	Name   string
	Values []KeyValue
}

// KeyValue is one assignment. Line is 1-based and 0 for values added by Set.
type KeyValue struct {
	Key   string
	Value string
	Line  int
}

// ParseError reports a malformed line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parse reads an INI document.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	var current *Section

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' || text[0] == ';' {
			continue
		}

		if text[0] == '[' {
			end := strings.IndexByte(text, ']')
			if end < 0 {
				return nil, &ParseError{Line: line, Msg: "unterminated section header"}
			}
			name := strings.ToLower(strings.TrimSpace(text[1:end]))
			if name == "" {
				return nil, &ParseError{Line: line, Msg: "empty section name"}
			}
			current = f.section(name, true)
			continue
		}

		key, raw, ok := strings.Cut(text, "=")
		if !ok {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("expected key = value, got %q", text)}
		}
		if current == nil {
			return nil, &ParseError{Line: line, Msg: "key outside of a section"}
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, &ParseError{Line: line, Msg: "empty key"}
		}
		value, err := parseValue(strings.TrimSpace(raw))
		if err != nil {
			return nil, &ParseError{Line: line, Msg: err.Error()}
		}
		current.Values = append(current.Values, KeyValue{Key: key, Value: value, Line: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseValue(raw string) (string, error) {
	if strings.HasPrefix(raw, `"`) {
		end := strings.LastIndexByte(raw, '"')
		if end == 0 {
			return "", fmt.Errorf("unterminated quoted value")
		}
		rest := strings.TrimSpace(raw[end+1:])
		if rest != "" && rest[0] != '#' && rest[0] != ';' {
			return "", fmt.Errorf("unexpected text after quoted value: %q", rest)
		}
		return strconv.Unquote(raw[:end+1])
	}
	for i := 1; i < len(raw); i++ {
		if (raw[i] == '#' || raw[i] == ';') && (raw[i-1] == ' ' || raw[i-1] == '\t') {
			return strings.TrimSpace(raw[:i]), nil
		}
	}
	return raw, nil
}

// ParseFile reads and parses an INI file from disk.
func ParseFile(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) section(name string, create bool) *Section {
	for i := range f.Sections {
		if f.Sections[i].Name == name {
			return &f.Sections[i]
		}
	}
	if !create {
		return nil
	}
	f.Sections = append(f.Sections, Section{Name: name})
	return &f.Sections[len(f.Sections)-1]
}

// Section returns the named section, or nil. Repeated headers are merged.
func (f *File) Section(name string) *Section {
	return f.section(strings.ToLower(name), false)
}

// Get returns the last value of key in section, or "".
func (f *File) Get(section, key string) string {
	v, _ := f.Lookup(section, key)
	return v
}

// Lookup is Get that also reports whether the key is present.
func (f *File) Lookup(section, key string) (string, bool) {
	s := f.Section(section)
	if s == nil {
		return "", false
	}
	kv := s.find(key)
	if kv == nil {
		return "", false
	}
	return kv.Value, true
}

// Bool reads a boolean key. Absent keys yield def.
func (f *File) Bool(section, key string, def bool) (bool, error) {
	v, ok := f.Lookup(section, key)
	if !ok || v == "" {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return def, f.valueError(section, key, "boolean", v)
}

// Int reads an integer key. Absent keys yield def.
func (f *File) Int(section, key string, def int) (int, error) {
	v, ok := f.Lookup(section, key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, f.valueError(section, key, "integer", v)
	}
	return n, nil
}

func (f *File) valueError(section, key, want, got string) error {
	line := 0
	if kv := f.Section(section).find(key); kv != nil {
		line = kv.Line
	}
	return &ParseError{Line: line, Msg: fmt.Sprintf("%s.%s: invalid %s %q", strings.ToLower(section), strings.ToLower(key), want, got)}
}

func (s *Section) find(key string) *KeyValue {
	key = strings.ToLower(key)
	for i := len(s.Values) - 1; i >= 0; i-- {
		if s.Values[i].Key == key {
			return &s.Values[i]
		}
	}
	return nil
}

// Get returns the last value for key, or "".
func (s *Section) Get(key string) string {
	if kv := s.find(key); kv != nil {
		return kv.Value
	}
	return ""
}

// HasKey reports whether key is assigned, even to "".
func (s *Section) HasKey(key string) bool {
	return s.find(key) != nil
}

// Set assigns key in section, creating either as needed.
func (f *File) Set(section, key, value string) {
	s := f.section(strings.ToLower(section), true)
	if kv := s.find(key); kv != nil {
		kv.Value = value
		return
	}
	s.Values = append(s.Values, KeyValue{Key: strings.ToLower(key), Value: value})
}

// Write serializes f. Values that would not survive a Parse are quoted.
func (f *File) Write(w io.Writer) error {
	for i, section := range f.Sections {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "[%s]\n", section.Name); err != nil {
			return err
		}
		for _, kv := range section.Values {
			if _, err := fmt.Fprintf(w, "%s = %s\n", kv.Key, formatValue(kv.Value)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatValue(v string) string {
	if v != strings.TrimSpace(v) || strings.HasPrefix(v, `"`) ||
		strings.ContainsAny(v, "#;\n") {
		return strconv.Quote(v)
	}
	return v
}

// WriteFile writes f to path.
func (f *File) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
