package morse

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"strings"
	"sync"
)

// CodeType selects the Morse code variant in use on a wire.
type CodeType int

const (
	// American is the landline (railroad) Morse variant,
	// with internal character spaces and long dashes.
	American CodeType = iota

	// International is the ITU radio variant.
	International
)

func (t CodeType) String() string {
	switch t {
	case American:
		return "american"
	case International:
		return "international"
	default:
		return fmt.Sprintf("codetype(%d)", int(t))
	}
}

// Spacing selects how Farnsworth delay is distributed
// when the code speed exceeds the text speed.
type Spacing int

const (
	// SpacingNone disables Farnsworth timing; text is sent at code speed.
	SpacingNone Spacing = iota

	// SpacingChar stretches both inter-character and inter-word gaps.
	SpacingChar

	// SpacingWord stretches only inter-word gaps.
	SpacingWord
)

func (s Spacing) String() string {
	switch s {
	case SpacingNone:
		return "none"
	case SpacingChar:
		return "char"
	case SpacingWord:
		return "word"
	default:
		return fmt.Sprintf("spacing(%d)", int(s))
	}
}

// CodeTable is a static mapping between characters and symbol strings
// for one code variant. Symbol strings use '.' for a dot, '-' for a
// dash, '=' for a long dash, '#' for an extra-long dash, and ' ' for
// an internal gap within a spaced (American) character.
//
// A CodeTable is read-only after construction and safe for concurrent use.
type CodeTable struct {
	codeType CodeType

	encode map[rune]string
	decode map[string]string
}

//go:embed data/codetable-american.txt data/codetable-international.txt
var tableData embed.FS

var standardTables = sync.OnceValue(func() [2]*CodeTable {
	var tables [2]*CodeTable
	for ct, name := range map[CodeType]string{
		American:      "data/codetable-american.txt",
		International: "data/codetable-international.txt",
	} {
		f, err := tableData.Open(name)
		if err != nil {
			panic(fmt.Errorf("BUG: missing embedded code table %s: %w", name, err))
		}
		t, err := ParseCodeTable(f, ct)
		_ = f.Close()
		if err != nil {
			panic(fmt.Errorf("BUG: malformed embedded code table %s: %w", name, err))
		}
		tables[ct] = t
	}
	return tables
})

// StandardTable returns the built-in code table for the given variant.
// The tables are parsed once and shared between callers.
func StandardTable(t CodeType) *CodeTable {
	return standardTables()[t]
}

// ParseCodeTable reads a code table in the external data format:
// a header line (ignored) followed by one tab-separated
// character/symbol-string pair per line.
func ParseCodeTable(r io.Reader, t CodeType) (*CodeTable, error) {
	ct := &CodeTable{
		codeType: t,
		encode:   make(map[rune]string),
		decode:   make(map[string]string),
	}

	sc := bufio.NewScanner(r)
	first := true
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if first {
			// Header line.
			first = false
			continue
		}
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		ch, code, ok := strings.Cut(line, "\t")
		if !ok || ch == "" {
			return nil, fmt.Errorf("code table line %d: want CHAR<TAB>CODE, got %q", lineNo, line)
		}
		key := []rune(ch)[0]
		ct.encode[key] = code
		ct.decode[code] = string(key)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read code table: %w", err)
	}

	return ct, nil
}

// Type reports which code variant the table holds.
func (t *CodeTable) Type() CodeType { return t.codeType }

// Symbols returns the symbol string for the given (upper-case) character.
func (t *CodeTable) Symbols(c rune) (string, bool) {
	s, ok := t.encode[c]
	return s, ok
}

// Char returns the character for the given symbol string.
func (t *CodeTable) Char(symbols string) (string, bool) {
	c, ok := t.decode[symbols]
	return c, ok
}
