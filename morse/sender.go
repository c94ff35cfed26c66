package morse

import (
	"errors"
	"unicode"
)

// Dot units per word, counting all spaces
// (MORSE is 43, PARIS is 47).
const dotsPerWord = 45

// SenderConfig is the configuration for a [Sender].
type SenderConfig struct {
	// Words per minute for the overall text speed.
	WPM int

	// Words per minute for individual characters.
	// When higher than WPM, the difference becomes Farnsworth
	// spacing distributed according to Spacing.
	// Zero means the same as WPM.
	CodeWPM int

	Type    CodeType
	Spacing Spacing

	// Table overrides the standard table for Type.
	Table *CodeTable
}

// validate panics if there are any illegal settings in the configuration.
func (c SenderConfig) validate() {
	var panicErrs error

	if c.WPM <= 0 {
		panicErrs = errors.Join(panicErrs, errors.New("SenderConfig.WPM must be positive"))
	}
	if c.CodeWPM < 0 {
		panicErrs = errors.Join(panicErrs, errors.New("SenderConfig.CodeWPM must not be negative"))
	}
	if c.Table != nil && c.Table.Type() != c.Type {
		panicErrs = errors.Join(panicErrs, errors.New("SenderConfig.Table variant does not match SenderConfig.Type"))
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// Sender converts characters into timed code sequences at the
// configured speed. Its timing constants are consistent with the
// last applied configuration; encode calls never observe a partial
// update.
//
// Encode mutates the pending-space state between calls,
// so a Sender is not safe for concurrent use.
type Sender struct {
	codeType CodeType
	spacing  Spacing
	table    *CodeTable

	dotLen    int // dot length (ms)
	charSpace int // space between characters (ms)
	wordSpace int // space between words (ms)

	space int // delay before next code element (ms)
}

// NewSender returns a Sender for the given configuration.
// Configuration errors cause a panic.
func NewSender(cfg SenderConfig) *Sender {
	cfg.validate()

	table := cfg.Table
	if table == nil {
		table = StandardTable(cfg.Type)
	}

	s := &Sender{
		codeType: cfg.Type,
		spacing:  cfg.Spacing,
		table:    table,
	}
	s.SetWPM(cfg.WPM, cfg.CodeWPM)
	s.space = s.wordSpace
	return s
}

// SetWPM recomputes the timing constants for a new text/code speed
// pair. All constants change together; there is no partially
// updated state visible to a subsequent Encode. Like Encode it does
// no locking of its own, so a caller changing speed while another
// goroutine encodes must serialize the two externally.
func (s *Sender) SetWPM(wpm, cwpm int) {
	if cwpm == 0 {
		cwpm = wpm
	}
	if s.spacing == SpacingNone {
		wpm = cwpm // send text at character speed
	} else if wpm > cwpm {
		wpm, cwpm = cwpm, wpm // send at Farnsworth speed
	}

	s.dotLen = 1200 / cwpm
	s.charSpace = 3 * s.dotLen
	s.wordSpace = 7 * s.dotLen
	if s.codeType == American {
		// American code has a non-uniform dot-unit word length.
		s.charSpace += (60000/cwpm - s.dotLen*dotsPerWord) / 6
		s.wordSpace = 2 * s.charSpace
	}

	delta := 60000/wpm - 60000/cwpm // amount to stretch each word
	switch s.spacing {
	case SpacingChar:
		s.charSpace += delta / 6
		s.wordSpace += delta / 3
	case SpacingWord:
		s.wordSpace += delta
	}
}

// DotLen returns the dot length in milliseconds.
func (s *Sender) DotLen() int { return s.dotLen }

// CharSpace returns the inter-character space in milliseconds.
func (s *Sender) CharSpace() int { return s.charSpace }

// WordSpace returns the inter-word space in milliseconds.
func (s *Sender) WordSpace() int { return s.wordSpace }

// Encode converts one character into a timed code sequence.
//
// Encoding never fails. Characters outside the code table are
// absorbed into extra spacing before the next encoded character,
// except the two reserved circuit controls: '+' emits the pending
// space plus the latch-closed marker, and '~' emits the pending
// space plus the unlatch-open marker.
func (s *Sender) Encode(char rune) CodeSequence {
	c := unicode.ToUpper(char)

	sym, ok := s.table.Symbols(c)
	if !ok {
		switch c {
		case '-', '\'', '’':
			s.space += (s.wordSpace - s.charSpace) / 2
		case '\r':
			// Ignored.
		case '+':
			code := CodeSequence{CodeElement(-s.space), LatchClosed}
			s.space = s.charSpace
			return code
		case '~':
			code := CodeSequence{CodeElement(-s.space), UnlatchOpen}
			s.space = s.charSpace
			return code
		default:
			// A blank, and anything else we cannot key,
			// widens the pending gap to a word space.
			s.space += s.wordSpace - s.charSpace
		}
		return nil
	}

	var code CodeSequence
	for _, e := range sym {
		if e == ' ' {
			s.space = 3 * s.dotLen
			continue
		}
		code = append(code, CodeElement(-s.space))
		switch e {
		case '.':
			code = append(code, CodeElement(s.dotLen))
		case '-':
			code = append(code, CodeElement(3*s.dotLen))
		case '=':
			code = append(code, CodeElement(6*s.dotLen))
		case '#':
			code = append(code, CodeElement(9*s.dotLen))
		}
		s.space = s.dotLen
	}
	s.space = s.charSpace
	return code
}

// EncodeText encodes each character of text in order,
// returning the concatenated sequence.
func (s *Sender) EncodeText(text string) CodeSequence {
	var code CodeSequence
	for _, c := range text {
		code = append(code, s.Encode(c)...)
	}
	return code
}
