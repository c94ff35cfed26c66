package morse

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Decode thresholds, in dot units unless noted.
const (
	// A mark shorter than this many dots is a dot; otherwise a dash.
	minDashLen = 2.0

	// A space following a dot must exceed this to end a character.
	// American spaced characters carry internal gaps of three dots
	// after a dot, so the cutoff sits above them.
	minCharSpaceAfterDot = 3.0

	// A space following a dash must exceed this to end a character.
	minCharSpaceAfterDash = 2.0

	// A space at least this long inside a character is an internal
	// Morse gap and becomes part of the symbol string.
	minMorseSpace = 2.0

	// The space before a trailing unit must be below this for the
	// unit to be considered half of a spaced character.
	maxMorseSpace = 6.0

	// A space must exceed a neighboring space by more than this
	// ratio's complement (5%) before two units may combine.
	// Tuned empirically; behavior, not implementation detail.
	morseRatio = 0.95

	// Lone-dash reinterpretation bounds for American code:
	// above minLongDash a lone dash is the long dash (L),
	// above minExtraLongDash it is the extra-long dash (zero).
	minLongDash      = 4.5
	minExtraLongDash = 7.0
)

// combineExcluded is the one decoded character that never results
// from combining two pending units, however plausible the spacing.
// Preserved as a literal exclusion from the original decoder.
const combineExcluded = "&"

// flushSpace is the synthetic space fed through the boundary logic
// when flushing; larger than any real gap.
const flushSpace = 1 << 30

const (
	autoflushPoll = 100 * time.Millisecond
	autoflushIdle = 500 * time.Millisecond
)

// DecodeFunc receives each decoded character.
//
// char is usually a single character from the code table, a bracketed
// symbol string like "[--.]" for code with no table entry, or the
// literal "+" or "~" for circuit control markers. spacing is the gap
// observed before the character in inter-character-space widths
// beyond the nominal one; it can be negative.
type DecodeFunc func(char string, spacing float64)

// ReaderConfig is the configuration for a [Reader].
type ReaderConfig struct {
	// Words per minute; the effective decode speed is the
	// greater of WPM and CodeWPM. CodeWPM zero means WPM.
	WPM     int
	CodeWPM int

	Type CodeType

	// Table overrides the standard table for Type.
	Table *CodeTable

	// OnDecoded receives decoded characters. It is called
	// synchronously from Decode, Flush, and the autoflush task,
	// and must not call back into the Reader.
	OnDecoded DecodeFunc
}

func (c ReaderConfig) validate() {
	var panicErrs error

	if c.WPM <= 0 {
		panicErrs = errors.Join(panicErrs, errors.New("ReaderConfig.WPM must be positive"))
	}
	if c.CodeWPM < 0 {
		panicErrs = errors.Join(panicErrs, errors.New("ReaderConfig.CodeWPM must not be negative"))
	}
	if c.Table != nil && c.Table.Type() != c.Type {
		panicErrs = errors.Join(panicErrs, errors.New("ReaderConfig.Table variant does not match ReaderConfig.Type"))
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// unit is one pending decoded character:
// the symbols accumulated so far, the space observed before it,
// and the length of its last mark.
type unit struct {
	syms     string
	space    int
	lastMark int
}

// Reader decodes timed code sequences back into characters.
//
// Decoding keeps a one-character lookahead: what appears to be two
// characters may be the two halves of a spaced character, so a
// finished unit is held until the next boundary decides its fate.
// The pipeline therefore holds at most a "previous" and a "current"
// unit, and every accumulated unit is eventually emitted exactly
// once: on a boundary, a control marker, an explicit Flush, or the
// autoflush task noticing the line has gone idle.
//
// All state is mutated inside a single critical section, so Decode
// may be called from any number of goroutines (key, keyboard, and
// network inputs race in practice).
type Reader struct {
	log *slog.Logger

	codeType  CodeType
	table     *CodeTable
	onDecoded DecodeFunc

	dotLen int

	mu    sync.Mutex
	prev  *unit
	cur   unit
	space int // accumulated open-circuit time not yet attributed (ms)

	// Zero while idle; the autoflush task only acts when a decode
	// has happened since the last flush.
	lastDecode time.Time

	wg sync.WaitGroup
}

// NewReader returns a Reader for the given configuration and starts
// its autoflush task. Cancel ctx to stop the task, then use
// [(*Reader).Wait] to block until it has finished.
//
// A Reader's speed is fixed for its lifetime: decode state tuned to
// one speed must not be reused at another, so a speed change means
// replacing the Reader. Configuration errors cause a panic.
func NewReader(ctx context.Context, log *slog.Logger, cfg ReaderConfig) *Reader {
	cfg.validate()

	table := cfg.Table
	if table == nil {
		table = StandardTable(cfg.Type)
	}

	wpm := cfg.WPM
	if cfg.CodeWPM > wpm {
		wpm = cfg.CodeWPM
	}

	r := &Reader{
		log: log,

		codeType:  cfg.Type,
		table:     table,
		onDecoded: cfg.OnDecoded,

		dotLen: 1200 / wpm,
	}

	r.wg.Add(1)
	go r.runAutoflush(ctx)

	return r
}

// Wait blocks until the autoflush task has stopped.
func (r *Reader) Wait() {
	r.wg.Wait()
}

// DotLen returns the nominal dot length in milliseconds.
func (r *Reader) DotLen() int { return r.dotLen }

// Decode processes the elements of seq in order, invoking the decoded
// callback zero or more times. Safe for concurrent use; each call is
// one atomic step of the decode pipeline.
func (r *Reader) Decode(seq CodeSequence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range seq {
		switch {
		case e < 0:
			// Start or continuation of a space. The gap sentinel
			// lands here too: an overflow-sized gap that forces a
			// boundary at the next mark.
			r.space += int(-e)
		case e == LatchClosed:
			r.control("+")
		case e == UnlatchOpen:
			r.control("~")
		case e >= 3:
			r.mark(int(e))
		}
	}

	r.lastDecode = time.Now()
}

// Flush forces emission of both pending units and disarms the
// autoflush task until the next decode. Flushing an already-flushed
// Reader produces no callbacks.
func (r *Reader) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flushPipeline()
	r.lastDecode = time.Time{}
}

// mark appends one symbol to the current unit,
// first settling any accumulated space.
func (r *Reader) mark(d int) {
	if r.space > 0 {
		sp := r.space
		r.space = 0
		switch {
		case r.cur.syms == "":
			// Nothing accumulated yet; the space belongs in
			// front of the unit being started.
			r.cur.space += sp
		case r.isBoundary(sp):
			r.shift(sp)
		case float64(sp) >= minMorseSpace*float64(r.dotLen):
			// Internal gap of a spaced character.
			r.cur.syms += " "
		}
	}

	if float64(d) < minDashLen*float64(r.dotLen) {
		r.cur.syms += "."
	} else {
		r.cur.syms += "-"
	}
	r.cur.lastMark = d
}

// isBoundary reports whether a space of sp ms ends the current unit.
// The cutoff depends on the unit's last symbol: internal gaps of
// spaced characters only ever follow dots, so a dot demands a wider
// space than a dash does.
func (r *Reader) isBoundary(sp int) bool {
	if strings.HasSuffix(r.cur.syms, "-") {
		return float64(sp) > minCharSpaceAfterDash*float64(r.dotLen)
	}
	return float64(sp) > minCharSpaceAfterDot*float64(r.dotLen)
}

// shift resolves the pipeline at a character boundary of nextSpace ms
// and starts a fresh current unit.
func (r *Reader) shift(nextSpace int) {
	if r.prev != nil {
		if r.combine(nextSpace) {
			r.prev = nil
			r.cur = unit{space: nextSpace}
			return
		}
		r.emitUnit(*r.prev)
	}
	held := r.cur
	r.prev = &held
	r.cur = unit{space: nextSpace}
}

// combine decides whether the previous and current units are the two
// halves of one spaced character. They combine only when the space
// before the previous unit exceeds the space before the current unit
// by more than five percent, the current unit's space is itself small
// against both the new boundary and the dot length, and the joined
// symbol string is a known character other than the excluded one.
// On success the combined character is emitted and both units are
// consumed.
func (r *Reader) combine(nextSpace int) bool {
	sp1 := float64(r.prev.space)
	sp2 := float64(r.cur.space)
	dot := float64(r.dotLen)

	if sp2 >= maxMorseSpace*dot {
		return false
	}
	if morseRatio*sp1 <= sp2 {
		return false
	}
	if sp2 >= morseRatio*float64(nextSpace) {
		return false
	}

	joined := r.prev.syms + " " + r.cur.syms
	ch, ok := r.table.Char(joined)
	if !ok || ch == combineExcluded {
		return false
	}

	r.emit(ch, r.prev.space)
	return true
}

// emitUnit decodes one finished unit through the code table.
// In American code a lone dash may really be the long dash or the
// extra-long dash; reinterpret by its measured length before lookup.
// Symbol strings with no table entry are emitted bracketed so the
// operator can see the malformed input.
func (r *Reader) emitUnit(u unit) {
	code := u.syms
	if code == "" {
		return
	}

	if r.codeType == American && code == "-" {
		dot := float64(r.dotLen)
		switch {
		case float64(u.lastMark) > minExtraLongDash*dot:
			code = "#"
		case float64(u.lastMark) > minLongDash*dot:
			code = "="
		}
	}

	ch, ok := r.table.Char(code)
	if !ok {
		r.log.Debug("No character for received symbols", "symbols", code)
		ch = "[" + code + "]"
	}
	r.emit(ch, u.space)
}

// control flushes the pipeline and emits the literal control
// character with the pending inter-character space, so subscribers
// can render circuit state changes in place.
func (r *Reader) control(ch string) {
	sp := r.space
	if r.cur.syms == "" {
		sp += r.cur.space
	}
	r.space = 0

	r.flushPipeline()
	r.emit(ch, sp)
}

func (r *Reader) flushPipeline() {
	if r.prev != nil {
		if r.combine(flushSpace) {
			r.prev = nil
			r.cur = unit{}
			return
		}
		r.emitUnit(*r.prev)
		r.prev = nil
	}
	r.emitUnit(r.cur)
	r.cur = unit{}
}

func (r *Reader) emit(ch string, space int) {
	if r.onDecoded == nil {
		return
	}
	r.onDecoded(ch, float64(space)/float64(3*r.dotLen)-1)
}

// runAutoflush flushes the pipeline when the line goes idle, so the
// last character of a transmission is displayed promptly even if no
// further key transition ever arrives to trigger the boundary logic.
func (r *Reader) runAutoflush(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(autoflushPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			r.mu.Lock()
			if !r.lastDecode.IsZero() && time.Since(r.lastDecode) > autoflushIdle {
				r.flushPipeline()
				r.lastDecode = time.Time{}
			}
			r.mu.Unlock()
		}
	}
}
