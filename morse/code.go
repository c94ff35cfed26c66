package morse

// CodeElement is one timed element of a code sequence,
// as a signed duration in milliseconds.
//
// The sign carries the element class:
// negative values are open-circuit spaces (magnitude = duration),
// values of 3 and above are closed-circuit marks,
// and the two small positive values are circuit control markers.
type CodeElement int32

const (
	// LatchClosed latches the circuit closed (sent for the '+' character).
	LatchClosed CodeElement = 1

	// UnlatchOpen opens a latched circuit (sent for the '~' character).
	UnlatchOpen CodeElement = 2

	// GapSentinel replaces the leading space of a code sequence whose
	// wire sequence number did not follow the previously accepted one.
	// The value is what legacy wire peers emit on a sequence break,
	// so recordings made from mixed wires stay interoperable.
	//
	// It is far outside the range of any real space duration and must
	// never be interpreted as one.
	GapSentinel CodeElement = -0x7FFF
)

// CodeSequence is an ordered run of code elements.
// It is the unit of decode input and of wire transmission.
type CodeSequence []CodeElement

// Duration returns the total keying time of the sequence in
// milliseconds, ignoring control markers and the gap sentinel.
// Useful for pacing playback of an encoded sequence.
func (s CodeSequence) Duration() int {
	var total int
	for _, e := range s {
		switch {
		case e == GapSentinel, e == LatchClosed, e == UnlatchOpen:
			// No duration of their own.
		case e < 0:
			total += int(-e)
		default:
			total += int(e)
		}
	}
	return total
}
