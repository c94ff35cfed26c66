package morse_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telegraph-engine/kobwire/internal/ktest"
	"github.com/telegraph-engine/kobwire/morse"
)

type decoded struct {
	char    string
	spacing float64
}

// newReader returns a reader whose decoded characters accumulate in
// the returned slice. The callback runs synchronously, so the slice
// is safe to inspect between calls.
func newReader(t *testing.T, cfg morse.ReaderConfig) (*morse.Reader, *[]decoded) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	var got []decoded
	cfg.OnDecoded = func(char string, spacing float64) {
		got = append(got, decoded{char, spacing})
	}

	r := morse.NewReader(ctx, ktest.NewLogger(t), cfg)
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})
	return r, &got
}

func chars(got []decoded) string {
	var sb strings.Builder
	for _, d := range got {
		if d.spacing > 0.5 {
			sb.WriteString(" ")
		}
		sb.WriteString(d.char)
	}
	return sb.String()
}

func TestReader_roundTrip(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		ct   morse.CodeType
		text string
	}{
		{
			name: "american",
			ct:   morse.American,
			text: "THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG 0123456789 KOB,.?!&",
		},
		{
			name: "international",
			ct:   morse.International,
			text: "THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG 0123456789 KOB,.?!&=/",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := morse.NewSender(morse.SenderConfig{
				WPM:  20,
				Type: tc.ct,
			})
			r, got := newReader(t, morse.ReaderConfig{
				WPM:  20,
				Type: tc.ct,
			})

			r.Decode(s.EncodeText(tc.text))
			r.Flush()

			require.Equal(t, tc.text, strings.TrimSpace(chars(*got)))
		})
	}
}

func TestReader_flushIsIdempotent(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.International,
	})

	r.Decode(morse.CodeSequence{-420, 60, -60, 180}) // A
	r.Flush()
	require.Equal(t, "A", strings.TrimSpace(chars(*got)))

	r.Flush()
	require.Len(t, *got, 1)
}

func TestReader_combinesSplitSpacedCharacter(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.American,
	})

	// A hand-keyed Z whose internal gap drifted wide enough to look
	// like a character boundary. The halves still combine because
	// the gap is narrow next to the surrounding spaces.
	r.Decode(morse.CodeSequence{-420, 60, -60, 60, -60, 60, -240, 60})
	r.Flush()

	require.Len(t, *got, 1)
	require.Equal(t, "Z", (*got)[0].char)
	require.InDelta(t, 420.0/180-1, (*got)[0].spacing, 0.001)
}

func TestReader_neverCombinesIntoAmpersand(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.American,
	})

	// Same spacing shape as the Z case, but the joined symbols would
	// decode as the ampersand, which stays split by rule: ES is the
	// far more common reading.
	r.Decode(morse.CodeSequence{-420, 60, -240, 60, -60, 60, -60, 60})
	r.Flush()

	require.Equal(t, "ES", strings.TrimSpace(chars(*got)))
}

func TestReader_equalSpacingStaysSplit(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.American,
	})

	// Same shape as the combining Z case, but the gap before the
	// trailing dot matches the gap before the first half, so the
	// ratio test fails and the units stay apart.
	r.Decode(morse.CodeSequence{-300, 60, -60, 60, -60, 60, -300, 60})
	r.Flush()

	require.Equal(t, "S E", strings.TrimSpace(chars(*got)))
}

func TestReader_wideGapStaysSplit(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.American,
	})

	// The trailing dot sits a full word space away, so no combine:
	// this is S followed by E.
	r.Decode(morse.CodeSequence{-420, 60, -60, 60, -60, 60, -460, 60})
	r.Flush()

	require.Equal(t, "S E", strings.TrimSpace(chars(*got)))
}

func TestReader_gapSentinelForcesBoundary(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.International,
	})

	r.Decode(morse.CodeSequence{-420, 60, -60, 180})         // A
	r.Decode(morse.CodeSequence{morse.GapSentinel, 60, -60, 60, -60, 60}) // S after a wire break
	r.Flush()

	require.Equal(t, "A S", strings.TrimSpace(chars(*got)))
}

func TestReader_longDashReinterpretation(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		mark morse.CodeElement
		want string
	}{
		{name: "dash", mark: 180, want: "T"},
		{name: "long dash", mark: 360, want: "L"},
		{name: "extra long dash", mark: 540, want: "0"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, got := newReader(t, morse.ReaderConfig{
				WPM:  20,
				Type: morse.American,
			})

			r.Decode(morse.CodeSequence{-420, tc.mark})
			r.Flush()

			require.Equal(t, tc.want, strings.TrimSpace(chars(*got)))
		})
	}
}

func TestReader_unknownSymbolsBracketed(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.American,
	})

	seq := morse.CodeSequence{-420}
	for i := 0; i < 9; i++ {
		if i > 0 {
			seq = append(seq, -60)
		}
		seq = append(seq, 60)
	}
	r.Decode(seq)
	r.Flush()

	require.Equal(t, "[.........]", strings.TrimSpace(chars(*got)))
}

func TestReader_controlMarkers(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.International,
	})

	// A latch right after a character flushes the pipeline so the
	// marker lands in sequence.
	r.Decode(morse.CodeSequence{-420, 60, -60, 180}) // A
	r.Decode(morse.CodeSequence{-180, morse.LatchClosed})
	r.Decode(morse.CodeSequence{-180, morse.UnlatchOpen})

	require.Equal(t, "A+~", strings.TrimSpace(chars(*got)))
}

func TestReader_farnsworthUsesCharacterSpeed(t *testing.T) {
	t.Parallel()

	// Characters keyed at 20 wpm decode correctly even when the
	// reader's text speed is lower; the decoder follows the faster
	// of the two speeds.
	s := morse.NewSender(morse.SenderConfig{
		WPM:     13,
		CodeWPM: 20,
		Type:    morse.International,
		Spacing: morse.SpacingChar,
	})
	r, got := newReader(t, morse.ReaderConfig{
		WPM:     13,
		CodeWPM: 20,
		Type:    morse.International,
	})

	require.Equal(t, 60, r.DotLen())

	r.Decode(s.EncodeText("HI"))
	r.Flush()

	require.Equal(t, "H I", strings.TrimSpace(chars(*got)))
}

func TestReader_concurrentDecode(t *testing.T) {
	t.Parallel()

	r, got := newReader(t, morse.ReaderConfig{
		WPM:  20,
		Type: morse.International,
	})

	// Each call carries a boundary-forcing space and a single dot,
	// so however the calls interleave, every call contributes
	// exactly one E. Racing callers corrupting the pipeline would
	// merge dots into other characters.
	const (
		workers  = 4
		perCall  = 25
		expected = workers * perCall
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perCall; j++ {
				r.Decode(morse.CodeSequence{-420, 60})
			}
		}()
	}
	wg.Wait()
	r.Flush()

	require.Len(t, *got, expected)
	for _, d := range *got {
		require.Equal(t, "E", d.char)
	}
}

func TestReader_autoflush(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan decoded, 4)
	r := morse.NewReader(ctx, ktest.NewLogger(t), morse.ReaderConfig{
		WPM:  20,
		Type: morse.International,
		OnDecoded: func(char string, spacing float64) {
			ch <- decoded{char, spacing}
		},
	})
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})

	r.Decode(morse.CodeSequence{-420, 60, -60, 180}) // A

	d := ktest.ReceiveSoon(t, ch)
	require.Equal(t, "A", d.char)

	// Once flushed, the idle timer is disarmed; nothing repeats.
	ktest.NotSending(t, ch)
}
