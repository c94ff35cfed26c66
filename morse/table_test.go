package morse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telegraph-engine/kobwire/morse"
)

func TestStandardTable(t *testing.T) {
	t.Parallel()

	am := morse.StandardTable(morse.American)
	require.Equal(t, morse.American, am.Type())

	sym, ok := am.Symbols('C')
	require.True(t, ok)
	require.Equal(t, ".. .", sym)

	sym, ok = am.Symbols('L')
	require.True(t, ok)
	require.Equal(t, "=", sym)

	intl := morse.StandardTable(morse.International)
	require.Equal(t, morse.International, intl.Type())

	sym, ok = intl.Symbols('C')
	require.True(t, ok)
	require.Equal(t, "-.-.", sym)

	// Lookups are symmetric.
	ch, ok := intl.Char("-.-.")
	require.True(t, ok)
	require.Equal(t, "C", ch)

	_, ok = intl.Char("not symbols")
	require.False(t, ok)

	// The instances are shared.
	require.Same(t, am, morse.StandardTable(morse.American))
}

func TestParseCodeTable(t *testing.T) {
	t.Parallel()

	const data = `header line
A	.-
B	-...

C	-.-.
`

	ct, err := morse.ParseCodeTable(strings.NewReader(data), morse.International)
	require.NoError(t, err)

	sym, ok := ct.Symbols('B')
	require.True(t, ok)
	require.Equal(t, "-...", sym)

	ch, ok := ct.Char("-.-.")
	require.True(t, ok)
	require.Equal(t, "C", ch)

	_, ok = ct.Symbols('Z')
	require.False(t, ok)
}

func TestParseCodeTable_malformedLine(t *testing.T) {
	t.Parallel()

	const data = `header line
A .-
`

	_, err := morse.ParseCodeTable(strings.NewReader(data), morse.International)
	require.Error(t, err)
}

func TestCodeType_string(t *testing.T) {
	t.Parallel()

	require.Equal(t, "american", morse.American.String())
	require.Equal(t, "international", morse.International.String())
	require.Equal(t, "none", morse.SpacingNone.String())
	require.Equal(t, "char", morse.SpacingChar.String())
	require.Equal(t, "word", morse.SpacingWord.String())
}
