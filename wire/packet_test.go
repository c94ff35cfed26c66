package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telegraph-engine/kobwire/morse"
)

func TestEncodeShort(t *testing.T) {
	t.Parallel()

	pkt := encodeShort(CmdConnect, 108)
	require.Len(t, pkt, ShortLen)
	require.Equal(t, uint16(4), binary.LittleEndian.Uint16(pkt[0:]))
	require.Equal(t, uint16(108), binary.LittleEndian.Uint16(pkt[2:]))
}

func TestEncodeCodeRecord_layout(t *testing.T) {
	t.Parallel()

	code := morse.CodeSequence{-420, 60, -60, 180}
	pkt := encodeCodeRecord("AC, Albany NY", 7, code, "A")
	require.Len(t, pkt, RecordLen)

	require.Equal(t, uint16(CmdData), binary.LittleEndian.Uint16(pkt[0:]))
	require.Equal(t, uint16(492), binary.LittleEndian.Uint16(pkt[2:]))

	// Station ID at offset 4, NUL padded.
	require.Equal(t, byte('A'), pkt[4])
	require.Equal(t, byte(0), pkt[4+13])

	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(pkt[136:]))

	// First code element at 152, little-endian two's complement.
	require.Equal(t, int32(-420), int32(binary.LittleEndian.Uint32(pkt[152:])))
	require.Equal(t, int32(180), int32(binary.LittleEndian.Uint32(pkt[164:])))

	// Element count at 356, text at 360.
	require.Equal(t, uint32(4), binary.LittleEndian.Uint32(pkt[356:]))
	require.Equal(t, byte('A'), pkt[360])
}

func TestEncodeIDRecord_layout(t *testing.T) {
	t.Parallel()

	pkt := encodeIDRecord("AC, Albany NY", 2, "kobwire 1.2")
	require.Len(t, pkt, RecordLen)

	require.Equal(t, uint16(CmdData), binary.LittleEndian.Uint16(pkt[0:]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(pkt[136:]))

	// ID flag set, code region zeroed.
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(pkt[140:]))
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(pkt[356:]))

	// Version string where a code record carries text.
	require.Equal(t, byte('k'), pkt[360])
}

func TestParseRecord_roundTrip(t *testing.T) {
	t.Parallel()

	code := morse.CodeSequence{-420, 60, -60, 180}
	pkt := encodeCodeRecord("AC, Albany NY", 9, code, "A")

	rec, err := parseRecord(pkt)
	require.NoError(t, err)

	require.Equal(t, CmdData, rec.Cmd)
	require.Equal(t, "AC, Albany NY", rec.StationID)
	require.Equal(t, int32(9), rec.Seq)
	require.Equal(t, int32(4), rec.CodeCount)
	require.Equal(t, "A", rec.Text)
	for i, e := range code {
		require.Equal(t, int32(e), rec.Code[i])
	}
	require.Equal(t, int32(0), rec.Code[4])
}

func TestParseRecord_idRecord(t *testing.T) {
	t.Parallel()

	pkt := encodeIDRecord("AC, Albany NY", 2, "kobwire 1.2")

	rec, err := parseRecord(pkt)
	require.NoError(t, err)

	require.Equal(t, int32(0), rec.CodeCount)
	require.Equal(t, "AC, Albany NY", rec.StationID)
	require.Equal(t, "kobwire 1.2", rec.Text)
}

func TestParseRecord_wrongLength(t *testing.T) {
	t.Parallel()

	_, err := parseRecord(make([]byte, RecordLen-1))
	require.Error(t, err)
}

func TestPaddedString_latin1(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 16)
	putPaddedString(buf, "Café 世")
	require.Equal(t, byte(0xE9), buf[3])
	require.Equal(t, byte('?'), buf[5])

	require.Equal(t, "Café ?", paddedString(buf))
}

func TestPutPaddedString_truncates(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4)
	putPaddedString(buf, "ABCDEF")
	require.Equal(t, "ABCD", paddedString(buf))
}
