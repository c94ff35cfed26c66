package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/telegraph-engine/kobwire/morse"
)

// Wire protocol command codes.
// The protocol predates this implementation; every peer on a shared
// wire speaks exactly this layout, so none of it is negotiable.
const (
	CmdDisconnect int16 = 2
	CmdData       int16 = 3
	CmdConnect    int16 = 4
	CmdAck        int16 = 5
)

const (
	// ShortLen is the size of a connect/disconnect packet:
	// command and wire number, both little-endian int16.
	ShortLen = 4

	// AckLen is the size of a server acknowledgement.
	AckLen = 2

	// RecordLen is the size of every data record,
	// whether it carries a station ID or a code sequence.
	RecordLen = 496

	// recordDataLen is the value of the record's length field,
	// covering everything after the command and length.
	recordDataLen = 492

	// MaxCodeLen is the most code elements one record can carry.
	// The layout reserves 51 slots but the last is the element count.
	MaxCodeLen = 50

	stationIDLen = 128
	textLen      = 128
)

// Data record field offsets. Shared by the ID and code variants;
// an ID record zeroes the code region and sets the ID flag instead.
const (
	offCmd       = 0
	offLen       = 2
	offStationID = 4
	offSeq       = 136
	offIDFlag    = 140 // ID records only
	offCode      = 152
	offCodeCount = 356
	offText      = 360 // protocol version string in ID records
)

// record is one parsed 496-byte data record.
//
// Code holds the full 51-slot region; CodeCount says how many leading
// slots are meaningful. A CodeCount of zero marks an ID record, in
// which case Text carries the sender's software version.
type record struct {
	Cmd       int16
	StationID string
	Seq       int32
	Code      [MaxCodeLen + 1]int32
	CodeCount int32
	Text      string
}

// encodeShort builds a connect or disconnect packet.
func encodeShort(cmd, wireNo int16) []byte {
	buf := make([]byte, ShortLen)
	binary.LittleEndian.PutUint16(buf[0:], uint16(cmd))
	binary.LittleEndian.PutUint16(buf[2:], uint16(wireNo))
	return buf
}

// encodeIDRecord builds the station identification record that
// follows a connect packet and recurs with every keep-alive.
func encodeIDRecord(stationID string, seq int32, version string) []byte {
	buf := make([]byte, RecordLen)
	binary.LittleEndian.PutUint16(buf[offCmd:], uint16(CmdData))
	binary.LittleEndian.PutUint16(buf[offLen:], recordDataLen)
	putPaddedString(buf[offStationID:offStationID+stationIDLen], stationID)
	binary.LittleEndian.PutUint32(buf[offSeq:], uint32(seq))
	binary.LittleEndian.PutUint32(buf[offIDFlag:], 1)
	putPaddedString(buf[offText:offText+textLen], version)
	return buf
}

// encodeCodeRecord builds a code-carrying record. code must not be
// longer than [MaxCodeLen].
func encodeCodeRecord(stationID string, seq int32, code morse.CodeSequence, text string) []byte {
	buf := make([]byte, RecordLen)
	binary.LittleEndian.PutUint16(buf[offCmd:], uint16(CmdData))
	binary.LittleEndian.PutUint16(buf[offLen:], recordDataLen)
	putPaddedString(buf[offStationID:offStationID+stationIDLen], stationID)
	binary.LittleEndian.PutUint32(buf[offSeq:], uint32(seq))
	for i, e := range code {
		binary.LittleEndian.PutUint32(buf[offCode+4*i:], uint32(e))
	}
	binary.LittleEndian.PutUint32(buf[offCodeCount:], uint32(len(code)))
	putPaddedString(buf[offText:offText+textLen], text)
	return buf
}

// parseRecord decodes a 496-byte data record.
func parseRecord(buf []byte) (record, error) {
	if len(buf) != RecordLen {
		return record{}, fmt.Errorf("record length %d, want %d", len(buf), RecordLen)
	}

	var r record
	r.Cmd = int16(binary.LittleEndian.Uint16(buf[offCmd:]))
	r.StationID = paddedString(buf[offStationID : offStationID+stationIDLen])
	r.Seq = int32(binary.LittleEndian.Uint32(buf[offSeq:]))
	for i := range r.Code {
		r.Code[i] = int32(binary.LittleEndian.Uint32(buf[offCode+4*i:]))
	}
	r.CodeCount = int32(binary.LittleEndian.Uint32(buf[offCodeCount:]))
	r.Text = paddedString(buf[offText : offText+textLen])
	return r, nil
}

// putPaddedString writes s into dst in latin-1, NUL padded.
// Runes outside latin-1 and anything past the field length are dropped.
func putPaddedString(dst []byte, s string) {
	i := 0
	for _, r := range s {
		if i >= len(dst) {
			break
		}
		if r > 0xFF {
			r = '?'
		}
		dst[i] = byte(r)
		i++
	}
}

// paddedString reads a latin-1 field up to its first NUL.
func paddedString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	rs := make([]rune, n)
	for i := 0; i < n; i++ {
		rs[i] = rune(src[i])
	}
	return string(rs)
}
