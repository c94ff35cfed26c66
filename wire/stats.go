package wire

import (
	"github.com/bits-and-blooms/bitset"
)

// seqWindowSize is how many recent sequence numbers the loss tracker
// follows. A record arriving more than this far behind the newest one
// has already been written off.
const seqWindowSize = 64

// seqTracker follows the sequence numbers of incoming records and
// finalizes a loss count for numbers that scroll out of the window
// without ever having been seen.
//
// The sender's keep-alive consumes two sequence numbers but only one
// of them arrives as a record, so the caller accounts for the connect
// packet's number alongside each ID record.
//
// Not safe for concurrent use; the owner provides locking.
type seqTracker struct {
	started bool
	base    int32 // lowest tracked number; window covers [base, base+seqWindowSize)
	seen    *bitset.BitSet
	lost    uint64
}

func newSeqTracker() *seqTracker {
	return &seqTracker{seen: bitset.New(seqWindowSize)}
}

// observe records that seq arrived. Sliding the window forward
// finalizes any number that leaves it unseen.
func (t *seqTracker) observe(seq int32) {
	if !t.started {
		t.started = true
		t.base = seq
		t.seen.Set(0)
		return
	}
	if seq < t.base {
		return
	}
	for seq-t.base >= seqWindowSize {
		if !t.seen.Test(0) {
			t.lost++
		}
		t.seen.DeleteAt(0)
		t.base++
	}
	t.seen.Set(uint(seq - t.base))
}

// Stats is a snapshot of a client's traffic counters.
type Stats struct {
	// PacketsSent counts every datagram written to the server,
	// including both copies of a double-sent code record.
	PacketsSent uint64

	// PacketsReceived counts every datagram read from the server,
	// including acknowledgements.
	PacketsReceived uint64

	// InvalidPackets counts datagrams with an unrecognized length
	// or an unparseable record.
	InvalidPackets uint64

	// SequenceBreaks counts accepted code records whose sequence
	// number did not directly follow the previous one. Each break
	// surfaced a gap marker in the delivered code.
	SequenceBreaks uint64

	// DuplicatesDropped counts code records discarded because their
	// sequence number repeated the previous record's. These are the
	// expected second copies of double-sent records.
	DuplicatesDropped uint64

	// RecordsLost counts sequence numbers that were never seen
	// before scrolling out of the recent-traffic window.
	RecordsLost uint64
}
