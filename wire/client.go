package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telegraph-engine/kobwire/morse"
)

// DefaultServerAddr is the public KOB server.
const DefaultServerAddr = "mtc-kob.dyndns.org:7890"

// defaultVersion is announced in ID records
// when the configuration does not override it.
const defaultVersion = "kobwire 1.2"

const (
	// keepAliveInterval is how often a connected client re-announces
	// itself so the server keeps it on the wire's roster.
	keepAliveInterval = 10 * time.Second

	// readPollInterval bounds each blocking socket read so the
	// inbound task notices shutdown promptly.
	readPollInterval = 50 * time.Millisecond
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client closed")

// ClientConfig is the configuration for a [Client].
//
// All callbacks are invoked synchronously, from the goroutine calling
// a client method or from the client's inbound task. They must not
// call back into the client.
type ClientConfig struct {
	// ServerAddr is the host:port of the KOB server.
	// Defaults to [DefaultServerAddr].
	ServerAddr string

	// StationID is the office identifier announced on the wire.
	StationID string

	// Version is the software version string carried in ID records.
	// Leave empty for the default.
	Version string

	// OnCode receives each accepted inbound code sequence.
	OnCode func(morse.CodeSequence)

	// OnRecord receives every code sequence crossing the wire in
	// either direction, for recording.
	OnRecord func(morse.CodeSequence)

	// OnStationID receives the station ID of every ID record,
	// including this client's own announcements.
	OnStationID func(stationID string)

	// OnSenderChanged fires when code arrives from a different
	// station than the previous code, and again after an idle
	// period even for the same station.
	OnSenderChanged func(stationID string)

	// OnPacket receives a short description of every inbound
	// datagram, for diagnostics.
	OnPacket func(description string)

	// OnError receives errors from the background tasks, which keep
	// running regardless. Nil means a warning log.
	OnError func(error)
}

func (c ClientConfig) validate() {
	var panicErrs error

	if len(c.StationID) > stationIDLen {
		panicErrs = errors.Join(panicErrs, fmt.Errorf("ClientConfig.StationID must be at most %d bytes", stationIDLen))
	}
	if len(c.Version) > textLen {
		panicErrs = errors.Join(panicErrs, fmt.Errorf("ClientConfig.Version must be at most %d bytes", textLen))
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// Client speaks the KOB wire protocol over UDP.
//
// A client owns one socket for its lifetime. Connect and Disconnect
// move it between wires; Close releases the socket. The inbound and
// keep-alive tasks stop when ctx is cancelled or the client is
// closed; use [(*Client).Wait] to block until they have finished.
type Client struct {
	log *slog.Logger

	serverAddr string
	stationID  string
	version    string

	onCode          func(morse.CodeSequence)
	onRecord        func(morse.CodeSequence)
	onStationID     func(string)
	onSenderChanged func(string)
	onPacket        func(string)
	onError         func(error)

	conn *net.UDPConn

	// Refreshed by each keep-alive so a server address change is
	// picked up without reconnecting.
	addr atomic.Pointer[net.UDPAddr]

	connected atomic.Bool
	closed    atomic.Bool

	// Closed by Close so the background tasks stop promptly even
	// when ctx outlives the client.
	done chan struct{}

	// readMu guards socket reads, writeMu guards sends and the
	// send-side sequence state. Teardown takes read then write;
	// nothing else ever holds both.
	readMu  sync.Mutex
	writeMu sync.Mutex
	wireNo  int16
	sentSeq int32

	// Touched only by the inbound task.
	rcvdSeq int32

	// senderMu guards the current-sender name, shared between the
	// inbound task (updates) and the keep-alive task (idle reset).
	senderMu      sync.Mutex
	currentSender string

	// trackMu guards the loss tracker, shared between the inbound
	// task and Stats.
	trackMu sync.Mutex
	tracker *seqTracker

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	invalidPackets  atomic.Uint64
	seqBreaks       atomic.Uint64
	duplicates      atomic.Uint64

	wg sync.WaitGroup
}

// NewClient opens a UDP socket, resolves the server address, and
// starts the client's background tasks. The new client is not yet on
// any wire; use [(*Client).Connect]. Configuration errors cause a
// panic; socket and resolution errors are returned.
func NewClient(ctx context.Context, log *slog.Logger, cfg ClientConfig) (*Client, error) {
	cfg.validate()

	serverAddr := cfg.ServerAddr
	if serverAddr == "" {
		serverAddr = DefaultServerAddr
	}
	version := cfg.Version
	if version == "" {
		version = defaultVersion
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket: %w", err)
	}

	c := &Client{
		log: log,

		serverAddr: serverAddr,
		stationID:  cfg.StationID,
		version:    version,

		onCode:          cfg.OnCode,
		onRecord:        cfg.OnRecord,
		onStationID:     cfg.OnStationID,
		onSenderChanged: cfg.OnSenderChanged,
		onPacket:        cfg.OnPacket,
		onError:         cfg.OnError,

		conn: conn,

		done: make(chan struct{}),

		rcvdSeq: -1,

		tracker: newSeqTracker(),
	}

	if err := c.resolveAddr(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	// A disconnect for wire zero opens the UDP exchange with the
	// server without joining any wire.
	if err := c.send(encodeShort(CmdDisconnect, 0)); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.wg.Add(2)
	go c.runInbound(ctx)
	go c.runKeepAlive(ctx)

	return c, nil
}

// Wait blocks until the inbound and keep-alive tasks have stopped.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close disconnects from the server and releases the socket.
// It is safe to call more than once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	_ = c.Disconnect()

	// Read guard before write guard, the one place both are held.
	c.readMu.Lock()
	c.writeMu.Lock()
	cerr := c.conn.Close()
	c.writeMu.Unlock()
	c.readMu.Unlock()

	if cerr != nil {
		return fmt.Errorf("failed to close socket: %w", cerr)
	}
	return nil
}

// Connected reports whether the client is joined to a wire.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Connect joins the given wire and announces this station on it.
func (c *Client) Connect(wireNo int16) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if wireNo <= 0 {
		return fmt.Errorf("wire number must be positive, got %d", wireNo)
	}

	c.writeMu.Lock()
	c.wireNo = wireNo
	c.writeMu.Unlock()
	c.connected.Store(true)

	return c.sendID()
}

// Disconnect leaves the current wire. The socket and background
// tasks remain; a later Connect rejoins. The disconnect datagram is
// best effort: a send failure goes to the error handler, not the
// caller.
func (c *Client) Disconnect() error {
	c.connected.Store(false)

	c.writeMu.Lock()
	c.wireNo = 0
	err := c.send(encodeShort(CmdDisconnect, 0))
	c.writeMu.Unlock()

	if err != nil {
		c.reportError(fmt.Errorf("failed to send disconnect: %w", err))
	}
	return nil
}

// Write sends one code sequence to the wire.
//
// The record goes out twice; receivers drop the second copy by its
// repeated sequence number, which rides out single-datagram loss.
// An empty sequence is a no-op, as is a write while not joined to a
// wire. A sequence longer than [MaxCodeLen] is rejected without
// consuming a sequence number.
func (c *Client) Write(code morse.CodeSequence, text string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(code) == 0 {
		return nil
	}
	if len(code) > MaxCodeLen {
		return fmt.Errorf("code sequence too long: %d elements, max %d", len(code), MaxCodeLen)
	}
	if !c.connected.Load() {
		return nil
	}

	c.writeMu.Lock()
	c.sentSeq++
	pkt := encodeCodeRecord(c.stationID, c.sentSeq, code, text)
	var err error
	for i := 0; i < 2; i++ {
		if e := c.send(pkt); e != nil {
			err = e
		}
	}
	c.writeMu.Unlock()

	if err != nil {
		return err
	}
	if c.onRecord != nil {
		c.onRecord(code)
	}
	return nil
}

// Stats returns a snapshot of the client's traffic counters.
func (c *Client) Stats() Stats {
	c.trackMu.Lock()
	lost := c.tracker.lost
	c.trackMu.Unlock()

	return Stats{
		PacketsSent:       c.packetsSent.Load(),
		PacketsReceived:   c.packetsReceived.Load(),
		InvalidPackets:    c.invalidPackets.Load(),
		SequenceBreaks:    c.seqBreaks.Load(),
		DuplicatesDropped: c.duplicates.Load(),
		RecordsLost:       lost,
	}
}

// sendID re-resolves the server address, then re-announces this
// station if it is on a wire: a connect packet followed by an ID
// record. The pair consumes two sequence numbers even though only
// the record carries one, which is why receivers accept an ID record
// two numbers ahead.
func (c *Client) sendID() error {
	if err := c.resolveAddr(); err != nil {
		// Keep using the last good address through DNS outages.
		c.log.Info("Ignoring server address lookup error", "err", err)
	}

	c.writeMu.Lock()
	if c.wireNo == 0 {
		c.writeMu.Unlock()
		return nil
	}
	err := c.send(encodeShort(CmdConnect, c.wireNo))
	if err == nil {
		c.sentSeq += 2
		err = c.send(encodeIDRecord(c.stationID, c.sentSeq, c.version))
	}
	c.writeMu.Unlock()

	if err != nil {
		return err
	}
	if c.onStationID != nil {
		c.onStationID(c.stationID)
	}
	return nil
}

func (c *Client) resolveAddr() error {
	addr, err := net.ResolveUDPAddr("udp4", c.serverAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve server address %q: %w", c.serverAddr, err)
	}
	c.addr.Store(addr)
	return nil
}

// reportError routes a background task error to the configured
// handler, or a warning log without one. The tasks keep running
// either way.
func (c *Client) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
		return
	}
	c.log.Warn("Wire error", "err", err)
}

func (c *Client) send(pkt []byte) error {
	addr := c.addr.Load()
	if _, err := c.conn.WriteToUDP(pkt, addr); err != nil {
		return fmt.Errorf("failed to send packet: %w", err)
	}
	c.packetsSent.Add(1)
	return nil
}

// runInbound reads datagrams until shutdown. Reads are bounded by a
// short deadline so cancellation is noticed between packets.
func (c *Client) runInbound(ctx context.Context) {
	defer c.wg.Done()

	buf := make([]byte, 2*RecordLen)
	for {
		if ctx.Err() != nil || c.closed.Load() {
			return
		}

		n, err := c.readOnce(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if c.closed.Load() || ctx.Err() != nil {
				return
			}
			c.reportError(fmt.Errorf("failed to read packet: %w", err))
			time.Sleep(readPollInterval)
			continue
		}

		c.packetsReceived.Add(1)

		switch n {
		case AckLen:
			c.describePacket("ack")
		case RecordLen:
			rec, err := parseRecord(buf[:n])
			if err != nil {
				c.invalidPackets.Add(1)
				c.reportError(fmt.Errorf("failed to parse record: %w", err))
				continue
			}
			c.describePacket(fmt.Sprintf("record from %q seq %d n %d", rec.StationID, rec.Seq, rec.CodeCount))
			c.handleRecord(rec)
		default:
			c.invalidPackets.Add(1)
			c.describePacket(fmt.Sprintf("invalid length %d", n))
			c.reportError(fmt.Errorf("received invalid record length %d", n))
		}
	}
}

func (c *Client) readOnce(buf []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
		return 0, fmt.Errorf("failed to set read deadline: %w", err)
	}
	n, _, err := c.conn.ReadFromUDP(buf)
	return n, err
}

func (c *Client) describePacket(desc string) {
	if c.onPacket != nil {
		c.onPacket(desc)
	}
}

// handleRecord dispatches one parsed data record.
// Only the inbound task calls this, so the receive-side sequence
// state needs no lock.
func (c *Client) handleRecord(rec record) {
	n := int(rec.CodeCount)
	switch {
	case n == 0:
		// Station ID record.
		if c.onStationID != nil {
			c.onStationID(rec.StationID)
		}
		// The sender consumed two numbers for the connect/ID pair;
		// account for the connect packet's number too.
		c.trackSeq(rec.Seq - 1)
		c.trackSeq(rec.Seq)
		if rec.Seq == c.rcvdSeq+2 {
			c.rcvdSeq = rec.Seq
		}

	case n < 0 || n > MaxCodeLen:
		c.invalidPackets.Add(1)
		c.reportError(fmt.Errorf("received record with invalid code count %d from %q", n, rec.StationID))

	default:
		c.trackSeq(rec.Seq)
		if rec.Seq == c.rcvdSeq {
			// Second copy of a double-sent record.
			c.duplicates.Add(1)
			return
		}

		c.updateSender(rec.StationID)

		code := make(morse.CodeSequence, n)
		for i := range code {
			code[i] = morse.CodeElement(rec.Code[i])
		}
		if rec.Seq != c.rcvdSeq+1 {
			// One or more records never arrived; surface the gap
			// so decoders reset their spacing instead of fusing
			// unrelated characters.
			c.seqBreaks.Add(1)
			code[0] = morse.GapSentinel
		}
		c.rcvdSeq = rec.Seq

		if c.onCode != nil {
			c.onCode(code)
		}
		if c.onRecord != nil {
			c.onRecord(code)
		}
	}
}

func (c *Client) trackSeq(seq int32) {
	c.trackMu.Lock()
	c.tracker.observe(seq)
	c.trackMu.Unlock()
}

func (c *Client) updateSender(stationID string) {
	c.senderMu.Lock()
	changed := stationID != c.currentSender
	c.currentSender = stationID
	c.senderMu.Unlock()

	if changed && c.onSenderChanged != nil {
		c.onSenderChanged(stationID)
	}
}

// runKeepAlive re-announces the station every interval and resets the
// current-sender name, so a station resuming after a quiet period is
// reported as the sender again.
func (c *Client) runKeepAlive(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.done:
			return

		case <-ticker.C:
			if err := c.sendID(); err != nil {
				c.reportError(fmt.Errorf("failed to send keepalive: %w", err))
			}

			c.senderMu.Lock()
			c.currentSender = ""
			c.senderMu.Unlock()
		}
	}
}
