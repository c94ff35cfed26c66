// Package wiretest provides an in-process KOB server
// for exercising wire clients in tests.
package wiretest

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telegraph-engine/kobwire/wire"
)

// Server is a loopback KOB server. It registers stations by source
// address on connect, drops them on disconnect, and forwards every
// data record to the other stations on the same wire. Each inbound
// packet is acknowledged the way the public server does.
//
// The server stops when the test finishes.
type Server struct {
	t    testing.TB
	conn *net.UDPConn

	mu       sync.Mutex
	stations map[string]*station
	dropNext int

	done chan struct{}
}

type station struct {
	addr   *net.UDPAddr
	wireNo int16
}

// NewServer starts a server on a loopback port.
func NewServer(t testing.TB) *Server {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	s := &Server{
		t:        t,
		conn:     conn,
		stations: make(map[string]*station),
		done:     make(chan struct{}),
	}
	go s.serve()
	t.Cleanup(func() {
		_ = conn.Close()
		<-s.done
	})
	return s
}

// Addr returns the server's host:port for client configuration.
func (s *Server) Addr() string {
	return s.conn.LocalAddr().String()
}

// StationCount reports how many stations are connected to wireNo.
func (s *Server) StationCount(wireNo int16) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, st := range s.stations {
		if st.wireNo == wireNo {
			n++
		}
	}
	return n
}

// DropNext makes the server silently discard the next n data records
// instead of forwarding them, to simulate datagram loss.
func (s *Server) DropNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext += n
}

func (s *Server) serve() {
	defer close(s.done)

	buf := make([]byte, 2*wire.RecordLen)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		switch n {
		case wire.ShortLen:
			cmd := int16(binary.LittleEndian.Uint16(buf))
			wireNo := int16(binary.LittleEndian.Uint16(buf[2:]))
			s.handleShort(cmd, wireNo, addr)
			s.ack(addr)

		case wire.RecordLen:
			s.forward(buf[:n], addr)
			s.ack(addr)
		}
	}
}

func (s *Server) handleShort(cmd, wireNo int16, addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case wire.CmdConnect:
		s.stations[addr.String()] = &station{addr: addr, wireNo: wireNo}
	case wire.CmdDisconnect:
		delete(s.stations, addr.String())
	}
}

// forward sends one data record to every other station on the
// sender's wire. An unregistered sender's records go nowhere,
// matching the public server.
func (s *Server) forward(rec []byte, from *net.UDPAddr) {
	s.mu.Lock()
	sender, ok := s.stations[from.String()]
	if !ok {
		s.mu.Unlock()
		return
	}
	if s.dropNext > 0 {
		s.dropNext--
		s.mu.Unlock()
		return
	}
	var dests []*net.UDPAddr
	for key, st := range s.stations {
		if key == from.String() || st.wireNo != sender.wireNo {
			continue
		}
		dests = append(dests, st.addr)
	}
	s.mu.Unlock()

	for _, d := range dests {
		if _, err := s.conn.WriteToUDP(rec, d); err != nil {
			return
		}
	}
}

func (s *Server) ack(addr *net.UDPAddr) {
	pkt := make([]byte, wire.AckLen)
	binary.LittleEndian.PutUint16(pkt, uint16(wire.CmdAck))
	_, _ = s.conn.WriteToUDP(pkt, addr)
}
