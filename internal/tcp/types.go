// Package tcp implements esix's TCP state machine, retransmit queue, and
// accept queue (spec.md §4.6). It is grounded on the teacher's
// internal/dhcpsvc lease-table lineage for the bounded-table shape, and on
// internal/dhcpsvc/lease.go's clock-driven expiry fields for the
// retransmit timer.
package tcp

import (
	"net/netip"
	"time"
)

// State is a TCP connection state (spec.md §4.6).
type State int

// State values, in the order spec.md §4.6 lists them.
const (
	StateClosed State = iota
	StateReserved
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateClosing
	StateCloseWait
	StateLastAck
	StateTimeWait
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateReserved:
		return "reserved"
	case StateListen:
		return "listen"
	case StateSynSent:
		return "syn_sent"
	case StateSynReceived:
		return "syn_received"
	case StateEstablished:
		return "established"
	case StateFinWait1:
		return "fin_wait_1"
	case StateFinWait2:
		return "fin_wait_2"
	case StateClosing:
		return "closing"
	case StateCloseWait:
		return "close_wait"
	case StateLastAck:
		return "last_ack"
	case StateTimeWait:
		return "time_wait"
	default:
		return "unknown"
	}
}

// AdvertisedWindow is esix's fixed receive window (spec.md §4.6 "the
// advertised window is a fixed constant (~1400 bytes). There is no
// congestion window").
const AdvertisedWindow = 1400

// InitialRTO is the retransmit timeout armed after every send (spec.md
// §4.6 "now + initial RTO (2 units)").
const InitialRTO = 2 * time.Second

// MaxRetransmitTime is the outstanding duration after which a sent
// segment's connection is aborted with RST (spec.md §4.6 "if a sent-packet
// queue-entry has been outstanding longer than MAX_RETX_TIME, abort with
// RST").
const MaxRetransmitTime = 30 * time.Second

// MaxReceiveQueue bounds a socket's received-data queue-entry list (spec.md
// §4.7 "per-socket queue depth is bounded"). MaxAcceptQueue is not
// consulted: a listener's accept queue is bounded by its Listen backlog.
const (
	MaxAcceptQueue  = 8
	MaxReceiveQueue = 32
)

// sentSegment is a "sent-packet" queue-entry: an unacknowledged outgoing
// segment kept for retransmission (spec.md §3 "Socket" queue-entry kinds).
type sentSegment struct {
	seq     uint32
	data    []byte
	sentAt  time.Time
	retryAt time.Time
}

// receivedSegment is a "received-packet" queue-entry holding data delivered
// to the application but not yet read.
type receivedSegment struct {
	data []byte
}

// Socket is one TCP connection's state (spec.md §3 "Socket", §4.6).
//
// Socket is not safe for concurrent use; see internal/iface.Tables for the
// single-worker-goroutine rationale this package shares.
type Socket struct {
	Local  netip.AddrPort
	Remote netip.AddrPort // zero AddrPort on a listening socket.
	State  State

	iss    uint32 // initial send sequence.
	sndNxt uint32 // next sequence number esix will send.
	rcvNxt uint32 // next sequence number esix expects from the peer.

	sent     []sentSegment
	received []receivedSegment
	accept   []*Socket // child sockets for a listening socket's accept queue.

	// backlog is the configured accept-queue capacity for a listening
	// socket; zero means the socket is not listening.
	backlog int
}

// newSocket returns a Socket in [StateClosed] bound to local.
func newSocket(local netip.AddrPort) (s *Socket) {
	return &Socket{Local: local, State: StateClosed}
}

// Readable reports whether s has data queued for [Table]'s Recv path.
func (s *Socket) Readable() bool {
	return len(s.received) > 0
}

// Acceptable reports whether s has a completed child connection queued.
func (s *Socket) Acceptable() bool {
	return len(s.accept) > 0
}
