// Package socket implements esix's BSD-style socket layer (spec.md §4.7): it
// unifies the UDP and TCP paths behind socket/bind/listen/connect/accept/
// send/recv/close, each operating on a small integer handle the way a libc
// file descriptor would. It is grounded on the teacher's internal/dhcpsvc
// lease-table lineage for the bounded, slot-indexed table shape, reused
// here for a table of socket descriptors instead of leases.
package socket

import (
	"net/netip"

	"github.com/esix-project/esix/internal/tcp"
)

// Family and Type mirror the BSD constants spec.md §6 names explicitly.
const (
	FamilyInet6 = 10

	TypeStream = 1 // SOCK_STREAM
	TypeDgram  = 2 // SOCK_DGRAM
)

// Flags for recv/recvfrom (spec.md §6).
const (
	FlagPeek     = 1 // MSG_PEEK
	FlagDontWait = 2 // MSG_DONTWAIT
)

// EphemeralLo and EphemeralHi bound the port range bind picks from when
// asked for port 0; socket() itself assigns no port (spec.md §4.7 "pick the next available ephemeral port, starting at a
// named floor, wrapping below a named ceiling").
const (
	EphemeralLo = 49152
	EphemeralHi = 65535
)

// DefaultQueueDepth is the per-socket receive-queue bound (spec.md §4.7
// "per-socket queue depth is bounded (default 5)").
const DefaultQueueDepth = 5

// Handle is an opaque socket descriptor, analogous to a BSD fd.
type Handle int

// udpState is the state of a UDP socket. UDP has no three-way handshake, so
// it only ever occupies a subset of the full [tcp.State] space, but esix
// reuses that enum rather than declaring a parallel one, since the only
// states that apply — reserved, established, closed — already exist there.
type udpState = tcp.State

// datagram is one queued, not-yet-read UDP receive (spec.md §3 socket
// "received-packet" queue-entry, specialized with the sender tuple
// recvfrom needs).
type datagram struct {
	from netip.AddrPort
	data []byte
}

// entry is one socket-table slot. proto selects which field group is in
// use: the UDP-only queue fields or the TCP-only tcpSocket.
type entry struct {
	proto  int // TypeStream or TypeDgram.
	state  udpState
	local  netip.AddrPort
	remote netip.AddrPort // zero AddrPort until connect().

	// UDP-only fields.
	queue []datagram
	depth int

	// TCP-only field: the underlying connection, owned by *tcp.Table.
	tcpSocket *tcp.Socket
}
