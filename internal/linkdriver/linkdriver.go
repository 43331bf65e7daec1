// Package linkdriver implements esix's external link-driver collaborator
// (spec.md §2 "Out of scope and treated only as external collaborators: the
// link driver") as a concrete AF_PACKET-backed net.PacketConn, for the
// user-space test harness in cmd/esixd. It is grounded on the teacher's
// internal/dhcpd/conn_linux.go (mdlayher/packet raw connection) and
// internal/dhcpd/nclient4/conn_unix.go (mdlayher/raw BSD fallback), trimmed
// from DHCP's UDP-over-Ethernet wrapping down to plain Ethernet frame I/O.
package linkdriver

import (
	"context"
	"fmt"
	"net"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/mdlayher/ethernet"
)

// etherType is the only frame type the link ever sends or reads: esix is an
// IPv6-only engine (spec.md §2 "Non-goals: ... dual-stack IPv4").
const etherType = ethernet.EtherTypeIPv6

// etherHeaderLen is the fixed 14-byte Ethernet II header (dst+src MAC,
// EtherType), used only to size ReadLoop's scratch buffer.
const etherHeaderLen = 14

// Link is a raw-socket Ethernet transport satisfying esix's Link collaborator
// interface (see the root esix package's Link).
type Link struct {
	conn  net.PacketConn
	bcast net.HardwareAddr
	mtu   int
}

// newLink wraps a platform-specific raw net.PacketConn, built by newConn
// (link_linux.go or link_other.go).
func newLink(conn net.PacketConn, mtu int) *Link {
	return &Link{
		conn:  conn,
		bcast: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		mtu:   mtu,
	}
}

// New opens a raw AF_PACKET (or platform raw-socket equivalent) link on the
// named interface, bound to esix's IPv6 EtherType.
func New(ifaceName string) (l *Link, err error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("linkdriver: looking up interface %q: %w", ifaceName, err)
	}

	conn, err := newConn(iface, uint16(etherType))
	if err != nil {
		return nil, fmt.Errorf("linkdriver: opening %q: %w", ifaceName, err)
	}

	return newLink(conn, iface.MTU), nil
}

// Send implements esix's Link interface: it writes frame as-is to the wire,
// broadcast — esix itself has already placed the correct destination MAC in
// the frame's Ethernet header (spec.md §4.1).
func (l *Link) Send(_ context.Context, frame []byte) (err error) {
	_, err = l.conn.WriteTo(frame, newAddr(l.bcast))

	return errors.Annotate(err, "linkdriver: sending frame: %w")
}

// ReadLoop blocks reading frames off the link and calling enqueue for each,
// until ctx is canceled or the link is closed. It is meant to run in its own
// goroutine, feeding esix's Enqueue.
func (l *Link) ReadLoop(ctx context.Context, enqueue func(frame []byte)) (err error) {
	buf := make([]byte, l.mtu+etherHeaderLen)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, _, rerr := l.conn.ReadFrom(buf)
		if rerr != nil {
			return errors.Annotate(rerr, "linkdriver: reading frame: %w")
		}

		enqueue(buf[:n])
	}
}

// Close closes the underlying raw socket.
func (l *Link) Close() (err error) {
	return errors.Annotate(l.conn.Close(), "linkdriver: closing: %w")
}
