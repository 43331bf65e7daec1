// Package udp implements esix's UDP datagram path: receive validation and
// socket demultiplexing, and send with pseudo-header checksum fill-in
// (spec.md §4.5). It is grounded on the teacher's internal/dhcpsvc
// handler dispatch lineage, generalized to esix's own wire.UDPHeader and
// socket demux seam.
package udp

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/errors"
)

// Demux looks up the socket a received datagram belongs to and delivers it.
// It is implemented by internal/socket.Table and injected here to avoid a
// cycle: socket.Table's Send methods call back into this package's Send.
type Demux interface {
	// DeliverUDP hands payload to the socket bound to (local, remote), or
	// reports false if no such socket exists (spec.md §4.5 "look up the
	// socket by (protocol, local port, local addr or wildcard, remote
	// addr/port or unconnected)").
	DeliverUDP(ctx context.Context, local, remote netip.AddrPort, payload *bufpool.Buffer) (ok bool)
}

// ErrorSender sends the ICMPv6 Destination Unreachable reply for an
// undeliverable datagram.
type ErrorSender interface {
	SendDestUnreachable(ctx context.Context, code uint8, originatorHdr wire.IPv6Header, original []byte)
}

// IPv6Sender is the subset of [ipv6pkt.Pipeline] Send needs.
type IPv6Sender interface {
	Send(ctx context.Context, hdr wire.IPv6Header, payload []byte) error
}

// Layer is esix's UDP datagram path for a single interface (spec.md §4.5).
//
// Layer is not safe for concurrent use; see internal/iface.Tables for the
// single-worker-goroutine rationale this package shares.
type Layer struct {
	logger *slog.Logger
	demux  Demux
	errs   ErrorSender
	ipv6   IPv6Sender
}

// New returns a Layer. logger, errs, and ipv6 must be non-nil; demux may be
// nil at construction time and installed later via [Layer.SetDemux] — esix's
// socket table itself depends on this Layer to send, so the two must be
// constructed in two steps.
func New(logger *slog.Logger, demux Demux, errs ErrorSender, ipv6 IPv6Sender) (l *Layer) {
	return &Layer{logger: logger, demux: demux, errs: errs, ipv6: ipv6}
}

// SetDemux installs the socket demultiplexer used by subsequent receives.
func (l *Layer) SetDemux(d Demux) { l.demux = d }

// HandleIPv6 implements [ipv6pkt.UpperHandler]. payload is released in
// every path.
func (l *Layer) HandleIPv6(ctx context.Context, ipHdr wire.IPv6Header, payload *bufpool.Buffer, _ wire.EtherAddr) {
	data := payload.Bytes()

	if len(data) < wire.UDPHeaderLen {
		l.logger.DebugContext(ctx, "dropping short udp datagram")
		payload.Release()

		return
	}

	if wire.UpperLayerChecksum(ipHdr.Src, ipHdr.Dst, wire.NextHeaderUDP, data) != 0 {
		l.logger.DebugContext(ctx, "dropping udp datagram with bad checksum")
		payload.Release()

		return
	}

	var hdr wire.UDPHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		payload.Release()

		return
	}

	local := netip.AddrPortFrom(ipHdr.Dst, hdr.DstPort)
	remote := netip.AddrPortFrom(ipHdr.Src, hdr.SrcPort)
	body := bufpool.Wrap(data[wire.UDPHeaderLen:])

	if l.demux != nil && l.demux.DeliverUDP(ctx, local, remote, body) {
		return
	}

	body.Release()

	if !ipHdr.Dst.IsMulticast() && l.errs != nil {
		l.errs.SendDestUnreachable(ctx, wire.CodePortUnreachable, ipHdr, data)
	}
}

// Send builds a UDP datagram with src/dst ports, fills the checksum, and
// hands it to the IPv6 layer (spec.md §4.5 "Send"). Send always consumes
// payload.
func (l *Layer) Send(ctx context.Context, src, dst netip.AddrPort, payload []byte) (err error) {
	defer func() { err = errors.Annotate(err, "udp: sending: %w") }()

	hdr := wire.UDPHeader{
		SrcPort: src.Port(),
		DstPort: dst.Port(),
		Length:  uint16(wire.UDPHeaderLen + len(payload)),
	}
	data, err := hdr.MarshalBinary()
	if err != nil {
		return err
	}
	data = append(data, payload...)

	cs := wire.UpperLayerChecksum(src.Addr(), dst.Addr(), wire.NextHeaderUDP, data)
	data[6] = byte(cs >> 8)
	data[7] = byte(cs)

	ipHdr := wire.IPv6Header{
		NextHeader: wire.NextHeaderUDP,
		HopLimit:   wire.DefaultHopLimit,
		Src:        src.Addr(),
		Dst:        dst.Addr(),
	}

	return l.ipv6.Send(ctx, ipHdr, data)
}
