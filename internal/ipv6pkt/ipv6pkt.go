// Package ipv6pkt implements esix's IPv6 receive and transmit pipeline:
// header validation, next-header dispatch, route lookup, and neighbor
// resolution (spec.md §4.4). It is grounded on the teacher's
// internal/dhcpsvc handler dispatch lineage, generalized from a
// gopacket-layer switch to esix's own wire.IPv6Header and the upper-layer
// seams this package defines.
package ipv6pkt

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/ethernet"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/errors"
)

// UpperHandler receives a validated IPv6 datagram's header and payload
// (spec.md §4.4 "dispatch by next-header"). Implemented by the icmpv6, udp,
// and tcp packages.
type UpperHandler interface {
	HandleIPv6(ctx context.Context, hdr wire.IPv6Header, payload *bufpool.Buffer, srcEther wire.EtherAddr)
}

// NeighborResolver resolves an on-link next hop to its Ethernet address, or
// triggers Neighbor Discovery if the neighbor cache has no usable entry
// (spec.md §4.4 step 4, §4.3 "NS on cache miss"). It is implemented by the
// icmpv6 package and injected here, mirroring the iface.DADProber seam: the
// alternative, icmpv6 importing ipv6pkt directly, would cycle back through
// icmpv6's own use of this package to send its messages.
type NeighborResolver interface {
	// Resolve returns the Ethernet address to send to for addr, and whether
	// the neighbor is in a usable state (reachable or stale). If ok is
	// false, Resolve has queued a neighbor solicitation as a side effect.
	Resolve(ctx context.Context, addr netip.Addr) (ether wire.EtherAddr, ok bool)
}

// ICMPErrorSender builds and sends the ICMPv6 error messages the IPv6 layer
// itself must emit (spec.md §4.4 "hop-limit > 0 else send TTL-expired").
type ICMPErrorSender interface {
	SendTimeExceeded(ctx context.Context, hdr wire.IPv6Header, original []byte, dstEther wire.EtherAddr)
}

// Pipeline is esix's IPv6 receive/transmit layer for a single interface
// (spec.md §4.4).
//
// Pipeline is not safe for concurrent use; see internal/iface.Tables for the
// single-worker-goroutine rationale this package shares.
type Pipeline struct {
	logger *slog.Logger
	tables *iface.Tables
	link   *ethernet.Layer

	neighbors NeighborResolver
	icmpErr   ICMPErrorSender

	icmpv6 UpperHandler
	udp    UpperHandler
	tcp    UpperHandler
}

// New returns a Pipeline. All arguments must be non-nil; icmpv6, udp, and
// tcp are looked up by next-header value (58, 17, 6 respectively) and may be
// installed after construction via the Set* setters, to break the
// construction-order cycle between a Pipeline and the upper layers that
// depend on it.
func New(logger *slog.Logger, tables *iface.Tables, link *ethernet.Layer) (p *Pipeline) {
	return &Pipeline{
		logger: logger,
		tables: tables,
		link:   link,
	}
}

// SetNeighborResolver installs the neighbor resolver used by transmit.
func (p *Pipeline) SetNeighborResolver(r NeighborResolver) { p.neighbors = r }

// SetICMPErrorSender installs the sender used to emit ICMPv6 errors.
func (p *Pipeline) SetICMPErrorSender(s ICMPErrorSender) { p.icmpErr = s }

// SetICMPv6Handler installs the next-header-58 dispatch target.
func (p *Pipeline) SetICMPv6Handler(h UpperHandler) { p.icmpv6 = h }

// SetUDPHandler installs the next-header-17 dispatch target.
func (p *Pipeline) SetUDPHandler(h UpperHandler) { p.udp = h }

// SetTCPHandler installs the next-header-6 dispatch target.
func (p *Pipeline) SetTCPHandler(h UpperHandler) { p.tcp = h }

// HandleIPv6 implements [ethernet.IPv6Handler]: it validates, then dispatches
// a received datagram by next-header (spec.md §4.4 "Receive validation
// order"). payload is released in every code path.
func (p *Pipeline) HandleIPv6(ctx context.Context, payload *bufpool.Buffer, srcEther wire.EtherAddr) {
	data := payload.Bytes()

	if len(data) < wire.IPv6HeaderLen {
		p.logger.DebugContext(ctx, "dropping short datagram", slog.Int("len", len(data)))
		payload.Release()

		return
	}

	if wire.Version(data) != 6 {
		p.logger.DebugContext(ctx, "dropping non-ipv6 datagram")
		payload.Release()

		return
	}

	var hdr wire.IPv6Header
	if err := hdr.UnmarshalBinary(data); err != nil {
		p.logger.DebugContext(ctx, "dropping unparseable datagram", slog.Any("err", err))
		payload.Release()

		return
	}

	if int(hdr.PayloadLen)+wire.IPv6HeaderLen > len(data) {
		p.logger.DebugContext(ctx, "dropping truncated datagram")
		payload.Release()

		return
	}

	if hdr.HopLimit == 0 {
		if p.icmpErr != nil {
			p.icmpErr.SendTimeExceeded(ctx, hdr, data, srcEther)
		}
		payload.Release()

		return
	}

	if _, ok := p.tables.GetAddr(hdr.Dst, iface.AddrAny, -1); !ok && !hdr.Dst.IsMulticast() {
		p.logger.DebugContext(ctx, "dropping datagram not addressed to us", slog.Any("dst", hdr.Dst))
		payload.Release()

		return
	}

	body := bufpool.Wrap(data[wire.IPv6HeaderLen : wire.IPv6HeaderLen+int(hdr.PayloadLen)])

	switch hdr.NextHeader {
	case wire.NextHeaderICMPv6:
		p.dispatch(ctx, p.icmpv6, hdr, body, srcEther)
	case wire.NextHeaderUDP:
		p.dispatch(ctx, p.udp, hdr, body, srcEther)
	case wire.NextHeaderTCP:
		p.dispatch(ctx, p.tcp, hdr, body, srcEther)
	default:
		p.logger.DebugContext(ctx, "dropping datagram with unknown next header", slog.Int("next_header", int(hdr.NextHeader)))
		body.Release()
	}
}

func (p *Pipeline) dispatch(ctx context.Context, h UpperHandler, hdr wire.IPv6Header, body *bufpool.Buffer, srcEther wire.EtherAddr) {
	if h == nil {
		body.Release()

		return
	}
	h.HandleIPv6(ctx, hdr, body, srcEther)
}

// Send builds an IPv6 datagram around payload and transmits it per spec.md
// §4.4's transmit steps: route lookup, on-link/off-link next-hop selection,
// and neighbor resolution. Send always consumes payload.
func (p *Pipeline) Send(ctx context.Context, hdr wire.IPv6Header, payload []byte) (err error) {
	defer func() { err = errors.Annotate(err, "ipv6: sending: %w") }()

	hdr.PayloadLen = uint16(len(payload))

	datagram, err := hdr.MarshalBinary()
	if err != nil {
		return err
	}
	datagram = append(datagram, payload...)

	dstEther, ok := p.resolveNextHop(ctx, hdr.Dst)
	if !ok {
		p.logger.DebugContext(ctx, "dropping datagram pending neighbor resolution", slog.Any("dst", hdr.Dst))

		return nil
	}

	return p.link.Send(ctx, dstEther, datagram)
}

// resolveNextHop implements spec.md §4.4 steps 1-4.
func (p *Pipeline) resolveNextHop(ctx context.Context, dst netip.Addr) (ether wire.EtherAddr, ok bool) {
	if dst.IsMulticast() {
		return iface.EtherMulticastFor(dst), true
	}

	next := dst
	if route, found := p.tables.GetRouteForAddr(dst); found && !route.OnLink() {
		next = route.NextHop
	}

	if p.neighbors == nil {
		return ether, false
	}

	return p.neighbors.Resolve(ctx, next)
}
