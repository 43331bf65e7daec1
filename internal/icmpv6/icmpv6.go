// Package icmpv6 implements esix's ICMPv6 and Neighbor Discovery state
// machine: router solicitation/advertisement, neighbor solicitation/
// advertisement, duplicate address detection, echo, ICMPv6 errors, and
// MLDv1 (spec.md §4.3). It is grounded on the teacher's internal/dhcpsvc
// handler6.go dispatch-by-type lineage and internal/dhcpsvc/addresschecker.go
// seam pattern, generalized to esix's own wire types.
package icmpv6

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/dhcp6hint"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
)

// DefaultDupAddrDetectTransmits is the number of Neighbor Solicitations sent
// during DAD, absent a configured override (spec.md §4.3
// "DUP_ADDR_DETECT_TRANSMITS (default 1)").
const DefaultDupAddrDetectTransmits = 1

// DefaultDADTimeout is the bounded interval esix waits for a conflicting
// Neighbor Advertisement before declaring a tentative address free (spec.md
// §4.3 "wait a bounded interval").
const DefaultDADTimeout = 1 * time.Second

// DefaultRetransTimer is the default neighbor-solicitation retransmit
// interval, mirrored from RFC 4861's suggested default. It also sets
// neighbor-cache lifetimes: a recorded entry expires twice this interval
// after it is written. No probe backoff is derived from it.
const DefaultRetransTimer = 1 * time.Second

// maxErrorPayload is the largest number of original-packet bytes esix copies
// into an ICMPv6 error message, so that the whole error datagram fits in
// 1280 bytes (spec.md §4.3 "capped at 1280 − headers bytes of original
// packet").
const maxErrorPayload = 1280 - wire.IPv6HeaderLen - wire.ICMPv6HeaderLen - 4

// errUnspecifiedSource is returned when an operation needing a link-local
// source address has none yet, e.g. Router Solicitation before DAD has
// completed for the link-local address.
const errUnspecifiedSource errors.Error = "icmpv6: no link-local source address assigned"

// Sender is the subset of [ipv6pkt.Pipeline] that Handler needs to transmit
// ICMPv6 messages. It is satisfied by *ipv6pkt.Pipeline.
type Sender interface {
	Send(ctx context.Context, hdr wire.IPv6Header, payload []byte) error
}

// Handler implements esix's ICMPv6/ND state machine for a single interface.
// It satisfies [ipv6pkt.UpperHandler] (receive dispatch),
// [ipv6pkt.NeighborResolver] and [ipv6pkt.ICMPErrorSender] (transmit
// collaborators), and [iface.DADProber] (duplicate address detection).
//
// Handler is not safe for concurrent use; see internal/iface.Tables for the
// single-worker-goroutine rationale this package shares.
type Handler struct {
	logger *slog.Logger
	clock  timeutil.Clock
	tables *iface.Tables
	send   Sender
	self   wire.EtherAddr

	// joined holds multicast addresses explicitly joined through the socket
	// layer, on top of the solicited-node addresses iface.Tables derives
	// automatically. MLD reporting covers both: anything of type
	// iface.AddrMulticast in the table is a joined group (spec.md §4.3
	// "report for each joined multicast address").
	joined *container.MapSet[netip.Addr]

	dupAddrDetectTransmits int
	dadTimeout             time.Duration
	retransTimer           time.Duration

	// onDHCPHint, if set, is called with the hint built from an RA's
	// Managed/Other-config flags (SPEC_FULL.md §4 "M/O bits").
	onDHCPHint func(*dhcp6hint.Hint)
}

// New returns a Handler for the interface whose link-layer address is self.
// tables and send must not be nil.
func New(logger *slog.Logger, clock timeutil.Clock, tables *iface.Tables, send Sender, self wire.EtherAddr) (h *Handler) {
	return &Handler{
		logger:                 logger,
		clock:                  clock,
		tables:                 tables,
		send:                   send,
		self:                   self,
		joined:                 container.NewMapSet[netip.Addr](),
		dupAddrDetectTransmits: DefaultDupAddrDetectTransmits,
		dadTimeout:             DefaultDADTimeout,
		retransTimer:           DefaultRetransTimer,
	}
}

// SetDupAddrDetectTransmits overrides the number of DAD solicitations sent.
func (h *Handler) SetDupAddrDetectTransmits(n int) { h.dupAddrDetectTransmits = n }

// SetDADTimeout overrides the bounded DAD wait interval.
func (h *Handler) SetDADTimeout(d time.Duration) { h.dadTimeout = d }

// SetDHCPHintHandler registers fn to receive the DHCPv6 hint built from an
// RA's M/O bits (SPEC_FULL.md §4). A nil fn, the default, means RAs with
// Managed or Other set are otherwise ignored.
func (h *Handler) SetDHCPHintHandler(fn func(*dhcp6hint.Hint)) { h.onDHCPHint = fn }

// HandleIPv6 implements [ipv6pkt.UpperHandler]. It verifies the ICMPv6
// pseudo-header checksum and dispatches by message type (spec.md §4.3
// "Receive dispatch: type-based"). payload is released in every path.
func (h *Handler) HandleIPv6(ctx context.Context, ipHdr wire.IPv6Header, payload *bufpool.Buffer, srcEther wire.EtherAddr) {
	defer payload.Release()

	data := payload.Bytes()
	if len(data) < wire.ICMPv6HeaderLen {
		h.logger.DebugContext(ctx, "dropping short icmpv6 message")

		return
	}

	if wire.UpperLayerChecksum(ipHdr.Src, ipHdr.Dst, wire.NextHeaderICMPv6, data) != 0 {
		h.logger.DebugContext(ctx, "dropping icmpv6 message with bad checksum")

		return
	}

	typ := data[0]
	switch typ {
	case wire.ICMPv6TypeRouterSolicitation:
		// esix is a host, not a router: RS is accepted on the wire but
		// nothing consumes it (spec.md §9 "single-interface host").
	case wire.ICMPv6TypeRouterAdvertisement:
		h.handleRA(ctx, ipHdr, data)
	case wire.ICMPv6TypeNeighborSolicitation:
		h.handleNS(ctx, ipHdr, data, srcEther)
	case wire.ICMPv6TypeNeighborAdvertisement:
		h.handleNA(ctx, data)
	case wire.ICMPv6TypeEchoRequest:
		h.handleEchoRequest(ctx, ipHdr, data)
	case wire.ICMPv6TypeMLDQuery:
		h.handleMLDQuery(ctx, ipHdr, data)
	case wire.ICMPv6TypeDestUnreachable, wire.ICMPv6TypeTimeExceeded, wire.ICMPv6TypePacketTooBig, wire.ICMPv6TypeParamProblem:
		h.logger.DebugContext(ctx, "received icmpv6 error", slog.Int("type", int(typ)))
	case wire.ICMPv6TypeRedirect:
		// Checksum-verified and dropped (SPEC_FULL.md §4): esix does not
		// install redirect routes.
		h.logger.DebugContext(ctx, "dropping icmpv6 redirect")
	default:
		h.logger.DebugContext(ctx, "dropping icmpv6 message of unhandled type", slog.Int("type", int(typ)))
	}
}

// sendICMPv6 fills in the checksum and transmits msg from src to dst with
// the given hop limit.
func (h *Handler) sendICMPv6(ctx context.Context, src, dst netip.Addr, hopLimit uint8, msg []byte) (err error) {
	cs := wire.UpperLayerChecksum(src, dst, wire.NextHeaderICMPv6, msg)
	msg[2] = byte(cs >> 8)
	msg[3] = byte(cs)

	hdr := wire.IPv6Header{
		NextHeader: wire.NextHeaderICMPv6,
		HopLimit:   hopLimit,
		Src:        src,
		Dst:        dst,
	}

	return h.send.Send(ctx, hdr, msg)
}

// Join marks addr as a joined multicast group: it is added to the address
// table (so MLD reporting and Ethernet multicast reception see it) and to
// the explicit-join set.
func (h *Handler) Join(ctx context.Context, addr netip.Addr) (err error) {
	if err = h.tables.AddAddr(ctx, addr, 128, time.Time{}, iface.AddrMulticast); err != nil {
		return errors.Annotate(err, "icmpv6: joining %s: %w", addr)
	}
	h.joined.Add(addr)

	return nil
}

// Leave reverses [Handler.Join].
func (h *Handler) Leave(addr netip.Addr) (err error) {
	h.joined.Delete(addr)

	return h.tables.RemoveAddr(addr, iface.AddrMulticast, 128)
}
