package icmpv6

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/esix-project/esix/internal/dhcp6hint"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/wire"
)

// allRoutersAddr is ff02::2, the all-routers multicast address RS targets.
var allRoutersAddr = netip.MustParseAddr("ff02::2")

// defaultMTU is used when a Router Advertisement carries no MTU option
// (spec.md §4.3 "MTU ... default 1500").
const defaultMTU = 1500

// SendRouterSolicitation builds and sends a Router Solicitation to
// ff02::2 with a Source Link-Layer-Address option (spec.md §4.3 "Router
// Solicitation (send): destination ff02::2, hop limit 255, options include
// Source LLA").
func (h *Handler) SendRouterSolicitation(ctx context.Context) (err error) {
	src, ok := h.tables.GetAddrForType(iface.AddrLinkLocal)
	if !ok {
		return errUnspecifiedSource
	}

	rs := wire.RouterSolicitation{
		Options: []wire.Option{wire.LLAOption(wire.OptSourceLLA, h.self)},
	}
	data, err := rs.MarshalBinary()
	if err != nil {
		return err
	}
	data[0] = wire.ICMPv6TypeRouterSolicitation

	return h.sendICMPv6(ctx, src.Addr, allRoutersAddr, 255, data)
}

// handleRA parses a Router Advertisement and updates the route and address
// tables (spec.md §4.3 "Router Advertisement (parse)").
func (h *Handler) handleRA(ctx context.Context, ipHdr wire.IPv6Header, data []byte) {
	raw := ipHdr.Src.As16()
	if raw[0] != 0xfe || raw[1]&0xc0 != 0x80 {
		h.logger.DebugContext(ctx, "dropping ra from non-link-local source")

		return
	}

	var ra wire.RouterAdvertisement
	if err := ra.UnmarshalBinary(data); err != nil {
		h.logger.DebugContext(ctx, "dropping malformed ra", slog.Any("err", err))

		return
	}

	now := h.clock.Now()

	if h.onDHCPHint != nil && (ra.Managed || ra.Other) {
		hint, err := dhcp6hint.Build(h.self, ra.Managed, ra.Other)
		if err != nil {
			h.logger.DebugContext(ctx, "building dhcpv6 hint", slog.Any("err", err))
		} else if hint != nil {
			h.onDHCPHint(hint)
		}
	}

	mtu := uint32(defaultMTU)
	for _, opt := range ra.Options {
		if m, ok := opt.MTU(); ok {
			mtu = m
		}
	}

	defaultMask := iface.MaskFromLen(0)
	if ra.RouterLifetime == 0 {
		_ = h.tables.RemoveRoute(netip.IPv6Unspecified(), defaultMask)
	} else {
		_ = h.tables.AddRoute(iface.RouteEntry{
			Dest:       netip.IPv6Unspecified(),
			Mask:       defaultMask,
			NextHop:    ipHdr.Src,
			Expiration: now.Add(time.Duration(ra.RouterLifetime) * time.Second),
			TTL:        ra.CurHopLimit,
			MTU:        mtu,
		})
	}

	for _, opt := range ra.Options {
		pi, ok := opt.PrefixInfo()
		if !ok {
			continue
		}
		h.applyPrefixInfo(ctx, pi, now)
	}
}

// applyPrefixInfo implements the SLAAC half of Router Advertisement parsing:
// a length-64 Prefix Information option forms a global address from the
// advertised prefix and a modified-EUI-64 identifier (spec.md §4.3).
func (h *Handler) applyPrefixInfo(ctx context.Context, pi wire.PrefixInfo, now time.Time) {
	mask := iface.MaskFromLen(int(pi.PrefixLength))

	if pi.ValidLifetime == 0 {
		addr := h.slaacAddr(pi)
		_ = h.tables.RemoveAddr(addr, iface.AddrGlobal, int(pi.PrefixLength))
		_ = h.tables.RemoveRoute(pi.Prefix, mask)

		return
	}

	if pi.OnLink {
		_ = h.tables.AddRoute(iface.RouteEntry{
			Dest:       pi.Prefix,
			Mask:       mask,
			Expiration: now.Add(time.Duration(pi.ValidLifetime) * time.Second),
			TTL:        wire.DefaultHopLimit,
			MTU:        defaultMTU,
		})
	}

	if !pi.Autonomous || int(pi.PrefixLength) != 64 {
		return
	}

	addr := h.slaacAddr(pi)
	expiration := now.Add(time.Duration(pi.ValidLifetime) * time.Second)
	if err := h.tables.AddAddr(ctx, addr, 64, expiration, iface.AddrGlobal); err != nil {
		h.logger.DebugContext(ctx, "slaac address rejected", slog.Any("err", err))
	}
}

// slaacAddr derives the modified-EUI-64 global address for prefix pi on
// this interface: the prefix's high 64 bits followed by self's MAC with the
// universal bit set and ff:fe inserted in the middle (spec.md §4.3).
func (h *Handler) slaacAddr(pi wire.PrefixInfo) netip.Addr {
	prefix := pi.Prefix.As16()

	var iid [8]byte
	iid[0] = h.self[0] ^ 0x02
	iid[1] = h.self[1]
	iid[2] = h.self[2]
	iid[3] = 0xff
	iid[4] = 0xfe
	iid[5] = h.self[3]
	iid[6] = h.self[4]
	iid[7] = h.self[5]

	var out [16]byte
	copy(out[0:8], prefix[0:8])
	copy(out[8:16], iid[:])

	return netip.AddrFrom16(out)
}

// handleNS implements spec.md §4.3 "Neighbor Solicitation (receive)": if the
// target is assigned to this interface, record the sender from the Source
// LLA option and send a solicited Neighbor Advertisement.
func (h *Handler) handleNS(ctx context.Context, ipHdr wire.IPv6Header, data []byte, srcEther wire.EtherAddr) {
	var ns wire.NeighborSolicitation
	if err := ns.UnmarshalBinary(data); err != nil {
		h.logger.DebugContext(ctx, "dropping malformed ns", slog.Any("err", err))

		return
	}

	if ipHdr.HopLimit != 255 || ns.Target.IsMulticast() {
		h.logger.DebugContext(ctx, "dropping ns failing sanity checks")

		return
	}

	if _, ok := h.tables.GetAddr(ns.Target, iface.AddrAny, -1); !ok {
		return
	}

	if !ipHdr.Src.IsUnspecified() {
		for _, opt := range ns.Options {
			if lla, ok := opt.LLA(); ok {
				srcEther = lla
			}
		}
		h.recordNeighbor(ipHdr.Src, srcEther, false, iface.NeighborStale)
	}

	na := wire.NeighborAdvertisement{
		Solicited: true,
		Override:  true,
		Target:    ns.Target,
	}
	na.Options = []wire.Option{wire.LLAOption(wire.OptTargetLLA, h.self)}
	msg, err := na.MarshalBinary()
	if err != nil {
		return
	}
	msg[0] = wire.ICMPv6TypeNeighborAdvertisement

	dst := ipHdr.Src
	if dst.IsUnspecified() {
		dst = allNodesAddr
	}

	if err = h.sendICMPv6(ctx, ns.Target, dst, 255, msg); err != nil {
		h.logger.DebugContext(ctx, "sending na failed", slog.Any("err", err))
	}
}

// allNodesAddr is ff02::1.
var allNodesAddr = netip.MustParseAddr("ff02::1")

// handleNA implements spec.md §4.3 "Neighbor Advertisement (receive)".
func (h *Handler) handleNA(ctx context.Context, data []byte) {
	var na wire.NeighborAdvertisement
	if err := na.UnmarshalBinary(data); err != nil {
		h.logger.DebugContext(ctx, "dropping malformed na", slog.Any("err", err))

		return
	}

	entry, ok := h.tables.GetNeighbor(na.Target)
	if ok && !entry.Solicited {
		// Defensive cache-poisoning check (spec.md §4.3): an unsolicited
		// update to an entry we never solicited is ignored.
		return
	}

	ether := entry.Ether
	for _, opt := range na.Options {
		if lla, e := opt.LLA(); e {
			ether = lla
		}
	}

	h.recordNeighbor(na.Target, ether, true, iface.NeighborReachable)
}

// recordNeighbor inserts or updates a neighbor-cache entry, then stamps the
// fields [iface.Tables.AddNeighbor] does not take directly.
func (h *Handler) recordNeighbor(addr netip.Addr, ether wire.EtherAddr, solicited bool, status iface.NeighborStatus) {
	expiration := h.clock.Now().Add(h.retransTimer * 2)
	if err := h.tables.AddNeighbor(addr, ether, expiration); err != nil {
		h.logger.Debug("recording neighbor failed", slog.Any("err", err))

		return
	}

	h.tables.UpdateNeighbor(addr, func(e *iface.NeighborEntry) {
		e.Solicited = solicited
		e.Status = status
	})
}

// Resolve implements [ipv6pkt.NeighborResolver]. If the neighbor is
// reachable or stale, its Ethernet address is returned directly. Otherwise
// a Neighbor Solicitation is queued and the caller is told to drop the
// packet in flight, per spec.md §4.4 step 4.
func (h *Handler) Resolve(ctx context.Context, addr netip.Addr) (ether wire.EtherAddr, ok bool) {
	entry, found := h.tables.GetNeighbor(addr)
	if found && (entry.Status == iface.NeighborReachable || entry.Status == iface.NeighborStale) {
		return entry.Ether, true
	}

	h.solicitNeighbor(ctx, addr)

	return ether, false
}

// solicitNeighbor sends a multicast Neighbor Solicitation for addr and
// records a pending (delay-state) neighbor entry so repeated transmit
// attempts do not flood solicitations.
func (h *Handler) solicitNeighbor(ctx context.Context, addr netip.Addr) {
	entry, found := h.tables.GetNeighbor(addr)
	if found && entry.Status == iface.NeighborDelay && h.clock.Now().Before(entry.Expiration) {
		return
	}

	src, ok := h.tables.SourceAddrFor(addr)
	if !ok {
		return
	}

	ns := wire.NeighborSolicitation{
		Target:  addr,
		Options: []wire.Option{wire.LLAOption(wire.OptSourceLLA, h.self)},
	}
	data, err := ns.MarshalBinary()
	if err != nil {
		return
	}
	data[0] = wire.ICMPv6TypeNeighborSolicitation

	if err = h.sendICMPv6(ctx, src, solicitedNodeMulticastFor(addr), 255, data); err != nil {
		h.logger.DebugContext(ctx, "sending ns failed", slog.Any("err", err))

		return
	}

	h.recordNeighbor(addr, wire.EtherAddr{}, true, iface.NeighborDelay)
}

// solicitedNodeMulticastFor derives ff02::1:ffXX:XXXX for addr (spec.md
// glossary "Solicited-node multicast").
func solicitedNodeMulticastFor(addr netip.Addr) netip.Addr {
	raw := addr.As16()

	return netip.AddrFrom16([16]byte{
		0xff, 0x02, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 1,
		0xff, raw[13], raw[14], raw[15],
	})
}
