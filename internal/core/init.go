package core

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/wire"
)

// allNodesAddr is ff02::1, joined by every interface on bring-up.
var allNodesAddr = netip.MustParseAddr("ff02::1")

// linkLocalPrefix and multicastPrefix are the two on-link routes init installs
// (spec.md §8 scenario 1: "the route table contains fe80::/64 and
// ff00::/8").
var (
	linkLocalPrefix = netip.MustParseAddr("fe80::")
	multicastPrefix = netip.MustParseAddr("ff00::")
)

// Init brings the interface up (spec.md §6 "init(lla) — 6-byte link-layer
// address; creates link-local address and default routes, emits an RS"):
// it derives the link-local address from lla via modified-EUI-64, installs
// it (running DAD), adds the fe80::/64 and ff00::/8 on-link routes, joins
// the all-nodes multicast group, and sends a Router Solicitation.
func (c *Core) Init(ctx context.Context) (err error) {
	lla := linkLocalFrom(c.self)

	if err = c.tables.AddRoute(iface.RouteEntry{
		Dest: linkLocalPrefix,
		Mask: iface.MaskFromLen(64),
	}); err != nil {
		return err
	}
	if err = c.tables.AddRoute(iface.RouteEntry{
		Dest: multicastPrefix,
		Mask: iface.MaskFromLen(8),
	}); err != nil {
		return err
	}

	if err = c.tables.AddAddr(ctx, lla, 128, time.Time{}, iface.AddrLinkLocal); err != nil {
		return err
	}

	if err = c.icmpv6.Join(ctx, allNodesAddr); err != nil {
		return err
	}

	if err = c.applyStaticConfig(ctx); err != nil {
		return err
	}

	return c.icmpv6.SendRouterSolicitation(ctx)
}

// applyStaticConfig installs c.cfg's static addresses and routes
// (SPEC_FULL.md §3 "Static entries from config"), run before the Router
// Solicitation is sent so a test harness can pre-seed a global address
// without waiting for an RA.
func (c *Core) applyStaticConfig(ctx context.Context) (err error) {
	for _, a := range c.cfg.StaticAddresses {
		if err = c.tables.AddAddr(ctx, a.Addr, a.MaskLen, time.Time{}, a.Type); err != nil {
			return fmt.Errorf("static address %s/%d: %w", a.Addr, a.MaskLen, err)
		}
	}

	for _, r := range c.cfg.StaticRoutes {
		route := iface.RouteEntry{
			Dest:    r.Dest,
			Mask:    iface.MaskFromLen(r.MaskLen),
			NextHop: r.NextHop,
			TTL:     r.TTL,
		}
		if err = c.tables.AddRoute(route); err != nil {
			return fmt.Errorf("static route %s/%d: %w", r.Dest, r.MaskLen, err)
		}
	}

	return nil
}

// linkLocalFrom derives the fe80::/64 modified-EUI-64 address for a
// 6-byte Ethernet address (spec.md §4.3 "SLAAC via modified-EUI-64"),
// applied here to the link-local prefix instead of a Router-Advertisement
// prefix.
func linkLocalFrom(self wire.EtherAddr) netip.Addr {
	var out [16]byte
	out[0], out[1] = 0xfe, 0x80
	out[8] = self[0] ^ 0x02
	out[9] = self[1]
	out[10] = self[2]
	out[11] = 0xff
	out[12] = 0xfe
	out[13] = self[3]
	out[14] = self[4]
	out[15] = self[5]

	return netip.AddrFrom16(out)
}
