// Package iface implements esix's interface state: the address, route, and
// neighbor tables and the rules that keep them coherent as RAs arrive,
// NS/NA exchanges run, and entries expire (spec.md §4.2). It is grounded on
// the teacher's internal/dhcpsvc lease-index/interface lineage: a
// clock-driven table of entries with expiry-based aging, used from a single
// worker goroutine without locking,
// looked up by natural key rather than by intrusive pointers (spec.md §9
// "Tables-as-free-lists").
package iface

import (
	"net/netip"
	"time"

	"github.com/esix-project/esix/internal/wire"
)

// AddrType tags the purpose of an address- or route-table entry (spec.md
// §3).
type AddrType int

// AddrType values.
const (
	// AddrAny is a wildcard used only in lookups, never stored.
	AddrAny AddrType = iota
	AddrLinkLocal
	AddrGlobal
	AddrAnycast
	AddrMulticast
)

// String implements fmt.Stringer for AddrType.
func (t AddrType) String() string {
	switch t {
	case AddrLinkLocal:
		return "link_local"
	case AddrGlobal:
		return "global"
	case AddrAnycast:
		return "anycast"
	case AddrMulticast:
		return "multicast"
	case AddrAny:
		return "any"
	default:
		return "unknown"
	}
}

// AddrEntry is one entry of the interface address table (spec.md §3
// "Interface address entry").
type AddrEntry struct {
	Addr netip.Addr
	// MaskLen is the prefix length in bits associated with the address.
	MaskLen int
	// Expiration is the epoch at which the entry is evicted by the aging
	// sweep.  The zero [time.Time] means "never".
	Expiration time.Time
	// Preferred is the preferred-lifetime epoch.  It is informational only:
	// esix does not stop using a deprecated-but-valid address as a source.
	Preferred time.Time
	Type      AddrType
	// tentative is true while DAD has not yet completed for this entry; a
	// tentative entry is not usable as a source address (spec.md §3
	// invariant (c)).
	tentative bool
}

// neverExpires reports whether e has no expiration.
func (e AddrEntry) neverExpires() bool {
	return e.Expiration.IsZero()
}

// expired reports whether e is past its expiration as of now.
func (e AddrEntry) expired(now time.Time) bool {
	return !e.neverExpires() && !now.Before(e.Expiration)
}

// Mask128 is a full 128-bit address mask, stored explicitly rather than as a
// prefix length (spec.md §3 "Route entry": "mask (as a full 128-bit mask,
// not length)").
type Mask128 [16]byte

// MaskFromLen builds a Mask128 with the high n bits set, 0 <= n <= 128.
func MaskFromLen(n int) (m Mask128) {
	for i := 0; i < 16; i++ {
		switch {
		case n >= 8:
			m[i] = 0xff
			n -= 8
		case n > 0:
			m[i] = byte(0xff << (8 - n))
			n = 0
		default:
			m[i] = 0
		}
	}

	return m
}

// Apply returns addr masked by m.
func (m Mask128) Apply(addr netip.Addr) netip.Addr {
	raw := addr.As16()
	for i := range raw {
		raw[i] &= m[i]
	}

	return netip.AddrFrom16(raw)
}

// RouteEntry is one entry of the route table (spec.md §3 "Route entry").
type RouteEntry struct {
	Dest netip.Addr
	Mask Mask128
	// NextHop is the next-hop address; the zero [netip.Addr] means the
	// destination is on-link.
	NextHop    netip.Addr
	Expiration time.Time
	// TTL is the hop-limit esix places on packets routed through this
	// entry.
	TTL uint8
	MTU uint32
}

// OnLink reports whether r has no next hop, i.e. its destination is
// reachable directly on the link.
func (r RouteEntry) OnLink() bool {
	return !r.NextHop.IsValid() || r.NextHop.IsUnspecified()
}

func (r RouteEntry) neverExpires() bool {
	return r.Expiration.IsZero()
}

func (r RouteEntry) expired(now time.Time) bool {
	return !r.neverExpires() && !now.Before(r.Expiration)
}

// Matches reports whether dst falls within r's prefix: (dst & mask) ==
// (dest & mask).
func (r RouteEntry) Matches(dst netip.Addr) bool {
	return r.Mask.Apply(dst) == r.Mask.Apply(r.Dest)
}

// NeighborStatus is the reachability state of a neighbor-cache entry
// (spec.md §3 "Neighbor entry").
type NeighborStatus int

// NeighborStatus values.
const (
	NeighborReachable NeighborStatus = iota
	NeighborStale
	NeighborDelay
	NeighborUnreachable
)

// String implements fmt.Stringer for NeighborStatus.
func (s NeighborStatus) String() string {
	switch s {
	case NeighborReachable:
		return "reachable"
	case NeighborStale:
		return "stale"
	case NeighborDelay:
		return "delay"
	case NeighborUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// NeighborEntry is one entry of the neighbor cache (spec.md §3 "Neighbor
// entry").
type NeighborEntry struct {
	Addr       netip.Addr
	Ether      wire.EtherAddr
	Expiration time.Time
	Solicited  bool
	Status     NeighborStatus
}

func (n NeighborEntry) expired(now time.Time) bool {
	return !n.Expiration.IsZero() && !now.Before(n.Expiration)
}
