package iface

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"time"

	"github.com/esix-project/esix/internal/esixerr"
	"github.com/esix-project/esix/internal/wire"
	"github.com/AdguardTeam/golibs/timeutil"
)

// Resource ceilings (spec.md §4.2 "tables are bounded", §5 "Resource
// ceilings are compile-time constants").  esix keeps these as ordinary
// package constants rather than a build-time configuration knob, matching
// the sample upper bounds spec.md gives.
const (
	MaxAddresses = 16
	MaxRoutes    = 8
	MaxNeighbors = 16
)

// DADProber performs Duplicate Address Detection for a tentative address
// (spec.md §4.3 "DAD"). It is implemented by the icmpv6 package and
// injected into Tables, rather than imported directly, to avoid a cycle:
// icmpv6 itself needs to look addresses up in Tables.  This mirrors the
// teacher's addressChecker seam in internal/dhcpsvc/addresschecker.go.
//
// StartProbe must not block: it only sends the DAD solicitation(s) and
// reports how long Tables should wait before resolving the address against
// the neighbor table. The decision itself is made later, by [Tables.AgeSweep],
// so that a conflicting Neighbor Advertisement arriving during the wait can
// still be drained by esix's single worker goroutine instead of the
// goroutine sitting blocked on a timer (SPEC_FULL.md §5).
type DADProber interface {
	// StartProbe sends addr's DAD solicitation(s) and returns how long
	// Tables should wait before checking whether a neighbor answered.
	StartProbe(ctx context.Context, addr netip.Addr) (wait time.Duration, err error)
}

// NoopDADProber is a [DADProber] that sends nothing and asks for no wait, so
// the address resolves as free on the very next check. It is the default
// until [Tables.SetDADProber] is called, and is useful in tests that don't
// exercise DAD itself.
type NoopDADProber struct{}

// StartProbe implements the [DADProber] interface for NoopDADProber.
func (NoopDADProber) StartProbe(_ context.Context, _ netip.Addr) (wait time.Duration, err error) {
	return 0, nil
}

// pendingDAD is an address awaiting DAD resolution (spec.md §4.3 "wait a
// bounded interval").
type pendingDAD struct {
	addr     netip.Addr
	typ      AddrType
	maskLen  int
	deadline time.Time
}

// Tables is the interface module's state: the address, route, and neighbor
// tables, plus the rules that keep them coherent (spec.md §4.2).
//
// Tables is not safe for concurrent use.  Per spec.md §5, every structure
// other than the ingress/egress queues is touched only from the single
// cooperative worker goroutine; see internal/core for how esix's public,
// concurrency-safe API is funneled onto that goroutine.
type Tables struct {
	logger *slog.Logger
	clock  timeutil.Clock
	dad    DADProber

	addrs     []AddrEntry
	routes    []RouteEntry
	neighbors []NeighborEntry

	pending []pendingDAD
}

// New returns an empty Tables.  logger and clock must not be nil.
func New(logger *slog.Logger, clock timeutil.Clock) *Tables {
	return &Tables{
		logger: logger,
		clock:  clock,
		dad:    NoopDADProber{},
	}
}

// SetDADProber installs the prober used by subsequent [Tables.AddAddr] calls.
func (t *Tables) SetDADProber(p DADProber) {
	t.dad = p
}

// solicitedNodeMulticast derives the ff02::1:ffXX:XXXX address for a
// unicast address, per spec.md glossary "Solicited-node multicast".
func solicitedNodeMulticast(addr netip.Addr) netip.Addr {
	raw := addr.As16()

	return netip.AddrFrom16([16]byte{
		0xff, 0x02, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 1,
		0xff, raw[13], raw[14], raw[15],
	})
}

// EtherMulticastFor derives the Ethernet multicast address used to reach an
// IPv6 multicast address (spec.md §9 design note (d)).
func EtherMulticastFor(dst netip.Addr) wire.EtherAddr {
	raw := dst.As16()

	return wire.SolicitedNodeMulticastEther([4]byte{raw[12], raw[13], raw[14], raw[15]})
}

// AddAddr adds or refreshes a unicast/anycast address (spec.md §4.2
// "add_addr"). If an identical (Addr, Type, MaskLen) entry already exists,
// only its expiration is updated. Otherwise, for link-local and global
// addresses, the entry is inserted as tentative and DAD is started: the
// solicitation is sent immediately but the free/duplicate decision is
// deferred to [Tables.AgeSweep], so AddAddr itself never blocks the worker
// goroutine waiting on a timer (SPEC_FULL.md §5). For non-multicast types,
// the matching solicited-node multicast address is inserted alongside it
// right away (spec.md §3 invariant (a)) — it isn't itself subject to DAD.
func (t *Tables) AddAddr(
	ctx context.Context,
	addr netip.Addr,
	maskLen int,
	expiration time.Time,
	typ AddrType,
) (err error) {
	if i := t.findAddr(addr, typ, maskLen); i >= 0 {
		t.addrs[i].Expiration = expiration

		return nil
	}

	if len(t.addrs) >= MaxAddresses {
		return esixerr.ErrTableFull
	}

	tentative := false
	if typ == AddrLinkLocal || typ == AddrGlobal {
		wait, probeErr := t.dad.StartProbe(ctx, addr)
		if probeErr != nil {
			return fmt.Errorf("probing %s for dad: %w", addr, probeErr)
		}

		if wait > 0 {
			tentative = true
			t.pending = append(t.pending, pendingDAD{
				addr:     addr,
				typ:      typ,
				maskLen:  maskLen,
				deadline: t.clock.Now().Add(wait),
			})
		}
	}

	t.addrs = append(t.addrs, AddrEntry{
		Addr:       addr,
		MaskLen:    maskLen,
		Expiration: expiration,
		Type:       typ,
		tentative:  tentative,
	})

	if typ != AddrMulticast {
		sn := solicitedNodeMulticast(addr)
		if i := t.findAddr(sn, AddrMulticast, 128); i < 0 && len(t.addrs) < MaxAddresses {
			t.addrs = append(t.addrs, AddrEntry{Addr: sn, MaskLen: 128, Type: AddrMulticast})
		}
	}

	if !tentative {
		return nil
	}

	t.resolveDAD(t.clock.Now())

	return nil
}

// resolveDAD checks every pending DAD entry whose deadline has passed
// against the neighbor table: if a neighbor answered for the address during
// the wait, it's a duplicate and the tentative entry (and its solicited-node
// multicast companion, if nothing else still uses it) is removed; otherwise
// the entry's tentative flag is cleared and it becomes usable (spec.md §4.3
// "DAD"). This is the non-timer-blocking replacement for a direct wait
// inside AddAddr: [Tables.AgeSweep] calls it every worker pass, so a
// conflicting Neighbor Advertisement arriving mid-wait is still drained by
// the worker goroutine in the meantime.
func (t *Tables) resolveDAD(now time.Time) {
	t.pending = slices.DeleteFunc(t.pending, func(p pendingDAD) bool {
		if now.Before(p.deadline) {
			return false
		}

		i := t.findAddr(p.addr, p.typ, p.maskLen)
		if i < 0 {
			return true
		}

		if _, dup := t.GetNeighbor(p.addr); dup {
			t.logger.Warn("duplicate address detected, evicting", "addr", p.addr)

			t.addrs = slices.Delete(t.addrs, i, i+1)

			sn := solicitedNodeMulticast(p.addr)
			if j := t.findAddr(sn, AddrMulticast, 128); j >= 0 {
				t.addrs = slices.Delete(t.addrs, j, j+1)
			}

			return true
		}

		t.addrs[i].tentative = false

		return true
	})
}

// RemoveAddr removes the address entry matching (addr, typ, maskLen).  It
// returns [esixerr.ErrNotFound] if there is no such entry.
func (t *Tables) RemoveAddr(addr netip.Addr, typ AddrType, maskLen int) (err error) {
	i := t.findAddr(addr, typ, maskLen)
	if i < 0 {
		return esixerr.ErrNotFound
	}
	t.addrs = slices.Delete(t.addrs, i, i+1)

	return nil
}

// GetAddr looks up an address entry.  typ may be [AddrAny] and maskLen may
// be -1 to match any value of that field (spec.md §4.2
// "get_addr(addr, type_or_any, masklen_or_any)").
func (t *Tables) GetAddr(addr netip.Addr, typ AddrType, maskLen int) (e AddrEntry, ok bool) {
	i := t.findAddr(addr, typ, maskLen)
	if i < 0 {
		return e, false
	}

	return t.addrs[i], true
}

// GetAddrForType returns the first non-tentative address entry of the given
// type.
func (t *Tables) GetAddrForType(typ AddrType) (e AddrEntry, ok bool) {
	for _, a := range t.addrs {
		if a.Type == typ && !a.tentative {
			return a, true
		}
	}

	return e, false
}

func (t *Tables) findAddr(addr netip.Addr, typ AddrType, maskLen int) int {
	return slices.IndexFunc(t.addrs, func(e AddrEntry) bool {
		if e.Addr != addr {
			return false
		}
		if typ != AddrAny && e.Type != typ {
			return false
		}
		if maskLen >= 0 && e.MaskLen != maskLen {
			return false
		}

		return true
	})
}

// SourceAddrFor selects the source address esix should use to reach dst
// (spec.md §4.2 "Source-address selection"): a link-local entry for a
// link-local destination, otherwise the first global entry, failing if
// neither is available.
func (t *Tables) SourceAddrFor(dst netip.Addr) (addr netip.Addr, ok bool) {
	raw := dst.As16()
	if raw[0] == 0xfe && raw[1]&0xc0 == 0x80 {
		if e, found := t.GetAddrForType(AddrLinkLocal); found {
			return e.Addr, true
		}

		return addr, false
	}

	if e, found := t.GetAddrForType(AddrGlobal); found {
		return e.Addr, true
	}

	return addr, false
}

// AddRoute adds a route-table entry (spec.md §4.2 "add_route").
func (t *Tables) AddRoute(r RouteEntry) (err error) {
	if i := t.findRoute(r.Dest, r.Mask); i >= 0 {
		t.routes[i] = r

		return nil
	}
	if len(t.routes) >= MaxRoutes {
		return esixerr.ErrTableFull
	}
	t.routes = append(t.routes, r)

	return nil
}

// RemoveRoute removes the route matching (dest, mask).
func (t *Tables) RemoveRoute(dest netip.Addr, mask Mask128) (err error) {
	i := t.findRoute(dest, mask)
	if i < 0 {
		return esixerr.ErrNotFound
	}
	t.routes = slices.Delete(t.routes, i, i+1)

	return nil
}

func (t *Tables) findRoute(dest netip.Addr, mask Mask128) int {
	return slices.IndexFunc(t.routes, func(r RouteEntry) bool {
		return r.Dest == dest && r.Mask == mask
	})
}

// GetRouteForAddr returns the first route whose prefix matches addr, in
// insertion order (spec.md §4.2, §4.4: "first match suffices given the
// small table; order is insertion order, with more-specific entries
// expected to be inserted first by RA processing").
func (t *Tables) GetRouteForAddr(addr netip.Addr) (r RouteEntry, ok bool) {
	for _, r := range t.routes {
		if r.Matches(addr) {
			return r, true
		}
	}

	return r, false
}

// AddNeighbor adds or refreshes a neighbor-cache entry (spec.md §4.2
// "add_neighbor").
func (t *Tables) AddNeighbor(ip netip.Addr, eth wire.EtherAddr, expiration time.Time) (err error) {
	if i := t.findNeighbor(ip); i >= 0 {
		t.neighbors[i].Ether = eth
		t.neighbors[i].Expiration = expiration

		return nil
	}
	if len(t.neighbors) >= MaxNeighbors {
		return esixerr.ErrTableFull
	}
	t.neighbors = append(t.neighbors, NeighborEntry{
		Addr:       ip,
		Ether:      eth,
		Expiration: expiration,
		Status:     NeighborStale,
	})

	return nil
}

// GetNeighbor looks up a neighbor-cache entry by IPv6 address.
func (t *Tables) GetNeighbor(ip netip.Addr) (n NeighborEntry, ok bool) {
	i := t.findNeighbor(ip)
	if i < 0 {
		return n, false
	}

	return t.neighbors[i], true
}

// RemoveNeighbor removes the neighbor-cache entry for ip.
func (t *Tables) RemoveNeighbor(ip netip.Addr) (err error) {
	i := t.findNeighbor(ip)
	if i < 0 {
		return esixerr.ErrNotFound
	}
	t.neighbors = slices.Delete(t.neighbors, i, i+1)

	return nil
}

// UpdateNeighbor applies mutate to the neighbor entry for ip, if present.
func (t *Tables) UpdateNeighbor(ip netip.Addr, mutate func(*NeighborEntry)) (ok bool) {
	i := t.findNeighbor(ip)
	if i < 0 {
		return false
	}
	mutate(&t.neighbors[i])

	return true
}

func (t *Tables) findNeighbor(ip netip.Addr) int {
	return slices.IndexFunc(t.neighbors, func(n NeighborEntry) bool {
		return n.Addr == ip
	})
}

// AgeSweep re-evaluates every table's expirations against the current time
// (spec.md §9 "ND aging ... a single worker pass re-evaluates all due
// entries"). Addresses and routes with a non-zero, elapsed expiration are
// evicted (spec.md §3 invariant (b)). Neighbors with an elapsed expiration
// are aged in place rather than evicted, one step per sweep: reachable ->
// stale, then stale -> unreachable. No retry backoff is applied.
func (t *Tables) AgeSweep() {
	now := t.clock.Now()

	t.resolveDAD(now)

	t.addrs = slices.DeleteFunc(t.addrs, func(e AddrEntry) bool { return e.expired(now) })
	t.routes = slices.DeleteFunc(t.routes, func(r RouteEntry) bool { return r.expired(now) })

	for i := range t.neighbors {
		n := &t.neighbors[i]
		if n.Status == NeighborReachable && n.expired(now) {
			n.Status = NeighborStale
		} else if n.Status == NeighborStale && n.expired(now) {
			n.Status = NeighborUnreachable
		}
	}
}

// Snapshot returns a read-only copy of every table, for diagnostics and
// metrics (SPEC_FULL.md §3 "Snapshot for diagnostics").
func (t *Tables) Snapshot() (addrs []AddrEntry, routes []RouteEntry, neighbors []NeighborEntry) {
	return slices.Clone(t.addrs), slices.Clone(t.routes), slices.Clone(t.neighbors)
}
