package iface_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/esix-project/esix/internal/esixerr"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

// fakeProber is a [iface.DADProber] whose wait and per-call error are set by
// the test, letting it drive the AddAddr/resolveDAD interaction directly
// without a real icmpv6.Handler.
type fakeProber struct {
	wait  time.Duration
	err   error
	calls []netip.Addr
}

func (p *fakeProber) StartProbe(_ context.Context, addr netip.Addr) (time.Duration, error) {
	p.calls = append(p.calls, addr)

	return p.wait, p.err
}

var addrOpt = cmp.AllowUnexported(iface.AddrEntry{})

func TestTables_AddAddr_Idempotent(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)

	addr := netip.MustParseAddr("ff02::1")
	exp1 := clk.now.Add(time.Hour)
	require.NoError(t, tables.AddAddr(context.Background(), addr, 128, exp1, iface.AddrMulticast))

	exp2 := clk.now.Add(2 * time.Hour)
	require.NoError(t, tables.AddAddr(context.Background(), addr, 128, exp2, iface.AddrMulticast))

	addrs, _, _ := tables.Snapshot()
	require.Len(t, addrs, 1, "re-adding an identical entry must refresh, not duplicate")
	assert.True(t, addrs[0].Expiration.Equal(exp2))
}

// TestTables_AddAddr_NonBlockingDAD_ResolvesFree covers spec.md §8 scenario 1
// and the non-blocking DAD redesign: a link-local/global address starts
// tentative, is invisible to [Tables.GetAddrForType], and only becomes
// usable once its deadline has passed and a sweep has run.
func TestTables_AddAddr_NonBlockingDAD_ResolvesFree(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)
	prober := &fakeProber{wait: time.Second}
	tables.SetDADProber(prober)

	addr := netip.MustParseAddr("2001:db8::1")
	require.NoError(t, tables.AddAddr(context.Background(), addr, 64, time.Time{}, iface.AddrGlobal))
	assert.Equal(t, []netip.Addr{addr}, prober.calls)

	_, ok := tables.GetAddrForType(iface.AddrGlobal)
	assert.False(t, ok, "address must stay tentative before the probe's wait elapses")

	// A sweep before the deadline changes nothing.
	tables.AgeSweep()
	_, ok = tables.GetAddrForType(iface.AddrGlobal)
	assert.False(t, ok)

	clk.now = clk.now.Add(time.Second)
	tables.AgeSweep()

	got, ok := tables.GetAddrForType(iface.AddrGlobal)
	require.True(t, ok)
	assert.Equal(t, addr, got.Addr)
}

// TestTables_AddAddr_NonBlockingDAD_EvictsDuplicate covers the duplicate
// branch: if a neighbor answers for the tentative address before the
// deadline, the sweep evicts the entry instead of making it usable.
func TestTables_AddAddr_NonBlockingDAD_EvictsDuplicate(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)
	tables.SetDADProber(&fakeProber{wait: time.Second})

	addr := netip.MustParseAddr("2001:db8::1")
	require.NoError(t, tables.AddAddr(context.Background(), addr, 64, time.Time{}, iface.AddrGlobal))

	// A conflicting Neighbor Advertisement arrives during the wait.
	require.NoError(t, tables.AddNeighbor(addr, wire.EtherAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, time.Time{}))

	clk.now = clk.now.Add(time.Second)
	tables.AgeSweep()

	_, ok := tables.GetAddr(addr, iface.AddrGlobal, 64)
	assert.False(t, ok, "a duplicate address must be evicted, not just left tentative")

	sn := netip.MustParseAddr("ff02::1:ff00:1")
	_, ok = tables.GetAddr(sn, iface.AddrMulticast, 128)
	assert.False(t, ok, "the evicted duplicate's solicited-node multicast companion must go with it")
}

func TestTables_AddAddr_NoopProber_ResolvesImmediately(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)

	addr := netip.MustParseAddr("2001:db8::1")
	require.NoError(t, tables.AddAddr(context.Background(), addr, 64, time.Time{}, iface.AddrGlobal))

	got, ok := tables.GetAddrForType(iface.AddrGlobal)
	require.True(t, ok, "the default NoopDADProber must resolve on the very next check, with no sweep needed")
	assert.Equal(t, addr, got.Addr)
}

func TestTables_AddAddr_TableFull(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)

	// Multicast entries get no solicited-node companion, so each AddAddr
	// call consumes exactly one slot.
	for i := 0; i < iface.MaxAddresses; i++ {
		addr := netip.AddrFrom16([16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, byte(i)})
		require.NoError(t, tables.AddAddr(context.Background(), addr, 128, time.Time{}, iface.AddrMulticast))
	}

	overflow := netip.AddrFrom16([16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff})
	err := tables.AddAddr(context.Background(), overflow, 128, time.Time{}, iface.AddrMulticast)
	assert.ErrorIs(t, err, esixerr.ErrTableFull)
}

func TestTables_SourceAddrFor(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)

	lla := netip.MustParseAddr("fe80::1")
	global := netip.MustParseAddr("2001:db8::1")
	require.NoError(t, tables.AddAddr(context.Background(), lla, 64, time.Time{}, iface.AddrLinkLocal))
	require.NoError(t, tables.AddAddr(context.Background(), global, 64, time.Time{}, iface.AddrGlobal))

	src, ok := tables.SourceAddrFor(netip.MustParseAddr("fe80::2"))
	require.True(t, ok)
	assert.Equal(t, lla, src)

	src, ok = tables.SourceAddrFor(netip.MustParseAddr("2001:db8::2"))
	require.True(t, ok)
	assert.Equal(t, global, src)
}

func TestTables_AgeSweep_ExpiresAddrsAndRoutes(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)

	addr := netip.MustParseAddr("ff02::1")
	require.NoError(t, tables.AddAddr(context.Background(), addr, 128, clk.now.Add(time.Minute), iface.AddrMulticast))
	require.NoError(t, tables.AddRoute(iface.RouteEntry{
		Dest:       netip.MustParseAddr("2001:db8::"),
		Mask:       iface.MaskFromLen(64),
		Expiration: clk.now.Add(time.Minute),
	}))

	clk.now = clk.now.Add(2 * time.Minute)
	tables.AgeSweep()

	addrs, routes, _ := tables.Snapshot()
	assert.Empty(t, addrs, "expired address entries must be evicted by AgeSweep")
	assert.Empty(t, routes, "expired route entries must be evicted by AgeSweep")
}

func TestTables_AgeSweep_NeighborReachableToStaleToUnreachable(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)

	addr := netip.MustParseAddr("2001:db8::1")
	require.NoError(t, tables.AddNeighbor(addr, wire.EtherAddr{1, 2, 3, 4, 5, 6}, clk.now.Add(time.Minute)))
	tables.UpdateNeighbor(addr, func(e *iface.NeighborEntry) { e.Status = iface.NeighborReachable })

	clk.now = clk.now.Add(2 * time.Minute)
	tables.AgeSweep()

	n, ok := tables.GetNeighbor(addr)
	require.True(t, ok, "an expired neighbor entry is aged in place, not evicted")
	assert.Equal(t, iface.NeighborStale, n.Status)

	tables.AgeSweep()

	n, ok = tables.GetNeighbor(addr)
	require.True(t, ok, "an expired neighbor entry is aged in place, not evicted")
	assert.Equal(t, iface.NeighborUnreachable, n.Status)
}

// TestTables_Snapshot_IsIndependentCopy ensures Snapshot's result can't
// alias Tables' own slices, using go-cmp to compare the whole structure
// rather than field-by-field.
func TestTables_Snapshot_IsIndependentCopy(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	tables := iface.New(slogutil.NewDiscardLogger(), clk)

	addr := netip.MustParseAddr("2001:db8::1")
	require.NoError(t, tables.AddAddr(context.Background(), addr, 64, time.Time{}, iface.AddrAnycast))

	addrs1, _, _ := tables.Snapshot()
	addrs2, _, _ := tables.Snapshot()

	if diff := cmp.Diff(addrs1, addrs2, addrOpt); diff != "" {
		t.Errorf("two snapshots of unchanged state must be identical (-first +second):\n%s", diff)
	}

	addrs1[0].MaskLen = 999
	addrs3, _, _ := tables.Snapshot()
	if diff := cmp.Diff(addrs2, addrs3, addrOpt); diff != "" {
		t.Errorf("mutating a returned snapshot must not affect Tables' own state (-before +after):\n%s", diff)
	}
}
