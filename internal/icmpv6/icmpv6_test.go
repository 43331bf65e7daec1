package icmpv6_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/icmpv6"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records every message [icmpv6.Handler] hands it instead of
// transmitting, mirroring internal/tcp/tcp_test.go's fakeSender.
type fakeSender struct {
	sent []sentMsg
}

type sentMsg struct {
	hdr  wire.IPv6Header
	data []byte
}

func (f *fakeSender) Send(_ context.Context, hdr wire.IPv6Header, payload []byte) error {
	f.sent = append(f.sent, sentMsg{hdr: hdr, data: append([]byte(nil), payload...)})

	return nil
}

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

var (
	self        = wire.EtherAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	lla         = netip.MustParseAddr("fe80::11:22ff:fe33:4455")
	remoteLLA   = netip.MustParseAddr("fe80::aa:bbff:fecc:ddee")
	remoteEther = wire.EtherAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
)

func newTestHandler(t *testing.T) (*icmpv6.Handler, *iface.Tables, *fakeSender, *stubClock) {
	t.Helper()

	clk := &stubClock{now: time.Unix(1700000000, 0)}
	logger := slogutil.NewDiscardLogger()
	tables := iface.New(logger, clk)
	sender := &fakeSender{}
	h := icmpv6.New(logger, clk, tables, sender, self)
	tables.SetDADProber(h)

	require.NoError(t, tables.AddAddr(context.Background(), lla, 128, time.Time{}, iface.AddrLinkLocal))

	// The link-local address's own DAD is still pending at this point
	// (StartProbe is non-blocking); resolve it so callers that look it up
	// by type, rather than by exact address, see it.
	clk.now = clk.now.Add(icmpv6.DefaultDADTimeout)
	tables.AgeSweep()

	// Drop the link-local address's own DAD solicitation so tests see only
	// the messages they cause.
	sender.sent = nil

	return h, tables, sender, clk
}

func icmpv6Payload(t *testing.T, src, dst netip.Addr, data []byte) *bufpool.Buffer {
	t.Helper()

	cs := wire.UpperLayerChecksum(src, dst, wire.NextHeaderICMPv6, data)
	data[2] = byte(cs >> 8)
	data[3] = byte(cs)

	return bufpool.Wrap(append([]byte(nil), data...))
}

// TestHandler_NeighborSolicitation_AnswersWithAdvertisement exercises
// spec.md §8 scenario 2: a unicast NS for this interface's own address gets
// a solicited Neighbor Advertisement in reply, and the sender is recorded in
// the neighbor cache.
func TestHandler_NeighborSolicitation_AnswersWithAdvertisement(t *testing.T) {
	h, tables, sender, _ := newTestHandler(t)

	ns := wire.NeighborSolicitation{
		Target:  lla,
		Options: []wire.Option{wire.LLAOption(wire.OptSourceLLA, remoteEther)},
	}
	data, err := ns.MarshalBinary()
	require.NoError(t, err)
	data[0] = wire.ICMPv6TypeNeighborSolicitation

	payload := icmpv6Payload(t, remoteLLA, lla, data)
	ipHdr := wire.IPv6Header{NextHeader: wire.NextHeaderICMPv6, HopLimit: 255, Src: remoteLLA, Dst: lla}

	h.HandleIPv6(context.Background(), ipHdr, payload, remoteEther)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, remoteLLA, sender.sent[0].hdr.Dst)
	assert.Equal(t, uint8(wire.ICMPv6TypeNeighborAdvertisement), sender.sent[0].data[0])

	n, ok := tables.GetNeighbor(remoteLLA)
	require.True(t, ok)
	assert.Equal(t, remoteEther, n.Ether)
}

// TestHandler_NeighborAdvertisement_RecordsSolicitedNeighbor exercises the
// other half of spec.md §8 scenario 2: a solicited NA received after this
// interface solicited addr installs a reachable neighbor-cache entry.
func TestHandler_NeighborAdvertisement_RecordsSolicitedNeighbor(t *testing.T) {
	h, tables, _, _ := newTestHandler(t)

	// Resolve queues a solicitation and marks the entry delay/solicited.
	_, ok := h.Resolve(context.Background(), remoteLLA)
	assert.False(t, ok)

	na := wire.NeighborAdvertisement{
		Solicited: true,
		Override:  true,
		Target:    remoteLLA,
		Options:   []wire.Option{wire.LLAOption(wire.OptTargetLLA, remoteEther)},
	}
	data, err := na.MarshalBinary()
	require.NoError(t, err)
	data[0] = wire.ICMPv6TypeNeighborAdvertisement

	payload := icmpv6Payload(t, remoteLLA, lla, data)
	ipHdr := wire.IPv6Header{NextHeader: wire.NextHeaderICMPv6, HopLimit: 255, Src: remoteLLA, Dst: lla}

	h.HandleIPv6(context.Background(), ipHdr, payload, remoteEther)

	n, ok := tables.GetNeighbor(remoteLLA)
	require.True(t, ok)
	assert.Equal(t, iface.NeighborReachable, n.Status)
	assert.Equal(t, remoteEther, n.Ether)

	ether, resolved := h.Resolve(context.Background(), remoteLLA)
	assert.True(t, resolved)
	assert.Equal(t, remoteEther, ether)
}

// TestHandler_RouterAdvertisement_InstallsPrefixAndDefaultRoute exercises
// spec.md §8 scenario 3: an RA with a Prefix Information option installs an
// on-link route and a SLAAC global address, and the RA's source becomes the
// default route's next hop.
func TestHandler_RouterAdvertisement_InstallsPrefixAndDefaultRoute(t *testing.T) {
	h, tables, _, clk := newTestHandler(t)

	prefix := netip.MustParseAddr("2001:db8::")
	ra := wire.RouterAdvertisement{
		CurHopLimit:    64,
		RouterLifetime: 1800,
		Options: []wire.Option{
			wire.PrefixInfoOption(wire.PrefixInfo{
				PrefixLength:  64,
				OnLink:        true,
				Autonomous:    true,
				ValidLifetime: 86400,
				PreferredLife: 14400,
				Prefix:        prefix,
			}),
		},
	}
	data, err := ra.MarshalBinary()
	require.NoError(t, err)
	data[0] = wire.ICMPv6TypeRouterAdvertisement

	payload := icmpv6Payload(t, remoteLLA, lla, data)
	ipHdr := wire.IPv6Header{NextHeader: wire.NextHeaderICMPv6, HopLimit: 255, Src: remoteLLA, Dst: lla}

	h.HandleIPv6(context.Background(), ipHdr, payload, remoteEther)

	defRoute, ok := tables.GetRouteForAddr(netip.MustParseAddr("2001:db8::1"))
	require.True(t, ok)
	assert.Equal(t, remoteLLA, defRoute.NextHop)

	// The SLAAC address starts tentative; resolve its DAD like the worker's
	// periodic sweep would.
	clk.now = clk.now.Add(icmpv6.DefaultDADTimeout)
	tables.AgeSweep()

	wantGlobal := netip.MustParseAddr("2001:db8::11:22ff:fe33:4455")
	global, ok := tables.GetAddrForType(iface.AddrGlobal)
	require.True(t, ok)
	assert.Equal(t, wantGlobal, global.Addr)
}

// TestHandler_DAD_IsNonBlockingAndResolvesOnSweep ensures StartProbe itself
// doesn't block — the new address is usable only after the deadline has
// passed and [iface.Tables.AgeSweep] has run, never synchronously inside
// AddAddr.
func TestHandler_DAD_IsNonBlockingAndResolvesOnSweep(t *testing.T) {
	clk := &stubClock{now: time.Unix(1700000000, 0)}
	logger := slogutil.NewDiscardLogger()
	tables := iface.New(logger, clk)
	sender := &fakeSender{}
	h := icmpv6.New(logger, clk, tables, sender, self)
	tables.SetDADProber(h)

	addr := netip.MustParseAddr("2001:db8::1")
	start := time.Now()
	err := tables.AddAddr(context.Background(), addr, 64, time.Time{}, iface.AddrGlobal)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "AddAddr must not block for the DAD window")

	_, ok := tables.GetAddrForType(iface.AddrGlobal)
	assert.False(t, ok, "address must stay tentative until DAD resolves")

	clk.now = clk.now.Add(icmpv6.DefaultDADTimeout)
	tables.AgeSweep()

	got, ok := tables.GetAddrForType(iface.AddrGlobal)
	require.True(t, ok, "address must become usable once DAD's deadline has passed")
	assert.Equal(t, addr, got.Addr)
}
