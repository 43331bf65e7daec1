package ipv6pkt_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/ethernet"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/ipv6pkt"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

var (
	self      = wire.EtherAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	localAddr = netip.MustParseAddr("2001:db8::1")
	peerAddr  = netip.MustParseAddr("2001:db8::2")
)

// fakeUpper records every datagram handed to it by [ipv6pkt.Pipeline]'s
// next-header dispatch.
type fakeUpper struct {
	hdr     wire.IPv6Header
	payload []byte
	called  bool
}

func (f *fakeUpper) HandleIPv6(_ context.Context, hdr wire.IPv6Header, payload *bufpool.Buffer, _ wire.EtherAddr) {
	f.hdr = hdr
	f.payload = append([]byte(nil), payload.Bytes()...)
	f.called = true
	payload.Release()
}

// fakeResolver is a [ipv6pkt.NeighborResolver] test double.
type fakeResolver struct {
	ether wire.EtherAddr
	ok    bool
}

func (r *fakeResolver) Resolve(_ context.Context, _ netip.Addr) (wire.EtherAddr, bool) {
	return r.ether, r.ok
}

func newTestPipeline(t *testing.T) (*ipv6pkt.Pipeline, *iface.Tables, *bufpool.Queue[*bufpool.Buffer]) {
	t.Helper()

	clk := stubClock{now: time.Unix(1700000000, 0)}
	logger := slogutil.NewDiscardLogger()
	tables := iface.New(logger, clk)
	require.NoError(t, tables.AddAddr(context.Background(), localAddr, 64, time.Time{}, iface.AddrGlobal))

	egress := bufpool.NewQueue[*bufpool.Buffer](0)
	link := ethernet.New(logger, self, nil, egress)
	p := ipv6pkt.New(logger, tables, link)
	link.SetIPv6Handler(p)

	return p, tables, egress
}

func udpDatagram(t *testing.T, src, dst netip.Addr, hopLimit uint8, payload []byte) *bufpool.Buffer {
	t.Helper()

	hdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: hopLimit, Src: src, Dst: dst, PayloadLen: uint16(len(payload))}
	data, err := hdr.MarshalBinary()
	require.NoError(t, err)
	data = append(data, payload...)

	return bufpool.Wrap(data)
}

// TestPipeline_HandleIPv6_DispatchesByNextHeader exercises spec.md §4.4's
// receive path: a UDP datagram addressed to this interface's own address is
// handed to the UDP handler with the header and payload intact.
func TestPipeline_HandleIPv6_DispatchesByNextHeader(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	upper := &fakeUpper{}
	p.SetUDPHandler(upper)

	payload := []byte("hello")
	buf := udpDatagram(t, peerAddr, localAddr, 64, payload)

	p.HandleIPv6(context.Background(), buf, wire.EtherAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})

	require.True(t, upper.called)
	assert.Equal(t, peerAddr, upper.hdr.Src)
	assert.Equal(t, localAddr, upper.hdr.Dst)
	assert.Equal(t, payload, upper.payload)
}

// TestPipeline_HandleIPv6_DropsDatagramNotAddressedToUs covers spec.md §4.4's
// destination check: a unicast datagram for an address this interface
// doesn't own is dropped before dispatch.
func TestPipeline_HandleIPv6_DropsDatagramNotAddressedToUs(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	upper := &fakeUpper{}
	p.SetUDPHandler(upper)

	other := netip.MustParseAddr("2001:db8::99")
	buf := udpDatagram(t, peerAddr, other, 64, []byte("x"))

	p.HandleIPv6(context.Background(), buf, wire.EtherAddr{})

	assert.False(t, upper.called)
}

// TestPipeline_HandleIPv6_HopLimitZero_SendsTimeExceeded covers spec.md
// §4.4's "hop-limit > 0 else send TTL-expired" rule.
func TestPipeline_HandleIPv6_HopLimitZero_SendsTimeExceeded(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	var gotHdr wire.IPv6Header
	var called bool
	p.SetICMPErrorSender(timeExceededFunc(func(_ context.Context, hdr wire.IPv6Header, _ []byte, _ wire.EtherAddr) {
		called = true
		gotHdr = hdr
	}))

	buf := udpDatagram(t, peerAddr, localAddr, 0, []byte("x"))
	p.HandleIPv6(context.Background(), buf, wire.EtherAddr{})

	require.True(t, called)
	assert.Equal(t, peerAddr, gotHdr.Src)
}

type timeExceededFunc func(ctx context.Context, hdr wire.IPv6Header, original []byte, dstEther wire.EtherAddr)

func (f timeExceededFunc) SendTimeExceeded(ctx context.Context, hdr wire.IPv6Header, original []byte, dstEther wire.EtherAddr) {
	f(ctx, hdr, original, dstEther)
}

// TestPipeline_Send_MulticastDestination_NeedsNoNeighborResolution covers
// spec.md §9 design note (d): a multicast destination's Ethernet address is
// derived directly, without consulting the neighbor cache.
func TestPipeline_Send_MulticastDestination_NeedsNoNeighborResolution(t *testing.T) {
	p, _, egress := newTestPipeline(t)

	dst := netip.MustParseAddr("ff02::1")
	hdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: 64, Src: localAddr, Dst: dst}

	err := p.Send(context.Background(), hdr, []byte("payload"))
	require.NoError(t, err)

	require.Equal(t, 1, egress.Len())
}

// TestPipeline_Send_UnresolvedNeighbor_DropsSilently covers spec.md §4.4
// step 4: if the neighbor isn't yet resolvable, Send drops the datagram
// rather than erroring (a solicitation was queued as a side effect of
// Resolve instead).
func TestPipeline_Send_UnresolvedNeighbor_DropsSilently(t *testing.T) {
	p, _, egress := newTestPipeline(t)
	p.SetNeighborResolver(&fakeResolver{ok: false})

	hdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: 64, Src: localAddr, Dst: peerAddr}
	err := p.Send(context.Background(), hdr, []byte("payload"))
	require.NoError(t, err)

	assert.Equal(t, 0, egress.Len())
}

// TestPipeline_Send_ResolvedNeighbor_Transmits covers the successful
// transmit path once the neighbor cache has a usable entry.
func TestPipeline_Send_ResolvedNeighbor_Transmits(t *testing.T) {
	p, _, egress := newTestPipeline(t)
	peerEther := wire.EtherAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	p.SetNeighborResolver(&fakeResolver{ether: peerEther, ok: true})

	hdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: 64, Src: localAddr, Dst: peerAddr}
	err := p.Send(context.Background(), hdr, []byte("payload"))
	require.NoError(t, err)

	frame, ok := egress.Pop()
	require.True(t, ok)
	var ethHdr wire.EtherHeader
	require.NoError(t, ethHdr.UnmarshalBinary(frame.Bytes()))
	assert.Equal(t, peerEther, ethHdr.Dst)
	assert.Equal(t, self, ethHdr.Src)
}
