package udp_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/udp"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	localAddr  = netip.MustParseAddr("2001:db8::1")
	remoteAddr = netip.MustParseAddr("2001:db8::2")
)

// fakeDemux records every delivery attempt, mirroring internal/socket's
// Table.DeliverUDP seam.
type fakeDemux struct {
	deliver bool
	local   netip.AddrPort
	remote  netip.AddrPort
	payload []byte
	called  bool
}

func (d *fakeDemux) DeliverUDP(_ context.Context, local, remote netip.AddrPort, payload *bufpool.Buffer) bool {
	d.called = true
	d.local = local
	d.remote = remote
	d.payload = append([]byte(nil), payload.Bytes()...)
	payload.Release()

	return d.deliver
}

// fakeErrorSender records Destination Unreachable requests.
type fakeErrorSender struct {
	called bool
	code   uint8
}

func (e *fakeErrorSender) SendDestUnreachable(_ context.Context, code uint8, _ wire.IPv6Header, _ []byte) {
	e.called = true
	e.code = code
}

// fakeIPv6Sender records every datagram [udp.Layer.Send] hands to the IPv6
// layer, mirroring internal/icmpv6's fakeSender pattern.
type fakeIPv6Sender struct {
	hdr     wire.IPv6Header
	payload []byte
}

func (s *fakeIPv6Sender) Send(_ context.Context, hdr wire.IPv6Header, payload []byte) error {
	s.hdr = hdr
	s.payload = append([]byte(nil), payload...)

	return nil
}

func udpSegment(t *testing.T, src, dst netip.Addr, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()

	hdr := wire.UDPHeader{SrcPort: srcPort, DstPort: dstPort, Length: uint16(wire.UDPHeaderLen + len(payload))}
	data, err := hdr.MarshalBinary()
	require.NoError(t, err)
	data = append(data, payload...)

	cs := wire.UpperLayerChecksum(src, dst, wire.NextHeaderUDP, data)
	data[6] = byte(cs >> 8)
	data[7] = byte(cs)

	return data
}

// TestLayer_HandleIPv6_DeliversToSocket exercises spec.md §8 scenario 4: a
// UDP datagram addressed to a bound socket is demultiplexed and delivered
// with both endpoints' (addr, port) intact.
func TestLayer_HandleIPv6_DeliversToSocket(t *testing.T) {
	demux := &fakeDemux{deliver: true}
	errs := &fakeErrorSender{}
	l := udp.New(slogutil.NewDiscardLogger(), demux, errs, &fakeIPv6Sender{})

	payload := []byte("echo")
	data := udpSegment(t, remoteAddr, localAddr, 5353, 7, payload)
	ipHdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: 64, Src: remoteAddr, Dst: localAddr}

	l.HandleIPv6(context.Background(), ipHdr, bufpool.Wrap(data), wire.EtherAddr{})

	require.True(t, demux.called)
	assert.Equal(t, netip.AddrPortFrom(localAddr, 7), demux.local)
	assert.Equal(t, netip.AddrPortFrom(remoteAddr, 5353), demux.remote)
	assert.Equal(t, payload, demux.payload)
	assert.False(t, errs.called, "a delivered datagram must not also trigger a destination-unreachable reply")
}

// TestLayer_HandleIPv6_NoSocket_SendsDestUnreachable covers the undeliverable
// path: a unicast datagram with no matching socket gets a Destination
// Unreachable / Port Unreachable reply.
func TestLayer_HandleIPv6_NoSocket_SendsDestUnreachable(t *testing.T) {
	demux := &fakeDemux{deliver: false}
	errs := &fakeErrorSender{}
	l := udp.New(slogutil.NewDiscardLogger(), demux, errs, &fakeIPv6Sender{})

	data := udpSegment(t, remoteAddr, localAddr, 5353, 7, []byte("x"))
	ipHdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: 64, Src: remoteAddr, Dst: localAddr}

	l.HandleIPv6(context.Background(), ipHdr, bufpool.Wrap(data), wire.EtherAddr{})

	require.True(t, errs.called)
	assert.Equal(t, wire.CodePortUnreachable, errs.code)
}

// TestLayer_HandleIPv6_MulticastDest_NoSocket_NoErrorReply covers spec.md
// §4.5: an undeliverable multicast datagram is dropped silently, since
// Destination Unreachable must never be sent in reply to a multicast.
func TestLayer_HandleIPv6_MulticastDest_NoSocket_NoErrorReply(t *testing.T) {
	demux := &fakeDemux{deliver: false}
	errs := &fakeErrorSender{}
	l := udp.New(slogutil.NewDiscardLogger(), demux, errs, &fakeIPv6Sender{})

	mcast := netip.MustParseAddr("ff02::1")
	data := udpSegment(t, remoteAddr, mcast, 5353, 7, []byte("x"))
	ipHdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: 64, Src: remoteAddr, Dst: mcast}

	l.HandleIPv6(context.Background(), ipHdr, bufpool.Wrap(data), wire.EtherAddr{})

	assert.False(t, errs.called)
}

// TestLayer_HandleIPv6_BadChecksum_Dropped covers spec.md §4.5's receive
// validation: a corrupted checksum drops the datagram before any demux
// lookup.
func TestLayer_HandleIPv6_BadChecksum_Dropped(t *testing.T) {
	demux := &fakeDemux{deliver: true}
	l := udp.New(slogutil.NewDiscardLogger(), demux, &fakeErrorSender{}, &fakeIPv6Sender{})

	data := udpSegment(t, remoteAddr, localAddr, 5353, 7, []byte("x"))
	data[6] ^= 0xff // corrupt the checksum.
	ipHdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: 64, Src: remoteAddr, Dst: localAddr}

	l.HandleIPv6(context.Background(), ipHdr, bufpool.Wrap(data), wire.EtherAddr{})

	assert.False(t, demux.called)
}

// TestLayer_HandleIPv6_ShortDatagram_Dropped covers the length check ahead
// of even parsing a header.
func TestLayer_HandleIPv6_ShortDatagram_Dropped(t *testing.T) {
	demux := &fakeDemux{deliver: true}
	l := udp.New(slogutil.NewDiscardLogger(), demux, &fakeErrorSender{}, &fakeIPv6Sender{})

	ipHdr := wire.IPv6Header{NextHeader: wire.NextHeaderUDP, HopLimit: 64, Src: remoteAddr, Dst: localAddr}
	l.HandleIPv6(context.Background(), ipHdr, bufpool.Wrap([]byte{1, 2, 3}), wire.EtherAddr{})

	assert.False(t, demux.called)
}

// TestLayer_Send_FillsChecksumAndHandsToIPv6 covers spec.md §4.5's send
// path end to end.
func TestLayer_Send_FillsChecksumAndHandsToIPv6(t *testing.T) {
	ipv6 := &fakeIPv6Sender{}
	l := udp.New(slogutil.NewDiscardLogger(), nil, nil, ipv6)

	src := netip.AddrPortFrom(localAddr, 7)
	dst := netip.AddrPortFrom(remoteAddr, 5353)
	payload := []byte("echo")

	require.NoError(t, l.Send(context.Background(), src, dst, payload))

	require.Len(t, ipv6.payload, wire.UDPHeaderLen+len(payload))
	assert.Equal(t, localAddr, ipv6.hdr.Src)
	assert.Equal(t, remoteAddr, ipv6.hdr.Dst)
	assert.Equal(t, wire.NextHeaderUDP, ipv6.hdr.NextHeader)

	var hdr wire.UDPHeader
	require.NoError(t, hdr.UnmarshalBinary(ipv6.payload))
	assert.Equal(t, uint16(7), hdr.SrcPort)
	assert.Equal(t, uint16(5353), hdr.DstPort)

	cs := wire.UpperLayerChecksum(src.Addr(), dst.Addr(), wire.NextHeaderUDP, ipv6.payload)
	assert.Zero(t, cs, "a correctly-filled checksum must verify to zero")
}
