package socket_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/esix-project/esix/internal/esixerr"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/socket"
	"github.com/esix-project/esix/internal/tcp"
	"github.com/esix-project/esix/internal/udp"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSender discards everything it is asked to transmit, satisfying both
// udp.IPv6Sender and tcp.IPv6Sender.
type noopSender struct{}

func (noopSender) Send(context.Context, wire.IPv6Header, []byte) error { return nil }

type noopErrorSender struct{}

func (noopErrorSender) SendDestUnreachable(context.Context, uint8, wire.IPv6Header, []byte) {}

var boundAddr = netip.MustParseAddr("2001:db8::1")

func newTestTable(t *testing.T) *socket.Table {
	t.Helper()

	logger := slogutil.NewDiscardLogger()
	tables := iface.New(logger, stubClock{})
	require.NoError(t, tables.AddAddr(context.Background(), boundAddr, 64, time.Time{}, iface.AddrGlobal))

	tcpTable := tcp.New(logger, stubClock{}, noopSender{})
	udpLayer := udp.New(logger, nil, noopErrorSender{}, noopSender{})
	st := socket.New(logger, tables, tcpTable, udpLayer)
	udpLayer.SetDemux(st)

	return st
}

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Unix(1700000000, 0) }

func TestTable_Socket_RejectsBadFamilyOrType(t *testing.T) {
	st := newTestTable(t)

	_, err := st.Socket(99, socket.TypeStream)
	assert.ErrorIs(t, err, esixerr.ErrInvalidArgument)

	_, err = st.Socket(socket.FamilyInet6, 99)
	assert.ErrorIs(t, err, esixerr.ErrInvalidArgument)
}

func TestTable_Socket_EnforcesMaxSockets(t *testing.T) {
	st := newTestTable(t)

	for i := 0; i < socket.MaxSockets; i++ {
		_, err := st.Socket(socket.FamilyInet6, socket.TypeDgram)
		require.NoError(t, err)
	}

	_, err := st.Socket(socket.FamilyInet6, socket.TypeDgram)
	assert.ErrorIs(t, err, esixerr.ErrTableFull)
}

func TestTable_Bind_EphemeralPort(t *testing.T) {
	st := newTestTable(t)

	h, err := st.Socket(socket.FamilyInet6, socket.TypeDgram)
	require.NoError(t, err)

	err = st.Bind(h, netip.AddrPortFrom(netip.IPv6Unspecified(), 0))
	require.NoError(t, err)
}

func TestTable_Bind_RejectsUnknownAddress(t *testing.T) {
	st := newTestTable(t)

	h, err := st.Socket(socket.FamilyInet6, socket.TypeDgram)
	require.NoError(t, err)

	unknown := netip.MustParseAddr("2001:db8::dead")
	err = st.Bind(h, netip.AddrPortFrom(unknown, 53))
	assert.ErrorIs(t, err, esixerr.ErrInvalidArgument)
}

func TestTable_Bind_RejectsPortInUse(t *testing.T) {
	st := newTestTable(t)

	h1, err := st.Socket(socket.FamilyInet6, socket.TypeDgram)
	require.NoError(t, err)
	require.NoError(t, st.Bind(h1, netip.AddrPortFrom(boundAddr, 5353)))

	h2, err := st.Socket(socket.FamilyInet6, socket.TypeDgram)
	require.NoError(t, err)
	err = st.Bind(h2, netip.AddrPortFrom(boundAddr, 5353))
	assert.ErrorIs(t, err, esixerr.ErrInvalidArgument)
}

func TestTable_Recv_WouldBlockWhenEmpty(t *testing.T) {
	st := newTestTable(t)

	h, err := st.Socket(socket.FamilyInet6, socket.TypeDgram)
	require.NoError(t, err)
	require.NoError(t, st.Bind(h, netip.AddrPortFrom(boundAddr, 5353)))

	_, _, err = st.Recv(h, 0)
	assert.ErrorIs(t, err, esixerr.ErrWouldBlock)
}

func TestTable_ListenAndClose(t *testing.T) {
	st := newTestTable(t)

	h, err := st.Socket(socket.FamilyInet6, socket.TypeStream)
	require.NoError(t, err)
	require.NoError(t, st.Bind(h, netip.AddrPortFrom(boundAddr, 80)))
	require.NoError(t, st.Listen(h, 4))

	state, ok := st.State(h)
	require.True(t, ok)
	assert.Equal(t, tcp.StateListen, state)

	require.NoError(t, st.Close(context.Background(), h))
	_, ok = st.State(h)
	assert.False(t, ok)
}
