package tcp

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/esixerr"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
)

// IPv6Sender is the subset of [ipv6pkt.Pipeline] Table needs to transmit
// segments.
type IPv6Sender interface {
	Send(ctx context.Context, hdr wire.IPv6Header, payload []byte) error
}

// Table is esix's TCP socket table: every [Socket] for one interface, plus
// the state machine and retransmit sweep that act on them (spec.md §4.6,
// §4.7).
//
// Table is not safe for concurrent use; see internal/iface.Tables for the
// single-worker-goroutine rationale this package shares.
type Table struct {
	logger *slog.Logger
	clock  timeutil.Clock
	ipv6   IPv6Sender

	sockets []*Socket
}

// New returns an empty Table.
func New(logger *slog.Logger, clock timeutil.Clock, ipv6 IPv6Sender) (t *Table) {
	return &Table{logger: logger, clock: clock, ipv6: ipv6}
}

// Listen creates a socket bound to local in [StateListen] with the given
// accept-queue capacity (spec.md §4.7 "listen").
func (t *Table) Listen(local netip.AddrPort, backlog int) (s *Socket, err error) {
	if _, found := t.find(local, netip.AddrPort{}); found {
		return nil, esixerr.ErrInvalidArgument
	}
	s = newSocket(local)
	s.State = StateListen
	s.backlog = backlog
	t.sockets = append(t.sockets, s)

	return s, nil
}

// Connect creates a socket bound to local and begins the 3-way handshake
// toward remote: it sends a SYN and moves the socket to [StateSynSent]
// (spec.md §4.7 "connect").
func (t *Table) Connect(ctx context.Context, local, remote netip.AddrPort, initialSeq uint32) (s *Socket, err error) {
	s = newSocket(local)
	s.Remote = remote
	s.iss = initialSeq
	s.sndNxt = initialSeq + 1
	s.State = StateSynSent
	t.sockets = append(t.sockets, s)

	if err = t.sendSegment(ctx, s, wire.TCPFlagSYN, initialSeq, 0, nil); err != nil {
		return nil, err
	}

	return s, nil
}

// Send enqueues payload as a sent-packet and emits PSH|ACK, advancing the
// socket's sequence number (spec.md §4.7 "send/sendto: TCP requires
// established").
func (t *Table) Send(ctx context.Context, s *Socket, payload []byte) (err error) {
	if s.State != StateEstablished {
		return esixerr.ErrInvalidArgument
	}

	seq := s.sndNxt
	now := t.clock.Now()
	s.sent = append(s.sent, sentSegment{
		seq:     seq,
		data:    append([]byte(nil), payload...),
		sentAt:  now,
		retryAt: now.Add(InitialRTO),
	})
	s.sndNxt += uint32(len(payload))

	return t.sendSegment(ctx, s, wire.TCPFlagPSH|wire.TCPFlagACK, seq, s.rcvNxt, payload)
}

// Recv pops the oldest queued received-packet, if any.
func (t *Table) Recv(s *Socket) (data []byte, ok bool) {
	if len(s.received) == 0 {
		return nil, false
	}
	data = s.received[0].data
	s.received = s.received[1:]

	return data, true
}

// Accept pops the oldest completed child connection, if any.
func (t *Table) Accept(s *Socket) (child *Socket, ok bool) {
	if len(s.accept) == 0 {
		return nil, false
	}
	child = s.accept[0]
	s.accept = s.accept[1:]

	return child, true
}

// Close implements esix's resolution of spec.md §9 open question (a): a
// close on an established connection sends FIN, not RST, and moves to
// fin_wait_1 (last_ack from close_wait) — the bug the source exhibited is
// fixed rather than replicated. A socket in any other state is removed
// immediately without sending a segment.
func (t *Table) Close(ctx context.Context, s *Socket) (err error) {
	switch s.State {
	case StateEstablished, StateCloseWait:
		err = t.sendSegment(ctx, s, wire.TCPFlagFIN|wire.TCPFlagACK, s.sndNxt, s.rcvNxt, nil)
		s.sndNxt++
		if s.State == StateEstablished {
			s.State = StateFinWait1
		} else {
			s.State = StateLastAck
		}

		return err
	default:
		s.State = StateClosed
		t.remove(s)

		return nil
	}
}

func (t *Table) find(local, remote netip.AddrPort) (s *Socket, ok bool) {
	var listener *Socket
	for _, s := range t.sockets {
		if s.Local != local {
			continue
		}
		if s.Remote == remote {
			return s, true
		}
		if s.State == StateListen && remote != (netip.AddrPort{}) {
			listener = s
		}
	}
	if listener != nil {
		return listener, true
	}

	return nil, false
}

func (t *Table) remove(s *Socket) {
	for i, cand := range t.sockets {
		if cand == s {
			t.sockets = append(t.sockets[:i], t.sockets[i+1:]...)

			return
		}
	}
}

// sendSegment builds and transmits one TCP segment.
func (t *Table) sendSegment(ctx context.Context, s *Socket, flags uint8, seq, ack uint32, payload []byte) (err error) {
	defer func() { err = errors.Annotate(err, "tcp: sending: %w") }()

	hdr := wire.TCPHeader{
		SrcPort: s.Local.Port(),
		DstPort: s.Remote.Port(),
		Seq:     seq,
		Ack:     ack,
		Flags:   flags,
		Window:  AdvertisedWindow,
	}
	data, err := hdr.MarshalBinary()
	if err != nil {
		return err
	}
	data = append(data, payload...)

	cs := wire.UpperLayerChecksum(s.Local.Addr(), s.Remote.Addr(), wire.NextHeaderTCP, data)
	data[16] = byte(cs >> 8)
	data[17] = byte(cs)

	ipHdr := wire.IPv6Header{
		NextHeader: wire.NextHeaderTCP,
		HopLimit:   wire.DefaultHopLimit,
		Src:        s.Local.Addr(),
		Dst:        s.Remote.Addr(),
	}

	return t.ipv6.Send(ctx, ipHdr, data)
}

// HandleIPv6 implements [ipv6pkt.UpperHandler]: it dispatches an incoming
// segment by flags and the matched socket's state (spec.md §4.6 "Segment
// handling, keyed by flags and state"). payload is released in every path.
func (t *Table) HandleIPv6(ctx context.Context, ipHdr wire.IPv6Header, payload *bufpool.Buffer, _ wire.EtherAddr) {
	defer payload.Release()

	data := payload.Bytes()
	if len(data) < wire.TCPHeaderLen {
		return
	}

	if wire.UpperLayerChecksum(ipHdr.Src, ipHdr.Dst, wire.NextHeaderTCP, data) != 0 {
		t.logger.DebugContext(ctx, "dropping tcp segment with bad checksum")

		return
	}

	var hdr wire.TCPHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		return
	}
	body := data[wire.TCPHeaderLen:]

	local := netip.AddrPortFrom(ipHdr.Dst, hdr.DstPort)
	remote := netip.AddrPortFrom(ipHdr.Src, hdr.SrcPort)

	s, ok := t.find(local, remote)
	if !ok {
		if hdr.Flags&wire.TCPFlagRST == 0 {
			t.sendResetFor(ctx, local, remote, hdr)
		}

		return
	}

	t.step(ctx, s, local, remote, hdr, body)
}

// sendResetFor replies RST|ACK to a segment with no matching socket (spec.md
// §4.6 "Unexpected segment with no listener: send RST|ACK").
func (t *Table) sendResetFor(ctx context.Context, local, remote netip.AddrPort, hdr wire.TCPHeader) {
	ghost := &Socket{Local: local, Remote: remote}
	_ = t.sendSegment(ctx, ghost, wire.TCPFlagRST|wire.TCPFlagACK, hdr.Ack, hdr.Seq+1, nil)
}
