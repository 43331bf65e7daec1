package tcp

import (
	"context"
	"net/netip"

	"github.com/esix-project/esix/internal/wire"
)

// step applies one incoming segment to socket s, keyed by its flags and s's
// current state (spec.md §4.6 "Segment handling").
func (t *Table) step(ctx context.Context, s *Socket, local, remote netip.AddrPort, hdr wire.TCPHeader, body []byte) {
	switch {
	case hdr.Flags&wire.TCPFlagRST != 0:
		t.onReset(s)
	case hdr.Flags&wire.TCPFlagSYN != 0 && hdr.Flags&wire.TCPFlagACK != 0:
		t.onSynAck(ctx, s, hdr)
	case hdr.Flags&wire.TCPFlagSYN != 0:
		t.onSyn(ctx, s, local, remote, hdr)
	case hdr.Flags&wire.TCPFlagFIN != 0:
		t.onFin(ctx, s)
	case hdr.Flags&wire.TCPFlagACK != 0:
		t.onAck(ctx, s, hdr, body)
	}
}

// onSyn implements "SYN on listen": a child socket is created for the
// client's 4-tuple, moved to syn_received, and replied to with SYN|ACK.
func (t *Table) onSyn(ctx context.Context, listener *Socket, local, remote netip.AddrPort, hdr wire.TCPHeader) {
	if listener.State != StateListen {
		return
	}
	if len(listener.accept) >= listener.backlog {
		return
	}

	child := newSocket(local)
	child.Remote = remote
	child.State = StateSynReceived
	child.rcvNxt = hdr.Seq + 1
	child.iss = hdr.Seq ^ 0x5a5a5a5a // deterministic-but-distinct ISS; esix does not need cryptographic unpredictability for a single-host test harness.
	child.sndNxt = child.iss + 1
	t.sockets = append(t.sockets, child)

	if err := t.sendSegment(ctx, child, wire.TCPFlagSYN|wire.TCPFlagACK, child.iss, child.rcvNxt, nil); err != nil {
		t.logger.DebugContext(ctx, "sending syn|ack failed")

		return
	}

	listener.accept = append(listener.accept, child)
}

// onSynAck implements "SYN|ACK on syn_sent".
func (t *Table) onSynAck(ctx context.Context, s *Socket, hdr wire.TCPHeader) {
	if s.State != StateSynSent || hdr.Ack != s.sndNxt {
		return
	}
	s.State = StateEstablished
	s.rcvNxt = hdr.Seq + 1

	_ = t.sendSegment(ctx, s, wire.TCPFlagACK, s.sndNxt, s.rcvNxt, nil)
}

// onAck implements "ACK / PSH|ACK on established or syn_received".
func (t *Table) onAck(ctx context.Context, s *Socket, hdr wire.TCPHeader, body []byte) {
	switch s.State {
	case StateSynReceived:
		s.State = StateEstablished
	case StateEstablished:
	case StateFinWait1:
		s.State = StateFinWait2

		return
	case StateLastAck:
		s.State = StateClosed
		t.remove(s)

		return
	default:
		return
	}

	t.ackSweep(hdr.Ack, s)

	if hdr.Seq != s.rcvNxt {
		// Out-of-order segment: immediate duplicate ACK for the expected
		// sequence (spec.md §4.6 "duplicate-ack policy").
		_ = t.sendSegment(ctx, s, wire.TCPFlagACK, s.sndNxt, s.rcvNxt, nil)

		return
	}

	if len(body) == 0 {
		return
	}

	if len(s.received) < MaxReceiveQueue {
		s.received = append(s.received, receivedSegment{data: append([]byte(nil), body...)})
	}
	s.rcvNxt += uint32(len(body))

	_ = t.sendSegment(ctx, s, wire.TCPFlagACK, s.sndNxt, s.rcvNxt, nil)
}

// onFin implements "FIN / FIN|ACK".
func (t *Table) onFin(ctx context.Context, s *Socket) {
	switch s.State {
	case StateEstablished, StateSynReceived:
		s.rcvNxt++
		_ = t.sendSegment(ctx, s, wire.TCPFlagFIN|wire.TCPFlagACK, s.sndNxt, s.rcvNxt, nil)
		s.sndNxt++
		s.State = StateFinWait2
	case StateFinWait1:
		_ = t.sendSegment(ctx, s, wire.TCPFlagACK, s.sndNxt, s.rcvNxt+1, nil)
		s.State = StateClosed
		t.remove(s)
	}
}

// onReset implements "RST / RST|ACK": discard the queue and move to
// closed.
func (t *Table) onReset(s *Socket) {
	s.received = nil
	s.sent = nil
	s.State = StateClosed
	t.remove(s)
}

// ackSweep removes sent-packet entries acknowledged by ack (spec.md §4.6
// "call the socket retransmit sweep with the incoming ack to remove
// acknowledged sent-packets").
func (t *Table) ackSweep(ack uint32, s *Socket) {
	kept := s.sent[:0]
	for _, seg := range s.sent {
		if seqLess(seg.seq+uint32(len(seg.data)), ack+1) {
			continue
		}
		kept = append(kept, seg)
	}
	s.sent = kept
}

// seqLess reports whether a precedes b in 32-bit sequence-number space,
// accounting for wraparound.
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}
