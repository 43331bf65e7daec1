package socket

import (
	"context"
	"net/netip"

	"github.com/esix-project/esix/internal/esixerr"
	"github.com/esix-project/esix/internal/tcp"

	"github.com/AdguardTeam/golibs/errors"
)

// Listen moves a TCP socket from reserved to listen (spec.md §4.7 "listen:
// requires state reserved, transitions to listen").
func (t *Table) Listen(h Handle, backlog int) (err error) {
	e, ok := t.slots[h]
	if !ok {
		return esixerr.ErrInvalidArgument
	}
	if e.proto != TypeStream || e.state != tcp.StateReserved {
		return esixerr.ErrInvalidArgument
	}

	s, err := t.tcp.Listen(e.local, backlog)
	if err != nil {
		return err
	}
	e.tcpSocket = s
	e.state = tcp.StateListen
	t.tcpByNode[s] = h

	return nil
}

// Connect fixes the remote tuple for h (spec.md §4.7 "connect"). For UDP it
// moves straight to established; for TCP it emits SYN and moves to
// syn_sent, and the caller polls [Table.State] for established.
func (t *Table) Connect(ctx context.Context, h Handle, remote netip.AddrPort, initialSeq uint32) (err error) {
	e, ok := t.slots[h]
	if !ok {
		return esixerr.ErrInvalidArgument
	}

	if e.proto == TypeDgram {
		e.remote = remote
		e.state = tcp.StateEstablished

		return nil
	}

	s, err := t.tcp.Connect(ctx, e.local, remote, initialSeq)
	if err != nil {
		return err
	}
	e.tcpSocket = s
	e.remote = remote
	e.state = tcp.StateSynSent
	t.tcpByNode[s] = h

	return nil
}

// State reports h's current connection state (spec.md §4.7 "the caller
// polls state for established").
func (t *Table) State(h Handle) (s tcp.State, ok bool) {
	e, found := t.slots[h]
	if !found {
		return s, false
	}
	if e.proto == TypeStream && e.tcpSocket != nil {
		return e.tcpSocket.State, true
	}

	return e.state, true
}

// Accept pops the first completed child connection on a listening TCP
// socket and returns its new handle (spec.md §4.7 "accept: pops the first
// child-socket queue-entry; returns its id").
func (t *Table) Accept(h Handle) (child Handle, ok bool) {
	e, found := t.slots[h]
	if !found || e.proto != TypeStream || e.tcpSocket == nil {
		return 0, false
	}

	cs, found := t.tcp.Accept(e.tcpSocket)
	if !found {
		return 0, false
	}

	child = t.allocSlot()
	t.slots[child] = &entry{
		proto:     TypeStream,
		state:     cs.State,
		local:     cs.Local,
		remote:    cs.Remote,
		tcpSocket: cs,
	}
	t.tcpByNode[cs] = child

	return child, true
}

// Send transmits payload on a connected socket (spec.md §4.7 "send: TCP
// requires established; UDP requires connected state for send").
func (t *Table) Send(ctx context.Context, h Handle, payload []byte) (err error) {
	e, ok := t.slots[h]
	if !ok {
		return esixerr.ErrInvalidArgument
	}
	if !e.remote.IsValid() {
		return esixerr.ErrInvalidArgument
	}

	return t.sendTo(ctx, e, e.remote, payload)
}

// SendTo transmits payload to an explicit destination (spec.md §4.7
// "sendto: ... or the explicit destination for sendto"). It is valid for
// UDP sockets only; a connection-oriented TCP socket must use Send.
func (t *Table) SendTo(ctx context.Context, h Handle, dst netip.AddrPort, payload []byte) (err error) {
	e, ok := t.slots[h]
	if !ok {
		return esixerr.ErrInvalidArgument
	}
	if e.proto != TypeDgram {
		return esixerr.ErrInvalidArgument
	}

	return t.sendTo(ctx, e, dst, payload)
}

func (t *Table) sendTo(ctx context.Context, e *entry, dst netip.AddrPort, payload []byte) (err error) {
	if e.proto == TypeDgram {
		if !e.local.IsValid() {
			return esixerr.ErrInvalidArgument
		}

		src := e.local
		if src.Addr().IsUnspecified() {
			addr, ok := t.tables.SourceAddrFor(dst.Addr())
			if !ok {
				return esixerr.ErrInvalidArgument
			}
			src = netip.AddrPortFrom(addr, src.Port())
		}

		return errors.Annotate(t.udp.Send(ctx, src, dst, payload), "socket: udp send: %w")
	}

	if e.tcpSocket == nil || e.tcpSocket.State != tcp.StateEstablished {
		return esixerr.ErrInvalidArgument
	}

	return errors.Annotate(t.tcp.Send(ctx, e.tcpSocket, payload), "socket: tcp send: %w")
}

// Recv pops the oldest queued receive for h (spec.md §4.7 "recv/recvfrom:
// pops the first received-packet queue-entry"). With nothing queued it
// returns [esixerr.ErrWouldBlock], whether or not [FlagDontWait] is set:
// esix has no blocking scheduler, so a true block is the caller's
// responsibility (SPEC_FULL.md §5 item 7).
func (t *Table) Recv(h Handle, flags int) (data []byte, from netip.AddrPort, err error) {
	e, ok := t.slots[h]
	if !ok {
		return nil, from, esixerr.ErrInvalidArgument
	}

	if e.proto == TypeStream {
		if e.tcpSocket == nil {
			return nil, from, esixerr.ErrInvalidArgument
		}
		d, found := t.tcp.Recv(e.tcpSocket)
		if !found {
			return nil, from, esixerr.ErrWouldBlock
		}

		return d, e.tcpSocket.Remote, nil
	}

	if len(e.queue) == 0 {
		return nil, from, esixerr.ErrWouldBlock
	}

	d := e.queue[0]
	if flags&FlagPeek == 0 {
		e.queue = e.queue[1:]
	}

	return d.data, d.from, nil
}

// Close tears h down (spec.md §4.7 "close"). For an established TCP socket
// this sends the esix-fixed FIN exchange via [tcp.Table.Close], not the
// spec's documented RST-on-close bug; see DESIGN.md open question (a). For
// UDP it frees the slot directly.
func (t *Table) Close(ctx context.Context, h Handle) (err error) {
	e, ok := t.slots[h]
	if !ok {
		return esixerr.ErrInvalidArgument
	}

	if e.proto == TypeStream && e.tcpSocket != nil {
		err = t.tcp.Close(ctx, e.tcpSocket)
		delete(t.tcpByNode, e.tcpSocket)
	}

	delete(t.slots, h)

	return err
}

// Reap frees handles whose underlying TCP connection reached
// [tcp.StateClosed] on its own — via the state machine's RST path or
// retransmission exhaustion, rather than an explicit Close call.
// [core.Core.PeriodicCallback] runs it right after [tcp.Table.Sweep].
func (t *Table) Reap() {
	for s, h := range t.tcpByNode {
		if s.State != tcp.StateClosed {
			continue
		}
		delete(t.tcpByNode, s)
		delete(t.slots, h)
	}
}
