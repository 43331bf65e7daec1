// Package ethernet implements esix's link-layer boundary: parsing received
// frames and dispatching their payload by EtherType, and building outgoing
// frames for the egress queue (spec.md §4.1).  It is grounded on the
// teacher's internal/dhcpsvc handler dispatch (handler6.go), generalized
// from a gopacket-decoded layer switch to esix's own wire.EtherHeader, since
// spec.md's dispatch table has exactly one entry worth decoding (IPv6) and
// everything else is dropped unparsed.
package ethernet

import (
	"context"
	"log/slog"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/errors"
)

// IPv6Handler receives the decapsulated payload of an Ethernet frame whose
// EtherType was 0x86dd, along with the frame's source address (spec.md §4.1,
// §4.4 "Ethernet calls... on dispatch").
type IPv6Handler interface {
	HandleIPv6(ctx context.Context, payload *bufpool.Buffer, src wire.EtherAddr)
}

// Layer is the Ethernet boundary: it decides whether a received frame is for
// this interface, strips the header, and dispatches by EtherType; on send it
// prepends the header and hands the frame to egress (spec.md §4.1).
//
// Layer is not safe for concurrent use; see internal/iface.Tables for the
// single-worker-goroutine rationale this package shares.
type Layer struct {
	logger *slog.Logger

	// self is this interface's Ethernet address, used both to recognize
	// unicast frames addressed to it and as the source address on send.
	self wire.EtherAddr

	ipv6   IPv6Handler
	egress *bufpool.Queue[*bufpool.Buffer]
}

// New returns a Layer for the interface whose link-layer address is self.
// egress receives frames built by [Layer.Send] and must not be nil. ipv6 may
// be nil at construction time and installed later via [Layer.SetIPv6Handler]
// — esix's ipv6pkt.Pipeline itself depends on this Layer, so the two must be
// constructed in two steps.
func New(
	logger *slog.Logger,
	self wire.EtherAddr,
	ipv6 IPv6Handler,
	egress *bufpool.Queue[*bufpool.Buffer],
) (l *Layer) {
	return &Layer{
		logger: logger,
		self:   self,
		ipv6:   ipv6,
		egress: egress,
	}
}

// SetIPv6Handler installs the handler for decapsulated IPv6 payloads.
func (l *Layer) SetIPv6Handler(h IPv6Handler) { l.ipv6 = h }

// Receive processes one frame taken off the ingress queue.  frame is
// released by Receive in every case: either immediately, if the frame is
// dropped, or by the handler it is dispatched to (spec.md §4.1 "failure
// semantics: malformed frames are silently dropped").
func (l *Layer) Receive(ctx context.Context, frame *bufpool.Buffer) {
	data := frame.Bytes()

	var hdr wire.EtherHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		l.logger.DebugContext(ctx, "dropping short frame", slogErr(err))
		frame.Release()

		return
	}

	if !hdr.Dst.Equal(l.self) && !hdr.Dst.IsMulticast() && hdr.Dst != wire.EtherBroadcast {
		frame.Release()

		return
	}

	if hdr.Type != wire.EtherTypeIPv6 {
		frame.Release()

		return
	}

	payload := bufpool.Wrap(data[wire.EtherHeaderLen:])
	if l.ipv6 == nil {
		payload.Release()

		return
	}
	l.ipv6.HandleIPv6(ctx, payload, hdr.Src)
}

// Send builds an Ethernet frame around payload addressed to dst and enqueues
// it for egress.  payload is copied into a newly allocated frame buffer;
// Send keeps no reference to it.
func (l *Layer) Send(ctx context.Context, dst wire.EtherAddr, payload []byte) (err error) {
	hdr := wire.EtherHeader{Dst: dst, Src: l.self, Type: wire.EtherTypeIPv6}

	head, err := hdr.MarshalBinary()
	if err != nil {
		return errors.Annotate(err, "ethernet: building header: %w")
	}

	frame := bufpool.New(len(head) + len(payload))
	data := frame.Bytes()
	copy(data, head)
	copy(data[len(head):], payload)

	if err = l.egress.Push(frame); err != nil {
		frame.Release()
		l.logger.DebugContext(ctx, "dropping outgoing frame", slogErr(err))

		return errors.Annotate(err, "ethernet: enqueueing frame: %w")
	}

	return nil
}

// slogErr is a small helper matching the teacher's terse
// slogutil.KeyError-ish call sites without importing a package just for one
// attribute key.
func slogErr(err error) slog.Attr {
	return slog.Any("err", err)
}
