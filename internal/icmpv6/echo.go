package icmpv6

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/wire"
)

// handleEchoRequest replies to an Echo Request with an Echo Reply carrying
// the same identifier, sequence, and payload (spec.md §4.3 "Echo Request:
// reply with Echo Reply having the same payload and ICMPv6
// identifier/sequence").
func (h *Handler) handleEchoRequest(ctx context.Context, ipHdr wire.IPv6Header, data []byte) {
	var req wire.Echo
	if err := req.UnmarshalBinary(data); err != nil {
		h.logger.DebugContext(ctx, "dropping malformed echo request", slog.Any("err", err))

		return
	}

	src, ok := h.tables.GetAddr(ipHdr.Dst, iface.AddrAny, -1)
	if !ok {
		return
	}

	reply := wire.Echo{
		Identifier: req.Identifier,
		Sequence:   req.Sequence,
		Data:       req.Data,
	}
	msg, err := reply.MarshalBinary()
	if err != nil {
		return
	}
	msg[0] = wire.ICMPv6TypeEchoReply

	if err = h.sendICMPv6(ctx, src.Addr, ipHdr.Src, wire.DefaultHopLimit, msg); err != nil {
		h.logger.DebugContext(ctx, "sending echo reply failed", slog.Any("err", err))
	}
}

// replySource picks the source address esix uses for a self-originated
// ICMPv6 error, preferring a link-local address as RFC 4443 recommends.
func (h *Handler) replySource() (addr netip.Addr, ok bool) {
	if e, found := h.tables.GetAddrForType(iface.AddrLinkLocal); found {
		return e.Addr, true
	}

	e, found := h.tables.GetAddrForType(iface.AddrGlobal)

	return e.Addr, found
}

// truncateOriginal caps original to the portion that fits in an ICMPv6
// error message without the total datagram exceeding 1280 bytes (spec.md
// §4.3 "capped at 1280 − headers bytes of original packet").
func truncateOriginal(original []byte) []byte {
	if len(original) > maxErrorPayload {
		return original[:maxErrorPayload]
	}

	return original
}

// SendTimeExceeded implements [ipv6pkt.ICMPErrorSender]: it builds and sends
// a Time Exceeded message carrying a truncated copy of the original
// datagram (spec.md §4.3 "TTL-expired and Destination Unreachable replies
// are sent only for non-ICMPv6 originators and are capped at
// 1280 − headers bytes of original packet").
func (h *Handler) SendTimeExceeded(ctx context.Context, hdr wire.IPv6Header, original []byte, _ wire.EtherAddr) {
	if hdr.NextHeader == wire.NextHeaderICMPv6 {
		return
	}

	src, ok := h.replySource()
	if !ok {
		return
	}

	h.sendICMPv6Error(ctx, wire.ICMPv6TypeTimeExceeded, 0, src, hdr.Src, original)
}

// SendDestUnreachable sends a Destination Unreachable message with the given
// code, e.g. Port Unreachable for a UDP datagram with no listening socket
// (spec.md §4.5 "on miss, send Destination Unreachable").
func (h *Handler) SendDestUnreachable(ctx context.Context, code uint8, originatorHdr wire.IPv6Header, original []byte) {
	if originatorHdr.NextHeader == wire.NextHeaderICMPv6 {
		return
	}

	src, ok := h.replySource()
	if !ok {
		return
	}

	h.sendICMPv6Error(ctx, wire.ICMPv6TypeDestUnreachable, code, src, originatorHdr.Src, original)
}

// sendICMPv6Error builds and sends an ErrorMessage-shaped ICMPv6 message.
func (h *Handler) sendICMPv6Error(ctx context.Context, typ, code uint8, src, dst netip.Addr, original []byte) {
	em := wire.ErrorMessage{
		Header:       wire.ICMPv6Header{Type: typ, Code: code},
		OriginalData: truncateOriginal(original),
	}
	msg, err := em.MarshalBinary()
	if err != nil {
		return
	}

	if err = h.sendICMPv6(ctx, src, dst, wire.DefaultHopLimit, msg); err != nil {
		h.logger.DebugContext(ctx, "sending icmpv6 error failed", slog.Any("err", err))
	}
}
