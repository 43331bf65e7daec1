package icmpv6

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/wire"
)

// handleMLDQuery implements spec.md §4.3 "MLDv1 query handling": on a
// general query (MulticastAddress unspecified) send a report for each
// joined group other than the all-nodes address; on a specific query,
// report only if that address is joined.
func (h *Handler) handleMLDQuery(ctx context.Context, ipHdr wire.IPv6Header, data []byte) {
	var q wire.MLDv1Message
	if err := q.UnmarshalBinary(data); err != nil {
		h.logger.DebugContext(ctx, "dropping malformed mld query", slog.Any("err", err))

		return
	}

	addrs, _, _ := h.tables.Snapshot()
	for _, e := range addrs {
		if e.Type != iface.AddrMulticast || e.Addr == allNodesAddr {
			continue
		}
		if !q.MulticastAddress.IsUnspecified() && e.Addr != q.MulticastAddress {
			continue
		}

		h.sendMLDReport(ctx, e.Addr)
	}
}

// sendMLDReport sends an MLDv1 Report for group.
func (h *Handler) sendMLDReport(ctx context.Context, group netip.Addr) {
	src, ok := h.tables.GetAddrForType(iface.AddrLinkLocal)
	if !ok {
		return
	}

	report := wire.MLDv1Message{MulticastAddress: group}
	msg, err := report.MarshalBinary()
	if err != nil {
		return
	}
	msg[0] = wire.ICMPv6TypeMLDReport

	if err = h.sendICMPv6(ctx, src.Addr, group, 1, msg); err != nil {
		h.logger.DebugContext(ctx, "sending mld report failed", slog.Any("err", err))
	}
}
