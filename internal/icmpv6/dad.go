package icmpv6

import (
	"context"
	"net/netip"
	"time"

	"github.com/esix-project/esix/internal/wire"
)

// unspecifiedAddr is ::, the source DAD solicitations are sent from.
var unspecifiedAddr = netip.IPv6Unspecified()

// StartProbe implements [iface.DADProber]. It sends
// [Handler.dupAddrDetectTransmits] Neighbor Solicitations for addr from the
// unspecified source and reports [Handler.dadTimeout] as how long the caller
// should wait before checking for a conflicting Neighbor Advertisement
// (spec.md §4.3 "DAD"). StartProbe itself never blocks on that wait: the
// original C state machine defers DAD completion to a timer callback rather
// than parking a thread, and esix follows the same shape by handing the
// wait back to [iface.Tables], which resolves it from the periodic sweep
// instead of the single worker goroutine (SPEC_FULL.md §5).
func (h *Handler) StartProbe(ctx context.Context, addr netip.Addr) (wait time.Duration, err error) {
	ns := wire.NeighborSolicitation{Target: addr}
	data, err := ns.MarshalBinary()
	if err != nil {
		return 0, err
	}
	data[0] = wire.ICMPv6TypeNeighborSolicitation

	dst := solicitedNodeMulticastFor(addr)
	for i := 0; i < h.dupAddrDetectTransmits; i++ {
		if err = h.sendICMPv6(ctx, unspecifiedAddr, dst, 255, data); err != nil {
			return 0, err
		}
	}

	return h.dadTimeout, nil
}
