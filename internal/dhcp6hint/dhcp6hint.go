// Package dhcp6hint builds the DHCPv6 Solicit a conformant host would send
// when a Router Advertisement's Managed or Other-config flag is set
// (SPEC_FULL.md §4 "M/O bits" — "RFC 4861-conformant hosts ... spec.md's
// distillation dropped"). It only builds the message; transmitting it would
// require a full DHCPv6 client, which spec.md excludes as a non-goal, so
// esix hands the built message back to its caller for optional use.
package dhcp6hint

import (
	"fmt"
	"net"

	"github.com/esix-project/esix/internal/wire"

	"github.com/insomniacslk/dhcp/dhcpv6"
)

// Hint is what esix extracts from an RA's Managed/Other-config flags: the
// Solicit a DHCPv6 client would need to send, and which of the two flags
// triggered it.
type Hint struct {
	Solicit *dhcpv6.Message
	// Managed is the RA's M bit: addresses should be obtained via DHCPv6.
	Managed bool
	// Other is the RA's O bit: other configuration (e.g. DNS) should be
	// obtained via DHCPv6, independent of Managed.
	Other bool
}

// Build constructs a Hint for the given link-layer address if either
// managed or other is set; it returns nil, nil if neither is set, since
// then no DHCPv6 interaction is implied (spec.md's RA parsing already
// handles SLAAC on its own).
func Build(self wire.EtherAddr, managed, other bool) (h *Hint, err error) {
	if !managed && !other {
		return nil, nil
	}

	solicit, err := dhcpv6.NewSolicit(net.HardwareAddr(self[:]))
	if err != nil {
		return nil, fmt.Errorf("building dhcpv6 solicit: %w", err)
	}

	return &Hint{
		Solicit: solicit,
		Managed: managed,
		Other:   other,
	}, nil
}
