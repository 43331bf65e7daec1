// Package wire implements bit-exact, network-byte-order (de)serialization
// for the frame and packet formats esix speaks: Ethernet, IPv6, ICMPv6/NDP,
// UDP, and TCP (spec.md §6).  Each message type follows the teacher corpus's
// MarshalBinary/UnmarshalBinary idiom (grounded on
// other_examples/contiv-libOpenflow's protocol/icmpv6.go) rather than a
// gopacket dependency, since the NDP option-walking and checksum rules in
// spec.md §4.3–§4.4 need exact control over layout that a generic layer
// decoder would only get in the way of.
package wire

import (
	"encoding/binary"
	"fmt"
)

// EtherAddrLen is the length in bytes of an Ethernet address.
const EtherAddrLen = 6

// EtherHeaderLen is the length in bytes of an Ethernet header.
const EtherHeaderLen = 2*EtherAddrLen + 2

// EtherType values esix dispatches on (spec.md §4.1).
const (
	EtherTypeIPv6 uint16 = 0x86dd
)

// EtherAddr is a 48-bit Ethernet address.
type EtherAddr [EtherAddrLen]byte

// EtherBroadcast is the all-ones Ethernet broadcast address.
var EtherBroadcast = EtherAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IsMulticast reports whether a belongs to the IPv6-multicast Ethernet range
// used by esix, i.e. its first 16-bit word is 0x3333 (spec.md §4.1).
func (a EtherAddr) IsMulticast() bool {
	return a[0] == 0x33 && a[1] == 0x33
}

// Equal reports whether a and b are the same address.  Comparison is done
// as three 16-bit words, per spec.md §3.
func (a EtherAddr) Equal(b EtherAddr) bool {
	w := func(e EtherAddr) [3]uint16 {
		return [3]uint16{
			binary.BigEndian.Uint16(e[0:2]),
			binary.BigEndian.Uint16(e[2:4]),
			binary.BigEndian.Uint16(e[4:6]),
		}
	}

	return w(a) == w(b)
}

// String renders a in the usual colon-separated hex form.
func (a EtherAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// SolicitedNodeMulticastEther derives the Ethernet multicast address used to
// reach an IPv6 multicast destination: 33:33 followed by the low 32 bits of
// the address, in network order (spec.md §9, design-note (d) — the source
// this was distilled from byte-swapped this inconsistently; esix fixes it).
func SolicitedNodeMulticastEther(ipv6LastFourBytes [4]byte) (a EtherAddr) {
	a[0], a[1] = 0x33, 0x33
	copy(a[2:], ipv6LastFourBytes[:])

	return a
}

// EtherHeader is the 14-byte Ethernet header (spec.md §6).
type EtherHeader struct {
	Dst  EtherAddr
	Src  EtherAddr
	Type uint16
}

// Len returns the encoded length of h.
func (h *EtherHeader) Len() int { return EtherHeaderLen }

// MarshalBinary encodes h in network byte order.
func (h *EtherHeader) MarshalBinary() (data []byte, err error) {
	data = make([]byte, EtherHeaderLen)
	copy(data[0:6], h.Dst[:])
	copy(data[6:12], h.Src[:])
	binary.BigEndian.PutUint16(data[12:14], h.Type)

	return data, nil
}

// UnmarshalBinary decodes h from data, which must be at least
// [EtherHeaderLen] bytes.
func (h *EtherHeader) UnmarshalBinary(data []byte) (err error) {
	if len(data) < EtherHeaderLen {
		return fmt.Errorf("wire: ethernet header: %d bytes is too short", len(data))
	}

	copy(h.Dst[:], data[0:6])
	copy(h.Src[:], data[6:12])
	h.Type = binary.BigEndian.Uint16(data[12:14])

	return nil
}
