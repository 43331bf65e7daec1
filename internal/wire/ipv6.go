package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// IPv6HeaderLen is the fixed length in bytes of an IPv6 header (spec.md §6).
const IPv6HeaderLen = 40

// Next-header values esix dispatches on (spec.md §4.4).
const (
	NextHeaderHopByHop uint8 = 0
	NextHeaderTCP      uint8 = 6
	NextHeaderUDP      uint8 = 17
	NextHeaderICMPv6   uint8 = 58
)

// DefaultHopLimit is the hop limit esix places on packets it originates,
// absent a more specific route entry (spec.md §5 "default hop limit").
const DefaultHopLimit = 64

// IPv6Header is the fixed 40-byte IPv6 header.  Addresses are represented as
// [netip.Addr], which already stores its bytes in the same order they
// appear on the wire — only the multi-byte integer fields need explicit
// byte-order handling.
type IPv6Header struct {
	TrafficClass uint8
	FlowLabel    uint32 // low 20 bits significant.
	PayloadLen   uint16
	NextHeader   uint8
	HopLimit     uint8
	Src          netip.Addr
	Dst          netip.Addr
}

// Len returns the encoded length of h.
func (h *IPv6Header) Len() int { return IPv6HeaderLen }

// MarshalBinary encodes h in network byte order.  Src and Dst must be valid
// 16-byte (IPv6) addresses.
func (h *IPv6Header) MarshalBinary() (data []byte, err error) {
	if h.Src.BitLen() != 128 {
		return nil, fmt.Errorf("wire: ipv6 header: src %s is not a 128-bit address", h.Src)
	}
	if h.Dst.BitLen() != 128 {
		return nil, fmt.Errorf("wire: ipv6 header: dst %s is not a 128-bit address", h.Dst)
	}

	data = make([]byte, IPv6HeaderLen)
	verTC := uint32(6)<<28 | uint32(h.TrafficClass)<<20 | (h.FlowLabel & 0xfffff)
	binary.BigEndian.PutUint32(data[0:4], verTC)
	binary.BigEndian.PutUint16(data[4:6], h.PayloadLen)
	data[6] = h.NextHeader
	data[7] = h.HopLimit

	src16 := h.Src.As16()
	dst16 := h.Dst.As16()
	copy(data[8:24], src16[:])
	copy(data[24:40], dst16[:])

	return data, nil
}

// UnmarshalBinary decodes h from data, which must be at least
// [IPv6HeaderLen] bytes.  It does not validate the version field; callers
// perform that check as part of receive validation (spec.md §4.4).
func (h *IPv6Header) UnmarshalBinary(data []byte) (err error) {
	if len(data) < IPv6HeaderLen {
		return fmt.Errorf("wire: ipv6 header: %d bytes is too short", len(data))
	}

	verTC := binary.BigEndian.Uint32(data[0:4])
	h.TrafficClass = uint8(verTC >> 20)
	h.FlowLabel = verTC & 0xfffff
	h.PayloadLen = binary.BigEndian.Uint16(data[4:6])
	h.NextHeader = data[6]
	h.HopLimit = data[7]

	var src, dst [16]byte
	copy(src[:], data[8:24])
	copy(dst[:], data[24:40])
	h.Src = netip.AddrFrom16(src)
	h.Dst = netip.AddrFrom16(dst)

	return nil
}

// Version returns the version nibble of a raw IPv6 header, without fully
// decoding it.  Used by receive validation before committing to a parse.
func Version(data []byte) uint8 {
	if len(data) < 1 {
		return 0
	}

	return data[0] >> 4
}
