package wire

import (
	"encoding/binary"
	"net/netip"
)

// Checksum accumulates a one's-complement sum in a 32-bit accumulator,
// folding the end-around carry only at the end (spec.md §9 "Checksum
// arithmetic"). A naive running 16-bit sum would silently drop carries on a
// full-MTU packet.
type Checksum struct {
	acc uint32
}

// Add folds b, interpreted as a sequence of big-endian 16-bit words, into
// the accumulator.  An odd trailing byte is padded with a zero low byte, as
// RFC 1071 requires.
func (c *Checksum) Add(b []byte) {
	n := len(b)
	i := 0
	for ; i+1 < n; i += 2 {
		c.acc += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if i < n {
		c.acc += uint32(b[i]) << 8
	}
}

// AddUint16 folds a single 16-bit host value into the accumulator.
func (c *Checksum) AddUint16(v uint16) {
	c.acc += uint32(v)
}

// AddUint32 folds a single 32-bit host value into the accumulator as two
// 16-bit words.
func (c *Checksum) AddUint32(v uint32) {
	c.acc += v >> 16
	c.acc += v & 0xffff
}

// Fold performs the end-around-carry fold and returns the one's-complement
// of the result — the value to place in the checksum field of an
// outgoing packet.  Over a received packet whose checksum field is intact,
// the result is zero.
func (c *Checksum) Fold() uint16 {
	acc := c.acc
	for acc>>16 != 0 {
		acc = (acc & 0xffff) + (acc >> 16)
	}

	return ^uint16(acc)
}

// UpperLayerChecksum computes the one's-complement checksum over the IPv6
// pseudo-header and payload for an upper-layer protocol (spec.md §4.4
// "Upper-layer checksum", §6 "Upper checksum per RFC 2460 pseudo-header").
// nextHeader is the upper-layer protocol number as it appears in the
// pseudo-header, which for ICMPv6 is always 58 regardless of the outer
// extension header chain.
func UpperLayerChecksum(src, dst netip.Addr, nextHeader uint8, payload []byte) uint16 {
	var c Checksum

	s := src.As16()
	d := dst.As16()
	c.Add(s[:])
	c.Add(d[:])
	c.AddUint32(uint32(len(payload)))
	c.AddUint32(uint32(nextHeader))
	c.Add(payload)

	return c.Fold()
}
