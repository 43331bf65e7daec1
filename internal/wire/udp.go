package wire

import (
	"encoding/binary"
	"fmt"
)

// UDPHeaderLen is the fixed length in bytes of a UDP header.
const UDPHeaderLen = 8

// UDPHeader is the 8-byte UDP header (spec.md §6).
type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16 // header + data.
	Checksum uint16
}

// MarshalBinary encodes h.
func (h *UDPHeader) MarshalBinary() (data []byte, err error) {
	data = make([]byte, UDPHeaderLen)
	binary.BigEndian.PutUint16(data[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(data[2:4], h.DstPort)
	binary.BigEndian.PutUint16(data[4:6], h.Length)
	binary.BigEndian.PutUint16(data[6:8], h.Checksum)

	return data, nil
}

// UnmarshalBinary decodes h from data, which must be at least
// [UDPHeaderLen] bytes (spec.md §4.5: "verify length >= 8").
func (h *UDPHeader) UnmarshalBinary(data []byte) (err error) {
	if len(data) < UDPHeaderLen {
		return fmt.Errorf("wire: udp header: %d bytes is too short", len(data))
	}
	h.SrcPort = binary.BigEndian.Uint16(data[0:2])
	h.DstPort = binary.BigEndian.Uint16(data[2:4])
	h.Length = binary.BigEndian.Uint16(data[4:6])
	h.Checksum = binary.BigEndian.Uint16(data[6:8])

	return nil
}
