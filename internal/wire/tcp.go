package wire

import (
	"encoding/binary"
	"fmt"
)

// TCPHeaderLen is the fixed length in bytes of a TCP header with no options
// (spec.md §1 Non-goals: "TCP options beyond the base header").
const TCPHeaderLen = 20

// TCP flag bits.
const (
	TCPFlagFIN uint8 = 1 << 0
	TCPFlagSYN uint8 = 1 << 1
	TCPFlagRST uint8 = 1 << 2
	TCPFlagPSH uint8 = 1 << 3
	TCPFlagACK uint8 = 1 << 4
	TCPFlagURG uint8 = 1 << 5
)

// TCPHeader is the 20-byte TCP header (spec.md §6).
type TCPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Seq      uint32
	Ack      uint32
	Flags    uint8
	Window   uint16
	Checksum uint16
	Urgent   uint16
}

// MarshalBinary encodes h.  Data offset is always 5 (20 bytes), since esix
// never emits TCP options.
func (h *TCPHeader) MarshalBinary() (data []byte, err error) {
	data = make([]byte, TCPHeaderLen)
	binary.BigEndian.PutUint16(data[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(data[2:4], h.DstPort)
	binary.BigEndian.PutUint32(data[4:8], h.Seq)
	binary.BigEndian.PutUint32(data[8:12], h.Ack)
	data[12] = 5 << 4
	data[13] = h.Flags
	binary.BigEndian.PutUint16(data[14:16], h.Window)
	binary.BigEndian.PutUint16(data[16:18], h.Checksum)
	binary.BigEndian.PutUint16(data[18:20], h.Urgent)

	return data, nil
}

// UnmarshalBinary decodes h from data.  Any TCP options present (a data
// offset greater than 5) are skipped, not parsed, consistent with the
// "TCP options beyond the base header" non-goal.
func (h *TCPHeader) UnmarshalBinary(data []byte) (err error) {
	if len(data) < TCPHeaderLen {
		return fmt.Errorf("wire: tcp header: %d bytes is too short", len(data))
	}
	h.SrcPort = binary.BigEndian.Uint16(data[0:2])
	h.DstPort = binary.BigEndian.Uint16(data[2:4])
	h.Seq = binary.BigEndian.Uint32(data[4:8])
	h.Ack = binary.BigEndian.Uint32(data[8:12])
	h.Flags = data[13]
	h.Window = binary.BigEndian.Uint16(data[14:16])
	h.Checksum = binary.BigEndian.Uint16(data[16:18])
	h.Urgent = binary.BigEndian.Uint16(data[18:20])

	return nil
}

// DataOffset returns the number of 32-bit words in the TCP header, as
// encoded in the high nibble of byte 12.
func DataOffset(data []byte) int {
	if len(data) < 13 {
		return 0
	}

	return int(data[12] >> 4)
}
