package bufpool

import "encoding/binary"

// HToNS converts a 16-bit value from host to network byte order.
func HToNS(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)

	return binary.NativeEndian.Uint16(b[:])
}

// NToHS converts a 16-bit value from network to host byte order.  It is the
// inverse of HToNS.
func NToHS(v uint16) uint16 {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], v)

	return binary.BigEndian.Uint16(b[:])
}

// HToNL converts a 32-bit value from host to network byte order.
func HToNL(v uint32) uint32 {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)

	return binary.NativeEndian.Uint32(b[:])
}

// NToHL converts a 32-bit value from network to host byte order.  It is the
// inverse of HToNL.
func NToHL(v uint32) uint32 {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], v)

	return binary.BigEndian.Uint32(b[:])
}
