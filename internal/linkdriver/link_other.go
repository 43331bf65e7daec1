//go:build !linux

package linkdriver

import (
	"net"

	"github.com/mdlayher/raw"
)

// newConn opens a BSD-style raw socket bound to etherType on iface, mirroring
// the teacher's internal/dhcpd/nclient4/conn_unix.go raw.ListenPacket call —
// the same fallback the teacher reaches for wherever AF_PACKET isn't
// available.
func newConn(iface *net.Interface, etherType uint16) (net.PacketConn, error) {
	return raw.ListenPacket(iface, etherType, nil)
}

// newAddr builds the destination address raw.Conn.WriteTo expects.
func newAddr(hw net.HardwareAddr) net.Addr {
	return &raw.Addr{HardwareAddr: hw}
}
