//go:build linux

package linkdriver

import (
	"fmt"
	"net"

	"github.com/mdlayher/packet"
	"golang.org/x/sys/unix"
)

// newConn opens a Linux AF_PACKET raw socket bound to etherType on iface,
// mirroring the teacher's internal/dhcpd/conn_linux.go packet.Listen call,
// then additionally sets SO_BINDTODEVICE so the socket only ever sees
// frames arriving on iface even on a host with several interfaces bridged
// together, the same belt-and-suspenders binding dhcpd's raw listener uses.
func newConn(iface *net.Interface, etherType uint16) (net.PacketConn, error) {
	conn, err := packet.Listen(iface, packet.Raw, int(etherType), nil)
	if err != nil {
		return nil, err
	}

	if err = bindToDevice(conn, iface.Name); err != nil {
		conn.Close()

		return nil, fmt.Errorf("linkdriver: binding to %q: %w", iface.Name, err)
	}

	return conn, nil
}

// bindToDevice sets SO_BINDTODEVICE on conn's underlying file descriptor via
// golang.org/x/sys/unix, which owns the raw-socket-option surface the
// standard library doesn't expose.
func bindToDevice(conn *packet.Conn, name string) (err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	if err = raw.Control(func(fd uintptr) {
		sockErr = unix.BindToDevice(int(fd), name)
	}); err != nil {
		return err
	}

	return sockErr
}

// newAddr builds the destination address packet.Conn.WriteTo expects.
func newAddr(hw net.HardwareAddr) net.Addr {
	return &packet.Addr{HardwareAddr: hw}
}
