package socket

import (
	"log/slog"
	"net/netip"

	"github.com/esix-project/esix/internal/esixerr"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/tcp"
	"github.com/esix-project/esix/internal/udp"
)

// MaxSockets bounds the socket table (spec.md §5 "Resource ceilings are
// compile-time constants: ... maximum sockets").
const MaxSockets = 32

// Table is esix's unified socket table (spec.md §4.7). It implements
// [udp.Demux] by looking a datagram's destination up by (local, remote) and
// queuing it, and it wraps a [tcp.Table] for the stream path.
//
// Table is not safe for concurrent use; see internal/iface.Tables for the
// single-worker-goroutine rationale this package shares.
type Table struct {
	logger *slog.Logger
	tables *iface.Tables
	tcp    *tcp.Table
	udp    *udp.Layer

	slots     map[Handle]*entry
	nextSlot  Handle
	nextPort  uint16
	tcpByNode map[*tcp.Socket]Handle
}

// New returns an empty Table. udpLayer is used to transmit outgoing
// datagrams; tcpTable drives the TCP state machine for stream sockets.
func New(logger *slog.Logger, tables *iface.Tables, tcpTable *tcp.Table, udpLayer *udp.Layer) (t *Table) {
	return &Table{
		logger:    logger,
		tables:    tables,
		tcp:       tcpTable,
		udp:       udpLayer,
		slots:     make(map[Handle]*entry),
		nextPort:  EphemeralLo,
		tcpByNode: make(map[*tcp.Socket]Handle),
	}
}

// Socket allocates a new descriptor of the given type in [tcp.StateReserved]
// (spec.md §4.7 "socket(family, type, proto): allocate the first free
// slot"). family must be [FamilyInet6].
func (t *Table) Socket(family, typ int) (h Handle, err error) {
	if family != FamilyInet6 {
		return 0, esixerr.ErrInvalidArgument
	}
	if typ != TypeStream && typ != TypeDgram {
		return 0, esixerr.ErrInvalidArgument
	}
	if len(t.slots) >= MaxSockets {
		return 0, esixerr.ErrTableFull
	}

	h = t.allocSlot()
	t.slots[h] = &entry{proto: typ, state: tcp.StateReserved, depth: DefaultQueueDepth}

	return h, nil
}

func (t *Table) allocSlot() (h Handle) {
	for {
		t.nextSlot++
		if _, taken := t.slots[t.nextSlot]; !taken {
			return t.nextSlot
		}
	}
}

// pickEphemeralPort returns the next unused port in [EphemeralLo,
// EphemeralHi], wrapping (spec.md §4.7).
func (t *Table) pickEphemeralPort() (port uint16, err error) {
	start := t.nextPort
	for {
		port = t.nextPort
		if t.nextPort == EphemeralHi {
			t.nextPort = EphemeralLo
		} else {
			t.nextPort++
		}

		if !t.portInUse(port) {
			return port, nil
		}
		if t.nextPort == start {
			return 0, esixerr.ErrTableFull
		}
	}
}

func (t *Table) portInUse(port uint16) bool {
	for _, e := range t.slots {
		if e.local.Port() == port {
			return true
		}
	}

	return false
}

// Bind assigns a local address/port to h (spec.md §4.7 "bind: fail if the
// port is in use; accept a wildcard address, otherwise verify the address
// belongs to the interface"). A zero port picks an ephemeral one.
func (t *Table) Bind(h Handle, local netip.AddrPort) (err error) {
	e, ok := t.slots[h]
	if !ok {
		return esixerr.ErrInvalidArgument
	}

	if !local.Addr().IsUnspecified() {
		if _, found := t.tables.GetAddr(local.Addr(), iface.AddrAny, -1); !found {
			return esixerr.ErrInvalidArgument
		}
	}

	port := local.Port()
	if port == 0 {
		if port, err = t.pickEphemeralPort(); err != nil {
			return err
		}
	} else if t.portInUse(port) {
		return esixerr.ErrInvalidArgument
	}

	e.local = netip.AddrPortFrom(local.Addr(), port)

	return nil
}
