// Package core wires esix's per-interface stack together and drives it: the
// single worker goroutine that owns every table and socket (spec.md §5
// "single-threaded cooperative within the core; the ingress queue is the
// only cross-thread boundary"). It is grounded on the teacher's
// internal/client/storage.go Start/Shutdown/ticker-plus-done-channel
// lineage, generalized from a goroutine-per-background-task shape to one
// worker loop multiplexing frames, host calls, and the periodic tick.
package core

import (
	"log/slog"
	"net/netip"

	"github.com/esix-project/esix/internal/bufpool"
	"github.com/esix-project/esix/internal/esixcfg"
	"github.com/esix-project/esix/internal/esixmetrics"
	"github.com/esix-project/esix/internal/ethernet"
	"github.com/esix-project/esix/internal/icmpv6"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/ipv6pkt"
	"github.com/esix-project/esix/internal/socket"
	"github.com/esix-project/esix/internal/tcp"
	"github.com/esix-project/esix/internal/udp"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/timeutil"
)

// Core owns one interface's full stack: the tables, the protocol layers,
// and the worker loop that is their only caller (spec.md §5 "Shared
// resources: ... every other data structure is only ever touched from the
// worker and therefore lock-free").
type Core struct {
	logger *slog.Logger
	clock  timeutil.Clock
	self   wire.EtherAddr
	cfg    *esixcfg.Config

	tables  *iface.Tables
	link    *ethernet.Layer
	ipv6    *ipv6pkt.Pipeline
	icmpv6  *icmpv6.Handler
	udp     *udp.Layer
	tcp     *tcp.Table
	sockets *socket.Table
	metrics *esixmetrics.Metrics

	ingress *bufpool.Queue[*bufpool.Buffer]
	egress  *bufpool.Queue[*bufpool.Buffer]

	wake chan struct{}
	cmds chan func()
	done chan struct{}
}

// New wires one interface's stack for link-layer address self. logger and
// clock must not be nil; metrics may be nil, in which case no counters are
// recorded. cfg may be nil, which is equivalent to a zero-value [esixcfg.Config]
// (no static addresses/routes, no metrics gate).
func New(
	logger *slog.Logger,
	clock timeutil.Clock,
	self wire.EtherAddr,
	cfg *esixcfg.Config,
	metrics *esixmetrics.Metrics,
) (c *Core) {
	if cfg == nil {
		cfg = &esixcfg.Config{}
	}
	tables := iface.New(logger, clock)
	egress := bufpool.NewQueue[*bufpool.Buffer](0)

	link := ethernet.New(logger, self, nil, egress)
	ipv6 := ipv6pkt.New(logger, tables, link)

	icmpHandler := icmpv6.New(logger, clock, tables, ipv6, self)
	tables.SetDADProber(icmpHandler)

	udpLayer := udp.New(logger, nil, icmpHandler, ipv6)
	tcpTable := tcp.New(logger, clock, ipv6)
	sockets := socket.New(logger, tables, tcpTable, udpLayer)

	// Break the construction-order cycles documented on each seam type:
	// ipv6pkt needs icmpv6 for neighbor resolution and error sending; udp
	// needs the socket table to demux; both exist only after the values
	// above are constructed.
	ipv6.SetNeighborResolver(icmpHandler)
	ipv6.SetICMPErrorSender(icmpHandler)
	ipv6.SetICMPv6Handler(icmpHandler)
	ipv6.SetUDPHandler(udpLayer)
	ipv6.SetTCPHandler(tcpTable)
	udpLayer.SetDemux(sockets)
	link.SetIPv6Handler(ipv6)

	return &Core{
		logger:  logger,
		clock:   clock,
		self:    self,
		cfg:     cfg,
		tables:  tables,
		link:    link,
		ipv6:    ipv6,
		icmpv6:  icmpHandler,
		udp:     udpLayer,
		tcp:     tcpTable,
		sockets: sockets,
		metrics: metrics,
		ingress: bufpool.NewQueue[*bufpool.Buffer](0),
		egress:  egress,
		wake:    make(chan struct{}, 1),
		cmds:    make(chan func(), 16),
		done:    make(chan struct{}),
	}
}

// Sockets exposes the socket table for the BSD-style API layer (cmd/esixd,
// or any other consumer) to drive bind/connect/send/recv/accept/close
// through. Callers outside the worker goroutine must go through [Core.Do] or
// [Call].
func (c *Core) Sockets() *socket.Table { return c.sockets }

// Tables exposes the address/route/neighbor tables for read-only
// diagnostics (e.g. [iface.Tables.Snapshot]); mutation must go through
// [Core.Do].
func (c *Core) Tables() *iface.Tables { return c.tables }

// LocalAddr returns the first address of the given type, if any — a
// convenience for callers that just need to know the interface's own
// address (e.g. to log it, or to seed a listener's bind address).
func (c *Core) LocalAddr(typ iface.AddrType) (addr netip.Addr, ok bool) {
	e, found := c.tables.GetAddrForType(typ)

	return e.Addr, found
}
