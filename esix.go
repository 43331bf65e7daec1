package esix

import (
	"context"
	"log/slog"

	"github.com/esix-project/esix/internal/core"
	"github.com/esix-project/esix/internal/esixcfg"
	"github.com/esix-project/esix/internal/esixerr"
	"github.com/esix-project/esix/internal/esixmetrics"
	"github.com/esix-project/esix/internal/socket"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/timeutil"
)

// Re-exported sentinel error kinds (spec.md §7), so that callers never need
// to import internal/esixerr directly.
const (
	ErrOutOfMemory      = esixerr.ErrOutOfMemory
	ErrInvalidArgument  = esixerr.ErrInvalidArgument
	ErrTableFull        = esixerr.ErrTableFull
	ErrNotFound         = esixerr.ErrNotFound
	ErrDuplicateAddress = esixerr.ErrDuplicateAddress
	ErrClosed           = esixerr.ErrClosed
	ErrWouldBlock       = esixerr.ErrWouldBlock
	ErrTimeout          = esixerr.ErrTimeout
)

// Link is esix's external link-driver collaborator (spec.md §2 "the link
// driver (provides receive callbacks and a transmit function)"). esix never
// reads frames itself: a Link implementation (internal/linkdriver.Link, or a
// test fake) calls [Core.Enqueue] as frames arrive and esix calls Send to
// transmit.
type Link interface {
	// Send transmits one complete Ethernet frame.
	Send(ctx context.Context, frame []byte) error
}

// Clock is esix's external OS-glue collaborator for monotonic time (spec.md
// §2 "the OS glue (mutexes, semaphores, monotonic clock, malloc/free)" —
// esix's clock is the only sliver of that list it does not collapse onto
// the Go runtime itself). It is satisfied by
// github.com/AdguardTeam/golibs/timeutil.Clock implementations, most
// commonly timeutil.SystemClock{}.
type Clock = timeutil.Clock

// EtherAddr is a 6-byte Ethernet (MAC) address.
type EtherAddr = wire.EtherAddr

// Handle is an opaque socket descriptor returned by [Core.Socket] (spec.md
// §4.7).
type Handle = socket.Handle

// Core is one interface's running esix stack: the worker loop, tables,
// protocol layers, and socket table, wired together by [New].
type Core struct {
	*core.Core
}

// New constructs a Core for the interface whose link-layer address is self.
// logger and clock must not be nil. cfg may be nil, meaning no static
// addresses/routes. metrics may be nil, meaning no counters are recorded.
func New(
	logger *slog.Logger,
	clock Clock,
	self EtherAddr,
	cfg *esixcfg.Config,
	metrics *esixmetrics.Metrics,
) *Core {
	return &Core{Core: core.New(logger, clock, self, cfg, metrics)}
}

// Init brings the interface up (spec.md §6 "init(lla)"): it derives and
// installs the link-local address (running DAD), adds the on-link routes,
// joins the all-nodes multicast group, installs any configured static
// addresses/routes, and sends a Router Solicitation.
func (c *Core) Init(ctx context.Context) error {
	return c.Core.Init(ctx)
}

// Worker runs esix's single cooperative worker loop (spec.md §6
// "worker(send_callback)") until [Core.Shutdown] is called. send is called
// once per outgoing Ethernet frame.
func (c *Core) Worker(ctx context.Context, link Link) {
	c.Core.Worker(ctx, func(ctx context.Context, frame []byte) error {
		return link.Send(ctx, frame)
	})
}

// Enqueue hands one received Ethernet frame to the worker (spec.md §6
// "enqueue(frame, len)"). It is the one Core method safe to call from a
// goroutine other than the one running [Core.Worker] — typically a Link's
// own receive loop.
func (c *Core) Enqueue(frame []byte) {
	c.Core.Enqueue(frame)
}

// PeriodicCallback advances esix's clock-driven sweeps: neighbor/route/
// address aging, TCP retransmission, and socket reaping (spec.md §6
// "periodic_callback() — called by the host once per second"). Like
// Enqueue, it may be called from any goroutine.
func (c *Core) PeriodicCallback(ctx context.Context) {
	c.Core.PeriodicCallback(ctx)
}

// Sockets exposes the BSD-style socket API (spec.md §4.7): socket, bind,
// listen, connect, accept, send, sendto, recv, recvfrom, close. Every method
// on the returned *socket.Table must be driven through [core.Call] from
// outside the worker goroutine; Core does this for you by construction
// since internal/socket.Table methods are only ever invoked from within
// [Core.Worker]'s goroutine in esix's own call sites — host code reaching
// into sockets concurrently should wrap each call with [Call].
func (c *Core) Sockets() *socket.Table {
	return c.Core.Sockets()
}

// Call runs fn on c's worker goroutine and blocks for its result — the seam
// host code (e.g. a socket-API wrapper) uses to touch Core's tables and
// sockets safely from outside [Core.Worker] (spec.md §5).
func Call[T any](c *Core, fn func() T) T {
	return core.Call(c.Core, fn)
}
