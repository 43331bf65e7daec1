package core

import (
	"context"
	"log/slog"

	"github.com/esix-project/esix/internal/bufpool"
)

// SendFunc is the egress callback esix's upward API registers via
// [Core.Worker] (spec.md §6 "worker(send_callback) — register the function
// the core calls to emit each Ethernet frame").
type SendFunc func(ctx context.Context, frame []byte) error

// Enqueue is called by the link driver for each received frame (spec.md §6
// "enqueue(frame, len)"). It copies frame into a buffer esix owns and wakes
// the worker; it is the one method on Core safe to call from a goroutine
// other than the one running [Core.Worker].
func (c *Core) Enqueue(frame []byte) {
	buf := bufpool.New(len(frame))
	copy(buf.Bytes(), frame)

	if err := c.ingress.Push(buf); err != nil {
		buf.Release()
		c.logger.Debug("dropping frame: ingress queue full")

		return
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Do schedules fn to run on the worker goroutine and returns immediately
// (spec.md §5 "every other data structure ... is only ever touched from the
// worker"). Use [Call] when the caller needs a result.
func (c *Core) Do(fn func()) {
	select {
	case c.cmds <- fn:
		select {
		case c.wake <- struct{}{}:
		default:
		}
	case <-c.done:
	}
}

// Call runs fn on the worker goroutine and blocks for its result. It is the
// seam the BSD-style socket API (and any other host-goroutine caller) uses
// to touch tables and sockets without a mutex.
func Call[T any](c *Core, fn func() T) (result T) {
	done := make(chan T, 1)
	c.Do(func() { done <- fn() })

	select {
	case result = <-done:
	case <-c.done:
	}

	return result
}

// PeriodicCallback advances the clock-driven sweeps: neighbor/route/address
// aging and TCP retransmission (spec.md §6 "periodic_callback() — called by
// the host once per second to advance the clock"). Like Enqueue, it may be
// called from a goroutine other than the worker's.
func (c *Core) PeriodicCallback(ctx context.Context) {
	c.Do(func() {
		c.tables.AgeSweep()
		retransmitted, aborted := c.tcp.Sweep(ctx)
		c.sockets.Reap()

		if c.metrics != nil {
			c.metrics.TCPRetransmits.Add(float64(retransmitted))
			c.metrics.TCPAborts.Add(float64(aborted))
			_, _, neighbors := c.tables.Snapshot()
			c.metrics.NeighborCacheSize.Set(float64(len(neighbors)))
		}
	})
}

// Worker runs esix's single cooperative worker loop until [Core.Shutdown] is
// called (spec.md §6 "worker(send_callback) ... returns control of the
// worker loop", §5 "the worker blocks on a semaphore with a bounded timeout
// equal to the next timer deadline; the driver signals it after each
// enqueue"). send is called once per outgoing Ethernet frame; its buffer is
// released immediately after.
func (c *Core) Worker(ctx context.Context, send SendFunc) {
	for {
		c.drain(ctx, send)

		select {
		case <-c.done:
			return
		case <-c.wake:
		case <-ctx.Done():
			return
		}
	}
}

// drain processes every pending command and ingress frame, and flushes
// egress, until both are empty (spec.md §5 "frames are processed in arrival
// order").
func (c *Core) drain(ctx context.Context, send SendFunc) {
	for {
		select {
		case fn := <-c.cmds:
			fn()

			continue
		default:
		}

		frame, ok := c.ingress.Pop()
		if !ok {
			break
		}
		if c.metrics != nil {
			c.metrics.FramesReceived.Inc()
		}
		c.link.Receive(ctx, frame)
	}

	for {
		out, ok := c.egress.Pop()
		if !ok {
			return
		}
		if err := send(ctx, out.Bytes()); err != nil {
			c.logger.DebugContext(ctx, "egress callback failed", slog.Any("err", err))
		}
		out.Release()
	}
}

// Shutdown stops [Core.Worker] after its current turn (spec.md §5
// "Cancellation: the worker exits on a shutdown flag checked between
// turns; pending sends are dropped").
func (c *Core) Shutdown() {
	close(c.done)
}
