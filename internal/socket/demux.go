package socket

import (
	"context"
	"net/netip"

	"github.com/esix-project/esix/internal/bufpool"
)

// DeliverUDP implements [udp.Demux] (spec.md §4.5 "look up the socket by
// (protocol, local port, local addr or wildcard, remote addr/port or
// unconnected)"). payload is always released by this call; its contents are
// copied into the receive queue since the caller retains no reference after
// delivery.
func (t *Table) DeliverUDP(ctx context.Context, local, remote netip.AddrPort, payload *bufpool.Buffer) (ok bool) {
	defer payload.Release()

	e, found := t.findUDP(local, remote)
	if !found {
		return false
	}

	if len(e.queue) >= e.depth {
		t.logger.DebugContext(ctx, "dropping udp datagram: socket queue full")

		return true // matched a socket; the datagram is simply dropped, not unreachable.
	}

	data := append([]byte(nil), payload.Bytes()...)
	e.queue = append(e.queue, datagram{from: remote, data: data})

	return true
}

// findUDP finds the UDP socket bound to local, preferring an exact
// connected match over a wildcard-bound one.
func (t *Table) findUDP(local, remote netip.AddrPort) (e *entry, ok bool) {
	var wildcard *entry
	for _, cand := range t.slots {
		if cand.proto != TypeDgram || cand.local.Port() != local.Port() {
			continue
		}
		if !cand.local.Addr().IsUnspecified() && cand.local.Addr() != local.Addr() {
			continue
		}

		if cand.remote.IsValid() {
			if cand.remote == remote {
				return cand, true
			}

			continue
		}

		wildcard = cand
	}

	if wildcard != nil {
		return wildcard, true
	}

	return nil, false
}
