package tcp

import (
	"context"
	"time"

	"github.com/esix-project/esix/internal/wire"
)

// Sweep is the periodic worker pass over every socket's retransmit queue
// (spec.md §4.6 "Retransmission"). It is driven by the public API's
// PeriodicCallback, mirroring spec.md §9 "Retransmission timer and ND aging
// are scheduled by comparing a monotonic second-counter against per-entry
// expiration fields; a single worker pass re-evaluates all due entries." It
// returns the number of segments resent and connections aborted, for the
// caller to feed into its own metrics.
func (t *Table) Sweep(ctx context.Context) (retransmitted, aborted int) {
	now := t.clock.Now()

	// Iterate over a snapshot since onReset/remove mutate t.sockets.
	for _, s := range append([]*Socket(nil), t.sockets...) {
		if len(s.sent) == 0 {
			continue
		}
		switch t.sweepSocket(ctx, s, now) {
		case sweepRetransmitted:
			retransmitted++
		case sweepAborted:
			aborted++
		}
	}

	return retransmitted, aborted
}

// sweepOutcome reports what, if anything, [Table.sweepSocket] did.
type sweepOutcome int

const (
	sweepNone sweepOutcome = iota
	sweepRetransmitted
	sweepAborted
)

func (t *Table) sweepSocket(ctx context.Context, s *Socket, now time.Time) sweepOutcome {
	head := &s.sent[0]

	if now.Sub(head.sentAt) > MaxRetransmitTime {
		_ = t.sendSegment(ctx, s, wire.TCPFlagRST, s.sndNxt, s.rcvNxt, nil)
		s.received = nil
		s.sent = nil
		s.State = StateClosed
		t.remove(s)

		return sweepAborted
	}

	if now.Before(head.retryAt) {
		return sweepNone
	}

	flags := uint8(wire.TCPFlagACK)
	if len(head.data) > 0 {
		flags |= wire.TCPFlagPSH
	}
	if err := t.sendSegment(ctx, s, flags, head.seq, s.rcvNxt, head.data); err != nil {
		t.logger.DebugContext(ctx, "retransmit failed")

		return sweepNone
	}

	elapsed := int64(now.Sub(head.sentAt) / time.Second)
	if elapsed < 1 {
		elapsed = 1
	}
	head.retryAt = now.Add(time.Duration(elapsed*elapsed) * time.Second)

	return sweepRetransmitted
}
