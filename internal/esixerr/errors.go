// Package esixerr declares the sentinel error kinds shared by every esix
// subsystem (spec.md §7).  It exists separately from the root esix package
// so that internal packages can depend on the error kinds without creating
// an import cycle with the package that re-exports them.
package esixerr

import "github.com/AdguardTeam/golibs/errors"

// Sentinel error kinds.  Packet-processing errors are recovered locally and
// never surface through these; they are reserved for table mutation,
// socket-API, and connection-lifecycle results that a caller can act on.
const (
	// ErrOutOfMemory is returned when a bounded allocation (a table slot, a
	// buffer) could not be made.
	ErrOutOfMemory errors.Error = "esix: out of memory"

	// ErrInvalidArgument is returned for malformed caller-supplied arguments.
	ErrInvalidArgument errors.Error = "esix: invalid argument"

	// ErrTableFull is returned when a bounded table (addresses, routes,
	// neighbors, sockets) has no free slot.
	ErrTableFull errors.Error = "esix: table full"

	// ErrNotFound is returned when a lookup key has no matching entry.
	ErrNotFound errors.Error = "esix: not found"

	// ErrDuplicateAddress labels the condition iface.Tables logs when DAD
	// resolution finds a neighbor already using a tentative address. DAD
	// completes asynchronously on the periodic sweep (SPEC_FULL.md §5), so
	// by the time a duplicate is found the AddAddr call that started the
	// probe has long since returned; this sentinel exists for callers that
	// want to match on the condition in their own logging rather than for
	// an error return.
	ErrDuplicateAddress errors.Error = "esix: duplicate address detected"

	// ErrClosed is returned by socket operations on a socket that has
	// already completed its close sequence.
	ErrClosed errors.Error = "esix: socket closed"

	// ErrWouldBlock is returned by recv when no data is queued, whether or
	// not MSG_DONTWAIT is set; recv never blocks.
	ErrWouldBlock errors.Error = "esix: operation would block"

	// ErrTimeout names an elapsed bounded wait. No esix operation returns
	// it: esix has no blocking waits or socket deadlines.
	ErrTimeout errors.Error = "esix: timed out"
)
