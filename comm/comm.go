// Package comm defines the message-passing substrate the decomposition and
// halo-exchange engine runs on, and provides an in-process implementation
// (World) that connects a group of goroutines with MPI-like semantics:
// group splits, SUM all-reduce, Cartesian topologies, shared-memory
// windows, tagged point-to-point transfers and barriers.
//
// Collective operations must be issued in the same order by every member
// of a communicator. Any substrate failure wraps ErrTransport and is fatal
// for the whole group: nothing is retried.
package comm

import "github.com/pkg/errors"

// ErrTransport is wrapped by every error reported by a substrate
// implementation.
var ErrTransport = errors.New("transport failure")

// Undefined is the color passed to Split by members that should not belong
// to any resulting subgroup. They receive a null communicator.
const Undefined = -1

// Comm is a communicator: an ordered group of participants. A nil Comm is
// the null communicator (the COMM_NULL equivalent); test for it with
// IsNull.
type Comm interface {
	// Rank returns the caller's rank within the group, in [0, Size).
	Rank() int

	// Size returns the number of participants in the group.
	Size() int

	// SplitShared splits the group into maximal subgroups of participants
	// that can allocate shared memory together, and returns the caller's
	// subgroup. Members are ordered by key, ties broken by rank.
	// Collective.
	SplitShared(key int) (Comm, error)

	// Split partitions the group by color. Members passing the same
	// non-negative color form a subgroup, ordered by key then rank.
	// Members passing Undefined receive a null communicator. Collective.
	Split(color, key int) (Comm, error)

	// AllreduceSumInt returns the sum of v over all members. Collective.
	AllreduceSumInt(v int) (int, error)

	// CartCreate imposes a Cartesian topology of the given dims and
	// periodicities on the group. The product of dims must equal Size.
	// Ranks are mapped to coordinates in row-major order; the
	// implementation does not reorder. Collective.
	CartCreate(dims []int, periods []bool) (CartComm, error)

	// AllocShared collectively allocates a shared-memory window of nbytes
	// bytes. Every member of the group observes the same backing bytes.
	// Collective.
	AllocShared(nbytes int) (*Window, error)

	// Send delivers data to the member with rank dst, labeled with tag.
	// Delivery is eager: Send does not block waiting for the receiver.
	// The data is copied before Send returns.
	Send(dst, tag int, data []byte) error

	// Recv blocks until a message from rank src with the given tag is
	// available and returns its payload.
	Recv(src, tag int) ([]byte, error)

	// Barrier blocks until every member of the group has entered it.
	// Collective.
	Barrier() error

	// Free releases the communicator. Using a communicator after Free is
	// undefined. Freeing a communicator does not free communicators
	// derived from it.
	Free()
}

// CartComm is a communicator with a Cartesian topology attached.
type CartComm interface {
	Comm

	// Dims returns the per-axis extent of the Cartesian mesh.
	Dims() []int

	// Periods returns the per-axis periodicity flags.
	Periods() []bool

	// Coords returns the Cartesian coordinate of the given rank.
	Coords(rank int) []int

	// CartRank returns the rank holding the given Cartesian coordinate.
	CartRank(coords []int) int
}

// IsNull reports whether c is the null communicator.
func IsNull(c Comm) bool {
	return c == nil
}

// Window is a shared-memory segment collectively allocated by a group.
// In-process, every group member sees the same byte slice.
type Window struct {
	data []byte
}

// Bytes returns the window's backing bytes. All group members observe the
// same storage; synchronize access with the group's Barrier.
func (w *Window) Bytes() []byte {
	return w.data
}

// Free releases the window.
func (w *Window) Free() {
	w.data = nil
}
