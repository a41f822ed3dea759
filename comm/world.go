package comm

import (
	"slices"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// World is an in-process fabric connecting n participants, one goroutine
// per rank. It implements the substrate contract with the semantics the
// engine assumes from an MPI-style runtime: eager sends, rendezvous
// collectives, shared windows.
//
// Each rank is pinned to a simulated host; SplitShared groups ranks by
// host. NewWorld places every rank on its own host (every participant is
// its own locale); NewWorldHosts simulates multi-process nodes.
type World struct {
	n     int
	hosts []int
	root  *group
}

// NewWorld creates a world of n participants, each on its own simulated
// host.
func NewWorld(n int) (*World, error) {
	hosts := make([]int, n)
	for i := range hosts {
		hosts[i] = i
	}
	return NewWorldHosts(hosts)
}

// NewWorldHosts creates a world with one participant per entry of hosts;
// participants with equal entries can allocate shared memory together.
func NewWorldHosts(hosts []int) (*World, error) {
	if len(hosts) == 0 {
		return nil, errors.Wrap(ErrTransport, "a world needs at least one participant")
	}
	for r, h := range hosts {
		if h < 0 {
			return nil, errors.Wrapf(ErrTransport, "host id %d of rank %d must be non-negative", h, r)
		}
	}
	w := &World{n: len(hosts), hosts: slices.Clone(hosts)}
	w.root = newGroup(w, w.hosts)
	klog.V(3).InfoS("created in-process world", "size", w.n, "hosts", w.hosts)
	return w, nil
}

// Size returns the number of participants.
func (w *World) Size() int {
	return w.n
}

// Comm returns the world communicator handle for the given rank. Each rank
// must use its own handle; handles are not safe for concurrent use by
// multiple goroutines.
func (w *World) Comm(rank int) Comm {
	return &procComm{g: w.root, rank: rank}
}

// RunWorld creates a world of n participants on distinct hosts and runs
// body once per rank, each in its own goroutine. It returns the first
// error returned by any body.
func RunWorld(n int, body func(c Comm) error) error {
	w, err := NewWorld(n)
	if err != nil {
		return err
	}
	return w.Run(body)
}

// RunWorldHosts is RunWorld with an explicit rank-to-host placement.
func RunWorldHosts(hosts []int, body func(c Comm) error) error {
	w, err := NewWorldHosts(hosts)
	if err != nil {
		return err
	}
	return w.Run(body)
}

// Run runs body once per rank of the world, each in its own goroutine, and
// waits for all of them.
func (w *World) Run(body func(c Comm) error) error {
	var eg errgroup.Group
	for r := 0; r < w.n; r++ {
		c := w.Comm(r)
		eg.Go(func() error {
			return body(c)
		})
	}
	return eg.Wait()
}

// group is the state shared by the members of one communicator.
type group struct {
	world *World
	n     int
	hosts []int
	mbox  []*mailbox
	coll  *collective
}

func newGroup(w *World, hosts []int) *group {
	g := &group{world: w, n: len(hosts), hosts: slices.Clone(hosts)}
	g.mbox = make([]*mailbox, g.n)
	for i := range g.mbox {
		g.mbox[i] = newMailbox()
	}
	g.coll = newCollective(g.n)
	return g
}

// procComm is one member's handle on a group.
type procComm struct {
	g    *group
	rank int
}

func (c *procComm) Rank() int { return c.rank }
func (c *procComm) Size() int { return c.g.n }

func (c *procComm) Barrier() error {
	c.g.coll.exchange(c.rank, nil)
	return nil
}

func (c *procComm) AllreduceSumInt(v int) (int, error) {
	vals := c.g.coll.exchange(c.rank, v)
	sum := 0
	for _, x := range vals {
		sum += x.(int)
	}
	return sum, nil
}

func (c *procComm) SplitShared(key int) (Comm, error) {
	return c.Split(c.g.hosts[c.rank], key)
}

// splitTicket is the per-member contribution gathered during Split.
type splitTicket struct {
	color, key int
}

func (c *procComm) Split(color, key int) (Comm, error) {
	if color < 0 && color != Undefined {
		return nil, errors.Wrapf(ErrTransport, "split color must be non-negative or Undefined, got %d", color)
	}

	// Round 1: gather every member's (color, key).
	tickets := c.g.coll.exchange(c.rank, splitTicket{color: color, key: key})

	// Compute the members of the caller's subgroup, ordered by key then
	// parent rank. The first member allocates the subgroup state.
	var members []int
	if color != Undefined {
		for r, v := range tickets {
			if v.(splitTicket).color == color {
				members = append(members, r)
			}
		}
		sort.SliceStable(members, func(i, j int) bool {
			ti := tickets[members[i]].(splitTicket)
			tj := tickets[members[j]].(splitTicket)
			if ti.key != tj.key {
				return ti.key < tj.key
			}
			return members[i] < members[j]
		})
	}

	// Round 2: the creator of each subgroup allocates the shared state and
	// publishes it; other members pick it up from the creator's slot.
	var created *group
	if len(members) > 0 && members[0] == c.rank {
		hosts := make([]int, len(members))
		for i, r := range members {
			hosts[i] = c.g.hosts[r]
		}
		created = newGroup(c.g.world, hosts)
	}
	published := c.g.coll.exchange(c.rank, created)
	if color == Undefined {
		return nil, nil
	}
	shared := published[members[0]].(*group)
	if shared == nil {
		return nil, errors.Wrap(ErrTransport, "split rendezvous lost the subgroup state")
	}
	return &procComm{g: shared, rank: slices.Index(members, c.rank)}, nil
}

func (c *procComm) CartCreate(dims []int, periods []bool) (CartComm, error) {
	prod := 1
	for _, d := range dims {
		prod *= d
	}
	if prod != c.g.n {
		return nil, errors.Wrapf(ErrTransport,
			"cartesian dims %v have product %d, want the group size %d", dims, prod, c.g.n)
	}
	if len(periods) != len(dims) {
		return nil, errors.Wrapf(ErrTransport,
			"periods must have one entry per dim, got %d for %d dims", len(periods), len(dims))
	}
	// Collective, to keep the ordering discipline observable.
	if err := c.Barrier(); err != nil {
		return nil, err
	}
	return &cartComm{
		procComm: procComm{g: c.g, rank: c.rank},
		dims:     slices.Clone(dims),
		periods:  slices.Clone(periods),
	}, nil
}

func (c *procComm) AllocShared(nbytes int) (*Window, error) {
	if nbytes < 0 {
		return nil, errors.Wrapf(ErrTransport, "cannot allocate a window of %d bytes", nbytes)
	}
	var win *Window
	if c.rank == 0 {
		win = &Window{data: make([]byte, nbytes)}
	}
	published := c.g.coll.exchange(c.rank, win)
	win = published[0].(*Window)
	if win == nil {
		return nil, errors.Wrap(ErrTransport, "window rendezvous lost the allocation")
	}
	return win, nil
}

func (c *procComm) Send(dst, tag int, data []byte) error {
	if dst < 0 || dst >= c.g.n {
		return errors.Wrapf(ErrTransport, "send to rank %d outside group of size %d", dst, c.g.n)
	}
	c.g.mbox[dst].put(message{src: c.rank, tag: tag, data: slices.Clone(data)})
	return nil
}

func (c *procComm) Recv(src, tag int) ([]byte, error) {
	if src < 0 || src >= c.g.n {
		return nil, errors.Wrapf(ErrTransport, "recv from rank %d outside group of size %d", src, c.g.n)
	}
	return c.g.mbox[c.rank].take(src, tag), nil
}

func (c *procComm) Free() {}

// cartComm attaches the Cartesian topology to a group handle. Ranks map to
// coordinates in row-major order; there is no reordering.
type cartComm struct {
	procComm
	dims    []int
	periods []bool
}

func (c *cartComm) Dims() []int {
	return slices.Clone(c.dims)
}

func (c *cartComm) Periods() []bool {
	return slices.Clone(c.periods)
}

func (c *cartComm) Coords(rank int) []int {
	coords := make([]int, len(c.dims))
	for d := len(c.dims) - 1; d >= 0; d-- {
		coords[d] = rank % c.dims[d]
		rank /= c.dims[d]
	}
	return coords
}

func (c *cartComm) CartRank(coords []int) int {
	rank := 0
	for d := 0; d < len(c.dims); d++ {
		rank = rank*c.dims[d] + coords[d]
	}
	return rank
}

// mailbox is one member's unordered incoming-message buffer with
// (source, tag) matching.
type mailbox struct {
	mu   sync.Mutex
	cond *sync.Cond
	msgs []message
}

type message struct {
	src, tag int
	data     []byte
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) put(msg message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	m.cond.Broadcast()
}

func (m *mailbox) take(src, tag int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		for i, msg := range m.msgs {
			if msg.src == src && msg.tag == tag {
				m.msgs = append(m.msgs[:i], m.msgs[i+1:]...)
				return msg.data
			}
		}
		m.cond.Wait()
	}
}

// collective is a reusable all-to-all rendezvous: every member deposits a
// value, all block until the group is complete, and every member receives
// a snapshot of all values. Doubles as the barrier (nil values).
type collective struct {
	mu      sync.Mutex
	cond    *sync.Cond
	vals    []any
	arrived int
	phase   int // 0: gathering, 1: draining
}

func newCollective(n int) *collective {
	c := &collective{vals: make([]any, n)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *collective) exchange(rank int, v any) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.phase != 0 {
		c.cond.Wait()
	}
	c.vals[rank] = v
	c.arrived++
	if c.arrived == len(c.vals) {
		c.phase = 1
		c.cond.Broadcast()
	} else {
		for c.phase != 1 {
			c.cond.Wait()
		}
	}
	out := make([]any, len(c.vals))
	copy(out, c.vals)
	c.arrived--
	if c.arrived == 0 {
		c.phase = 0
		c.cond.Broadcast()
	}
	return out
}
