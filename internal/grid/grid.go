// Package grid implements the distributed spatial hash broad phase of
// spec §4.1: a uniform 3-D grid that bins contributed boxes by cell,
// partitions cells across ranks by a deterministic hash, and on flush
// emits every overlapping cross-priority pair exactly once. Grounded
// in internal/actor for the message-passing shape and internal/reduce
// for the two-stage flush barrier.
package grid

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/sarchlab/meshtransfer/internal/actor"
	"github.com/sarchlab/meshtransfer/internal/geom"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
	"github.com/sarchlab/meshtransfer/internal/reduce"
)

// Cell is a signed integer grid-cell index triple.
type Cell struct {
	X, Y, Z int64
}

// Box is one contributed broad-phase entry, spec §3's Broad-phase box.
type Box struct {
	OwnerChunk meshpart.ChunkID
	LocalIndex uint32
	AABB       geom.AABB
	Priority   uint32
}

// Pair is an emitted candidate collision, spec §3's Collision.
type Pair struct {
	AChunk meshpart.ChunkID
	AIndex uint32
	BChunk meshpart.ChunkID
	BIndex uint32
}

// Extents is the (dx, dy, dz) uniform cell size, spec §4.1 / SPEC_FULL
// §4 config keys grid.cell_x/y/z.
type Extents struct {
	DX, DY, DZ float64
}

func (e Extents) cellOf(p geom.Vec3) Cell {
	return Cell{
		X: int64(floorDiv(p.X, e.DX)),
		Y: int64(floorDiv(p.Y, e.DY)),
		Z: int64(floorDiv(p.Z, e.DZ)),
	}
}

func floorDiv(v, d float64) float64 {
	return math.Floor(v / d)
}

func (e Extents) cellsOverlapping(box geom.AABB) []Cell {
	min := e.cellOf(box.Min)
	max := e.cellOf(box.Max)
	cells := make([]Cell, 0, 8)
	for x := min.X; x <= max.X; x++ {
		for y := min.Y; y <= max.Y; y++ {
			for z := min.Z; z <= max.Z; z++ {
				cells = append(cells, Cell{x, y, z})
			}
		}
	}
	return cells
}

// rankOf hashes a cell index triple to an owner in [0, nRanks), spec
// §4.1: "partitioned across ranks by a deterministic hash of the
// cell-index triple (the same function on every rank)". SPEC_FULL §4
// resolves the spec's open choice to FNV-1a of the triple.
func rankOf(c Cell, nRanks int) int {
	if nRanks <= 1 {
		return 0
	}
	h := fnv.New64a()
	var buf [24]byte
	putInt64(buf[0:8], c.X)
	putInt64(buf[8:16], c.Y)
	putInt64(buf[16:24], c.Z)
	_, _ = h.Write(buf[:])
	return int(h.Sum64() % uint64(nRanks))
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func less(a, b Cell) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

type contribution struct {
	cell Cell
	box  Box
}

type doneContributing struct{ Rank int }

type cellOwnerActor struct {
	cells    map[Cell][]Box
	ownerBar *reduce.Counter
	out      func(Pair)
}

func (o *cellOwnerActor) Handle(msg actor.Msg) {
	switch m := msg.(type) {
	case contribution:
		o.cells[m.cell] = append(o.cells[m.cell], m.box)
	case doneContributing:
		o.ownerBar.Signal()
	}
}

// flush performs the per-cell Cartesian product, overlap filter, and
// lexicographically-smallest-shared-cell dedup of spec §4.1 over this
// owner's cells: cells are visited in lexicographic order, so a pair is
// emitted from the smallest shared cell this owner holds. A pair whose
// boxes also share cells held by other owners is deduplicated again in
// Grid.Flush. Called once the registering barrier has fired for all
// ranks.
func (o *cellOwnerActor) flush() {
	seen := make(map[[2]uint64]struct{})
	cellKeys := make([]Cell, 0, len(o.cells))
	for c := range o.cells {
		cellKeys = append(cellKeys, c)
	}
	sort.Slice(cellKeys, func(i, j int) bool { return less(cellKeys[i], cellKeys[j]) })

	for _, c := range cellKeys {
		boxes := o.cells[c]
		for i := 0; i < len(boxes); i++ {
			for j := i + 1; j < len(boxes); j++ {
				a, b := boxes[i], boxes[j]
				if a.Priority == b.Priority {
					continue
				}
				if !a.AABB.Overlaps(b.AABB) {
					continue
				}
				key := pairKey(a, b)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				o.out(normalizedPair(a, b))
			}
		}
	}
}

func pairKey(a, b Box) [2]uint64 {
	ka := uint64(a.OwnerChunk)<<32 | uint64(a.LocalIndex)
	kb := uint64(b.OwnerChunk)<<32 | uint64(b.LocalIndex)
	if ka > kb {
		ka, kb = kb, ka
	}
	return [2]uint64{ka, kb}
}

func normalizedPair(a, b Box) Pair {
	if a.OwnerChunk > b.OwnerChunk {
		a, b = b, a
	}
	return Pair{AChunk: a.OwnerChunk, AIndex: a.LocalIndex, BChunk: b.OwnerChunk, BIndex: b.LocalIndex}
}

// Grid is one broad-phase run: contribute boxes from any number of
// logical ranks, then Flush to receive every overlapping cross-priority
// pair exactly once.
type Grid struct {
	extents Extents
	nRanks  int
	sys     *actor.System
	owners  []*cellOwnerActor
	refs    []actor.Ref

	mu    sync.Mutex
	pairs []Pair
}

// New creates a grid with the given cell extents and nRanks cell-owner
// actors (each rank in this single-process model is one owner actor,
// not an OS process). Contribute takes no rank argument: every box is
// routed to the owners of the cells it overlaps.
func New(extents Extents, nRanks int) *Grid {
	if nRanks < 1 {
		nRanks = 1
	}
	sys := actor.NewSystem(64)
	g := &Grid{extents: extents, nRanks: nRanks, sys: sys}
	g.owners = make([]*cellOwnerActor, nRanks)
	g.refs = make([]actor.Ref, nRanks)
	for i := 0; i < nRanks; i++ {
		o := &cellOwnerActor{cells: make(map[Cell][]Box), out: func(p Pair) {
			g.mu.Lock()
			g.pairs = append(g.pairs, p)
			g.mu.Unlock()
		}}
		g.owners[i] = o
		g.refs[i] = sys.Spawn(context.Background(), ownerName(i), o)
	}
	return g
}

func ownerName(i int) string {
	return "grid-owner-" + strconv.Itoa(i)
}

// Contribute hashes box into every cell it overlaps and routes each
// hash to its owning rank actor. Malformed (NaN) boxes are fatal per
// spec §4.1.
func (g *Grid) Contribute(box Box) error {
	if box.AABB.HasNaN() {
		return errNaNBox
	}
	for _, c := range g.extents.cellsOverlapping(box.AABB) {
		owner := rankOf(c, g.nRanks)
		g.refs[owner].Send(contribution{cell: c, box: box})
	}
	return nil
}

// Flush executes the two-stage barrier of spec §4.1: every rank signals
// done registering to every cell owner it may have contributed to, and
// once an owner has heard that from all ranks it flushes its cells;
// Flush returns once every owner has flushed. Returns the complete
// pair set.
func (g *Grid) Flush() []Pair {
	doneCh := make(chan struct{})
	allOwnersDone := reduce.NewCounter(g.nRanks, func() { close(doneCh) })
	for _, o := range g.owners {
		owner := o
		owner.ownerBar = reduce.NewCounter(g.nRanks, func() {
			owner.flush()
			allOwnersDone.Signal()
		})
	}
	for i := 0; i < g.nRanks; i++ {
		for _, ref := range g.refs {
			ref.Send(doneContributing{Rank: i})
		}
	}
	<-doneCh

	// Each owner dedups only among its own cells; a pair whose boxes
	// share cells on several owners arrives once from each of them.
	seen := make(map[Pair]struct{}, len(g.pairs))
	unique := g.pairs[:0]
	for _, p := range g.pairs {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	g.pairs = unique

	g.sys.Stop()
	return g.pairs
}

type nanBoxError struct{}

func (nanBoxError) Error() string { return "grid: contributed box contains NaN" }

var errNaNBox error = nanBoxError{}
