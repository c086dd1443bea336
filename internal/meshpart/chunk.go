package meshpart

import (
	"fmt"

	"github.com/sarchlab/meshtransfer/internal/check"
	"github.com/sarchlab/meshtransfer/internal/geom"
)

// Sentinel is the pre-transfer placeholder value for destination
// fields, spec §4.6. NaN would also satisfy "detectable post-hoc" but
// -1.0 keeps arithmetic on an un-filled slot from panicking if a bug
// lets it leak into a sum.
const Sentinel = -1.0

// Chunk is one partition of a mesh resident on one rank, spec §3.
type Chunk struct {
	MeshID  MeshID
	ChunkID ChunkID
	Role    Role

	Inpoel []LocalID  // element -> local node, len % 4 == 0
	Gid    []GlobalID // local -> global, len == number of local nodes
	lid    map[GlobalID]LocalID

	X, Y, Z []float64 // parallel coordinate arrays, len == len(Gid)

	NodeCommMap map[ChunkID]map[GlobalID]struct{}
	EdgeCommMap map[ChunkID]map[Edge]struct{}

	U         []geom.Vec3 // field values, len == len(Gid)
	fieldKind FieldKind

	// stamp records, for shared-face tie-break bookkeeping (spec
	// §4.6), the (chunk,tet) origin of the value currently written
	// to U[i]. A stamp with set=false means unwritten.
	stamp []solutionStamp
}

type solutionStamp struct {
	set   bool
	chunk ChunkID
	tet   uint32
}

// NewChunk builds a Chunk from raw per-rank partition data — the shape
// produced by the out-of-scope partitioner/mesh-reader collaborators
// named in spec §1.
func NewChunk(meshID MeshID, chunkID ChunkID, role Role, field FieldKind,
	inpoel []LocalID, gid []GlobalID, x, y, z []float64) (*Chunk, error) {
	if len(inpoel)%4 != 0 {
		return nil, fmt.Errorf("chunk %d: |inpoel| = %d is not a multiple of 4", chunkID, len(inpoel))
	}
	if len(x) != len(gid) || len(y) != len(gid) || len(z) != len(gid) {
		return nil, fmt.Errorf("chunk %d: coordinate arrays must have size |gid| = %d", chunkID, len(gid))
	}

	lid := make(map[GlobalID]LocalID, len(gid))
	for i, g := range gid {
		if _, dup := lid[g]; dup {
			return nil, fmt.Errorf("chunk %d: duplicate global id %d", chunkID, g)
		}
		lid[g] = LocalID(i)
	}

	c := &Chunk{
		MeshID:      meshID,
		ChunkID:     chunkID,
		Role:        role,
		Inpoel:      inpoel,
		Gid:         gid,
		lid:         lid,
		X:           x,
		Y:           y,
		Z:           z,
		NodeCommMap: make(map[ChunkID]map[GlobalID]struct{}),
		EdgeCommMap: make(map[ChunkID]map[Edge]struct{}),
		U:           make([]geom.Vec3, len(gid)),
		fieldKind:   field,
		stamp:       make([]solutionStamp, len(gid)),
	}
	for i := range c.U {
		c.U[i] = geom.Vec3{X: Sentinel, Y: Sentinel, Z: Sentinel}
	}
	return c, nil
}

// NTets returns the number of tetrahedra in this chunk.
func (c *Chunk) NTets() int { return len(c.Inpoel) / 4 }

// Tet returns tet index i (0-based).
func (c *Chunk) Tet(i int) Tet {
	var t Tet
	copy(t.Nodes[:], c.Inpoel[i*4:i*4+4])
	return t
}

// Coord returns the coordinate of local node id l as a geom.Vec3.
func (c *Chunk) Coord(l LocalID) geom.Vec3 {
	return geom.Vec3{X: c.X[l], Y: c.Y[l], Z: c.Z[l]}
}

// Local maps a global id to a local id within this chunk, reporting
// false if the node is not local.
func (c *Chunk) Local(g GlobalID) (LocalID, bool) {
	l, ok := c.lid[g]
	return l, ok
}

// Global maps a local id to its global id.
func (c *Chunk) Global(l LocalID) GlobalID { return c.Gid[l] }

// AddCommNode records that global node g is shared with neighbor
// chunk, in both directions isn't implied here — callers (the mapper)
// are responsible for calling this on both sides, per spec §8's
// symmetry invariant.
func (c *Chunk) AddCommNode(neighbor ChunkID, g GlobalID) {
	set, ok := c.NodeCommMap[neighbor]
	if !ok {
		set = make(map[GlobalID]struct{})
		c.NodeCommMap[neighbor] = set
	}
	set[g] = struct{}{}
}

// AddCommEdge records that edge e is shared with neighbor chunk.
func (c *Chunk) AddCommEdge(neighbor ChunkID, e Edge) {
	set, ok := c.EdgeCommMap[neighbor]
	if !ok {
		set = make(map[Edge]struct{})
		c.EdgeCommMap[neighbor] = set
	}
	set[e] = struct{}{}
}

// Owner returns the lowest-indexed chunk sharing node g, including c
// itself — spec §3/§9: "lowest-indexed chunk owns", "a pure function
// of node_comm_map, not stored state".
func (c *Chunk) Owner(g GlobalID) ChunkID {
	owner := c.ChunkID
	for neighbor, set := range c.NodeCommMap {
		if _, shared := set[g]; !shared {
			continue
		}
		if neighbor < owner {
			owner = neighbor
		}
	}
	return owner
}

// IsOwner reports whether this chunk owns node g (contributes it to
// broad phase).
func (c *Chunk) IsOwner(g GlobalID) bool {
	return c.Owner(g) == c.ChunkID
}

// SetField replaces this chunk's field values from a per-node scalar
// array (spec §6 set_source_field). len(values) must equal len(Gid).
func (c *Chunk) SetField(values []float64) error {
	if len(values) != len(c.Gid) {
		return fmt.Errorf("chunk %d: field has %d values, want %d", c.ChunkID, len(values), len(c.Gid))
	}
	for i, v := range values {
		c.U[i] = geom.Vec3{X: v}
	}
	c.fieldKind = FieldScalar
	return nil
}

// SetVectorField replaces this chunk's field values from a per-node
// 3-vector array (SPEC_FULL §3 FieldKind.Vector3).
func (c *Chunk) SetVectorField(values []geom.Vec3) error {
	if len(values) != len(c.Gid) {
		return fmt.Errorf("chunk %d: field has %d values, want %d", c.ChunkID, len(values), len(c.Gid))
	}
	copy(c.U, values)
	c.fieldKind = FieldVector3
	return nil
}

// FieldKind reports whether this chunk's U holds scalar or vector data.
func (c *Chunk) FieldKind() FieldKind { return c.fieldKind }

// ResetDestinationField (re)initializes U to the sentinel value ahead
// of a transfer, spec §4.6.
func (c *Chunk) ResetDestinationField() {
	for i := range c.U {
		c.U[i] = geom.Vec3{X: Sentinel, Y: Sentinel, Z: Sentinel}
		c.stamp[i] = solutionStamp{}
	}
}

// ApplySolution writes an interpolated value to destination local node
// l, applying the deterministic tie-break of spec §4.4/§4.6: the first
// value wins, and a later one overwrites only if its (chunk, tet)
// stamp is lexicographically smaller than the stored one.
func (c *Chunk) ApplySolution(l LocalID, value geom.Vec3, fromChunk ChunkID, fromTet uint32) {
	cur := c.stamp[l]
	if !cur.set {
		c.U[l] = value
		c.stamp[l] = solutionStamp{set: true, chunk: fromChunk, tet: fromTet}
		return
	}
	if fromChunk < cur.chunk || (fromChunk == cur.chunk && fromTet < cur.tet) {
		c.U[l] = value
		c.stamp[l] = solutionStamp{set: true, chunk: fromChunk, tet: fromTet}
	}
}

// AdoptFromOwner copies a solved value from the owning chunk's copy of
// a shared node into this chunk's own local copy of that same global
// node. Only the owner receives narrow-phase results directly (spec
// §4.6 "owner contributes the node to broad phase"); every other chunk
// sharing the node needs this explicit sync pass so its own local
// array is not left at the sentinel. No-op if the owner's copy is
// itself still unsolved.
func (c *Chunk) AdoptFromOwner(owner *Chunk, ownerLocal, local LocalID) {
	if owner.IsOrphan(ownerLocal) {
		return
	}
	c.U[local] = owner.U[ownerLocal]
	c.stamp[local] = owner.stamp[ownerLocal]
}

// IsOrphan reports whether local node l never received a solution
// (still holds the sentinel), spec §4.6/§7 OrphanPoint.
func (c *Chunk) IsOrphan(l LocalID) bool {
	return !c.stamp[l].set
}

// OrphanCount counts nodes still holding the sentinel.
func (c *Chunk) OrphanCount() int {
	n := 0
	for i := range c.stamp {
		if !c.stamp[i].set {
			n++
		}
	}
	return n
}

// CheckInvariants validates the spec §8 invariants that hold for any
// registered chunk: |inpoel| % 4 == 0 (guaranteed by NewChunk, checked
// again defensively) and every tet index in range. Only active in
// debug builds via internal/check.
func (c *Chunk) CheckInvariants() {
	check.Assertf(len(c.Inpoel)%4 == 0, "chunk %d: |inpoel| %% 4 != 0", c.ChunkID)
	for i, n := range c.Inpoel {
		check.Assertf(int(n) < len(c.Gid), "chunk %d: inpoel[%d]=%d out of range [0,%d)", c.ChunkID, i, n, len(c.Gid))
	}
	check.Assertf(len(c.X) == len(c.Gid) && len(c.Y) == len(c.Gid) && len(c.Z) == len(c.Gid),
		"chunk %d: coordinate arrays out of sync with |gid|=%d", c.ChunkID, len(c.Gid))
}
