// Package meshpart implements the data model of spec §3: Point, Tet,
// Chunk, and MeshHandle, plus the invariants spec §8 requires of them.
package meshpart

import "github.com/sarchlab/meshtransfer/internal/geom"

// GlobalID is a node id unique across the whole mesh.
type GlobalID uint64

// LocalID is a node id unique only within one chunk.
type LocalID uint32

// ChunkID is globally unique across both meshes in a transfer (spec
// §3: "chunk_id (globally unique across both meshes)"). MeshHandle's
// ChunkIDBase partitions the ChunkID space between the two meshes.
type ChunkID uint64

// MeshID identifies one registered mesh.
type MeshID uint32

// Role distinguishes a mesh's part in a transfer.
type Role uint8

const (
	RoleSource Role = iota + 1
	RoleDestination
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleDestination:
		return "destination"
	default:
		return "unknown"
	}
}

// FieldKind distinguishes scalar from 3-vector nodal fields
// (SPEC_FULL §3 expansion of the original scalar-only field).
type FieldKind uint8

const (
	FieldScalar FieldKind = iota + 1
	FieldVector3
)

// FaceTable is the fixed face ordering of spec §3: face i lists the
// local node indices opposite node i within the tet, in a fixed
// winding that determines outward normals. Part of the external
// contract; never changes.
var FaceTable = [4][3]int{
	{1, 2, 3},
	{2, 0, 3},
	{3, 0, 1},
	{0, 2, 1},
}

// faceEdgeIndexPairs lists the three unordered node-index pairs (as
// indices into a face's own node triple) forming that face's boundary
// edges; the same table applies to every face. Used by the mapper to
// derive boundary edges from boundary faces (spec §4.2).
var faceEdgeIndexPairs = [3][2]int{{0, 1}, {1, 2}, {2, 0}}

// Tet is one tetrahedral element, local-id only.
type Tet struct {
	Nodes [4]LocalID
}

// Edge is an unordered pair of global node ids, spec §3's
// "edge_comm_map ... shared edges as unordered node-id pairs".
type Edge struct {
	A, B GlobalID
}

// NewEdge returns the canonical (sorted) Edge between two global ids.
func NewEdge(a, b GlobalID) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// FaceEdges returns the three boundary edges (as global ids) of the
// given local face index (0..3) of tet t, using Chunk.Gid to map
// local to global.
func (t Tet) FaceEdges(face int, gid []GlobalID) [3]Edge {
	tri := FaceTable[face]
	var globals [3]GlobalID
	for i, localIdx := range tri {
		globals[i] = gid[t.Nodes[localIdx]]
	}
	var edges [3]Edge
	for i, pair := range faceEdgeIndexPairs {
		edges[i] = NewEdge(globals[pair[0]], globals[pair[1]])
	}
	return edges
}

// FaceGlobalNodes returns the three global node ids of the given local
// face index.
func (t Tet) FaceGlobalNodes(face int, gid []GlobalID) [3]GlobalID {
	tri := FaceTable[face]
	return [3]GlobalID{gid[t.Nodes[tri[0]]], gid[t.Nodes[tri[1]]], gid[t.Nodes[tri[2]]]}
}

// MeshHandle is the library-level reference returned by RegisterMesh,
// spec §3 / §6.
type MeshHandle struct {
	ID           MeshID
	NChunks      uint32
	ChunkIDBase  ChunkID
	Role         Role
	Field        FieldKind
}

// ChunkIDFor returns the globally unique chunk id for a per-mesh chunk
// index, honoring ChunkIDBase's disambiguation scheme (spec §3).
func (h MeshHandle) ChunkIDFor(localChunkIdx uint32) ChunkID {
	return h.ChunkIDBase + ChunkID(localChunkIdx)
}

// Owns reports whether id falls within this mesh's chunk id range.
func (h MeshHandle) Owns(id ChunkID) bool {
	return id >= h.ChunkIDBase && id < h.ChunkIDBase+ChunkID(h.NChunks)
}

// BroadPhaseBox is the grid's input unit, spec §3.
type BroadPhaseBox struct {
	OwnerChunk ChunkID
	LocalIndex uint32
	AABB       geom.AABB
	Priority   uint32
}

// Collision is the grid's raw output unit, spec §3, normalized later
// by the router into a (source,dest) pair.
type Collision struct {
	AChunk, BChunk ChunkID
	AIndex, BIndex uint32
}

// PotentialCollision is sent dest -> source, spec §3.
type PotentialCollision struct {
	SourceTetLocal uint32
	DestChunk      ChunkID
	DestPointLocal LocalID
	Point          geom.Vec3
}

// SolutionData is sent source -> dest, spec §3.
type SolutionData struct {
	DestChunk      ChunkID
	DestPointLocal LocalID
	SourceChunk    ChunkID
	SourceTet      uint32
	Value          geom.Vec3 // scalar fields use only .X
	Contained      bool
}
