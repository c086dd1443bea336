// Package router implements the collision router of spec §4.3:
// normalizing the grid's generic {a_chunk, a_index, b_chunk, b_index}
// pairs into (source, destination) PotentialCollision batches grouped
// by destination chunk, using each side's registered mesh role.
package router

import (
	"github.com/sarchlab/meshtransfer/internal/geom"
	"github.com/sarchlab/meshtransfer/internal/grid"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
	"github.com/sarchlab/meshtransfer/internal/xerrors"
)

// ChunkLookup resolves a chunk id to the chunk it belongs to, and
// reports whether the id is registered at all. The router needs only
// a chunk's Role and coordinate lookup, not the whole registry.
type ChunkLookup interface {
	Lookup(id meshpart.ChunkID) (*meshpart.Chunk, bool)
}

// MapLookup adapts a plain map to ChunkLookup, convenient for tests
// and for small in-process registries.
type MapLookup map[meshpart.ChunkID]*meshpart.Chunk

func (m MapLookup) Lookup(id meshpart.ChunkID) (*meshpart.Chunk, bool) {
	c, ok := m[id]
	return c, ok
}

// Route normalizes a batch of grid pairs into PotentialCollision lists
// keyed by source chunk, spec §4.3. Spec frames this as a dest→source
// hop (the router groups by destination chunk, and the destination
// chunk then forwards to source chunks); this single-process model
// collapses both steps into one grouping pass, since each record
// already carries its DestChunk for the return trip — see DESIGN.md.
// Returns a ProtocolError (fatal, per spec §7) on any same-role pair or
// any pair with an endpoint outside both registered meshes.
func Route(pairs []grid.Pair, lookup ChunkLookup) (map[meshpart.ChunkID][]meshpart.PotentialCollision, error) {
	out := make(map[meshpart.ChunkID][]meshpart.PotentialCollision)

	for _, p := range pairs {
		a, aOK := lookup.Lookup(p.AChunk)
		b, bOK := lookup.Lookup(p.BChunk)
		if !aOK || !bOK {
			return nil, xerrors.NewProtocolError(
				"collision references unregistered chunk (a=%d ok=%v, b=%d ok=%v)",
				p.AChunk, aOK, p.BChunk, bOK)
		}
		if a.Role == b.Role {
			return nil, xerrors.NewProtocolError(
				"collision between two %s chunks (%d, %d): grid or registration bug", a.Role, p.AChunk, p.BChunk)
		}

		var srcChunk, dstChunk *meshpart.Chunk
		var srcTet, dstPoint uint32
		if a.Role == meshpart.RoleSource {
			srcChunk, srcTet = a, p.AIndex
			dstChunk, dstPoint = b, p.BIndex
		} else {
			srcChunk, srcTet = b, p.BIndex
			dstChunk, dstPoint = a, p.AIndex
		}

		point := coordOf(dstChunk, dstPoint)
		out[srcChunk.ChunkID] = append(out[srcChunk.ChunkID], meshpart.PotentialCollision{
			SourceTetLocal: srcTet,
			DestChunk:      dstChunk.ChunkID,
			DestPointLocal: meshpart.LocalID(dstPoint),
			Point:          point,
		})
	}
	return out, nil
}

func coordOf(c *meshpart.Chunk, localIdx uint32) geom.Vec3 {
	return c.Coord(meshpart.LocalID(localIdx))
}
