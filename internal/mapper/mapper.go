// Package mapper implements the mesh registration protocol of spec
// §4.2: deriving each chunk's node_comm_map and edge_comm_map from raw
// element connectivity, with no central authority, via a bucket-owner
// inversion of (entity, sender) records. Grounded in internal/actor for
// the message-passing shape and internal/reduce for the two ordered
// rendezvous points (queried, then responded) the protocol requires.
package mapper

import (
	"context"
	"sort"
	"strconv"

	"github.com/sarchlab/meshtransfer/internal/actor"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
	"github.com/sarchlab/meshtransfer/internal/reduce"
	"github.com/sarchlab/meshtransfer/internal/xerrors"
)

type nodeQuery struct {
	Entity meshpart.GlobalID
	Sender meshpart.ChunkID
}

type edgeQuery struct {
	Entity meshpart.Edge
	Sender meshpart.ChunkID
}

// queriesSent marks that the sending chunk has dispatched every one of
// its boundary-entity records (to every bucket owner, including
// itself). FIFO delivery between any two actors means a bucket owner
// that has received this from every chunk has also received every
// real record those chunks sent it.
type queriesSent struct {
	Sender meshpart.ChunkID
}

type nodeResponse struct {
	Entity meshpart.GlobalID
	Peers  []meshpart.ChunkID
}

type edgeResponse struct {
	Entity meshpart.Edge
	Peers  []meshpart.ChunkID
}

// chunkActor plays both roles spec §4.2 assigns to a chunk: the
// "sender" reporting its own boundary entities, and the "bucket owner"
// collecting and inverting whatever entities hashed to it.
type chunkActor struct {
	chunk *meshpart.Chunk
	refs  []actor.Ref // index == local chunk index, owner-ref lookup
	self  int

	nChunks  int
	chunkIDs []meshpart.ChunkID

	// owner-side accumulation.
	nodeSenders  map[meshpart.GlobalID][]meshpart.ChunkID
	edgeSenders  map[meshpart.Edge][]meshpart.ChunkID
	queriedSeen  int
	respondedBar *reduce.Counter // shared across all chunkActors; fires once globally

	// sender-side bookkeeping.
	sentQueries  int
	recvResponse int
	doneBar      *reduce.Counter // shared across all chunkActors; fires once globally
}

func (a *chunkActor) Handle(msg actor.Msg) {
	switch m := msg.(type) {
	case nodeQuery:
		a.nodeSenders[m.Entity] = append(a.nodeSenders[m.Entity], m.Sender)
	case edgeQuery:
		a.edgeSenders[m.Entity] = append(a.edgeSenders[m.Entity], m.Sender)
	case queriesSent:
		a.queriedSeen++
		if a.queriedSeen == a.nChunks {
			a.respond()
			a.respondedBar.Signal()
		}
	case nodeResponse:
		for _, peer := range m.Peers {
			if peer == a.chunk.ChunkID {
				continue
			}
			a.chunk.AddCommNode(peer, m.Entity)
		}
		a.recvResponse++
		a.maybeDone()
	case edgeResponse:
		for _, peer := range m.Peers {
			if peer == a.chunk.ChunkID {
				continue
			}
			a.chunk.AddCommEdge(peer, m.Entity)
		}
		a.recvResponse++
		a.maybeDone()
	}
}

func (a *chunkActor) maybeDone() {
	if a.recvResponse == a.sentQueries {
		a.doneBar.Signal()
	}
}

// respond inverts this bucket owner's collected records and sends,
// to every sender that contributed an entity, the set of every other
// chunk that also contributed that same entity.
func (a *chunkActor) respond() {
	for entity, senders := range a.nodeSenders {
		for _, sender := range senders {
			peers := append([]meshpart.ChunkID(nil), senders...)
			a.refs[refIndex(a, sender)].Send(nodeResponse{Entity: entity, Peers: peers})
		}
	}
	for entity, senders := range a.edgeSenders {
		for _, sender := range senders {
			peers := append([]meshpart.ChunkID(nil), senders...)
			a.refs[refIndex(a, sender)].Send(edgeResponse{Entity: entity, Peers: peers})
		}
	}
}

// refIndex resolves a ChunkID back to its position in the owning
// mesh's ref slice. Linear scan is fine: bucket fan-in keeps this
// called once per (entity, sender) pair, not per node.
func refIndex(a *chunkActor, id meshpart.ChunkID) int {
	for i, c := range a.chunkIDs {
		if c == id {
			return i
		}
	}
	panic("mapper: unknown chunk id in response routing")
}

// Run executes the registration protocol for one mesh's chunks,
// mutating each chunk's NodeCommMap/EdgeCommMap in place. chunks must
// be ordered by local chunk index 0..C-1 within the mesh; totalNodes
// is the mesh's global node count, used to compute the bucket size
// spec §4.2 defines as N/C.
func Run(sys *actor.System, meshID meshpart.MeshID, chunks []*meshpart.Chunk, totalNodes uint64) error {
	c := len(chunks)
	if c == 0 {
		return nil
	}
	for _, chunk := range chunks {
		if chunk.NTets() == 0 {
			return xerrors.NewPartitionError(uint32(meshID), uint64(chunk.ChunkID))
		}
	}

	bucketSize := totalNodes / uint64(c)
	if bucketSize == 0 {
		bucketSize = 1
	}
	bucketOf := func(g meshpart.GlobalID) int {
		b := int(uint64(g) / bucketSize)
		if b >= c {
			b = c - 1
		}
		return b
	}

	chunkIDs := make([]meshpart.ChunkID, c)
	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ChunkID
	}

	doneCh := make(chan struct{})
	doneBar := reduce.NewCounter(c, func() { close(doneCh) })
	respondedBar := reduce.NewCounter(c, func() {})

	actors := make([]*chunkActor, c)
	refs := make([]actor.Ref, c)
	for i, chunk := range chunks {
		actors[i] = &chunkActor{
			chunk:        chunk,
			self:         i,
			nChunks:      c,
			nodeSenders:  make(map[meshpart.GlobalID][]meshpart.ChunkID),
			edgeSenders:  make(map[meshpart.Edge][]meshpart.ChunkID),
			respondedBar: respondedBar,
			doneBar:      doneBar,
			chunkIDs:     chunkIDs,
		}
	}
	for i, a := range actors {
		a.refs = refs
		refs[i] = sys.Spawn(context.Background(), ownerName(meshID, a.chunk.ChunkID), a)
	}

	for i, chunk := range chunks {
		nodes, edges := boundaryEntities(chunk)
		for _, g := range nodes {
			owner := refs[bucketOf(g)]
			owner.Send(nodeQuery{Entity: g, Sender: chunk.ChunkID})
		}
		for _, e := range edges {
			owner := refs[bucketOf(e.A)]
			owner.Send(edgeQuery{Entity: e, Sender: chunk.ChunkID})
		}
		actors[i].sentQueries = len(nodes) + len(edges)
		if actors[i].sentQueries == 0 {
			// Nothing to wait a response for; this chunk is done as
			// soon as the query phase it still must participate in
			// (via queriesSent below) completes.
			doneBar.Signal()
		}
	}
	for _, ref := range refs {
		for _, chunk := range chunks {
			ref.Send(queriesSent{Sender: chunk.ChunkID})
		}
	}

	<-doneCh
	sys.Stop()
	return nil
}

func ownerName(meshID meshpart.MeshID, chunkID meshpart.ChunkID) string {
	return "mapper-owner-" + strconv.FormatUint(uint64(meshID), 10) + "-" + strconv.FormatUint(uint64(chunkID), 10)
}

// boundaryEntities returns, for chunk c, the global ids of its
// chare-boundary nodes and the set of its boundary edges, spec §4.2.
// A local face is a boundary face if no other tet in the same chunk
// shares that exact node triple.
func boundaryEntities(c *meshpart.Chunk) ([]meshpart.GlobalID, []meshpart.Edge) {
	type key [3]meshpart.LocalID

	faceCount := make(map[key]int)
	faceOf := make(map[key]struct {
		tetIdx int
		face   int
	})

	n := c.NTets()
	for t := 0; t < n; t++ {
		tet := c.Tet(t)
		for f := 0; f < 4; f++ {
			tri := meshpart.FaceTable[f]
			k := key{tet.Nodes[tri[0]], tet.Nodes[tri[1]], tet.Nodes[tri[2]]}
			sort.Slice(k[:], func(i, j int) bool { return k[i] < k[j] })
			faceCount[k]++
			faceOf[k] = struct {
				tetIdx int
				face   int
			}{t, f}
		}
	}

	nodeSet := make(map[meshpart.GlobalID]struct{})
	edgeSet := make(map[meshpart.Edge]struct{})
	for k, count := range faceCount {
		if count != 1 {
			continue
		}
		loc := faceOf[k]
		tet := c.Tet(loc.tetIdx)
		gnodes := tet.FaceGlobalNodes(loc.face, c.Gid)
		for _, g := range gnodes {
			nodeSet[g] = struct{}{}
		}
		for _, e := range tet.FaceEdges(loc.face, c.Gid) {
			edgeSet[e] = struct{}{}
		}
	}

	nodes := make([]meshpart.GlobalID, 0, len(nodeSet))
	for g := range nodeSet {
		nodes = append(nodes, g)
	}
	edges := make([]meshpart.Edge, 0, len(edgeSet))
	for e := range edgeSet {
		edges = append(edges, e)
	}
	return nodes, edges
}
