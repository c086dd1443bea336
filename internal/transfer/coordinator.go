// Package transfer implements the top-level coordinator of spec §4.5:
// the state machine that sequences registration, broad-phase,
// narrow-phase, writeback, and quiescence. Grounded in the teacher's
// phase-machine shape (internal/engine.Engine before this exercise's
// transformation) but re-expressed as synchronous library entry points
// per spec §6 — register_mesh/transfer are direct calls, not messages,
// so the coordinator itself needs no actor wrapper; it drives the
// actor-based mapper and grid stages and the errgroup-based narrow
// phase beneath it.
package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/sarchlab/meshtransfer/internal/actor"
	"github.com/sarchlab/meshtransfer/internal/config"
	"github.com/sarchlab/meshtransfer/internal/geom"
	"github.com/sarchlab/meshtransfer/internal/grid"
	"github.com/sarchlab/meshtransfer/internal/mapper"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
	"github.com/sarchlab/meshtransfer/internal/narrow"
	"github.com/sarchlab/meshtransfer/internal/progress"
	"github.com/sarchlab/meshtransfer/internal/router"
	"github.com/sarchlab/meshtransfer/internal/telemetry"
	"github.com/sarchlab/meshtransfer/internal/xerrors"
	"go.opentelemetry.io/otel/trace"
)

var transferSteps = []progress.StepConfig{
	{ID: "broad_phase_contrib", Title: "building broad-phase boxes"},
	{ID: "broad_phase_deliver", Title: "flushing cell grid"},
	{ID: "route", Title: "routing candidate pairs"},
	{ID: "narrow", Title: "evaluating narrow phase"},
}

// ChunkData is the raw per-chunk partition data supplied by the
// out-of-scope partitioner/mesh-reader collaborators named in spec §1.
type ChunkData struct {
	Inpoel  []meshpart.LocalID
	Gid     []meshpart.GlobalID
	X, Y, Z []float64
}

// Report is the user-visible end-of-transfer output of spec §7: counts
// of destination points, source tets, candidate pairs, containments,
// orphans, and numeric skips.
type Report struct {
	DestinationPoints int
	SourceTets        int
	CandidatePairs    int
	Containments      int
	Orphans           int
	NumericSkips      int
}

// Coordinator owns the mesh registry and drives transfers. One
// Coordinator corresponds to one host-process instance of the library
// described in spec §6.
type Coordinator struct {
	cfg    config.Config
	sys    *actor.System
	tracer trace.Tracer
	report progress.Reporter

	mu           sync.Mutex
	phase        Phase
	nextChunkID  meshpart.ChunkID
	meshes       map[meshpart.MeshID]meshpart.MeshHandle
	chunks       map[meshpart.ChunkID]*meshpart.Chunk
	chunksByMesh map[meshpart.MeshID][]*meshpart.Chunk
}

// Option configures optional Coordinator collaborators that spec §6
// leaves up to the host process (a tracer, a progress sink).
type Option func(*Coordinator)

// WithTracer attaches an OpenTelemetry tracer; every Transfer call then
// emits one root span plus one child span per phase (internal/telemetry).
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = tracer }
}

// WithProgressReporter attaches a progress.Reporter; every Transfer call
// then emits a progress.Snapshot on every phase transition.
func WithProgressReporter(reporter progress.Reporter) Option {
	return func(c *Coordinator) { c.report = reporter }
}

// New builds a Coordinator against cfg, spec §6's grid.cell_x/y/z and
// numeric.skip_ratio_threshold tunables.
func New(cfg config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:          cfg,
		sys:          actor.NewSystem(256),
		phase:        PhaseInit,
		meshes:       make(map[meshpart.MeshID]meshpart.MeshHandle),
		chunks:       make(map[meshpart.ChunkID]*meshpart.Chunk),
		chunksByMesh: make(map[meshpart.MeshID][]*meshpart.Chunk),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the coordinator's current state, mainly for tests and
// diagnostics.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// RegisterMesh builds chunks from perChunk, runs the mapper protocol
// to populate their comm maps, and on success yields a mesh handle,
// spec §6 register_mesh. Fails with PartitionError if any chunk
// receives zero elements.
func (c *Coordinator) RegisterMesh(meshID meshpart.MeshID, role meshpart.Role, field meshpart.FieldKind, perChunk []ChunkData) (meshpart.MeshHandle, error) {
	c.mu.Lock()
	base := c.nextChunkID
	c.nextChunkID += meshpart.ChunkID(len(perChunk))
	c.mu.Unlock()

	chunks := make([]*meshpart.Chunk, len(perChunk))
	var totalNodes uint64
	for i, cd := range perChunk {
		chunkID := base + meshpart.ChunkID(i)
		chunk, err := meshpart.NewChunk(meshID, chunkID, role, field, cd.Inpoel, cd.Gid, cd.X, cd.Y, cd.Z)
		if err != nil {
			return meshpart.MeshHandle{}, xerrors.NewConfigError("register_mesh", err)
		}
		chunks[i] = chunk
		totalNodes += uint64(len(cd.Gid))
	}

	if err := mapper.Run(c.sys, meshID, chunks, totalNodes); err != nil {
		return meshpart.MeshHandle{}, err
	}

	handle := meshpart.MeshHandle{
		ID:          meshID,
		NChunks:     uint32(len(chunks)),
		ChunkIDBase: base,
		Role:        role,
		Field:       field,
	}

	c.mu.Lock()
	c.meshes[meshID] = handle
	c.chunksByMesh[meshID] = chunks
	for _, chunk := range chunks {
		c.chunks[chunk.ChunkID] = chunk
	}
	if role == meshpart.RoleSource {
		c.phase = PhaseRegDstReady
	} else {
		c.phase = PhaseReady
	}
	c.mu.Unlock()

	return handle, nil
}

// UnregisterMesh destroys a mesh's chunks, spec §9's explicit
// unregistration (the original left this implicit).
func (c *Coordinator) UnregisterMesh(handle meshpart.MeshHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chunk := range c.chunksByMesh[handle.ID] {
		delete(c.chunks, chunk.ChunkID)
	}
	delete(c.chunksByMesh, handle.ID)
	delete(c.meshes, handle.ID)
}

// SetSourceField replaces a chunk's field, spec §6 set_source_field.
func (c *Coordinator) SetSourceField(handle meshpart.MeshHandle, chunkIdx uint32, values []float64) error {
	chunk, err := c.chunkOf(handle, chunkIdx)
	if err != nil {
		return err
	}
	return chunk.SetField(values)
}

// SetSourceVectorField is the SPEC_FULL §3 Vector3 FieldKind analogue
// of SetSourceField.
func (c *Coordinator) SetSourceVectorField(handle meshpart.MeshHandle, chunkIdx uint32, values []geom.Vec3) error {
	chunk, err := c.chunkOf(handle, chunkIdx)
	if err != nil {
		return err
	}
	return chunk.SetVectorField(values)
}

// SetDestinationPoints marks chunkIdx of handle as destination-input
// ready, spec §6 set_destination_points. Coordinates already live on
// the chunk from registration; this resets the field to the sentinel
// ahead of a transfer.
func (c *Coordinator) SetDestinationPoints(handle meshpart.MeshHandle, chunkIdx uint32) error {
	chunk, err := c.chunkOf(handle, chunkIdx)
	if err != nil {
		return err
	}
	chunk.ResetDestinationField()
	return nil
}

func (c *Coordinator) chunkOf(handle meshpart.MeshHandle, chunkIdx uint32) (*meshpart.Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk, ok := c.chunks[handle.ChunkIDFor(chunkIdx)]
	if !ok {
		return nil, xerrors.NewProtocolError("unknown chunk %d for mesh %d", chunkIdx, handle.ID)
	}
	return chunk, nil
}

// Chunk exposes a single registered chunk for callers that need direct
// access to it, such as internal/checkpoint's Save/Load. It returns the
// same *meshpart.Chunk the coordinator itself reads and writes during
// Transfer, so a caller checkpointing mid-run sees live state.
func (c *Coordinator) Chunk(handle meshpart.MeshHandle, chunkIdx uint32) (*meshpart.Chunk, error) {
	return c.chunkOf(handle, chunkIdx)
}

// AdoptChunk installs chunk (typically restored from a checkpoint) into
// the registry under handle's identity at position chunkIdx, replacing
// whatever chunk RegisterMesh created for that slot. Used to resume a
// run from persisted state instead of re-registering from scratch.
func (c *Coordinator) AdoptChunk(handle meshpart.MeshHandle, chunkIdx uint32, chunk *meshpart.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks[handle.ChunkIDFor(chunkIdx)] = chunk
	chunks := c.chunksByMesh[handle.ID]
	for i, existing := range chunks {
		if existing.ChunkID == handle.ChunkIDFor(chunkIdx) {
			chunks[i] = chunk
			return
		}
	}
}

// Transfer runs the full state machine of spec §4.5 from READY through
// DONE, invoking completionCb with the final error (nil on success)
// once destination chunks hold their interpolated values. Returns to
// READY afterward so the coordinator can run another transfer.
func (c *Coordinator) Transfer(ctx context.Context, srcHandle, dstHandle meshpart.MeshHandle, completionCb func(Report, error)) error {
	c.mu.Lock()
	srcChunks := append([]*meshpart.Chunk(nil), c.chunksByMesh[srcHandle.ID]...)
	dstChunks := append([]*meshpart.Chunk(nil), c.chunksByMesh[dstHandle.ID]...)
	c.phase = PhaseBroadPhaseContrib
	c.mu.Unlock()

	tracker := progress.New(c.report, transferSteps...)

	var op *telemetry.Operation
	if c.tracer != nil {
		var err error
		op, err = telemetry.EmitPlan(ctx, c.tracer,
			fmt.Sprintf("transfer:%d->%d", srcHandle.ID, dstHandle.ID), telemetry.DefaultPlan())
		if err != nil {
			return err
		}
		ctx = op.Context()
	}
	runStep := func(id string, fn func(context.Context) error) error {
		return tracker.Do(id, func() error {
			if op == nil {
				return fn(ctx)
			}
			return op.RunStep(ctx, id, fn)
		})
	}

	extents := grid.Extents{DX: c.cfg.Grid.CellX, DY: c.cfg.Grid.CellY, DZ: c.cfg.Grid.CellZ}
	nRanks := len(srcChunks) + len(dstChunks)
	if nRanks < 1 {
		nRanks = 1
	}
	g := grid.New(extents, nRanks)

	report := Report{}
	err := runStep("broad_phase_contrib", func(context.Context) error {
		for _, chunk := range srcChunks {
			for t := 0; t < chunk.NTets(); t++ {
				tet := chunk.Tet(t)
				box := geom.TetBox(chunk.Coord(tet.Nodes[0]), chunk.Coord(tet.Nodes[1]), chunk.Coord(tet.Nodes[2]), chunk.Coord(tet.Nodes[3]))
				if err := g.Contribute(grid.Box{OwnerChunk: chunk.ChunkID, LocalIndex: uint32(t), AABB: box, Priority: uint32(srcHandle.ChunkIDBase)}); err != nil {
					return err
				}
				report.SourceTets++
			}
		}
		for _, chunk := range dstChunks {
			for l := 0; l < len(chunk.Gid); l++ {
				if !chunk.IsOwner(chunk.Global(meshpart.LocalID(l))) {
					continue
				}
				box := geom.PointBox(chunk.Coord(meshpart.LocalID(l)))
				if err := g.Contribute(grid.Box{OwnerChunk: chunk.ChunkID, LocalIndex: uint32(l), AABB: box, Priority: uint32(dstHandle.ChunkIDBase)}); err != nil {
					return err
				}
				report.DestinationPoints++
			}
		}
		return nil
	})
	if err != nil {
		completionCb(report, err)
		if op != nil {
			op.End(err)
		}
		return err
	}
	c.setPhase(PhaseBroadPhaseDeliver)

	var pairs []grid.Pair
	_ = runStep("broad_phase_deliver", func(context.Context) error {
		pairs = g.Flush()
		report.CandidatePairs = len(pairs)
		return nil
	})

	c.setPhase(PhaseRoute)
	var bySource map[meshpart.ChunkID][]meshpart.PotentialCollision
	err = runStep("route", func(context.Context) error {
		lookup := router.MapLookup(c.chunkLookup())
		var routeErr error
		bySource, routeErr = router.Route(pairs, lookup)
		return routeErr
	})
	if err != nil {
		completionCb(report, err)
		if op != nil {
			op.End(err)
		}
		return err
	}

	c.setPhase(PhaseNarrow)
	budget := xerrors.NewNumericBudget(c.cfg.Numeric.SkipRatioThreshold)
	err = runStep("narrow", func(evalCtx context.Context) error {
		for srcID, batch := range bySource {
			src := c.chunks[srcID]
			results, evalErr := narrow.Evaluate(evalCtx, src, batch, budget)
			if evalErr != nil {
				return evalErr
			}
			for _, r := range results {
				if !r.Solved {
					continue
				}
				dst := c.chunks[r.Solution.DestChunk]
				if !r.Solution.Contained {
					continue
				}
				dst.ApplySolution(r.Solution.DestPointLocal, r.Solution.Value, r.Solution.SourceChunk, r.Solution.SourceTet)
				report.Containments++
			}
		}
		return nil
	})
	report.NumericSkips = budget.Skipped()
	if err != nil {
		completionCb(report, err)
		if op != nil {
			op.End(err)
		}
		return err
	}

	// Only the owner of each shared destination node received a value
	// directly; propagate it to every other chunk's local copy of that
	// same global node so field state agrees mesh-wide.
	for _, chunk := range dstChunks {
		for l := 0; l < len(chunk.Gid); l++ {
			g := chunk.Global(meshpart.LocalID(l))
			ownerID := chunk.Owner(g)
			if ownerID == chunk.ChunkID {
				continue
			}
			owner, ok := c.chunks[ownerID]
			if !ok {
				continue
			}
			ownerLocal, ok := owner.Local(g)
			if !ok {
				continue
			}
			chunk.AdoptFromOwner(owner, ownerLocal, meshpart.LocalID(l))
		}
	}

	for _, chunk := range dstChunks {
		for l := range chunk.Gid {
			if chunk.IsOrphan(meshpart.LocalID(l)) {
				report.Orphans++
			}
		}
	}

	c.setPhase(PhaseDone)
	if op != nil {
		op.End(nil)
	}
	completionCb(report, nil)
	c.setPhase(PhaseReady)
	return nil
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Coordinator) chunkLookup() map[meshpart.ChunkID]*meshpart.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[meshpart.ChunkID]*meshpart.Chunk, len(c.chunks))
	for id, chunk := range c.chunks {
		out[id] = chunk
	}
	return out
}

// String renders a one-line summary of the report's counts, useful in
// diagnostics and tests.
func (r Report) String() string {
	return fmt.Sprintf("dest_points=%d source_tets=%d candidate_pairs=%d containments=%d orphans=%d numeric_skips=%d",
		r.DestinationPoints, r.SourceTets, r.CandidatePairs, r.Containments, r.Orphans, r.NumericSkips)
}
