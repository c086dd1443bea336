// Package transferlib is the public library surface of spec §6's
// operation table: register_mesh, set_source_field,
// set_destination_points, transfer. Grounded in the teacher's sdk
// package shape (a Client wrapping a connection, exposing one method
// per RPC) with the transport swapped for an in-process
// internal/transfer.Coordinator, since this module is a library rather
// than a daemon a CLI dials into.
package transferlib

import (
	"context"

	"github.com/sarchlab/meshtransfer/internal/checkpoint"
	"github.com/sarchlab/meshtransfer/internal/config"
	"github.com/sarchlab/meshtransfer/internal/geom"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
	"github.com/sarchlab/meshtransfer/internal/progress"
	"github.com/sarchlab/meshtransfer/internal/transfer"
	"go.opentelemetry.io/otel/trace"
)

// Re-exported so callers never need to import internal/meshpart or
// internal/transfer directly.
type (
	MeshID     = meshpart.MeshID
	ChunkID    = meshpart.ChunkID
	LocalID    = meshpart.LocalID
	GlobalID   = meshpart.GlobalID
	Role       = meshpart.Role
	FieldKind  = meshpart.FieldKind
	MeshHandle = meshpart.MeshHandle
	ChunkData  = transfer.ChunkData
	Report     = transfer.Report
	Vec3       = geom.Vec3
)

const (
	RoleSource      = meshpart.RoleSource
	RoleDestination = meshpart.RoleDestination

	FieldScalar  = meshpart.FieldScalar
	FieldVector3 = meshpart.FieldVector3
)

// Client is one host process's handle onto the transfer library, spec
// §6's register_mesh/set_source_field/set_destination_points/transfer
// operation table.
type Client struct {
	coord *transfer.Coordinator
}

// Option configures optional Client collaborators.
type Option func(*transfer.Coordinator)

// WithTracer attaches an OpenTelemetry tracer to every Transfer call.
func WithTracer(tracer trace.Tracer) Option {
	return Option(transfer.WithTracer(tracer))
}

// WithProgressReporter attaches a progress.Reporter to every Transfer call.
func WithProgressReporter(reporter progress.Reporter) Option {
	return Option(transfer.WithProgressReporter(reporter))
}

// New builds a Client against cfg (spec §6's grid.cell_x/y/z and
// numeric.skip_ratio_threshold tunables). cfg should be validated with
// cfg.Validate() first; New does not re-check it.
func New(cfg config.Config, opts ...Option) *Client {
	coordOpts := make([]transfer.Option, len(opts))
	for i, o := range opts {
		coordOpts[i] = transfer.Option(o)
	}
	return &Client{coord: transfer.New(cfg, coordOpts...)}
}

// RegisterMesh builds chunks from perChunk and runs the registration
// protocol (internal/mapper), spec §6 register_mesh.
func (c *Client) RegisterMesh(meshID MeshID, role Role, field FieldKind, perChunk []ChunkData) (MeshHandle, error) {
	return c.coord.RegisterMesh(meshID, role, field, perChunk)
}

// UnregisterMesh frees handle's chunks from the registry.
func (c *Client) UnregisterMesh(handle MeshHandle) {
	c.coord.UnregisterMesh(handle)
}

// SetSourceField replaces chunkIdx's scalar field, spec §6
// set_source_field.
func (c *Client) SetSourceField(handle MeshHandle, chunkIdx uint32, values []float64) error {
	return c.coord.SetSourceField(handle, chunkIdx, values)
}

// SetSourceVectorField is the Vector3 FieldKind analogue of
// SetSourceField.
func (c *Client) SetSourceVectorField(handle MeshHandle, chunkIdx uint32, values []Vec3) error {
	return c.coord.SetSourceVectorField(handle, chunkIdx, values)
}

// SetDestinationPoints marks chunkIdx as destination-input ready, spec
// §6 set_destination_points.
func (c *Client) SetDestinationPoints(handle MeshHandle, chunkIdx uint32) error {
	return c.coord.SetDestinationPoints(handle, chunkIdx)
}

// Transfer runs the full state machine, spec §6 transfer. completionCb
// is invoked once destination chunks hold their interpolated values;
// its error is also this call's return value.
func (c *Client) Transfer(ctx context.Context, srcHandle, dstHandle MeshHandle, completionCb func(Report, error)) error {
	return c.coord.Transfer(ctx, srcHandle, dstHandle, completionCb)
}

// Phase reports the coordinator's current state machine phase.
func (c *Client) Phase() transfer.Phase {
	return c.coord.Phase()
}

// SaveCheckpoint persists handle's chunkIdx chunk into store, spec §6's
// optional "Persisted state" contract. Not part of the transfer
// correctness contract; useful for a host resuming a long-running
// transfer across process restarts.
func (c *Client) SaveCheckpoint(store *checkpoint.Store, handle MeshHandle, chunkIdx uint32) error {
	chunk, err := c.coord.Chunk(handle, chunkIdx)
	if err != nil {
		return err
	}
	return store.Save(chunk)
}

// LoadCheckpoint restores handle's chunkIdx chunk from store and
// installs it back into the client in place of whatever RegisterMesh
// created for that slot.
func (c *Client) LoadCheckpoint(store *checkpoint.Store, handle MeshHandle, chunkIdx uint32) error {
	chunk, err := store.Load(handle.ID, handle.ChunkIDFor(chunkIdx))
	if err != nil {
		return err
	}
	c.coord.AdoptChunk(handle, chunkIdx, chunk)
	return nil
}
