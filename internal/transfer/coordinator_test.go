package transfer

import (
	"context"
	"testing"

	"github.com/sarchlab/meshtransfer/internal/config"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
)

const floatTol = 1e-9

func unitTetChunkData() ChunkData {
	return ChunkData{
		Inpoel: []meshpart.LocalID{0, 1, 2, 3},
		Gid:    []meshpart.GlobalID{0, 1, 2, 3},
		X:      []float64{0, 1, 0, 0},
		Y:      []float64{0, 0, 1, 0},
		Z:      []float64{0, 0, 0, 1},
	}
}

func approxEqual(got, want float64) bool {
	diff := got - want
	return diff < floatTol && diff > -floatTol
}

// scenarioCase is one row of the spec.md §8 scenario table. Each row
// registers its own source and destination meshes, runs one Transfer,
// and hands the result to check.
type scenarioCase struct {
	name      string
	srcChunks []ChunkData
	srcFields [][]float64 // per source chunk index
	dstChunks []ChunkData
	check     func(t *testing.T, c *Coordinator, dst meshpart.MeshHandle, report Report)
}

func TestTransferScenarios(t *testing.T) {
	tests := []scenarioCase{
		{
			// Scenario 1: single tet, single point strictly inside it.
			name:      "single tet single point",
			srcChunks: []ChunkData{unitTetChunkData()},
			srcFields: [][]float64{{1, 2, 3, 4}},
			dstChunks: []ChunkData{{
				Inpoel: []meshpart.LocalID{0, 1, 2, 3},
				Gid:    []meshpart.GlobalID{100, 101, 102, 103},
				X:      []float64{0.25, 10, 10, 10},
				Y:      []float64{0.25, 10, 10, 10},
				Z:      []float64{0.25, 10, 10, 10},
			}},
			check: func(t *testing.T, c *Coordinator, dst meshpart.MeshHandle, report Report) {
				chunk, _ := c.chunkOf(dst, 0)
				if chunk.IsOrphan(0) {
					t.Fatal("expected destination point 0 to receive a value")
				}
				if !approxEqual(chunk.U[0].X, 2.5) {
					t.Fatalf("u_dst[0] = %g, want 2.5", chunk.U[0].X)
				}
				if report.Containments != 1 {
					t.Fatalf("Containments = %d, want 1", report.Containments)
				}
				if c.Phase() != PhaseReady {
					t.Fatalf("Phase() = %v, want READY after completion", c.Phase())
				}
			},
		},
		{
			// Scenario 2: point outside every source tet stays orphaned.
			name:      "point outside mesh is orphaned",
			srcChunks: []ChunkData{unitTetChunkData()},
			srcFields: [][]float64{{1, 2, 3, 4}},
			dstChunks: []ChunkData{{
				Inpoel: []meshpart.LocalID{0, 1, 2, 3},
				Gid:    []meshpart.GlobalID{200, 201, 202, 203},
				X:      []float64{1, 10, 10, 10},
				Y:      []float64{1, 10, 10, 10},
				Z:      []float64{1, 10, 10, 10},
			}},
			check: func(t *testing.T, c *Coordinator, dst meshpart.MeshHandle, report Report) {
				chunk, _ := c.chunkOf(dst, 0)
				if !chunk.IsOrphan(0) {
					t.Fatal("expected point (1,1,1) outside the tet to remain orphan")
				}
				if report.Orphans < 1 {
					t.Fatalf("report.Orphans = %d, want >= 1", report.Orphans)
				}
			},
		},
		{
			// Scenario 3: two tets sharing the base triangle
			// (0,0,0)-(1,0,0)-(0,1,0) with apexes (0,0,1) and (1,1,1)
			// both genuinely overlap a destination point nestled against
			// that shared base, so the broad phase yields two candidate
			// solutions for it. u = x+2y+3z is affine, so both tets
			// reproduce the exact same value regardless of which one
			// wins ApplySolution's (source_chunk, source_tet) tie-break;
			// Containments counts both attempts even though only one
			// is kept.
			name: "shared-face tie-break resolves deterministically",
			srcChunks: []ChunkData{{
				Inpoel: []meshpart.LocalID{0, 1, 2, 3, 0, 1, 2, 4},
				Gid:    []meshpart.GlobalID{0, 1, 2, 3, 4},
				X:      []float64{0, 1, 0, 0, 1},
				Y:      []float64{0, 0, 1, 0, 1},
				Z:      []float64{0, 0, 0, 1, 1},
			}},
			srcFields: [][]float64{{0, 1, 2, 3, 6}},
			dstChunks: []ChunkData{{
				Inpoel: []meshpart.LocalID{0, 1, 2, 3},
				Gid:    []meshpart.GlobalID{500, 501, 502, 503},
				X:      []float64{0.2, 10, 10, 10},
				Y:      []float64{0.2, 10, 10, 10},
				Z:      []float64{0.1, 10, 10, 10},
			}},
			check: func(t *testing.T, c *Coordinator, dst meshpart.MeshHandle, report Report) {
				chunk, _ := c.chunkOf(dst, 0)
				if chunk.IsOrphan(0) {
					t.Fatal("expected point (0.2,0.2,0.1) to receive a value from one of the two tets")
				}
				if !approxEqual(chunk.U[0].X, 0.9) {
					t.Fatalf("u_dst[0] = %g, want 0.9", chunk.U[0].X)
				}
				if report.Containments != 2 {
					t.Fatalf("Containments = %d, want 2 (both overlapping tets solve it)", report.Containments)
				}
			},
		},
		{
			// Scenario 4: multi-chunk identity. Source is two chunks of
			// one partitioned mesh sharing a boundary triangle; u = x +
			// 2y + 3z on every source node. Destination is two chunks
			// sharing one boundary node; only the owning chunk (lower
			// chunk id, registered first) gets it from the narrow phase
			// directly, so the non-owner's copy only comes out right if
			// AdoptFromOwner propagated it. Every one of the 8 destination
			// slots lands strictly inside one of the two source tets, so
			// orphans must be zero mesh-wide.
			name: "multi-chunk identity propagates through AdoptFromOwner",
			srcChunks: []ChunkData{
				{
					Inpoel: []meshpart.LocalID{0, 1, 2, 3},
					Gid:    []meshpart.GlobalID{0, 1, 2, 3},
					X:      []float64{0, 1, 0, 0},
					Y:      []float64{0, 0, 1, 0},
					Z:      []float64{0, 0, 0, 1},
				},
				{
					Inpoel: []meshpart.LocalID{0, 1, 2, 3},
					Gid:    []meshpart.GlobalID{0, 1, 2, 4},
					X:      []float64{0, 1, 0, 0},
					Y:      []float64{0, 0, 1, 0},
					Z:      []float64{0, 0, 0, -1},
				},
			},
			srcFields: [][]float64{
				{0, 1, 2, 3},
				{0, 1, 2, -3},
			},
			dstChunks: []ChunkData{
				{
					Inpoel: []meshpart.LocalID{0, 1, 2, 3},
					Gid:    []meshpart.GlobalID{9000, 9001, 9002, 9003},
					X:      []float64{0.2, 0.1, 0.3, 0.2},
					Y:      []float64{0.2, 0.1, 0.1, 0.2},
					Z:      []float64{0.2, 0.1, 0.1, -0.1},
				},
				{
					Inpoel: []meshpart.LocalID{0, 1, 2, 3},
					Gid:    []meshpart.GlobalID{9000, 9004, 9005, 9006},
					X:      []float64{0.2, 0.1, 0.15, 0.05},
					Y:      []float64{0.2, 0.1, 0.15, 0.05},
					Z:      []float64{0.2, -0.2, 0.15, -0.05},
				},
			},
			check: func(t *testing.T, c *Coordinator, dst meshpart.MeshHandle, report Report) {
				da, _ := c.chunkOf(dst, 0)
				db, _ := c.chunkOf(dst, 1)

				want := []struct {
					chunk *meshpart.Chunk
					local meshpart.LocalID
					value float64
				}{
					{da, 0, 1.2},  // (0.2,0.2,0.2), shared node, owner
					{da, 1, 0.6},  // (0.1,0.1,0.1)
					{da, 2, 0.8},  // (0.3,0.1,0.1)
					{da, 3, 0.3},  // (0.2,0.2,-0.1)
					{db, 0, 1.2},  // (0.2,0.2,0.2), shared node, adopted from owner
					{db, 1, -0.3}, // (0.1,0.1,-0.2)
					{db, 2, 0.9},  // (0.15,0.15,0.15)
					{db, 3, 0.0},  // (0.05,0.05,-0.05)
				}
				for _, w := range want {
					if w.chunk.IsOrphan(w.local) {
						t.Fatalf("local node %d orphaned, want a solved value", w.local)
					}
					if !approxEqual(w.chunk.U[w.local].X, w.value) {
						t.Fatalf("U[%d] = %g, want %g", w.local, w.chunk.U[w.local].X, w.value)
					}
				}
				if report.Orphans != 0 {
					t.Fatalf("report.Orphans = %d, want 0", report.Orphans)
				}
			},
		},
		{
			// Scenario 5: coarse source, finer destination. One coarse
			// source tet carries the affine field u = x+2y+3z; every one
			// of five finer destination points strictly inside that tet
			// must reproduce the affine formula exactly, independent of
			// its position.
			name:      "coarse to fine reproduces an affine field",
			srcChunks: []ChunkData{unitTetChunkData()},
			srcFields: [][]float64{{0, 1, 2, 3}},
			dstChunks: []ChunkData{{
				Inpoel: []meshpart.LocalID{0, 1, 2, 3},
				Gid:    []meshpart.GlobalID{600, 601, 602, 603, 604},
				X:      []float64{0.1, 0.05, 0.3, 0.01, 0.2},
				Y:      []float64{0.1, 0.6, 0.3, 0.01, 0.05},
				Z:      []float64{0.1, 0.1, 0.3, 0.01, 0.7},
			}},
			check: func(t *testing.T, c *Coordinator, dst meshpart.MeshHandle, report Report) {
				chunk, _ := c.chunkOf(dst, 0)
				want := []float64{0.6, 1.55, 1.8, 0.06, 2.4}
				for l, w := range want {
					local := meshpart.LocalID(l)
					if chunk.IsOrphan(local) {
						t.Fatalf("local node %d orphaned, want a solved value", l)
					}
					if !approxEqual(chunk.U[local].X, w) {
						t.Fatalf("U[%d] = %g, want %g", l, chunk.U[local].X, w)
					}
				}
				if report.Orphans != 0 {
					t.Fatalf("report.Orphans = %d, want 0", report.Orphans)
				}
			},
		},
		{
			// Scenario 6: disjoint meshes, every destination node orphaned.
			name:      "non-overlapping meshes are all orphaned",
			srcChunks: []ChunkData{unitTetChunkData()},
			srcFields: [][]float64{{1, 2, 3, 4}},
			dstChunks: []ChunkData{{
				Inpoel: []meshpart.LocalID{0, 1, 2, 3},
				Gid:    []meshpart.GlobalID{300, 301, 302, 303},
				X:      []float64{2, 2.1, 2, 2},
				Y:      []float64{2, 2, 2.1, 2},
				Z:      []float64{2, 2, 2, 2.1},
			}},
			check: func(t *testing.T, c *Coordinator, dst meshpart.MeshHandle, report Report) {
				if report.Containments != 0 {
					t.Fatalf("Containments = %d, want 0 for disjoint meshes", report.Containments)
				}
				if report.Orphans != 4 {
					t.Fatalf("Orphans = %d, want 4 (every destination node)", report.Orphans)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(config.Default())

			src, err := c.RegisterMesh(1, meshpart.RoleSource, meshpart.FieldScalar, tt.srcChunks)
			if err != nil {
				t.Fatalf("RegisterMesh(src): %v", err)
			}
			for i, values := range tt.srcFields {
				if err := c.SetSourceField(src, uint32(i), values); err != nil {
					t.Fatalf("SetSourceField(%d): %v", i, err)
				}
			}

			dst, err := c.RegisterMesh(2, meshpart.RoleDestination, meshpart.FieldScalar, tt.dstChunks)
			if err != nil {
				t.Fatalf("RegisterMesh(dst): %v", err)
			}
			for i := range tt.dstChunks {
				if err := c.SetDestinationPoints(dst, uint32(i)); err != nil {
					t.Fatalf("SetDestinationPoints(%d): %v", i, err)
				}
			}

			var report Report
			var transferErr error
			err = c.Transfer(context.Background(), src, dst, func(r Report, e error) { report, transferErr = r, e })
			if err != nil {
				t.Fatalf("Transfer: %v", err)
			}
			if transferErr != nil {
				t.Fatalf("completion callback error: %v", transferErr)
			}

			tt.check(t, c, dst, report)
		})
	}
}

func TestRegisterMeshRejectsEmptyChunk(t *testing.T) {
	c := New(config.Default())
	_, err := c.RegisterMesh(1, meshpart.RoleSource, meshpart.FieldScalar, []ChunkData{
		unitTetChunkData(),
		{}, // zero elements
	})
	if err == nil {
		t.Fatal("expected error for a zero-element chunk")
	}
}

func TestUnregisterMeshRemovesChunks(t *testing.T) {
	c := New(config.Default())
	src, err := c.RegisterMesh(1, meshpart.RoleSource, meshpart.FieldScalar, []ChunkData{unitTetChunkData()})
	if err != nil {
		t.Fatalf("RegisterMesh: %v", err)
	}
	c.UnregisterMesh(src)
	if _, err := c.chunkOf(src, 0); err == nil {
		t.Fatal("expected chunk lookup to fail after unregistering its mesh")
	}
}
