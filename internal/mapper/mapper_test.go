package mapper

import (
	"testing"

	"github.com/sarchlab/meshtransfer/internal/actor"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
)

func mustChunk(t *testing.T, chunkID meshpart.ChunkID, gid []meshpart.GlobalID) *meshpart.Chunk {
	t.Helper()
	n := len(gid)
	x := make([]float64, n)
	y := make([]float64, n)
	z := make([]float64, n)
	c, err := meshpart.NewChunk(1, chunkID, meshpart.RoleSource, meshpart.FieldScalar,
		[]meshpart.LocalID{0, 1, 2, 3}, gid, x, y, z)
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	return c
}

func TestRunBuildsSymmetricCommMapForSharedFace(t *testing.T) {
	// Two chunks, one tet each, sharing the face {0,1,2}.
	c0 := mustChunk(t, 100, []meshpart.GlobalID{0, 1, 2, 10})
	c1 := mustChunk(t, 101, []meshpart.GlobalID{0, 1, 2, 20})

	sys := actor.NewSystem(16)
	if err := Run(sys, 1, []*meshpart.Chunk{c0, c1}, 5); err != nil {
		t.Fatalf("Run: %v", err)
	}

	shared := c0.NodeCommMap[101]
	if len(shared) != 3 {
		t.Fatalf("c0.NodeCommMap[101] = %v, want 3 shared nodes", shared)
	}
	for _, g := range []meshpart.GlobalID{0, 1, 2} {
		if _, ok := shared[g]; !ok {
			t.Fatalf("expected shared node %d in c0's comm map", g)
		}
	}
	if _, ok := shared[10]; ok {
		t.Fatal("node 10 is not shared and should not appear in c0's comm map")
	}

	back := c1.NodeCommMap[100]
	if len(back) != 3 {
		t.Fatalf("c1.NodeCommMap[100] = %v, want 3 shared nodes (symmetry)", back)
	}

	for g := range shared {
		if !c1.IsOwner(g) && !c0.IsOwner(g) {
			t.Fatalf("node %d has no owner among sharing chunks", g)
		}
	}
	// Lowest chunk id (100) should own every shared node.
	for g := range shared {
		if c0.Owner(g) != 100 {
			t.Fatalf("Owner(%d) = %d, want 100 (lowest id)", g, c0.Owner(g))
		}
	}
}

func TestRunLeavesNonSharedChunksWithEmptyCommMap(t *testing.T) {
	c0 := mustChunk(t, 1, []meshpart.GlobalID{0, 1, 2, 3})
	c1 := mustChunk(t, 2, []meshpart.GlobalID{100, 101, 102, 103})

	sys := actor.NewSystem(16)
	if err := Run(sys, 1, []*meshpart.Chunk{c0, c1}, 200); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(c0.NodeCommMap[2]) != 0 {
		t.Fatalf("expected no shared nodes, got %v", c0.NodeCommMap[2])
	}
}

func TestRunRejectsEmptyChunk(t *testing.T) {
	c0 := mustChunk(t, 1, []meshpart.GlobalID{0, 1, 2, 3})
	empty, err := meshpart.NewChunk(1, 2, meshpart.RoleSource, meshpart.FieldScalar,
		nil, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewChunk(empty): %v", err)
	}

	sys := actor.NewSystem(16)
	err = Run(sys, 1, []*meshpart.Chunk{c0, empty}, 8)
	if err == nil {
		t.Fatal("expected PartitionError for zero-element chunk")
	}
}
