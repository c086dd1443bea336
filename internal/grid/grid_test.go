package grid

import (
	"testing"

	"github.com/sarchlab/meshtransfer/internal/geom"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
)

func TestFlushEmitsOverlappingCrossPriorityPair(t *testing.T) {
	g := New(Extents{DX: 1, DY: 1, DZ: 1}, 4)

	src := Box{OwnerChunk: 1, LocalIndex: 0, AABB: geom.TetBox(
		geom.Vec3{0, 0, 0}, geom.Vec3{1, 0, 0}, geom.Vec3{0, 1, 0}, geom.Vec3{0, 0, 1}),
		Priority: 100}
	dst := Box{OwnerChunk: 2, LocalIndex: 5, AABB: geom.PointBox(geom.Vec3{0.25, 0.25, 0.25}),
		Priority: 200}

	if err := g.Contribute(src); err != nil {
		t.Fatalf("Contribute(src): %v", err)
	}
	if err := g.Contribute(dst); err != nil {
		t.Fatalf("Contribute(dst): %v", err)
	}

	pairs := g.Flush()
	if len(pairs) != 1 {
		t.Fatalf("expected exactly 1 pair, got %d: %v", len(pairs), pairs)
	}
	p := pairs[0]
	if !((p.AChunk == 1 && p.BChunk == 2) || (p.AChunk == 2 && p.BChunk == 1)) {
		t.Fatalf("unexpected pair chunks: %+v", p)
	}
}

func TestFlushSkipsSamePriorityPairs(t *testing.T) {
	g := New(Extents{DX: 1, DY: 1, DZ: 1}, 2)
	a := Box{OwnerChunk: 1, LocalIndex: 0, AABB: geom.PointBox(geom.Vec3{0, 0, 0}), Priority: 100}
	b := Box{OwnerChunk: 2, LocalIndex: 0, AABB: geom.PointBox(geom.Vec3{0, 0, 0}), Priority: 100}
	_ = g.Contribute(a)
	_ = g.Contribute(b)

	if pairs := g.Flush(); len(pairs) != 0 {
		t.Fatalf("expected no pairs for same-priority boxes, got %v", pairs)
	}
}

func TestFlushSkipsNonOverlappingBoxes(t *testing.T) {
	g := New(Extents{DX: 1, DY: 1, DZ: 1}, 2)
	a := Box{OwnerChunk: 1, LocalIndex: 0, AABB: geom.PointBox(geom.Vec3{0, 0, 0}), Priority: 100}
	b := Box{OwnerChunk: 2, LocalIndex: 0, AABB: geom.PointBox(geom.Vec3{50, 50, 50}), Priority: 200}
	_ = g.Contribute(a)
	_ = g.Contribute(b)

	if pairs := g.Flush(); len(pairs) != 0 {
		t.Fatalf("expected no pairs for non-overlapping boxes, got %v", pairs)
	}
}

func TestContributeRejectsNaNBox(t *testing.T) {
	g := New(Extents{DX: 1, DY: 1, DZ: 1}, 1)
	nan := geom.Vec3{X: 0}
	nan.X = nan.X / 0 * 0
	box := Box{OwnerChunk: 1, AABB: geom.AABB{Min: nan, Max: nan}, Priority: 1}
	if err := g.Contribute(box); err == nil {
		t.Fatal("expected error for NaN box")
	}
}

func TestDedupAcrossSharedCells(t *testing.T) {
	// A box spanning multiple cells must only be reported once even
	// though it's hashed into several cells shared with its counterpart.
	g := New(Extents{DX: 1, DY: 1, DZ: 1}, 3)
	a := Box{OwnerChunk: meshpart.ChunkID(1), LocalIndex: 0, Priority: 100,
		AABB: geom.AABB{Min: geom.Vec3{0, 0, 0}, Max: geom.Vec3{2, 0.1, 0.1}}}
	b := Box{OwnerChunk: meshpart.ChunkID(2), LocalIndex: 0, Priority: 200,
		AABB: geom.AABB{Min: geom.Vec3{0, 0, 0}, Max: geom.Vec3{2, 0.1, 0.1}}}
	_ = g.Contribute(a)
	_ = g.Contribute(b)

	pairs := g.Flush()
	if len(pairs) != 1 {
		t.Fatalf("expected exactly 1 deduplicated pair, got %d: %v", len(pairs), pairs)
	}
}
