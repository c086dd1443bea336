package transferlib

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sarchlab/meshtransfer/internal/checkpoint"
	"github.com/sarchlab/meshtransfer/internal/config"
)

func unitTetChunkData() ChunkData {
	return ChunkData{
		Inpoel: []LocalID{0, 1, 2, 3},
		Gid:    []GlobalID{0, 1, 2, 3},
		X:      []float64{0, 1, 0, 0},
		Y:      []float64{0, 0, 1, 0},
		Z:      []float64{0, 0, 0, 1},
	}
}

func TestClientRunsScenario1EndToEnd(t *testing.T) {
	client := New(config.Default())

	src, err := client.RegisterMesh(1, RoleSource, FieldScalar, []ChunkData{unitTetChunkData()})
	if err != nil {
		t.Fatalf("RegisterMesh(src): %v", err)
	}
	if err := client.SetSourceField(src, 0, []float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("SetSourceField: %v", err)
	}

	dst, err := client.RegisterMesh(2, RoleDestination, FieldScalar, []ChunkData{{
		Inpoel: []LocalID{0, 1, 2, 3},
		Gid:    []GlobalID{100, 101, 102, 103},
		X:      []float64{0.25, 10, 10, 10},
		Y:      []float64{0.25, 10, 10, 10},
		Z:      []float64{0.25, 10, 10, 10},
	}})
	if err != nil {
		t.Fatalf("RegisterMesh(dst): %v", err)
	}
	if err := client.SetDestinationPoints(dst, 0); err != nil {
		t.Fatalf("SetDestinationPoints: %v", err)
	}

	var report Report
	var transferErr error
	err = client.Transfer(context.Background(), src, dst, func(r Report, e error) {
		report, transferErr = r, e
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if transferErr != nil {
		t.Fatalf("completion callback error: %v", transferErr)
	}
	if report.Containments != 1 {
		t.Fatalf("Containments = %d, want 1", report.Containments)
	}

	client.UnregisterMesh(src)
	client.UnregisterMesh(dst)
}

func TestClientSaveLoadCheckpointRoundTrips(t *testing.T) {
	client := New(config.Default())

	src, err := client.RegisterMesh(1, RoleSource, FieldScalar, []ChunkData{unitTetChunkData()})
	if err != nil {
		t.Fatalf("RegisterMesh: %v", err)
	}
	if err := client.SetSourceField(src, 0, []float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("SetSourceField: %v", err)
	}

	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	defer store.Close()

	if err := client.SaveCheckpoint(store, src, 0); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if err := client.LoadCheckpoint(store, src, 0); err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}

	restored, err := client.coord.Chunk(src, 0)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if restored.U[1].X != 2 {
		t.Fatalf("restored U[1].X = %v, want 2", restored.U[1].X)
	}
}
