package main

import (
	"encoding/json"
	"fmt"
	"os"

	sdk "github.com/sarchlab/meshtransfer/pkg/sdk"
)

// meshFixture is the test driver's JSON stand-in for an ExodusII file,
// spec.md §1 names ExodusII reading as an out-of-scope collaborator —
// this format lets the driver run without one. One fixture holds an
// already-partitioned mesh: one or more chunks, each independently
// valid per internal/meshpart.NewChunk.
type meshFixture struct {
	MeshID uint32         `json:"mesh_id"`
	Chunks []chunkFixture `json:"chunks"`
}

type chunkFixture struct {
	Inpoel []uint32  `json:"inpoel"`
	Gid    []uint64  `json:"gid"`
	X      []float64 `json:"x"`
	Y      []float64 `json:"y"`
	Z      []float64 `json:"z"`
	Field  []float64 `json:"field,omitempty"` // source chunks only
}

func loadMeshFixture(path string) (meshFixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return meshFixture{}, fmt.Errorf("read mesh fixture %s: %w", path, err)
	}
	var fixture meshFixture
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return meshFixture{}, fmt.Errorf("parse mesh fixture %s: %w", path, err)
	}
	if len(fixture.Chunks) == 0 {
		return meshFixture{}, fmt.Errorf("mesh fixture %s has no chunks", path)
	}
	return fixture, nil
}

func (f meshFixture) chunkData() []sdk.ChunkData {
	out := make([]sdk.ChunkData, len(f.Chunks))
	for i, cf := range f.Chunks {
		inpoel := make([]sdk.LocalID, len(cf.Inpoel))
		for j, n := range cf.Inpoel {
			inpoel[j] = sdk.LocalID(n)
		}
		gid := make([]sdk.GlobalID, len(cf.Gid))
		for j, g := range cf.Gid {
			gid[j] = sdk.GlobalID(g)
		}
		out[i] = sdk.ChunkData{Inpoel: inpoel, Gid: gid, X: cf.X, Y: cf.Y, Z: cf.Z}
	}
	return out
}
