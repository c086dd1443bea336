// Package checkpoint persists a chunk's partition and field state to a
// local SQLite database, spec §6's "Persisted state" contract (left
// unimplemented by original_source, which never checkpoints). Grounded
// in the teacher's sqlite-backed local store, re-keyed from the
// teacher's per-machine-id rows to (mesh_id, chunk_id) rows holding a
// gob-encoded CheckpointV1 envelope.
package checkpoint

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/sarchlab/meshtransfer/internal/geom"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
	"github.com/sarchlab/meshtransfer/internal/xerrors"
)

// CheckpointFormatVersion is bumped whenever CheckpointV1's shape
// changes incompatibly. Load rejects any other version.
const CheckpointFormatVersion = 1

// CheckpointV1 is the gob envelope saved for one chunk: its partition
// topology plus current field values, spec §4.7.
type CheckpointV1 struct {
	Version int

	MeshID  meshpart.MeshID
	ChunkID meshpart.ChunkID
	Role    meshpart.Role
	Field   meshpart.FieldKind

	Inpoel []meshpart.LocalID
	Gid    []meshpart.GlobalID
	X, Y, Z []float64

	NodeCommMap map[meshpart.ChunkID][]meshpart.GlobalID
	EdgeCommMap map[meshpart.ChunkID][]meshpart.Edge

	U []geom.Vec3
}

// snapshot builds a CheckpointV1 from a live chunk's exported state.
func snapshot(c *meshpart.Chunk) CheckpointV1 {
	nodeComm := make(map[meshpart.ChunkID][]meshpart.GlobalID, len(c.NodeCommMap))
	for neighbor, set := range c.NodeCommMap {
		ids := make([]meshpart.GlobalID, 0, len(set))
		for g := range set {
			ids = append(ids, g)
		}
		nodeComm[neighbor] = ids
	}
	edgeComm := make(map[meshpart.ChunkID][]meshpart.Edge, len(c.EdgeCommMap))
	for neighbor, set := range c.EdgeCommMap {
		edges := make([]meshpart.Edge, 0, len(set))
		for e := range set {
			edges = append(edges, e)
		}
		edgeComm[neighbor] = edges
	}

	return CheckpointV1{
		Version:     CheckpointFormatVersion,
		MeshID:      c.MeshID,
		ChunkID:     c.ChunkID,
		Role:        c.Role,
		Field:       c.FieldKind(),
		Inpoel:      append([]meshpart.LocalID(nil), c.Inpoel...),
		Gid:         append([]meshpart.GlobalID(nil), c.Gid...),
		X:           append([]float64(nil), c.X...),
		Y:           append([]float64(nil), c.Y...),
		Z:           append([]float64(nil), c.Z...),
		NodeCommMap: nodeComm,
		EdgeCommMap: edgeComm,
		U:           append([]geom.Vec3(nil), c.U...),
	}
}

// restore rebuilds a chunk from a CheckpointV1 envelope. The tie-break
// stamps used mid-transfer (internal/meshpart's solutionStamp) are not
// part of the persisted envelope, so every restored node reads as
// orphaned for ApplySolution purposes until the next transfer runs;
// only U's raw values round-trip.
func restore(cp CheckpointV1) (*meshpart.Chunk, error) {
	chunk, err := meshpart.NewChunk(cp.MeshID, cp.ChunkID, cp.Role, cp.Field, cp.Inpoel, cp.Gid, cp.X, cp.Y, cp.Z)
	if err != nil {
		return nil, fmt.Errorf("restore chunk %d: %w", cp.ChunkID, err)
	}
	for neighbor, ids := range cp.NodeCommMap {
		for _, g := range ids {
			chunk.AddCommNode(neighbor, g)
		}
	}
	for neighbor, edges := range cp.EdgeCommMap {
		for _, e := range edges {
			chunk.AddCommEdge(neighbor, e)
		}
	}
	if len(cp.U) == len(chunk.U) {
		copy(chunk.U, cp.U)
	}
	return chunk, nil
}

// Store is a local SQLite-backed checkpoint database, one row per
// (mesh_id, chunk_id).
type Store struct {
	db *sql.DB
}

// Open creates path's parent directory if needed and opens (creating
// if absent) a SQLite database with the checkpoints table.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		mesh_id INTEGER NOT NULL,
		chunk_id INTEGER NOT NULL,
		version INTEGER NOT NULL,
		blob BLOB NOT NULL,
		PRIMARY KEY (mesh_id, chunk_id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save gob-encodes chunk's current state into a CheckpointV1 envelope
// and upserts it under (mesh_id, chunk_id).
func (s *Store) Save(chunk *meshpart.Chunk) error {
	cp := snapshot(chunk)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return fmt.Errorf("encode checkpoint for chunk %d: %w", chunk.ChunkID, err)
	}

	_, err := s.db.Exec(`INSERT INTO checkpoints (mesh_id, chunk_id, version, blob)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (mesh_id, chunk_id) DO UPDATE SET version = excluded.version, blob = excluded.blob`,
		uint32(cp.MeshID), uint64(cp.ChunkID), cp.Version, buf.Bytes())
	if err != nil {
		return fmt.Errorf("save checkpoint for chunk %d: %w", chunk.ChunkID, err)
	}
	return nil
}

// Load decodes and rebuilds the chunk checkpointed under
// (meshID, chunkID). Returns a ConfigError if the row is absent or its
// stored version doesn't match CheckpointFormatVersion.
func (s *Store) Load(meshID meshpart.MeshID, chunkID meshpart.ChunkID) (*meshpart.Chunk, error) {
	var version int
	var blob []byte
	row := s.db.QueryRow(`SELECT version, blob FROM checkpoints WHERE mesh_id = ? AND chunk_id = ?`,
		uint32(meshID), uint64(chunkID))
	if err := row.Scan(&version, &blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.NewConfigError("checkpoint",
				fmt.Errorf("no checkpoint for mesh %d chunk %d", meshID, chunkID))
		}
		return nil, fmt.Errorf("load checkpoint for mesh %d chunk %d: %w", meshID, chunkID, err)
	}
	if version != CheckpointFormatVersion {
		return nil, xerrors.NewConfigError("checkpoint",
			fmt.Errorf("chunk %d: unsupported checkpoint version %d, want %d", chunkID, version, CheckpointFormatVersion))
	}

	var cp CheckpointV1
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint for chunk %d: %w", chunkID, err)
	}
	return restore(cp)
}
