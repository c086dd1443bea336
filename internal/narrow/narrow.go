// Package narrow implements the narrow-phase worker of spec §4.4: for
// each PotentialCollision dispatched to a source chunk, solve the
// point-in-tet system, decide strict containment, interpolate, and
// produce the SolutionData to ship back. Concurrency across records is
// golang.org/x/sync/errgroup, matching the teacher stack's preferred
// fan-out primitive for independent, error-returning work items.
package narrow

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/meshtransfer/internal/geom"
	"github.com/sarchlab/meshtransfer/internal/meshpart"
	"github.com/sarchlab/meshtransfer/internal/xerrors"
)

// Result pairs a dispatched PotentialCollision with the SolutionData it
// produced (absent — Solved=false — for a skipped degenerate tet).
type Result struct {
	Solution meshpart.SolutionData
	Solved   bool
}

// Evaluate runs the narrow phase for every record in batch against
// src, the source chunk owning those tets. Exactly one Result is
// produced per input record — Solved=false only for a numerically
// degenerate tet, tracked against budget; every non-degenerate record
// always yields a SolutionData (Contained possibly false), matching
// spec §4.5's "one SolutionData per input, possibly empty" termination
// contract.
func Evaluate(ctx context.Context, src *meshpart.Chunk, batch []meshpart.PotentialCollision, budget *xerrors.NumericBudget) ([]Result, error) {
	results := make([]Result, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, rec := range batch {
		i, rec := i, rec
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			tet := src.Tet(int(rec.SourceTetLocal))
			v0 := src.Coord(tet.Nodes[0])
			v1 := src.Coord(tet.Nodes[1])
			v2 := src.Coord(tet.Nodes[2])
			v3 := src.Coord(tet.Nodes[3])

			bc, ok := geom.SolveBarycentric(v0, v1, v2, v3, rec.Point)

			mu.Lock()
			defer mu.Unlock()

			if !ok {
				numErr := xerrors.NewNumericError(uint64(src.ChunkID), rec.SourceTetLocal, "degenerate tet: |det| below floor")
				budget.Record(true, numErr)
				results[i] = Result{Solved: false}
				return nil
			}
			budget.Record(false, nil)

			contained := bc.Contains()
			var value geom.Vec3
			if contained {
				u0 := src.U[tet.Nodes[0]]
				u1 := src.U[tet.Nodes[1]]
				u2 := src.U[tet.Nodes[2]]
				u3 := src.U[tet.Nodes[3]]
				value = bc.InterpolateVec3(u0, u1, u2, u3)
			}

			results[i] = Result{
				Solved: true,
				Solution: meshpart.SolutionData{
					DestChunk:      rec.DestChunk,
					DestPointLocal: rec.DestPointLocal,
					SourceChunk:    src.ChunkID,
					SourceTet:      rec.SourceTetLocal,
					Value:          value,
					Contained:      contained,
				},
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if budget.Exceeded() {
		return results, budget.Err()
	}
	return results, nil
}
