// Command meshtransferctl is the test driver named in spec.md §6: it
// exercises pkg/sdk's Transfer operation end to end from the command
// line. ExodusII reading and mesh partitioning are out of scope (spec
// §1), so this driver reads a small JSON fixture (see --help) standing
// in for a partitioned .exo file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sarchlab/meshtransfer/internal/checkpoint"
	"github.com/sarchlab/meshtransfer/internal/config"
	"github.com/sarchlab/meshtransfer/internal/obslog"
	"github.com/sarchlab/meshtransfer/internal/report"
	"github.com/sarchlab/meshtransfer/internal/xerrors"
	sdk "github.com/sarchlab/meshtransfer/pkg/sdk"
)

// Exit codes, spec.md §6.
const (
	exitSuccess   = 0
	exitUsage     = 1
	exitIO        = 2
	exitPartition = 3
	exitNumeric   = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	if err := obslog.Configure(obslog.LevelWarn); err != nil {
		fmt.Fprintln(os.Stderr, "configure logger:", err)
		return exitUsage
	}

	var debug bool
	var checkpointDB string

	root := &cobra.Command{
		Use:   "meshtransferctl <source_mesh.exo> <dest_mesh.exo> [virtualization]",
		Short: "Drive a conservative tetrahedral mesh-to-mesh field transfer",
		Long: `meshtransferctl drives pkg/sdk's register_mesh/set_source_field/
set_destination_points/transfer operations against two mesh fixtures.

Since ExodusII reading and partitioning are out of scope for this
library, "<source_mesh.exo>" and "<dest_mesh.exo>" are paths to a JSON
fixture (despite the .exo-shaped positional name, matching spec.md's
CLI contract) shaped like:

  {
    "mesh_id": 1,
    "chunks": [
      {
        "inpoel": [0, 1, 2, 3],
        "gid":    [0, 1, 2, 3],
        "x": [0, 1, 0, 0], "y": [0, 0, 1, 0], "z": [0, 0, 0, 1],
        "field": [1, 2, 3, 4]
      }
    ]
  }

"field" is required on the source fixture and ignored on the
destination fixture.`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, args, checkpointDB)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.Flags().StringVar(&checkpointDB, "checkpoint-db", "", "optional sqlite path to save destination chunk state after a successful transfer")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := obslog.LevelWarn
		if debug {
			level = obslog.LevelDebug
		}
		return obslog.Configure(level)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeFor(err)
	}
	return exitSuccess
}

func runTransfer(cmd *cobra.Command, args []string, checkpointDB string) error {
	var virtualization float64
	if len(args) == 3 {
		var err error
		virtualization, err = parseVirtualization(args[2])
		if err != nil {
			return err
		}
	}

	srcFixture, err := loadMeshFixture(args[0])
	if err != nil {
		return err
	}
	dstFixture, err := loadMeshFixture(args[1])
	if err != nil {
		return err
	}

	cfg := config.Default()
	cfg, err = cfg.ApplyVirtualization(virtualization)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client := sdk.New(cfg)

	srcHandle, err := client.RegisterMesh(sdk.MeshID(srcFixture.MeshID), sdk.RoleSource, sdk.FieldScalar, srcFixture.chunkData())
	if err != nil {
		return err
	}
	for i, cf := range srcFixture.Chunks {
		if err := client.SetSourceField(srcHandle, uint32(i), cf.Field); err != nil {
			return err
		}
	}

	dstHandle, err := client.RegisterMesh(sdk.MeshID(dstFixture.MeshID), sdk.RoleDestination, sdk.FieldScalar, dstFixture.chunkData())
	if err != nil {
		return err
	}
	for i := range dstFixture.Chunks {
		if err := client.SetDestinationPoints(dstHandle, uint32(i)); err != nil {
			return err
		}
	}

	var xferReport sdk.Report
	var transferErr error
	err = client.Transfer(cmd.Context(), srcHandle, dstHandle, func(r sdk.Report, e error) {
		xferReport, transferErr = r, e
	})
	if err != nil {
		return err
	}
	if transferErr != nil {
		return transferErr
	}

	if checkpointDB != "" {
		store, err := checkpoint.Open(checkpointDB)
		if err != nil {
			return err
		}
		defer store.Close()
		for i := range dstFixture.Chunks {
			if err := client.SaveCheckpoint(store, dstHandle, uint32(i)); err != nil {
				return err
			}
		}
	}

	fmt.Print(report.Render(xferReport))
	return nil
}

func parseVirtualization(s string) (float64, error) {
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0, fmt.Errorf("invalid virtualization %q: %w", s, err)
	}
	return v, nil
}

func exitCodeFor(err error) int {
	switch {
	case xerrors.IsPartition(err):
		return exitPartition
	case xerrors.IsNumeric(err):
		return exitNumeric
	case xerrors.IsConfig(err):
		return exitUsage
	default:
		return exitIO
	}
}
