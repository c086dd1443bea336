// Package xerrors defines the error taxonomy a transfer can fail with:
// ConfigError, PartitionError, NumericError, ProtocolError, and the
// NumericBudget skip tally. Orphaned points are not errors and have no
// type here; they are counted in transfer.Report. Kinds are classified against
// containerd/errdefs so a host application can test them with the
// same errdefs.IsXxx helpers it already uses for other subsystems.
package xerrors

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/hashicorp/go-multierror"
)

// ConfigError wraps an invalid configuration value: bad cell extents,
// negative virtualization, an unreadable config file.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is reports true for errdefs.ErrInvalidArgument so classification
// works without a type assertion.
func (e *ConfigError) Is(target error) bool {
	return target == errdefs.ErrInvalidArgument
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// PartitionError signals a chunk with zero elements after partitioning,
// the one registration-time failure named in spec §4.2/§6.
type PartitionError struct {
	MeshID  uint32
	ChunkID uint64
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition error: mesh %d chunk %d has zero elements; "+
		"retry with a different partitioner or fewer chunks", e.MeshID, e.ChunkID)
}

func (e *PartitionError) Is(target error) bool {
	return target == errdefs.ErrFailedPrecondition
}

func NewPartitionError(meshID uint32, chunkID uint64) *PartitionError {
	return &PartitionError{MeshID: meshID, ChunkID: chunkID}
}

// NumericError records a degenerate tet (determinant ~= 0) or a NaN
// coordinate encountered during the narrow phase. It is tallied, not
// necessarily fatal: see NumericBudget.
type NumericError struct {
	ChunkID uint64
	TetID   uint32
	Reason  string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("numeric error: chunk %d tet %d: %s", e.ChunkID, e.TetID, e.Reason)
}

func NewNumericError(chunkID uint64, tetID uint32, reason string) *NumericError {
	return &NumericError{ChunkID: chunkID, TetID: tetID, Reason: reason}
}

// ProtocolError signals a collision involving an unregistered chunk, or
// a same-role pair: always a bug in the grid or registration layer,
// always fatal.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Detail
}

func (e *ProtocolError) Is(target error) bool {
	return target == errdefs.ErrInternal
}

func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Detail: fmt.Sprintf(format, args...)}
}

// IsConfig, IsPartition, IsProtocol classify an error the way
// errdefs.IsInvalidArgument and friends do for the teacher's Docker
// error handling, without callers needing to know the concrete type.
func IsConfig(err error) bool   { return errors.Is(err, errdefs.ErrInvalidArgument) }
func IsPartition(err error) bool { return errors.Is(err, errdefs.ErrFailedPrecondition) }
func IsProtocol(err error) bool { return errors.Is(err, errdefs.ErrInternal) }

// IsNumeric reports whether err is (or wraps) a *NumericError or a
// *multierror.Error, such as the one NumericBudget.Err returns once the
// skip-ratio threshold is exceeded.
func IsNumeric(err error) bool {
	var numErr *NumericError
	if errors.As(err, &numErr) {
		return true
	}
	var merr *multierror.Error
	return errors.As(err, &merr)
}

// NumericBudget tracks the ratio of skipped (degenerate) tets against a
// configured threshold (spec §7: "unless the ratio of skipped elements
// exceeds a threshold, in which case fatal").
type NumericBudget struct {
	Threshold float64
	skipped   int
	total     int
	errs      []*NumericError
}

func NewNumericBudget(threshold float64) *NumericBudget {
	return &NumericBudget{Threshold: threshold}
}

// Record tallies one evaluated tet; skip indicates it was degenerate.
func (b *NumericBudget) Record(skip bool, err *NumericError) {
	b.total++
	if skip {
		b.skipped++
		if err != nil {
			b.errs = append(b.errs, err)
		}
	}
}

// Skipped is the number of degenerate tets recorded so far.
func (b *NumericBudget) Skipped() int { return b.skipped }

// Exceeded reports whether the skip ratio has crossed the threshold.
// A zero total never exceeds.
func (b *NumericBudget) Exceeded() bool {
	if b.total == 0 {
		return false
	}
	return float64(b.skipped)/float64(b.total) > b.Threshold
}

// Err returns a combined multierror.Error of all tallied numeric
// diagnostics when the budget has been exceeded, nil otherwise.
func (b *NumericBudget) Err() error {
	if !b.Exceeded() || len(b.errs) == 0 {
		return nil
	}
	var combined *multierror.Error
	for _, e := range b.errs {
		combined = multierror.Append(combined, e)
	}
	return combined.ErrorOrNil()
}
