package xerrors

import (
	"errors"
	"testing"
)

func TestIsConfigClassifiesConfigError(t *testing.T) {
	err := NewConfigError("grid.cell_x", errors.New("must be positive"))
	if !IsConfig(err) {
		t.Fatalf("IsConfig(%v) = false, want true", err)
	}
	if IsPartition(err) || IsProtocol(err) {
		t.Fatalf("ConfigError misclassified as partition or protocol: %v", err)
	}
}

func TestIsPartitionClassifiesPartitionError(t *testing.T) {
	err := NewPartitionError(1, 2)
	if !IsPartition(err) {
		t.Fatalf("IsPartition(%v) = false, want true", err)
	}
	if IsConfig(err) || IsProtocol(err) {
		t.Fatalf("PartitionError misclassified: %v", err)
	}
}

func TestIsProtocolClassifiesProtocolError(t *testing.T) {
	err := NewProtocolError("chunk %d outside registered range", 7)
	if !IsProtocol(err) {
		t.Fatalf("IsProtocol(%v) = false, want true", err)
	}
	if IsConfig(err) || IsPartition(err) {
		t.Fatalf("ProtocolError misclassified: %v", err)
	}
}

func TestIsNumericClassifiesNumericError(t *testing.T) {
	err := NewNumericError(1, 2, "determinant near zero")
	if !IsNumeric(err) {
		t.Fatalf("IsNumeric(%v) = false, want true", err)
	}
	if IsConfig(err) || IsPartition(err) || IsProtocol(err) {
		t.Fatalf("NumericError misclassified: %v", err)
	}
}

func TestIsNumericRejectsUnrelatedError(t *testing.T) {
	if IsNumeric(errors.New("boom")) {
		t.Fatal("IsNumeric(plain error) = true, want false")
	}
}

func TestNumericBudgetErrNilUnderThreshold(t *testing.T) {
	budget := NewNumericBudget(0.5)
	budget.Record(false, nil)
	budget.Record(true, NewNumericError(1, 1, "degenerate"))
	budget.Record(false, nil)
	budget.Record(false, nil)

	if err := budget.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil (1/4 skipped is under 0.5 threshold)", err)
	}
}

func TestNumericBudgetErrExceedsThreshold(t *testing.T) {
	budget := NewNumericBudget(0.1)
	budget.Record(true, NewNumericError(1, 1, "degenerate"))
	budget.Record(false, nil)

	err := budget.Err()
	if err == nil {
		t.Fatal("Err() = nil, want error (1/2 skipped exceeds 0.1 threshold)")
	}
	if !IsNumeric(err) {
		t.Fatalf("Err() = %v, not classified as numeric", err)
	}
}
