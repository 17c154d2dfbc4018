package lysergic

import (
	"math"
	"testing"

	"github.com/unixpickle/num-analysis/linalg"
)

func TestMeanSquaredError(t *testing.T) {
	target := linalg.Vector{1, 0, 0.5}
	output := linalg.Vector{0.8, 0.2, 0.5}
	want := (0.04 + 0.04 + 0) / 3
	if got := MeanSquaredError(target, output); math.Abs(got-want) > 1e-9 {
		t.Errorf("mse = %v, want %v", got, want)
	}
	if got := MeanSquaredError(target, target); got != 0 {
		t.Errorf("mse of identical vectors = %v", got)
	}
}

func TestCrossEntropy(t *testing.T) {
	target := linalg.Vector{1, 0}
	output := linalg.Vector{0.9, 0.1}
	want := -(math.Log(0.9) + math.Log(0.9))
	if got := CrossEntropy(target, output); math.Abs(got-want) > 1e-9 {
		t.Errorf("cross entropy = %v, want %v", got, want)
	}
	// Saturated outputs must stay finite.
	if got := CrossEntropy(linalg.Vector{1}, linalg.Vector{0}); math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("cross entropy not clamped: %v", got)
	}
}

func TestBinaryMismatch(t *testing.T) {
	target := linalg.Vector{1, 0, 1, 0}
	output := linalg.Vector{0.9, 0.4, 0.2, 0.6}
	if got := BinaryMismatch(target, output); got != 0.5 {
		t.Errorf("mismatch = %v, want 0.5", got)
	}
}
