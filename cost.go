package lysergic

import (
	"math"

	"github.com/unixpickle/num-analysis/linalg"
)

// Cost functions reduce an (output, target) pair to a single
// training-feedback scalar.
// They operate on vectors read through the runtime I/O
// contract and have no effect on the emitted AST.

// MeanSquaredError returns the mean of the squared
// per-component differences.
func MeanSquaredError(target, output linalg.Vector) float64 {
	var sum float64
	for i, t := range target {
		d := t - output[i]
		sum += d * d
	}
	return sum / float64(len(target))
}

// CrossEntropy returns the cross-entropy between the target
// distribution and the output distribution.
// Outputs are clamped away from 0 and 1 to keep the logs
// finite.
func CrossEntropy(target, output linalg.Vector) float64 {
	const eps = 1e-15
	var sum float64
	for i, t := range target {
		o := math.Min(math.Max(output[i], eps), 1-eps)
		sum += t*math.Log(o) + (1-t)*math.Log(1-o)
	}
	return -sum
}

// BinaryMismatch returns the fraction of components whose
// rounded output disagrees with the rounded target.
func BinaryMismatch(target, output linalg.Vector) float64 {
	var missed float64
	for i, t := range target {
		if math.Round(output[i]) != math.Round(t) {
			missed++
		}
	}
	return missed / float64(len(target))
}
