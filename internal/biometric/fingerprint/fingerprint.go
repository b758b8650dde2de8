// Package fingerprint derives the compact summary used as a cheap pre-filter
// before the expensive commitment comparison.
package fingerprint

import "math"

// Size is the fixed bucket count of a fingerprint. Changing it invalidates
// every stored fingerprint.
const Size = 16

// derivePrecision keeps bucket means stable across platforms.
const derivePrecision = 1e4

// Derive reduces a feature vector to a fixed-size summary of bucket means.
// It is deterministic and depends only on the vector contents, so two
// captures of the same underlying pattern produce the same fingerprint.
func Derive(features []float64) []float64 {
	fp := make([]float64, Size)
	n := len(features)
	if n == 0 {
		return fp
	}
	for b := range Size {
		start := b * n / Size
		end := (b + 1) * n / Size
		if end <= start {
			end = start + 1
		}
		if start >= n {
			start, end = n-1, n
		}
		var sum float64
		for _, v := range features[start:end] {
			sum += v
		}
		mean := sum / float64(end-start)
		fp[b] = math.Round(mean*derivePrecision) / derivePrecision
	}
	return fp
}

// Compare returns a similarity in [0,1] between two fingerprints: 1 minus
// the mean absolute component distance. Identical fingerprints score 1.0.
// Comparing fingerprints of mismatched size scores 0.
func Compare(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var total float64
	for i := range a {
		total += math.Abs(a[i] - b[i])
	}
	sim := 1 - total/float64(len(a))
	if sim < 0 {
		return 0
	}
	return sim
}
