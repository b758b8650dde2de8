// Package commitment derives the one-way hash stored in place of raw
// biometric features. The raw vector is never recoverable from it.
package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"biobind/internal/biometric/models"
)

// precision quantizes components before hashing so the commitment is stable
// across float formatting differences between producers.
const precision = 1e6

// Compute hashes a canonicalized encoding of the feature vector. The
// encoding is index-sorted and fixed-precision, so the same logical pattern
// always hashes identically regardless of how the producer ordered or
// formatted its fields.
func Compute(features models.FeatureVector) string {
	h := sha256.New()
	for i, v := range features {
		fmt.Fprintf(h, "%d:%.6f;", i, quantize(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Matches compares a candidate vector against a stored commitment in
// constant shape: it recomputes and compares hashes rather than features.
func Matches(features models.FeatureVector, storedHash string) bool {
	return Compute(features) == storedHash
}

func quantize(v float64) float64 {
	return math.Round(v*precision) / precision
}
