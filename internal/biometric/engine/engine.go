// Package engine makes verification decisions. It is pure: no I/O, no
// clocks of its own, fully unit-testable. The orchestrating service feeds it
// stored credentials and candidate captures and persists whatever it
// decides.
package engine

import (
	"math"
	"time"

	"biobind/internal/biometric/commitment"
	"biobind/internal/biometric/fingerprint"
	"biobind/internal/biometric/models"
)

// Engine evaluates candidate captures against stored credentials.
type Engine struct {
	qualityFloor        float64
	fastRejectThreshold float64
}

// New builds an engine with the given thresholds. The quality floor doubles
// as the similarity floor at verification time; the fast-reject threshold
// short-circuits before the commitment comparison.
func New(qualityFloor, fastRejectThreshold float64) *Engine {
	return &Engine{
		qualityFloor:        qualityFloor,
		fastRejectThreshold: fastRejectThreshold,
	}
}

// QualityFloor exposes the floor for the capture-time quality gate.
func (e *Engine) QualityFloor() float64 { return e.qualityFloor }

// Evaluation is the outcome of matching a candidate against a credential.
type Evaluation struct {
	Matched bool
	// FastRejected is set when fingerprint similarity fell below the
	// fast-reject threshold and the commitment was never compared.
	FastRejected bool
	// Similarity is 1.0 on an exact commitment match, otherwise the
	// fingerprint similarity. Only disclosed to callers on success.
	Similarity float64
}

// Evaluate runs the two-stage match: a cheap fingerprint pre-filter, then
// the exact commitment comparison. A candidate passes when its commitment
// matches exactly or its similarity clears the quality floor.
func (e *Engine) Evaluate(cred *models.Credential, features models.FeatureVector, fp []float64) Evaluation {
	similarity := fingerprint.Compare(cred.Fingerprint, fp)
	if similarity < e.fastRejectThreshold {
		return Evaluation{FastRejected: true, Similarity: similarity}
	}

	if commitment.Matches(features, cred.CommitmentHash) {
		return Evaluation{Matched: true, Similarity: 1.0}
	}
	if similarity >= e.qualityFloor {
		return Evaluation{Matched: true, Similarity: similarity}
	}
	return Evaluation{Similarity: similarity}
}

// Score computes the explainable, counter-driven verification score:
//
//	base             = quality * 100 * successRatio
//	recency bonus    = max(0, 10 - days since last verification)
//	consistency      = max(0, (last similarity - 0.8) * 20)
//	failure penalty  = 5 * failures in the last hour
//
// clamped to [0, 100]. A credential that has never been verified scores its
// base from quality alone (success ratio counts as 1 until the first
// attempt).
func (e *Engine) Score(cred *models.Credential, now time.Time, recentFailures int) float64 {
	ratio := 1.0
	if cred.VerificationCount > 0 {
		ratio = float64(cred.SuccessfulVerifications) / float64(cred.VerificationCount)
	}
	base := cred.QualityScore * 100 * ratio

	var recencyBonus float64
	if cred.LastVerifiedAt != nil {
		days := now.Sub(*cred.LastVerifiedAt).Hours() / 24
		recencyBonus = math.Max(0, 10-days)
	}

	consistencyBonus := math.Max(0, (cred.LastSimilarityScore-0.8)*20)
	failurePenalty := 5 * float64(recentFailures)

	return clamp(base+recencyBonus+consistencyBonus-failurePenalty, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
