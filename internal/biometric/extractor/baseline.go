package extractor

import (
	"context"
	"math"

	"biobind/internal/biometric/models"
	dErrors "biobind/pkg/domain-errors"
)

const (
	// baselineDim is the feature vector length the baseline extractor emits.
	baselineDim = 64
	// baselineMinPayload is the smallest payload that carries enough signal.
	baselineMinPayload = 256
	// baselineFullQuality is the payload size at which the quality estimate
	// saturates at 1.0.
	baselineFullQuality = 4096
)

// Baseline is a deterministic stand-in extractor for development and tests.
// It derives features from byte statistics of the payload, which is enough
// to exercise the full pipeline; production deployments register real
// signal-processing extractors per modality instead.
type Baseline struct{}

func NewBaseline() *Baseline { return &Baseline{} }

// Extract buckets the payload into fixed-width windows and normalizes each
// window's byte mean into [0,1]. Quality scales with payload size and the
// spread of the resulting features, so a flat payload scores poorly.
func (b *Baseline) Extract(_ context.Context, payload []byte) (*Result, error) {
	if len(payload) < baselineMinPayload {
		return nil, dErrors.Newf(dErrors.CodeInsufficientSignal,
			"payload of %d bytes is below the %d byte minimum", len(payload), baselineMinPayload)
	}

	features := make(models.FeatureVector, baselineDim)
	n := len(payload)
	for i := range baselineDim {
		start := i * n / baselineDim
		end := (i + 1) * n / baselineDim
		if end <= start {
			end = start + 1
		}
		var sum int
		for _, c := range payload[start:end] {
			sum += int(c)
		}
		features[i] = float64(sum) / float64(end-start) / 255
	}

	return &Result{Features: features, QualityScore: baselineQuality(payload, features)}, nil
}

func baselineQuality(payload []byte, features models.FeatureVector) float64 {
	sizeScore := math.Min(1, float64(len(payload))/baselineFullQuality)

	var mean float64
	for _, v := range features {
		mean += v
	}
	mean /= float64(len(features))
	var variance float64
	for _, v := range features {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(features))
	// Spread saturates quickly: a standard deviation of 0.1 already counts
	// as fully varied signal.
	spreadScore := math.Min(1, math.Sqrt(variance)/0.1)

	return math.Round((0.5*sizeScore+0.5*spreadScore)*1e4) / 1e4
}
