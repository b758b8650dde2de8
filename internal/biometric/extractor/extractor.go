// Package extractor defines the pluggable pattern-extraction capability the
// capture pipeline consumes. Real signal processing lives behind the
// Extractor interface; the core never dispatches on modality strings itself.
package extractor

import (
	"context"
	"sync"

	"biobind/internal/biometric/models"
	dErrors "biobind/pkg/domain-errors"
)

// Result is what an extractor produces from a raw capture payload.
type Result struct {
	Features     models.FeatureVector
	QualityScore float64
}

// Extractor turns a raw capture payload into a normalized feature vector and
// a quality estimate in [0,1]. Implementations must fail with
// CodeInsufficientSignal when the payload is too weak to extract from.
type Extractor interface {
	Extract(ctx context.Context, payload []byte) (*Result, error)
}

// Registry maps modality tags to extractor implementations. Registration is
// expected at wire-up time but the registry is safe for concurrent use, so
// modalities can also be added while serving.
type Registry struct {
	mu         sync.RWMutex
	byModality map[models.Modality]Extractor
}

func NewRegistry() *Registry {
	return &Registry{byModality: make(map[models.Modality]Extractor)}
}

// Register binds an extractor to a modality tag, replacing any previous
// binding for the same tag.
func (r *Registry) Register(m models.Modality, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byModality[m] = e
}

// Lookup returns the extractor for a modality, or CodeUnsupportedModality.
func (r *Registry) Lookup(m models.Modality) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byModality[m]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedModality, "no extractor registered for modality %q", m)
	}
	return e, nil
}

// Modalities lists the registered modality tags.
func (r *Registry) Modalities() []models.Modality {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Modality, 0, len(r.byModality))
	for m := range r.byModality {
		out = append(out, m)
	}
	return out
}
