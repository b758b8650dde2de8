// Package events publishes domain events for external workflows (NFT
// minting, notifications) to consume. The core only emits; consumption is
// out of scope.
package events

import (
	"context"
	"log/slog"
	"time"
)

// TypeCredentialRegistered is emitted once per successful first
// registration of an (identity, modality) pair.
const TypeCredentialRegistered = "credential_registered"

// Event is the outbound domain event envelope.
type Event struct {
	Type         string    `json:"type"`
	IdentityRef  string    `json:"identity_ref"`
	Modality     string    `json:"modality"`
	QualityScore float64   `json:"quality_score,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Sink delivers events to an external consumer.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log. The default when no broker
// is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, event Event) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "domain event",
		slog.String("type", event.Type),
		slog.String("identity", event.IdentityRef),
		slog.String("modality", event.Modality),
		slog.Float64("quality_score", event.QualityScore),
	)
	return nil
}
