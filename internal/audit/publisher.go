package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence port for audit events. Append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIdentity(ctx context.Context, identityRef string) ([]Event, error)
}

// Publisher hands events to a bounded inbox drained by a Worker, keeping
// audit writes off the request path. When the inbox is full the event is
// dropped and logged rather than blocking a live request.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewPublisher creates a publisher with the given inbox capacity.
func NewPublisher(logger *slog.Logger, capacity int) *Publisher {
	if capacity <= 0 {
		capacity = 256
	}
	return &Publisher{
		inbox:  make(chan Event, capacity),
		logger: logger,
	}
}

// Emit queues an event for persistence. Missing IDs and timestamps are
// filled in here so call sites stay terse.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	p.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("action", string(event.Action)),
		slog.String("category", string(event.Category)),
		slog.String("identity", event.IdentityRef),
		slog.String("modality", event.Modality),
		slog.String("purpose", event.Purpose),
	)

	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit inbox full, dropping event",
			"action", event.Action, "identity", event.IdentityRef)
	}
}

// Inbox exposes the receive side for the Worker.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }
