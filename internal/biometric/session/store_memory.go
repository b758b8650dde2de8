package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"biobind/internal/biometric/models"
	"biobind/pkg/platform/sentinel"
)

// MemoryStore is the single-instance session cache. Take removes the entry
// under the same lock that reads it, so two concurrent completions of one
// token can never both succeed. A background sweep (run via Sweep) evicts
// entries that were never read, off the request path.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.CaptureSession

	logger *slog.Logger
	now    func() time.Time

	// onEvict, when set, observes sweep evictions (metrics hook).
	onEvict func(count int)
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source. Tests use this to force expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithEvictionObserver registers a callback invoked with the eviction count
// of each sweep pass that removed anything.
func WithEvictionObserver(fn func(count int)) MemoryOption {
	return func(s *MemoryStore) { s.onEvict = fn }
}

func NewMemoryStore(logger *slog.Logger, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*models.CaptureSession),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Put(_ context.Context, sess *models.CaptureSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

// Take atomically consumes the session for a token. Expired entries found
// here are removed as well; the caller cannot tell eviction-by-read from
// eviction-by-sweep, both report the token as gone.
func (s *MemoryStore) Take(_ context.Context, token string) (*models.CaptureSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.sessions, token)
	if sess.Expired(s.now()) {
		return nil, sentinel.ErrExpired
	}
	return sess, nil
}

// Sweep evicts expired sessions every interval until the context is
// cancelled. It runs on its own timer so TTL enforcement never adds latency
// to a live request.
func (s *MemoryStore) Sweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.evictExpired(); n > 0 {
				s.logger.Debug("swept expired capture sessions", "count", n)
				if s.onEvict != nil {
					s.onEvict(n)
				}
			}
		}
	}
}

func (s *MemoryStore) evictExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

// Len reports the number of pending sessions. Used by tests and health
// reporting.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
