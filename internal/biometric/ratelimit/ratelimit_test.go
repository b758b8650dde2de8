package ratelimit_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"biobind/internal/biometric/ratelimit"
)

type LimiterSuite struct {
	suite.Suite
	limiter *ratelimit.Limiter
	now     time.Time
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), logger,
		ratelimit.WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.limiter = limiter
}

func (s *LimiterSuite) advance(d time.Duration) { s.now = s.now.Add(d) }

// fail records n failures spaced by gap, returning the last status.
func (s *LimiterSuite) fail(identity string, n int, gap time.Duration) *ratelimit.Status {
	var status *ratelimit.Status
	for i := range n {
		if i > 0 {
			s.advance(gap)
		}
		var err error
		status, err = s.limiter.RecordFailure(context.Background(), identity)
		s.Require().NoError(err)
	}
	return status
}

func (s *LimiterSuite) TestCleanIdentityNotLimited() {
	status, err := s.limiter.Status(context.Background(), "identity-1")
	s.Require().NoError(err)
	s.False(status.Limited)
	s.Equal(0, status.Failures)
}

func (s *LimiterSuite) TestFourQuickFailuresStayOpen() {
	status := s.fail("identity-1", 4, time.Second)
	s.False(status.Limited)
	s.Equal(4, status.Failures)
}

func (s *LimiterSuite) TestFifthQuickFailureTriggersCooldown() {
	status := s.fail("identity-1", 5, 10*time.Second)

	s.Require().True(status.Limited)
	// Cooldown lasts until the soft window measured from the first failure
	// elapses: 5m minus the 40s the burst took.
	s.Equal(5*time.Minute-40*time.Second, status.RetryAfter)
}

func (s *LimiterSuite) TestCooldownLiftsWhenSoftWindowElapses() {
	s.fail("identity-1", 5, 10*time.Second)

	s.advance(5 * time.Minute)

	status, err := s.limiter.Status(context.Background(), "identity-1")
	s.Require().NoError(err)
	s.False(status.Limited)
}

func (s *LimiterSuite) TestSlowFailuresAvoidCooldown() {
	// Five failures spread wider than the soft window never trip it.
	status := s.fail("identity-1", 5, 2*time.Minute)
	s.False(status.Limited)
}

func (s *LimiterSuite) TestHardBlockAtTenInWindow() {
	// Pace failures so the soft cooldown has lapsed but all ten still sit
	// inside the rolling hard window.
	status := s.fail("identity-1", 10, 90*time.Second)

	s.Require().True(status.Limited)
	// The block lifts when the count inside the rolling window drops below
	// ten, i.e. when the oldest of the ten ages out.
	first := s.now.Add(-9 * 90 * time.Second)
	s.Equal(first.Add(15*time.Minute).Sub(s.now), status.RetryAfter)
}

func (s *LimiterSuite) TestHardBlockLiftsAsFailuresAgeOut() {
	s.fail("identity-1", 10, 90*time.Second)

	s.advance(15 * time.Minute)

	status, err := s.limiter.Status(context.Background(), "identity-1")
	s.Require().NoError(err)
	s.False(status.Limited)
}

func (s *LimiterSuite) TestClearResetsTheLedger() {
	status := s.fail("identity-1", 5, time.Second)
	s.Require().True(status.Limited)

	s.Require().NoError(s.limiter.Clear(context.Background(), "identity-1"))

	status, err := s.limiter.Status(context.Background(), "identity-1")
	s.Require().NoError(err)
	s.False(status.Limited)
	s.Equal(0, status.Failures)
}

func (s *LimiterSuite) TestIdentitiesAreIndependent() {
	s.fail("identity-1", 5, time.Second)

	status, err := s.limiter.Status(context.Background(), "identity-2")
	s.Require().NoError(err)
	s.False(status.Limited)
}

func (s *LimiterSuite) TestRecentFailuresCountsLookbackOnly() {
	ctx := context.Background()
	s.fail("identity-1", 3, time.Minute)

	n, err := s.limiter.RecentFailures(ctx, "identity-1", time.Hour)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.limiter.RecentFailures(ctx, "identity-1", 90*time.Second)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *LimiterSuite) TestGapLongerThanHardWindowResets() {
	s.fail("identity-1", 9, time.Second)

	s.advance(16 * time.Minute)

	// One more failure after the gap starts a fresh episode.
	status, err := s.limiter.RecordFailure(context.Background(), "identity-1")
	s.Require().NoError(err)
	s.False(status.Limited)
	s.Equal(1, status.Failures)
}
