// Package service orchestrates the two-phase capture protocol: beginCapture
// opens a pending session, completeCapture consumes it into a registration
// or verification. All policy lives in the injected collaborators; this
// package sequences them.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"biobind/internal/audit"
	"biobind/internal/biometric/commitment"
	"biobind/internal/biometric/credential"
	"biobind/internal/biometric/engine"
	"biobind/internal/biometric/extractor"
	"biobind/internal/biometric/fingerprint"
	"biobind/internal/biometric/metrics"
	"biobind/internal/biometric/models"
	"biobind/internal/biometric/ratelimit"
	"biobind/internal/biometric/session"
	"biobind/internal/biometric/signature"
	"biobind/internal/events"
	"biobind/internal/identity"
	dErrors "biobind/pkg/domain-errors"
	"biobind/pkg/platform/sentinel"
)

// defaultSessionTTL bounds how long a pending capture stays consumable.
const defaultSessionTTL = 10 * time.Minute

// recentFailureWindow is the lookback for the score's failure penalty.
const recentFailureWindow = time.Hour

// Service wires the capture pipeline together.
type Service struct {
	sessions    session.Store
	credentials credential.Store
	limiter     *ratelimit.Limiter
	gate        signature.Gate
	extractors  *extractor.Registry
	engine      *engine.Engine

	directory identity.Directory
	sink      events.Sink
	audit     *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	sessionTTL time.Duration
	now        func() time.Time
}

// Option configures optional collaborators.
type Option func(*Service)

func WithDirectory(d identity.Directory) Option {
	return func(s *Service) { s.directory = d }
}

func WithEventSink(sink events.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithAuditPublisher(pub *audit.Publisher) Option {
	return func(s *Service) { s.audit = pub }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the service. Sessions, credentials, limiter, gate,
// extractor registry and engine are required; everything else defaults to a
// no-op collaborator.
func New(
	sessions session.Store,
	credentials credential.Store,
	limiter *ratelimit.Limiter,
	gate signature.Gate,
	extractors *extractor.Registry,
	eng *engine.Engine,
	logger *slog.Logger,
	opts ...Option,
) (*Service, error) {
	if sessions == nil || credentials == nil || limiter == nil || gate == nil || extractors == nil || eng == nil {
		return nil, errors.New("sessions, credentials, limiter, gate, extractors and engine are required")
	}
	s := &Service{
		sessions:    sessions,
		credentials: credentials,
		limiter:     limiter,
		gate:        gate,
		extractors:  extractors,
		engine:      eng,
		directory:   identity.Permissive{},
		sink:        events.NewLogSink(logger),
		logger:      logger,
		tracer:      otel.Tracer("biobind/biometric"),
		sessionTTL:  defaultSessionTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CaptureReceipt is the result of a successful beginCapture.
type CaptureReceipt struct {
	SessionToken string
	QualityScore float64
}

// BeginCapture validates the caller, extracts a pattern from the raw
// payload, and parks it in a pending session. The raw payload never outlives
// this call.
func (s *Service) BeginCapture(ctx context.Context, identityRef, modality string, payload, sig []byte) (*CaptureReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "biometric.BeginCapture",
		trace.WithAttributes(attribute.String("modality", modality)))
	defer span.End()

	if identityRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity reference is required")
	}
	mod, err := models.ParseModality(modality)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "capture payload is required")
	}

	ident, err := s.directory.Lookup(ctx, identityRef)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown identity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "identity lookup failed")
	}
	if !ident.Active {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity is inactive")
	}

	if err := s.gate.Verify(ctx, identityRef, signature.PurposeCapture, identityRef, sig); err != nil {
		s.metrics.CaptureRejected("signature")
		return nil, err
	}

	ext, err := s.extractors.Lookup(mod)
	if err != nil {
		s.metrics.CaptureRejected("modality")
		return nil, err
	}
	result, err := ext.Extract(ctx, payload)
	if err != nil {
		s.metrics.CaptureRejected("extraction")
		return nil, err
	}
	if err := result.Features.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "extractor produced an invalid vector")
	}
	if result.QualityScore < 0 || result.QualityScore > 1 {
		return nil, dErrors.New(dErrors.CodeInternal, "extractor produced a quality score out of [0,1]")
	}
	if result.QualityScore < s.engine.QualityFloor() {
		s.metrics.CaptureRejected("quality")
		s.emitAudit(ctx, audit.Event{
			Category:    audit.CategoryOperations,
			Action:      audit.ActionCaptureRejected,
			IdentityRef: identityRef,
			Modality:    mod.String(),
			Reason:      "quality below floor",
		})
		return nil, dErrors.Newf(dErrors.CodeQualityTooLow,
			"quality %.2f below floor %.2f, recapture required", result.QualityScore, s.engine.QualityFloor())
	}

	token, err := session.NewToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "token generation failed")
	}
	now := s.now()
	sess := &models.CaptureSession{
		Token:        token,
		IdentityRef:  identityRef,
		Modality:     mod,
		Features:     result.Features,
		Fingerprint:  fingerprint.Derive(result.Features),
		QualityScore: result.QualityScore,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store capture session")
	}

	s.metrics.CaptureStarted()
	s.emitAudit(ctx, audit.Event{
		Category:    audit.CategoryOperations,
		Action:      audit.ActionCaptureStarted,
		IdentityRef: identityRef,
		Modality:    mod.String(),
	})
	return &CaptureReceipt{SessionToken: token, QualityScore: result.QualityScore}, nil
}

// CompletionResult reports the terminal outcome of a capture session.
// Similarity and VerificationScore are only populated on success; a
// mismatch deliberately discloses nothing a brute-force caller could refine
// against.
type CompletionResult struct {
	Outcome           models.Outcome
	Similarity        *float64
	VerificationScore *float64
}

// CompleteCapture consumes a pending session and either registers a new
// credential or verifies against the existing one. The session token is
// spent regardless of outcome: retries restart from BeginCapture.
func (s *Service) CompleteCapture(ctx context.Context, token, action string, sig []byte) (*CompletionResult, error) {
	ctx, span := s.tracer.Start(ctx, "biometric.CompleteCapture",
		trace.WithAttributes(attribute.String("action", action)))
	defer span.End()
	start := s.now()
	defer func() { s.metrics.ObserveCompleteDuration(time.Since(start).Seconds()) }()

	act, err := models.ParseAction(action)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session token is required")
	}

	sess, err := s.sessions.Take(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.New(dErrors.CodeSessionExpired, "session token is expired, consumed, or unknown")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume capture session")
	}

	purpose := signature.PurposeRegister
	if act == models.ActionVerify {
		purpose = signature.PurposeVerify
	}
	if err := s.gate.Verify(ctx, sess.IdentityRef, purpose, token, sig); err != nil {
		return nil, err
	}

	status, err := s.limiter.Status(ctx, sess.IdentityRef)
	if err != nil {
		return nil, err
	}
	if status.Limited {
		s.metrics.RateLimited()
		return nil, rateLimitedError(status)
	}

	if act == models.ActionRegister {
		return s.register(ctx, sess)
	}
	return s.verify(ctx, sess)
}

func (s *Service) register(ctx context.Context, sess *models.CaptureSession) (*CompletionResult, error) {
	now := s.now()
	cred := models.NewCredential(
		sess.IdentityRef,
		sess.Modality,
		commitment.Compute(sess.Features),
		sess.Fingerprint,
		sess.QualityScore,
		now,
	)

	if err := s.credentials.Register(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeAlreadyRegistered,
				"an active %s credential already exists for this identity", sess.Modality)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register credential")
	}

	if err := s.limiter.Clear(ctx, sess.IdentityRef); err != nil {
		s.logger.Warn("failed to clear attempt ledger after registration",
			"identity", sess.IdentityRef, "error", err)
	}

	s.metrics.CredentialRegistered()
	s.emitAudit(ctx, audit.Event{
		Category:    audit.CategoryCompliance,
		Action:      audit.ActionCredentialRegistered,
		IdentityRef: sess.IdentityRef,
		Modality:    sess.Modality.String(),
	})
	if err := s.sink.Publish(ctx, events.Event{
		Type:         events.TypeCredentialRegistered,
		IdentityRef:  sess.IdentityRef,
		Modality:     sess.Modality.String(),
		QualityScore: sess.QualityScore,
		OccurredAt:   now,
	}); err != nil {
		// Event delivery is best-effort: the registration itself committed.
		s.logger.Error("failed to publish credential_registered event",
			"identity", sess.IdentityRef, "error", err)
	}

	return &CompletionResult{Outcome: models.StateRegistered}, nil
}

func (s *Service) verify(ctx context.Context, sess *models.CaptureSession) (*CompletionResult, error) {
	cred, err := s.credentials.FindActive(ctx, sess.IdentityRef, sess.Modality)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotRegistered,
				"no active %s credential for this identity", sess.Modality)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}

	eval := s.engine.Evaluate(cred, sess.Features, sess.Fingerprint)
	if !eval.Matched {
		return nil, s.recordMismatch(ctx, sess, cred, eval)
	}

	now := s.now()
	cred.RecordAttempt()
	cred.RecordSuccess(eval.Similarity, now)
	if err := s.credentials.Update(ctx, cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update credential")
	}
	if err := s.limiter.Clear(ctx, sess.IdentityRef); err != nil {
		s.logger.Warn("failed to clear attempt ledger after verification",
			"identity", sess.IdentityRef, "error", err)
	}

	score := s.engine.Score(cred, now, 0)
	s.metrics.Verification("verified")
	s.emitAudit(ctx, audit.Event{
		Category:    audit.CategorySecurity,
		Action:      audit.ActionVerificationSuccess,
		IdentityRef: sess.IdentityRef,
		Modality:    sess.Modality.String(),
	})

	sim := eval.Similarity
	return &CompletionResult{
		Outcome:           models.StateVerified,
		Similarity:        &sim,
		VerificationScore: &score,
	}, nil
}

// recordMismatch counts the failure in both the attempt ledger and the
// credential's counters, then returns an opaque mismatch. Fast rejects
// count the same as near misses.
func (s *Service) recordMismatch(ctx context.Context, sess *models.CaptureSession, cred *models.Credential, eval engine.Evaluation) error {
	if _, err := s.limiter.RecordFailure(ctx, sess.IdentityRef); err != nil {
		s.logger.Error("failed to record verification failure",
			"identity", sess.IdentityRef, "error", err)
	}
	cred.RecordAttempt()
	if err := s.credentials.Update(ctx, cred); err != nil {
		s.logger.Error("failed to update credential counters",
			"identity", sess.IdentityRef, "error", err)
	}

	reason := "similarity below floor"
	if eval.FastRejected {
		reason = "fingerprint fast reject"
	}
	s.metrics.Verification("mismatch")
	s.emitAudit(ctx, audit.Event{
		Category:    audit.CategorySecurity,
		Action:      audit.ActionVerificationFailed,
		IdentityRef: sess.IdentityRef,
		Modality:    sess.Modality.String(),
		Reason:      reason,
	})
	return dErrors.New(dErrors.CodeMismatch, "verification failed")
}

// StatusReport is the public view of an identity's enrollment.
type StatusReport struct {
	HasCredential     bool
	Modalities        []string
	VerificationScore float64
	LastVerifiedAt    *time.Time
}

// Status reports enrollment across modalities. The reported score is the
// best score among active credentials, penalized by recent failures.
func (s *Service) Status(ctx context.Context, identityRef string) (*StatusReport, error) {
	if identityRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity reference is required")
	}

	creds, err := s.credentials.ListByIdentity(ctx, identityRef, false)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	report := &StatusReport{}
	if len(creds) == 0 {
		return report, nil
	}

	recentFailures, err := s.limiter.RecentFailures(ctx, identityRef, recentFailureWindow)
	if err != nil {
		return nil, err
	}

	now := s.now()
	report.HasCredential = true
	for _, cred := range creds {
		report.Modalities = append(report.Modalities, cred.Modality.String())
		if score := s.engine.Score(cred, now, recentFailures); score > report.VerificationScore {
			report.VerificationScore = score
		}
		if cred.LastVerifiedAt != nil &&
			(report.LastVerifiedAt == nil || cred.LastVerifiedAt.After(*report.LastVerifiedAt)) {
			report.LastVerifiedAt = cred.LastVerifiedAt
		}
	}
	return report, nil
}

// RemovalResult reports what stays enrolled after a removal.
type RemovalResult struct {
	RemainingModalities []string
}

// RemoveCredential soft-deletes the active credential for one modality. The
// record survives in the audit listing.
func (s *Service) RemoveCredential(ctx context.Context, identityRef, modality string, sig []byte) (*RemovalResult, error) {
	if identityRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity reference is required")
	}
	mod, err := models.ParseModality(modality)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Verify(ctx, identityRef, signature.PurposeRemoval, identityRef, sig); err != nil {
		return nil, err
	}

	cred, err := s.credentials.FindActive(ctx, identityRef, mod)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotRegistered,
				"no active %s credential for this identity", mod)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}
	if err := s.credentials.Deactivate(ctx, cred.ID, "removed by owner", s.now()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate credential")
	}

	s.emitAudit(ctx, audit.Event{
		Category:    audit.CategoryCompliance,
		Action:      audit.ActionCredentialRemoved,
		IdentityRef: identityRef,
		Modality:    mod.String(),
	})

	remaining, err := s.credentials.ListByIdentity(ctx, identityRef, false)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list remaining credentials")
	}
	result := &RemovalResult{RemainingModalities: []string{}}
	for _, c := range remaining {
		result.RemainingModalities = append(result.RemainingModalities, c.Modality.String())
	}
	return result, nil
}

// AuditTrail lists every credential an identity has held, deactivated ones
// included.
func (s *Service) AuditTrail(ctx context.Context, identityRef string) ([]*models.Credential, error) {
	if identityRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity reference is required")
	}
	creds, err := s.credentials.ListByIdentity(ctx, identityRef, true)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return creds, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit != nil {
		s.audit.Emit(ctx, event)
	}
}

func rateLimitedError(status *ratelimit.Status) error {
	retryAfter := int(status.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return dErrors.Newf(dErrors.CodeRateLimited,
		"too many failed attempts, retry in %s", status.RetryAfter.Round(time.Second)).
		WithDetail("retry_after", strconv.Itoa(retryAfter))
}
