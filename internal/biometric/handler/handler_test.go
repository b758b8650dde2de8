package handler_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"biobind/internal/biometric/credential"
	"biobind/internal/biometric/engine"
	"biobind/internal/biometric/extractor"
	"biobind/internal/biometric/handler"
	"biobind/internal/biometric/models"
	"biobind/internal/biometric/ratelimit"
	"biobind/internal/biometric/service"
	"biobind/internal/biometric/session"
	"biobind/internal/biometric/signature"
	dErrors "biobind/pkg/domain-errors"
)

// stubExtractor mirrors the service tests: the first payload byte scaled by
// 100 becomes the uniform feature value, so requests can dial similarity.
type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, payload []byte) (*extractor.Result, error) {
	if len(payload) == 0 || payload[0] > 100 {
		return nil, dErrors.New(dErrors.CodeInsufficientSignal, "payload carries no signal")
	}
	features := make(models.FeatureVector, 32)
	for i := range features {
		features[i] = float64(payload[0]) / 100
	}
	return &extractor.Result{Features: features, QualityScore: 0.85}, nil
}

// HandlerSuite exercises the HTTP layer end to end against real in-memory
// components; only the extractor is stubbed.
type HandlerSuite struct {
	suite.Suite
	router *chi.Mux
	now    time.Time
	priv   ed25519.PrivateKey
	key    string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.priv = priv
	s.key = signature.EncodeKey(pub)

	limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), logger, ratelimit.WithClock(clock))
	s.Require().NoError(err)

	registry := extractor.NewRegistry()
	registry.Register(models.ModalityFacial, stubExtractor{})

	svc, err := service.New(
		session.NewMemoryStore(logger, session.WithClock(clock)),
		credential.NewMemoryStore(),
		limiter,
		signature.NewEd25519Gate(logger, nil),
		registry,
		engine.New(0.6, 0.7),
		logger,
		service.WithClock(clock),
	)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	s.router.Route("/v1/biometric", handler.New(svc, logger).Register)
}

// do posts a JSON body and decodes the JSON response.
func (s *HandlerSuite) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]any
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&decoded))
	return rec, decoded
}

func (s *HandlerSuite) beginCapture(payloadByte byte) string {
	sig := signature.Sign(s.priv, signature.PurposeCapture, s.key)
	rec, resp := s.do(http.MethodPost, "/v1/biometric/capture", map[string]any{
		"identity_ref": s.key,
		"modality":     "facial",
		"payload":      base64.StdEncoding.EncodeToString([]byte{payloadByte}),
		"signature":    base64.StdEncoding.EncodeToString(sig),
	})
	s.Require().Equal(http.StatusCreated, rec.Code, "capture response: %v", resp)
	token, _ := resp["session_token"].(string)
	s.Require().NotEmpty(token)
	return token
}

func (s *HandlerSuite) completeCapture(token, action string) (*httptest.ResponseRecorder, map[string]any) {
	purpose := signature.PurposeRegister
	if action == "verify" {
		purpose = signature.PurposeVerify
	}
	sig := signature.Sign(s.priv, purpose, token)
	return s.do(http.MethodPost, "/v1/biometric/complete", map[string]any{
		"session_token": token,
		"action":        action,
		"signature":     base64.StdEncoding.EncodeToString(sig),
	})
}

func (s *HandlerSuite) TestRegisterAndVerifyFlow() {
	rec, resp := s.completeCapture(s.beginCapture(50), "register")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("registered", resp["outcome"])

	rec, resp = s.completeCapture(s.beginCapture(50), "verify")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("verified", resp["outcome"])
	s.InDelta(1.0, resp["similarity"].(float64), 1e-9)
	s.Contains(resp, "verification_score")
}

func (s *HandlerSuite) TestInvalidJSONIsBadRequest() {
	req := httptest.NewRequest(http.MethodPost, "/v1/biometric/capture", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("invalid_input", resp["error"])
}

func (s *HandlerSuite) TestPayloadMustBeBase64() {
	rec, resp := s.do(http.MethodPost, "/v1/biometric/capture", map[string]any{
		"identity_ref": s.key,
		"modality":     "facial",
		"payload":      "!!not-base64!!",
		"signature":    "",
	})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid_input", resp["error"])
}

func (s *HandlerSuite) TestBadSignatureIsUnauthorized() {
	rec, resp := s.do(http.MethodPost, "/v1/biometric/capture", map[string]any{
		"identity_ref": s.key,
		"modality":     "facial",
		"payload":      base64.StdEncoding.EncodeToString([]byte{50}),
		"signature":    base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize)),
	})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("invalid_signature", resp["error"])
}

func (s *HandlerSuite) TestSpentTokenIsGone() {
	s.completeCapture(s.beginCapture(50), "register")
	token := s.beginCapture(50)

	rec, _ := s.completeCapture(token, "verify")
	s.Require().Equal(http.StatusOK, rec.Code)

	rec, resp := s.completeCapture(token, "verify")
	s.Equal(http.StatusGone, rec.Code)
	s.Equal("session_expired", resp["error"])
}

func (s *HandlerSuite) TestDuplicateRegistrationConflicts() {
	s.completeCapture(s.beginCapture(50), "register")

	rec, resp := s.completeCapture(s.beginCapture(50), "register")
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("already_registered", resp["error"])
}

func (s *HandlerSuite) TestVerifyUnenrolledIsNotFound() {
	rec, resp := s.completeCapture(s.beginCapture(50), "verify")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not_registered", resp["error"])
}

func (s *HandlerSuite) TestMismatchIsOpaqueUnauthorized() {
	s.completeCapture(s.beginCapture(50), "register")

	rec, resp := s.completeCapture(s.beginCapture(100), "verify")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("mismatch", resp["error"])
	s.NotContains(resp, "similarity")
}

func (s *HandlerSuite) TestRateLimitSetsRetryAfter() {
	s.completeCapture(s.beginCapture(50), "register")

	for range 5 {
		rec, _ := s.completeCapture(s.beginCapture(100), "verify")
		s.Require().Equal(http.StatusUnauthorized, rec.Code)
	}

	rec, resp := s.completeCapture(s.beginCapture(50), "verify")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("rate_limited", resp["error"])
	s.NotEmpty(rec.Header().Get("Retry-After"))
}

func (s *HandlerSuite) TestStatusEndpoint() {
	s.completeCapture(s.beginCapture(50), "register")
	s.completeCapture(s.beginCapture(50), "verify")

	rec, resp := s.do(http.MethodGet, "/v1/biometric/status/"+s.key, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(true, resp["has_credential"])
	s.Equal([]any{"facial"}, resp["modalities"])
	s.Greater(resp["verification_score"].(float64), 0.0)
}

func (s *HandlerSuite) TestStatusForUnknownIdentityIsEmpty() {
	rec, resp := s.do(http.MethodGet, "/v1/biometric/status/"+s.key, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(false, resp["has_credential"])
	s.Equal([]any{}, resp["modalities"])
}

func (s *HandlerSuite) TestRemoveCredential() {
	s.completeCapture(s.beginCapture(50), "register")

	sig := signature.Sign(s.priv, signature.PurposeRemoval, s.key)
	rec, resp := s.do(http.MethodDelete, "/v1/biometric/credential", map[string]any{
		"identity_ref": s.key,
		"modality":     "facial",
		"signature":    base64.StdEncoding.EncodeToString(sig),
	})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal([]any{}, resp["remaining_modalities"])
}

func (s *HandlerSuite) TestAuditTrailListsDeactivated() {
	s.completeCapture(s.beginCapture(50), "register")

	sig := signature.Sign(s.priv, signature.PurposeRemoval, s.key)
	rec, _ := s.do(http.MethodDelete, "/v1/biometric/credential", map[string]any{
		"identity_ref": s.key,
		"modality":     "facial",
		"signature":    base64.StdEncoding.EncodeToString(sig),
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec, resp := s.do(http.MethodGet, "/v1/biometric/audit/"+s.key, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	creds := resp["credentials"].([]any)
	s.Require().Len(creds, 1)
	entry := creds[0].(map[string]any)
	s.Equal(false, entry["active"])
	s.Equal("removed by owner", entry["deactivation_reason"])
}
