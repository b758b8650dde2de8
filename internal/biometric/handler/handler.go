// Package handler is the thin HTTP layer over the capture service. It
// parses requests, maps domain error codes onto status codes, and never
// embeds business logic.
package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"biobind/internal/biometric/service"
	dErrors "biobind/pkg/domain-errors"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the biometric endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/capture", h.handleBeginCapture)
	r.Post("/complete", h.handleCompleteCapture)
	r.Get("/status/{identityRef}", h.handleStatus)
	r.Delete("/credential", h.handleRemoveCredential)
	r.Get("/audit/{identityRef}", h.handleAuditTrail)
}

type beginCaptureRequest struct {
	IdentityRef string `json:"identity_ref"`
	Modality    string `json:"modality"`
	// Payload and Signature are base64 (std encoding).
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type beginCaptureResponse struct {
	SessionToken string  `json:"session_token"`
	QualityScore float64 `json:"quality_score"`
}

func (h *Handler) handleBeginCapture(w http.ResponseWriter, r *http.Request) {
	var req beginCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid JSON body"))
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "payload must be base64"))
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "signature must be base64"))
		return
	}

	receipt, err := h.svc.BeginCapture(r.Context(), req.IdentityRef, req.Modality, payload, sig)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, beginCaptureResponse{
		SessionToken: receipt.SessionToken,
		QualityScore: receipt.QualityScore,
	})
}

type completeCaptureRequest struct {
	SessionToken string `json:"session_token"`
	Action       string `json:"action"`
	Signature    string `json:"signature"`
}

type completeCaptureResponse struct {
	Outcome           string   `json:"outcome"`
	Similarity        *float64 `json:"similarity,omitempty"`
	VerificationScore *float64 `json:"verification_score,omitempty"`
}

func (h *Handler) handleCompleteCapture(w http.ResponseWriter, r *http.Request) {
	var req completeCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid JSON body"))
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "signature must be base64"))
		return
	}

	result, err := h.svc.CompleteCapture(r.Context(), req.SessionToken, req.Action, sig)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, completeCaptureResponse{
		Outcome:           string(result.Outcome),
		Similarity:        result.Similarity,
		VerificationScore: result.VerificationScore,
	})
}

type statusResponse struct {
	HasCredential     bool       `json:"has_credential"`
	Modalities        []string   `json:"modalities"`
	VerificationScore float64    `json:"verification_score"`
	LastVerifiedAt    *time.Time `json:"last_verified_at,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Status(r.Context(), chi.URLParam(r, "identityRef"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	modalities := report.Modalities
	if modalities == nil {
		modalities = []string{}
	}
	h.writeJSON(w, http.StatusOK, statusResponse{
		HasCredential:     report.HasCredential,
		Modalities:        modalities,
		VerificationScore: report.VerificationScore,
		LastVerifiedAt:    report.LastVerifiedAt,
	})
}

type removeCredentialRequest struct {
	IdentityRef string `json:"identity_ref"`
	Modality    string `json:"modality"`
	Signature   string `json:"signature"`
}

type removeCredentialResponse struct {
	RemainingModalities []string `json:"remaining_modalities"`
}

func (h *Handler) handleRemoveCredential(w http.ResponseWriter, r *http.Request) {
	var req removeCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid JSON body"))
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "signature must be base64"))
		return
	}

	result, err := h.svc.RemoveCredential(r.Context(), req.IdentityRef, req.Modality, sig)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, removeCredentialResponse{
		RemainingModalities: result.RemainingModalities,
	})
}

type auditEntry struct {
	ID                 string     `json:"id"`
	Modality           string     `json:"modality"`
	QualityScore       float64    `json:"quality_score"`
	VerificationCount  int        `json:"verification_count"`
	Active             bool       `json:"active"`
	CreatedAt          time.Time  `json:"created_at"`
	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
	DeactivationReason string     `json:"deactivation_reason,omitempty"`
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	creds, err := h.svc.AuditTrail(r.Context(), chi.URLParam(r, "identityRef"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries := make([]auditEntry, 0, len(creds))
	for _, c := range creds {
		entries = append(entries, auditEntry{
			ID:                 c.ID.String(),
			Modality:           c.Modality.String(),
			QualityScore:       c.QualityScore,
			VerificationCount:  c.VerificationCount,
			Active:             c.Active,
			CreatedAt:          c.CreatedAt,
			DeactivatedAt:      c.DeactivatedAt,
			DeactivationReason: c.DeactivationReason,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"credentials": entries})
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)

	if code == dErrors.CodeRateLimited {
		if retryAfter := dErrors.DetailOf(err, "retry_after"); retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}

	resp := errorResponse{Error: string(code), Message: publicMessage(code, err)}
	h.writeJSON(w, status, resp)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeUnsupportedModality:
		return http.StatusBadRequest
	case dErrors.CodeInsufficientSignal, dErrors.CodeQualityTooLow:
		return http.StatusUnprocessableEntity
	case dErrors.CodeInvalidSignature, dErrors.CodeMismatch:
		return http.StatusUnauthorized
	case dErrors.CodeSessionExpired:
		return http.StatusGone
	case dErrors.CodeAlreadyRegistered:
		return http.StatusConflict
	case dErrors.CodeNotRegistered:
		return http.StatusNotFound
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps internal error chains out of responses.
func publicMessage(code dErrors.Code, err error) string {
	if code == dErrors.CodeInternal {
		return "internal error"
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "request failed"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
