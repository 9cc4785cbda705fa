package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/config"
	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/middleware"
	"github.com/wanpark/access-server-go/internal/model"
	"github.com/wanpark/access-server-go/internal/redis"
	"github.com/wanpark/access-server-go/internal/service"
	"github.com/wanpark/access-server-go/internal/util"
)

type CredentialHandler struct {
	credentials *service.CredentialService
	limiter     middleware.Limiter
	verifyLimit int
}

// NewCredentialHandler throttles verification per lock to verifyLimit
// attempts a minute.
func NewCredentialHandler(credentials *service.CredentialService, limiter middleware.Limiter, verifyLimit int) *CredentialHandler {
	return &CredentialHandler{
		credentials: credentials,
		limiter:     limiter,
		verifyLimit: verifyLimit,
	}
}

// POST /v1/credentials/issue
func (h *CredentialHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity       string  `json:"identity"`
		LockID         string  `json:"lockId"`
		Purpose        string  `json:"purpose"`
		ReservationRef *string `json:"reservationRef"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	identity, err := callerIdentity(r, req.Identity)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.LockID == "" {
		writeError(w, apperrors.MissingRequired("lockId"))
		return
	}
	purpose, appErr := requiredPurpose(req.Purpose)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	issued, err := h.credentials.Issue(r.Context(), service.IssueRequest{
		Identity:       identity,
		LockID:         req.LockID,
		Purpose:        purpose,
		ReservationRef: req.ReservationRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, issued)
}

// POST /v1/credentials/verify
// Called by the facility panel with the code a visitor typed in.
func (h *CredentialHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string `json:"code"`
		LockID  string `json:"lockId"`
		Purpose string `json:"purpose"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.LockID == "" {
		writeError(w, apperrors.MissingRequired("lockId"))
		return
	}
	if !util.IsValidLockID(req.LockID) {
		writeError(w, apperrors.InvalidInput("lockId", "malformed"))
		return
	}
	purpose, appErr := requiredPurpose(req.Purpose)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	allowed, retryAfter := h.limiter.CheckLimit(r.Context(), redis.VerifyLimitKey(req.LockID), h.verifyLimit, time.Minute)
	if !allowed {
		log.Warn().Str("lockId", req.LockID).Msg("verify rate limit exceeded")
		middleware.WriteRateLimited(w, retryAfter)
		return
	}

	if !util.IsNumericCode(req.Code, config.CodeLength) {
		writeError(w, apperrors.InvalidCode())
		return
	}

	if err := h.credentials.Verify(r.Context(), service.VerifyRequest{
		Code:    req.Code,
		LockID:  req.LockID,
		Purpose: purpose,
	}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": model.UnlockStatusUnlocked})
}

// requiredPurpose rejects an absent purpose. Only invite redemption defaults
// to entry.
func requiredPurpose(s string) (model.Purpose, *apperrors.AppError) {
	if s == "" {
		return "", apperrors.MissingRequired("purpose")
	}
	purpose, err := model.ParsePurpose(s)
	if err != nil {
		return "", apperrors.InvalidInput("purpose", "must be entry or exit")
	}
	return purpose, nil
}
