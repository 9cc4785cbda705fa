package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/model"
	"github.com/wanpark/access-server-go/internal/service"
	"github.com/wanpark/access-server-go/internal/util"
)

type InviteHandler struct {
	invites *service.InviteService
}

func NewInviteHandler(invites *service.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

// POST /v1/invites/create
func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity       string `json:"identity"`
		ReservationRef string `json:"reservationRef"`
		MaxUses        *int   `json:"maxUses"`
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
	if req.ReservationRef == "" {
		writeError(w, apperrors.MissingRequired("reservationRef"))
		return
	}

	created, err := h.invites.Create(r.Context(), service.CreateInviteRequest{
		HostIdentity:   identity,
		ReservationRef: req.ReservationRef,
		MaxUses:        req.MaxUses,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// POST /v1/invites/redeem
// Any authenticated bearer of the token may redeem it.
func (h *InviteHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
		Token    string `json:"token"`
		Purpose  string `json:"purpose"`
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
	if req.Token == "" {
		writeError(w, apperrors.MissingRequired("token"))
		return
	}
	if !util.IsValidInviteToken(req.Token) {
		writeError(w, apperrors.NotFound("Invite"))
		return
	}
	purpose, err := model.ParsePurpose(req.Purpose)
	if err != nil {
		writeError(w, apperrors.InvalidInput("purpose", "must be entry or exit"))
		return
	}

	result, err := h.invites.Redeem(r.Context(), service.RedeemInviteRequest{
		Token:    req.Token,
		Identity: identity,
		Purpose:  purpose,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /v1/invites/revoke
func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
		Token    string `json:"token"`
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
	if req.Token == "" {
		writeError(w, apperrors.MissingRequired("token"))
		return
	}

	if err := h.invites.Revoke(r.Context(), req.Token, identity); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": model.UnlockStatusRevoked})
}

// GET /v1/invites/{token}
func (h *InviteHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !util.IsValidInviteToken(token) {
		writeError(w, apperrors.NotFound("Invite"))
		return
	}

	view, err := h.invites.Lookup(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
