package handler

import (
	"net/http"

	"github.com/freightlane/auth-core/internal/application/login"
	"github.com/freightlane/auth-core/internal/application/session"
	"github.com/freightlane/auth-core/internal/application/twofactor"
	"github.com/freightlane/auth-core/internal/pkg/validate"
	"github.com/freightlane/auth-core/internal/transport/http/middleware"
)

type disableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

type backupCodeRequest struct {
	Email      string `json:"email" validate:"required,email"`
	BackupCode string `json:"backupCode" validate:"required"`
}

// TwoFactorHandler handles enabling, disabling and backup-code sign-in.
type TwoFactorHandler struct {
	svc      twofactor.Service
	login    login.Service
	sessions session.Service
}

func NewTwoFactorHandler(svc twofactor.Service, loginSvc login.Service, sessions session.Service) *TwoFactorHandler {
	return &TwoFactorHandler{svc: svc, login: loginSvc, sessions: sessions}
}

func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	codes, err := h.svc.Enable(r.Context(), p.Account.AccountID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BackupCodesEnvelope{
		BackupCodes: codes,
		Message:     "two-factor authentication enabled, store these backup codes safely",
	})
}

func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req disableTwoFactorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.login.ConfirmPassword(r.Context(), p.Account.AccountID, req.Password); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.Disable(r.Context(), p.Account.AccountID); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "two-factor authentication disabled"})
}

func (h *TwoFactorHandler) VerifyBackupCode(w http.ResponseWriter, r *http.Request) {
	var req backupCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		httpError(w, r, err)
		return
	}
	a, err := h.svc.VerifyBackupCode(r.Context(), req.Email, req.BackupCode)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeSession(w, r, h.sessions, a, http.StatusOK)
}
