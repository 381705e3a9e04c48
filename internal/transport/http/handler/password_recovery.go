package handler

import (
	"net/http"

	"github.com/freightlane/auth-core/internal/application/recovery"
	"github.com/freightlane/auth-core/internal/pkg/validate"
)

// forgotPasswordReply is the same for known and unknown emails.
const forgotPasswordReply = "if an account exists for that email, a password reset link has been sent"

// PasswordRecoveryHandler handles the forgot/reset password flow.
type PasswordRecoveryHandler struct {
	svc recovery.Service
}

func NewPasswordRecoveryHandler(svc recovery.Service) *PasswordRecoveryHandler {
	return &PasswordRecoveryHandler{svc: svc}
}

func (h *PasswordRecoveryHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req recovery.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		httpError(w, r, err)
		return
	}
	h.svc.RequestReset(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: forgotPasswordReply})
}

func (h *PasswordRecoveryHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req recovery.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password has been reset"})
}
