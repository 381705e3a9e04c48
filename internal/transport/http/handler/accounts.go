package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/freightlane/auth-core/internal/application/registration"
	"github.com/freightlane/auth-core/internal/application/session"
	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/pkg/validate"
	"github.com/freightlane/auth-core/internal/transport/http/middleware"
)

// AccountHandler handles sign-up, email verification and the profile endpoint.
type AccountHandler struct {
	svc      registration.Service
	sessions session.Service
}

func NewAccountHandler(svc registration.Service, sessions session.Service) *AccountHandler {
	return &AccountHandler{svc: svc, sessions: sessions}
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be shipper or carrier")
		return
	}
	var req registration.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Kind = kind
	a, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeSession(w, r, h.sessions, a, http.StatusCreated)
}

func (h *AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimSpace(r.URL.Query().Get("token"))
	if tok == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	res, err := h.svc.VerifyEmail(r.Context(), tok)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if res == registration.AlreadyVerified {
		writeJSON(w, http.StatusOK, VerifyEmailEnvelope{AlreadyVerified: true, Message: "email already verified"})
		return
	}
	writeJSON(w, http.StatusOK, VerifyEmailEnvelope{Verified: true, Message: "email verified"})
}

func (h *AccountHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req registration.ResendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		httpError(w, r, err)
		return
	}
	h.svc.ResendVerification(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, MessageEnvelope{
		Message: "if the account exists and is unverified, a verification email has been sent",
	})
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, p.Account.Public())
}
