package handler

import (
	"net/http"

	"github.com/freightlane/auth-core/internal/application/login"
	"github.com/freightlane/auth-core/internal/application/session"
	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/pkg/validate"
	"github.com/freightlane/auth-core/internal/transport/http/middleware"
)

// SessionHandler handles login and logout.
type SessionHandler struct {
	login    login.Service
	sessions session.Service
}

func NewSessionHandler(loginSvc login.Service, sessions session.Service) *SessionHandler {
	return &SessionHandler{login: loginSvc, sessions: sessions}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req login.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		httpError(w, r, err)
		return
	}
	res, err := h.login.Login(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if res.RequiresTwoFactor {
		writeJSON(w, http.StatusOK, ChallengeEnvelope{
			RequiresTwoFactor: true,
			Message:           "a verification code has been sent to your email",
		})
		return
	}
	writeSession(w, r, h.sessions, res.Account, http.StatusOK)
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.sessions.Revoke(r.Context(), p); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

// writeSession issues a token for a and writes the auth envelope.
func writeSession(w http.ResponseWriter, r *http.Request, sessions session.Service, a *domain.Account, status int) {
	s, err := sessions.Issue(r.Context(), a)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, status, AuthEnvelope{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.Unix(),
		User:      s.Account.Public(),
	})
}
