package handler

import (
	"encoding/json"
	"net/http"

	"github.com/freightlane/auth-core/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorEnvelope carries the lockout counters on credential failures.
type ErrorEnvelope struct {
	Error             string `json:"error"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
	MinutesRemaining  *int   `json:"minutesRemaining,omitempty"`
}

// AuthEnvelope wraps every response that issues a session.
type AuthEnvelope struct {
	Token     string                `json:"token"`
	ExpiresAt int64                 `json:"expiresAt"`
	User      *domain.PublicAccount `json:"user"`
}

// ChallengeEnvelope tells the client a second factor is pending.
type ChallengeEnvelope struct {
	RequiresTwoFactor bool   `json:"requires2FA"`
	Message           string `json:"message"`
}

// VerifyEmailEnvelope reports the outcome of an email verification link.
type VerifyEmailEnvelope struct {
	Verified        bool   `json:"verified,omitempty"`
	AlreadyVerified bool   `json:"alreadyVerified,omitempty"`
	Message         string `json:"message"`
}

// BackupCodesEnvelope returns freshly generated backup codes. They are shown once.
type BackupCodesEnvelope struct {
	BackupCodes []string `json:"backupCodes"`
	Message     string   `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a size-capped JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
