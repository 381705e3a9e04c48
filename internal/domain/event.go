package domain

import "time"

// Security event types published to the security topic.
const (
	EventAccountLocked     = "account.locked"
	EventPasswordReset     = "password.reset"
	EventTwoFactorDisabled = "two_factor.disabled"
)

// SecurityEvent is a notable credential state change, published for
// downstream alerting. It never carries secrets.
type SecurityEvent struct {
	Type       string     `json:"type"`
	AccountID  string     `json:"account_id"`
	Email      string     `json:"email"`
	OccurredAt time.Time  `json:"occurred_at"`
	Until      *time.Time `json:"until,omitempty"`
}
