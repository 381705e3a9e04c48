package dynamo

import (
	"time"

	"github.com/freightlane/auth-core/internal/domain"
)

// accountItem is the DynamoDB row layout of an account. Expiries are unix
// milliseconds so condition expressions can compare them numerically.
// Empty optional attributes are omitted, which keeps them out of the sparse GSIs.
type accountItem struct {
	AccountID    string `dynamodbav:"account_id"`
	Email        string `dynamodbav:"email,omitempty"`
	PasswordHash string `dynamodbav:"password_hash,omitempty"`

	Kind        string `dynamodbav:"kind,omitempty"`
	FirstName   string `dynamodbav:"first_name,omitempty"`
	LastName    string `dynamodbav:"last_name,omitempty"`
	CompanyName string `dynamodbav:"company_name,omitempty"`
	Phone       string `dynamodbav:"phone,omitempty"`
	DOTNumber   string `dynamodbav:"dot_number,omitempty"`

	EmailVerified       bool   `dynamodbav:"email_verified"`
	VerificationDigest  string `dynamodbav:"verification_digest,omitempty"`
	VerificationExpires int64  `dynamodbav:"verification_expires,omitempty"`

	LoginAttempts int   `dynamodbav:"login_attempts"`
	LockedUntil   int64 `dynamodbav:"locked_until,omitempty"`

	TwoFactorEnabled bool     `dynamodbav:"two_factor_enabled"`
	ChallengeDigest  string   `dynamodbav:"challenge_digest,omitempty"`
	ChallengeExpires int64    `dynamodbav:"challenge_expires,omitempty"`
	BackupCodes      []string `dynamodbav:"backup_codes,stringset,omitempty"`

	ResetDigest  string `dynamodbav:"reset_digest,omitempty"`
	ResetExpires int64  `dynamodbav:"reset_expires,omitempty"`

	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

func toItem(a *domain.Account) accountItem {
	it := accountItem{
		AccountID:        a.AccountID,
		Email:            a.Email,
		PasswordHash:     a.PasswordHash,
		Kind:             string(a.Kind),
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		CompanyName:      a.CompanyName,
		Phone:            a.Phone,
		DOTNumber:        a.DOTNumber,
		EmailVerified:    a.EmailVerified,
		LoginAttempts:    a.LoginAttempts,
		TwoFactorEnabled: a.TwoFactorEnabled,
		BackupCodes:      a.BackupCodes,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	it.VerificationDigest, it.VerificationExpires = splitSecret(a.Verification)
	it.ChallengeDigest, it.ChallengeExpires = splitSecret(a.Challenge)
	it.ResetDigest, it.ResetExpires = splitSecret(a.PasswordReset)
	if a.LockedUntil != nil {
		it.LockedUntil = a.LockedUntil.UnixMilli()
	}
	return it
}

func (it accountItem) toDomain() *domain.Account {
	a := &domain.Account{
		AccountID:    it.AccountID,
		Email:        it.Email,
		PasswordHash: it.PasswordHash,
		Profile: domain.Profile{
			Kind:        domain.Kind(it.Kind),
			FirstName:   it.FirstName,
			LastName:    it.LastName,
			CompanyName: it.CompanyName,
			Phone:       it.Phone,
			DOTNumber:   it.DOTNumber,
		},
		EmailVerified:    it.EmailVerified,
		Verification:     joinSecret(it.VerificationDigest, it.VerificationExpires),
		LoginAttempts:    it.LoginAttempts,
		TwoFactorEnabled: it.TwoFactorEnabled,
		Challenge:        joinSecret(it.ChallengeDigest, it.ChallengeExpires),
		BackupCodes:      it.BackupCodes,
		PasswordReset:    joinSecret(it.ResetDigest, it.ResetExpires),
		CreatedAt:        it.CreatedAt,
		UpdatedAt:        it.UpdatedAt,
	}
	if it.LockedUntil != 0 {
		t := time.UnixMilli(it.LockedUntil).UTC()
		a.LockedUntil = &t
	}
	return a
}

func splitSecret(s *domain.ExpiringSecret) (string, int64) {
	if s == nil {
		return "", 0
	}
	return s.Digest, s.ExpiresAt.UnixMilli()
}

func joinSecret(digest string, expires int64) *domain.ExpiringSecret {
	if digest == "" {
		return nil
	}
	return &domain.ExpiringSecret{Digest: digest, ExpiresAt: time.UnixMilli(expires).UTC()}
}
