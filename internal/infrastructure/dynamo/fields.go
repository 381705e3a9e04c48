package dynamo

// DynamoDB attribute names used in update and condition expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	attrAccountID           = "account_id"
	attrEmail               = "email"
	attrOwnerID             = "owner_id"
	fieldPasswordHash       = "password_hash"
	fieldEmailVerified      = "email_verified"
	fieldVerificationDigest = "verification_digest"
	fieldVerificationExp    = "verification_expires"
	fieldLoginAttempts      = "login_attempts"
	fieldLockedUntil        = "locked_until"
	fieldTwoFactorEnabled   = "two_factor_enabled"
	fieldChallengeDigest    = "challenge_digest"
	fieldChallengeExp       = "challenge_expires"
	fieldBackupCodes        = "backup_codes"
	fieldResetDigest        = "reset_digest"
	fieldResetExp           = "reset_expires"
	fieldUpdatedAt          = "updated_at"

	indexEmail        = "email-index"
	indexVerification = "verification_digest-index"
	indexReset        = "reset_digest-index"

	// emailGuardPrefix keys the sentinel item that reserves an email address.
	emailGuardPrefix = "email#"
)
