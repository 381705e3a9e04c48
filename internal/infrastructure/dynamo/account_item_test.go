package dynamo

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/freightlane/auth-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountItem_OptionalStateOmitted(t *testing.T) {
	a := &domain.Account{
		AccountID: "01J0000000000000000000000",
		Email:     "dispatch@acme.example",
		Profile:   domain.Profile{Kind: domain.KindCarrier, DOTNumber: "1234567"},
	}
	item, err := attributevalue.MarshalMap(toItem(a))
	require.NoError(t, err)

	for _, k := range []string{fieldLockedUntil, fieldChallengeDigest, fieldResetDigest, fieldVerificationDigest, fieldBackupCodes} {
		assert.NotContains(t, item, k)
	}
	assert.Contains(t, item, fieldLoginAttempts)
	assert.Contains(t, item, fieldTwoFactorEnabled)
}

func TestAccountItem_SecretsAndLockSurviveMapping(t *testing.T) {
	exp := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()).UTC()
	until := time.UnixMilli(time.Now().Add(30 * time.Minute).UnixMilli()).UTC()
	a := &domain.Account{
		AccountID:        "a1",
		Email:            "e@x.com",
		LoginAttempts:    5,
		LockedUntil:      &until,
		TwoFactorEnabled: true,
		Challenge:        &domain.ExpiringSecret{Digest: "c", ExpiresAt: exp},
		PasswordReset:    &domain.ExpiringSecret{Digest: "r", ExpiresAt: exp},
		BackupCodes:      []string{"b1", "b2"},
	}
	item, err := attributevalue.MarshalMap(toItem(a))
	require.NoError(t, err)

	_, isSet := item[fieldBackupCodes].(*types.AttributeValueMemberSS)
	assert.True(t, isSet, "backup codes must be a string set for DELETE updates")

	var it accountItem
	require.NoError(t, attributevalue.UnmarshalMap(item, &it))
	got := it.toDomain()

	require.NotNil(t, got.LockedUntil)
	assert.True(t, until.Equal(*got.LockedUntil))
	assert.Equal(t, "c", got.Challenge.Digest)
	assert.True(t, exp.Equal(got.PasswordReset.ExpiresAt))
	assert.Nil(t, got.Verification)
	assert.ElementsMatch(t, []string{"b1", "b2"}, got.BackupCodes)
}

func TestAccountsTableInput_SparseIndexes(t *testing.T) {
	in := accountsTableInput("accounts")
	names := make([]string, 0, len(in.GlobalSecondaryIndexes))
	for _, g := range in.GlobalSecondaryIndexes {
		names = append(names, *g.IndexName)
	}
	assert.ElementsMatch(t, []string{indexEmail, indexVerification, indexReset}, names)
}

func TestMatchesIndex_DropsStaleHits(t *testing.T) {
	a := &domain.Account{Email: "e@x.com"}
	assert.True(t, matchesIndex(a, attrEmail, "e@x.com"))
	assert.False(t, matchesIndex(a, fieldResetDigest, "r"))
}
