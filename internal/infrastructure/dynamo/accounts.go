package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/freightlane/auth-core/internal/domain"
)

// failureRetries bounds the optimistic retry loop of RecordLoginFailure.
const failureRetries = 10

// API is the subset of *dynamodb.Client the account repo uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// AccountRepo provides typed DynamoDB operations for the accounts table.
// Every state transition is a single conditional write, so concurrent
// requests against one account never lose an update.
type AccountRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewAccountRepo(client API, tableName string) *AccountRepo {
	return &AccountRepo{client: client, tableName: tableName, now: time.Now}
}

// WithClock sets the clock used for updated_at stamps on writes that are
// not already given a time.
func (r *AccountRepo) WithClock(now func() time.Time) *AccountRepo {
	r.now = now
	return r
}

// Create writes the account together with an email guard item in one
// transaction. Either both land or neither does.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	item, err := attributevalue.MarshalMap(toItem(a))
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	guard := map[string]types.AttributeValue{
		attrAccountID: &types.AttributeValueMemberS{Value: emailGuardPrefix + a.Email},
		attrOwnerID:   &types.AttributeValueMemberS{Value: a.AccountID},
	}
	notExists := aws.String("attribute_not_exists(account_id)")
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(r.tableName), Item: item, ConditionExpression: notExists}},
			{Put: &types.Put{TableName: aws.String(r.tableName), Item: guard, ConditionExpression: notExists}},
		},
	})
	if isTransactionCanceled(err) {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	return err
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(attrAccountID, accountID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var it accountItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return it.toDomain(), nil
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.queryGSI(ctx, indexEmail, attrEmail, email)
}

func (r *AccountRepo) GetByVerificationDigest(ctx context.Context, digest string) (*domain.Account, error) {
	return r.queryGSI(ctx, indexVerification, fieldVerificationDigest, digest)
}

func (r *AccountRepo) SetVerification(ctx context.Context, accountID string, secret domain.ExpiringSecret) error {
	return r.setSecret(ctx, accountID, fieldVerificationDigest, fieldVerificationExp, secret)
}

// MarkEmailVerified keeps the digest so a repeated link resolves to AlreadyVerified.
func (r *AccountRepo) MarkEmailVerified(ctx context.Context, accountID, digest string, now time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldEmailVerified: true,
		fieldUpdatedAt:     now.UTC(),
	})
	if err != nil {
		return err
	}
	if err := bindAll(&ue, map[string]interface{}{":d": digest, ":now": now.UnixMilli(), ":f": false}); err != nil {
		return err
	}
	err = r.update(ctx, accountID, ue,
		"verification_digest = :d AND verification_expires > :now AND email_verified = :f")
	if isConditionFailed(err) {
		return domain.ErrInvalidOrExpiredToken
	}
	return err
}

// RecordLoginFailure reads the record and writes the next counter state
// conditioned on the values it read. A lost race re-reads and tries again.
func (r *AccountRepo) RecordLoginFailure(ctx context.Context, accountID string, now time.Time) (domain.FailureResult, error) {
	for range failureRetries {
		a, err := r.Get(ctx, accountID)
		if err != nil {
			return domain.FailureResult{}, err
		}
		attempts := a.LoginAttempts
		switch a.LockStateAt(now) {
		case domain.Locked:
			return domain.FailureResult{}, &domain.LockedError{Until: *a.LockedUntil, Now: now}
		case domain.LockExpired:
			attempts = 0
		}
		attempts++

		sets := map[string]interface{}{
			fieldLoginAttempts: attempts,
			fieldUpdatedAt:     now.UTC(),
		}
		var removes []string
		var lockedUntil *time.Time
		if attempts >= domain.MaxLoginAttempts {
			until := now.Add(domain.LockoutDuration)
			lockedUntil = &until
			sets[fieldLockedUntil] = until.UnixMilli()
		} else if a.LockedUntil != nil {
			removes = append(removes, fieldLockedUntil)
		}
		ue, err := buildUpdateExpr(sets, removes...)
		if err != nil {
			return domain.FailureResult{}, err
		}
		cond := "login_attempts = :prev AND attribute_not_exists(locked_until)"
		values := map[string]interface{}{":prev": a.LoginAttempts}
		if a.LockedUntil != nil {
			cond = "login_attempts = :prev AND locked_until = :lock"
			values[":lock"] = a.LockedUntil.UnixMilli()
		}
		if err := bindAll(&ue, values); err != nil {
			return domain.FailureResult{}, err
		}
		err = r.update(ctx, accountID, ue, cond)
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return domain.FailureResult{}, err
		}
		return domain.FailureResult{Attempts: attempts, LockedUntil: lockedUntil}, nil
	}
	return domain.FailureResult{}, errors.New("record login failure: too much contention")
}

func (r *AccountRepo) ResetLoginAttempts(ctx context.Context, accountID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldLoginAttempts: 0,
		fieldUpdatedAt:     r.now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.update(ctx, accountID, ue, "attribute_exists(account_id)")
}

// Unlock clears an expired lock. An active lock, or none at all, is left alone.
func (r *AccountRepo) Unlock(ctx context.Context, accountID string, now time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldLoginAttempts: 0,
		fieldUpdatedAt:     now.UTC(),
	}, fieldLockedUntil)
	if err != nil {
		return err
	}
	if err := ue.bind(":now", now.UnixMilli()); err != nil {
		return err
	}
	err = r.update(ctx, accountID, ue, "locked_until <= :now")
	if isConditionFailed(err) {
		return nil
	}
	return err
}

func (r *AccountRepo) SetChallenge(ctx context.Context, accountID string, secret domain.ExpiringSecret) error {
	return r.setSecret(ctx, accountID, fieldChallengeDigest, fieldChallengeExp, secret)
}

func (r *AccountRepo) ConsumeChallenge(ctx context.Context, accountID, digest string, now time.Time) error {
	return r.consumeSecret(ctx, accountID, fieldChallengeDigest, fieldChallengeExp, digest, now, nil)
}

func (r *AccountRepo) EnableTwoFactor(ctx context.Context, accountID string, backupDigests []string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldTwoFactorEnabled: true,
		fieldBackupCodes:      &types.AttributeValueMemberSS{Value: backupDigests},
		fieldUpdatedAt:        r.now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.update(ctx, accountID, ue, "attribute_exists(account_id)")
}

func (r *AccountRepo) DisableTwoFactor(ctx context.Context, accountID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldTwoFactorEnabled: false,
		fieldUpdatedAt:        r.now().UTC(),
	}, fieldChallengeDigest, fieldChallengeExp, fieldBackupCodes)
	if err != nil {
		return err
	}
	return r.update(ctx, accountID, ue, "attribute_exists(account_id)")
}

// ConsumeBackupCode removes one digest from the backup code set. The contains
// condition makes two concurrent uses of one code succeed at most once.
func (r *AccountRepo) ConsumeBackupCode(ctx context.Context, accountID, digest string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(attrAccountID, accountID),
		UpdateExpression:    aws.String("DELETE backup_codes :set SET updated_at = :u"),
		ConditionExpression: aws.String("two_factor_enabled = :t AND contains(backup_codes, :code)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":set":  &types.AttributeValueMemberSS{Value: []string{digest}},
			":code": &types.AttributeValueMemberS{Value: digest},
			":t":    &types.AttributeValueMemberBOOL{Value: true},
			":u":    &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("backup code not found: %w", domain.ErrNotFound)
	}
	return err
}

func (r *AccountRepo) SetPasswordReset(ctx context.Context, accountID string, secret domain.ExpiringSecret) error {
	return r.setSecret(ctx, accountID, fieldResetDigest, fieldResetExp, secret)
}

func (r *AccountRepo) ConsumePasswordReset(ctx context.Context, digest, newHash string, now time.Time) (*domain.Account, error) {
	a, err := r.queryGSI(ctx, indexReset, fieldResetDigest, digest)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}
	if err := r.consumeSecret(ctx, a.AccountID, fieldResetDigest, fieldResetExp, digest, now,
		map[string]interface{}{fieldPasswordHash: newHash}); err != nil {
		return nil, err
	}
	return r.Get(ctx, a.AccountID)
}

func (r *AccountRepo) setSecret(ctx context.Context, accountID, digestField, expField string, secret domain.ExpiringSecret) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		digestField:    secret.Digest,
		expField:       secret.ExpiresAt.UnixMilli(),
		fieldUpdatedAt: r.now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.update(ctx, accountID, ue, "attribute_exists(account_id)")
}

// consumeSecret removes a one-time secret if it matches digest and has not
// expired, applying extra SETs in the same write.
func (r *AccountRepo) consumeSecret(ctx context.Context, accountID, digestField, expField, digest string, now time.Time, extra map[string]interface{}) error {
	sets := map[string]interface{}{fieldUpdatedAt: now.UTC()}
	for k, v := range extra {
		sets[k] = v
	}
	ue, err := buildUpdateExpr(sets, digestField, expField)
	if err != nil {
		return err
	}
	if err := bindAll(&ue, map[string]interface{}{":d": digest, ":now": now.UnixMilli()}); err != nil {
		return err
	}
	ue.Names["#cd"] = digestField
	ue.Names["#ce"] = expField
	err = r.update(ctx, accountID, ue, "#cd = :d AND #ce > :now")
	if isConditionFailed(err) {
		return domain.ErrInvalidOrExpiredToken
	}
	return err
}

func (r *AccountRepo) update(ctx context.Context, accountID string, ue updateExpr, condition string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(attrAccountID, accountID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// queryGSI resolves an account id through a sparse index, then re-reads the
// base item with a consistent read since GSIs lag behind writes.
func (r *AccountRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.Account, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var it accountItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	a, err := r.Get(ctx, it.AccountID)
	if err != nil {
		return nil, err
	}
	if !matchesIndex(a, attr, value) {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return a, nil
}

// matchesIndex drops stale GSI hits whose base item no longer carries the value.
func matchesIndex(a *domain.Account, attr, value string) bool {
	switch attr {
	case attrEmail:
		return a.Email == value
	case fieldVerificationDigest:
		return a.Verification != nil && a.Verification.Digest == value
	case fieldResetDigest:
		return a.PasswordReset != nil && a.PasswordReset.Digest == value
	}
	return true
}

func bindAll(ue *updateExpr, values map[string]interface{}) error {
	for k, v := range values {
		if err := ue.bind(k, v); err != nil {
			return err
		}
	}
	return nil
}
