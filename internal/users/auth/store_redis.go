// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Redis implementations of the volatile auth repositories.
//
// Key families (fixed prefixes, TTL attached at write time):
//
//	auth:verify_token:{token}   email verification
//	auth:reset_token:{token}    password reset
//	2fa:{user}:{purpose}        one-time codes
//	2fa_session:{token}         pending-login state
//	attempts:{user}:{purpose}   consecutive-failure counters
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/constants"
)

// # Single-Use Token Repositories

// RedisTokenRepository implements TokenKVRepository under a configurable
// key prefix. Two instances cover verification and reset tokens.
type RedisTokenRepository struct {
	client *redis.Client
	prefix string
	// notFoundMessage is returned inside apperr.InvalidToken when a token
	// misses, so callers surface flow-appropriate wording.
	notFoundMessage string
}

// NewVerificationTokenRepository creates the email-verification token store.
func NewVerificationTokenRepository(client *redis.Client) *RedisTokenRepository {
	return &RedisTokenRepository{
		client:          client,
		prefix:          constants.RedisPrefixVerifyToken,
		notFoundMessage: "Verification token is invalid or expired",
	}
}

// NewResetTokenRepository creates the password-reset token store.
func NewResetTokenRepository(client *redis.Client) *RedisTokenRepository {
	return &RedisTokenRepository{
		client:          client,
		prefix:          constants.RedisPrefixResetToken,
		notFoundMessage: "Reset token is invalid or expired",
	}
}

/*
Set stores a token with its associated userID and TTL.

Parameters:
  - context: context.Context
  - token: string
  - userID: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisTokenRepository) Set(context context.Context, token string, userID string, ttl time.Duration) error {
	key := repository.prefix + token

	if err := repository.client.Set(context, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_token_set_failed: %w", err)
	}

	return nil
}

/*
Get retrieves the userID for a given token.

Description: Returns apperr.InvalidToken if the token is absent or expired.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - string: Original UserID
  - error: apperr.InvalidToken or connectivity errors
*/
func (repository *RedisTokenRepository) Get(context context.Context, token string) (string, error) {
	key := repository.prefix + token

	userID, err := repository.client.Get(context, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.InvalidToken(repository.notFoundMessage)
		}
		return "", fmt.Errorf("redis_token_get_failed: %w", err)
	}

	return userID, nil
}

/*
Delete removes the token from Redis.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisTokenRepository) Delete(context context.Context, token string) error {
	key := repository.prefix + token

	if err := repository.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_token_delete_failed: %w", err)
	}

	return nil
}

// # Two-Factor Repository

// RedisTwoFactorRepository implements TwoFactorRepository using Redis.
type RedisTwoFactorRepository struct {
	client *redis.Client
}

// NewTwoFactorRepository creates a new Redis-backed TwoFactorRepository.
func NewTwoFactorRepository(client *redis.Client) *RedisTwoFactorRepository {
	return &RedisTwoFactorRepository{client: client}
}

// codeKey builds 2fa:{user}:{purpose}.
func codeKey(userID string, purpose TwoFactorPurpose) string {
	return fmt.Sprintf("%s%s:%s", constants.RedisPrefixTwoFactorCode, userID, purpose)
}

// sessionKey builds 2fa_session:{token}.
func sessionKey(token string) string {
	return constants.RedisPrefixTwoFactorSession + token
}

// attemptsKey builds attempts:{user}:{purpose}.
func attemptsKey(userID string, purpose TwoFactorPurpose) string {
	return fmt.Sprintf("%s%s:%s", constants.RedisPrefixAttempts, userID, purpose)
}

/*
SetCode stores the one-time code for a user and purpose.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: TwoFactorPurpose
  - code: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisTwoFactorRepository) SetCode(context context.Context, userID string, purpose TwoFactorPurpose, code string, ttl time.Duration) error {
	if err := repository.client.Set(context, codeKey(userID, purpose), code, ttl).Err(); err != nil {
		return fmt.Errorf("redis_2fa_code_set_failed: %w", err)
	}
	return nil
}

/*
GetCode retrieves the pending one-time code for a user and purpose.

Description: Returns "" (no error) when no code is pending — the verification
path treats an absent code the same as a wrong one.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: TwoFactorPurpose

Returns:
  - string: The stored code, or "" if none
  - error: Connectivity errors
*/
func (repository *RedisTwoFactorRepository) GetCode(context context.Context, userID string, purpose TwoFactorPurpose) (string, error) {
	code, err := repository.client.Get(context, codeKey(userID, purpose)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis_2fa_code_get_failed: %w", err)
	}
	return code, nil
}

/*
DeleteCode consumes the one-time code for a user and purpose.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: TwoFactorPurpose

Returns:
  - error: Execution errors
*/
func (repository *RedisTwoFactorRepository) DeleteCode(context context.Context, userID string, purpose TwoFactorPurpose) error {
	if err := repository.client.Del(context, codeKey(userID, purpose)).Err(); err != nil {
		return fmt.Errorf("redis_2fa_code_delete_failed: %w", err)
	}
	return nil
}

/*
SetSession stores the pending-2FA login state: token → userID.

Parameters:
  - context: context.Context
  - token: string
  - userID: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisTwoFactorRepository) SetSession(context context.Context, token string, userID string, ttl time.Duration) error {
	if err := repository.client.Set(context, sessionKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_2fa_session_set_failed: %w", err)
	}
	return nil
}

/*
GetSession resolves a pending-2FA token to its userID.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - string: UserID
  - error: apperr.InvalidToken if absent or expired
*/
func (repository *RedisTwoFactorRepository) GetSession(context context.Context, token string) (string, error) {
	userID, err := repository.client.Get(context, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.InvalidToken("Two-factor session is invalid or expired")
		}
		return "", fmt.Errorf("redis_2fa_session_get_failed: %w", err)
	}
	return userID, nil
}

/*
DeleteSession removes a pending-2FA token after completion.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: Execution errors
*/
func (repository *RedisTwoFactorRepository) DeleteSession(context context.Context, token string) error {
	if err := repository.client.Del(context, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redis_2fa_session_delete_failed: %w", err)
	}
	return nil
}

/*
IncrementAttempts bumps the consecutive-failure counter for a user/purpose.

Description: The TTL is refreshed on every increment so the lockout window
always counts from the most recent failure.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: TwoFactorPurpose
  - ttl: time.Duration

Returns:
  - int64: The counter value after incrementing
  - error: Execution errors
*/
func (repository *RedisTwoFactorRepository) IncrementAttempts(context context.Context, userID string, purpose TwoFactorPurpose, ttl time.Duration) (int64, error) {
	key := attemptsKey(userID, purpose)

	pipe := repository.client.TxPipeline()
	counter := pipe.Incr(context, key)
	pipe.Expire(context, key, ttl)
	if _, err := pipe.Exec(context); err != nil {
		return 0, fmt.Errorf("redis_2fa_attempts_incr_failed: %w", err)
	}

	return counter.Val(), nil
}

/*
ResetAttempts clears the failure counter after a successful verification.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: TwoFactorPurpose

Returns:
  - error: Execution errors
*/
func (repository *RedisTwoFactorRepository) ResetAttempts(context context.Context, userID string, purpose TwoFactorPurpose) error {
	if err := repository.client.Del(context, attemptsKey(userID, purpose)).Err(); err != nil {
		return fmt.Errorf("redis_2fa_attempts_reset_failed: %w", err)
	}
	return nil
}

/*
IsLockedOut reports whether the failure counter reached the lockout threshold.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: TwoFactorPurpose

Returns:
  - bool: true while the lockout marker is active
  - error: Connectivity errors
*/
func (repository *RedisTwoFactorRepository) IsLockedOut(context context.Context, userID string, purpose TwoFactorPurpose) (bool, error) {
	raw, err := repository.client.Get(context, attemptsKey(userID, purpose)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis_2fa_attempts_get_failed: %w", err)
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("redis_2fa_attempts_parse_failed: %w", err)
	}

	return count >= TwoFactorMaxAttempts, nil
}
