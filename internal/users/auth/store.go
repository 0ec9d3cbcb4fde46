// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given (lowercased) email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures (conflict_email on duplicates)
	*/
	Create(context context.Context, user *User) error

	/*
		UpdatePassword replaces only the user's password hash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, userID, newHash string) error

	/*
		MarkVerified updates the user's status to is_verified = true.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	MarkVerified(context context.Context, userID string) error

	/*
		UpdateFailedLogins sets the consecutive failed-login counter.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - count: int

		Returns:
		  - error: Persistence failures
	*/
	UpdateFailedLogins(context context.Context, userID string, count int) error

	/*
		UpdateTwoFactor persists the full 2FA state of an account: the enabled
		flag, the encrypted TOTP secret, and the backup code digests.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - enabled: bool
		  - encryptedSecret: string (empty clears the secret)
		  - backupCodeHashes: []string (nil clears the codes)

		Returns:
		  - error: Persistence failures
	*/
	UpdateTwoFactor(context context.Context, userID string, enabled bool, encryptedSecret string, backupCodeHashes []string) error

	/*
		ConsumeBackupCode removes a single backup code digest from the account.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - codeHash: string

		Returns:
		  - error: Persistence failures
	*/
	ConsumeBackupCode(context context.Context, userID, codeHash string) error

	/*
		DeleteUnverifiedBefore removes accounts that never verified their email
		and were created before the cutoff.

		Parameters:
		  - context: context.Context
		  - cutoff: time.Time

		Returns:
		  - int64: Number of rows removed
		  - error: Persistence failures
	*/
	DeleteUnverifiedBefore(context context.Context, cutoff time.Time) (int64, error)
}

// # Session Data Access

// SessionRepository defines the data access contract for refresh-token sessions.
type SessionRepository interface {

	/*
		Create persists a new tracking session for an authenticated login.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByTokenHash returns the session matching the given token hash,
		INCLUDING revoked sessions. The caller inspects IsRevoked to classify
		a presented token as valid, revoked (reuse), or unknown.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Hydrated entity
		  - error: apperr.NotFound or database retrieval failures
	*/
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	/*
		RevokeIfActive atomically marks the session revoked only if it is not
		already. This is the serialization point of token rotation: of any
		number of concurrent refreshers, exactly one observes won=true.

		Parameters:
		  - context: context.Context
		  - sessionID: string

		Returns:
		  - bool: true if this call performed the revocation
		  - error: Persistence failures
	*/
	RevokeIfActive(context context.Context, sessionID string) (bool, error)

	/*
		Revoke marks a specific session as permanently invalidated.

		Parameters:
		  - context: context.Context
		  - sessionID: string

		Returns:
		  - error: Persistence failures
	*/
	Revoke(context context.Context, sessionID string) error

	/*
		RevokeAll revokes every active session belonging to the userID.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	RevokeAll(context context.Context, userID string) error

	/*
		RevokeOthers revokes all sessions belonging to the userID except for the current session.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - currentSessionID: string

		Returns:
		  - error: Persistence failures
	*/
	RevokeOthers(context context.Context, userID, currentSessionID string) error

	/*
		DeleteExpiredBefore physically removes sessions whose expiry passed
		before the cutoff (expiry + grace, applied by the caller).

		Parameters:
		  - context: context.Context
		  - cutoff: time.Time

		Returns:
		  - int64: Number of rows removed
		  - error: Persistence failures
	*/
	DeleteExpiredBefore(context context.Context, cutoff time.Time) (int64, error)
}

// # Volatile Data Access

// TokenKVRepository is the shared contract for single-use volatile tokens
// (email verification, password reset) mapping token → userID with a TTL.
type TokenKVRepository interface {

	/*
		Set stores a token associated with a userID for a limited duration.

		Parameters:
		  - context: context.Context
		  - token: string
		  - userID: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, token string, userID string, ttl time.Duration) error

	/*
		Get retrieves the userID associated with a given token.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - string: UserID
		  - error: apperr.InvalidToken if absent or expired
	*/
	Get(context context.Context, token string) (string, error)

	/*
		Delete removes a token after successful use.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, token string) error
}

// TwoFactorRepository defines the volatile state of the second-factor flows:
// one-time codes, pending-login sessions, and attempt counters.
type TwoFactorRepository interface {

	/*
		SetCode stores the one-time code for a user and purpose.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - purpose: TwoFactorPurpose
		  - code: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	SetCode(context context.Context, userID string, purpose TwoFactorPurpose, code string, ttl time.Duration) error

	/*
		GetCode retrieves the pending one-time code for a user and purpose.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - purpose: TwoFactorPurpose

		Returns:
		  - string: The stored code ("" if none pending)
		  - error: Retrieval failures
	*/
	GetCode(context context.Context, userID string, purpose TwoFactorPurpose) (string, error)

	/*
		DeleteCode consumes the one-time code for a user and purpose.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - purpose: TwoFactorPurpose

		Returns:
		  - error: Persistence failures
	*/
	DeleteCode(context context.Context, userID string, purpose TwoFactorPurpose) error

	/*
		SetSession stores the pending-2FA login state: token → userID.

		Parameters:
		  - context: context.Context
		  - token: string
		  - userID: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	SetSession(context context.Context, token string, userID string, ttl time.Duration) error

	/*
		GetSession resolves a pending-2FA token to its userID.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - string: UserID
		  - error: apperr.InvalidToken if absent or expired
	*/
	GetSession(context context.Context, token string) (string, error)

	/*
		DeleteSession removes a pending-2FA token after completion.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - error: Persistence failures
	*/
	DeleteSession(context context.Context, token string) error

	/*
		IncrementAttempts bumps the consecutive-failure counter for a user and
		purpose, refreshing its TTL.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - purpose: TwoFactorPurpose
		  - ttl: time.Duration

		Returns:
		  - int64: The counter value after incrementing
		  - error: Persistence failures
	*/
	IncrementAttempts(context context.Context, userID string, purpose TwoFactorPurpose, ttl time.Duration) (int64, error)

	/*
		ResetAttempts clears the failure counter after a successful verification.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - purpose: TwoFactorPurpose

		Returns:
		  - error: Persistence failures
	*/
	ResetAttempts(context context.Context, userID string, purpose TwoFactorPurpose) error

	/*
		IsLockedOut reports whether the failure counter has reached the lockout
		threshold and is still within its TTL window.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - purpose: TwoFactorPurpose

		Returns:
		  - bool: true while the lockout marker is active
		  - error: Retrieval failures
	*/
	IsLockedOut(context context.Context, userID string, purpose TwoFactorPurpose) (bool, error)
}
