// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// PostgreSQL implementations of the auth repositories.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/dberr"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `
	id, email, username, passwordhash, isverified, status, banexpiresat,
	twofactorenabled, twofactorsecret, backupcodes, failedlogins,
	createdat, updatedat`

// scanUser hydrates a User from a pgx row.
func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsVerified,
		&user.Status,
		&user.BanExpiresAt,
		&user.TwoFactorEnabled,
		&user.TwoFactorSecret,
		&user.BackupCodeHashes,
		&user.FailedLogins,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

/*
Create persists a new user record into the users.account table.

Description: Deep-persists account metadata, ensuring timestamps are
initialized if not provided. A unique violation on email or username is
surfaced as conflict_email.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: apperr.Conflict (conflict_email) or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, email, username, passwordhash, isverified, status, banexpiresat,
			twofactorenabled, twofactorsecret, backupcodes, failedlogins, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.IsVerified,
		user.Status,
		user.BanExpiresAt,
		user.TwoFactorEnabled,
		user.TwoFactorSecret,
		user.BackupCodeHashes,
		user.FailedLogins,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict(apperr.KindConflictEmail, "Email or username is already registered")
		}
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByEmail retrieves a user record by their unique (lowercased) email.

Description: Performs a lookup on the account table, filtering out soft-deleted users.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users.account
		WHERE email = $1 AND deletedat IS NULL`

	user, err := scanUser(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_email_failed: %w", err)
	}

	return user, nil
}

/*
FindByID retrieves a user record by their unique ID.

Description: Primary key resolution for user accounts.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: Not found or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users.account
		WHERE id = $1 AND deletedat IS NULL`

	user, err := scanUser(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_id_failed: %w", err)
	}

	return user, nil
}

/*
UpdatePassword updates only the password hash for a specific user.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, newHash string) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	_, err := repository.pool.Exec(context, query, userID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_password_failed: %w", err)
	}

	return nil
}

/*
MarkVerified updates the user's status to isverified = true.

Description: Post-verification activation of the account. Idempotent.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) MarkVerified(context context.Context, userID string) error {
	const query = "UPDATE users.account SET isverified = TRUE, updatedat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_mark_verified_failed: %w", err)
	}
	return nil
}

/*
UpdateFailedLogins sets the consecutive failed-login counter.

Parameters:
  - context: context.Context
  - userID: string
  - count: int

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) UpdateFailedLogins(context context.Context, userID string, count int) error {
	const query = "UPDATE users.account SET failedlogins = $2, updatedat = $3 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, userID, count, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_failed_logins_failed: %w", err)
	}
	return nil
}

/*
UpdateTwoFactor persists the full 2FA state of an account.

Description: Single write for the enabled flag, the encrypted secret, and the
backup code digests, so the invariant "enabled implies secret non-null" can
never be observed half-applied.

Parameters:
  - context: context.Context
  - userID: string
  - enabled: bool
  - encryptedSecret: string
  - backupCodeHashes: []string

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) UpdateTwoFactor(context context.Context, userID string, enabled bool, encryptedSecret string, backupCodeHashes []string) error {
	const query = `
		UPDATE users.account
		SET twofactorenabled = $2, twofactorsecret = $3, backupcodes = $4, updatedat = $5
		WHERE id = $1 AND deletedat IS NULL`

	_, err := repository.pool.Exec(context, query, userID, enabled, encryptedSecret, backupCodeHashes, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_two_factor_failed: %w", err)
	}

	return nil
}

/*
ConsumeBackupCode removes a single backup code digest from the account.

Parameters:
  - context: context.Context
  - userID: string
  - codeHash: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) ConsumeBackupCode(context context.Context, userID, codeHash string) error {
	const query = `
		UPDATE users.account
		SET backupcodes = array_remove(backupcodes, $2), updatedat = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, codeHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_consume_backup_code_failed: %w", err)
	}

	return nil
}

/*
DeleteUnverifiedBefore removes accounts that never verified their email.

Description: Janitor operation; rows are hard-deleted since they never held
real data beyond the registration form.

Parameters:
  - context: context.Context
  - cutoff: time.Time

Returns:
  - int64: Rows removed
  - error: Cleanup failures
*/
func (repository *PostgresUserRepository) DeleteUnverifiedBefore(context context.Context, cutoff time.Time) (int64, error) {
	const query = "DELETE FROM users.account WHERE isverified = FALSE AND createdat < $1"
	tag, err := repository.pool.Exec(context, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres_user_repo_delete_unverified_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
Create persists a new session record into the users.session table.

Description: Records a successful authentication session in persistent storage.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO users.session (
			id, userid, tokenhash, useragent, ipaddress, expiresat, isrevoked, revokedat, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.IsRevoked,
		session.RevokedAt,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByTokenHash retrieves a session by its unique token hash.

Description: Revoked sessions ARE returned (the rotation logic must be able to
see them to classify a reuse attack); only expired-and-gone rows miss.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated session metadata
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT id, userid, tokenhash, useragent, ipaddress, expiresat, isrevoked, revokedat, createdat
		FROM users.session
		WHERE tokenhash = $1`

	session := &Session{}
	err := repository.pool.QueryRow(context, query, tokenHash).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.RevokedAt,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

/*
RevokeIfActive atomically marks the session revoked only if it is not already.

Description: The conditional UPDATE is the serialization point of token
rotation — under concurrent refreshes of the same token, Postgres row locking
guarantees exactly one caller observes won=true.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - bool: true if this call performed the revocation
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) RevokeIfActive(context context.Context, sessionID string) (bool, error) {
	const query = `
		UPDATE users.session
		SET isrevoked = TRUE, revokedat = $2
		WHERE id = $1 AND isrevoked = FALSE`

	tag, err := repository.pool.Exec(context, query, sessionID, time.Now())
	if err != nil {
		return false, fmt.Errorf("postgres_session_repo_revoke_if_active_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

/*
Revoke marks a specific session as revoked. Idempotent.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - error: Revocation failures
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, sessionID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE, revokedat = COALESCE(revokedat, $2) WHERE id = $1"
	_, err := repository.pool.Exec(context, query, sessionID, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}
	return nil
}

/*
RevokeAll marks all active sessions for a user as revoked.

Description: Security nuking of all active sessions for a user (reuse attack
response, password reset).

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Batch revocation failures
*/
func (repository *PostgresSessionRepository) RevokeAll(context context.Context, userID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE, revokedat = $2 WHERE userid = $1 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}
	return nil
}

/*
RevokeOthers marks all active sessions for a user as revoked, except for one.

Parameters:
  - context: context.Context
  - userID: string
  - currentSessionID: string

Returns:
  - error: Filtered revocation failures
*/
func (repository *PostgresSessionRepository) RevokeOthers(context context.Context, userID, currentSessionID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE, revokedat = $3 WHERE userid = $1 AND id != $2 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(context, query, userID, currentSessionID, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_others_failed: %w", err)
	}
	return nil
}

/*
DeleteExpiredBefore permanently removes sessions expired before the cutoff.

Description: Janitor operation to reclaim storage from stale sessions.

Parameters:
  - context: context.Context
  - cutoff: time.Time

Returns:
  - int64: Rows removed
  - error: Cleanup failures
*/
func (repository *PostgresSessionRepository) DeleteExpiredBefore(context context.Context, cutoff time.Time) (int64, error) {
	const query = "DELETE FROM users.session WHERE expiresat <= $1"
	tag, err := repository.pool.Exec(context, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
