// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
	"github.com/taibuivan/gatekeep/internal/platform/sec"
	"github.com/taibuivan/gatekeep/pkg/uuid"
)

// # Crypto Shims

// dummyArgon2Hash is a throwaway Argon2id digest verified against on the
// unknown-email path so its latency matches a real password check.
const dummyArgon2Hash = "$argon2id$v=19$m=65536,t=3,p=2$c29tZXNhbHRzb21lc2FsdA$RdescudvJCsgt3ub+b+dWRWJTmaaJObG"

func generateSecureToken(byteLength int) (string, error) {
	return sec.GenerateSecureToken(byteLength)
}

func hashToken(token string) string {
	return sec.HashToken(token)
}

// # Session Issuance

/*
issueSession mints a fresh access/refresh token pair for a fully
authenticated user.

Description: The session row's ID doubles as the access token's jti claim, so
a session revocation can be traced back to the exact JWT it pairs with. Only
the SHA-256 digest of the refresh token touches storage.

Parameters:
  - context: context.Context
  - user: *User
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: Access + refresh tokens and expiry
  - error: Generation or persistence failures
*/
func (service *Service) issueSession(context context.Context, user *User, userAgent, ipAddress string) (*LoginSession, error) {
	refreshToken, err := generateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_generate_refresh_failed: %w", err)
	}

	now := time.Now()
	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: now.Add(service.options.RefreshTokenTTL),
		CreatedAt: now,
	}

	if err := service.sessionRepository.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_create_session_failed: %w", err)
	}

	accessToken, err := service.tokenProvider.GenerateAccessToken(user.ID, session.ID, nil, service.options.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_sign_access_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: session.ExpiresAt,
		User:                  user,
	}, nil
}

// # Token Rotation

/*
Refresh exchanges a valid refresh token for a brand-new token pair.

Description: Implements one-time rotation with reuse detection. The presented
token is classified by its stored session row:

 1. Unknown hash → invalid_token.
 2. Expired → token_expired.
 3. Already revoked → a previously rotated token is being replayed. This is
    treated as theft evidence: EVERY session of the account is revoked and
    token_reuse_detected is returned.
 4. Active → atomically revoke-if-active. The single winner of a concurrent
    race mints the new pair; losers fall into the reuse branch.

Parameters:
  - context: context.Context
  - refreshToken: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: The replacement token pair
  - error: invalid_token, token_expired, token_reuse_detected, account_banned
*/
func (service *Service) Refresh(context context.Context, refreshToken, userAgent, ipAddress string) (*LoginSession, error) {
	session, err := service.sessionRepository.FindByTokenHash(context, hashToken(refreshToken))
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			metrics.RecordTokenRotation("invalid")
			return nil, apperr.InvalidToken("Refresh token is invalid")
		}
		return nil, err
	}

	now := time.Now()
	if now.After(session.ExpiresAt) {
		metrics.RecordTokenRotation("expired")
		return nil, apperr.TokenExpired()
	}

	if session.IsRevoked {
		return nil, service.handleTokenReuse(context, session)
	}

	won, err := service.sessionRepository.RevokeIfActive(context, session.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_rotate_revoke_failed: %w", err)
	}
	if !won {
		// A concurrent refresh already consumed this token.
		return nil, service.handleTokenReuse(context, session)
	}

	user, err := service.userRepository.FindByID(context, session.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned(now) {
		metrics.RecordTokenRotation("banned")
		return nil, apperr.AccountBanned()
	}

	newSession, err := service.issueSession(context, user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	metrics.RecordTokenRotation("rotated")
	return newSession, nil
}

// handleTokenReuse contains the theft response: revoke everything the
// account holds and report the incident.
func (service *Service) handleTokenReuse(ctx context.Context, session *Session) error {
	ctxutil.GetLogger(ctx).WarnContext(ctx, "refresh_token_reuse_detected",
		slog.String("user_id", session.UserID),
		slog.String("session_id", session.ID),
	)

	if err := service.sessionRepository.RevokeAll(ctx, session.UserID); err != nil {
		ctxutil.GetLogger(ctx).ErrorContext(ctx, "reuse_revoke_all_failed", slog.Any("error", err))
	}

	metrics.RecordTokenRotation("reuse_detected")
	return apperr.TokenReuseDetected()
}

// # Session Teardown

/*
Logout revokes the session behind the presented refresh token.

Description: Idempotent: an unknown, expired, or already-revoked token still
returns success, because the caller's goal (the token no longer works) is
already met.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: Only unexpected storage failures
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {
	session, err := service.sessionRepository.FindByTokenHash(context, hashToken(refreshToken))
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	if session.IsRevoked {
		return nil
	}

	if err := service.sessionRepository.Revoke(context, session.ID); err != nil {
		return fmt.Errorf("auth_service_logout_revoke_failed: %w", err)
	}

	return nil
}

/*
LogoutAll revokes every session belonging to the authenticated user.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Persistence failures
*/
func (service *Service) LogoutAll(context context.Context, userID string) error {
	if err := service.sessionRepository.RevokeAll(context, userID); err != nil {
		return fmt.Errorf("auth_service_logout_all_failed: %w", err)
	}
	return nil
}

// # Maintenance

/*
CleanupExpiredSessions physically deletes session rows whose expiry passed
more than the grace period ago. Run by the janitor.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of rows removed
  - error: Persistence failures
*/
func (service *Service) CleanupExpiredSessions(context context.Context) (int64, error) {
	cutoff := time.Now().Add(-SessionDeleteGrace)
	return service.sessionRepository.DeleteExpiredBefore(context, cutoff)
}

/*
CleanupUnverifiedUsers removes accounts that never verified their email within
the configured retention window. Run by the janitor.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of rows removed
  - error: Persistence failures
*/
func (service *Service) CleanupUnverifiedUsers(context context.Context) (int64, error) {
	maxAge := service.options.UnverifiedAccountMaxAge
	if maxAge <= 0 {
		maxAge = VerificationTokenTTL
	}
	cutoff := time.Now().Add(-maxAge)
	return service.userRepository.DeleteUnverifiedBefore(context, cutoff)
}
