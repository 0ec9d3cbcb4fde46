// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the core identity and access management system.

It handles everything from user registration and Argon2id password hashing to
session lifecycle management via JWT access tokens and rotated refresh tokens,
plus the full second-factor surface (TOTP, emailed codes, backup codes).

Architecture:

  - Service: Orchestrates business logic (Register, Login, 2FA, rotation).
  - Repository: Abstracted interfaces for Postgres (users, sessions) and
    Redis (volatile tokens, codes, counters).
  - Security: Argon2id via a bounded worker pool, HS256/RS256 JWTs,
    AES-256-GCM for TOTP secrets at rest.

The package ensures that identity data remains consistent and secure
throughout the platform's lifecycle.
*/
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/email"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
	"github.com/taibuivan/gatekeep/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for generating signed access tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string for the given user.
	//
	// # Parameters
	//   - userID: The ID of the account.
	//   - jti: Unique token ID, shared with the paired refresh session.
	//   - roles: Informational role hints (never authoritative).
	//   - timeToLive: The duration before the token expires.
	//
	// # Returns
	//   - A signed JWT string, or an error if signing fails.
	GenerateAccessToken(userID, jti string, roles []string, timeToLive time.Duration) (string, error)
}

// PasswordVerifier defines the contract for password hashing and verification.
type PasswordVerifier interface {
	Hash(plainTextPassword string) (string, error)
	Verify(plainTextPassword, encodedHash string) (bool, error)
	NeedsRehash(encodedHash string) bool
}

// SecretCipher encrypts and decrypts TOTP secrets at rest.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Options bundles the tunable lifetimes of the service.
type Options struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// UnverifiedAccountMaxAge is how long an account may sit unverified
	// before the janitor purges it. Zero falls back to the verification
	// token lifetime.
	UnverifiedAccountMaxAge time.Duration
}

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// login, or rotation logic must be reviewed by the security team.
type Service struct {
	userRepository              UserRepository
	sessionRepository           SessionRepository
	verificationTokenRepository TokenKVRepository
	resetTokenRepository        TokenKVRepository
	twoFactorRepository         TwoFactorRepository
	tokenProvider               TokenProvider
	passwordVerifier            PasswordVerifier
	secretCipher                SecretCipher
	emailSender                 email.Sender
	options                     Options
}

// NewService constructs a new auth [Service] with its dependencies.
func NewService(
	userRepo UserRepository,
	sessionRepo SessionRepository,
	verifyRepo TokenKVRepository,
	resetRepo TokenKVRepository,
	twoFactorRepo TwoFactorRepository,
	tokenProv TokenProvider,
	verifier PasswordVerifier,
	cipher SecretCipher,
	sender email.Sender,
	options Options,
) *Service {
	return &Service{
		userRepository:              userRepo,
		sessionRepository:           sessionRepo,
		verificationTokenRepository: verifyRepo,
		resetTokenRepository:        resetRepo,
		twoFactorRepository:         twoFactorRepo,
		tokenProvider:               tokenProv,
		passwordVerifier:            verifier,
		secretCipher:                cipher,
		emailSender:                 sender,
		options:                     options,
	}
}

// AccessTokenTTL exposes the configured access-token lifetime to the
// transport layer (expires_in on token responses).
func (service *Service) AccessTokenTTL() time.Duration {
	return service.options.AccessTokenTTL
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

/*
Register validates, hashes, and persists a brand new user account.

Description: Enrolls a new principal. The email is lowercased before storage
so the uniqueness invariant holds case-insensitively. A verification token is
stored in Redis (24 h TTL) and mailed to the new address.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: conflict_email or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {
	emailAddress := strings.ToLower(strings.TrimSpace(input.Email))

	// Hash before the insert; the unique index is the single authority on
	// duplicates, avoiding the lookup/insert race.
	hashedPassword, err := service.passwordVerifier.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:           uuid.New(),
		Email:        emailAddress,
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: hashedPassword,
		IsVerified:   false,
		Status:       StatusActive,
	}

	if err := service.userRepository.Create(context, user); err != nil {
		return nil, err
	}

	// Generate and store a verification token, then mail the link. Failures
	// here are logged, not fatal: the janitor reaps unverified accounts and
	// the user can re-request verification.
	token, err := generateSecureToken(VerificationTokenLength)
	if err == nil {
		if err := service.verificationTokenRepository.Set(context, token, user.ID, VerificationTokenTTL); err == nil {
			service.sendVerificationEmail(context, user.Email, token)
		}
	}

	return user, nil
}

/*
VerifyEmail confirms a user's email address using a secure token.

Description: Consumes the token and flips is_verified. Idempotent when the
account is already verified.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: invalid_token or database errors
*/
func (service *Service) VerifyEmail(context context.Context, token string) error {
	userID, err := service.verificationTokenRepository.Get(context, token)
	if err != nil {
		return err
	}

	if err := service.userRepository.MarkVerified(context, userID); err != nil {
		return fmt.Errorf("auth_service_verify_email_failed: %w", err)
	}

	// Cleanup the used verification token from Redis
	_ = service.verificationTokenRepository.Delete(context, token)

	return nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  *User
}

// LoginResult is the outcome of login phase 1: either a full session, or a
// pending-2FA token when the account has a second factor enrolled.
type LoginResult struct {
	Session               *LoginSession
	PendingTwoFactorToken string
}

/*
Login validates user credentials (phase 1 of authentication).

Description: Looks up the account by lowercase email, verifies the password
with a constant-time comparison, and enforces the ban and verification gates.
Accounts with 2FA enabled receive a pending-2FA token instead of a session;
everyone else gets tokens immediately.

A single invalid_credentials kind covers unknown email and wrong password so
accounts cannot be enumerated.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginResult: Session or pending-2FA state
  - error: invalid_credentials, account_banned, account_not_verified
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginResult, error) {
	emailAddress := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := service.userRepository.FindByEmail(context, emailAddress)
	if err != nil {
		// Burn comparable CPU on the miss path so unknown emails are not
		// distinguishable from wrong passwords by response time.
		_, _ = service.passwordVerifier.Verify(input.Password, dummyArgon2Hash)
		metrics.RecordLoginAttempt("invalid")
		return nil, apperr.InvalidCredentials()
	}

	match, err := service.passwordVerifier.Verify(input.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("auth_service_verify_failed: %w", err)
	}
	if !match {
		_ = service.userRepository.UpdateFailedLogins(context, user.ID, user.FailedLogins+1)
		metrics.RecordLoginAttempt("invalid")
		return nil, apperr.InvalidCredentials()
	}

	// Gates apply only after the password proves account ownership, so their
	// distinct errors leak nothing to guessers.
	now := time.Now()
	if user.IsBanned(now) {
		metrics.RecordLoginAttempt("banned")
		return nil, apperr.AccountBanned()
	}
	if !user.IsVerified {
		metrics.RecordLoginAttempt("unverified")
		return nil, apperr.AccountNotVerified()
	}

	if user.FailedLogins > 0 {
		_ = service.userRepository.UpdateFailedLogins(context, user.ID, 0)
	}

	// Transparent cost upgrade for hashes minted under older parameters.
	if service.passwordVerifier.NeedsRehash(user.PasswordHash) {
		if rehash, err := service.passwordVerifier.Hash(input.Password); err == nil {
			_ = service.userRepository.UpdatePassword(context, user.ID, rehash)
		}
	}

	// Second factor: hold the "password accepted" state and challenge.
	if user.TwoFactorEnabled {
		pendingToken, err := service.beginTwoFactorChallenge(context, user)
		if err != nil {
			return nil, err
		}
		metrics.RecordLoginAttempt("2fa_required")
		return &LoginResult{PendingTwoFactorToken: pendingToken}, nil
	}

	session, err := service.issueSession(context, user, input.UserAgent, input.IPAddress)
	if err != nil {
		return nil, err
	}

	metrics.RecordLoginAttempt("success")
	return &LoginResult{Session: session}, nil
}

// # Password Recovery

/*
RequestPasswordReset initiates the forgot-password flow.

Description: Generates a single-use token (1 h TTL) and mails the reset link.
The caller ALWAYS receives success — the response is identical whether the
email exists, is unverified, or is unknown, to prevent enumeration.

Parameters:
  - context: context.Context
  - emailAddress: string

Returns:
  - error: Only internal generation/storage failures; never "not found"
*/
func (service *Service) RequestPasswordReset(context context.Context, emailAddress string) error {
	// The token is generated before the lookup and the mail leaves on its own
	// goroutine, so the unknown-email path does the same work as the
	// known-email path and response timing cannot confirm an address.
	token, err := generateSecureToken(ResetTokenLength)
	if err != nil {
		return fmt.Errorf("auth_service_generate_reset_token_failed: %w", err)
	}

	user, err := service.userRepository.FindByEmail(context, strings.ToLower(strings.TrimSpace(emailAddress)))
	if err != nil {
		return nil
	}

	if err := service.resetTokenRepository.Set(context, token, user.ID, ResetTokenTTL); err != nil {
		return fmt.Errorf("auth_service_save_reset_token_failed: %w", err)
	}

	service.sendResetEmail(context, user.Email, token)

	return nil
}

/*
ConfirmPasswordReset completes the forgot-password flow.

Description: Verifies the token, hashes the new password, updates the account,
and revokes ALL refresh sessions for security cleanup.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: invalid_token or update failures
*/
func (service *Service) ConfirmPasswordReset(context context.Context, token, newPassword string) error {
	userID, err := service.resetTokenRepository.Get(context, token)
	if err != nil {
		return err
	}

	hashedPassword, err := service.passwordVerifier.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	if err := service.userRepository.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_reset_password_update_failed: %w", err)
	}

	// Security Cleanup: Revoke EVERY active session for this user
	_ = service.sessionRepository.RevokeAll(context, userID)

	// Delete the used token from Redis
	_ = service.resetTokenRepository.Delete(context, token)

	return nil
}

/*
ChangePassword allows an authenticated user to update their credentials.

Description: Verifies the current password and then revokes all OTHER refresh
sessions, keeping only the caller's current device logged in.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string
  - currentRefreshToken: string

Returns:
  - error: invalid_credentials or storage failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword, currentRefreshToken string) error {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return err
	}

	match, err := service.passwordVerifier.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_verify_failed: %w", err)
	}
	if !match {
		return apperr.InvalidCredentials()
	}

	hashedPassword, err := service.passwordVerifier.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.userRepository.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	// Security Side Effect: Revoke all other sessions to force re-login on other devices
	tokenHash := hashToken(currentRefreshToken)
	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)
	if err == nil {
		_ = service.sessionRepository.RevokeOthers(context, userID, session.ID)
	} else {
		_ = service.sessionRepository.RevokeAll(context, userID)
	}

	return nil
}

// # Outbound Mail

// deliver hands a message to the sender on its own goroutine with a detached
// context, so response latency never reflects SMTP round-trips. Delivery
// failures are logged and swallowed; every mail flow has a re-request path.
func (service *Service) deliver(ctx context.Context, to, subject, body string) {
	logger := ctxutil.GetLogger(ctx)
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := service.emailSender.Send(detached, to, subject, body); err != nil {
			logger.WarnContext(detached, "email_send_failed",
				slog.String("subject", subject), slog.Any("error", err))
		}
	}()
}

// sendVerificationEmail mails the verification token.
func (service *Service) sendVerificationEmail(ctx context.Context, to, token string) {
	body := fmt.Sprintf(
		"Welcome to Gatekeep!\n\nConfirm your email address by opening:\n\n  /api/v1/auth/verify?token=%s\n\nThe link expires in 24 hours.",
		token,
	)
	service.deliver(ctx, to, "Verify your email address", body)
}

// sendResetEmail mails the password reset token.
func (service *Service) sendResetEmail(ctx context.Context, to, token string) {
	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\nReset token:\n\n  %s\n\nIt expires in 1 hour. If you did not request this, ignore this message.",
		token,
	)
	service.deliver(ctx, to, "Password reset requested", body)
}

// sendTwoFactorCodeEmail mails a one-time login code.
func (service *Service) sendTwoFactorCodeEmail(ctx context.Context, to, code string) {
	body := fmt.Sprintf(
		"Your Gatekeep verification code is:\n\n  %s\n\nIt expires in 5 minutes.",
		code,
	)
	service.deliver(ctx, to, "Your verification code", body)
}
