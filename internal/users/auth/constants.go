// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// RefreshTokenLength is the byte length of the random secure token.
	// 32 bytes = 256 bits of entropy.
	RefreshTokenLength = 32

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset token.
	ResetTokenLength = 32

	// VerificationTokenTTL is the duration an email verification token remains valid.
	// Long-lived (24 hours) as users might not check email immediately.
	VerificationTokenTTL = 24 * time.Hour

	// VerificationTokenLength is the byte length of the random verification token.
	VerificationTokenLength = 32
)

// # Two-Factor Constraints

const (
	// TwoFactorCodeDigits is the length of emailed one-time codes.
	TwoFactorCodeDigits = 6

	// TwoFactorCodeTTL is how long an emailed code stays valid.
	TwoFactorCodeTTL = 5 * time.Minute

	// TwoFactorSessionTTL is how long the "password accepted" state survives
	// while the second factor is pending.
	TwoFactorSessionTTL = 15 * time.Minute

	// TwoFactorSessionTokenLength is the byte length of the pending-2FA token.
	TwoFactorSessionTokenLength = 32

	// TwoFactorMaxAttempts is the number of consecutive failed verifications
	// that triggers a lockout.
	TwoFactorMaxAttempts = 3

	// TwoFactorLockoutTTL is how long the lockout marker persists.
	TwoFactorLockoutTTL = 5 * time.Minute

	// BackupCodeCount is the number of recovery codes issued on 2FA enrollment.
	BackupCodeCount = 8
)

// # Janitor Constraints

const (
	// SessionDeleteGrace keeps expired session rows around briefly so that
	// late reuse attempts can still be classified before cleanup.
	SessionDeleteGrace = 24 * time.Hour
)
