// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
	"github.com/taibuivan/gatekeep/internal/platform/sec"
)

// # Enrollment

// TwoFactorSetup is the one-time provisioning payload shown after enabling.
type TwoFactorSetup struct {
	// Secret is the base32 TOTP secret for manual entry.
	Secret string

	// URI is the otpauth:// link rendered as a QR code by the client.
	URI string
}

/*
EnableTwoFactor provisions a TOTP secret for the account (step 1 of 2).

Description: Requires the account password. The secret is generated, encrypted
with AES-256-GCM, and stored with the enabled flag still FALSE — 2FA only
becomes active once ConfirmTwoFactorSetup proves the authenticator holds the
secret. Re-invoking replaces any unconfirmed pending secret.

Parameters:
  - context: context.Context
  - userID: string
  - password: string

Returns:
  - *TwoFactorSetup: Secret + provisioning URI, shown exactly once
  - error: invalid_credentials, validation_failed if already enabled
*/
func (service *Service) EnableTwoFactor(context context.Context, userID, password string) (*TwoFactorSetup, error) {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	match, err := service.passwordVerifier.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("auth_service_2fa_enable_verify_failed: %w", err)
	}
	if !match {
		return nil, apperr.InvalidCredentials()
	}

	if user.TwoFactorEnabled {
		return nil, apperr.ValidationError("Two-factor authentication is already enabled")
	}

	key, err := sec.GenerateTOTPKey(user.Email)
	if err != nil {
		return nil, fmt.Errorf("auth_service_2fa_generate_failed: %w", err)
	}

	encryptedSecret, err := service.secretCipher.Encrypt(key.Secret)
	if err != nil {
		return nil, fmt.Errorf("auth_service_2fa_encrypt_failed: %w", err)
	}

	// Pending state: secret stored, enabled stays false until confirmed.
	if err := service.userRepository.UpdateTwoFactor(context, userID, false, encryptedSecret, nil); err != nil {
		return nil, fmt.Errorf("auth_service_2fa_enable_save_failed: %w", err)
	}

	return &TwoFactorSetup{Secret: key.Secret, URI: key.URI}, nil
}

/*
ConfirmTwoFactorSetup activates 2FA on the account (step 2 of 2).

Description: Validates one TOTP code against the pending secret to prove the
authenticator is set up, then flips the enabled flag and issues the backup
codes. The plaintext codes are returned exactly once; only their SHA-256
digests are stored.

Parameters:
  - context: context.Context
  - userID: string
  - code: string

Returns:
  - []string: The backup codes (XXXX-XXXX), shown exactly once
  - error: two_factor_invalid, validation_failed if nothing is pending
*/
func (service *Service) ConfirmTwoFactorSetup(context context.Context, userID, code string) ([]string, error) {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return nil, apperr.ValidationError("Two-factor authentication is already enabled")
	}
	if user.TwoFactorSecret == "" {
		return nil, apperr.ValidationError("No two-factor setup is pending")
	}

	secret, err := service.secretCipher.Decrypt(user.TwoFactorSecret)
	if err != nil {
		return nil, fmt.Errorf("auth_service_2fa_decrypt_failed: %w", err)
	}

	if !sec.ValidateTOTP(code, secret) {
		return nil, apperr.TwoFactorInvalid()
	}

	backupCodes, err := sec.GenerateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("auth_service_2fa_backup_generate_failed: %w", err)
	}

	hashes := make([]string, len(backupCodes))
	for index, backupCode := range backupCodes {
		hashes[index] = hashToken(backupCode)
	}

	if err := service.userRepository.UpdateTwoFactor(context, userID, true, user.TwoFactorSecret, hashes); err != nil {
		return nil, fmt.Errorf("auth_service_2fa_confirm_save_failed: %w", err)
	}

	return backupCodes, nil
}

/*
DisableTwoFactor removes the second factor from the account.

Description: Requires BOTH the account password and a currently valid proof of
the second factor (TOTP code or backup code), so a stolen password alone
cannot strip the protection. Clears the secret and the backup codes.

Parameters:
  - context: context.Context
  - userID: string
  - password: string
  - code: string

Returns:
  - error: invalid_credentials, two_factor_invalid, validation_failed
*/
func (service *Service) DisableTwoFactor(context context.Context, userID, password, code string) error {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return err
	}

	if !user.TwoFactorEnabled {
		return apperr.ValidationError("Two-factor authentication is not enabled")
	}

	match, err := service.passwordVerifier.Verify(password, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("auth_service_2fa_disable_verify_failed: %w", err)
	}
	if !match {
		return apperr.InvalidCredentials()
	}

	verified, err := service.verifySecondFactor(context, user, code)
	if err != nil {
		return err
	}
	if !verified {
		return apperr.TwoFactorInvalid()
	}

	if err := service.userRepository.UpdateTwoFactor(context, userID, false, "", nil); err != nil {
		return fmt.Errorf("auth_service_2fa_disable_save_failed: %w", err)
	}

	return nil
}

// # Login Challenge

// beginTwoFactorChallenge parks the "password accepted" state and delivers
// the emailed one-time code. Called from login phase 1.
func (service *Service) beginTwoFactorChallenge(ctx context.Context, user *User) (string, error) {
	pendingToken, err := generateSecureToken(TwoFactorSessionTokenLength)
	if err != nil {
		return "", fmt.Errorf("auth_service_2fa_session_token_failed: %w", err)
	}

	if err := service.twoFactorRepository.SetSession(ctx, pendingToken, user.ID, TwoFactorSessionTTL); err != nil {
		return "", fmt.Errorf("auth_service_2fa_session_save_failed: %w", err)
	}

	code, err := sec.GenerateNumericCode(TwoFactorCodeDigits)
	if err != nil {
		return "", fmt.Errorf("auth_service_2fa_code_generate_failed: %w", err)
	}

	if err := service.twoFactorRepository.SetCode(ctx, user.ID, PurposeLogin, code, TwoFactorCodeTTL); err != nil {
		return "", fmt.Errorf("auth_service_2fa_code_save_failed: %w", err)
	}

	service.sendTwoFactorCodeEmail(ctx, user.Email, code)

	return pendingToken, nil
}

/*
VerifyTwoFactorCode completes login phase 2 and mints the token pair.

Description: Resolves the pending token, enforces the lockout, and accepts
any one of the three proofs: the emailed one-time code, a TOTP code, or a
backup code (consumed on use). Failed verifications bump a counter; reaching
the threshold locks the flow for the lockout window.

Parameters:
  - context: context.Context
  - pendingToken: string
  - code: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: The full token pair on success
  - error: two_factor_invalid, two_factor_locked
*/
func (service *Service) VerifyTwoFactorCode(context context.Context, pendingToken, code, userAgent, ipAddress string) (*LoginSession, error) {
	userID, err := service.twoFactorRepository.GetSession(context, pendingToken)
	if err != nil {
		// A consumed or expired challenge reads the same as a wrong code, so
		// replaying a spent token reveals nothing about the session.
		if apperr.IsKind(err, apperr.KindInvalidToken) {
			return nil, apperr.TwoFactorInvalid()
		}
		return nil, err
	}

	locked, err := service.twoFactorRepository.IsLockedOut(context, userID, PurposeLogin)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, apperr.TwoFactorLocked()
	}

	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	verified, err := service.verifyLoginProof(context, user, code)
	if err != nil {
		return nil, err
	}
	if !verified {
		attempts, err := service.twoFactorRepository.IncrementAttempts(context, userID, PurposeLogin, TwoFactorLockoutTTL)
		if err != nil {
			return nil, err
		}
		if attempts >= TwoFactorMaxAttempts {
			metrics.RecordLoginAttempt("2fa_locked")
			return nil, apperr.TwoFactorLocked()
		}
		metrics.RecordLoginAttempt("2fa_invalid")
		return nil, apperr.TwoFactorInvalid()
	}

	// Success: burn the volatile state before issuing tokens.
	_ = service.twoFactorRepository.ResetAttempts(context, userID, PurposeLogin)
	_ = service.twoFactorRepository.DeleteCode(context, userID, PurposeLogin)
	_ = service.twoFactorRepository.DeleteSession(context, pendingToken)

	session, err := service.issueSession(context, user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	metrics.RecordLoginAttempt("success")
	return session, nil
}

// verifyLoginProof checks the three acceptable proofs for the login challenge
// in order: emailed code, TOTP, backup code.
func (service *Service) verifyLoginProof(ctx context.Context, user *User, code string) (bool, error) {
	storedCode, err := service.twoFactorRepository.GetCode(ctx, user.ID, PurposeLogin)
	if err != nil {
		return false, err
	}
	if storedCode != "" && sec.ConstantTimeEquals(code, storedCode) {
		return true, nil
	}

	return service.verifySecondFactor(ctx, user, code)
}

// verifySecondFactor checks a TOTP code against the decrypted secret, falling
// back to the backup codes. A matched backup code is consumed.
func (service *Service) verifySecondFactor(ctx context.Context, user *User, code string) (bool, error) {
	if user.TwoFactorSecret != "" {
		secret, err := service.secretCipher.Decrypt(user.TwoFactorSecret)
		if err != nil {
			return false, fmt.Errorf("auth_service_2fa_decrypt_failed: %w", err)
		}
		if sec.ValidateTOTP(code, secret) {
			return true, nil
		}
	}

	codeHash := hashToken(code)
	if slices.Contains(user.BackupCodeHashes, codeHash) {
		if err := service.userRepository.ConsumeBackupCode(ctx, user.ID, codeHash); err != nil {
			return false, fmt.Errorf("auth_service_2fa_backup_consume_failed: %w", err)
		}
		return true, nil
	}

	return false, nil
}

// # Introspection

// TwoFactorStatus summarizes the account's second-factor state.
type TwoFactorStatus struct {
	Enabled              bool
	BackupCodesRemaining int
}

/*
GetTwoFactorStatus reports whether 2FA is active and how many backup codes
remain unconsumed.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *TwoFactorStatus: Current state
  - error: Retrieval failures
*/
func (service *Service) GetTwoFactorStatus(context context.Context, userID string) (*TwoFactorStatus, error) {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	return &TwoFactorStatus{
		Enabled:              user.TwoFactorEnabled,
		BackupCodesRemaining: len(user.BackupCodeHashes),
	}, nil
}
