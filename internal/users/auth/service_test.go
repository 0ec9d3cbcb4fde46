// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/users/auth"
)

/*
TestService_Register verifies account creation, email normalization, and the
verification side effects.
*/
func TestService_Register(t *testing.T) {
	fixture := newAuthFixture()

	user, err := fixture.service.Register(context.Background(), auth.RegisterInput{
		Email:    "  New.User@Example.COM ",
		Username: "newuser",
		Password: "correct-horse-42X",
	})
	require.NoError(t, err)

	// Email lowercased before storage
	assert.Equal(t, "new.user@example.com", user.Email)
	assert.False(t, user.IsVerified)
	assert.Equal(t, auth.StatusActive, user.Status)

	// Password never stored in plaintext
	assert.NotEqual(t, "correct-horse-42X", user.PasswordHash)

	// A verification token was parked and the email dispatched to it
	assert.Len(t, fixture.verifyRepo.values, 1)
	require.Eventually(t, func() bool { return fixture.emailSender.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "new.user@example.com", fixture.emailSender.last().To)
}

/*
TestService_Register_DuplicateEmail checks the conflict_email mapping.
*/
func TestService_Register_DuplicateEmail(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "taken@example.com", "password-one1A")

	_, err := fixture.service.Register(context.Background(), auth.RegisterInput{
		Email:    "TAKEN@example.com",
		Username: "other",
		Password: "password-two2B!",
	})

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflictEmail))
}

/*
TestService_VerifyEmail covers token consumption and idempotency.
*/
func TestService_VerifyEmail(t *testing.T) {
	fixture := newAuthFixture()
	user := fixture.seedUser("user-1", "pending@example.com", "password-one1A")
	user.IsVerified = false

	require.NoError(t, fixture.verifyRepo.Set(context.Background(), "tok-123", user.ID, time.Hour))

	require.NoError(t, fixture.service.VerifyEmail(context.Background(), "tok-123"))
	stored, err := fixture.users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)

	// Token is single-use
	err = fixture.service.VerifyEmail(context.Background(), "tok-123")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

/*
TestService_Login exercises the credential gates of login phase 1.
*/
func TestService_Login(t *testing.T) {
	banExpiry := time.Now().Add(time.Hour)

	tests := []struct {
		name         string
		email        string
		password     string
		prepare      func(user *auth.User)
		expectedKind apperr.Kind
	}{
		{
			name:     "success",
			email:    "login@example.com",
			password: "password-one1A",
		},
		{
			name:         "wrong_password",
			email:        "login@example.com",
			password:     "not-the-password",
			expectedKind: apperr.KindInvalidCredentials,
		},
		{
			name:         "unknown_email",
			email:        "ghost@example.com",
			password:     "password-one1A",
			expectedKind: apperr.KindInvalidCredentials,
		},
		{
			name:     "temp_banned",
			email:    "login@example.com",
			password: "password-one1A",
			prepare: func(user *auth.User) {
				user.Status = auth.StatusTempBanned
				user.BanExpiresAt = &banExpiry
			},
			expectedKind: apperr.KindAccountBanned,
		},
		{
			name:     "perm_banned",
			email:    "login@example.com",
			password: "password-one1A",
			prepare: func(user *auth.User) {
				user.Status = auth.StatusPermBanned
			},
			expectedKind: apperr.KindAccountBanned,
		},
		{
			name:     "unverified",
			email:    "login@example.com",
			password: "password-one1A",
			prepare: func(user *auth.User) {
				user.IsVerified = false
			},
			expectedKind: apperr.KindAccountNotVerified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newAuthFixture()
			user := fixture.seedUser("user-1", "login@example.com", "password-one1A")
			if tt.prepare != nil {
				tt.prepare(user)
			}

			result, err := fixture.service.Login(context.Background(), auth.LoginInput{
				Email:    tt.email,
				Password: tt.password,
			})

			if tt.expectedKind != "" {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, tt.expectedKind))
				return
			}

			require.NoError(t, err)
			require.NotNil(t, result.Session)
			assert.NotEmpty(t, result.Session.AccessToken)
			assert.NotEmpty(t, result.Session.RefreshToken)
			assert.Equal(t, 1, fixture.sessions.activeCount("user-1"))
		})
	}
}

/*
TestService_Login_FailedCounter checks that wrong passwords bump the counter
and a success resets it.
*/
func TestService_Login_FailedCounter(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "login@example.com", "password-one1A")

	for range 2 {
		_, err := fixture.service.Login(context.Background(), auth.LoginInput{
			Email:    "login@example.com",
			Password: "wrong",
		})
		require.Error(t, err)
	}

	stored, err := fixture.users.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.FailedLogins)

	_, err = fixture.service.Login(context.Background(), auth.LoginInput{
		Email:    "login@example.com",
		Password: "password-one1A",
	})
	require.NoError(t, err)

	stored, err = fixture.users.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLogins)
}

/*
TestService_Login_TwoFactorPending verifies the pending branch: no tokens, a
parked session, and an emailed code.
*/
func TestService_Login_TwoFactorPending(t *testing.T) {
	fixture := newAuthFixture()
	user := fixture.seedUser("user-1", "login@example.com", "password-one1A")
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = "enc:JBSWY3DPEHPK3PXP"

	result, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Email:    "login@example.com",
		Password: "password-one1A",
	})
	require.NoError(t, err)

	assert.Nil(t, result.Session)
	assert.NotEmpty(t, result.PendingTwoFactorToken)
	assert.Equal(t, 0, fixture.sessions.activeCount("user-1"))

	// The pending token resolves back to the user
	resolved, err := fixture.twoFactor.GetSession(context.Background(), result.PendingTwoFactorToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", resolved)

	// The emailed login code exists
	code, err := fixture.twoFactor.GetCode(context.Background(), "user-1", auth.PurposeLogin)
	require.NoError(t, err)
	assert.Len(t, code, auth.TwoFactorCodeDigits)
	require.Eventually(t, func() bool { return fixture.emailSender.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, fixture.emailSender.last().Body, code)
}

/*
TestService_RequestPasswordReset checks the anti-enumeration contract: both
paths return the same success, only the known email parks a token, and the
mail leaves off the request path so response timing cannot confirm an address.
*/
func TestService_RequestPasswordReset(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "known@example.com", "password-one1A")

	// Unknown email: success, no side effects
	require.NoError(t, fixture.service.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, fixture.resetRepo.values)
	assert.Zero(t, fixture.emailSender.count())

	// Known email: token parked before returning, mail delivered asynchronously
	require.NoError(t, fixture.service.RequestPasswordReset(context.Background(), "Known@Example.com"))
	assert.Len(t, fixture.resetRepo.values, 1)
	require.Eventually(t, func() bool { return fixture.emailSender.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "known@example.com", fixture.emailSender.last().To)
}

/*
TestService_ConfirmPasswordReset checks token consumption and the full session
revocation side effect.
*/
func TestService_ConfirmPasswordReset(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "known@example.com", "password-one1A")
	fixture.seedSession("sess-1", "user-1", "refresh-one", time.Now().Add(time.Hour))
	fixture.seedSession("sess-2", "user-1", "refresh-two", time.Now().Add(time.Hour))

	require.NoError(t, fixture.resetRepo.Set(context.Background(), "reset-tok", "user-1", time.Hour))

	require.NoError(t, fixture.service.ConfirmPasswordReset(context.Background(), "reset-tok", "brand-new-pass9Z"))

	// New password applies, every session is gone, token is burned
	stored, err := fixture.users.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "plain:brand-new-pass9Z", stored.PasswordHash)
	assert.Equal(t, 0, fixture.sessions.activeCount("user-1"))

	err = fixture.service.ConfirmPasswordReset(context.Background(), "reset-tok", "another-pass10Y")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

/*
TestService_ChangePassword verifies the current-password gate and that only
OTHER sessions are revoked.
*/
func TestService_ChangePassword(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "known@example.com", "password-one1A")
	fixture.seedSession("sess-current", "user-1", "refresh-current", time.Now().Add(time.Hour))
	fixture.seedSession("sess-other", "user-1", "refresh-other", time.Now().Add(time.Hour))

	// Wrong current password
	err := fixture.service.ChangePassword(context.Background(), "user-1", "wrong", "brand-new-pass9Z", "refresh-current")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidCredentials))

	// Correct current password
	require.NoError(t, fixture.service.ChangePassword(context.Background(), "user-1", "password-one1A", "brand-new-pass9Z", "refresh-current"))

	assert.Equal(t, 1, fixture.sessions.activeCount("user-1"))
	assert.False(t, fixture.sessions.sessions["sess-current"].IsRevoked)
	assert.True(t, fixture.sessions.sessions["sess-other"].IsRevoked)
}
