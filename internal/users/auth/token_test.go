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
TestService_Refresh_Rotation checks the happy path: the old token is revoked
and the new pair works.
*/
func TestService_Refresh_Rotation(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "login@example.com", "password-one1A")
	fixture.seedSession("sess-1", "user-1", "refresh-original", time.Now().Add(time.Hour))

	session, err := fixture.service.Refresh(context.Background(), "refresh-original", "agent", "127.0.0.1")
	require.NoError(t, err)

	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.NotEqual(t, "refresh-original", session.RefreshToken)

	// Old session revoked, replacement active
	assert.True(t, fixture.sessions.sessions["sess-1"].IsRevoked)
	assert.Equal(t, 1, fixture.sessions.activeCount("user-1"))

	// The replacement rotates again cleanly
	_, err = fixture.service.Refresh(context.Background(), session.RefreshToken, "agent", "127.0.0.1")
	require.NoError(t, err)
}

/*
TestService_Refresh_ReuseDetected covers the theft response: replaying an
already-rotated token nukes every session of the account, including the
children minted by the first rotation.
*/
func TestService_Refresh_ReuseDetected(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "login@example.com", "password-one1A")
	fixture.seedSession("sess-1", "user-1", "refresh-original", time.Now().Add(time.Hour))

	first, err := fixture.service.Refresh(context.Background(), "refresh-original", "agent", "127.0.0.1")
	require.NoError(t, err)

	// Replay of the consumed token
	_, err = fixture.service.Refresh(context.Background(), "refresh-original", "agent", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTokenReuse))

	// Everything the account held is revoked, the child included
	assert.Equal(t, 0, fixture.sessions.activeCount("user-1"))

	_, err = fixture.service.Refresh(context.Background(), first.RefreshToken, "agent", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTokenReuse))
}

/*
TestService_Refresh_Expired checks the token_expired classification.
*/
func TestService_Refresh_Expired(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "login@example.com", "password-one1A")
	fixture.seedSession("sess-1", "user-1", "refresh-old", time.Now().Add(-time.Minute))

	_, err := fixture.service.Refresh(context.Background(), "refresh-old", "agent", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTokenExpired))
}

/*
TestService_Refresh_Unknown checks the invalid_token classification.
*/
func TestService_Refresh_Unknown(t *testing.T) {
	fixture := newAuthFixture()

	_, err := fixture.service.Refresh(context.Background(), "never-issued", "agent", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

/*
TestService_Refresh_BannedUser ensures a ban applied mid-session blocks
rotation.
*/
func TestService_Refresh_BannedUser(t *testing.T) {
	fixture := newAuthFixture()
	user := fixture.seedUser("user-1", "login@example.com", "password-one1A")
	user.Status = auth.StatusPermBanned
	fixture.seedSession("sess-1", "user-1", "refresh-original", time.Now().Add(time.Hour))

	_, err := fixture.service.Refresh(context.Background(), "refresh-original", "agent", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAccountBanned))
}

/*
TestService_Logout_Idempotent verifies repeated and unknown-token logouts all
return success.
*/
func TestService_Logout_Idempotent(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "login@example.com", "password-one1A")
	fixture.seedSession("sess-1", "user-1", "refresh-original", time.Now().Add(time.Hour))

	require.NoError(t, fixture.service.Logout(context.Background(), "refresh-original"))
	assert.True(t, fixture.sessions.sessions["sess-1"].IsRevoked)

	// Second logout of the same token and logout of an unknown token are both fine
	require.NoError(t, fixture.service.Logout(context.Background(), "refresh-original"))
	require.NoError(t, fixture.service.Logout(context.Background(), "never-issued"))
}

/*
TestService_LogoutAll wipes every session.
*/
func TestService_LogoutAll(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "login@example.com", "password-one1A")
	fixture.seedSession("sess-1", "user-1", "refresh-one", time.Now().Add(time.Hour))
	fixture.seedSession("sess-2", "user-1", "refresh-two", time.Now().Add(time.Hour))

	require.NoError(t, fixture.service.LogoutAll(context.Background(), "user-1"))
	assert.Equal(t, 0, fixture.sessions.activeCount("user-1"))
}

/*
TestService_CleanupExpiredSessions verifies the janitor grace window: only
sessions past expiry + grace are physically removed.
*/
func TestService_CleanupExpiredSessions(t *testing.T) {
	fixture := newAuthFixture()
	fixture.seedUser("user-1", "login@example.com", "password-one1A")

	// Past grace: deleted. Freshly expired: kept for reuse classification.
	fixture.seedSession("sess-stale", "user-1", "refresh-stale", time.Now().Add(-auth.SessionDeleteGrace-time.Hour))
	fixture.seedSession("sess-recent", "user-1", "refresh-recent", time.Now().Add(-time.Minute))
	fixture.seedSession("sess-live", "user-1", "refresh-live", time.Now().Add(time.Hour))

	removed, err := fixture.service.CleanupExpiredSessions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), removed)
	assert.NotContains(t, fixture.sessions.sessions, "sess-stale")
	assert.Contains(t, fixture.sessions.sessions, "sess-recent")
	assert.Contains(t, fixture.sessions.sessions, "sess-live")
}

/*
TestService_CleanupUnverifiedUsers pins the purge cutoff to the configured
account max age, not the verification token lifetime.
*/
func TestService_CleanupUnverifiedUsers(t *testing.T) {
	fixture := newAuthFixtureWithOptions(auth.Options{
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTL:         30 * 24 * time.Hour,
		UnverifiedAccountMaxAge: 7 * 24 * time.Hour,
	})

	stale := fixture.seedUser("user-stale", "stale@example.com", "password-one1A")
	stale.IsVerified = false
	stale.CreatedAt = time.Now().Add(-8 * 24 * time.Hour)

	// Unverified but younger than the window: kept. The token expired days
	// ago, which must not matter.
	pending := fixture.seedUser("user-pending", "pending@example.com", "password-one1A")
	pending.IsVerified = false
	pending.CreatedAt = time.Now().Add(-2 * 24 * time.Hour)

	verified := fixture.seedUser("user-verified", "old@example.com", "password-one1A")
	verified.CreatedAt = time.Now().Add(-30 * 24 * time.Hour)

	removed, err := fixture.service.CleanupUnverifiedUsers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), removed)
	assert.NotContains(t, fixture.users.users, "user-stale")
	assert.Contains(t, fixture.users.users, "user-pending")
	assert.Contains(t, fixture.users.users, "user-verified")
}
