// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/sec"
	"github.com/taibuivan/gatekeep/internal/users/auth"
)

// In-memory fakes for the auth repositories. Tests drive these from a single
// goroutine; only the email sender needs locking, since the service delivers
// mail asynchronously.

// # User Repository

type userRepoFake struct {
	users map[string]*auth.User // keyed by ID
}

func newUserRepoFake() *userRepoFake {
	return &userRepoFake{users: map[string]*auth.User{}}
}

func (repo *userRepoFake) FindByID(_ context.Context, id string) (*auth.User, error) {
	user, ok := repo.users[id]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	copied := *user
	return &copied, nil
}

func (repo *userRepoFake) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, user := range repo.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *userRepoFake) Create(_ context.Context, user *auth.User) error {
	for _, existing := range repo.users {
		if existing.Email == user.Email {
			return apperr.Conflict(apperr.KindConflictEmail, "Email is already registered")
		}
	}
	copied := *user
	repo.users[user.ID] = &copied
	return nil
}

func (repo *userRepoFake) UpdatePassword(_ context.Context, userID, newHash string) error {
	user, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.PasswordHash = newHash
	return nil
}

func (repo *userRepoFake) MarkVerified(_ context.Context, userID string) error {
	user, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.IsVerified = true
	return nil
}

func (repo *userRepoFake) UpdateFailedLogins(_ context.Context, userID string, count int) error {
	user, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.FailedLogins = count
	return nil
}

func (repo *userRepoFake) UpdateTwoFactor(_ context.Context, userID string, enabled bool, encryptedSecret string, backupCodeHashes []string) error {
	user, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.TwoFactorEnabled = enabled
	user.TwoFactorSecret = encryptedSecret
	user.BackupCodeHashes = backupCodeHashes
	return nil
}

func (repo *userRepoFake) ConsumeBackupCode(_ context.Context, userID, codeHash string) error {
	user, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	remaining := make([]string, 0, len(user.BackupCodeHashes))
	for _, hash := range user.BackupCodeHashes {
		if hash != codeHash {
			remaining = append(remaining, hash)
		}
	}
	user.BackupCodeHashes = remaining
	return nil
}

func (repo *userRepoFake) DeleteUnverifiedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for id, user := range repo.users {
		if !user.IsVerified && user.CreatedAt.Before(cutoff) {
			delete(repo.users, id)
			removed++
		}
	}
	return removed, nil
}

// # Session Repository

type sessionRepoFake struct {
	sessions map[string]*auth.Session // keyed by ID
}

func newSessionRepoFake() *sessionRepoFake {
	return &sessionRepoFake{sessions: map[string]*auth.Session{}}
}

func (repo *sessionRepoFake) Create(_ context.Context, session *auth.Session) error {
	copied := *session
	repo.sessions[session.ID] = &copied
	return nil
}

func (repo *sessionRepoFake) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	for _, session := range repo.sessions {
		if session.TokenHash == tokenHash {
			copied := *session
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Session")
}

func (repo *sessionRepoFake) RevokeIfActive(_ context.Context, sessionID string) (bool, error) {
	session, ok := repo.sessions[sessionID]
	if !ok || session.IsRevoked {
		return false, nil
	}
	now := time.Now()
	session.IsRevoked = true
	session.RevokedAt = &now
	return true, nil
}

func (repo *sessionRepoFake) Revoke(_ context.Context, sessionID string) error {
	session, ok := repo.sessions[sessionID]
	if !ok {
		return apperr.NotFound("Session")
	}
	now := time.Now()
	session.IsRevoked = true
	session.RevokedAt = &now
	return nil
}

func (repo *sessionRepoFake) RevokeAll(_ context.Context, userID string) error {
	now := time.Now()
	for _, session := range repo.sessions {
		if session.UserID == userID && !session.IsRevoked {
			session.IsRevoked = true
			session.RevokedAt = &now
		}
	}
	return nil
}

func (repo *sessionRepoFake) RevokeOthers(_ context.Context, userID, currentSessionID string) error {
	now := time.Now()
	for _, session := range repo.sessions {
		if session.UserID == userID && session.ID != currentSessionID && !session.IsRevoked {
			session.IsRevoked = true
			session.RevokedAt = &now
		}
	}
	return nil
}

func (repo *sessionRepoFake) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for id, session := range repo.sessions {
		if session.ExpiresAt.Before(cutoff) {
			delete(repo.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// activeCount reports how many unrevoked sessions a user holds.
func (repo *sessionRepoFake) activeCount(userID string) int {
	count := 0
	for _, session := range repo.sessions {
		if session.UserID == userID && !session.IsRevoked {
			count++
		}
	}
	return count
}

// # Volatile Stores

type tokenKVFake struct {
	values          map[string]string
	notFoundMessage string
}

func newTokenKVFake(message string) *tokenKVFake {
	return &tokenKVFake{values: map[string]string{}, notFoundMessage: message}
}

func (repo *tokenKVFake) Set(_ context.Context, token, userID string, _ time.Duration) error {
	repo.values[token] = userID
	return nil
}

func (repo *tokenKVFake) Get(_ context.Context, token string) (string, error) {
	userID, ok := repo.values[token]
	if !ok {
		return "", apperr.InvalidToken(repo.notFoundMessage)
	}
	return userID, nil
}

func (repo *tokenKVFake) Delete(_ context.Context, token string) error {
	delete(repo.values, token)
	return nil
}

type twoFactorRepoFake struct {
	codes    map[string]string // user:purpose → code
	sessions map[string]string // token → user
	attempts map[string]int64  // user:purpose → counter
}

func newTwoFactorRepoFake() *twoFactorRepoFake {
	return &twoFactorRepoFake{
		codes:    map[string]string{},
		sessions: map[string]string{},
		attempts: map[string]int64{},
	}
}

func purposeKey(userID string, purpose auth.TwoFactorPurpose) string {
	return userID + ":" + string(purpose)
}

func (repo *twoFactorRepoFake) SetCode(_ context.Context, userID string, purpose auth.TwoFactorPurpose, code string, _ time.Duration) error {
	repo.codes[purposeKey(userID, purpose)] = code
	return nil
}

func (repo *twoFactorRepoFake) GetCode(_ context.Context, userID string, purpose auth.TwoFactorPurpose) (string, error) {
	return repo.codes[purposeKey(userID, purpose)], nil
}

func (repo *twoFactorRepoFake) DeleteCode(_ context.Context, userID string, purpose auth.TwoFactorPurpose) error {
	delete(repo.codes, purposeKey(userID, purpose))
	return nil
}

func (repo *twoFactorRepoFake) SetSession(_ context.Context, token, userID string, _ time.Duration) error {
	repo.sessions[token] = userID
	return nil
}

func (repo *twoFactorRepoFake) GetSession(_ context.Context, token string) (string, error) {
	userID, ok := repo.sessions[token]
	if !ok {
		return "", apperr.InvalidToken("Two-factor session is invalid or expired")
	}
	return userID, nil
}

func (repo *twoFactorRepoFake) DeleteSession(_ context.Context, token string) error {
	delete(repo.sessions, token)
	return nil
}

func (repo *twoFactorRepoFake) IncrementAttempts(_ context.Context, userID string, purpose auth.TwoFactorPurpose, _ time.Duration) (int64, error) {
	key := purposeKey(userID, purpose)
	repo.attempts[key]++
	return repo.attempts[key], nil
}

func (repo *twoFactorRepoFake) ResetAttempts(_ context.Context, userID string, purpose auth.TwoFactorPurpose) error {
	delete(repo.attempts, purposeKey(userID, purpose))
	return nil
}

func (repo *twoFactorRepoFake) IsLockedOut(_ context.Context, userID string, purpose auth.TwoFactorPurpose) (bool, error) {
	return repo.attempts[purposeKey(userID, purpose)] >= auth.TwoFactorMaxAttempts, nil
}

// # Security Fakes

// plainVerifier hashes with a cheap reversible scheme so tests stay fast.
type plainVerifier struct{}

func (plainVerifier) Hash(password string) (string, error) {
	return "plain:" + password, nil
}

func (plainVerifier) Verify(password, encodedHash string) (bool, error) {
	return encodedHash == "plain:"+password, nil
}

func (plainVerifier) NeedsRehash(string) bool { return false }

// staticTokenProvider mints predictable access tokens encoding user and jti.
type staticTokenProvider struct{}

func (staticTokenProvider) GenerateAccessToken(userID, jti string, _ []string, _ time.Duration) (string, error) {
	return fmt.Sprintf("access.%s.%s", userID, jti), nil
}

// identityCipher "encrypts" by prefixing, enough to assert at-rest state.
type identityCipher struct{}

func (identityCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (identityCipher) Decrypt(ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

// sentEmail captures an outbound message.
type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// emailSenderFake is mutex-guarded: the service delivers mail on its own
// goroutines.
type emailSenderFake struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (sender *emailSenderFake) Send(_ context.Context, to, subject, body string) error {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	sender.sent = append(sender.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (sender *emailSenderFake) count() int {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	return len(sender.sent)
}

func (sender *emailSenderFake) last() sentEmail {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	return sender.sent[len(sender.sent)-1]
}

// # Harness

type authFixture struct {
	service     *auth.Service
	users       *userRepoFake
	sessions    *sessionRepoFake
	verifyRepo  *tokenKVFake
	resetRepo   *tokenKVFake
	twoFactor   *twoFactorRepoFake
	emailSender *emailSenderFake
}

func newAuthFixture() *authFixture {
	return newAuthFixtureWithOptions(auth.Options{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	})
}

func newAuthFixtureWithOptions(options auth.Options) *authFixture {
	fixture := &authFixture{
		users:       newUserRepoFake(),
		sessions:    newSessionRepoFake(),
		verifyRepo:  newTokenKVFake("Verification token is invalid or expired"),
		resetRepo:   newTokenKVFake("Reset token is invalid or expired"),
		twoFactor:   newTwoFactorRepoFake(),
		emailSender: &emailSenderFake{},
	}

	fixture.service = auth.NewService(
		fixture.users,
		fixture.sessions,
		fixture.verifyRepo,
		fixture.resetRepo,
		fixture.twoFactor,
		staticTokenProvider{},
		plainVerifier{},
		identityCipher{},
		fixture.emailSender,
		options,
	)

	return fixture
}

// seedUser registers a verified account directly in the fake store.
func (fixture *authFixture) seedUser(id, email, password string) *auth.User {
	user := &auth.User{
		ID:           id,
		Email:        email,
		Username:     strings.SplitN(email, "@", 2)[0],
		PasswordHash: "plain:" + password,
		IsVerified:   true,
		Status:       auth.StatusActive,
		CreatedAt:    time.Now(),
	}
	fixture.users.users[id] = user
	return user
}

// seedSession creates an active refresh session and returns the plaintext token.
func (fixture *authFixture) seedSession(sessionID, userID, refreshToken string, expiresAt time.Time) {
	fixture.sessions.sessions[sessionID] = &auth.Session{
		ID:        sessionID,
		UserID:    userID,
		TokenHash: sec.HashToken(refreshToken),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}
