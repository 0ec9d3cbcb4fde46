// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the user identity and session management layer.

It defines the core domain entities (User, Session) and logic for
authentication, credential lifecycle, refresh-token rotation, and the
second-factor flows.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package auth

import "time"

// # Account Status

// UserStatus models the account lifecycle ladder.
type UserStatus string

const (
	// StatusActive is a normal, usable account.
	StatusActive UserStatus = "active"
	// StatusTempBanned is a temporary suspension; BanExpiresAt is set.
	StatusTempBanned UserStatus = "temp_banned"
	// StatusPermBanned is a permanent suspension.
	StatusPermBanned UserStatus = "perm_banned"
	// StatusDeleted marks a soft-deleted account.
	StatusDeleted UserStatus = "deleted"
)

// # Domain Entities

// User represents a registered principal of the Gatekeep platform.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // Explicitly omitted from JSON for security.
	IsVerified   bool       `json:"is_verified"`
	Status       UserStatus `json:"status"`
	BanExpiresAt *time.Time `json:"ban_expires_at,omitempty"`

	// Two-factor state. The secret is AES-256-GCM encrypted at rest; backup
	// codes are stored only as SHA-256 digests.
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
	TwoFactorSecret  string   `json:"-"`
	BackupCodeHashes []string `json:"-"`

	FailedLogins int        `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

// IsBanned reports whether the account is currently suspended.
//
// A temporary ban whose expiry has passed no longer counts as banned; the
// status row is healed lazily on the next successful login.
func (u *User) IsBanned(now time.Time) bool {
	switch u.Status {
	case StatusPermBanned:
		return true
	case StatusTempBanned:
		return u.BanExpiresAt != nil && u.BanExpiresAt.After(now)
	default:
		return false
	}
}

// Session represents an active refresh-token session.
//
// The ID doubles as the JWT `jti` claim of the paired access token, tying
// each access token to the refresh session that produced it.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"` // SHA-256 of the refresh token. Omitted for security.
	UserAgent string     `json:"user_agent"`
	IPAddress string     `json:"ip_address"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsRevoked bool       `json:"is_revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// # Two-Factor Purposes

// TwoFactorPurpose tags one-time codes by the flow that issued them.
type TwoFactorPurpose string

const (
	PurposeLogin  TwoFactorPurpose = "login"
	PurposeReset  TwoFactorPurpose = "reset"
	PurposeVerify TwoFactorPurpose = "verify"
)

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldEmail           = "email"
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldNewPassword     = "new_password"
	FieldCurrentPassword = "current_password"
	FieldToken           = "token"
	FieldRefreshToken    = "refresh_token"
	FieldPendingToken    = "pending_2fa_token"
	FieldCode            = "code"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldMessage         = "message"
)
