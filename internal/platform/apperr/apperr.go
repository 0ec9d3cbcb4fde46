// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for Gatekeep.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing a stable machine-readable Kind and client-safe messages.
  - Taxonomy: Kinds are language-neutral snake_case identifiers shared with
    every other service that consumes the PDP.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Error Kinds

// Kind is a stable, machine-readable error identifier. Kinds are part of the
// public API contract: downstream services match on them, so existing values
// must never be renamed.
type Kind string

const (
	KindValidationFailed Kind = "validation_failed"

	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountBanned      Kind = "account_banned"
	KindAccountNotVerified Kind = "account_not_verified"

	KindInvalidToken      Kind = "invalid_token"
	KindTokenExpired      Kind = "token_expired"
	KindTokenReuse        Kind = "token_reuse_detected"
	KindTwoFactorRequired Kind = "two_factor_required"
	KindTwoFactorInvalid  Kind = "two_factor_invalid"
	KindTwoFactorLocked   Kind = "two_factor_locked"

	KindConflictEmail     Kind = "conflict_email"
	KindConflictSlug      Kind = "conflict_slug"
	KindConflictGroupName Kind = "conflict_group_name"
	KindAlreadyGranted    Kind = "permission_already_granted"

	KindNotFound               Kind = "not_found"
	KindNotAMember             Kind = "not_a_member"
	KindInsufficientRole       Kind = "insufficient_role"
	KindInsufficientPermission Kind = "insufficient_permission"

	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindInternal           Kind = "internal_error"
)

// AppError is the canonical error type for the Gatekeep API.
//
// It carries an HTTP status code, a machine-readable kind, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Kind is the stable machine-readable error identifier.
	Kind Kind `json:"kind"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"message"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for validation_failed responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// New constructs an [AppError] with an arbitrary kind and status.
func New(kind Kind, status int, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg, HTTPStatus: status}
}

// # Credential & Token Errors (401/403/423)

// InvalidCredentials creates the uniform 401 for login failures.
//
// The same kind and message are returned whether the email is unknown or the
// password is wrong, to prevent account enumeration.
func InvalidCredentials() *AppError {
	return New(KindInvalidCredentials, http.StatusUnauthorized, "Invalid login credentials")
}

// AccountBanned creates a 403 [AppError] for banned accounts.
func AccountBanned() *AppError {
	return New(KindAccountBanned, http.StatusForbidden, "Account is banned")
}

// AccountNotVerified creates a 403 [AppError] for unverified accounts.
func AccountNotVerified() *AppError {
	return New(KindAccountNotVerified, http.StatusForbidden, "Email address has not been verified")
}

// InvalidToken creates a 401 [AppError] for malformed, unknown, or revoked tokens.
func InvalidToken(msg string) *AppError {
	return New(KindInvalidToken, http.StatusUnauthorized, msg)
}

// TokenExpired creates a 401 [AppError] for expired tokens.
func TokenExpired() *AppError {
	return New(KindTokenExpired, http.StatusUnauthorized, "Token has expired")
}

// TokenReuseDetected creates the 401 returned when a rotated refresh token is
// presented a second time. All sessions of the affected user are revoked by
// the caller before this error surfaces.
func TokenReuseDetected() *AppError {
	return New(KindTokenReuse, http.StatusUnauthorized, "Refresh token reuse detected; all sessions revoked")
}

// TwoFactorRequired creates a 401 [AppError] signalling that password
// verification succeeded and a second factor is now expected.
func TwoFactorRequired() *AppError {
	return New(KindTwoFactorRequired, http.StatusUnauthorized, "Two-factor verification required")
}

// TwoFactorInvalid creates a 401 [AppError] for a rejected 2FA code.
func TwoFactorInvalid() *AppError {
	return New(KindTwoFactorInvalid, http.StatusUnauthorized, "Invalid verification code")
}

// TwoFactorLocked creates a 423 [AppError] after repeated 2FA failures.
//
// The message is intentionally identical to [TwoFactorInvalid] so that a
// locked account is indistinguishable from a wrong code at the HTTP level.
func TwoFactorLocked() *AppError {
	return New(KindTwoFactorLocked, http.StatusLocked, "Invalid verification code")
}

// # Authorization Errors (403)

// NotAMember creates the uniform 403 denial for non-members of an organization.
//
// Non-members receive this kind regardless of whether the requested permission
// exists, so the permission namespace cannot be probed.
func NotAMember() *AppError {
	return New(KindNotAMember, http.StatusForbidden, "Access denied")
}

// InsufficientRole creates a 403 [AppError] for org-role gated operations.
func InsufficientRole() *AppError {
	return New(KindInsufficientRole, http.StatusForbidden, "Access denied")
}

// InsufficientPermission creates a 403 [AppError] for permission-gated operations.
func InsufficientPermission() *AppError {
	return New(KindInsufficientPermission, http.StatusForbidden, "Access denied")
}

// # Resource Errors (404/409)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Group") // Returns "Group not found"
func NotFound(resource string) *AppError {
	return New(KindNotFound, http.StatusNotFound, resource+" not found")
}

// Conflict creates a 409 [AppError] with a specific conflict kind.
func Conflict(kind Kind, msg string) *AppError {
	return New(kind, http.StatusConflict, msg)
}

// # Validation (400)

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Kind:       KindValidationFailed,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// # Throttling & Server Errors (429/5xx)

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return New(KindRateLimited, http.StatusTooManyRequests,
		fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds))
}

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Kind:       KindInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for transient dependency failures.
func ServiceUnavailable(cause error) *AppError {
	return &AppError{
		Kind:       KindServiceUnavailable,
		Message:    "Service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// IsKind reports whether err carries the given [Kind].
func IsKind(err error, kind Kind) bool {
	ae := As(err)
	return ae != nil && ae.Kind == kind
}
