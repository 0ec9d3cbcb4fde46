// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeep/internal/platform/middleware"
	requestutil "github.com/taibuivan/gatekeep/internal/platform/request"
	"github.com/taibuivan/gatekeep/internal/platform/respond"
	"github.com/taibuivan/gatekeep/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the identity lifecycle entry
// points (Registration, Login, Token rotation, 2FA, Password recovery). It is
// strictly a transport layer: status codes, headers, JSON in and out.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /register : Creates a new account.
//   - POST /login    : Phase 1 — password, may return pending_2fa_token.
//   - POST /verify-code : Phase 2 — second factor, returns tokens.
//   - POST /refresh  : Rotates the refresh token.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Get("/verify", handler.verifyEmail)
	router.Post("/login", handler.login)
	router.Post("/verify-code", handler.verifyCode)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/password-reset/request", handler.requestPasswordReset)
	router.Post("/password-reset/confirm", handler.confirmPasswordReset)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/change-password", handler.changePassword)
		r.Post("/logout-all", handler.logoutAll)
		r.Post("/2fa/enable", handler.enableTwoFactor)
		r.Post("/2fa/verify-setup", handler.verifyTwoFactorSetup)
		r.Post("/2fa/disable", handler.disableTwoFactor)
		r.Get("/2fa/status", handler.twoFactorStatus)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyCodeRequest struct {
	PendingToken string `json:"pending_2fa_token"`
	Code         string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type requestResetRequest struct {
	Email string `json:"email"`
}

type confirmResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	RefreshToken    string `json:"refresh_token"`
}

type twoFactorEnableRequest struct {
	Password string `json:"password"`
}

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

type twoFactorDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// tokenPairResponse renders a full session to the client.
func tokenPairResponse(session *LoginSession, accessTTL time.Duration) map[string]any {
	return map[string]any{
		FieldAccessToken:  session.AccessToken,
		FieldRefreshToken: session.RefreshToken,
		FieldTokenType:    "Bearer",
		FieldExpiresIn:    int64(accessTTL / time.Second),
		"user":            session.User,
	}
}

// # Registration & Verification

/*
Register handles the creation of a new user account.

POST /api/v1/auth/register

Description: Validates input, enforces the password policy, and persists a new
account. A verification email is dispatched out of band.

Request:
  - Body: registerRequest (Email, Username, Password)

Response:
  - 201: User: Created account profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: conflict_email: Email or username already registered
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, 3).
		MaxLen(FieldUsername, input.Username, 32).
		Required(FieldPassword, input.Password).
		Password(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Email:    input.Email,
		Username: input.Username,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
VerifyEmail confirms a user's email ownership.

GET /api/v1/auth/verify?token=…

Description: Consumes the verification token and marks the account verified.
Idempotent for already-verified accounts.

Response:
  - 200: Success: Email verified
  - 401: invalid_token: Missing, unknown, or expired token
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	token := request.URL.Query().Get(FieldToken)
	if token == "" {
		respond.Error(writer, request, validate.RequiredError(FieldToken, "is required"))
		return
	}

	if err := handler.authService.VerifyEmail(request.Context(), token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Email verified successfully",
	})
}

// # Authentication

/*
Login authenticates a user (phase 1).

POST /api/v1/auth/login

Description: Verifies credentials. Accounts without 2FA receive the token pair
directly; accounts with 2FA receive only a pending_2fa_token and must complete
phase 2 via /verify-code.

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: Token pair OR {pending_2fa_token}
  - 401: invalid_credentials / account_banned / account_not_verified
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
		IPAddress: request.RemoteAddr,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if result.PendingTwoFactorToken != "" {
		respond.OK(writer, map[string]string{
			FieldPendingToken: result.PendingTwoFactorToken,
		})
		return
	}

	respond.OK(writer, tokenPairResponse(result.Session, handler.authService.AccessTokenTTL()))
}

/*
VerifyCode completes a two-factor login (phase 2).

POST /api/v1/auth/verify-code

Description: Exchanges the pending_2fa_token plus a proof (emailed code, TOTP,
or backup code) for the full token pair.

Request:
  - Body: verifyCodeRequest (PendingToken, Code)

Response:
  - 200: Token pair
  - 401: invalid_token / two_factor_invalid
  - 423: two_factor_locked: Too many consecutive failures
*/
func (handler *Handler) verifyCode(writer http.ResponseWriter, request *http.Request) {
	var input verifyCodeRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldPendingToken, input.PendingToken)
	validator.Required(FieldCode, input.Code)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.VerifyTwoFactorCode(
		request.Context(),
		input.PendingToken,
		input.Code,
		request.UserAgent(),
		request.RemoteAddr,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, tokenPairResponse(session, handler.authService.AccessTokenTTL()))
}

// # Token Lifecycle

/*
Refresh rotates a refresh token for a brand-new pair.

POST /api/v1/auth/refresh

Description: The presented refresh token is revoked and replaced; a replay of
an already-rotated token revokes every session of the account.

Request:
  - Body: refreshRequest (RefreshToken)

Response:
  - 200: New token pair
  - 401: invalid_token / token_expired / token_reuse_detected
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.RefreshToken == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRefreshToken, "is required"))
		return
	}

	session, err := handler.authService.Refresh(
		request.Context(),
		input.RefreshToken,
		request.UserAgent(),
		request.RemoteAddr,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, tokenPairResponse(session, handler.authService.AccessTokenTTL()))
}

/*
Logout revokes the presented refresh token.

POST /api/v1/auth/logout

Description: Idempotent: unknown or already-revoked tokens still return 204.

Request:
  - Body: refreshRequest (RefreshToken)

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.RefreshToken != "" {
		if err := handler.authService.Logout(request.Context(), input.RefreshToken); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	respond.NoContent(writer)
}

/*
LogoutAll revokes every session of the authenticated user.

POST /api/v1/auth/logout-all

Response:
  - 204: No Content: All sessions terminated
  - 401: invalid_token: Authentication required
*/
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.LogoutAll(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Password Recovery

/*
RequestPasswordReset initiates the forgot-password flow.

POST /api/v1/auth/password-reset/request

Description: Always returns 204 regardless of whether the email is registered,
so accounts cannot be enumerated.

Request:
  - Body: requestResetRequest (Email)

Response:
  - 204: No Content: Always (when input is well-formed)
  - 400: ErrInvalidJSON: Malformed email
*/
func (handler *Handler) requestPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input requestResetRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ConfirmPasswordReset completes the forgot-password flow.

POST /api/v1/auth/password-reset/confirm

Description: Consumes the reset token, applies the new password, and revokes
every refresh session of the account.

Request:
  - Body: confirmResetRequest (Token, NewPassword)

Response:
  - 204: No Content: Password updated
  - 401: invalid_token: Unknown or expired token
*/
func (handler *Handler) confirmPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input confirmResetRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token).
		Required(FieldNewPassword, input.NewPassword).
		Password(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ConfirmPasswordReset(request.Context(), input.Token, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Description: Verifies the current password, applies the new one, and revokes
all sessions except the one behind the supplied refresh token.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword, RefreshToken)

Response:
  - 200: Success: Password changed
  - 401: invalid_credentials: Current password wrong
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		Password(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(
		request.Context(),
		userID,
		input.CurrentPassword,
		input.NewPassword,
		input.RefreshToken,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password changed successfully",
	})
}

// # Two-Factor Management

/*
EnableTwoFactor provisions a TOTP secret (step 1 of enrollment).

POST /api/v1/auth/2fa/enable

Request:
  - Body: twoFactorEnableRequest (Password)

Response:
  - 200: {secret, uri}: Shown exactly once
  - 401: invalid_credentials: Wrong password
*/
func (handler *Handler) enableTwoFactor(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input twoFactorEnableRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Password == "" {
		respond.Error(writer, request, validate.RequiredError(FieldPassword, "is required"))
		return
	}

	setup, err := handler.authService.EnableTwoFactor(request.Context(), userID, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		"secret": setup.Secret,
		"uri":    setup.URI,
	})
}

/*
VerifyTwoFactorSetup activates 2FA (step 2 of enrollment).

POST /api/v1/auth/2fa/verify-setup

Request:
  - Body: twoFactorCodeRequest (Code)

Response:
  - 200: {backup_codes}: Issued exactly once
  - 401: two_factor_invalid: Code does not match the pending secret
*/
func (handler *Handler) verifyTwoFactorSetup(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input twoFactorCodeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Code == "" {
		respond.Error(writer, request, validate.RequiredError(FieldCode, "is required"))
		return
	}

	backupCodes, err := handler.authService.ConfirmTwoFactorSetup(request.Context(), userID, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"backup_codes": backupCodes,
	})
}

/*
DisableTwoFactor removes the second factor from the account.

POST /api/v1/auth/2fa/disable

Request:
  - Body: twoFactorDisableRequest (Password, Code)

Response:
  - 200: Success: 2FA disabled
  - 401: invalid_credentials / two_factor_invalid
*/
func (handler *Handler) disableTwoFactor(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input twoFactorDisableRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldPassword, input.Password)
	validator.Required(FieldCode, input.Code)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.DisableTwoFactor(request.Context(), userID, input.Password, input.Code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Two-factor authentication disabled",
	})
}

/*
TwoFactorStatus reports the account's second-factor state.

GET /api/v1/auth/2fa/status

Response:
  - 200: {enabled, backup_codes_remaining}
*/
func (handler *Handler) twoFactorStatus(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	status, err := handler.authService.GetTwoFactorStatus(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"enabled":                status.Enabled,
		"backup_codes_remaining": status.BackupCodesRemaining,
	})
}
