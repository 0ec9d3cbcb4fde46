// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// By embedding the user ID and informational roles directly inside the JWT,
// middleware can reconstruct the active principal WITHOUT querying the
// database on every single API request.
//
// Roles are informational only. Every authorization decision goes through
// the PDP; no caller may interpret Roles as an access grant.
type AuthClaims struct {
	jwt.RegisteredClaims

	UserID string   `json:"uid"`
	Roles  []string `json:"roles,omitempty"`
}

// # Token Service

// SigningMode selects the JWT algorithm family.
type SigningMode string

const (
	// SigningHS256 uses a shared symmetric secret.
	SigningHS256 SigningMode = "HS256"
	// SigningRS256 uses an RSA key pair loaded from PEM files.
	SigningRS256 SigningMode = "RS256"
)

// TokenService handles generation and verification of JWT access tokens.
// The algorithm is fixed at construction; tokens signed under any other
// method are rejected outright.
type TokenService struct {
	mode       SigningMode
	secret     []byte
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewHS256TokenService creates a TokenService with a shared secret.
func NewHS256TokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("sec: JWT secret must be at least 32 bytes")
	}
	return &TokenService{
		mode:   SigningHS256,
		secret: []byte(secret),
		issuer: issuer,
	}, nil
}

// NewRS256TokenService creates a TokenService reading RSA keys from the
// provided filesystem paths.
func NewRS256TokenService(privateKeyPath, publicKeyPath, issuer string) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	return &TokenService{
		mode:       SigningRS256,
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
	}, nil
}

// GenerateAccessToken creates a new signed JWT for a user.
//
// # Claims
//   - sub/uid: user ID
//   - jti: unique token ID (ties the access token to its refresh sibling)
//   - iat/exp: issue time and expiry
//   - roles: informational role hints, never authoritative
func (service *TokenService) GenerateAccessToken(userID, jti string, roles []string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		UserID: userID,
		Roles:  roles,
	}

	var token *jwt.Token
	var signed string
	var err error

	switch service.mode {
	case SigningHS256:
		token = jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err = token.SignedString(service.secret)
	case SigningRS256:
		token = jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		signed, err = token.SignedString(service.privateKey)
	default:
		return "", fmt.Errorf("sec: unknown signing mode %q", service.mode)
	}

	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signed, nil
}

// VerifyToken checks the signature, expiry, and issuer of a JWT string.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch service.mode {
		case SigningHS256:
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
			}
			return service.secret, nil
		case SigningRS256:
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
			}
			return service.publicKey, nil
		default:
			return nil, fmt.Errorf("sec: unknown signing mode %q", service.mode)
		}
	}, jwt.WithIssuer(service.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	return claims, nil
}

// ErrTokenExpired marks a structurally valid but expired token, so the HTTP
// layer can distinguish token_expired from invalid_token.
var ErrTokenExpired = errors.New("sec: token expired")
