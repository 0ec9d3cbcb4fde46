// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// # Time-Based One-Time Passwords

const (
	// totpSecretSize is the secret length in bytes (160 bits per RFC 4226).
	totpSecretSize = 20

	// totpSkew is the accepted clock drift in 30s steps on either side.
	totpSkew = 1
)

// TOTPKey is the result of provisioning a new authenticator secret.
type TOTPKey struct {
	// Secret is the base32-encoded shared secret. It is shown to the user
	// once and stored encrypted immediately afterwards.
	Secret string

	// URI is the otpauth:// provisioning URI rendered as a QR code client-side.
	URI string
}

// GenerateTOTPKey provisions a fresh 160-bit TOTP secret for the account.
func GenerateTOTPKey(accountEmail string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Gatekeep",
		AccountName: accountEmail,
		SecretSize:  totpSecretSize,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("sec: failed to generate TOTP key: %w", err)
	}

	return &TOTPKey{
		Secret: key.Secret(),
		URI:    key.URL(),
	}, nil
}

// ValidateTOTP checks a 6-digit code against the shared secret, tolerating
// ±1 time step (±30s) of clock drift between server and authenticator.
func ValidateTOTP(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
