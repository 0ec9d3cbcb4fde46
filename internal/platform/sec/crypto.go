// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// contextBackground is shared by internal semaphore acquisitions.
var contextBackground = context.Background()

// # Random Value Generation
//
// All random values in the platform come from crypto/rand. There is no
// math/rand fallback anywhere in this package.

// GenerateSecureToken returns a base64url-encoded random token of the given
// byte length. A length of 32 yields 256 bits of entropy, the platform
// standard for refresh, reset, and verification tokens.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateNumericCode returns a zero-padded random numeric code of the given
// number of digits, used for one-time email codes.
func GenerateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("sec: failed to generate code: %w", err)
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}

// GenerateBackupCodes returns count random recovery codes in the form
// XXXX-XXXX over an unambiguous alphabet (no 0/O, 1/I).
func GenerateBackupCodes(count int) ([]string, error) {
	const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := make([]byte, 8)
		for j := range raw {
			idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return nil, fmt.Errorf("sec: failed to generate backup code: %w", err)
			}
			raw[j] = alphabet[idx.Int64()]
		}
		codes = append(codes, string(raw[:4])+"-"+string(raw[4:]))
	}

	return codes, nil
}

// # Digests & Comparison

// HashToken returns the hex-encoded SHA-256 digest of a token.
//
// Refresh tokens and backup codes are stored only as digests; the plaintext
// exists exclusively in the client's hands.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// ConstantTimeEquals compares two strings without leaking their length-prefix
// match through timing.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// # Authenticated Encryption (TOTP secrets at rest)

// SecretBox encrypts and decrypts small secrets with AES-256-GCM.
//
// # Key Rotation
//
// The nonce is prepended to every ciphertext, so decryption needs only the
// key. To rotate, construct a new SecretBox with the replacement key and
// re-encrypt each secret as it is next used.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox builds a SecretBox from a hex-encoded 256-bit key.
func NewSecretBox(hexKey string) (*SecretBox, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("sec: two-factor key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("sec: two-factor key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to initialize cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to initialize GCM: %w", err)
	}

	return &SecretBox{aead: aead}, nil
}

// Encrypt seals the plaintext and returns base64(nonce || ciphertext).
func (box *SecretBox) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, box.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("sec: failed to generate nonce: %w", err)
	}

	sealed := box.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by [SecretBox.Encrypt].
func (box *SecretBox) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("sec: ciphertext is not valid base64: %w", err)
	}

	nonceSize := box.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("sec: ciphertext too short")
	}

	plaintext, err := box.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("sec: failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}
