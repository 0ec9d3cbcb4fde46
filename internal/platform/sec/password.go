// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package sec provides the cryptographic primitives for Gatekeep.

It isolates security-sensitive code (Argon2id hashing, JWT signing, TOTP,
authenticated encryption, CSPRNG token generation) from the domain logic.
Services consume it via small interfaces so the primitives can be swapped
in tests.

# Review Process

This package is critical for security. Any changes to hashing parameters,
encodings, or comparison logic must be reviewed by the security team.
*/
package sec

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// # Argon2id Parameters

// Argon2Params captures the tunable cost parameters of Argon2id.
//
// Parameters are encoded into every produced hash, so verification keeps
// working after the defaults are raised — old hashes verify with their own
// stored parameters and are transparently rehashed on the next login.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params targets roughly 250ms per hash on reference hardware.
const (
	defaultMemoryKiB   = 64 * 1024
	defaultIterations  = 3
	defaultParallelism = 4

	saltLength = 16
	keyLength  = 32
)

// DefaultArgon2Params returns the current cost defaults.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   defaultMemoryKiB,
		Iterations:  defaultIterations,
		Parallelism: defaultParallelism,
	}
}

// # Password Hasher

// PasswordHasher hashes and verifies passwords using Argon2id.
//
// # Resource Model
//
// Argon2id is deliberately memory-hard. Hashing is funneled through a
// weighted semaphore sized to the CPU count so that a burst of logins cannot
// exhaust process memory with parallel 64MiB hash computations.
type PasswordHasher struct {
	params Argon2Params
	pool   *semaphore.Weighted
}

// NewPasswordHasher constructs a hasher with the given cost parameters.
// Zero-valued fields fall back to the current defaults.
func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	if params.MemoryKiB == 0 {
		params.MemoryKiB = defaultMemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = defaultIterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = defaultParallelism
	}
	return &PasswordHasher{
		params: params,
		pool:   semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

/*
Hash derives an Argon2id hash of the plain-text password.

Description: Output uses the PHC string format so the cost parameters travel
with the hash:

	$argon2id$v=19$m=65536,t=3,p=4$<b64 salt>$<b64 key>

Returns:
  - string: Encoded PHC hash
  - error: Entropy failures
*/
func (hasher *PasswordHasher) Hash(plainTextPassword string) (string, error) {

	// Fresh random salt per hash.
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("sec: failed to generate salt: %w", err)
	}

	key := hasher.derive(plainTextPassword, salt, hasher.params)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hasher.params.MemoryKiB,
		hasher.params.Iterations,
		hasher.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return encoded, nil
}

/*
Verify compares a plain-text password against an encoded PHC hash.

Description: The comparison is constant-time and the candidate key is always
derived with the parameters stored in the hash, not the current defaults, so
hashes produced under older cost settings remain verifiable.

Returns:
  - bool: true if the password matches
  - error: Malformed hash encodings
*/
func (hasher *PasswordHasher) Verify(plainTextPassword, encodedHash string) (bool, error) {
	params, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := hasher.derive(plainTextPassword, salt, params)

	// Constant-time equality to prevent timing side channels.
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// NeedsRehash reports whether the hash was produced with parameters weaker
// than the current configuration. Callers rehash on the next successful login.
func (hasher *PasswordHasher) NeedsRehash(encodedHash string) bool {
	params, _, _, err := decodeHash(encodedHash)
	if err != nil {
		return true
	}
	return params != hasher.params
}

// derive runs the Argon2id KDF inside the bounded worker pool.
func (hasher *PasswordHasher) derive(password string, salt []byte, params Argon2Params) []byte {
	// Acquire can only fail with a cancelled context; background never is.
	_ = hasher.pool.Acquire(contextBackground, 1)
	defer hasher.pool.Release(1)

	return argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, keyLength)
}

// decodeHash parses a PHC-formatted Argon2id string into its components.
func decodeHash(encodedHash string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, fmt.Errorf("sec: malformed argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("sec: malformed argon2id version: %w", err)
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("sec: unsupported argon2 version %d", version)
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.MemoryKiB, &params.Iterations, &params.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("sec: malformed argon2id parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("sec: malformed argon2id salt: %w", err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("sec: malformed argon2id key: %w", err)
	}

	return params, salt, key, nil
}
