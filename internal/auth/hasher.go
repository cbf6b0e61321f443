// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"runtime"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
)

// PBKDF2 parameters.
const (
	PBKDF2Iterations = 100_000
	PBKDF2SaltLength = 128 // bytes
	PBKDF2KeyLength  = 256 // bytes
)

// PasswordHasher derives and verifies salted password hashes.
type PasswordHasher interface {
	// Hash derives a credential from password using a fresh random salt.
	Hash(ctx context.Context, password string) (Credential, error)

	// Verify re-derives password with salt and compares it to hash in
	// constant time. Returns (false, nil) on mismatch.
	Verify(ctx context.Context, password string, hash, salt []byte) (bool, error)
}

// PBKDF2Hasher implements PasswordHasher with PBKDF2-HMAC-SHA-256.
//
// Derivations run on their own goroutine and are bounded by a weighted
// semaphore, so a burst of logins cannot occupy every CPU. A cancelled
// context returns immediately; the in-flight derivation still finishes
// before its slot is released.
type PBKDF2Hasher struct {
	iterations int
	slots      *semaphore.Weighted
}

// HasherOption configures a PBKDF2Hasher.
type HasherOption func(*PBKDF2Hasher)

// WithIterations overrides the iteration count. Hashes derived with a
// different count do not verify against each other.
func WithIterations(n int) HasherOption {
	return func(h *PBKDF2Hasher) {
		if n > 0 {
			h.iterations = n
		}
	}
}

// WithMaxConcurrent bounds the number of derivations running at once.
// Zero or negative uses GOMAXPROCS.
func WithMaxConcurrent(n int) HasherOption {
	return func(h *PBKDF2Hasher) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		h.slots = semaphore.NewWeighted(int64(n))
	}
}

// NewPBKDF2Hasher creates a PBKDF2Hasher with the production parameters.
func NewPBKDF2Hasher(opts ...HasherOption) *PBKDF2Hasher {
	h := &PBKDF2Hasher{
		iterations: PBKDF2Iterations,
		slots:      semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash derives a credential from password. The empty string is a valid
// password; rejecting it is a caller policy.
func (h *PBKDF2Hasher) Hash(ctx context.Context, password string) (Credential, error) {
	salt := make([]byte, PBKDF2SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key, err := h.derive(ctx, password, salt)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Hash: key, Salt: salt}, nil
}

// Verify checks password against a stored hash and salt.
func (h *PBKDF2Hasher) Verify(ctx context.Context, password string, hash, salt []byte) (bool, error) {
	if len(hash) == 0 {
		return false, oops.Code(CodeInvalidInput).Errorf("stored hash cannot be empty")
	}
	if len(salt) == 0 {
		return false, oops.Code(CodeInvalidInput).Errorf("stored salt cannot be empty")
	}

	key, err := h.deriveLen(ctx, password, salt, len(hash))
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(key, hash) == 1, nil
}

func (h *PBKDF2Hasher) derive(ctx context.Context, password string, salt []byte) ([]byte, error) {
	return h.deriveLen(ctx, password, salt, PBKDF2KeyLength)
}

func (h *PBKDF2Hasher) deriveLen(ctx context.Context, password string, salt []byte, keyLen int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("AUTH_HASH_CANCELLED").With("operation", "check context").Wrap(err)
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return nil, oops.Code("AUTH_HASH_CANCELLED").With("operation", "acquire hash slot").Wrap(err)
	}

	done := make(chan []byte, 1)
	go func() {
		defer h.slots.Release(1)
		done <- pbkdf2.Key([]byte(password), salt, h.iterations, keyLen, sha256.New)
	}()

	select {
	case key := <-done:
		return key, nil
	case <-ctx.Done():
		return nil, oops.Code("AUTH_HASH_CANCELLED").With("operation", "derive key").Wrap(ctx.Err())
	}
}

var _ PasswordHasher = (*PBKDF2Hasher)(nil)
