// Package crypto provides token generation and staff secret hashing.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// SecretPrefix marks a secret stored in argon2id form.
const SecretPrefix = "argon2id$"

var ErrInvalidSecretHash = errors.New("crypto: invalid secret hash")

// GenerateToken generates a random token string (32 bytes, hex-like).
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("crypto: generate token: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}

// HashToken hashes a raw token string with SHA-256.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h[:])
}

// HashPassword hashes a password using Argon2id.
func HashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
}

// HashSecret returns "argon2id$<salt>$<hash>" for storing a staff secret in
// the config file.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}
	enc := base64.RawStdEncoding
	return SecretPrefix + enc.EncodeToString(salt) + "$" + enc.EncodeToString(HashPassword(secret, salt)), nil
}

// VerifySecret reports whether candidate matches stored. stored is either a
// plain secret or a HashSecret result. An empty stored secret never matches.
func VerifySecret(stored, candidate string) (bool, error) {
	if stored == "" {
		return false, nil
	}
	if !strings.HasPrefix(stored, SecretPrefix) {
		return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1, nil
	}

	saltB64, hashB64, ok := strings.Cut(strings.TrimPrefix(stored, SecretPrefix), "$")
	if !ok {
		return false, ErrInvalidSecretHash
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(saltB64)
	if err != nil {
		return false, fmt.Errorf("%w: salt: %v", ErrInvalidSecretHash, err)
	}
	want, err := enc.DecodeString(hashB64)
	if err != nil {
		return false, fmt.Errorf("%w: hash: %v", ErrInvalidSecretHash, err)
	}
	return subtle.ConstantTimeCompare(want, HashPassword(candidate, salt)) == 1, nil
}
