package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	tokenHashVersion = "v1"
	iterations       = 60000
)

// NewToken returns a fresh bearer token suitable for handing to a
// client, encoded URL-safe.
func NewToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken derives a salted digest of a bearer token for storage. The
// plaintext token is never persisted.
func HashToken(token string) (string, error) {
	if len(token) < 16 {
		return "", errors.New("token must be at least 16 characters")
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	digest := deriveDigest(token, salt, iterations)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedDigest := base64.RawStdEncoding.EncodeToString(digest)

	return fmt.Sprintf("%s$%d$%s$%s", tokenHashVersion, iterations, encodedSalt, encodedDigest), nil
}

func VerifyToken(token, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 {
		return false
	}
	if parts[0] != tokenHashVersion {
		return false
	}

	iters, err := strconv.Atoi(parts[1])
	if err != nil || iters < 10000 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return false
	}

	expectedDigest, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(expectedDigest) != sha256.Size {
		return false
	}

	actualDigest := deriveDigest(token, salt, iters)
	return subtle.ConstantTimeCompare(actualDigest, expectedDigest) == 1
}

// TokenLookupKey is a fast, unsalted fingerprint used only to locate a
// candidate row; VerifyToken performs the real comparison.
func TokenLookupKey(token string) string {
	digest := sha256.Sum256([]byte(token))
	return base64.RawStdEncoding.EncodeToString(digest[:8])
}

func deriveDigest(token string, salt []byte, rounds int) []byte {
	digest := sha256.Sum256(append(salt, []byte(token)...))
	buf := digest[:]
	for i := 1; i < rounds; i++ {
		next := sha256.Sum256(append(buf, salt...))
		buf = next[:]
	}
	finalDigest := make([]byte, len(buf))
	copy(finalDigest, buf)
	return finalDigest
}
