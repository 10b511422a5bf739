package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateToken returns a URL-safe random token from n random bytes.
func GenerateToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// LoadOrCreatePlatformKey reads the platform key file, generating a
// 32-byte URL-safe token with mode 600 on first startup.
func LoadOrCreatePlatformKey(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("platform key at %s is empty", path)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read platform key: %w", err)
	}

	key, err := GenerateToken(32)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write platform key: %w", err)
	}
	return key, nil
}

// ConstantTimeEqual compares two strings in constant time over their
// SHA-256 digests, so length differences leak nothing either.
func ConstantTimeEqual(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
