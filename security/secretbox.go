// Package security implements the credential and secret handling of
// the control plane: the symmetric secret box for values at rest, the
// platform key, scoped deploy keys, webhook signatures, and managed
// SSH key pairs.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Box encrypts and decrypts strings with AES-256-GCM under the master
// key. Ciphertexts carry the nonce prepended and are base64url
// encoded for storage in JSON files and database columns.
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a secret box from a 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != 32 {
		return nil, errors.New("master key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise GCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// LoadOrCreateMasterKey reads the master key file, generating it with
// mode 600 on first use.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		if len(data) != 32 {
			return nil, fmt.Errorf("master key at %s is corrupt (expected 32 bytes, got %d)", path, len(data))
		}
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write master key: %w", err)
	}
	return key, nil
}

// OpenBox loads (or lazily creates) the master key at path and returns
// a ready secret box.
func OpenBox(path string) (*Box, error) {
	key, err := LoadOrCreateMasterKey(path)
	if err != nil {
		return nil, err
	}
	return NewBox(key)
}

// EncryptString seals a plaintext string.
func (b *Box) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a ciphertext produced by EncryptString. A
// tampered or foreign ciphertext fails, never silently succeeds.
func (b *Box) DecryptString(ciphertext string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	ns := b.aead.NonceSize()
	if len(data) < ns {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := b.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", errors.New("decryption failed: wrong key or corrupt ciphertext")
	}
	return string(plaintext), nil
}
