package security

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"infrakt.dev/common"
)

// ScopeDeploy is currently the only deploy-key scope; the set is open
// for future additions.
const ScopeDeploy = "deploy"

// DeployKey is a scoped, hashed, revocable API credential. Only the
// SHA-256 hex of the plaintext is stored.
type DeployKey struct {
	Label     string    `json:"label"`
	KeyHash   string    `json:"key_hash"`
	CreatedAt time.Time `json:"created_at"`
	Scopes    []string  `json:"scopes"`
}

// HasScope reports whether the key carries the given scope.
func (k *DeployKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// DeployKeyStore persists deploy keys in a mode-600 JSON file.
type DeployKeyStore struct {
	path string
}

// NewDeployKeyStore returns a store backed by the given file.
func NewDeployKeyStore(path string) *DeployKeyStore {
	return &DeployKeyStore{path: path}
}

func (s *DeployKeyStore) load() ([]DeployKey, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deploy keys: %w", err)
	}
	var keys []DeployKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse deploy keys: %w", err)
	}
	return keys, nil
}

func (s *DeployKeyStore) save(keys []DeployKey) error {
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode deploy keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write deploy keys: %w", err)
	}
	return nil
}

// Create generates a new key with the given label and scopes. The
// plaintext is returned exactly once and never stored.
func (s *DeployKeyStore) Create(label string, scopes []string) (string, error) {
	if label == "" {
		return "", common.Validationf("deploy key label must not be empty")
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeDeploy}
	}

	keys, err := s.load()
	if err != nil {
		return "", err
	}
	for _, k := range keys {
		if k.Label == label {
			return "", common.Conflictf("deploy key %q already exists", label)
		}
	}

	plaintext, err := GenerateToken(32)
	if err != nil {
		return "", err
	}
	keys = append(keys, DeployKey{
		Label:     label,
		KeyHash:   HashKey(plaintext),
		CreatedAt: time.Now().UTC(),
		Scopes:    scopes,
	})
	if err := s.save(keys); err != nil {
		return "", err
	}
	return plaintext, nil
}

// List returns all stored keys (hashes only).
func (s *DeployKeyStore) List() ([]DeployKey, error) {
	return s.load()
}

// Revoke removes a key by label.
func (s *DeployKeyStore) Revoke(label string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}
	kept := keys[:0]
	found := false
	for _, k := range keys {
		if k.Label == label {
			found = true
			continue
		}
		kept = append(kept, k)
	}
	if !found {
		return common.NotFoundf("deploy key %q not found", label)
	}
	return s.save(kept)
}

// Verify checks a supplied plaintext against the stored hashes and
// returns the matching key, if any.
func (s *DeployKeyStore) Verify(plaintext string) (*DeployKey, bool) {
	keys, err := s.load()
	if err != nil {
		common.Logger.WithError(err).Warn("failed to load deploy keys")
		return nil, false
	}
	supplied := HashKey(plaintext)
	for i := range keys {
		if ConstantTimeEqual(keys[i].KeyHash, supplied) {
			return &keys[i], true
		}
	}
	return nil, false
}

// HashKey returns the SHA-256 hex digest used for deploy keys at rest.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
