package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"infrakt.dev/common"
)

// EnvStore keeps per-app environment variables encrypted at rest in
// <dir>/<app_id>.json. Each value is an individual ciphertext so a
// listing can show names without decrypting everything.
type EnvStore struct {
	dir string
	box *Box
}

// NewEnvStore returns an env store rooted at dir.
func NewEnvStore(dir string, box *Box) *EnvStore {
	return &EnvStore{dir: dir, box: box}
}

func (s *EnvStore) file(appID uint) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", appID))
}

func (s *EnvStore) load(appID uint) (map[string]string, error) {
	data, err := os.ReadFile(s.file(appID))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to read env file")
	}
	out := map[string]string{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, common.Internalf(err, "failed to parse env file")
	}
	return out, nil
}

func (s *EnvStore) save(appID uint, values map[string]string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return common.Internalf(err, "failed to create env directory")
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return common.Internalf(err, "failed to encode env file")
	}
	if err := os.WriteFile(s.file(appID), data, 0o600); err != nil {
		return common.Internalf(err, "failed to write env file")
	}
	return nil
}

// Set stores one variable, encrypting the value.
func (s *EnvStore) Set(appID uint, key, value string) error {
	if !validEnvName(key) {
		return common.Validationf("invalid environment variable name %q", key)
	}
	values, err := s.load(appID)
	if err != nil {
		return err
	}
	enc, err := s.box.EncryptString(value)
	if err != nil {
		return common.Internalf(err, "failed to encrypt value")
	}
	values[key] = enc
	return s.save(appID, values)
}

// Unset removes one variable; removing a missing one is not an error.
func (s *EnvStore) Unset(appID uint, key string) error {
	values, err := s.load(appID)
	if err != nil {
		return err
	}
	delete(values, key)
	return s.save(appID, values)
}

// Names returns the variable names without decrypting values.
func (s *EnvStore) Names(appID uint) ([]string, error) {
	values, err := s.load(appID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// All decrypts and returns every variable for an app.
func (s *EnvStore) All(appID uint) (map[string]string, error) {
	values, err := s.load(appID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for k, enc := range values {
		plain, err := s.box.DecryptString(enc)
		if err != nil {
			return nil, common.Internalf(err, "failed to decrypt %s", k)
		}
		out[k] = plain
	}
	return out, nil
}

// RenderDotenv produces the .env file content uploaded next to the
// compose manifest. Keys are emitted in sorted order so the render is
// deterministic.
func (s *EnvStore) RenderDotenv(appID uint) (string, error) {
	values, err := s.All(appID)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, k := range names {
		fmt.Fprintf(&b, "%s=%s\n", k, values[k])
	}
	return b.String(), nil
}

// Delete removes the whole env file for an app.
func (s *EnvStore) Delete(appID uint) error {
	if err := os.Remove(s.file(appID)); err != nil && !os.IsNotExist(err) {
		return common.Internalf(err, "failed to delete env file")
	}
	return nil
}

func validEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_',
			r >= 'A' && r <= 'Z',
			r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
