package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := OpenBox(filepath.Join(t.TempDir(), "master.key"))
	require.NoError(t, err)

	for _, plaintext := range []string{"", "hunter2", "pässwörd with ütf8", "multi\nline\nvalue"} {
		sealed, err := box.EncryptString(plaintext)
		require.NoError(t, err)
		opened, err := box.DecryptString(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestSecretBoxRejectsForeignCiphertext(t *testing.T) {
	dir := t.TempDir()
	a, err := OpenBox(filepath.Join(dir, "a.key"))
	require.NoError(t, err)
	b, err := OpenBox(filepath.Join(dir, "b.key"))
	require.NoError(t, err)

	sealed, err := a.EncryptString("secret")
	require.NoError(t, err)

	_, err = b.DecryptString(sealed)
	assert.Error(t, err, "a different master key must fail, never silently succeed")

	_, err = a.DecryptString("not-base64!!!")
	assert.Error(t, err)

	_, err = a.DecryptString("")
	assert.Error(t, err)
}

func TestMasterKeyPersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")
	first, err := LoadOrCreateMasterKey(path)
	require.NoError(t, err)
	require.Len(t, first, 32)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrCreateMasterKey(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCorruptMasterKeyFailsLoudly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	_, err := LoadOrCreateMasterKey(path)
	assert.ErrorContains(t, err, "corrupt")
}

func TestEnvStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	box, err := OpenBox(filepath.Join(dir, "master.key"))
	require.NoError(t, err)
	envs := NewEnvStore(filepath.Join(dir, "envs"), box)

	require.NoError(t, envs.Set(7, "DB_URL", "postgres://u:p@h/db"))
	require.NoError(t, envs.Set(7, "API_KEY", "hunter2"))

	// Values on disk are ciphertext.
	raw, err := os.ReadFile(filepath.Join(dir, "envs", "7.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")

	names, err := envs.Names(7)
	require.NoError(t, err)
	assert.Equal(t, []string{"API_KEY", "DB_URL"}, names)

	dotenv, err := envs.RenderDotenv(7)
	require.NoError(t, err)
	assert.Equal(t, "API_KEY=hunter2\nDB_URL=postgres://u:p@h/db\n", dotenv)

	require.NoError(t, envs.Unset(7, "API_KEY"))
	values, err := envs.All(7)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DB_URL": "postgres://u:p@h/db"}, values)

	require.NoError(t, envs.Delete(7))
	names, err = envs.Names(7)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestEnvStoreRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	box, err := OpenBox(filepath.Join(dir, "master.key"))
	require.NoError(t, err)
	envs := NewEnvStore(filepath.Join(dir, "envs"), box)

	for _, name := range []string{"", "1LEADING", "has-dash", "has space", "dot.ted"} {
		assert.Error(t, envs.Set(7, name, "x"), name)
	}
}

func TestDeployKeyVerifyAndRevoke(t *testing.T) {
	s := NewDeployKeyStore(filepath.Join(t.TempDir(), "deploy_keys.json"))

	plaintext, err := s.Create("ci", nil)
	require.NoError(t, err)

	key, ok := s.Verify(plaintext)
	require.True(t, ok)
	assert.Equal(t, "ci", key.Label)
	assert.True(t, key.HasScope(ScopeDeploy))

	_, ok = s.Verify("not-the-key")
	assert.False(t, ok)

	_, err = s.Create("ci", nil)
	assert.Error(t, err, "duplicate label")

	require.NoError(t, s.Revoke("ci"))
	_, ok = s.Verify(plaintext)
	assert.False(t, ok, "revoked keys must stop verifying")

	assert.Error(t, s.Revoke("ci"))
}

func TestSignatureVerification(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)

	header := SignBody(body, "mysecret")
	assert.True(t, VerifySignature(body, "mysecret", header))
	assert.False(t, VerifySignature(body, "wrong", header))
	assert.False(t, VerifySignature([]byte("tampered"), "mysecret", header))
	assert.False(t, VerifySignature(body, "mysecret", ""))
	assert.False(t, VerifySignature(body, "mysecret", "sha256=zz"))
}

func TestConstantTimeEqualHandlesLengths(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abc", "abc"))
	assert.False(t, ConstantTimeEqual("abc", "abcd"))
	assert.False(t, ConstantTimeEqual("", "abc"))
}

func TestGenerateSSHKeyPair(t *testing.T) {
	dir := t.TempDir()
	material, err := GenerateSSHKey(dir, "deploy", "infrakt")
	require.NoError(t, err)

	assert.Equal(t, "ssh-ed25519", material.Algorithm)
	assert.Contains(t, material.Fingerprint, "SHA256:")
	assert.Contains(t, material.PublicKey, "ssh-ed25519 ")
	assert.Contains(t, material.PublicKey, " infrakt")

	info, err := os.Stat(material.PrivateKeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	info, err = os.Stat(material.PrivateKeyPath + ".pub")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	_, err = GenerateSSHKey(dir, "bad name", "")
	assert.Error(t, err)

	require.NoError(t, RemoveSSHKey(material.PrivateKeyPath))
	require.NoError(t, RemoveSSHKey(material.PrivateKeyPath), "idempotent")
}
