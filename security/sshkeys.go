package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyMaterial describes a freshly generated SSH key pair.
type KeyMaterial struct {
	Name           string
	Algorithm      string
	Fingerprint    string
	PublicKey      string
	PrivateKeyPath string
}

// GenerateSSHKey creates an ed25519 key pair under dir. The private
// key is written with mode 600, the public key with 644. The
// fingerprint is the SHA-256 of the public key material with the
// "SHA256:" prefix.
func GenerateSSHKey(dir, name, comment string) (*KeyMaterial, error) {
	if strings.ContainsAny(name, "/\\ ") || name == "" {
		return nil, fmt.Errorf("invalid key name %q", name)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privatePath := filepath.Join(dir, name)
	if err := os.WriteFile(privatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key: %w", err)
	}
	publicLine := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		publicLine += " " + comment
	}
	if err := os.WriteFile(privatePath+".pub", []byte(publicLine+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	return &KeyMaterial{
		Name:           name,
		Algorithm:      sshPub.Type(),
		Fingerprint:    ssh.FingerprintSHA256(sshPub),
		PublicKey:      publicLine,
		PrivateKeyPath: privatePath,
	}, nil
}

// RemoveSSHKey deletes both halves of a managed key pair. Missing
// files are ignored.
func RemoveSSHKey(privateKeyPath string) error {
	if err := os.Remove(privateKeyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove private key: %w", err)
	}
	if err := os.Remove(privateKeyPath + ".pub"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove public key: %w", err)
	}
	return nil
}
