package core

import (
	"context"

	"infrakt.dev/backup"
	"infrakt.dev/common"
	"infrakt.dev/security"
	"infrakt.dev/store"
)

// SetSourceIntegration stores the source-control token encrypted at
// rest.
func (c *Core) SetSourceIntegration(username, token string) error {
	if token == "" {
		return common.Validationf("integration token is required")
	}
	encrypted, err := c.Box.EncryptString(token)
	if err != nil {
		return common.Internalf(err, "failed to encrypt token")
	}
	return c.Store.SetSourceIntegration(&store.SourceIntegration{
		Username:       username,
		EncryptedToken: encrypted,
	})
}

// SetObjectStore verifies the S3-compatible target and stores it with
// the secret key encrypted.
func (c *Core) SetObjectStore(ctx context.Context, cfg *store.ObjectStoreConfig, secretKey string) error {
	if err := backup.VerifyObjectStore(ctx, cfg, secretKey); err != nil {
		return err
	}
	encrypted, err := c.Box.EncryptString(secretKey)
	if err != nil {
		return common.Internalf(err, "failed to encrypt secret key")
	}
	cfg.EncryptedSecretKey = encrypted
	return c.Store.SetObjectStore(cfg)
}

// CreateSSHKey generates a managed key pair and records it.
func (c *Core) CreateSSHKey(name, comment string) (*security.KeyMaterial, error) {
	material, err := security.GenerateSSHKey(c.Config.KeysDir(), name, comment)
	if err != nil {
		return nil, common.Validationf("%v", err)
	}
	key := &store.SSHKey{
		Name:           material.Name,
		Fingerprint:    material.Fingerprint,
		Algorithm:      material.Algorithm,
		PublicKey:      material.PublicKey,
		PrivateKeyPath: material.PrivateKeyPath,
	}
	if err := c.Store.CreateSSHKey(key); err != nil {
		if rerr := security.RemoveSSHKey(material.PrivateKeyPath); rerr != nil {
			common.Logger.WithError(rerr).Warn("failed to clean up generated key pair")
		}
		return nil, err
	}
	return material, nil
}

// RemoveSSHKey deletes a managed key pair and its record.
func (c *Core) RemoveSSHKey(name string) error {
	key, err := c.Store.SSHKeyByName(name)
	if err != nil {
		return err
	}
	if err := c.Store.DeleteSSHKey(key.ID); err != nil {
		return err
	}
	return security.RemoveSSHKey(key.PrivateKeyPath)
}
