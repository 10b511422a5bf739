// Package core wires the control plane together: one Core value owns
// the store, the crypto material, the broadcaster and the deploy
// worker, and exposes the operations the API and CLI share.
package core

import (
	"fmt"
	"os"
	"time"

	"infrakt.dev/broadcast"
	"infrakt.dev/common"
	"infrakt.dev/config"
	"infrakt.dev/deploy"
	"infrakt.dev/remote"
	"infrakt.dev/security"
	"infrakt.dev/store"
	"infrakt.dev/webhook"
)

// Dialer opens a Runner for a server. Tests substitute a fake.
type Dialer func(server *store.Server) (remote.Runner, error)

// Core is the single shared state of the control plane. Lifecycle is
// the whole process.
type Core struct {
	Config      *config.Config
	Store       *store.Store
	Box         *security.Box
	Envs        *security.EnvStore
	Broadcaster *broadcast.Broadcaster
	Dispatcher  *webhook.Dispatcher
	DeployKeys  *security.DeployKeyStore
	PlatformKey string
	Worker      *deploy.Worker

	Dial Dialer
}

// New builds a Core from configuration, creating the home directory
// and key material on first run.
func New(cfg *config.Config) (*Core, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	box, err := security.OpenBox(cfg.MasterKeyPath())
	if err != nil {
		return nil, err
	}

	platformKey, err := security.LoadOrCreatePlatformKey(cfg.APIKeyPath())
	if err != nil {
		return nil, err
	}

	broadcaster := broadcast.New()
	dispatcher := webhook.NewDispatcher(st)

	c := &Core{
		Config:      cfg,
		Store:       st,
		Box:         box,
		Envs:        security.NewEnvStore(cfg.EnvsDir(), box),
		Broadcaster: broadcaster,
		Dispatcher:  dispatcher,
		DeployKeys:  security.NewDeployKeyStore(cfg.DeployKeysPath()),
		PlatformKey: platformKey,
		Worker: &deploy.Worker{
			Store:       st,
			Broadcaster: broadcaster,
			Dispatcher:  dispatcher,
			Coordinator: deploy.NewCoordinator(),
		},
	}
	c.Dial = c.dialSSH
	return c, nil
}

func (c *Core) dialSSH(server *store.Server) (remote.Runner, error) {
	return remote.Dial(remote.Config{
		Host:    server.Host,
		Port:    server.Port,
		User:    server.User,
		KeyPath: server.KeyPath,
		Timeout: 15 * time.Second,
	})
}

// RunnerFor opens a connection to the named server.
func (c *Core) RunnerFor(serverName string) (remote.Runner, *store.Server, error) {
	server, err := c.Store.ServerByName(serverName)
	if err != nil {
		return nil, nil, err
	}
	runner, err := c.Dial(server)
	if err != nil {
		return nil, server, common.Remotef(err, "cannot reach server %q", serverName)
	}
	return runner, server, nil
}

// CloseRunner releases a runner obtained from RunnerFor.
func CloseRunner(runner remote.Runner) {
	if closer, ok := runner.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			common.Logger.WithError(err).Debug("failed to close SSH connection")
		}
	}
}
