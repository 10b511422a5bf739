package core

import (
	"infrakt.dev/store"
)

// SetEnv stores one encrypted variable for an app.
func (c *Core) SetEnv(serverName, appName, key, value string) error {
	app, err := c.findApp(serverName, appName)
	if err != nil {
		return err
	}
	return c.Envs.Set(app.ID, key, value)
}

// UnsetEnv removes one variable.
func (c *Core) UnsetEnv(serverName, appName, key string) error {
	app, err := c.findApp(serverName, appName)
	if err != nil {
		return err
	}
	return c.Envs.Unset(app.ID, key)
}

// EnvNames lists variable names without decrypting values.
func (c *Core) EnvNames(serverName, appName string) ([]string, error) {
	app, err := c.findApp(serverName, appName)
	if err != nil {
		return nil, err
	}
	return c.Envs.Names(app.ID)
}

// EnvValues decrypts and returns all variables for an app.
func (c *Core) EnvValues(serverName, appName string) (map[string]string, error) {
	app, err := c.findApp(serverName, appName)
	if err != nil {
		return nil, err
	}
	return c.Envs.All(app.ID)
}

func (c *Core) findApp(serverName, appName string) (*store.App, error) {
	server, err := c.Store.ServerByName(serverName)
	if err != nil {
		return nil, err
	}
	return c.Store.AppByName(server.ID, appName)
}
