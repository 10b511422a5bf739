package core

import (
	"infrakt.dev/backup"
	"infrakt.dev/common"
	"infrakt.dev/compose"
	"infrakt.dev/security"
	"infrakt.dev/store"
)

// DatabaseCredentials is returned once at creation time; the values
// live on encrypted in the env store afterwards.
type DatabaseCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	Port     int    `json:"port"`
}

// CreateDatabase declares a managed database app with generated
// credentials and deploys it.
func (c *Core) CreateDatabase(serverName, name, engineName string) (*store.Deployment, *DatabaseCredentials, error) {
	engine, err := compose.ParseEngine(engineName)
	if err != nil {
		return nil, nil, err
	}
	defaults, err := compose.DefaultsFor(engine)
	if err != nil {
		return nil, nil, err
	}

	app := &store.App{
		Name:   name,
		Kind:   store.KindDatabase,
		Engine: string(engine),
		Port:   defaults.Port,
	}
	if err := c.CreateApp(serverName, app); err != nil {
		return nil, nil, err
	}

	password, err := security.GenerateToken(24)
	if err != nil {
		return nil, nil, common.Internalf(err, "failed to generate database password")
	}
	creds := &DatabaseCredentials{Username: name, Password: password, Database: name, Port: defaults.Port}

	for key, value := range credentialEnv(engine, creds) {
		if err := c.Envs.Set(app.ID, key, value); err != nil {
			return nil, nil, err
		}
	}

	d, err := c.DeployApp(serverName, name, "")
	if err != nil {
		return nil, nil, err
	}
	return d, creds, nil
}

func credentialEnv(engine compose.Engine, creds *DatabaseCredentials) map[string]string {
	switch engine {
	case compose.EnginePostgres:
		return map[string]string{
			"POSTGRES_USER":     creds.Username,
			"POSTGRES_PASSWORD": creds.Password,
			"POSTGRES_DB":       creds.Database,
		}
	case compose.EngineMySQL:
		return map[string]string{
			"MYSQL_ROOT_PASSWORD": creds.Password,
			"MYSQL_DATABASE":      creds.Database,
			"MYSQL_USER":          creds.Username,
			"MYSQL_PASSWORD":      creds.Password,
		}
	case compose.EngineMongo:
		return map[string]string{
			"MONGO_INITDB_ROOT_USERNAME": creds.Username,
			"MONGO_INITDB_ROOT_PASSWORD": creds.Password,
		}
	default:
		return map[string]string{}
	}
}

func (c *Core) databaseApp(serverName, appName string) (*store.App, compose.Engine, error) {
	app, err := c.findApp(serverName, appName)
	if err != nil {
		return nil, "", err
	}
	if !app.IsDatabase() {
		return nil, "", common.Validationf("app %q is not a managed database", appName)
	}
	engine, err := compose.ParseEngine(app.Engine)
	if err != nil {
		return nil, "", err
	}
	return app, engine, nil
}

// BackupDatabase dumps a database into the host backup directory.
func (c *Core) BackupDatabase(serverName, appName string) (string, error) {
	_, engine, err := c.databaseApp(serverName, appName)
	if err != nil {
		return "", err
	}
	runner, _, err := c.RunnerFor(serverName)
	if err != nil {
		return "", err
	}
	defer CloseRunner(runner)
	return backup.Dump(runner, appName, engine)
}

// RestoreDatabase loads a dump back into a database.
func (c *Core) RestoreDatabase(serverName, appName, filename string) error {
	_, engine, err := c.databaseApp(serverName, appName)
	if err != nil {
		return err
	}
	runner, _, err := c.RunnerFor(serverName)
	if err != nil {
		return err
	}
	defer CloseRunner(runner)
	return backup.Restore(runner, appName, engine, filename)
}

// ListBackups lists the dumps present on the host for a database.
func (c *Core) ListBackups(serverName, appName string) ([]string, error) {
	if _, _, err := c.databaseApp(serverName, appName); err != nil {
		return nil, err
	}
	runner, _, err := c.RunnerFor(serverName)
	if err != nil {
		return nil, err
	}
	defer CloseRunner(runner)
	return backup.List(runner, appName)
}

// ScheduleBackups installs (or replaces) the cron-driven backup for a
// database, wiring in object-store replication when configured.
func (c *Core) ScheduleBackups(serverName, appName, cronExpr string, retentionDays int) error {
	_, engine, err := c.databaseApp(serverName, appName)
	if err != nil {
		return err
	}
	objectStore, secretKey := c.objectStoreWithSecret()

	runner, _, err := c.RunnerFor(serverName)
	if err != nil {
		return err
	}
	defer CloseRunner(runner)
	return backup.InstallCron(runner, appName, engine,
		backup.Schedule{Expression: cronExpr, RetentionDays: retentionDays}, objectStore, secretKey)
}

// UnscheduleBackups removes the cron-driven backup for a database.
func (c *Core) UnscheduleBackups(serverName, appName string) error {
	runner, _, err := c.RunnerFor(serverName)
	if err != nil {
		return err
	}
	defer CloseRunner(runner)
	return backup.RemoveCron(runner, appName)
}

// RemoteBackups lists the replicated dumps in the object store.
func (c *Core) RemoteBackups(serverName, appName string) ([]backup.RemoteObject, error) {
	objectStore, secretKey := c.objectStoreWithSecret()
	if objectStore == nil {
		return nil, common.NotFoundf("object store not configured")
	}
	runner, _, err := c.RunnerFor(serverName)
	if err != nil {
		return nil, err
	}
	defer CloseRunner(runner)
	return backup.RemoteList(runner, objectStore, secretKey, appName)
}

// FetchRemoteBackup downloads a replicated dump back onto the host.
func (c *Core) FetchRemoteBackup(serverName, appName, filename string) error {
	objectStore, secretKey := c.objectStoreWithSecret()
	if objectStore == nil {
		return common.NotFoundf("object store not configured")
	}
	runner, _, err := c.RunnerFor(serverName)
	if err != nil {
		return err
	}
	defer CloseRunner(runner)
	return backup.RemoteDownload(runner, objectStore, secretKey, appName, filename)
}

func (c *Core) objectStoreWithSecret() (*store.ObjectStoreConfig, string) {
	cfg, err := c.Store.ObjectStore()
	if err != nil {
		return nil, ""
	}
	secret, err := c.Box.DecryptString(cfg.EncryptedSecretKey)
	if err != nil {
		common.Logger.WithError(err).Warn("object store secret cannot be decrypted")
		return nil, ""
	}
	return cfg, secret
}
