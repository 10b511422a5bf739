package core

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrakt.dev/compose"
	"infrakt.dev/config"
	"infrakt.dev/remote"
	"infrakt.dev/store"
)

func testCore(t *testing.T, runner *remote.MockRunner) *Core {
	t.Helper()
	home := t.TempDir()
	cfg := &config.Config{Home: home, Port: 8090}
	c, err := New(cfg)
	require.NoError(t, err)
	c.Dial = func(*store.Server) (remote.Runner, error) { return runner, nil }
	return c
}

func seedServer(t *testing.T, c *Core) *store.Server {
	t.Helper()
	server := &store.Server{Name: "prod", Host: "prod.example.com"}
	require.NoError(t, c.AddServer(server))
	return server
}

func TestNewCreatesKeyMaterial(t *testing.T) {
	c := testCore(t, remote.NewMockRunner())
	assert.Len(t, c.PlatformKey, 43)
	assert.FileExists(t, filepath.Join(c.Config.Home, "api_key.txt"))
	assert.FileExists(t, filepath.Join(c.Config.Home, "master.key"))
}

func TestAddServerMarksActiveWhenReachable(t *testing.T) {
	runner := remote.NewMockRunner()
	c := testCore(t, runner)
	server := seedServer(t, c)

	reloaded, err := c.Store.ServerByID(server.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ServerActive, reloaded.Status)
}

func TestAddServerDuplicateName(t *testing.T) {
	c := testCore(t, remote.NewMockRunner())
	seedServer(t, c)
	err := c.AddServer(&store.Server{Name: "prod", Host: "other.example.com"})
	assert.Error(t, err)
}

func TestCreateAppGeneratesWebhookSecret(t *testing.T) {
	c := testCore(t, remote.NewMockRunner())
	seedServer(t, c)

	app := &store.App{Name: "api", Kind: store.KindImage, Image: "nginx:1.25", Port: 80}
	require.NoError(t, c.CreateApp("prod", app))
	assert.NotEmpty(t, app.WebhookSecret)
}

func TestCreateAppValidation(t *testing.T) {
	c := testCore(t, remote.NewMockRunner())
	seedServer(t, c)

	err := c.CreateApp("prod", &store.App{Name: "api", Kind: store.KindImage, Port: 80})
	assert.Error(t, err, "image apps need an image")

	err = c.CreateApp("prod", &store.App{Name: "bad name", Kind: store.KindImage, Image: "x", Port: 80})
	assert.Error(t, err)

	err = c.CreateApp("missing", &store.App{Name: "api", Kind: store.KindImage, Image: "x", Port: 80})
	assert.Error(t, err)
}

func TestDeployAppEndToEnd(t *testing.T) {
	runner := remote.NewMockRunner()
	c := testCore(t, runner)
	seedServer(t, c)

	app := &store.App{Name: "api", Kind: store.KindImage, Image: "nginx:1.25", Port: 80}
	require.NoError(t, c.CreateApp("prod", app))
	require.NoError(t, c.Envs.Set(app.ID, "API_KEY", "secret"))

	d, err := c.DeployApp("prod", "api", "")
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := c.Store.DeploymentByID(d.ID)
		require.NoError(t, err)
		if got.Status == store.DeploymentSuccess {
			assert.Equal(t, "nginx:1.25", got.ImageUsed)
			assert.Equal(t, "API_KEY=secret\n", runner.Uploads["/opt/infrakt/apps/api/.env"])
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("deployment never succeeded")
}

func TestCreateDatabaseSeedsCredentials(t *testing.T) {
	runner := remote.NewMockRunner()
	c := testCore(t, runner)
	seedServer(t, c)

	_, creds, err := c.CreateDatabase("prod", "shopdb", "postgres")
	require.NoError(t, err)
	assert.Equal(t, "shopdb", creds.Username)
	assert.NotEmpty(t, creds.Password)
	assert.Equal(t, 5432, creds.Port)

	app, err := c.findApp("prod", "shopdb")
	require.NoError(t, err)
	assert.True(t, app.IsDatabase())
	assert.Equal(t, string(compose.EnginePostgres), app.Engine)

	values, err := c.Envs.All(app.ID)
	require.NoError(t, err)
	assert.Equal(t, creds.Password, values["POSTGRES_PASSWORD"])
	assert.Equal(t, "shopdb", values["POSTGRES_DB"])
}

func TestRemoveServerCleansUp(t *testing.T) {
	c := testCore(t, remote.NewMockRunner())
	server := seedServer(t, c)

	app := &store.App{Name: "api", Kind: store.KindImage, Image: "nginx", Port: 80}
	require.NoError(t, c.CreateApp("prod", app))
	require.NoError(t, c.Envs.Set(app.ID, "KEY", "value"))

	require.NoError(t, c.RemoveServer("prod"))

	_, err := c.Store.ServerByID(server.ID)
	assert.Error(t, err)
	_, err = c.Store.AppByID(app.ID)
	assert.Error(t, err)
	names, err := c.Envs.Names(app.ID)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSetSourceIntegrationEncryptsToken(t *testing.T) {
	c := testCore(t, remote.NewMockRunner())
	require.NoError(t, c.SetSourceIntegration("ci-bot", "ghp_token123"))

	si, err := c.Store.SourceIntegration()
	require.NoError(t, err)
	assert.NotEqual(t, "ghp_token123", si.EncryptedToken)

	username, token := c.sourceCredentials()
	assert.Equal(t, "ci-bot", username)
	assert.Equal(t, "ghp_token123", token)
}

func TestCreateSSHKeyRoundTrip(t *testing.T) {
	c := testCore(t, remote.NewMockRunner())

	material, err := c.CreateSSHKey("deploy", "infrakt")
	require.NoError(t, err)
	assert.FileExists(t, material.PrivateKeyPath)
	assert.FileExists(t, material.PrivateKeyPath+".pub")

	_, err = c.CreateSSHKey("deploy", "infrakt")
	assert.Error(t, err, "duplicate key name")

	require.NoError(t, c.RemoveSSHKey("deploy"))
	assert.NoFileExists(t, material.PrivateKeyPath)
}

func TestProvisionServerStreamsSteps(t *testing.T) {
	runner := remote.NewMockRunner()
	c := testCore(t, runner)
	server := seedServer(t, c)

	id, err := c.ProvisionServer("prod", false)
	require.NoError(t, err)
	assert.Equal(t, ProvisionID(server.ID), id)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.Broadcaster.Finished(id) {
			backlog := c.Broadcaster.Backlog(id)
			require.NotEmpty(t, backlog)
			assert.Contains(t, backlog[0], "(1/9)")
			reloaded, err := c.Store.ServerByID(server.ID)
			require.NoError(t, err)
			assert.Equal(t, store.ServerActive, reloaded.Status)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("provisioning never finished")
}
