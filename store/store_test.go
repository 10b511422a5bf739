package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrakt.dev/common"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "infrakt.db"))
	require.NoError(t, err)
	return s
}

func seedServer(t *testing.T, s *Store, name string) *Server {
	t.Helper()
	srv := &Server{Name: name, Host: name + ".example.com"}
	require.NoError(t, s.CreateServer(srv))
	return srv
}

func TestServerCRUD(t *testing.T) {
	s := testStore(t)

	srv := seedServer(t, s, "prod")
	assert.Equal(t, ServerInactive, srv.Status)

	err := s.CreateServer(&Server{Name: "prod", Host: "other"})
	assert.Equal(t, common.KindConflict, common.KindOf(err))

	byName, err := s.ServerByName("prod")
	require.NoError(t, err)
	assert.Equal(t, srv.ID, byName.ID)
	assert.Equal(t, 22, byName.Port)
	assert.Equal(t, "root", byName.User)

	_, err = s.ServerByName("ghost")
	assert.Equal(t, common.KindNotFound, common.KindOf(err))

	require.NoError(t, s.UpdateServerStatus(srv.ID, ServerActive))
	byID, err := s.ServerByID(srv.ID)
	require.NoError(t, err)
	assert.Equal(t, ServerActive, byID.Status)
}

func TestDeleteServerCascades(t *testing.T) {
	s := testStore(t)
	srv := seedServer(t, s, "prod")
	other := seedServer(t, s, "staging")

	app := &App{Name: "api", ServerID: srv.ID, Image: "nginx:1.25", Kind: KindImage}
	require.NoError(t, s.CreateApp(app))
	require.NoError(t, s.CreateDeployment(&Deployment{AppID: app.ID}))

	kept := &App{Name: "api", ServerID: other.ID, Image: "nginx:1.25", Kind: KindImage}
	require.NoError(t, s.CreateApp(kept))

	require.NoError(t, s.AddMetric(&ServerMetric{ServerID: srv.ID}))

	require.NoError(t, s.DeleteServer(srv.ID))

	_, err := s.ServerByID(srv.ID)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
	_, err = s.AppByID(app.ID)
	assert.Equal(t, common.KindNotFound, common.KindOf(err), "no orphan app survives")
	list, err := s.Deployments(app.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "no orphan deployment survives")
	metrics, err := s.Metrics(srv.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, metrics)

	// The sibling server is untouched.
	_, err = s.AppByID(kept.ID)
	require.NoError(t, err)

	err = s.DeleteServer(srv.ID)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestAppNamesAreScopedPerServer(t *testing.T) {
	s := testStore(t)
	prod := seedServer(t, s, "prod")
	staging := seedServer(t, s, "staging")

	require.NoError(t, s.CreateApp(&App{Name: "api", ServerID: prod.ID, Image: "a"}))
	require.NoError(t, s.CreateApp(&App{Name: "api", ServerID: staging.ID, Image: "a"}))

	err := s.CreateApp(&App{Name: "api", ServerID: prod.ID, Image: "b"})
	assert.Equal(t, common.KindConflict, common.KindOf(err))
}

func TestAppsFilterDatabases(t *testing.T) {
	s := testStore(t)
	srv := seedServer(t, s, "prod")

	require.NoError(t, s.CreateApp(&App{Name: "web", ServerID: srv.ID, Image: "nginx", Kind: KindImage}))
	require.NoError(t, s.CreateApp(&App{Name: "maindb", ServerID: srv.ID, Kind: KindDatabase, Engine: "postgres"}))

	apps, err := s.Apps(srv.ID, false)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "web", apps[0].Name)

	apps, err = s.Apps(srv.ID, true)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}

func TestGitAppsSpansServers(t *testing.T) {
	s := testStore(t)
	prod := seedServer(t, s, "prod")
	staging := seedServer(t, s, "staging")

	require.NoError(t, s.CreateApp(&App{Name: "img", ServerID: prod.ID, Image: "nginx", Kind: KindImage}))
	require.NoError(t, s.CreateApp(&App{Name: "shop", ServerID: prod.ID, Kind: KindGit, GitRepo: "https://github.com/acme/shop.git"}))
	require.NoError(t, s.CreateApp(&App{Name: "shop", ServerID: staging.ID, Kind: KindGit, GitRepo: "https://github.com/acme/shop"}))

	apps, err := s.GitApps()
	require.NoError(t, err)
	require.Len(t, apps, 2)
	for _, a := range apps {
		assert.Equal(t, KindGit, a.Kind)
	}
}

func TestDeploymentLifecycle(t *testing.T) {
	s := testStore(t)
	srv := seedServer(t, s, "prod")
	app := &App{Name: "api", ServerID: srv.ID, Image: "nginx:1.24"}
	require.NoError(t, s.CreateApp(app))

	first := &Deployment{AppID: app.ID, StartedAt: time.Now().UTC().Add(-time.Minute)}
	require.NoError(t, s.CreateDeployment(first))
	assert.Equal(t, DeploymentInProgress, first.Status)
	assert.Nil(t, first.FinishedAt)

	require.NoError(t, s.FinishDeployment(first.ID, DeploymentSuccess, "done", "", "nginx:1.24"))
	finished, err := s.DeploymentByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, DeploymentSuccess, finished.Status)
	require.NotNil(t, finished.FinishedAt, "terminal status implies a finish time")
	assert.Equal(t, "nginx:1.24", finished.ImageUsed)

	second := &Deployment{AppID: app.ID}
	require.NoError(t, s.CreateDeployment(second))
	require.NoError(t, s.FinishDeployment(second.ID, DeploymentFailed, "pull failed", "", "nginx:1.25"))

	// Rollback target skips the failed attempt.
	target, err := s.LatestSuccessfulDeployment(app.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, target.ID)

	list, err := s.Deployments(app.ID, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	_, err = s.LatestSuccessfulDeployment(9999)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestWebhookSubscriptions(t *testing.T) {
	s := testStore(t)

	all := &Webhook{URL: "https://hooks.example.com/all"}
	some := &Webhook{URL: "https://hooks.example.com/some", Events: "deployment.succeeded, deployment.failed"}
	require.NoError(t, s.CreateWebhook(all))
	require.NoError(t, s.CreateWebhook(some))

	assert.True(t, all.Subscribed("server.provisioned"), "empty set means all events")
	assert.True(t, some.Subscribed("deployment.failed"))
	assert.False(t, some.Subscribed("server.provisioned"))
	assert.Equal(t, []string{"deployment.succeeded", "deployment.failed"}, some.EventSet())

	hooks, err := s.Webhooks()
	require.NoError(t, err)
	assert.Len(t, hooks, 2)

	require.NoError(t, s.DeleteWebhook(all.ID))
	assert.Equal(t, common.KindNotFound, common.KindOf(s.DeleteWebhook(all.ID)))
}

func TestSourceIntegrationSingleton(t *testing.T) {
	s := testStore(t)

	_, err := s.SourceIntegration()
	assert.Equal(t, common.KindNotFound, common.KindOf(err))

	require.NoError(t, s.SetSourceIntegration(&SourceIntegration{Username: "oauth2", EncryptedToken: "aaa"}))
	require.NoError(t, s.SetSourceIntegration(&SourceIntegration{Username: "bot", EncryptedToken: "bbb"}))

	si, err := s.SourceIntegration()
	require.NoError(t, err)
	assert.Equal(t, "bot", si.Username, "set replaces, never accumulates")

	require.NoError(t, s.DeleteSourceIntegration())
	_, err = s.SourceIntegration()
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestObjectStoreSingleton(t *testing.T) {
	s := testStore(t)

	_, err := s.ObjectStore()
	assert.Equal(t, common.KindNotFound, common.KindOf(err))

	require.NoError(t, s.SetObjectStore(&ObjectStoreConfig{Bucket: "backups-a", AccessKey: "k"}))
	require.NoError(t, s.SetObjectStore(&ObjectStoreConfig{Bucket: "backups-b", AccessKey: "k"}))

	cfg, err := s.ObjectStore()
	require.NoError(t, err)
	assert.Equal(t, "backups-b", cfg.Bucket)
}

func TestMetricsWindow(t *testing.T) {
	s := testStore(t)
	srv := seedServer(t, s, "prod")

	cpu := 42.5
	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.AddMetric(&ServerMetric{ServerID: srv.ID, RecordedAt: old, CPUPercent: &cpu}))
	require.NoError(t, s.AddMetric(&ServerMetric{ServerID: srv.ID, CPUPercent: &cpu}))

	recent, err := s.Metrics(srv.ID, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.NotNil(t, recent[0].CPUPercent)
	assert.Equal(t, 42.5, *recent[0].CPUPercent)

	everything, err := s.Metrics(srv.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, everything, 2)
	assert.True(t, everything[0].RecordedAt.Before(everything[1].RecordedAt), "chronological order")
}

func TestAppTypeTags(t *testing.T) {
	db := &App{Kind: KindDatabase, Engine: "postgres"}
	assert.Equal(t, "db:postgres", db.Type())
	assert.True(t, db.IsDatabase())

	img := &App{Kind: KindImage}
	assert.Equal(t, "image", img.Type())

	kind, engine := ParseAppType("db:mysql")
	assert.Equal(t, KindDatabase, kind)
	assert.Equal(t, "mysql", engine)

	kind, engine = ParseAppType("git")
	assert.Equal(t, KindGit, kind)
	assert.Empty(t, engine)
}
