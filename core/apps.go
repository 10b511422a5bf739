package core

import (
	"strings"

	"infrakt.dev/common"
	"infrakt.dev/compose"
	"infrakt.dev/deploy"
	"infrakt.dev/reconcile"
	"infrakt.dev/remote"
	"infrakt.dev/security"
	"infrakt.dev/store"
	"infrakt.dev/webhook"
)

// CreateApp validates and persists a new app declaration. Nothing is
// deployed yet.
func (c *Core) CreateApp(serverName string, app *store.App) error {
	server, err := c.Store.ServerByName(serverName)
	if err != nil {
		return err
	}
	app.ServerID = server.ID

	if err := compose.ValidateAppName(app.Name); err != nil {
		return err
	}
	switch app.Kind {
	case store.KindImage:
		if app.Image == "" {
			return common.Validationf("image apps need an image reference")
		}
		if err := compose.ValidatePort(app.Port); err != nil {
			return err
		}
	case store.KindGit:
		if err := compose.ValidateGitURL(app.GitRepo); err != nil {
			return err
		}
		if app.Branch == "" {
			app.Branch = "main"
		}
		if err := compose.ValidateBranch(app.Branch); err != nil {
			return err
		}
		if err := compose.ValidatePort(app.Port); err != nil {
			return err
		}
	case store.KindCompose:
		if strings.TrimSpace(app.ComposeInline) == "" {
			return common.Validationf("compose apps need a manifest")
		}
	case store.KindDatabase:
		if _, err := compose.ParseEngine(app.Engine); err != nil {
			return err
		}
	default:
		return common.Validationf("unknown app type %q", app.Kind)
	}
	if app.Domain != "" {
		if err := compose.ValidateDomain(app.Domain); err != nil {
			return err
		}
	}

	// Per-app webhook secret for push ingest, generated eagerly so the
	// provider can be configured right after creation.
	if app.WebhookSecret == "" {
		secret, err := security.GenerateToken(24)
		if err != nil {
			return common.Internalf(err, "failed to generate webhook secret")
		}
		app.WebhookSecret = secret
	}

	return c.Store.CreateApp(app)
}

// DeployApp triggers a background deployment and returns the
// in-progress deployment row.
func (c *Core) DeployApp(serverName, appName, pinnedCommit string) (*store.Deployment, error) {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		return nil, err
	}
	app, err := c.Store.AppByName(server.ID, appName)
	if err != nil {
		CloseRunner(runner)
		return nil, err
	}

	opts := deploy.Options{PinnedCommit: pinnedCommit}
	opts.EnvContent, err = c.Envs.RenderDotenv(app.ID)
	if err != nil {
		CloseRunner(runner)
		return nil, err
	}
	if app.Kind == store.KindGit {
		opts.GitUsername, opts.GitToken = c.sourceCredentials()
	}

	d, err := c.Worker.Start(runner, app, opts)
	if err != nil {
		CloseRunner(runner)
		return nil, err
	}
	return d, nil
}

// DeployAppByID is the webhook-ingest entry point: it resolves the
// server from the app row.
func (c *Core) DeployAppByID(appID uint) (*store.Deployment, error) {
	app, err := c.Store.AppByID(appID)
	if err != nil {
		return nil, err
	}
	server, err := c.Store.ServerByID(app.ServerID)
	if err != nil {
		return nil, err
	}
	return c.DeployApp(server.Name, app.Name, "")
}

// RollbackApp redeploys the app pinned to the commit of its most
// recent successful deployment, or to an explicit commit.
func (c *Core) RollbackApp(serverName, appName, commit string) (*store.Deployment, error) {
	server, err := c.Store.ServerByName(serverName)
	if err != nil {
		return nil, err
	}
	app, err := c.Store.AppByName(server.ID, appName)
	if err != nil {
		return nil, err
	}
	if commit == "" {
		last, err := c.Store.LatestSuccessfulDeployment(app.ID)
		if err != nil {
			return nil, err
		}
		if last.CommitHash == "" {
			return nil, common.Validationf("the last successful deployment has no commit to roll back to")
		}
		commit = last.CommitHash
	}
	return c.DeployApp(serverName, appName, commit)
}

func (c *Core) sourceCredentials() (username, token string) {
	si, err := c.Store.SourceIntegration()
	if err != nil {
		return "", ""
	}
	token, err = c.Box.DecryptString(si.EncryptedToken)
	if err != nil {
		common.Logger.WithError(err).Warn("source integration token cannot be decrypted")
		return "", ""
	}
	return si.Username, token
}

// appOp runs fn against a named app with a live runner.
func (c *Core) appOp(serverName, appName string, fn func(remote.Runner, *store.App) error) (*store.App, error) {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		return nil, err
	}
	defer CloseRunner(runner)
	app, err := c.Store.AppByName(server.ID, appName)
	if err != nil {
		return nil, err
	}
	return app, fn(runner, app)
}

// StartApp starts a stopped app's services.
func (c *Core) StartApp(serverName, appName string) error {
	app, err := c.appOp(serverName, appName, deploy.Start)
	if err != nil {
		return err
	}
	return c.Store.UpdateAppStatus(app.ID, store.AppRunning)
}

// StopApp stops an app's services.
func (c *Core) StopApp(serverName, appName string) error {
	app, err := c.appOp(serverName, appName, deploy.Stop)
	if err != nil {
		return err
	}
	return c.Store.UpdateAppStatus(app.ID, store.AppStopped)
}

// RestartApp bounces an app's services.
func (c *Core) RestartApp(serverName, appName string) error {
	app, err := c.appOp(serverName, appName, deploy.Restart)
	if err != nil {
		return err
	}
	return c.Store.UpdateAppStatus(app.ID, store.AppRunning)
}

// DestroyApp tears the app down on the host and removes its rows and
// env file. Destroy is idempotent on the host side.
func (c *Core) DestroyApp(serverName, appName string) error {
	app, err := c.appOp(serverName, appName, deploy.Destroy)
	if err != nil {
		return err
	}
	if err := c.Store.DeleteApp(app.ID); err != nil {
		return err
	}
	if err := c.Envs.Delete(app.ID); err != nil {
		common.Logger.WithError(err).WithField("app", app.Name).Warn("failed to remove env file")
	}
	c.Dispatcher.DispatchAsync(webhook.EventAppDestroyed, map[string]any{"app": app.Name})
	return nil
}

// AppView is the reconciled live view of one app.
type AppView struct {
	App      store.App           `json:"app"`
	Status   store.AppStatus     `json:"status"`
	Services []reconcile.Service `json:"services,omitempty"`
	Health   *reconcile.Health   `json:"health,omitempty"`
}

// AppStatus reconciles the app against the host and persists the
// derived status.
func (c *Core) AppStatus(serverName, appName string) (*AppView, error) {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		return nil, err
	}
	defer CloseRunner(runner)
	app, err := c.Store.AppByName(server.ID, appName)
	if err != nil {
		return nil, err
	}

	view := &AppView{App: *app}
	view.Services = reconcile.Observe(runner, app.Name)
	view.Status = reconcile.StatusOf(view.Services)
	if err := c.Store.UpdateAppStatus(app.ID, view.Status); err != nil {
		return nil, err
	}
	if app.HealthURL != "" && view.Status == store.AppRunning {
		h := reconcile.CheckHTTP(runner, app.Port, app.HealthURL)
		view.Health = &h
	}
	return view, nil
}

// FollowAppLogs streams an app's service logs live. The caller owns
// both the stream and the runner and must close them via the returned
// release function.
func (c *Core) FollowAppLogs(serverName, appName string) (*remote.Stream, func(), error) {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		return nil, nil, err
	}
	app, err := c.Store.AppByName(server.ID, appName)
	if err != nil {
		CloseRunner(runner)
		return nil, nil, err
	}
	stream, err := deploy.FollowLogs(runner, app)
	if err != nil {
		CloseRunner(runner)
		return nil, nil, err
	}
	release := func() {
		if cerr := stream.Close(); cerr != nil {
			common.Logger.WithError(cerr).Debug("failed to close log stream")
		}
		CloseRunner(runner)
	}
	return stream, release, nil
}

// AppLogs returns the tail of an app's service logs.
func (c *Core) AppLogs(serverName, appName string, tail int) (string, error) {
	var out string
	_, err := c.appOp(serverName, appName, func(r remote.Runner, a *store.App) error {
		var lerr error
		out, lerr = deploy.Logs(r, a, tail)
		return lerr
	})
	return out, err
}
