package deploy

import (
	"fmt"

	"infrakt.dev/common"
	"infrakt.dev/compose"
	"infrakt.dev/config"
	"infrakt.dev/proxy"
	"infrakt.dev/remote"
	"infrakt.dev/store"
)

func composeCmd(app string, sub string) string {
	return fmt.Sprintf("cd %s && docker compose %s", remote.Quote(config.RemoteAppDir(app)), sub)
}

// Start brings a stopped app's services up.
func Start(runner remote.Runner, app *store.App) error {
	if err := compose.ValidateAppName(app.Name); err != nil {
		return err
	}
	if _, err := runner.RunChecked(composeCmd(app.Name, "start"), remote.LifecycleTimeout); err != nil {
		return common.Remotef(err, "failed to start %s", app.Name)
	}
	return nil
}

// Stop halts an app's services without removing them.
func Stop(runner remote.Runner, app *store.App) error {
	if err := compose.ValidateAppName(app.Name); err != nil {
		return err
	}
	if _, err := runner.RunChecked(composeCmd(app.Name, "stop"), remote.LifecycleTimeout); err != nil {
		return common.Remotef(err, "failed to stop %s", app.Name)
	}
	return nil
}

// Restart bounces an app's services.
func Restart(runner remote.Runner, app *store.App) error {
	if err := compose.ValidateAppName(app.Name); err != nil {
		return err
	}
	if _, err := runner.RunChecked(composeCmd(app.Name, "restart"), remote.LifecycleTimeout); err != nil {
		return common.Remotef(err, "failed to restart %s", app.Name)
	}
	return nil
}

// Destroy tears the app down on the host: compose down with volumes,
// the app directory, and any installed route. The caller removes the
// database rows afterwards.
func Destroy(runner remote.Runner, app *store.App) error {
	if err := compose.ValidateAppName(app.Name); err != nil {
		return err
	}
	down := composeCmd(app.Name, "down --volumes --remove-orphans")
	if _, err := runner.RunChecked(down, remote.PullTimeout); err != nil {
		common.Logger.WithError(err).WithField("app", app.Name).Warn("compose down failed during destroy")
	}
	rm := fmt.Sprintf("rm -rf %s", remote.Quote(config.RemoteAppDir(app.Name)))
	if _, err := runner.RunChecked(rm, remote.LifecycleTimeout); err != nil {
		return common.Remotef(err, "failed to remove app directory for %s", app.Name)
	}
	if app.Domain != "" {
		if err := proxy.RemoveDomain(runner, app.Domain); err != nil {
			return err
		}
	}
	return nil
}

// Logs returns the last tail lines of the app's service logs.
func Logs(runner remote.Runner, app *store.App, tail int) (string, error) {
	if err := compose.ValidateAppName(app.Name); err != nil {
		return "", err
	}
	if tail <= 0 {
		tail = 100
	}
	cmd := composeCmd(app.Name, fmt.Sprintf("logs --no-color --tail %d", tail))
	out, err := runner.RunChecked(cmd, remote.ProbeTimeout)
	if err != nil {
		return "", common.Remotef(err, "failed to read logs for %s", app.Name)
	}
	return out, nil
}

// FollowLogs streams the app's service logs until the stream is
// closed.
func FollowLogs(runner remote.Runner, app *store.App) (*remote.Stream, error) {
	if err := compose.ValidateAppName(app.Name); err != nil {
		return nil, err
	}
	return runner.ExecStream(composeCmd(app.Name, "logs --no-color --follow --tail 100"))
}
