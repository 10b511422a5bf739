package deploy

import (
	"strings"

	"infrakt.dev/broadcast"
	"infrakt.dev/common"
	"infrakt.dev/remote"
	"infrakt.dev/store"
	"infrakt.dev/webhook"
)

// Worker runs deployments in the background: it owns the deployment
// row, streams log lines into the broadcaster, and settles the app's
// status when the state machine returns. Request cancellation never
// reaches it; a started deployment is a durable job.
type Worker struct {
	Store       *store.Store
	Broadcaster *broadcast.Broadcaster
	Dispatcher  *webhook.Dispatcher
	Coordinator *Coordinator
}

// Start claims the app, creates the deployment record, and launches
// the background run. It returns the in-progress deployment row
// immediately; a concurrent trigger fails with a conflict.
func (w *Worker) Start(runner remote.Runner, app *store.App, opts Options) (*store.Deployment, error) {
	if err := w.Coordinator.Acquire(app.ID); err != nil {
		return nil, err
	}

	d := &store.Deployment{AppID: app.ID}
	if err := w.Store.CreateDeployment(d); err != nil {
		w.Coordinator.Release(app.ID)
		return nil, err
	}
	w.Broadcaster.Register(int64(d.ID))
	if err := w.Store.UpdateAppStatus(app.ID, store.AppDeploying); err != nil {
		common.Logger.WithError(err).Warn("failed to mark app deploying")
	}

	go w.run(runner, d, app, opts)
	return d, nil
}

func (w *Worker) run(runner remote.Runner, d *store.Deployment, app *store.App, opts Options) {
	defer w.Coordinator.Release(app.ID)
	defer w.Broadcaster.CleanupAfter(int64(d.ID), broadcast.CleanupDelay)
	defer w.closeRunner(runner)

	if w.Dispatcher != nil {
		w.Dispatcher.DispatchAsync(webhook.EventDeploymentStarted, map[string]any{
			"app":           app.Name,
			"deployment_id": d.ID,
		})
	}

	result, err := Run(runner, app, opts, func(line string) {
		w.Broadcaster.Publish(int64(d.ID), line)
	})

	logText := strings.Join(result.Log, "\n")
	if err != nil {
		w.Broadcaster.Publish(int64(d.ID), "[ERROR] "+err.Error())
		w.Broadcaster.Finish(int64(d.ID))
		if logText != "" {
			logText += "\n"
		}
		logText += "[ERROR] " + err.Error()
		if ferr := w.Store.FinishDeployment(d.ID, store.DeploymentFailed, logText, result.CommitHash, result.ImageUsed); ferr != nil {
			common.Logger.WithError(ferr).Error("failed to record failed deployment")
		}
		if serr := w.Store.UpdateAppStatus(app.ID, store.AppError); serr != nil {
			common.Logger.WithError(serr).Error("failed to mark app errored")
		}
		if w.Dispatcher != nil {
			w.Dispatcher.DispatchAsync(webhook.EventDeploymentFailed, map[string]any{
				"app":           app.Name,
				"deployment_id": d.ID,
				"error":         err.Error(),
			})
		}
		return
	}

	w.Broadcaster.Finish(int64(d.ID))
	if ferr := w.Store.FinishDeployment(d.ID, store.DeploymentSuccess, logText, result.CommitHash, result.ImageUsed); ferr != nil {
		common.Logger.WithError(ferr).Error("failed to record successful deployment")
	}
	if serr := w.Store.UpdateAppStatus(app.ID, store.AppRunning); serr != nil {
		common.Logger.WithError(serr).Error("failed to mark app running")
	}
	if w.Dispatcher != nil {
		w.Dispatcher.DispatchAsync(webhook.EventDeploymentSucceeded, map[string]any{
			"app":           app.Name,
			"deployment_id": d.ID,
			"commit_hash":   result.CommitHash,
			"image_used":    result.ImageUsed,
		})
	}
}

func (w *Worker) closeRunner(runner remote.Runner) {
	if closer, ok := runner.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			common.Logger.WithError(err).Debug("failed to close SSH connection")
		}
	}
}
