package core

import (
	"fmt"
	"time"

	"infrakt.dev/broadcast"
	"infrakt.dev/common"
	"infrakt.dev/metric"
	"infrakt.dev/provision"
	"infrakt.dev/store"
	"infrakt.dev/webhook"
)

// ProvisionID derives the synthetic broadcaster id used for
// provisioning progress: negative so it can never collide with a
// deployment id.
func ProvisionID(serverID uint) int64 { return -int64(serverID) }

// AddServer registers a host and verifies it is reachable.
func (c *Core) AddServer(server *store.Server) error {
	if server.Name == "" || server.Host == "" {
		return common.Validationf("server name and host are required")
	}
	if err := c.Store.CreateServer(server); err != nil {
		return err
	}

	runner, err := c.Dial(server)
	if err != nil {
		common.Logger.WithError(err).WithField("server", server.Name).Warn("server registered but unreachable")
		return nil
	}
	defer CloseRunner(runner)
	if runner.TestConnection() {
		if err := c.Store.UpdateServerStatus(server.ID, store.ServerActive); err != nil {
			return err
		}
		server.Status = store.ServerActive
	}
	return nil
}

// ProvisionServer runs the provisioning sequence in the background,
// streaming step progress through the broadcaster under the server's
// provision id.
func (c *Core) ProvisionServer(serverName string, wipe bool) (int64, error) {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		return 0, err
	}
	if err := c.Store.UpdateServerStatus(server.ID, store.ServerProvisioning); err != nil {
		CloseRunner(runner)
		return 0, err
	}

	id := ProvisionID(server.ID)
	c.Broadcaster.Register(id)

	go func() {
		defer CloseRunner(runner)
		defer c.Broadcaster.CleanupAfter(id, broadcast.CleanupDelay)

		onStep := func(name string, index, total int) {
			c.Broadcaster.Publish(id, fmt.Sprintf("[%s] (%d/%d) %s",
				time.Now().UTC().Format(time.RFC3339), index, total, name))
		}

		var err error
		if wipe {
			err = provision.Wipe(runner, onStep)
		}
		if err == nil {
			err = provision.Provision(runner, provision.Options{ACMEEmail: c.Config.ACMEEmail}, onStep)
		}

		if err != nil {
			c.Broadcaster.Publish(id, "[ERROR] "+err.Error())
			c.Broadcaster.Finish(id)
			if serr := c.Store.UpdateServerStatus(server.ID, store.ServerError); serr != nil {
				common.Logger.WithError(serr).Error("failed to mark server errored")
			}
			return
		}
		c.Broadcaster.Finish(id)
		if serr := c.Store.UpdateServerStatus(server.ID, store.ServerActive); serr != nil {
			common.Logger.WithError(serr).Error("failed to mark server active")
		}
		c.Dispatcher.DispatchAsync(webhook.EventServerProvisioned, map[string]any{"server": server.Name})
	}()

	return id, nil
}

// ServerStatus is the live view of one host.
type ServerStatus struct {
	Server    store.Server  `json:"server"`
	Reachable bool          `json:"reachable"`
	Metric    metric.Sample `json:"metric"`
}

// CheckServer probes reachability and captures a resource sample,
// persisting it into the metric series.
func (c *Core) CheckServer(serverName string) (*ServerStatus, error) {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		if server != nil {
			return &ServerStatus{Server: *server}, nil
		}
		return nil, err
	}
	defer CloseRunner(runner)

	status := &ServerStatus{Server: *server, Reachable: runner.TestConnection()}
	if status.Reachable {
		sample, err := metric.Record(runner, c.Store, server.ID)
		if err != nil {
			common.Logger.WithError(err).Warn("failed to record metric sample")
		}
		status.Metric = sample
	}
	return status, nil
}

// ServerMetrics returns the persisted samples since the given window.
func (c *Core) ServerMetrics(serverName string, window time.Duration) ([]store.ServerMetric, error) {
	server, err := c.Store.ServerByName(serverName)
	if err != nil {
		return nil, err
	}
	return c.Store.Metrics(server.ID, time.Now().UTC().Add(-window))
}

// RemoveServer deletes a server and everything it owns.
func (c *Core) RemoveServer(serverName string) error {
	server, err := c.Store.ServerByName(serverName)
	if err != nil {
		return err
	}
	apps, err := c.Store.Apps(server.ID, true)
	if err != nil {
		return err
	}
	if err := c.Store.DeleteServer(server.ID); err != nil {
		return err
	}
	for _, app := range apps {
		if err := c.Envs.Delete(app.ID); err != nil {
			common.Logger.WithError(err).WithField("app", app.Name).Warn("failed to remove env file")
		}
	}
	return nil
}
