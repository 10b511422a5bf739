package core

import (
	"infrakt.dev/common"
	"infrakt.dev/proxy"
	"infrakt.dev/store"
)

// AttachDomain binds a domain to an app and installs the route on the
// server's proxy.
func (c *Core) AttachDomain(serverName, appName, domain string) error {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		return err
	}
	defer CloseRunner(runner)
	app, err := c.Store.AppByName(server.ID, appName)
	if err != nil {
		return err
	}
	if app.IsDatabase() {
		return common.Validationf("databases are not routed through the proxy")
	}
	if err := proxy.AddDomain(runner, domain, app.Port, app.Name); err != nil {
		return err
	}
	app.Domain = domain
	return c.Store.SaveApp(app)
}

// DetachDomain removes an app's route from the proxy.
func (c *Core) DetachDomain(serverName, appName string) error {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		return err
	}
	defer CloseRunner(runner)
	app, err := c.Store.AppByName(server.ID, appName)
	if err != nil {
		return err
	}
	if app.Domain == "" {
		return common.Validationf("app %q has no domain attached", appName)
	}
	if err := proxy.RemoveDomain(runner, app.Domain); err != nil {
		return err
	}
	app.Domain = ""
	return c.Store.SaveApp(app)
}

// ListDomains reads the routes currently installed on a server's proxy.
func (c *Core) ListDomains(serverName string) ([]proxy.Domain, error) {
	runner, _, err := c.RunnerFor(serverName)
	if err != nil {
		return nil, err
	}
	defer CloseRunner(runner)
	return proxy.ListDomains(runner)
}

// DomainCheck reports whether the proxy has accepted a route.
type DomainCheck struct {
	Domain string `json:"domain"`
	Active bool   `json:"active"`
}

// ValidateDomain asks the proxy's admin API whether the route for an
// app's domain is loaded.
func (c *Core) ValidateDomain(serverName, appName string) (*DomainCheck, error) {
	runner, server, err := c.RunnerFor(serverName)
	if err != nil {
		return nil, err
	}
	defer CloseRunner(runner)
	app, err := c.Store.AppByName(server.ID, appName)
	if err != nil {
		return nil, err
	}
	if app.Domain == "" {
		return nil, common.Validationf("app %q has no domain attached", appName)
	}
	return &DomainCheck{
		Domain: app.Domain,
		Active: proxy.ValidateDomainConfig(runner, app.Domain),
	}, nil
}

// Deployments returns the recent deployment history of an app.
func (c *Core) Deployments(serverName, appName string, limit int) ([]store.Deployment, error) {
	app, err := c.findApp(serverName, appName)
	if err != nil {
		return nil, err
	}
	return c.Store.Deployments(app.ID, limit)
}
