package config

import "path"

// Layout of the managed base directory on every remote host. All app,
// proxy and backup state on a host lives below RemoteBase.
const (
	// RemoteBase is the managed directory on remote hosts.
	RemoteBase = "/opt/infrakt"

	// NetworkName is the shared overlay network every app manifest
	// declares as external.
	NetworkName = "infrakt"

	// ContainerPrefix prefixes every managed container name.
	ContainerPrefix = "infrakt-"
)

// RemoteAppsDir is the parent directory of per-app compose projects.
func RemoteAppsDir() string { return path.Join(RemoteBase, "apps") }

// RemoteAppDir is the compose project directory for an app.
func RemoteAppDir(app string) string { return path.Join(RemoteBase, "apps", app) }

// RemoteTraefikDir holds the proxy's static config and compose file.
func RemoteTraefikDir() string { return path.Join(RemoteBase, "traefik") }

// RemoteProxyConfDir is the traefik file-provider directory.
func RemoteProxyConfDir() string { return path.Join(RemoteBase, "traefik", "conf.d") }

// RemoteAcmeDir holds the ACME certificate storage.
func RemoteAcmeDir() string { return path.Join(RemoteBase, "traefik", "letsencrypt") }

// RemoteBackupsDir holds database dumps on the host.
func RemoteBackupsDir() string { return path.Join(RemoteBase, "backups") }

// ContainerName returns the managed container name for an app.
func ContainerName(app string) string { return ContainerPrefix + app }
