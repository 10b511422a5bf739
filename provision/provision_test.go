package provision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrakt.dev/remote"
)

func TestProvisionFirewallBeforeEnable(t *testing.T) {
	runner := remote.NewMockRunner()
	require.NoError(t, Provision(runner, Options{ACMEEmail: "ops@example.com"}, nil))

	var firewall string
	for _, cmd := range runner.Commands {
		if strings.Contains(cmd, "ufw") {
			firewall = cmd
			break
		}
	}
	require.NotEmpty(t, firewall)
	allow := strings.Index(firewall, "ufw allow OpenSSH")
	enable := strings.Index(firewall, "ufw --force enable")
	require.GreaterOrEqual(t, allow, 0)
	require.Greater(t, enable, allow)
	assert.Contains(t, firewall, "ufw allow 80/tcp")
	assert.Contains(t, firewall, "ufw allow 443/tcp")
}

func TestProvisionLayoutAndProxy(t *testing.T) {
	runner := remote.NewMockRunner()
	var names []string
	onStep := func(name string, index, total int) {
		names = append(names, name)
		assert.Equal(t, len(names), index)
		assert.Equal(t, 9, total)
	}
	require.NoError(t, Provision(runner, Options{ACMEEmail: "ops@example.com"}, onStep))

	assert.Len(t, names, 9)
	assert.True(t, runner.Ran("mkdir -p '/opt/infrakt/apps' '/opt/infrakt/traefik/conf.d' '/opt/infrakt/traefik/letsencrypt' '/opt/infrakt/backups'"))
	assert.True(t, runner.Ran("docker network create infrakt"))
	assert.True(t, runner.Ran("chmod 600 '/opt/infrakt/traefik/letsencrypt/acme.json'"))
	assert.True(t, runner.Ran("cd '/opt/infrakt/traefik' && docker compose up -d"))

	static := runner.Uploads["/opt/infrakt/traefik/traefik.yml"]
	assert.Contains(t, static, "email: ops@example.com")
	assert.Contains(t, static, "directory: /etc/traefik/conf.d")
	assert.Contains(t, static, "watch: true")

	manifest := runner.Uploads["/opt/infrakt/traefik/docker-compose.yml"]
	assert.Contains(t, manifest, "container_name: infrakt-traefik")
	assert.Contains(t, manifest, `"127.0.0.1:8080:8080"`)
}

func TestProvisionStopsOnFailedStep(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Respond("ufw", "", 1)

	err := Provision(runner, Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Configuring firewall")
	assert.False(t, runner.Ran("docker network create"))
}

func TestWipeDeletesBase(t *testing.T) {
	runner := remote.NewMockRunner()
	require.NoError(t, Wipe(runner, nil))
	assert.True(t, runner.Ran("rm -rf '/opt/infrakt'"))
	assert.True(t, runner.Ran("xargs -r docker stop"))
}
