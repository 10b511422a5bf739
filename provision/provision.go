// Package provision prepares a raw Linux host for management: the
// container engine, firewall, shared network, directory layout and the
// reverse proxy.
package provision

import (
	"fmt"
	"strings"
	"time"

	"infrakt.dev/common"
	"infrakt.dev/config"
	"infrakt.dev/remote"
)

// StepFunc receives progress as each step starts.
type StepFunc func(name string, index, total int)

type step struct {
	name    string
	cmd     string
	timeout time.Duration // zero means lifecycle default
	upload  *uploadStep
}

type uploadStep struct {
	content string
	path    string
	mode    string
}

// Options tunes provisioning.
type Options struct {
	ACMEEmail string
}

// Wipe removes a previous container stack and the managed directory.
// It must only run after the operator confirmed the host is not
// already managed: the base directory is deleted outright.
func Wipe(runner remote.Runner, onStep StepFunc) error {
	steps := []step{
		{name: "Stopping running containers",
			cmd: "docker ps -q | xargs -r docker stop || true"},
		{name: "Removing containers",
			cmd: "docker ps -aq | xargs -r docker rm -f || true"},
		{name: "Purging alternate container stack",
			cmd: "command -v podman >/dev/null 2>&1 && (apt-get remove -y podman || yum remove -y podman) || true"},
		{name: "Removing snap packages",
			cmd: "command -v snap >/dev/null 2>&1 && snap list 2>/dev/null | awk 'NR>1 {print $1}' | xargs -r -n1 snap remove || true"},
		{name: "Deleting managed directory",
			cmd: fmt.Sprintf("rm -rf %s", remote.Quote(config.RemoteBase))},
	}
	return runSteps(runner, steps, onStep)
}

// Provision runs the full setup sequence. The firewall permits SSH,
// HTTP and HTTPS before it is enabled so the control plane can never
// lock itself out.
func Provision(runner remote.Runner, opts Options, onStep StepFunc) error {
	staticConfig := RenderTraefikConfig(opts.ACMEEmail)
	proxyManifest := RenderTraefikCompose()

	dirs := fmt.Sprintf("mkdir -p %s %s %s %s",
		remote.Quote(config.RemoteAppsDir()),
		remote.Quote(config.RemoteProxyConfDir()),
		remote.Quote(config.RemoteAcmeDir()),
		remote.Quote(config.RemoteBackupsDir()))

	acmeFile := config.RemoteAcmeDir() + "/acme.json"

	steps := []step{
		{name: "Installing container engine",
			cmd:     "command -v docker >/dev/null 2>&1 || (curl -fsSL https://get.docker.com | sh)",
			timeout: 600 * time.Second},
		{name: "Installing intrusion prevention",
			cmd:     "command -v fail2ban-server >/dev/null 2>&1 || (apt-get update -qq && apt-get install -y -qq fail2ban) ; systemctl enable --now fail2ban",
			timeout: 300 * time.Second},
		{name: "Configuring firewall",
			cmd: "ufw allow OpenSSH && ufw allow 80/tcp && ufw allow 443/tcp && ufw --force enable"},
		{name: "Creating shared network",
			cmd: fmt.Sprintf("docker network inspect %s >/dev/null 2>&1 || docker network create %s",
				config.NetworkName, config.NetworkName)},
		{name: "Creating directory layout", cmd: dirs},
		{name: "Writing proxy configuration",
			upload: &uploadStep{content: staticConfig, path: config.RemoteTraefikDir() + "/traefik.yml", mode: "644"}},
		{name: "Writing proxy manifest",
			upload: &uploadStep{content: proxyManifest, path: config.RemoteTraefikDir() + "/docker-compose.yml", mode: "644"}},
		{name: "Preparing certificate storage",
			cmd: fmt.Sprintf("touch %s && chmod 600 %s", remote.Quote(acmeFile), remote.Quote(acmeFile))},
		{name: "Starting reverse proxy",
			cmd:     fmt.Sprintf("cd %s && docker compose up -d", remote.Quote(config.RemoteTraefikDir())),
			timeout: 300 * time.Second},
	}
	return runSteps(runner, steps, onStep)
}

func runSteps(runner remote.Runner, steps []step, onStep StepFunc) error {
	total := len(steps)
	for i, s := range steps {
		if onStep != nil {
			onStep(s.name, i+1, total)
		}
		if s.upload != nil {
			if err := runner.UploadString(s.upload.content, s.upload.path, s.upload.mode); err != nil {
				return common.Remotef(err, "step %q failed", s.name)
			}
			continue
		}
		timeout := remote.LifecycleTimeout
		if s.timeout > 0 {
			timeout = s.timeout
		}
		if _, err := runner.RunChecked(s.cmd, timeout); err != nil {
			return common.Remotef(err, "step %q failed", s.name)
		}
	}
	return nil
}

// RenderTraefikConfig produces the proxy's static configuration with
// the ACME account email filled in.
func RenderTraefikConfig(acmeEmail string) string {
	var b strings.Builder
	b.WriteString("entryPoints:\n")
	b.WriteString("  web:\n")
	b.WriteString("    address: \":80\"\n")
	b.WriteString("  websecure:\n")
	b.WriteString("    address: \":443\"\n")
	b.WriteString("providers:\n")
	b.WriteString("  file:\n")
	b.WriteString("    directory: /etc/traefik/conf.d\n")
	b.WriteString("    watch: true\n")
	b.WriteString("api:\n")
	b.WriteString("  insecure: true\n")
	b.WriteString("certificatesResolvers:\n")
	b.WriteString("  letsencrypt:\n")
	b.WriteString("    acme:\n")
	fmt.Fprintf(&b, "      email: %s\n", acmeEmail)
	b.WriteString("      storage: /letsencrypt/acme.json\n")
	b.WriteString("      httpChallenge:\n")
	b.WriteString("        entryPoint: web\n")
	return b.String()
}

// RenderTraefikCompose produces the proxy's own compose manifest. The
// admin API is bound to loopback only.
func RenderTraefikCompose() string {
	var b strings.Builder
	b.WriteString("services:\n")
	b.WriteString("  traefik:\n")
	b.WriteString("    image: traefik:v3.1\n")
	fmt.Fprintf(&b, "    container_name: %s\n", config.ContainerName("traefik"))
	b.WriteString("    restart: unless-stopped\n")
	b.WriteString("    ports:\n")
	b.WriteString("      - \"80:80\"\n")
	b.WriteString("      - \"443:443\"\n")
	b.WriteString("      - \"127.0.0.1:8080:8080\"\n")
	b.WriteString("    volumes:\n")
	b.WriteString("      - ./traefik.yml:/etc/traefik/traefik.yml:ro\n")
	b.WriteString("      - ./conf.d:/etc/traefik/conf.d:ro\n")
	b.WriteString("      - ./letsencrypt:/letsencrypt\n")
	b.WriteString("    networks:\n")
	fmt.Fprintf(&b, "      - %s\n", config.NetworkName)
	b.WriteString("networks:\n")
	fmt.Fprintf(&b, "  %s:\n", config.NetworkName)
	b.WriteString("    external: true\n")
	return b.String()
}
