// Package deploy implements the deployment lifecycle: validate the
// app's declared source, materialise it on the host, apply it through
// the compose tool, gate on health, and record the outcome.
package deploy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"infrakt.dev/common"
	"infrakt.dev/compose"
	"infrakt.dev/config"
	"infrakt.dev/proxy"
	"infrakt.dev/reconcile"
	"infrakt.dev/remote"
	"infrakt.dev/store"
)

// Options tunes one deployment run.
type Options struct {
	// PinnedCommit switches a source-repo deploy into the rollback
	// path: reset to this hash instead of the branch tip.
	PinnedCommit string
	// EnvContent is the rendered .env uploaded next to the manifest.
	EnvContent string
	// GitUsername and GitToken, when set, are injected into the clone
	// URL for the known source-control host.
	GitUsername string
	GitToken    string
}

// Result is what a finished deployment reports back.
type Result struct {
	Log        []string
	CommitHash string
	ImageUsed  string
}

// LogFunc receives each emitted log line; it bridges to the
// broadcaster.
type LogFunc func(line string)

var (
	headRe = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

	// Swapped in tests.
	nowFn     = time.Now
	gateSleep = time.Sleep
)

const (
	healthGateAttempts = 10
	healthGateInterval = 5 * time.Second
)

type machine struct {
	runner remote.Runner
	app    *store.App
	opts   Options
	logf   LogFunc
	result Result
}

func (m *machine) emit(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", nowFn().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	m.result.Log = append(m.result.Log, line)
	if m.logf != nil {
		m.logf(line)
	}
}

func (m *machine) appDir() string { return config.RemoteAppDir(m.app.Name) }

// Run executes the full state machine for one deployment. Validation
// failures happen before any remote side effect.
func Run(runner remote.Runner, app *store.App, opts Options, logf LogFunc) (*Result, error) {
	m := &machine{runner: runner, app: app, opts: opts, logf: logf}

	if err := m.validate(); err != nil {
		return &m.result, err
	}
	m.emit("Starting deployment of '%s'", app.Name)

	if err := m.ensureDir(); err != nil {
		return &m.result, err
	}
	if err := m.uploadEnv(); err != nil {
		return &m.result, err
	}
	if err := m.materialise(); err != nil {
		return &m.result, err
	}
	if err := m.apply(); err != nil {
		return &m.result, err
	}
	if err := m.gateHealth(); err != nil {
		return &m.result, err
	}
	if err := m.installRoute(); err != nil {
		return &m.result, err
	}

	m.emit("Deployment complete")
	return &m.result, nil
}

func (m *machine) validate() error {
	if err := compose.ValidateAppName(m.app.Name); err != nil {
		return err
	}
	switch m.app.Kind {
	case store.KindImage:
		if m.app.Image == "" {
			return common.Validationf("app %q has no image", m.app.Name)
		}
		if err := compose.ValidatePort(m.app.Port); err != nil {
			return err
		}
	case store.KindGit:
		if err := compose.ValidateGitURL(m.app.GitRepo); err != nil {
			return err
		}
		if err := compose.ValidateBranch(m.app.Branch); err != nil {
			return err
		}
		if m.opts.PinnedCommit != "" {
			if err := compose.ValidateCommit(m.opts.PinnedCommit); err != nil {
				return err
			}
		}
		if err := compose.ValidatePort(m.app.Port); err != nil {
			return err
		}
	case store.KindCompose:
		if strings.TrimSpace(m.app.ComposeInline) == "" {
			return common.Validationf("app %q has no compose manifest", m.app.Name)
		}
	case store.KindDatabase:
		if _, err := compose.ParseEngine(m.app.Engine); err != nil {
			return err
		}
	default:
		return common.Validationf("app %q has unknown kind %q", m.app.Name, m.app.Kind)
	}
	if m.app.Domain != "" {
		if err := compose.ValidateDomain(m.app.Domain); err != nil {
			return err
		}
	}
	return nil
}

func (m *machine) ensureDir() error {
	m.emit("Preparing application directory")
	cmd := fmt.Sprintf("mkdir -p %s", remote.Quote(m.appDir()))
	if _, err := m.runner.RunChecked(cmd, remote.ProbeTimeout); err != nil {
		return common.Remotef(err, "failed to prepare app directory")
	}
	return nil
}

func (m *machine) uploadEnv() error {
	if m.opts.EnvContent == "" {
		return nil
	}
	m.emit("Uploading environment")
	if err := m.runner.UploadString(m.opts.EnvContent, m.appDir()+"/.env", "600"); err != nil {
		return common.Remotef(err, "failed to upload environment")
	}
	return nil
}

func (m *machine) materialise() error {
	switch m.app.Kind {
	case store.KindGit:
		return m.materialiseGit()
	case store.KindImage:
		return m.materialiseImage()
	case store.KindCompose:
		return m.materialiseInline()
	case store.KindDatabase:
		return m.materialiseDatabase()
	}
	return common.Validationf("app %q has unknown kind %q", m.app.Name, m.app.Kind)
}

func (m *machine) materialiseImage() error {
	m.emit("Rendering manifest for image %s", m.app.Image)
	manifest, err := compose.Render(compose.Input{
		Name:        m.app.Name,
		Image:       m.app.Image,
		Port:        m.app.Port,
		CPULimit:    m.app.CPULimit,
		MemoryLimit: m.app.MemoryLimit,
	})
	if err != nil {
		return err
	}
	if err := m.runner.UploadString(manifest, m.appDir()+"/docker-compose.yml", "644"); err != nil {
		return common.Remotef(err, "failed to upload manifest")
	}
	m.result.ImageUsed = m.app.Image
	return nil
}

func (m *machine) materialiseInline() error {
	m.emit("Writing supplied manifest")
	if err := m.runner.UploadString(m.app.ComposeInline, m.appDir()+"/docker-compose.yml", "644"); err != nil {
		return common.Remotef(err, "failed to upload manifest")
	}
	return nil
}

func (m *machine) materialiseDatabase() error {
	engine := compose.Engine(m.app.Engine)
	m.emit("Rendering manifest for %s database", engine)
	manifest, err := compose.RenderDatabase(m.app.Name, engine, m.app.Port)
	if err != nil {
		return err
	}
	if err := m.runner.UploadString(manifest, m.appDir()+"/docker-compose.yml", "644"); err != nil {
		return common.Remotef(err, "failed to upload manifest")
	}
	if defaults, err := compose.DefaultsFor(engine); err == nil {
		m.result.ImageUsed = defaults.Image
	}
	return nil
}

func (m *machine) materialiseGit() error {
	repoDir := m.appDir() + "/repo"
	cloneURL := injectToken(m.app.GitRepo, m.opts.GitUsername, m.opts.GitToken)

	exists, err := m.runner.Run(fmt.Sprintf("test -d %s", remote.Quote(repoDir+"/.git")), remote.ProbeTimeout)
	if err != nil {
		return common.Remotef(err, "failed to inspect working tree")
	}

	if exists.ExitCode == 0 {
		target := "origin/" + m.app.Branch
		if m.opts.PinnedCommit != "" {
			target = m.opts.PinnedCommit
			m.emit("Rolling back to commit %s", m.opts.PinnedCommit)
		} else {
			m.emit("Updating working tree to %s", target)
		}
		cmd := fmt.Sprintf("cd %s && git fetch origin && git reset --hard %s",
			remote.Quote(repoDir), remote.Quote(target))
		if _, err := m.runner.RunChecked(cmd, remote.PullTimeout); err != nil {
			return common.Remotef(err, "failed to update repository")
		}
	} else {
		m.emit("Cloning %s (branch %s)", m.app.GitRepo, m.app.Branch)
		cmd := fmt.Sprintf("git clone -b %s %s %s",
			remote.Quote(m.app.Branch), remote.Quote(cloneURL), remote.Quote(repoDir))
		if _, err := m.runner.RunChecked(cmd, remote.PullTimeout); err != nil {
			return common.Remotef(err, "failed to clone repository")
		}
		if m.opts.PinnedCommit != "" {
			m.emit("Rolling back to commit %s", m.opts.PinnedCommit)
			cmd = fmt.Sprintf("cd %s && git reset --hard %s",
				remote.Quote(repoDir), remote.Quote(m.opts.PinnedCommit))
			if _, err := m.runner.RunChecked(cmd, remote.PullTimeout); err != nil {
				return common.Remotef(err, "failed to reset to pinned commit")
			}
		}
	}

	head, err := m.runner.RunChecked(fmt.Sprintf("cd %s && git rev-parse HEAD", remote.Quote(repoDir)), remote.ProbeTimeout)
	if err != nil {
		return common.Remotef(err, "failed to read HEAD")
	}
	head = strings.TrimSpace(head)
	if headRe.MatchString(head) {
		m.result.CommitHash = head
		short := head
		if len(short) > 12 {
			short = short[:12]
		}
		m.emit("Checked out %s", short)
	}

	// Reuse a manifest shipped in the repository; render one around the
	// repo as build context otherwise.
	check := fmt.Sprintf("test -f %s || test -f %s",
		remote.Quote(repoDir+"/docker-compose.yml"), remote.Quote(repoDir+"/compose.yml"))
	hasManifest, err := m.runner.Run(check, remote.ProbeTimeout)
	if err != nil {
		return common.Remotef(err, "failed to inspect repository")
	}
	if hasManifest.ExitCode == 0 {
		m.emit("Reusing manifest from repository")
		cmd := fmt.Sprintf("cp %s %s 2>/dev/null || cp %s %s",
			remote.Quote(repoDir+"/docker-compose.yml"), remote.Quote(m.appDir()+"/docker-compose.yml"),
			remote.Quote(repoDir+"/compose.yml"), remote.Quote(m.appDir()+"/docker-compose.yml"))
		if _, err := m.runner.RunChecked(cmd, remote.ProbeTimeout); err != nil {
			return common.Remotef(err, "failed to stage manifest")
		}
		return nil
	}

	m.emit("Rendering manifest with build context")
	manifest, err := compose.Render(compose.Input{
		Name:         m.app.Name,
		BuildContext: "./repo",
		Port:         m.app.Port,
		CPULimit:     m.app.CPULimit,
		MemoryLimit:  m.app.MemoryLimit,
	})
	if err != nil {
		return err
	}
	if err := m.runner.UploadString(manifest, m.appDir()+"/docker-compose.yml", "644"); err != nil {
		return common.Remotef(err, "failed to upload manifest")
	}
	return nil
}

func (m *machine) apply() error {
	flag := ""
	timeout := remote.PullTimeout
	switch m.app.Kind {
	case store.KindImage:
		flag = "--pull always "
	case store.KindGit:
		flag = "--build "
		timeout = remote.BuildTimeout
	}
	m.emit("Applying manifest")
	cmd := fmt.Sprintf("cd %s && docker compose up -d %s--remove-orphans", remote.Quote(m.appDir()), flag)
	if _, err := m.runner.RunChecked(cmd, timeout); err != nil {
		return common.Remotef(err, "compose apply failed")
	}
	return nil
}

func (m *machine) gateHealth() error {
	if m.app.Strategy != store.StrategyRolling || m.app.HealthURL == "" {
		return nil
	}
	m.emit("Waiting for services to report running")
	for attempt := 1; attempt <= healthGateAttempts; attempt++ {
		if reconcile.AllRunning(m.runner, m.app.Name) {
			m.emit("All services running")
			return nil
		}
		if attempt < healthGateAttempts {
			gateSleep(healthGateInterval)
		}
	}
	m.emit("Health gate timed out, rolling back")
	down := fmt.Sprintf("cd %s && docker compose down", remote.Quote(m.appDir()))
	if _, err := m.runner.RunChecked(down, remote.LifecycleTimeout); err != nil {
		common.Logger.WithError(err).WithField("app", m.app.Name).Warn("rollback compose down failed")
	}
	return common.Remotef(nil, "services did not become healthy within the gate window")
}

func (m *machine) installRoute() error {
	if m.app.Domain == "" || m.app.IsDatabase() {
		return nil
	}
	m.emit("Installing route for %s", m.app.Domain)
	if err := proxy.AddDomain(m.runner, m.app.Domain, m.app.Port, m.app.Name); err != nil {
		return err
	}
	return nil
}

// injectToken rewrites the clone URL to carry credentials in the
// user-info field when the repo lives on the known source-control
// host. Other hosts pass through unchanged.
func injectToken(raw, username, token string) string {
	if token == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
		return raw
	}
	if username == "" {
		username = "oauth2"
	}
	u.User = url.UserPassword(username, token)
	return u.String()
}
