package remote

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"infrakt.dev/common"
)

// Config describes how to reach one remote host.
type Config struct {
	Host    string
	Port    int
	User    string
	KeyPath string
	Timeout time.Duration
}

// Client is the SSH implementation of Runner. Sessions are acquired
// per command and released on every exit path; the client itself holds
// the one transport connection.
type Client struct {
	cfg    Config
	client *ssh.Client
}

// Dial connects to the host described by cfg. The host-key policy is
// accept-on-first-use: the control plane is the principal and treats
// the remote fingerprint as out-of-band trust.
func Dial(cfg Config) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = ProbeTimeout
	}

	sshConfig, err := buildSSHConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, &ExecError{Host: cfg.Host, Err: fmt.Errorf("failed to connect to %s: %w", addr, err)}
	}
	return &Client{cfg: cfg, client: client}, nil
}

func buildSSHConfig(cfg Config) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	keyPath := cfg.KeyPath
	if keyPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			for _, name := range []string{"id_ed25519", "id_rsa"} {
				candidate := path.Join(home, ".ssh", name)
				if _, statErr := os.Stat(candidate); statErr == nil {
					keyPath = candidate
					break
				}
			}
		}
	}
	if keyPath == "" {
		return nil, &ExecError{Host: cfg.Host, Err: fmt.Errorf("no SSH private key configured for %s", cfg.Host)}
	}

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, &ExecError{Host: cfg.Host, Err: fmt.Errorf("failed to read SSH key %s: %w", keyPath, err)}
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, &ExecError{Host: cfg.Host, Err: fmt.Errorf("failed to parse SSH key %s: %w", keyPath, err)}
	}
	authMethods = append(authMethods, ssh.PublicKeys(signer))

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}, nil
}

// Close releases the transport connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Host implements Runner.
func (c *Client) Host() string { return c.cfg.Host }

// Run implements Runner. A non-zero exit is reported in the result,
// not as an error; only transport failures error.
func (c *Client) Run(cmd string, timeout time.Duration) (*RunResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, &ExecError{Host: c.cfg.Host, Cmd: cmd, Err: fmt.Errorf("failed to open session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(cmd); err != nil {
		return nil, &ExecError{Host: c.cfg.Host, Cmd: cmd, Err: fmt.Errorf("failed to start command: %w", err)}
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	if timeout <= 0 {
		timeout = ProbeTimeout
	}
	select {
	case err = <-done:
	case <-time.After(timeout):
		session.Close()
		return nil, &ExecError{Host: c.cfg.Host, Cmd: cmd, Err: fmt.Errorf("command timed out after %s", timeout)}
	}

	result := &RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if ok := asExitError(err, &exitErr); ok {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return nil, &ExecError{Host: c.cfg.Host, Cmd: cmd, Err: err}
	}
	return result, nil
}

func asExitError(err error, target **ssh.ExitError) bool {
	if e, ok := err.(*ssh.ExitError); ok {
		*target = e
		return true
	}
	return false
}

// RunChecked implements Runner.
func (c *Client) RunChecked(cmd string, timeout time.Duration) (string, error) {
	result, err := c.Run(cmd, timeout)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", &ExecError{
			Host:     c.cfg.Host,
			Cmd:      cmd,
			ExitCode: result.ExitCode,
			Stderr:   strings.TrimSpace(result.Stderr),
		}
	}
	return result.Stdout, nil
}

// UploadString implements Runner by streaming content into a remote
// `cat` and applying the file mode afterwards.
func (c *Client) UploadString(content, remotePath string, mode string) error {
	session, err := c.client.NewSession()
	if err != nil {
		return &ExecError{Host: c.cfg.Host, Err: fmt.Errorf("failed to open session: %w", err)}
	}
	defer session.Close()

	session.Stdin = strings.NewReader(content)
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", Quote(path.Dir(remotePath)), Quote(remotePath))
	if out, err := session.CombinedOutput(cmd); err != nil {
		return &ExecError{Host: c.cfg.Host, Cmd: cmd, Stderr: strings.TrimSpace(string(out)), Err: err}
	}

	if mode != "" {
		if _, err := c.RunChecked(fmt.Sprintf("chmod %s %s", mode, Quote(remotePath)), ProbeTimeout); err != nil {
			return err
		}
	}
	return nil
}

// Upload implements Runner.
func (c *Client) Upload(localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	return c.UploadString(string(data), remotePath, "")
}

// Download implements Runner.
func (c *Client) Download(remotePath, localPath string) error {
	content, err := c.ReadRemoteFile(remotePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path.Dir(localPath), err)
	}
	if err := os.WriteFile(localPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

// ReadRemoteFile implements Runner.
func (c *Client) ReadRemoteFile(remotePath string) (string, error) {
	return c.RunChecked(fmt.Sprintf("cat %s", Quote(remotePath)), ProbeTimeout)
}

// ExecStream implements Runner. The returned stream delivers combined
// output line by line; closing it tears the session down.
func (c *Client) ExecStream(cmd string) (*Stream, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, &ExecError{Host: c.cfg.Host, Cmd: cmd, Err: fmt.Errorf("failed to open session: %w", err)}
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, &ExecError{Host: c.cfg.Host, Cmd: cmd, Err: err}
	}
	session.Stderr = session.Stdout.(io.Writer)

	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, &ExecError{Host: c.cfg.Host, Cmd: cmd, Err: err}
	}

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		session.Wait()
	}()

	return &Stream{Lines: lines, close: session.Close}, nil
}

// TestConnection implements Runner: run a trivial echo and compare.
func (c *Client) TestConnection() bool {
	out, err := c.RunChecked("echo infrakt-connection-test", ProbeTimeout)
	if err != nil {
		common.Logger.WithError(err).WithField("host", c.cfg.Host).Debug("connection test failed")
		return false
	}
	return strings.TrimSpace(out) == "infrakt-connection-test"
}
