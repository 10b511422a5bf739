package remote

import (
	"fmt"
	"time"
)

// Default command timeouts. Probes are quick, container lifecycle
// slower, image pulls and builds slowest.
const (
	ProbeTimeout     = 30 * time.Second
	LifecycleTimeout = 60 * time.Second
	PullTimeout      = 300 * time.Second
	BuildTimeout     = 600 * time.Second
)

// RunResult carries the outcome of a non-raising command run.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecError is any transport, auth or per-command failure on a remote
// host. It carries the host identity so callers can surface it.
type ExecError struct {
	Host     string
	Cmd      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("remote %s: command exited %d: %s", e.Host, e.ExitCode, e.Stderr)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Stream is a live command output channel. Lines delivers combined
// output one line at a time and is closed when the command ends.
type Stream struct {
	Lines <-chan string
	close func() error
}

// Close terminates the underlying session. Safe to call more than
// once.
func (s *Stream) Close() error {
	if s.close == nil {
		return nil
	}
	fn := s.close
	s.close = nil
	return fn()
}

// Runner is the executor surface the rest of the control plane
// programs against. The SSH client implements it; tests substitute a
// scripted fake.
type Runner interface {
	// Run executes cmd and reports stdout, stderr and the exit code
	// without treating a non-zero exit as an error.
	Run(cmd string, timeout time.Duration) (*RunResult, error)

	// RunChecked executes cmd and fails with an ExecError on non-zero
	// exit, carrying stderr and the host identity.
	RunChecked(cmd string, timeout time.Duration) (string, error)

	// UploadString writes content to remotePath with the given mode.
	UploadString(content, remotePath string, mode string) error

	// Upload copies a local file to the remote host.
	Upload(localPath, remotePath string) error

	// Download copies a remote file to the local filesystem.
	Download(remotePath, localPath string) error

	// ReadRemoteFile returns a remote file's content.
	ReadRemoteFile(remotePath string) (string, error)

	// ExecStream starts cmd and returns a stream of output lines.
	ExecStream(cmd string) (*Stream, error)

	// TestConnection connects, echoes a token and compares it.
	TestConnection() bool

	// Host identifies the remote side for error reporting.
	Host() string
}
