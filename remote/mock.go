package remote

import (
	"strings"
	"sync"
	"time"
)

// MockResponse scripts the outcome for every command whose text
// contains Match.
type MockResponse struct {
	Match    string
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// MockRunner is a scripted Runner for tests. Commands are matched
// against the response table in order; unmatched commands succeed with
// empty output. Every command and upload is recorded.
type MockRunner struct {
	mu        sync.Mutex
	HostName  string
	Responses []MockResponse
	Commands  []string
	Uploads   map[string]string
	Files     map[string]string
	Reachable bool
	StreamOut []string
}

// NewMockRunner returns a reachable mock with no scripted responses.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		HostName:  "mock.example.com",
		Uploads:   map[string]string{},
		Files:     map[string]string{},
		Reachable: true,
	}
}

// Respond appends a scripted response.
func (m *MockRunner) Respond(match, stdout string, exitCode int) *MockRunner {
	m.Responses = append(m.Responses, MockResponse{Match: match, Stdout: stdout, ExitCode: exitCode})
	return m
}

// RespondErr appends a scripted transport failure.
func (m *MockRunner) RespondErr(match string, err error) *MockRunner {
	m.Responses = append(m.Responses, MockResponse{Match: match, Err: err})
	return m
}

func (m *MockRunner) lookup(cmd string) *MockResponse {
	for i := range m.Responses {
		if strings.Contains(cmd, m.Responses[i].Match) {
			return &m.Responses[i]
		}
	}
	return nil
}

// Ran reports whether any recorded command contains fragment.
func (m *MockRunner) Ran(fragment string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Commands {
		if strings.Contains(c, fragment) {
			return true
		}
	}
	return false
}

func (m *MockRunner) Run(cmd string, _ time.Duration) (*RunResult, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, cmd)
	resp := m.lookup(cmd)
	m.mu.Unlock()

	if resp == nil {
		return &RunResult{}, nil
	}
	if resp.Err != nil {
		return nil, &ExecError{Host: m.HostName, Cmd: cmd, Err: resp.Err}
	}
	return &RunResult{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}, nil
}

func (m *MockRunner) RunChecked(cmd string, timeout time.Duration) (string, error) {
	result, err := m.Run(cmd, timeout)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", &ExecError{Host: m.HostName, Cmd: cmd, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	return result.Stdout, nil
}

func (m *MockRunner) UploadString(content, remotePath string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uploads[remotePath] = content
	m.Files[remotePath] = content
	return nil
}

func (m *MockRunner) Upload(localPath, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uploads[remotePath] = "local:" + localPath
	return nil
}

func (m *MockRunner) Download(remotePath, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = append(m.Commands, "download "+remotePath+" "+localPath)
	return nil
}

func (m *MockRunner) ReadRemoteFile(remotePath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if content, ok := m.Files[remotePath]; ok {
		return content, nil
	}
	return "", &ExecError{Host: m.HostName, Cmd: "cat " + remotePath, ExitCode: 1, Stderr: "No such file or directory"}
}

func (m *MockRunner) ExecStream(cmd string) (*Stream, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, cmd)
	out := append([]string(nil), m.StreamOut...)
	m.mu.Unlock()

	lines := make(chan string, len(out))
	for _, l := range out {
		lines <- l
	}
	close(lines)
	return &Stream{Lines: lines}, nil
}

func (m *MockRunner) TestConnection() bool { return m.Reachable }

func (m *MockRunner) Host() string { return m.HostName }
