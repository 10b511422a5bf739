package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain word", input: "hello", expected: "'hello'"},
		{name: "empty string", input: "", expected: "''"},
		{name: "spaces", input: "two words", expected: "'two words'"},
		{name: "command injection", input: "; rm -rf /", expected: "'; rm -rf /'"},
		{name: "subshell", input: "$(reboot)", expected: "'$(reboot)'"},
		{name: "backticks", input: "`id`", expected: "'`id`'"},
		{name: "single quote", input: "it's", expected: `'it'\''s'`},
		{name: "double ampersand", input: "a && b", expected: "'a && b'"},
		{name: "pipe", input: "a | tee /etc/passwd", expected: "'a | tee /etc/passwd'"},
		{name: "newline", input: "a\nb", expected: "'a\nb'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Quote(tt.input))
		})
	}
}

func TestQuoteAll(t *testing.T) {
	assert.Equal(t, "'a' 'b c' ''", QuoteAll("a", "b c", ""))
}

func TestMockRunnerScripting(t *testing.T) {
	m := NewMockRunner()
	m.Respond("docker ps", "abc123\n", 0)
	m.Respond("failing", "", 1)

	out, err := m.RunChecked("docker ps -a", LifecycleTimeout)
	assert.NoError(t, err)
	assert.Equal(t, "abc123\n", out)

	_, err = m.RunChecked("failing command", ProbeTimeout)
	assert.Error(t, err)
	execErr, ok := err.(*ExecError)
	assert.True(t, ok)
	assert.Equal(t, 1, execErr.ExitCode)

	assert.True(t, m.Ran("docker ps"))
	assert.False(t, m.Ran("never ran"))
}
