// Package remote implements the SSH remote executor: running commands
// with timeouts, file transfer, streaming output, and the universal
// shell-quoting rule applied to every value that crosses the shell
// boundary.
package remote

import "strings"

// Quote wraps s in single quotes for a POSIX shell, escaping embedded
// single quotes with the '\'' sequence. Every interpolated value that
// reaches a remote shell must pass through here.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuoteAll quotes each argument and joins them with spaces.
func QuoteAll(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}
