// Package compose renders the manifests the remote compose tool
// consumes, and validates every identifier that ends up inside one.
package compose

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"infrakt.dev/common"
)

var (
	appNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	branchRe  = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	commitRe  = regexp.MustCompile(`^[0-9a-f]{7,40}$`)
	domainRe  = regexp.MustCompile(`^(\*\.)?([A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,}$`)
)

// LookupHost is swapped by tests so URL validation does not hit DNS.
var LookupHost = net.LookupHost

// ValidateAppName enforces the app-name pattern used throughout
// directory names, container names and router names.
func ValidateAppName(name string) error {
	if !appNameRe.MatchString(name) {
		return common.Validationf("invalid app name %q: must match [A-Za-z0-9][A-Za-z0-9._-]*", name)
	}
	return nil
}

// ValidateBranch enforces the git branch pattern.
func ValidateBranch(branch string) error {
	if !branchRe.MatchString(branch) {
		return common.Validationf("invalid branch %q", branch)
	}
	return nil
}

// ValidateCommit enforces the pinned-commit pattern.
func ValidateCommit(hash string) error {
	if !commitRe.MatchString(hash) {
		return common.Validationf("invalid commit hash %q: expected 7-40 hex characters", hash)
	}
	return nil
}

// ValidateDomain accepts conservative host names with an optional
// wildcard label.
func ValidateDomain(domain string) error {
	if !domainRe.MatchString(domain) {
		return common.Validationf("invalid domain %q", domain)
	}
	return nil
}

// ValidatePort rejects ports outside the TCP range.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return common.Validationf("invalid port %d: must be 1-65535", port)
	}
	return nil
}

// ValidateGitURL accepts only https clone URLs ending in .git whose
// resolved host is a public address. Loopback, link-local and private
// ranges are refused so the control plane can never be pointed at
// itself or its own network.
func ValidateGitURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return common.Validationf("invalid repository URL %q", raw)
	}
	if u.Scheme != "https" {
		return common.Validationf("repository URL must use https, got %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, ".git") {
		return common.Validationf("repository URL must end in .git")
	}
	host := u.Hostname()
	if host == "" {
		return common.Validationf("repository URL has no host")
	}
	if isForbiddenHost(host) {
		return common.Validationf("repository host %q is not allowed", host)
	}
	addrs, err := LookupHost(host)
	if err != nil {
		// Unresolvable hosts fail later at clone time with a clear
		// remote error; validation only blocks hosts known to be bad.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isForbiddenIP(ip) {
			return common.Validationf("repository host %q resolves to a private address", host)
		}
	}
	return nil
}

func isForbiddenHost(host string) bool {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return isForbiddenIP(ip)
	}
	return false
}

func isForbiddenIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() || ip.IsUnspecified()
}

// EnvVarName renders the <APP_UPPER_SNAKE>_PORT prefix for an app
// name: non-alphanumerics become underscores, the rest is upcased.
func EnvVarName(app string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(app) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return fmt.Sprintf("%s_PORT", b.String())
}
