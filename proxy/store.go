// Package proxy manages traefik dynamic configuration on remote
// hosts. Routes are plain YAML files under the file-provider directory
// so no reload signal is ever needed.
package proxy

import (
	"fmt"
	"net"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"infrakt.dev/common"
	"infrakt.dev/compose"
	"infrakt.dev/config"
	"infrakt.dev/remote"
)

// HostGatewayAlias is the service target used when a route has no
// backing managed container.
const HostGatewayAlias = "host.docker.internal"

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9-]`)

// LookupIP is swapped by tests so AddDomain does not hit DNS.
var LookupIP = net.LookupIP

// Domain is one routed domain as reported by ListDomains.
type Domain struct {
	Name string
	Port int
}

// dynamicConfig mirrors the slice of traefik's dynamic configuration
// the store reads and writes.
type dynamicConfig struct {
	HTTP struct {
		Routers  map[string]router  `yaml:"routers"`
		Services map[string]service `yaml:"services"`
	} `yaml:"http"`
}

type router struct {
	Rule        string    `yaml:"rule"`
	Service     string    `yaml:"service"`
	EntryPoints []string  `yaml:"entryPoints"`
	TLS         *routerTLS `yaml:"tls,omitempty"`
}

type routerTLS struct {
	CertResolver string `yaml:"certResolver"`
}

type service struct {
	LoadBalancer loadBalancer `yaml:"loadBalancer"`
}

type loadBalancer struct {
	Servers []serverURL `yaml:"servers"`
}

type serverURL struct {
	URL string `yaml:"url"`
}

// SanitizeDomain maps a domain to its config filename stem: any rune
// outside [A-Za-z0-9-] becomes '-', then leading and trailing '-' are
// trimmed.
func SanitizeDomain(domain string) string {
	return strings.Trim(sanitizeRe.ReplaceAllString(domain, "-"), "-")
}

func configPath(domain string) string {
	return path.Join(config.RemoteProxyConfDir(), SanitizeDomain(domain)+".yml")
}

// RenderDomainConfig builds the YAML document for one domain. The
// render is deterministic so repeated installs are byte-identical.
func RenderDomainConfig(domain string, port int, appName string) (string, error) {
	if err := compose.ValidateDomain(domain); err != nil {
		return "", err
	}
	if err := compose.ValidatePort(port); err != nil {
		return "", err
	}

	target := HostGatewayAlias
	if appName != "" {
		if err := compose.ValidateAppName(appName); err != nil {
			return "", err
		}
		target = config.ContainerName(appName)
	}

	name := SanitizeDomain(domain)
	var doc dynamicConfig
	doc.HTTP.Routers = map[string]router{
		name: {
			Rule:        fmt.Sprintf("Host(`%s`)", domain),
			Service:     name,
			EntryPoints: []string{"websecure"},
			TLS:         &routerTLS{CertResolver: "letsencrypt"},
		},
		name + "-http": {
			Rule:        fmt.Sprintf("Host(`%s`)", domain),
			Service:     name,
			EntryPoints: []string{"web"},
		},
	}
	doc.HTTP.Services = map[string]service{
		name: {
			LoadBalancer: loadBalancer{
				Servers: []serverURL{{URL: fmt.Sprintf("http://%s:%d", target, port)}},
			},
		},
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", common.Internalf(err, "failed to render proxy config")
	}
	return string(out), nil
}

// AddDomain writes the route file for a domain. Writing the same
// (domain, port, app) again produces the identical file. A DNS miss is
// a warning, never a failure.
func AddDomain(runner remote.Runner, domain string, port int, appName string) error {
	content, err := RenderDomainConfig(domain, port, appName)
	if err != nil {
		return err
	}
	warnUnresolved(runner.Host(), domain)
	if err := runner.UploadString(content, configPath(domain), "644"); err != nil {
		return common.Remotef(err, "failed to install route for %s", domain)
	}
	return nil
}

func warnUnresolved(host, domain string) {
	if strings.HasPrefix(domain, "*.") {
		return
	}
	if _, err := LookupIP(domain); err != nil {
		common.Logger.WithFields(map[string]any{
			"domain": domain,
			"host":   host,
		}).Warn("DNS does not yet resolve - the route will work once it does")
	}
}

// RemoveDomain deletes a route file. Removing a domain that is not
// routed is not an error.
func RemoveDomain(runner remote.Runner, domain string) error {
	cmd := fmt.Sprintf("rm -f %s", remote.Quote(configPath(domain)))
	if _, err := runner.RunChecked(cmd, remote.ProbeTimeout); err != nil {
		return common.Remotef(err, "failed to remove route for %s", domain)
	}
	return nil
}

// ListDomains globs the file-provider directory and extracts the
// routed (domain, port) pairs. Malformed files are skipped.
func ListDomains(runner remote.Runner) ([]Domain, error) {
	cmd := fmt.Sprintf("ls %s/*.yml 2>/dev/null || true", config.RemoteProxyConfDir())
	out, err := runner.RunChecked(cmd, remote.ProbeTimeout)
	if err != nil {
		return nil, common.Remotef(err, "failed to list routes")
	}

	var domains []Domain
	for _, file := range strings.Fields(out) {
		content, err := runner.ReadRemoteFile(file)
		if err != nil {
			continue
		}
		if d, ok := parseDomainConfig(content); ok {
			domains = append(domains, d)
		}
	}
	return domains, nil
}

func parseDomainConfig(content string) (Domain, bool) {
	var doc dynamicConfig
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return Domain{}, false
	}

	var name string
	for _, r := range doc.HTTP.Routers {
		if d, ok := hostFromRule(r.Rule); ok {
			name = d
			break
		}
	}
	if name == "" {
		return Domain{}, false
	}

	for _, s := range doc.HTTP.Services {
		for _, srv := range s.LoadBalancer.Servers {
			if port, ok := portFromURL(srv.URL); ok {
				return Domain{Name: name, Port: port}, true
			}
		}
	}
	return Domain{}, false
}

func hostFromRule(rule string) (string, bool) {
	start := strings.Index(rule, "Host(`")
	if start < 0 {
		return "", false
	}
	rest := rule[start+len("Host(`"):]
	end := strings.Index(rest, "`")
	if end <= 0 {
		return "", false
	}
	return rest[:end], true
}

func portFromURL(raw string) (int, bool) {
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return 0, false
	}
	var port int
	if _, err := fmt.Sscanf(raw[idx+1:], "%d", &port); err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

// ValidateDomainConfig asks the proxy's admin API whether the router
// for a domain has been picked up by the file provider.
func ValidateDomainConfig(runner remote.Runner, domain string) bool {
	name := SanitizeDomain(domain)
	cmd := fmt.Sprintf("curl -s http://127.0.0.1:8080/api/http/routers/%s@file", name)
	out, err := runner.RunChecked(cmd, remote.ProbeTimeout)
	if err != nil {
		return false
	}
	return strings.Contains(out, domain)
}
