package proxy

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrakt.dev/remote"
)

func stubDNS(t *testing.T) {
	t.Helper()
	orig := LookupIP
	LookupIP = func(string) ([]net.IP, error) { return []net.IP{net.ParseIP("203.0.113.7")}, nil }
	t.Cleanup(func() { LookupIP = orig })
}

func TestSanitizeDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "api.example.com", expected: "api-example-com"},
		{input: "*.example.com", expected: "example-com"},
		{input: "a.b", expected: "a-b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizeDomain(tt.input))
	}
}

func TestAddDomainIdempotent(t *testing.T) {
	stubDNS(t)
	runner := remote.NewMockRunner()

	require.NoError(t, AddDomain(runner, "api.example.com", 8001, "api"))
	first := runner.Uploads["/opt/infrakt/traefik/conf.d/api-example-com.yml"]
	require.NotEmpty(t, first)

	require.NoError(t, AddDomain(runner, "api.example.com", 8001, "api"))
	second := runner.Uploads["/opt/infrakt/traefik/conf.d/api-example-com.yml"]
	assert.Equal(t, first, second)
}

func TestAddListRoundTrip(t *testing.T) {
	stubDNS(t)
	runner := remote.NewMockRunner()

	require.NoError(t, AddDomain(runner, "api.example.com", 8001, "api"))
	runner.Respond("ls /opt/infrakt/traefik/conf.d/*.yml", "/opt/infrakt/traefik/conf.d/api-example-com.yml\n", 0)

	domains, err := ListDomains(runner)
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "api.example.com", domains[0].Name)
	assert.Equal(t, 8001, domains[0].Port)
}

func TestListSkipsMalformed(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Files["/opt/infrakt/traefik/conf.d/broken.yml"] = "{{{{not yaml"
	runner.Files["/opt/infrakt/traefik/conf.d/empty.yml"] = "http:\n  routers: {}\n"
	runner.Respond("ls /opt/infrakt/traefik/conf.d/*.yml",
		"/opt/infrakt/traefik/conf.d/broken.yml\n/opt/infrakt/traefik/conf.d/empty.yml\n", 0)

	domains, err := ListDomains(runner)
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestRenderDomainConfigTargets(t *testing.T) {
	withApp, err := RenderDomainConfig("api.example.com", 8001, "api")
	require.NoError(t, err)
	assert.Contains(t, withApp, "http://infrakt-api:8001")
	assert.Contains(t, withApp, "Host(`api.example.com`)")
	assert.Contains(t, withApp, "certResolver: letsencrypt")

	withoutApp, err := RenderDomainConfig("api.example.com", 8001, "")
	require.NoError(t, err)
	assert.Contains(t, withoutApp, "http://host.docker.internal:8001")
}

func TestRenderDomainConfigRejectsBadInput(t *testing.T) {
	_, err := RenderDomainConfig("not a domain", 8001, "api")
	assert.Error(t, err)
	_, err = RenderDomainConfig("api.example.com", 0, "api")
	assert.Error(t, err)
	_, err = RenderDomainConfig("api.example.com", 8001, "bad name")
	assert.Error(t, err)
}

func TestRemoveDomainIdempotent(t *testing.T) {
	runner := remote.NewMockRunner()
	require.NoError(t, RemoveDomain(runner, "gone.example.com"))
	assert.True(t, runner.Ran("rm -f '/opt/infrakt/traefik/conf.d/gone-example-com.yml'"))
}

func TestValidateDomainConfig(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Respond("routers/api-example-com@file", `{"rule":"Host(`+"`api.example.com`"+`)"}`, 0)
	assert.True(t, ValidateDomainConfig(runner, "api.example.com"))

	other := remote.NewMockRunner()
	other.Respond("routers/missing-example-com@file", "404 page not found", 0)
	assert.False(t, ValidateDomainConfig(other, "missing.example.com"))
}
