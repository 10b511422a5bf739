package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"infrakt.dev/remote"
	"infrakt.dev/store"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		services []Service
		expected store.AppStatus
	}{
		{name: "no records", services: nil, expected: store.AppStopped},
		{
			name:     "all running",
			services: []Service{{State: "running"}, {State: "running"}},
			expected: store.AppRunning,
		},
		{
			name:     "any restarting wins",
			services: []Service{{State: "running"}, {State: "restarting"}},
			expected: store.AppRestarting,
		},
		{
			name:     "partial is error",
			services: []Service{{State: "running"}, {State: "exited"}},
			expected: store.AppError,
		},
		{
			name:     "all exited",
			services: []Service{{State: "exited"}, {State: "exited"}},
			expected: store.AppStopped,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusOf(tt.services))
		})
	}
}

func TestObserveParsesNDJSON(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Respond("docker compose ps --format json",
		`{"Name":"infrakt-api","Service":"api","State":"running","Status":"Up 2 hours","Image":"nginx:1.25","Health":"healthy"}
{"Name":"infrakt-api-worker","Service":"worker","State":"exited","Status":"Exited (1)","Image":"nginx:1.25"}
not json at all
`, 0)

	services := Observe(runner, "api")
	assert.Len(t, services, 2)
	assert.Equal(t, "api", services[0].Name)
	assert.Equal(t, "running", services[0].State)
	assert.Equal(t, "healthy", services[0].Health)
	assert.Equal(t, store.AppError, StatusOf(services))
	assert.True(t, runner.Ran("cd '/opt/infrakt/apps/api'"))
}

func TestObserveCommandFailureIsStopped(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Respond("docker compose ps", "", 1)
	assert.Equal(t, store.AppStopped, Reconcile(runner, "api"))
}

func TestCheckHTTP(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Respond("curl -s -o /dev/null", "200 0.0432", 0)

	h := CheckHTTP(runner, 8001, "/healthz")
	assert.True(t, h.Healthy)
	assert.Equal(t, 200, h.StatusCode)
	assert.InDelta(t, 43.2, h.ResponseTimeMS, 0.001)
	assert.True(t, runner.Ran("http://127.0.0.1:8001/healthz"))
}

func TestCheckHTTPUnhealthyStatuses(t *testing.T) {
	for _, out := range []string{"500 0.010", "000 0.000", "404 0.002"} {
		runner := remote.NewMockRunner()
		runner.Respond("curl", out, 0)
		assert.False(t, CheckHTTP(runner, 8001, "/").Healthy, out)
	}
}

func TestCheckHTTPCurlFailure(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Respond("curl", "", 7)
	assert.False(t, CheckHTTP(runner, 8001, "/").Healthy)
}
