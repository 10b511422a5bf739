// Package reconcile derives app status from what the compose tool on
// the remote host actually reports.
package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"infrakt.dev/config"
	"infrakt.dev/remote"
	"infrakt.dev/store"
)

// Service is one observed compose service.
type Service struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Status string `json:"status"`
	Image  string `json:"image"`
	Health string `json:"health"`
}

// composeRecord matches one NDJSON line of `docker compose ps
// --format json`. Field names differ across compose versions, so both
// spellings are accepted.
type composeRecord struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Status  string `json:"Status"`
	Image   string `json:"Image"`
	Health  string `json:"Health"`
}

// Observe lists the services of an app's compose project. A failing
// command observes as no services.
func Observe(runner remote.Runner, appName string) []Service {
	cmd := fmt.Sprintf("cd %s && docker compose ps --format json", remote.Quote(config.RemoteAppDir(appName)))
	out, err := runner.RunChecked(cmd, remote.ProbeTimeout)
	if err != nil {
		return nil
	}
	return parseComposePS(out)
}

func parseComposePS(out string) []Service {
	var services []Service
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec composeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		name := rec.Service
		if name == "" {
			name = rec.Name
		}
		services = append(services, Service{
			Name:   name,
			State:  strings.ToLower(rec.State),
			Status: rec.Status,
			Image:  rec.Image,
			Health: strings.ToLower(rec.Health),
		})
	}
	return services
}

// StatusOf folds the observed services into one app status.
func StatusOf(services []Service) store.AppStatus {
	if len(services) == 0 {
		return store.AppStopped
	}
	running := 0
	for _, s := range services {
		if s.State == "restarting" {
			return store.AppRestarting
		}
		if s.State == "running" {
			running++
		}
	}
	switch {
	case running == len(services):
		return store.AppRunning
	case running > 0:
		return store.AppError
	default:
		return store.AppStopped
	}
}

// Reconcile observes an app and returns its derived status.
func Reconcile(runner remote.Runner, appName string) store.AppStatus {
	return StatusOf(Observe(runner, appName))
}

// AllRunning reports whether every observed service is in the running
// state. Used by the deploy health gate.
func AllRunning(runner remote.Runner, appName string) bool {
	services := Observe(runner, appName)
	return len(services) > 0 && StatusOf(services) == store.AppRunning
}

// Health is the outcome of an HTTP health probe.
type Health struct {
	Healthy        bool
	StatusCode     int
	ResponseTimeMS float64
}

// CheckHTTP probes http://127.0.0.1:<port><path> from the host itself.
// Healthy means curl exited zero and the status code is in [200, 400).
func CheckHTTP(runner remote.Runner, port int, path string) Health {
	if path == "" {
		path = "/"
	}
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	cmd := fmt.Sprintf("curl -s -o /dev/null -w '%%{http_code} %%{time_total}' --max-time 10 %s", remote.Quote(url))
	result, err := runner.Run(cmd, remote.ProbeTimeout)
	if err != nil || result.ExitCode != 0 {
		return Health{}
	}
	code, seconds, ok := parseCurlTiming(result.Stdout)
	if !ok {
		return Health{}
	}
	ms := float64(int(seconds*10000+0.5)) / 10
	return Health{
		Healthy:        code >= 200 && code < 400,
		StatusCode:     code,
		ResponseTimeMS: ms,
	}
}

func parseCurlTiming(out string) (int, float64, bool) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return 0, 0, false
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, false
	}
	seconds, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return code, seconds, true
}
