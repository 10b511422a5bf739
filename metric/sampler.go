// Package metric samples host resource usage over SSH on server
// status reads and keeps the time series in the store.
package metric

import (
	"strconv"
	"strings"
	"time"

	"infrakt.dev/common"
	"infrakt.dev/remote"
	"infrakt.dev/store"
)

// Sample is one CPU/memory/disk snapshot. Fields stay nil when the
// corresponding probe fails so a flaky host never poisons the series
// with zeros.
type Sample struct {
	CPUPercent  *float64
	MemPercent  *float64
	DiskPercent *float64
}

const (
	cpuCmd  = `top -bn1 | grep '%Cpu' | awk '{print 100 - $8}'`
	memCmd  = `free | awk '/Mem:/ {printf "%.1f", $3/$2*100}'`
	diskCmd = `df / | awk 'NR==2 {gsub("%",""); print $5}'`
)

// Capture probes the host. Individual probe failures are logged at
// debug and leave the field nil.
func Capture(runner remote.Runner) Sample {
	return Sample{
		CPUPercent:  probe(runner, cpuCmd, "cpu"),
		MemPercent:  probe(runner, memCmd, "memory"),
		DiskPercent: probe(runner, diskCmd, "disk"),
	}
}

func probe(runner remote.Runner, cmd, what string) *float64 {
	out, err := runner.RunChecked(cmd, remote.ProbeTimeout)
	if err != nil {
		common.Logger.WithError(err).WithField("probe", what).Debug("metric probe failed")
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil || v < 0 || v > 100 {
		return nil
	}
	return &v
}

// Record captures a sample and persists it for the server.
func Record(runner remote.Runner, st *store.Store, serverID uint) (Sample, error) {
	s := Capture(runner)
	m := &store.ServerMetric{
		ServerID:    serverID,
		RecordedAt:  time.Now().UTC(),
		CPUPercent:  s.CPUPercent,
		MemPercent:  s.MemPercent,
		DiskPercent: s.DiskPercent,
	}
	if err := st.AddMetric(m); err != nil {
		return s, err
	}
	return s, nil
}
