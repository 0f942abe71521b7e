package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/LBVDSEC/telecat/internal/hardware"
	"github.com/LBVDSEC/telecat/internal/hashcat"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

// DeviceReport is one device's share of the last status line
type DeviceReport struct {
	Index           int      `json:"index"`
	Name            string   `json:"name,omitempty"`
	HashesPerSecond float64  `json:"hashes_per_second"`
	ExecRuntimeMs   *float64 `json:"exec_runtime_ms,omitempty"`
	Temperature     *int64   `json:"temperature,omitempty"`
}

// Report is a point-in-time view of the active session
type Report struct {
	Info
	State           string                 `json:"state"`
	Started         bool                   `json:"started"`
	Paused          bool                   `json:"paused"`
	PID             int                    `json:"pid"`
	Elapsed         time.Duration          `json:"elapsed"`
	Status          string                 `json:"status,omitempty"`
	Progress        hashcat.Pair           `json:"progress"`
	RecoveredHashes hashcat.Pair           `json:"recovered_hashes"`
	RecoveredSalts  hashcat.Pair           `json:"recovered_salts"`
	TotalSpeed      float64                `json:"total_speed"`
	Devices         []DeviceReport         `json:"devices"`
	Process         *hardware.ProcessStats `json:"process,omitempty"`
	Snapshot        hashcat.Snapshot       `json:"snapshot"`
}

func (m *Manager) report(s *session) Report {
	c := s.controller
	snap := c.Snapshot()

	r := Report{
		Info:     s.info,
		State:    c.State().String(),
		Started:  c.HasStarted(),
		Paused:   c.IsPaused(),
		PID:      c.PID(),
		Snapshot: snap,
	}
	if started := c.StartedAt(); !started.IsZero() {
		r.Elapsed = time.Since(started).Truncate(time.Second)
	}
	if status, ok := snap.Status(); ok {
		r.Status = status.String()
	}
	r.Progress, _ = snap.Progress()
	r.RecoveredHashes, _ = snap.RecoveredHashes()
	r.RecoveredSalts, _ = snap.RecoveredSalts()
	r.TotalSpeed = snap.TotalSpeed()

	runtimes := snap.ExecRuntimes()
	temps := snap.Temperatures()
	for i, speed := range snap.Speeds() {
		d := DeviceReport{Index: i, HashesPerSecond: speed.HashesPerSecond()}
		if i < len(s.devices) {
			d.Name = s.devices[i]
		}
		if i < len(runtimes) {
			d.ExecRuntimeMs = &runtimes[i]
		}
		// hashcat reports -1 when a device has no sensor
		if i < len(temps) && temps[i] >= 0 {
			d.Temperature = &temps[i]
		}
		r.Devices = append(r.Devices, d)
	}

	if r.PID > 0 && m.sample != nil {
		stats, err := m.sample(r.PID)
		if err != nil {
			debug.Debug("Failed to sample hashcat process %d: %v", r.PID, err)
		} else {
			r.Process = &stats
		}
	}
	return r
}

// String renders the report for a terminal
func (r Report) String() string {
	var b strings.Builder

	status := r.Status
	if status == "" {
		status = "Waiting for first status"
	}
	if r.Paused {
		status += " (paused)"
	}
	fmt.Fprintf(&b, "Session:          %s\n", r.ID)
	fmt.Fprintf(&b, "Current Status:   %s\n", status)
	fmt.Fprintf(&b, "Elapsed:          %s\n", r.Elapsed)
	fmt.Fprintf(&b, "Progress:         %.2f%% (%d/%d)\n", r.Progress.Percent(), r.Progress.Current, r.Progress.Total)
	fmt.Fprintf(&b, "Recovered Hashes: %d/%d\n", r.RecoveredHashes.Current, r.RecoveredHashes.Total)
	fmt.Fprintf(&b, "Recovered Salts:  %d/%d\n", r.RecoveredSalts.Current, r.RecoveredSalts.Total)
	fmt.Fprintf(&b, "Total Speed:      %s\n", FormatSpeed(r.TotalSpeed))

	for _, d := range r.Devices {
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("Device #%d", d.Index+1)
		}
		line := fmt.Sprintf("  %s: %s", name, FormatSpeed(d.HashesPerSecond))
		if d.ExecRuntimeMs != nil {
			line += fmt.Sprintf(" exec %.2fms", *d.ExecRuntimeMs)
		}
		if d.Temperature != nil {
			line += fmt.Sprintf(" temp %dc", *d.Temperature)
		}
		b.WriteString(line + "\n")
	}

	if r.Process != nil {
		fmt.Fprintf(&b, "Process:          pid %d cpu %.1f%% rss %d MB threads %d\n",
			r.Process.PID, r.Process.CPUPercent, r.Process.RSSBytes/(1024*1024), r.Process.Threads)
	}
	fmt.Fprintf(&b, "Command Line:     %s", r.Command)
	return b.String()
}

// FormatSpeed renders a hash rate with a metric unit, e.g. "18.79 MH/s"
func FormatSpeed(hps float64) string {
	units := []string{"H/s", "kH/s", "MH/s", "GH/s", "TH/s", "PH/s"}
	i := 0
	for hps >= 1000 && i < len(units)-1 {
		hps /= 1000
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f %s", hps, units[i])
	}
	return fmt.Sprintf("%.2f %s", hps, units[i])
}
