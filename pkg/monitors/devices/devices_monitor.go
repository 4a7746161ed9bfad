package devices

import (
	"context"
	"fmt"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/rs/zerolog"
)

const pingAttempts = 2

// Config holds configuration for the critical device availability check.
type Config struct {
	Gateway string
	// CriticalTypes are the scan device types treated as infrastructure.
	CriticalTypes []string
}

// Check pings infrastructure devices found in the latest network scan.
type Check struct {
	*base.BaseMonitor
	prober prober.Prober
	scans  snapshot.NetworkSource
	config Config
}

type device struct {
	name  string
	dtype string
}

// NewCheck creates a new critical device availability check.
func NewCheck(p prober.Prober, scans snapshot.NetworkSource, cfg Config, logger zerolog.Logger) *Check {
	return &Check{
		BaseMonitor: base.NewBaseMonitor("device_availability", logger),
		prober:      p,
		scans:       scans,
		config:      cfg,
	}
}

// Run executes the device availability logic.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running critical device check...")

	critical := c.criticalDevices()

	var alerts []alert.Alert
	errored, completed := 0, 0
	timedOut := false
	for _, ip := range snapshot.SortedIPs(critical) {
		dev := critical[ip]
		received, err := c.prober.Ping(ctx, ip, pingAttempts)
		if ctx.Err() != nil {
			// Devices already found offline are still reported.
			timedOut = true
			c.Logger().Warn().Int("completed", completed).Int("devices", len(critical)).Msg("Device check ran out of time.")
			break
		}
		completed++
		if err != nil {
			errored++
			c.Logger().Warn().Err(err).Str("host", ip).Msg("Could not ping device.")
			continue
		}
		if received > 0 {
			continue
		}
		c.Logger().Warn().Str("host", ip).Str("name", dev.name).Msg("Critical device offline.")
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierHigh,
			Category: "device_offline",
			Title:    fmt.Sprintf("Offline: %s (%s)", dev.name, ip),
			Detail:   fmt.Sprintf("%s device not responding to ping", dev.dtype),
			Host:     ip,
		})
	}

	stats := alert.NewStats(alert.WorstStatus(alerts)).
		Set("critical_total", len(critical)).
		Set("offline", len(alerts))
	if errored > 0 {
		stats = stats.Set("errors", errored)
	}
	if scan, _ := c.scans.Network(); scan == nil {
		stats = stats.WithNote("no network scan, gateway only")
	}
	if timedOut {
		stats = stats.Set("completed", completed).WithNote("timed_out")
		if stats.Status == alert.StatusOK {
			stats.Status = alert.StatusWarning
		}
	}
	return alerts, stats, nil
}

func (c *Check) criticalDevices() map[string]device {
	types := map[string]bool{}
	for _, t := range c.config.CriticalTypes {
		types[t] = true
	}

	critical := map[string]device{}
	if scan, _ := c.scans.Network(); scan != nil {
		for ip, h := range scan.Hosts {
			if types[h.DeviceType] {
				critical[ip] = device{name: h.Name(ip), dtype: h.DeviceType}
			}
		}
	}
	if _, ok := critical[c.config.Gateway]; !ok && c.config.Gateway != "" {
		critical[c.config.Gateway] = device{name: "Gateway", dtype: "network"}
	}
	return critical
}
