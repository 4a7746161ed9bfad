package servicechange

import (
	"context"
	"fmt"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/rs/zerolog"
)

// Check reports fingerprint and HTTP Server header drift between the two
// most recent service-fingerprint scans.
type Check struct {
	*base.BaseMonitor
	scans snapshot.EnumSource
}

type change struct {
	ip, before, after string
}

// NewCheck creates a new service change check.
func NewCheck(scans snapshot.EnumSource, logger zerolog.Logger) *Check {
	return &Check{
		BaseMonitor: base.NewBaseMonitor("service_changes", logger),
		scans:       scans,
	}
}

// Run executes the service change logic.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running service change check...")

	curr, prev := c.scans.Enum()
	if curr == nil || prev == nil {
		return nil, alert.NewStats(alert.StatusOK).WithNote("need 2+ enum runs"), nil
	}

	var changes []change
	for _, ip := range snapshot.SortedIPs(curr.Hosts) {
		ph, ok := prev.Hosts[ip]
		if !ok {
			continue
		}
		changes = append(changes, diffHost(ip, curr.Hosts[ip], ph)...)
	}

	alerts := make([]alert.Alert, 0, len(changes))
	for _, ch := range changes {
		c.Logger().Info().Str("host", ch.ip).Str("before", ch.before).Str("after", ch.after).Msg("Service changed.")
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierMedium,
			Category: "service_change",
			Title:    fmt.Sprintf("Service change: %s", ch.ip),
			Detail:   fmt.Sprintf("%s → %s", ch.before, ch.after),
			Host:     ch.ip,
		})
	}

	stats := alert.NewStats(alert.WorstStatus(alerts)).Set("changes", len(changes))
	return alerts, stats, nil
}

// diffHost compares one host. Empty values on either side are not changes:
// the tool simply did not observe them.
func diffHost(ip string, curr, prev snapshot.EnumHost) []change {
	var changes []change
	if curr.Fingerprint != "" && prev.Fingerprint != "" && curr.Fingerprint != prev.Fingerprint {
		changes = append(changes, change{ip: ip, before: prev.Fingerprint, after: curr.Fingerprint})
	}

	prevServers := map[int]string{}
	for _, h := range prev.HTTP {
		if h.Server != "" {
			prevServers[h.Port] = h.Server
		}
	}
	for _, h := range curr.HTTP {
		before, ok := prevServers[h.Port]
		if !ok || h.Server == "" || h.Server == before {
			continue
		}
		changes = append(changes, change{
			ip:     ip,
			before: fmt.Sprintf("HTTP/%d: %s", h.Port, before),
			after:  fmt.Sprintf("HTTP/%d: %s", h.Port, h.Server),
		})
	}
	return changes
}
