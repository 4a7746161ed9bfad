package riskyports

import (
	"context"
	"fmt"
	"sort"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/rs/zerolog"
)

// RiskyPorts maps historically dangerous ports to the service they expose.
var RiskyPorts = map[int]string{
	21: "FTP", 23: "Telnet", 25: "SMTP-relay", 445: "SMB",
	1433: "MSSQL", 1521: "Oracle", 2049: "NFS", 3306: "MySQL",
	3389: "RDP", 5432: "PostgreSQL", 5900: "VNC", 6379: "Redis",
	9200: "Elasticsearch", 11211: "Memcached", 27017: "MongoDB",
}

// Check reports risky ports opened since the previous network scan.
type Check struct {
	*base.BaseMonitor
	scans snapshot.NetworkSource
}

// NewCheck creates a new risky port check.
func NewCheck(scans snapshot.NetworkSource, logger zerolog.Logger) *Check {
	return &Check{
		BaseMonitor: base.NewBaseMonitor("risky_ports", logger),
		scans:       scans,
	}
}

// Run executes the risky port logic. A host absent from the previous scan
// has every port counted as new.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running risky port check...")

	curr, prev := c.scans.Network()
	if curr == nil || prev == nil {
		return nil, alert.NewStats(alert.StatusOK).WithNote("need 2+ network scans"), nil
	}

	var alerts []alert.Alert
	for _, ip := range snapshot.SortedIPs(curr.Hosts) {
		h := curr.Hosts[ip]
		before := prev.Hosts[ip].OpenPorts()

		for _, p := range sortedPorts(h.Ports) {
			service, risky := RiskyPorts[p.Port]
			if _, open := before[p.Port]; open || !risky {
				continue
			}
			proto := p.Proto
			if proto == "" {
				proto = "tcp"
			}
			c.Logger().Warn().Str("host", ip).Int("port", p.Port).Str("service", service).Msg("Risky port opened.")
			alerts = append(alerts, alert.Alert{
				Tier:     alert.TierHigh,
				Category: "risky_port",
				Title:    fmt.Sprintf("New %s (%d/%s) on %s", service, p.Port, proto, h.Name(ip)),
				Detail:   fmt.Sprintf("%s: dangerous service newly opened", ip),
				Host:     ip,
			})
		}
	}

	stats := alert.NewStats(alert.WorstStatus(alerts)).Set("risky_new", len(alerts))
	return alerts, stats, nil
}

func sortedPorts(ports []snapshot.Port) []snapshot.Port {
	seen := map[int]bool{}
	out := make([]snapshot.Port, 0, len(ports))
	for _, p := range ports {
		if !seen[p.Port] {
			seen[p.Port] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}
