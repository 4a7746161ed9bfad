package arp

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	cerrors "github.com/lucid-vigil/watchdog/pkg/errors"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/rs/zerolog"
)

// Config holds configuration for the ARP integrity check.
type Config struct {
	// Subnets restricts which neighbor entries are inspected; empty means all.
	Subnets []netip.Prefix
	// DupMACThreshold is the number of IPs one MAC may answer for before it
	// is flagged. Routers legitimately answer for two or three.
	DupMACThreshold int
}

// Check compares the live neighbor table with the MACs recorded by the
// latest network scan.
type Check struct {
	*base.BaseMonitor
	prober prober.Prober
	scans  snapshot.NetworkSource
	config Config
}

// NewCheck creates a new ARP integrity check.
func NewCheck(p prober.Prober, scans snapshot.NetworkSource, cfg Config, logger zerolog.Logger) *Check {
	if cfg.DupMACThreshold <= 0 {
		cfg.DupMACThreshold = 3
	}
	return &Check{
		BaseMonitor: base.NewBaseMonitor("arp_integrity", logger),
		prober:      p,
		scans:       scans,
		config:      cfg,
	}
}

// Run executes the ARP integrity logic.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running ARP integrity check...")

	known := map[string]string{}
	knownMACs := map[string]bool{}
	scan, _ := c.scans.Network()
	if scan != nil {
		for ip, h := range scan.Hosts {
			if mac := h.NormalizedMAC(); mac != "" {
				known[ip] = mac
				knownMACs[mac] = true
			}
		}
	}

	neighbors, err := c.prober.Neighbors(ctx)
	if err != nil {
		return nil, alert.CheckStats{}, cerrors.NewProbeError(c.Name(), "neighbor table", err)
	}

	live := map[string]string{}
	for _, n := range neighbors {
		if n.Usable() && c.inScope(n.IP) {
			live[n.IP] = strings.ToUpper(n.MAC)
		}
	}

	var alerts []alert.Alert
	anomalies := 0
	for _, ip := range snapshot.SortedIPs(live) {
		current := live[ip]
		expected, ok := known[ip]
		if !ok || current == expected {
			continue
		}
		anomalies++

		tier, label := alert.TierCritical, "(unknown MAC, possible ARP spoof)"
		if knownMACs[current] {
			tier, label = alert.TierHigh, "(known device, possible DHCP reassignment)"
		}
		c.Logger().Warn().Str("host", ip).Str("expected", expected).Str("observed", current).Msg("ARP mapping changed.")
		alerts = append(alerts, alert.Alert{
			Tier:     tier,
			Category: "arp_anomaly",
			Title:    fmt.Sprintf("ARP change: %s MAC %s…→%s…", ip, alert.Truncate(expected, 8), alert.Truncate(current, 8)),
			Detail:   fmt.Sprintf("Expected %s, got %s %s", expected, current, label),
			Host:     ip,
		})
	}

	alerts = append(alerts, c.duplicateMACs(live)...)

	stats := alert.NewStats(alert.WorstStatus(alerts)).
		Set("checked", len(live)).
		Set("anomalies", anomalies)
	if scan == nil {
		stats = stats.WithNote("no network scan baseline")
	}
	return alerts, stats, nil
}

func (c *Check) duplicateMACs(live map[string]string) []alert.Alert {
	macIPs := map[string][]string{}
	for ip, mac := range live {
		macIPs[mac] = append(macIPs[mac], ip)
	}

	var alerts []alert.Alert
	for _, mac := range sortedKeys(macIPs) {
		ips := macIPs[mac]
		if len(ips) <= c.config.DupMACThreshold {
			continue
		}
		snapshot.SortIPs(ips)
		shown := ips
		if len(shown) > 6 {
			shown = shown[:6]
		}
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierMedium,
			Category: "arp_dup_mac",
			Title:    fmt.Sprintf("MAC %s… claimed by %d IPs", alert.Truncate(mac, 8), len(ips)),
			Detail:   strings.Join(shown, ", "),
			Host:     ips[0],
		})
	}
	return alerts
}

func (c *Check) inScope(ip string) bool {
	if len(c.config.Subnets) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range c.config.Subnets {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
