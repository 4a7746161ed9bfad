package dns

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/rs/zerolog"
)

// Config holds configuration for the DNS integrity check.
type Config struct {
	// Targets are public domains that must never resolve to private space.
	Targets []string
}

// Check resolves well-known public domains and flags private answers.
type Check struct {
	*base.BaseMonitor
	prober prober.Prober
	config Config
}

// NewCheck creates a new DNS integrity check.
func NewCheck(p prober.Prober, cfg Config, logger zerolog.Logger) *Check {
	return &Check{
		BaseMonitor: base.NewBaseMonitor("dns_integrity", logger),
		prober:      p,
		config:      cfg,
	}
}

// Run executes the DNS integrity logic.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running DNS integrity check...")

	var alerts []alert.Alert
	poisoned, failures := 0, 0

	for _, domain := range c.config.Targets {
		addrs, err := c.prober.Resolve(ctx, domain)
		if ctx.Err() != nil {
			return nil, alert.CheckStats{}, ctx.Err()
		}
		if err != nil {
			failures++
			c.Logger().Warn().Err(err).Str("domain", domain).Msg("DNS lookup failed.")
			alerts = append(alerts, alert.Alert{
				Tier:     alert.TierHigh,
				Category: "dns_failure",
				Title:    fmt.Sprintf("DNS lookup failed: %s", domain),
				Detail:   "Could not resolve: DNS outage or misconfiguration",
			})
			continue
		}

		for _, ip := range addrs {
			if !isPrivate(ip) {
				continue
			}
			poisoned++
			c.Logger().Error().Str("domain", domain).Str("answer", ip).Msg("Public domain resolved to private address.")
			alerts = append(alerts, alert.Alert{
				Tier:     alert.TierCritical,
				Category: "dns_poisoned",
				Title:    fmt.Sprintf("DNS poisoning: %s → %s", domain, ip),
				Detail:   "Public domain resolving to private IP, likely hijack",
			})
		}
	}

	stats := alert.NewStats(alert.WorstStatus(alerts)).
		Set("checked", len(c.config.Targets)).
		Set("issues", poisoned+failures).
		Set("poisoned", poisoned).
		Set("failures", failures)
	return alerts, stats, nil
}

// isPrivate reports whether ip lies in RFC 1918 space.
func isPrivate(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.Unmap().Is4() && addr.IsPrivate()
}
