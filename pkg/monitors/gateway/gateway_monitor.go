package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	cerrors "github.com/lucid-vigil/watchdog/pkg/errors"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/rs/zerolog"
)

// Config holds configuration for the gateway and internet reachability check.
type Config struct {
	Gateway string
	// Anchors are tried in order; the internet counts as up once one replies.
	Anchors []string
}

// Check pings the default gateway and, when it is up, a list of internet anchors.
type Check struct {
	*base.BaseMonitor
	prober prober.Prober
	config Config
}

// NewCheck creates a new gateway check.
func NewCheck(p prober.Prober, cfg Config, logger zerolog.Logger) *Check {
	return &Check{
		BaseMonitor: base.NewBaseMonitor("gateway", logger),
		prober:      p,
		config:      cfg,
	}
}

// Run executes the reachability logic.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running gateway check...")

	received, err := c.prober.Ping(ctx, c.config.Gateway, 1)
	if err != nil {
		return nil, alert.CheckStats{}, cerrors.NewProbeError(c.Name(), "ping gateway", err)
	}
	if received == 0 {
		// Without a gateway the internet probe says nothing new.
		c.Logger().Error().Str("gateway", c.config.Gateway).Msg("Gateway not responding.")
		alerts := []alert.Alert{{
			Tier:     alert.TierCritical,
			Category: "gateway_down",
			Title:    fmt.Sprintf("Gateway unreachable: %s", c.config.Gateway),
			Detail:   "Default gateway not responding to ping",
			Host:     c.config.Gateway,
		}}
		stats := alert.NewStats(alert.StatusCritical).Set("gateway", false).Set("internet", false)
		return alerts, stats, nil
	}

	internet := false
	for _, anchor := range c.config.Anchors {
		received, err := c.prober.Ping(ctx, anchor, 1)
		if ctx.Err() != nil {
			return nil, alert.CheckStats{}, ctx.Err()
		}
		if err != nil {
			c.Logger().Warn().Err(err).Str("anchor", anchor).Msg("Anchor ping failed.")
			continue
		}
		if received > 0 {
			internet = true
			break
		}
	}

	var alerts []alert.Alert
	if !internet {
		c.LogEvent(zerolog.WarnLevel, "Internet anchors not responding.")
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierHigh,
			Category: "internet_down",
			Title:    "Internet unreachable",
			Detail:   fmt.Sprintf("Gateway is up but %s not responding", strings.Join(c.config.Anchors, " and ")),
		})
	}

	stats := alert.NewStats(alert.WorstStatus(alerts)).Set("gateway", true).Set("internet", internet)
	return alerts, stats, nil
}
