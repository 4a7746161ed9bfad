package scoretrend

import (
	"context"
	"fmt"
	"math"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/rs/zerolog"
)

const (
	majorDrop     = 10.0
	minorDrop     = 5.0
	majorNewCrit  = 3
	hostDropLimit = 20.0
)

// Check tracks the network security score between the two latest scans.
type Check struct {
	*base.BaseMonitor
	scans snapshot.NetworkSource
}

// NewCheck creates a new score trend check.
func NewCheck(scans snapshot.NetworkSource, logger zerolog.Logger) *Check {
	return &Check{
		BaseMonitor: base.NewBaseMonitor("score_trend", logger),
		scans:       scans,
	}
}

// Run executes the score trend logic.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running score trend check...")

	curr, prev := c.scans.Network()
	if curr == nil || prev == nil {
		return nil, alert.NewStats(alert.StatusOK).WithNote("need 2+ network scans"), nil
	}

	currAvg, prevAvg := curr.Security.AvgScore, prev.Security.AvgScore
	delta := round1(prevAvg - currAvg)
	newCrit := curr.Security.Critical - prev.Security.Critical
	movement := fmt.Sprintf("%s→%s (▼%s)", alert.FormatNumber(prevAvg), alert.FormatNumber(currAvg), alert.FormatNumber(delta))

	var alerts []alert.Alert
	switch {
	case delta >= majorDrop || newCrit >= majorNewCrit:
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierHigh,
			Category: "score_drop",
			Title:    "Security score drop: " + movement,
			Detail:   fmt.Sprintf("%d critical hosts (%+d)", curr.Security.Critical, newCrit),
		})
	case delta >= minorDrop || newCrit >= 1:
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierMedium,
			Category: "score_drop",
			Title:    "Score dipped: " + movement,
			Detail:   fmt.Sprintf("%d critical hosts", curr.Security.Critical),
		})
	}

	for _, ip := range snapshot.SortedIPs(curr.Hosts) {
		ph, ok := prev.Hosts[ip]
		if !ok {
			continue
		}
		h := curr.Hosts[ip]
		ps, cs := ph.Score(), h.Score()
		drop := round1(ps - cs)
		if drop < hostDropLimit {
			continue
		}
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierMedium,
			Category: "host_score_drop",
			Title:    fmt.Sprintf("Score drop on %s: %s→%s", h.ShortName(ip), alert.FormatNumber(ps), alert.FormatNumber(cs)),
			Detail:   fmt.Sprintf("%s security score fell by %s points", ip, alert.FormatNumber(drop)),
			Host:     ip,
		})
	}

	if len(alerts) > 0 {
		c.Logger().Info().Float64("delta", delta).Int("new_critical", newCrit).Int("alerts", len(alerts)).Msg("Security score declined.")
	}

	stats := alert.NewStats(alert.WorstStatus(alerts)).
		Set("curr_avg", currAvg).
		Set("prev_avg", prevAvg).
		Set("delta", delta).
		Set("new_critical_hosts", newCrit)
	return alerts, stats, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
