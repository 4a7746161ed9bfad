package vulndelta

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/rs/zerolog"
)

const (
	riskSpike       = 10.0
	riskIncrease    = 5.0
	mediumExamples  = 5
	detailMaxLength = 100
)

// Check compares the two most recent vulnerability scans.
type Check struct {
	*base.BaseMonitor
	scans snapshot.VulnSource
}

type newFinding struct {
	ip      string
	name    string
	finding snapshot.Finding
}

// NewCheck creates a new vulnerability delta check.
func NewCheck(scans snapshot.VulnSource, logger zerolog.Logger) *Check {
	return &Check{
		BaseMonitor: base.NewBaseMonitor("vuln_deltas", logger),
		scans:       scans,
	}
}

// Run executes the vulnerability delta logic.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running vulnerability delta check...")

	curr, prev := c.scans.Vuln()
	if curr == nil {
		return nil, alert.NewStats(alert.StatusOK).WithNote("no vulnerability scan"), nil
	}
	if prev == nil {
		return nil, alert.NewStats(alert.StatusOK).WithNote("first vuln scan, no comparison"), nil
	}

	var newFindings []newFinding
	resolved, resolvedHosts := 0, 0
	for _, ip := range snapshot.SortedIPs(curr.Hosts) {
		h := curr.Hosts[ip]
		ph := prev.Hosts[ip]
		currKeys := findingKeys(h.Findings)
		prevKeys := findingKeys(ph.Findings)

		for _, f := range h.Findings {
			if !prevKeys[f.Key()] {
				newFindings = append(newFindings, newFinding{ip: ip, name: h.DisplayName(ip), finding: f})
			}
		}
		for _, f := range ph.Findings {
			if !currKeys[f.Key()] {
				resolved++
			}
		}
	}
	for ip, ph := range prev.Hosts {
		if _, still := curr.Hosts[ip]; !still && ph.FindingCount > 0 {
			resolvedHosts++
			resolved += ph.FindingCount
		}
	}

	bySeverity := map[string][]newFinding{}
	for _, nf := range newFindings {
		sev := strings.ToLower(nf.finding.Severity)
		bySeverity[sev] = append(bySeverity[sev], nf)
	}

	var alerts []alert.Alert
	for _, nf := range bySeverity["critical"] {
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierCritical,
			Category: "vuln_new",
			Title:    fmt.Sprintf("Critical vuln: %s on %s", typeOf(nf.finding), nf.name),
			Detail:   fmt.Sprintf("%s: %s", nf.ip, alert.Truncate(nf.finding.Detail, detailMaxLength)),
			Host:     nf.ip,
		})
	}
	for _, nf := range bySeverity["high"] {
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierHigh,
			Category: "vuln_new",
			Title:    fmt.Sprintf("New high vuln: %s on %s", typeOf(nf.finding), nf.name),
			Detail:   fmt.Sprintf("%s: %s", nf.ip, alert.Truncate(nf.finding.Detail, detailMaxLength)),
			Host:     nf.ip,
		})
	}
	if medium := bySeverity["medium"]; len(medium) > 0 {
		alerts = append(alerts, aggregateMedium(medium))
	}

	delta := math.Round((curr.Stats.AvgRiskScore-prev.Stats.AvgRiskScore)*10) / 10
	if a, ok := riskAlert(prev.Stats.AvgRiskScore, curr.Stats.AvgRiskScore, delta); ok {
		alerts = append(alerts, a)
	}

	c.Logger().Info().
		Int("new", len(newFindings)).
		Int("resolved", resolved).
		Float64("risk_delta", delta).
		Msg("Vulnerability delta computed.")

	stats := alert.NewStats(alert.WorstStatus(alerts)).
		Set("new_total", len(newFindings)).
		Set("new_critical", len(bySeverity["critical"])).
		Set("new_high", len(bySeverity["high"])).
		Set("new_medium", len(bySeverity["medium"])).
		Set("resolved", resolved).
		Set("resolved_hosts", resolvedHosts).
		Set("curr_total", curr.Stats.TotalFindings).
		Set("prev_total", prev.Stats.TotalFindings).
		Set("risk_delta", delta)
	return alerts, stats, nil
}

// aggregateMedium folds all new medium findings into one alert so a noisy
// scan cannot flood the channel.
func aggregateMedium(medium []newFinding) alert.Alert {
	hosts := map[string]bool{}
	examples := make([]string, 0, mediumExamples)
	for i, nf := range medium {
		hosts[nf.ip] = true
		if i < mediumExamples {
			examples = append(examples, fmt.Sprintf("%s:%s", nf.ip, typeOf(nf.finding)))
		}
	}
	return alert.Alert{
		Tier:     alert.TierMedium,
		Category: "vuln_new",
		Title:    fmt.Sprintf("%d new medium vuln(s) on %d host(s)", len(medium), len(hosts)),
		Detail:   strings.Join(examples, "; "),
	}
}

// riskAlert grades a rise of the network-wide average risk score.
func riskAlert(prev, curr, delta float64) (alert.Alert, bool) {
	movement := fmt.Sprintf("%s→%s (▲%s)", alert.FormatNumber(prev), alert.FormatNumber(curr), alert.FormatNumber(delta))
	switch {
	case delta >= riskSpike:
		return alert.Alert{
			Tier:     alert.TierHigh,
			Category: "risk_spike",
			Title:    "Risk spike: " + movement,
			Detail:   "Network-wide average risk jumped significantly",
		}, true
	case delta >= riskIncrease:
		return alert.Alert{
			Tier:     alert.TierMedium,
			Category: "risk_increase",
			Title:    "Risk up: " + movement,
			Detail:   "Network average risk increased",
		}, true
	default:
		return alert.Alert{}, false
	}
}

func findingKeys(findings []snapshot.Finding) map[string]bool {
	keys := make(map[string]bool, len(findings))
	for _, f := range findings {
		keys[f.Key()] = true
	}
	return keys
}

func typeOf(f snapshot.Finding) string {
	if f.Type == "" {
		return "?"
	}
	return f.Type
}
