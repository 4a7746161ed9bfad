// Package digest renders actionable alerts into one human-readable message.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/scheduler"
)

const (
	DefaultMaxPerTier = 6
	DefaultMaxLength  = 1500
	// MinLength is the shortest message limit honoured. Smaller limits
	// are raised to it so truncation always keeps some content.
	MinLength       = 100
	detailLength    = 90
	truncatedSuffix = "\n…(truncated)"
	truncateMargin  = 50
)

var tierHeadings = map[alert.Tier]string{
	alert.TierCritical: "🔴 CRITICAL",
	alert.TierHigh:     "🟠 HIGH",
	alert.TierMedium:   "🟡 CHANGES",
}

var integrityChecks = []struct{ key, label string }{
	{"arp_integrity", "ARP"},
	{"dns_integrity", "DNS"},
	{"gateway", "GW"},
	{"rogue_dhcp", "DHCP"},
}

// Options tunes the rendered message.
type Options struct {
	DashboardURL string
	MaxPerTier   int
	MaxLength    int
}

// Build renders the digest. It returns an empty string when there is
// nothing actionable.
func Build(actionable []alert.Alert, stats map[string]alert.CheckStats, mode scheduler.Mode, now time.Time, opts Options) string {
	if len(actionable) == 0 {
		return ""
	}
	if opts.MaxPerTier <= 0 {
		opts.MaxPerTier = DefaultMaxPerTier
	}
	switch {
	case opts.MaxLength <= 0:
		opts.MaxLength = DefaultMaxLength
	case opts.MaxLength < MinLength:
		opts.MaxLength = MinLength
	}

	var b strings.Builder
	ts := now.Format("02 Jan 15:04")
	if mode == scheduler.ModeLive {
		fmt.Fprintf(&b, "⚠️ WATCHDOG LIVE — %s\n\n", ts)
	} else {
		fmt.Fprintf(&b, "🛡️ WATCHDOG — %s\n\n", ts)
	}

	buckets := make(map[alert.Tier][]alert.Alert, len(alert.Tiers))
	for _, a := range actionable {
		buckets[a.Tier] = append(buckets[a.Tier], a)
	}

	for _, tier := range alert.Tiers {
		items := buckets[tier]
		if len(items) == 0 {
			continue
		}
		b.WriteString(tierHeadings[tier] + "\n")
		for i, a := range items {
			if i == opts.MaxPerTier {
				fmt.Fprintf(&b, "  …+%d more\n", len(items)-opts.MaxPerTier)
				break
			}
			b.WriteString("• " + a.Title + "\n")
			if a.Detail != "" && tier != alert.TierMedium {
				b.WriteString("  " + alert.Truncate(a.Detail, detailLength) + "\n")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(integrityLine(stats))

	if vs, ok := stats["vuln_deltas"]; ok {
		if total, ok := vs.Int("curr_total"); ok {
			newTotal, _ := vs.Int("new_total")
			resolved, _ := vs.Int("resolved")
			fmt.Fprintf(&b, "\n📊 Vulns: %d (+%d/−%d)", total, newTotal, resolved)
		}
	}

	if opts.DashboardURL != "" {
		b.WriteString("\n\n🔗 " + opts.DashboardURL)
	}

	msg := b.String()
	if len([]rune(msg)) > opts.MaxLength {
		msg = alert.Truncate(msg, opts.MaxLength-truncateMargin) + truncatedSuffix
	}
	return msg
}

func integrityLine(stats map[string]alert.CheckStats) string {
	parts := make([]string, 0, len(integrityChecks))
	for _, c := range integrityChecks {
		icon := "⚠️"
		st, ok := stats[c.key]
		switch {
		case !ok || st.Status == alert.StatusSkip:
			icon = "—"
		case st.Status == alert.StatusOK:
			icon = "✅"
		}
		parts = append(parts, c.label+":"+icon)
	}
	return strings.Join(parts, " · ")
}
