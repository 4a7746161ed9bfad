package digest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 7, 5, 0, 0, time.UTC)

func TestEmptyDigest(t *testing.T) {
	assert.Equal(t, "", Build(nil, nil, scheduler.ModeFull, now, Options{}))
}

func TestFullDigest(t *testing.T) {
	actionable := []alert.Alert{
		{Tier: alert.TierMedium, Category: "service_change", Title: "Service change: 192.168.1.20", Detail: "nginx → apache"},
		{Tier: alert.TierCritical, Category: "arp_spoof", Title: "ARP spoof: 192.168.1.254", Detail: "MAC changed"},
		{Tier: alert.TierHigh, Category: "risky_port", Title: "New RDP (3389/tcp) on desktop", Detail: "192.168.1.50: dangerous service newly opened"},
	}
	stats := map[string]alert.CheckStats{
		"arp_integrity": alert.NewStats(alert.StatusCritical),
		"dns_integrity": alert.NewStats(alert.StatusOK),
		"gateway":       alert.NewStats(alert.StatusOK),
		"rogue_dhcp":    alert.NewStats(alert.StatusSkip),
		"vuln_deltas":   alert.NewStats(alert.StatusOK).Set("curr_total", 42).Set("new_total", 3).Set("resolved", 5),
	}

	msg := Build(actionable, stats, scheduler.ModeFull, now, Options{DashboardURL: "http://nas/netscan/"})
	expected := strings.Join([]string{
		"🛡️ WATCHDOG — 10 Mar 07:05",
		"",
		"🔴 CRITICAL",
		"• ARP spoof: 192.168.1.254",
		"  MAC changed",
		"",
		"🟠 HIGH",
		"• New RDP (3389/tcp) on desktop",
		"  192.168.1.50: dangerous service newly opened",
		"",
		"🟡 CHANGES",
		"• Service change: 192.168.1.20",
		"",
		"ARP:⚠️ · DNS:✅ · GW:✅ · DHCP:—",
		"📊 Vulns: 42 (+3/−5)",
		"",
		"🔗 http://nas/netscan/",
	}, "\n")
	assert.Equal(t, expected, msg)
}

func TestLiveHeaderAndMissingStats(t *testing.T) {
	msg := Build([]alert.Alert{{Tier: alert.TierHigh, Title: "Internet unreachable"}}, nil, scheduler.ModeLive, now, Options{})
	assert.True(t, strings.HasPrefix(msg, "⚠️ WATCHDOG LIVE — 10 Mar 07:05\n\n"))
	assert.Contains(t, msg, "ARP:— · DNS:— · GW:— · DHCP:—")
	assert.NotContains(t, msg, "📊")
	assert.NotContains(t, msg, "🔗")
}

func TestOverflowPerTier(t *testing.T) {
	var actionable []alert.Alert
	for i := 0; i < 9; i++ {
		actionable = append(actionable, alert.Alert{Tier: alert.TierHigh, Title: fmt.Sprintf("Offline: host%d", i)})
	}
	msg := Build(actionable, nil, scheduler.ModeFull, now, Options{})
	assert.Equal(t, 6, strings.Count(msg, "• Offline"))
	assert.Contains(t, msg, "• Offline: host5\n  …+3 more\n")
	assert.NotContains(t, msg, "host6")
}

func TestDetailIsCut(t *testing.T) {
	detail := strings.Repeat("x", 120)
	msg := Build([]alert.Alert{{Tier: alert.TierCritical, Title: "t", Detail: detail}}, nil, scheduler.ModeFull, now, Options{})
	assert.Contains(t, msg, "  "+strings.Repeat("x", 90)+"\n")
	assert.NotContains(t, msg, strings.Repeat("x", 91))
}

func TestHardTruncation(t *testing.T) {
	var actionable []alert.Alert
	for _, tier := range alert.Tiers {
		for i := 0; i < 6; i++ {
			actionable = append(actionable, alert.Alert{Tier: tier, Title: strings.Repeat("é", 80), Detail: strings.Repeat("d", 90)})
		}
	}
	msg := Build(actionable, nil, scheduler.ModeFull, now, Options{})
	assert.True(t, strings.HasSuffix(msg, "\n…(truncated)"))
	assert.Equal(t, 1450+len([]rune("\n…(truncated)")), len([]rune(msg)))
}

func TestTinyMaxLengthIsRaised(t *testing.T) {
	actionable := []alert.Alert{{Tier: alert.TierHigh, Title: strings.Repeat("x", 200), Detail: "d"}}

	for _, limit := range []int{1, 13, 50, 99} {
		var msg string
		require.NotPanics(t, func() {
			msg = Build(actionable, nil, scheduler.ModeFull, now, Options{MaxLength: limit})
		})
		assert.True(t, strings.HasSuffix(msg, "\n…(truncated)"))
		assert.Equal(t, MinLength-50+len([]rune("\n…(truncated)")), len([]rune(msg)))
	}
}
