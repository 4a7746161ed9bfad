package vulndelta

import (
	"context"
	"testing"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/lucid-vigil/watchdog/pkg/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, curr, prev *snapshot.VulnScan) ([]alert.Alert, alert.CheckStats) {
	t.Helper()
	alerts, stats, err := NewCheck(&testutil.Snapshots{VulnCurrent: curr, VulnPrevious: prev}, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	return alerts, stats
}

func TestCheckSuite(t *testing.T) {
	testutil.NewCheckSuite(t, NewCheck(&testutil.Snapshots{}, zerolog.Nop())).RunBasicTests()
}

func TestSeverityBucketing(t *testing.T) {
	prev := &snapshot.VulnScan{Hosts: map[string]snapshot.VulnHost{}}
	curr := &snapshot.VulnScan{Hosts: map[string]snapshot.VulnHost{
		"192.168.1.10": {Name: "nas", Findings: []snapshot.Finding{{Type: "smb-rce", Port: "445", CVE: "CVE-2020-0796", Severity: "critical", Detail: "SMBGhost"}}},
		"192.168.1.11": {Name: "cam", Findings: []snapshot.Finding{{Type: "default-creds", Port: "80", Severity: "high", Detail: "admin/admin"}}},
		"192.168.1.12": {Findings: []snapshot.Finding{{Type: "weak-cipher", Port: "443", Severity: "medium"}}},
		"192.168.1.13": {Findings: []snapshot.Finding{{Type: "self-signed", Port: "8443", Severity: "medium"}}},
		"192.168.1.14": {Findings: []snapshot.Finding{{Type: "http-trace", Port: "80", Severity: "medium"}}},
	}}

	alerts, stats := run(t, curr, prev)
	counts := alert.CountByTier(alerts)
	assert.Equal(t, map[alert.Tier]int{alert.TierCritical: 1, alert.TierHigh: 1, alert.TierMedium: 1}, counts)

	assert.Equal(t, "Critical vuln: smb-rce on nas", alerts[0].Title)
	assert.Equal(t, "192.168.1.10: SMBGhost", alerts[0].Detail)
	assert.Equal(t, "New high vuln: default-creds on cam", alerts[1].Title)

	medium := alerts[2]
	assert.Equal(t, "3 new medium vuln(s) on 3 host(s)", medium.Title)
	assert.Equal(t, "192.168.1.12:weak-cipher; 192.168.1.13:self-signed; 192.168.1.14:http-trace", medium.Detail)
	assert.Empty(t, medium.Host)

	assert.Equal(t, alert.StatusCritical, stats.Status)
	newTotal, _ := stats.Int("new_total")
	assert.Equal(t, 5, newTotal)
}

func TestMediumExamplesCapped(t *testing.T) {
	var findings []snapshot.Finding
	for _, typ := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		findings = append(findings, snapshot.Finding{Type: typ, Severity: "medium"})
	}
	curr := &snapshot.VulnScan{Hosts: map[string]snapshot.VulnHost{"10.0.0.1": {Findings: findings}}}

	alerts, _ := run(t, curr, &snapshot.VulnScan{})
	require.Len(t, alerts, 1)
	assert.Equal(t, "7 new medium vuln(s) on 1 host(s)", alerts[0].Title)
	assert.Equal(t, "10.0.0.1:a; 10.0.0.1:b; 10.0.0.1:c; 10.0.0.1:d; 10.0.0.1:e", alerts[0].Detail)
}

func TestExistingFindingsAndResolution(t *testing.T) {
	known := snapshot.Finding{Type: "weak-cipher", Port: "443", Severity: "high"}
	fixed := snapshot.Finding{Type: "telnet", Port: "23", Severity: "high"}
	prev := &snapshot.VulnScan{
		Hosts: map[string]snapshot.VulnHost{
			"10.0.0.1": {Findings: []snapshot.Finding{known, fixed}, FindingCount: 2},
			"10.0.0.2": {Findings: []snapshot.Finding{{Type: "x"}, {Type: "y"}, {Type: "z"}}, FindingCount: 3},
		},
		Stats: snapshot.VulnStats{TotalFindings: 5},
	}
	curr := &snapshot.VulnScan{
		Hosts: map[string]snapshot.VulnHost{"10.0.0.1": {Findings: []snapshot.Finding{known}, FindingCount: 1}},
		Stats: snapshot.VulnStats{TotalFindings: 1},
	}

	alerts, stats := run(t, curr, prev)
	assert.Empty(t, alerts, "resolution is informational")
	resolved, _ := stats.Int("resolved")
	resolvedHosts, _ := stats.Int("resolved_hosts")
	assert.Equal(t, 4, resolved)
	assert.Equal(t, 1, resolvedHosts)
	assert.Equal(t, alert.StatusOK, stats.Status)
}

func TestRiskScoreDelta(t *testing.T) {
	tests := []struct {
		name     string
		prev     float64
		curr     float64
		category string
		tier     alert.Tier
		title    string
	}{
		{"spike", 20, 32.5, "risk_spike", alert.TierHigh, "Risk spike: 20→32.5 (▲12.5)"},
		{"exactly ten", 20, 30, "risk_spike", alert.TierHigh, "Risk spike: 20→30 (▲10)"},
		{"increase", 20, 25, "risk_increase", alert.TierMedium, "Risk up: 20→25 (▲5)"},
		{"small", 20, 24.9, "", "", ""},
		{"improvement", 30, 10, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts, _ := run(t,
				&snapshot.VulnScan{Stats: snapshot.VulnStats{AvgRiskScore: tt.curr}},
				&snapshot.VulnScan{Stats: snapshot.VulnStats{AvgRiskScore: tt.prev}})
			if tt.category == "" {
				assert.Empty(t, alerts)
				return
			}
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.category, alerts[0].Category)
			assert.Equal(t, tt.tier, alerts[0].Tier)
			assert.Equal(t, tt.title, alerts[0].Title)
		})
	}
}

func TestMissingSnapshots(t *testing.T) {
	alerts, stats := run(t, nil, nil)
	assert.Empty(t, alerts)
	assert.Equal(t, alert.StatusOK, stats.Status)
	assert.Equal(t, "no vulnerability scan", stats.Note)

	alerts, stats = run(t, &snapshot.VulnScan{}, nil)
	assert.Empty(t, alerts)
	assert.Equal(t, "first vuln scan, no comparison", stats.Note)
}
