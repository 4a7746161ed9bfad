package arp

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/lucid-vigil/watchdog/pkg/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lan = []netip.Prefix{netip.MustParsePrefix("192.168.0.0/22")}

func knownScan() *snapshot.NetworkScan {
	return &snapshot.NetworkScan{Hosts: map[string]snapshot.Host{
		"192.168.1.10": {MAC: "aa:bb:cc:00:00:10"},
		"192.168.1.20": {MAC: "aa:bb:cc:00:00:20"},
		"192.168.1.30": {MAC: ""},
	}}
}

func neighbor(ip, mac string) prober.Neighbor {
	return prober.Neighbor{IP: ip, MAC: mac, Device: "eth0", State: "REACHABLE"}
}

func TestCheckSuite(t *testing.T) {
	c := NewCheck(&testutil.FakeProber{}, &testutil.Snapshots{}, Config{Subnets: lan}, zerolog.Nop())
	testutil.NewCheckSuite(t, c).RunBasicTests()
}

func TestARPClassification(t *testing.T) {
	tests := []struct {
		name     string
		observed string
		tier     alert.Tier
	}{
		{"MAC of another known device is high", "AA:BB:CC:00:00:20", alert.TierHigh},
		{"unknown MAC is critical", "DE:AD:BE:EF:00:01", alert.TierCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &testutil.FakeProber{NeighborTable: []prober.Neighbor{
				neighbor("192.168.1.10", tt.observed),
				neighbor("192.168.1.20", "AA:BB:CC:00:00:20"),
			}}
			c := NewCheck(fake, &testutil.Snapshots{NetworkCurrent: knownScan()}, Config{Subnets: lan}, zerolog.Nop())

			alerts, stats, err := c.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.tier, alerts[0].Tier)
			assert.Equal(t, "arp_anomaly", alerts[0].Category)
			assert.Equal(t, "192.168.1.10", alerts[0].Host)
			assert.Equal(t, "ARP change: 192.168.1.10 MAC AA:BB:CC…→"+tt.observed[:8]+"…", alerts[0].Title)

			checked, _ := stats.Int("checked")
			anomalies, _ := stats.Int("anomalies")
			assert.Equal(t, 2, checked)
			assert.Equal(t, 1, anomalies)
		})
	}
}

func TestARPMatchingAndOutOfScopeEntries(t *testing.T) {
	fake := &testutil.FakeProber{NeighborTable: []prober.Neighbor{
		neighbor("192.168.1.10", "AA:BB:CC:00:00:10"),
		neighbor("10.8.0.1", "DE:AD:BE:EF:00:01"),
		{IP: "192.168.1.20", MAC: "", State: "FAILED"},
		neighbor("192.168.1.30", "DE:AD:BE:EF:00:02"),
	}}
	c := NewCheck(fake, &testutil.Snapshots{NetworkCurrent: knownScan()}, Config{Subnets: lan}, zerolog.Nop())

	alerts, stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Equal(t, alert.StatusOK, stats.Status)
	checked, _ := stats.Int("checked")
	assert.Equal(t, 2, checked)
}

func TestDuplicateMAC(t *testing.T) {
	router := "00:11:22:33:44:55"
	table := []prober.Neighbor{
		neighbor("192.168.1.1", router),
		neighbor("192.168.1.2", router),
		neighbor("192.168.1.3", router),
	}
	c := NewCheck(&testutil.FakeProber{NeighborTable: table}, &testutil.Snapshots{}, Config{Subnets: lan}, zerolog.Nop())

	alerts, stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts, "three addresses per MAC is normal")
	assert.Equal(t, "no network scan baseline", stats.Note)

	c.prober = &testutil.FakeProber{NeighborTable: append(table, neighbor("192.168.1.4", router))}
	alerts, _, err = c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.TierMedium, alerts[0].Tier)
	assert.Equal(t, "arp_dup_mac", alerts[0].Category)
	assert.Equal(t, "MAC 00:11:22… claimed by 4 IPs", alerts[0].Title)
	assert.Equal(t, "192.168.1.1, 192.168.1.2, 192.168.1.3, 192.168.1.4", alerts[0].Detail)
	assert.Equal(t, "192.168.1.1", alerts[0].Host)
}

func TestNeighborTableFailure(t *testing.T) {
	fake := &testutil.FakeProber{NeighborsErr: errors.New("ip: not found")}
	c := NewCheck(fake, &testutil.Snapshots{}, Config{}, zerolog.Nop())

	_, _, err := c.Run(context.Background())
	assert.Error(t, err)
}
