package servicechange

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

func TestCheckSuite(t *testing.T) {
	testutil.NewCheckSuite(t, NewCheck(&testutil.Snapshots{}, zerolog.Nop())).RunBasicTests()
}

func TestServiceChanges(t *testing.T) {
	prev := &snapshot.EnumScan{Hosts: map[string]snapshot.EnumHost{
		"192.168.1.5": {Fingerprint: "OpenSSH 8.9", HTTP: []snapshot.HTTPInfo{{Port: 80, Server: "nginx/1.22"}, {Port: 8080, Server: "Jetty"}}},
		"192.168.1.6": {Fingerprint: "lighttpd"},
		"192.168.1.7": {Fingerprint: ""},
	}}
	curr := &snapshot.EnumScan{Hosts: map[string]snapshot.EnumHost{
		"192.168.1.5": {Fingerprint: "OpenSSH 9.6", HTTP: []snapshot.HTTPInfo{{Port: 80, Server: "nginx/1.24"}, {Port: 8080, Server: ""}}},
		"192.168.1.6": {Fingerprint: "lighttpd"},
		"192.168.1.7": {Fingerprint: "Dropbear"},
		"192.168.1.8": {Fingerprint: "new host"},
	}}

	alerts, stats, err := NewCheck(&testutil.Snapshots{EnumCurrent: curr, EnumPrevious: prev}, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, alert.TierMedium, a.Tier)
		assert.Equal(t, "service_change", a.Category)
		assert.Equal(t, "Service change: 192.168.1.5", a.Title)
	}
	assert.Equal(t, "OpenSSH 8.9 → OpenSSH 9.6", alerts[0].Detail)
	assert.Equal(t, "HTTP/80: nginx/1.22 → HTTP/80: nginx/1.24", alerts[1].Detail)

	changes, _ := stats.Int("changes")
	assert.Equal(t, 2, changes)
	assert.Equal(t, alert.StatusWarning, stats.Status)
}

func TestNeedsTwoScans(t *testing.T) {
	alerts, stats, err := NewCheck(&testutil.Snapshots{EnumCurrent: &snapshot.EnumScan{}}, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Equal(t, alert.StatusOK, stats.Status)
	assert.Equal(t, "need 2+ enum runs", stats.Note)
}
