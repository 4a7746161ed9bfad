package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 5, 0, 7, 0, time.UTC)

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "watchdog")
	w := NewWriter(dir, zerolog.Nop())
	require.NoError(t, w.Ensure())

	r := New(now, "full")
	r.Host = "probe01"
	r.Alerts = []alert.Alert{{Tier: alert.TierHigh, Category: "risky_port", Title: "New RDP (3389/tcp) on desktop", Host: "192.168.1.50"}}
	r.AlertCounts = alert.CountByTier(r.Alerts)
	r.Checks["risky_ports"] = alert.NewStats(alert.StatusWarning).Set("risky_new", 1)
	r.Actionable = 1

	path, err := w.Write(r, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "watchdog-20260310-050007.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "20260310", raw["date"])
	assert.Equal(t, "2026-03-10T05:00:07", raw["run_at"])
	assert.Equal(t, "full", raw["mode"])
	assert.Equal(t, false, raw["signal_sent"])
	assert.Equal(t, float64(1), raw["actionable"])
	assert.Equal(t, map[string]any{"critical": float64(0), "high": float64(1), "medium": float64(0)}, raw["alert_counts"])
	checks := raw["checks"].(map[string]any)
	assert.Equal(t, "warning", checks["risky_ports"].(map[string]any)["status"])
}

func TestPruneByDatePrefix(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"watchdog-20260101-050000.json",
		"watchdog-20260207-235959.json",
		"watchdog-20260208-000100.json",
		"watchdog-20260310-050000.json",
		"other-20200101.json",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}

	removed, err := NewWriter(dir, zerolog.Nop()).Prune(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"other-20200101.json", "watchdog-20260208-000100.json", "watchdog-20260310-050000.json"}, names)
}

func TestEnsureFailsOnFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	assert.Error(t, NewWriter(filepath.Join(blocker, "reports"), zerolog.Nop()).Ensure())
}
