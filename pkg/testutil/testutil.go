// Package testutil holds fakes and fixtures shared by the check tests.
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LogCapture is a helper to capture zerolog output for testing.
type LogCapture struct {
	sync.Mutex
	logs []string
}

func (lc *LogCapture) Write(p []byte) (n int, err error) {
	lc.Lock()
	defer lc.Unlock()
	lc.logs = append(lc.logs, string(p))
	return len(p), nil
}

func (lc *LogCapture) GetLogs() []string {
	lc.Lock()
	defer lc.Unlock()
	return append([]string(nil), lc.logs...)
}

// String joins every captured line.
func (lc *LogCapture) String() string {
	return strings.Join(lc.GetLogs(), "")
}

func (lc *LogCapture) ClearLogs() {
	lc.Lock()
	defer lc.Unlock()
	lc.logs = nil
}

// WriteJSON writes v as JSON under dir/name, creating parent directories.
func WriteJSON(t *testing.T, dir, name string, v interface{}) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// FixedClock returns a clock pinned to t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Runner is the contract every check satisfies.
type Runner interface {
	Name() string
	Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error)
}

// CheckSuite runs the contract tests every check must pass.
type CheckSuite struct {
	t     *testing.T
	check Runner
}

func NewCheckSuite(t *testing.T, check Runner) *CheckSuite {
	return &CheckSuite{t: t, check: check}
}

// RunBasicTests executes standard check tests
func (cs *CheckSuite) RunBasicTests() {
	cs.t.Run("TestCheckName", cs.testCheckName)
	cs.t.Run("TestCheckRun", cs.testCheckRun)
	cs.t.Run("TestCheckTimeout", cs.testCheckTimeout)
}

func (cs *CheckSuite) testCheckName(t *testing.T) {
	name := cs.check.Name()
	assert.NotEmpty(t, name, "Check name should not be empty")
	assert.NotContains(t, name, " ", "Check name should not contain spaces")
}

func (cs *CheckSuite) testCheckRun(t *testing.T) {
	assert.NotPanics(t, func() {
		_, stats, err := cs.check.Run(context.Background())
		if err == nil {
			assert.NotEmpty(t, stats.Status, "Stats must always carry a status")
		}
	}, "Check Run should not panic")
}

func (cs *CheckSuite) testCheckTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, _ = cs.check.Run(ctx)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "Check should respect context timeout")
}
