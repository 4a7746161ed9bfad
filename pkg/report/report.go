// Package report writes one JSON document per watchdog run and enforces
// report retention.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/jsonfile"
	"github.com/rs/zerolog"
)

const (
	filePrefix = "watchdog-"
	dateLayout = "20060102"

	// DefaultRetention is how long reports are kept.
	DefaultRetention = 30 * 24 * time.Hour
)

// Report is the persisted record of one run. Alerts holds every alert
// before cooldown; AlertCounts counts the actionable ones.
type Report struct {
	Date        string                      `json:"date"`
	RunAt       string                      `json:"run_at"`
	Mode        string                      `json:"mode"`
	Host        string                      `json:"host,omitempty"`
	Alerts      []alert.Alert               `json:"alerts"`
	AlertCounts map[alert.Tier]int          `json:"alert_counts"`
	Checks      map[string]alert.CheckStats `json:"checks"`
	SignalSent  bool                        `json:"signal_sent"`
	Actionable  int                         `json:"actionable"`
}

// New fills the time-derived fields of a report.
func New(now time.Time, mode string) *Report {
	return &Report{
		Date:        now.Format(dateLayout),
		RunAt:       now.Format("2006-01-02T15:04:05"),
		Mode:        mode,
		Alerts:      []alert.Alert{},
		AlertCounts: alert.CountByTier(nil),
		Checks:      map[string]alert.CheckStats{},
	}
}

// Writer stores reports in a single directory.
type Writer struct {
	dir    string
	logger zerolog.Logger
}

// NewWriter creates a report writer for dir.
func NewWriter(dir string, logger zerolog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Ensure creates the report directory. Failure here is fatal for a run.
func (w *Writer) Ensure() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("report directory %s is not writable: %w", w.dir, err)
	}
	return nil
}

// Write stores the report under a timestamped name and returns its path.
func (w *Writer) Write(r *Report, now time.Time) (string, error) {
	path := filepath.Join(w.dir, filePrefix+now.Format("20060102-150405")+".json")
	if err := jsonfile.Save(path, r); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	w.logger.Info().Str("path", path).Msg("Report written")
	return path, nil
}

// Prune deletes reports whose date prefix is older than now minus
// retention. It returns the number of files removed.
func (w *Writer) Prune(now time.Time, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := now.Add(-retention).Format(dateLayout)

	files, err := filepath.Glob(filepath.Join(w.dir, filePrefix+"*.json"))
	if err != nil {
		return 0, err
	}

	var result *multierror.Error
	removed := 0
	for _, f := range files {
		date, _, _ := strings.Cut(strings.TrimPrefix(filepath.Base(f), filePrefix), "-")
		if date >= cutoff {
			continue
		}
		if err := os.Remove(f); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		w.logger.Info().Int("removed", removed).Str("cutoff", cutoff).Msg("Old reports pruned")
	}
	return removed, result.ErrorOrNil()
}
