// Package state persists cross-run watchdog memory: which alerts were sent
// and when, and a short history of runs.
package state

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/jsonfile"
	"github.com/rs/zerolog/log"
)

// DefaultHistoryLimit bounds the number of run summaries kept.
const DefaultHistoryLimit = 200

// RunSummary is one history entry.
type RunSummary struct {
	Timestamp time.Time          `json:"ts"`
	Mode      string             `json:"mode"`
	Counts    map[alert.Tier]int `json:"counts"`
	Signal    bool               `json:"signal"`
}

// State is the persisted document. Unknown fields are dropped on save.
type State struct {
	SentAlerts map[string]time.Time `json:"sent_alerts"`
	History    []RunSummary         `json:"history"`
	LastRun    *time.Time           `json:"last_run,omitempty"`
	LastMode   string               `json:"last_mode,omitempty"`
}

// New returns an empty state.
func New() *State {
	return &State{SentAlerts: map[string]time.Time{}, History: []RunSummary{}}
}

// RecordSent marks every alert as sent at now.
func (s *State) RecordSent(alerts []alert.Alert, now time.Time) {
	if s.SentAlerts == nil {
		s.SentAlerts = map[string]time.Time{}
	}
	for _, a := range alerts {
		s.SentAlerts[a.Hash()] = now
	}
}

// Prune drops sent-alert entries not newer than now minus maxAge and
// returns how many were removed.
func (s *State) Prune(now time.Time, maxAge time.Duration) int {
	cutoff := now.Add(-maxAge)
	removed := 0
	for k, sentAt := range s.SentAlerts {
		if !sentAt.After(cutoff) {
			delete(s.SentAlerts, k)
			removed++
		}
	}
	return removed
}

// AddHistory prepends a run summary and caps the history at limit entries.
func (s *State) AddHistory(entry RunSummary, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.History = append([]RunSummary{entry}, s.History...)
	if len(s.History) > limit {
		s.History = s.History[:limit]
	}
}

// MarkRun records the time and mode of the latest run.
func (s *State) MarkRun(now time.Time, mode string) {
	s.LastRun = &now
	s.LastMode = mode
}

// Store reads and writes the state document at a fixed path.
type Store struct {
	path     string
	lockPath string
}

// NewStore creates a store. An empty lockPath derives one from path.
func NewStore(path, lockPath string) *Store {
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	return &Store{path: path, lockPath: lockPath}
}

// Path returns the location of the state document.
func (st *Store) Path() string {
	return st.path
}

// Load reads the state. A missing or unreadable document yields an empty
// state; the watchdog never refuses to run because of its own memory.
func (st *Store) Load() *State {
	s := New()
	if err := jsonfile.Load(st.path, s); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", st.path).Msg("State unreadable, starting fresh.")
		}
		return New()
	}
	if s.SentAlerts == nil {
		s.SentAlerts = map[string]time.Time{}
	}
	if s.History == nil {
		s.History = []RunSummary{}
	}
	return s
}

// Save atomically replaces the state document.
func (st *Store) Save(s *State) error {
	if err := jsonfile.Save(st.path, s); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}
