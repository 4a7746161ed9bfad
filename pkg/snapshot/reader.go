// Package snapshot loads the dated JSON documents produced by the external
// network, vulnerability and service-fingerprint scanners.
package snapshot

import (
	"path/filepath"
	"sort"

	"github.com/lucid-vigil/watchdog/pkg/jsonfile"
	"github.com/rs/zerolog/log"
)

// LatestTwo returns the two most recent documents matching pattern, ordered
// by file name. A missing or malformed file yields nil for that position.
func LatestTwo[T any](pattern string) (current, previous *T) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("Invalid snapshot pattern.")
		return nil, nil
	}
	// Names embed the date, so lexical order is chronological.
	sort.Strings(files)

	if n := len(files); n >= 1 {
		current = load[T](files[n-1])
		if n >= 2 {
			previous = load[T](files[n-2])
		}
	}
	return current, previous
}

func load[T any](path string) *T {
	var doc T
	if err := jsonfile.Load(path, &doc); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Ignoring unreadable snapshot.")
		return nil
	}
	return &doc
}

// Patterns are the snapshot globs, relative to the data directory.
type Patterns struct {
	Network string
	Vuln    string
	Enum    string
}

// Reader resolves snapshot patterns against a data directory.
type Reader struct {
	dataDir  string
	patterns Patterns
}

func NewReader(dataDir string, patterns Patterns) *Reader {
	return &Reader{dataDir: dataDir, patterns: patterns}
}

func (r *Reader) resolve(pattern string) string {
	if filepath.IsAbs(pattern) {
		return pattern
	}
	return filepath.Join(r.dataDir, pattern)
}

// Network returns the current and previous network scans.
func (r *Reader) Network() (current, previous *NetworkScan) {
	return LatestTwo[NetworkScan](r.resolve(r.patterns.Network))
}

// Vuln returns the current and previous vulnerability scans.
func (r *Reader) Vuln() (current, previous *VulnScan) {
	return LatestTwo[VulnScan](r.resolve(r.patterns.Vuln))
}

// Enum returns the current and previous service-fingerprint scans.
func (r *Reader) Enum() (current, previous *EnumScan) {
	return LatestTwo[EnumScan](r.resolve(r.patterns.Enum))
}

// Dirs lists the directories that hold snapshots, for change watching.
func (r *Reader) Dirs() []string {
	seen := map[string]bool{}
	var dirs []string
	for _, p := range []string{r.patterns.Network, r.patterns.Vuln, r.patterns.Enum} {
		dir := filepath.Dir(r.resolve(p))
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// Matches reports whether path belongs to one of the snapshot datasets.
func (r *Reader) Matches(path string) bool {
	for _, p := range []string{r.patterns.Network, r.patterns.Vuln, r.patterns.Enum} {
		if ok, _ := filepath.Match(r.resolve(p), path); ok {
			return true
		}
	}
	return false
}
