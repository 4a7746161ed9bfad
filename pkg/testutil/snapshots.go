package testutil

import "github.com/lucid-vigil/watchdog/pkg/snapshot"

// Snapshots serves fixed snapshot pairs without touching disk.
type Snapshots struct {
	NetworkCurrent, NetworkPrevious *snapshot.NetworkScan
	VulnCurrent, VulnPrevious       *snapshot.VulnScan
	EnumCurrent, EnumPrevious       *snapshot.EnumScan
}

func (s *Snapshots) Network() (current, previous *snapshot.NetworkScan) {
	return s.NetworkCurrent, s.NetworkPrevious
}

func (s *Snapshots) Vuln() (current, previous *snapshot.VulnScan) {
	return s.VulnCurrent, s.VulnPrevious
}

func (s *Snapshots) Enum() (current, previous *snapshot.EnumScan) {
	return s.EnumCurrent, s.EnumPrevious
}

// Score returns a pointer for snapshot.Host.SecurityScore literals.
func Score(v float64) *float64 {
	return &v
}
