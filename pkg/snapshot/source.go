package snapshot

import (
	"net/netip"
	"sort"
)

// NetworkSource yields the current and previous network scans.
type NetworkSource interface {
	Network() (current, previous *NetworkScan)
}

// VulnSource yields the current and previous vulnerability scans.
type VulnSource interface {
	Vuln() (current, previous *VulnScan)
}

// EnumSource yields the current and previous service-fingerprint scans.
type EnumSource interface {
	Enum() (current, previous *EnumScan)
}

var (
	_ NetworkSource = (*Reader)(nil)
	_ VulnSource    = (*Reader)(nil)
	_ EnumSource    = (*Reader)(nil)
)

// SortedIPs returns the keys of a host map in address order. Keys that are
// not addresses sort after all addresses, lexically.
func SortedIPs[V any](hosts map[string]V) []string {
	ips := make([]string, 0, len(hosts))
	for ip := range hosts {
		ips = append(ips, ip)
	}
	SortIPs(ips)
	return ips
}

// SortIPs sorts addresses numerically in place.
func SortIPs(ips []string) {
	sort.Slice(ips, func(i, j int) bool {
		a, errA := netip.ParseAddr(ips[i])
		b, errB := netip.ParseAddr(ips[j])
		switch {
		case errA == nil && errB == nil:
			return a.Less(b)
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ips[i] < ips[j]
		}
	})
}
