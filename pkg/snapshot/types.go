package snapshot

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// NetworkScan is one network-scanner snapshot, hosts keyed by IP.
type NetworkScan struct {
	Hosts    map[string]Host `json:"hosts"`
	Security SecuritySummary `json:"security"`
}

// SecuritySummary is the network-wide score aggregate of a scan.
type SecuritySummary struct {
	AvgScore float64 `json:"avg_score"`
	Critical int     `json:"critical"`
}

type Host struct {
	MAC           string   `json:"mac"`
	Ports         []Port   `json:"ports"`
	DeviceType    string   `json:"device_type"`
	SecurityScore *float64 `json:"security_score,omitempty"`
	SecurityFlags []string `json:"security_flags,omitempty"`
	MDNSName      string   `json:"mdns_name,omitempty"`
	Hostname      string   `json:"hostname,omitempty"`
	VendorOUI     string   `json:"vendor_oui,omitempty"`
}

type Port struct {
	Port    int    `json:"port"`
	Proto   string `json:"proto"`
	Service string `json:"service"`
}

// Name returns the most descriptive label available for the host.
func (h Host) Name(ip string) string {
	for _, candidate := range []string{h.MDNSName, h.Hostname, h.VendorOUI} {
		if candidate != "" {
			return candidate
		}
	}
	return ip
}

// ShortName is Name without the vendor fallback.
func (h Host) ShortName(ip string) string {
	for _, candidate := range []string{h.MDNSName, h.Hostname} {
		if candidate != "" {
			return candidate
		}
	}
	return ip
}

// Score returns the host security score, 100 when the scanner omitted it.
func (h Host) Score() float64 {
	if h.SecurityScore == nil {
		return 100
	}
	return *h.SecurityScore
}

// NormalizedMAC returns the MAC in upper case, or "" when absent.
func (h Host) NormalizedMAC() string {
	return strings.ToUpper(strings.TrimSpace(h.MAC))
}

// OpenPorts returns the set of port numbers recorded for the host.
func (h Host) OpenPorts() map[int]struct{} {
	ports := make(map[int]struct{}, len(h.Ports))
	for _, p := range h.Ports {
		ports[p.Port] = struct{}{}
	}
	return ports
}

// VulnScan is one vulnerability-scanner snapshot.
type VulnScan struct {
	Hosts map[string]VulnHost `json:"hosts"`
	Stats VulnStats           `json:"stats"`
}

type VulnHost struct {
	Name         string    `json:"name"`
	Findings     []Finding `json:"findings"`
	FindingCount int       `json:"finding_count"`
}

// DisplayName falls back to the IP when the scanner left the name empty.
func (h VulnHost) DisplayName(ip string) string {
	if h.Name != "" {
		return h.Name
	}
	return ip
}

type VulnStats struct {
	AvgRiskScore  float64 `json:"avg_risk_score"`
	TotalFindings int     `json:"total_findings"`
}

type Finding struct {
	Type     string     `json:"type"`
	Port     FlexString `json:"port,omitempty"`
	CVE      string     `json:"cve,omitempty"`
	Severity string     `json:"severity"`
	Detail   string     `json:"detail"`
}

// Key identifies a finding across scans: type, port and CVE when present.
func (f Finding) Key() string {
	return f.Type + "|" + string(f.Port) + "|" + f.CVE
}

// FlexString accepts either a JSON string or number. Scanners disagree on
// whether ports are numeric.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = FlexString(num.String())
	return nil
}

func (s FlexString) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(s)); err == nil {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(s))
}

// EnumScan is one service-fingerprint snapshot.
type EnumScan struct {
	Hosts map[string]EnumHost `json:"hosts"`
}

type EnumHost struct {
	Fingerprint string     `json:"fingerprint"`
	HTTP        []HTTPInfo `json:"http"`
	TLS         []TLSInfo  `json:"tls"`
}

type HTTPInfo struct {
	Port   int    `json:"port"`
	Server string `json:"server"`
}

// TLSInfo records a TLS observation; Port is zero when the tool omitted it.
type TLSInfo struct {
	Port int `json:"port"`
}
