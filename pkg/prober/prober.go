// Package prober is the narrow boundary between the checks and the live
// system: neighbor table, ICMP reachability, DNS, TLS handshakes and DHCP
// discovery. Checks depend on the Prober interface so they can run against
// fakes in tests.
package prober

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// ErrPrivileged marks a probe that needs elevated rights to run.
var ErrPrivileged = errors.New("probe requires elevated privileges")

// Neighbor is one entry of the kernel neighbor (ARP) table.
type Neighbor struct {
	IP     string
	MAC    string // upper case
	Device string
	State  string
}

// Usable reports whether the entry carries a resolved link-layer address.
func (n Neighbor) Usable() bool {
	return n.MAC != "" && n.State != "FAILED" && n.State != "INCOMPLETE"
}

// Prober performs live probes. Every method honours ctx cancellation and
// applies its own bounded timeout.
type Prober interface {
	// Neighbors returns the current neighbor table.
	Neighbors(ctx context.Context) ([]Neighbor, error)
	// Ping sends count echo requests and returns how many replies arrived.
	Ping(ctx context.Context, host string, count int) (int, error)
	// Resolve returns the IPv4 addresses a domain resolves to.
	Resolve(ctx context.Context, domain string) ([]string, error)
	// CertificateExpiry returns the NotAfter of the leaf certificate.
	CertificateExpiry(ctx context.Context, host string, port int) (time.Time, error)
	// DefaultInterface returns the interface carrying the default route.
	DefaultInterface(ctx context.Context) (string, error)
	// DiscoverDHCPServers broadcasts a DHCPDISCOVER and returns the
	// identifiers of every server that offered a lease.
	DiscoverDHCPServers(ctx context.Context, iface string) ([]string, error)
}

// Timeouts bounds each kind of probe.
type Timeouts struct {
	Ping time.Duration
	DNS  time.Duration
	TLS  time.Duration
	DHCP time.Duration
}

// DefaultTimeouts mirrors the configuration defaults.
var DefaultTimeouts = Timeouts{
	Ping: 2 * time.Second,
	DNS:  5 * time.Second,
	TLS:  5 * time.Second,
	DHCP: 10 * time.Second,
}

// System probes the host it runs on.
type System struct {
	timeouts   Timeouts
	resolvConf string
	resolvers  []string
}

// Option customises a System prober.
type Option func(*System)

// WithResolvConf reads nameservers from the given resolv.conf path.
func WithResolvConf(path string) Option {
	return func(s *System) { s.resolvConf = path }
}

// WithResolvers queries the given "host:port" servers instead of resolv.conf.
func WithResolvers(servers ...string) Option {
	return func(s *System) { s.resolvers = servers }
}

// NewSystem creates a prober for the local system.
func NewSystem(timeouts Timeouts, opts ...Option) *System {
	s := &System{timeouts: timeouts, resolvConf: "/etc/resolv.conf"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Prober = (*System)(nil)

// execCommand is swapped out in tests.
var execCommand = exec.CommandContext

func privileged(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return errors.Join(ErrPrivileged, err)
	}
	return err
}
