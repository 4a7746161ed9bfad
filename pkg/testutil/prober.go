package testutil

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/lucid-vigil/watchdog/pkg/prober"
)

// FakeProber returns scripted probe results. Hosts are reachable unless
// listed in Down; certificates and lookups not scripted fail.
type FakeProber struct {
	NeighborTable []prober.Neighbor
	NeighborsErr  error

	Down    map[string]bool
	PingErr map[string]error

	Addresses  map[string][]string
	ResolveErr map[string]error

	// Certs is keyed by "host:port".
	Certs map[string]time.Time

	Iface    string
	IfaceErr error

	DHCPServers []string
	DHCPErr     error

	// Stall holds hosts (or "host:port" certificate targets) whose
	// lookups block until the context ends.
	Stall map[string]bool

	mu     sync.Mutex
	pinged []string
	probed []string
}

var _ prober.Prober = (*FakeProber)(nil)

var ErrNoScript = errors.New("no scripted result")

func (f *FakeProber) Neighbors(ctx context.Context) ([]prober.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.NeighborTable, f.NeighborsErr
}

func (f *FakeProber) Ping(ctx context.Context, host string, count int) (int, error) {
	f.mu.Lock()
	f.pinged = append(f.pinged, host)
	f.mu.Unlock()

	if err := f.stall(ctx, host); err != nil {
		return 0, err
	}
	if err := f.PingErr[host]; err != nil {
		return 0, err
	}
	if f.Down[host] {
		return 0, nil
	}
	return count, nil
}

// Pinged lists the hosts pinged so far, in order.
func (f *FakeProber) Pinged() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pinged...)
}

func (f *FakeProber) Resolve(ctx context.Context, domain string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.ResolveErr[domain]; err != nil {
		return nil, err
	}
	addrs, ok := f.Addresses[domain]
	if !ok {
		return nil, ErrNoScript
	}
	return addrs, nil
}

func (f *FakeProber) CertificateExpiry(ctx context.Context, host string, port int) (time.Time, error) {
	target := net.JoinHostPort(host, strconv.Itoa(port))
	f.mu.Lock()
	f.probed = append(f.probed, target)
	f.mu.Unlock()

	if err := f.stall(ctx, target); err != nil {
		return time.Time{}, err
	}
	expiry, ok := f.Certs[target]
	if !ok {
		return time.Time{}, ErrNoScript
	}
	return expiry, nil
}

// Probed lists the TLS targets probed so far, in order.
func (f *FakeProber) Probed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probed...)
}

func (f *FakeProber) DefaultInterface(ctx context.Context) (string, error) {
	if f.IfaceErr != nil {
		return "", f.IfaceErr
	}
	return f.Iface, nil
}

func (f *FakeProber) DiscoverDHCPServers(ctx context.Context, iface string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.DHCPServers, f.DHCPErr
}

func (f *FakeProber) stall(ctx context.Context, target string) error {
	if f.Stall[target] {
		<-ctx.Done()
	}
	return ctx.Err()
}
