package certificate

import (
	"context"
	"fmt"
	"math"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/rs/zerolog"
)

var (
	tlsServices = map[string]bool{"https": true, "ssl": true, "https-alt": true, "imaps": true, "pop3s": true, "smtps": true}
	tlsPorts    = map[int]bool{443: true, 8443: true, 993: true, 995: true, 465: true, 636: true}
)

const defaultTLSPort = 443

// Config holds configuration for the certificate expiry check.
type Config struct {
	WarnDays int
	CritDays int
}

// Sources bundles the snapshots the target list is built from.
type Sources interface {
	snapshot.NetworkSource
	snapshot.EnumSource
}

// Check probes TLS endpoints seen by the scanners and grades how soon their
// certificates expire.
type Check struct {
	*base.BaseMonitor
	prober prober.Prober
	scans  Sources
	config Config
}

type target struct {
	host string
	port int
}

func (t target) String() string {
	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

// NewCheck creates a new certificate expiry check.
func NewCheck(p prober.Prober, scans Sources, cfg Config, logger zerolog.Logger) *Check {
	return &Check{
		BaseMonitor: base.NewBaseMonitor("cert_expiry", logger),
		prober:      p,
		scans:       scans,
		config:      cfg,
	}
}

// Run executes the certificate monitoring logic.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running certificate expiry check...")

	targets := c.targets()
	now := c.Now()

	var alerts []alert.Alert
	expired, expiring, unreachable, completed := 0, 0, 0, 0
	timedOut := false
	for _, t := range targets {
		expiry, err := c.prober.CertificateExpiry(ctx, t.host, t.port)
		if ctx.Err() != nil {
			// Keep what was found so far.
			timedOut = true
			c.Logger().Warn().Int("completed", completed).Int("targets", len(targets)).Msg("Certificate check ran out of time.")
			break
		}
		completed++
		if err != nil {
			unreachable++
			c.Logger().Debug().Err(err).Str("target", t.String()).Msg("TLS handshake failed.")
			continue
		}

		daysLeft := DaysLeft(expiry, now)
		a, ok := c.grade(t, expiry, daysLeft)
		if !ok {
			c.Logger().Debug().Str("target", t.String()).Int("days_left", daysLeft).Msg("Certificate is valid.")
			continue
		}
		if a.Tier == alert.TierCritical {
			expired++
		} else {
			expiring++
		}
		c.Logger().Warn().Str("target", t.String()).Int("days_left", daysLeft).Msg("Certificate is expiring soon.")
		alerts = append(alerts, a)
	}

	stats := alert.NewStats(alert.StatusOK).
		Set("checked", len(targets)).
		Set("expiring", expired+expiring).
		Set("unreachable", unreachable)
	switch {
	case expired > 0:
		stats.Status = alert.StatusCritical
	case expiring > 0:
		stats.Status = alert.StatusWarning
	}
	if timedOut {
		stats = stats.Set("completed", completed).WithNote("timed_out")
		if stats.Status == alert.StatusOK {
			stats.Status = alert.StatusWarning
		}
	}
	return alerts, stats, nil
}

// DaysLeft counts whole days until expiry, rounding down; an expiry earlier
// today is already -1.
func DaysLeft(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}

func (c *Check) grade(t target, expiry time.Time, daysLeft int) (alert.Alert, bool) {
	a := alert.Alert{
		Category: "cert_expiring",
		Title:    fmt.Sprintf("Cert expires in %dd: %s", daysLeft, t),
		Detail:   fmt.Sprintf("Expires %s", expiry.UTC().Format("2006-01-02")),
		Host:     t.host,
	}
	switch {
	case daysLeft <= 0:
		a.Tier = alert.TierCritical
		a.Category = "cert_expired"
		a.Title = fmt.Sprintf("CERT EXPIRED: %s (%dd ago)", t, -daysLeft)
	case daysLeft <= c.config.CritDays:
		a.Tier = alert.TierHigh
	case daysLeft <= c.config.WarnDays:
		a.Tier = alert.TierMedium
	default:
		return alert.Alert{}, false
	}
	return a, true
}

// targets merges TLS-looking ports from the network scan with TLS
// observations from the fingerprint scan.
func (c *Check) targets() []target {
	seen := map[target]bool{}

	if scan, _ := c.scans.Network(); scan != nil {
		for ip, h := range scan.Hosts {
			for _, p := range h.Ports {
				if tlsServices[p.Service] || tlsPorts[p.Port] {
					seen[target{host: ip, port: p.Port}] = true
				}
			}
		}
	}
	if enum, _ := c.scans.Enum(); enum != nil {
		for ip, h := range enum.Hosts {
			for _, t := range h.TLS {
				port := t.Port
				if port == 0 {
					port = defaultTLSPort
				}
				seen[target{host: ip, port: port}] = true
			}
		}
	}

	hosts := make([]string, 0, len(seen))
	byHost := map[string][]int{}
	for t := range seen {
		if _, ok := byHost[t.host]; !ok {
			hosts = append(hosts, t.host)
		}
		byHost[t.host] = append(byHost[t.host], t.port)
	}
	snapshot.SortIPs(hosts)

	targets := make([]target, 0, len(seen))
	for _, host := range hosts {
		ports := byHost[host]
		sort.Ints(ports)
		for _, port := range ports {
			targets = append(targets, target{host: host, port: port})
		}
	}
	return targets
}
