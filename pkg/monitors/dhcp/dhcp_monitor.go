package dhcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	cerrors "github.com/lucid-vigil/watchdog/pkg/errors"
	"github.com/lucid-vigil/watchdog/pkg/monitors/base"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/rs/zerolog"
)

// Config holds configuration for the rogue DHCP check.
type Config struct {
	KnownServers []string
	// Interface overrides the default-route interface when set.
	Interface string
}

// Check broadcasts a DHCP discovery and flags unauthorized servers.
type Check struct {
	*base.BaseMonitor
	prober     prober.Prober
	config     Config
	errHandler *cerrors.ErrorHandler
}

// NewCheck creates a new rogue DHCP check.
func NewCheck(p prober.Prober, cfg Config, logger zerolog.Logger) *Check {
	b := base.NewBaseMonitor("rogue_dhcp", logger)
	return &Check{
		BaseMonitor: b,
		prober:      p,
		config:      cfg,
		errHandler:  cerrors.NewErrorHandler(*b.Logger()),
	}
}

// Run executes the rogue DHCP logic. Lacking privileges is a skip, never a
// clean result.
func (c *Check) Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error) {
	c.LogEvent(zerolog.DebugLevel, "Running rogue DHCP check...")

	iface := c.config.Interface
	if iface == "" {
		var err error
		iface, err = c.prober.DefaultInterface(ctx)
		if err != nil {
			c.Logger().Warn().Err(err).Msg("No default interface for DHCP discovery.")
			return nil, alert.NewStats(alert.StatusSkip).WithNote("no default interface"), nil
		}
	}

	servers, err := c.prober.DiscoverDHCPServers(ctx, iface)
	if errors.Is(err, prober.ErrPrivileged) {
		c.errHandler.HandleError(cerrors.NewPermissionError(c.Name(), "dhcp discovery", err))
		stats := alert.NewStats(alert.StatusSkip).WithNote("dhcp discovery requires elevated privileges").Set("interface", iface)
		return nil, stats, nil
	}
	if err != nil {
		return nil, alert.CheckStats{}, cerrors.NewProbeError(c.Name(), "dhcp discovery", err)
	}

	known := map[string]bool{}
	for _, s := range c.config.KnownServers {
		known[s] = true
	}

	var alerts []alert.Alert
	rogue := []string{}
	for _, server := range servers {
		if known[server] {
			continue
		}
		rogue = append(rogue, server)
		c.Logger().Error().Str("server", server).Str("interface", iface).Msg("Unauthorized DHCP server answered.")
		alerts = append(alerts, alert.Alert{
			Tier:     alert.TierCritical,
			Category: "rogue_dhcp",
			Title:    fmt.Sprintf("Rogue DHCP server: %s", server),
			Detail:   fmt.Sprintf("Unauthorized DHCP server on LAN! Known: %s", strings.Join(c.config.KnownServers, ", ")),
			Host:     server,
		})
	}

	if servers == nil {
		servers = []string{}
	}
	stats := alert.NewStats(alert.WorstStatus(alerts)).
		Set("interface", iface).
		Set("servers", servers).
		Set("rogue", rogue)
	return alerts, stats, nil
}
