// Package watchdog wires the checks, cooldown, digest, notifier, report and
// state together into a single run.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lucid-vigil/watchdog/pkg/actions"
	"github.com/lucid-vigil/watchdog/pkg/actions/dashboard"
	"github.com/lucid-vigil/watchdog/pkg/alert"
	"github.com/lucid-vigil/watchdog/pkg/config"
	"github.com/lucid-vigil/watchdog/pkg/digest"
	"github.com/lucid-vigil/watchdog/pkg/monitors/arp"
	"github.com/lucid-vigil/watchdog/pkg/monitors/certificate"
	"github.com/lucid-vigil/watchdog/pkg/monitors/devices"
	"github.com/lucid-vigil/watchdog/pkg/monitors/dhcp"
	"github.com/lucid-vigil/watchdog/pkg/monitors/dns"
	"github.com/lucid-vigil/watchdog/pkg/monitors/gateway"
	"github.com/lucid-vigil/watchdog/pkg/monitors/riskyports"
	"github.com/lucid-vigil/watchdog/pkg/monitors/scoretrend"
	"github.com/lucid-vigil/watchdog/pkg/monitors/servicechange"
	"github.com/lucid-vigil/watchdog/pkg/monitors/vulndelta"
	"github.com/lucid-vigil/watchdog/pkg/notifier"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/lucid-vigil/watchdog/pkg/report"
	"github.com/lucid-vigil/watchdog/pkg/scheduler"
	"github.com/lucid-vigil/watchdog/pkg/snapshot"
	"github.com/lucid-vigil/watchdog/pkg/state"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
)

// gcFactor scales the cooldown window into the sent-alert retention.
const gcFactor = 3

// Options selects what a single run does.
type Options struct {
	Mode   scheduler.Mode
	DryRun bool
}

// Result summarises a completed run.
type Result struct {
	Alerts     []alert.Alert
	Actionable []alert.Alert
	Counts     map[alert.Tier]int
	Checks     map[string]alert.CheckStats
	Message    string
	Sent       bool
	ReportPath string
	// Problems collects non-fatal failures; the run still completed.
	Problems error
}

// Watchdog runs integrity checks and reports their findings.
type Watchdog struct {
	cfg        *config.Config
	scheduler  *scheduler.Scheduler
	reader     *snapshot.Reader
	store      *state.Store
	reports    *report.Writer
	notifier   notifier.Notifier
	console    notifier.Notifier
	dispatcher *actions.Dispatcher
	cooldown   *alert.Cooldown
	hostname   string
	now        func() time.Time
	logger     zerolog.Logger
}

// Option customises a Watchdog.
type Option func(*Watchdog)

// WithNotifier replaces the Signal notifier.
func WithNotifier(n notifier.Notifier) Option {
	return func(w *Watchdog) { w.notifier = n }
}

// WithConsole sets where dry-run digests are printed.
func WithConsole(out io.Writer) Option {
	return func(w *Watchdog) { w.console = notifier.NewConsoleNotifier(out, w.logger) }
}

// WithClock overrides the run timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) { w.now = now }
}

// New builds a watchdog from configuration, registering every check.
func New(cfg *config.Config, p prober.Prober, logger zerolog.Logger, opts ...Option) (*Watchdog, error) {
	subnets, err := cfg.SubnetPrefixes()
	if err != nil {
		return nil, err
	}

	w := &Watchdog{
		cfg: cfg,
		reader: snapshot.NewReader(cfg.Paths.DataDir, snapshot.Patterns{
			Network: cfg.Snapshots.Network,
			Vuln:    cfg.Snapshots.Vuln,
			Enum:    cfg.Snapshots.Enum,
		}),
		store:    state.NewStore(cfg.Paths.StateFile, cfg.Paths.LockFile),
		reports:  report.NewWriter(cfg.Paths.ReportDir, logger),
		cooldown: alert.NewCooldown(cfg.Alerts.Cooldown),
		now:      time.Now,
		logger:   logger,
	}
	w.notifier = notifier.NewSignalNotifier(notifier.SignalConfig{
		URL:     cfg.Notifier.RPCURL,
		Account: cfg.Notifier.Account,
		Timeout: cfg.Timeouts.Notify,
		Retries: cfg.Notifier.Retries,
	}, logger)
	w.console = notifier.NewConsoleNotifier(os.Stdout, logger)
	w.dispatcher = actions.NewDispatcher(logger, &dashboard.RegenerateAction{
		Command: cfg.Dashboard.Command,
		Timeout: cfg.Timeouts.Dashboard,
	})

	if info, err := host.Info(); err == nil {
		w.hostname = info.Hostname
	} else {
		logger.Debug().Err(err).Msg("Host info unavailable")
	}

	for _, opt := range opts {
		opt(w)
	}

	s := scheduler.NewScheduler(cfg.Timeouts.Check)
	s.RegisterCheck(arp.NewCheck(p, w.reader, arp.Config{Subnets: subnets, DupMACThreshold: cfg.Thresholds.DupMACIPs}, logger), true)
	s.RegisterCheck(dns.NewCheck(p, dns.Config{Targets: cfg.Network.DNSTargets}, logger), true)
	s.RegisterCheck(gateway.NewCheck(p, gateway.Config{Gateway: cfg.Network.Gateway, Anchors: cfg.Network.InternetAnchors}, logger), true)
	s.RegisterCheck(devices.NewCheck(p, w.reader, devices.Config{Gateway: cfg.Network.Gateway, CriticalTypes: cfg.Network.CriticalDeviceTypes}, logger), true)
	s.RegisterCheck(dhcp.NewCheck(p, dhcp.Config{KnownServers: cfg.Network.KnownDHCPServers, Interface: cfg.Network.DHCPInterface}, logger), false)
	s.RegisterCheck(vulndelta.NewCheck(w.reader, logger), false)
	s.RegisterCheck(servicechange.NewCheck(w.reader, logger), false)
	s.RegisterCheck(certificate.NewCheck(p, w.reader, certificate.Config{WarnDays: cfg.Thresholds.CertWarnDays, CritDays: cfg.Thresholds.CertCritDays}, logger), false)
	s.RegisterCheck(riskyports.NewCheck(w.reader, logger), false)
	s.RegisterCheck(scoretrend.NewCheck(w.reader, logger), false)
	w.scheduler = s

	return w, nil
}

// Run performs one complete watchdog run. It returns state.ErrLocked when
// another run holds the lock, and an error only when the run could not
// record its report. Every other failure lands in Result.Problems.
func (w *Watchdog) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = scheduler.ModeFull
	}

	lock, err := w.store.Lock()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to release run lock")
		}
	}()

	if err := w.reports.Ensure(); err != nil {
		return nil, err
	}

	now := w.now()
	st := w.store.Load()
	var problems *multierror.Error

	w.logger.Info().Str("mode", string(opts.Mode)).Bool("dry_run", opts.DryRun).Msg("Watchdog run started")

	res := &Result{Alerts: []alert.Alert{}, Checks: map[string]alert.CheckStats{}}
	for _, o := range w.scheduler.RunChecks(ctx, opts.Mode) {
		res.Alerts = append(res.Alerts, o.Alerts...)
		res.Checks[o.Name] = o.Stats
		if o.Err != nil {
			problems = multierror.Append(problems, o.Err)
		}
	}

	res.Actionable = w.cooldown.Filter(res.Alerts, st.SentAlerts, now)
	res.Counts = alert.CountByTier(res.Actionable)
	w.logger.Info().
		Int("total", len(res.Alerts)).
		Int("actionable", len(res.Actionable)).
		Int("critical", res.Counts[alert.TierCritical]).
		Int("high", res.Counts[alert.TierHigh]).
		Int("medium", res.Counts[alert.TierMedium]).
		Msg("Alert summary")

	if shouldNotify(res.Counts, opts.Mode) {
		res.Message = digest.Build(res.Actionable, res.Checks, opts.Mode, now, digest.Options{
			DashboardURL: w.cfg.Dashboard.URL,
			MaxPerTier:   w.cfg.Alerts.MaxPerTier,
			MaxLength:    w.cfg.Alerts.MaxMessageLen,
		})
		if err := w.deliver(ctx, res, st, opts, now); err != nil {
			problems = multierror.Append(problems, err)
		}
	} else {
		w.logger.Info().Msg("All clear, no alerts to send")
	}

	r := report.New(now, string(opts.Mode))
	r.Host = w.hostname
	r.Alerts = res.Alerts
	r.AlertCounts = res.Counts
	r.Checks = res.Checks
	r.SignalSent = res.Sent
	r.Actionable = len(res.Actionable)
	res.ReportPath, err = w.reports.Write(r, now)
	fatal := err

	st.MarkRun(now, string(opts.Mode))
	st.AddHistory(state.RunSummary{Timestamp: now, Mode: string(opts.Mode), Counts: res.Counts, Signal: res.Sent}, w.cfg.Alerts.HistoryLimit)
	if removed := st.Prune(now, gcFactor*w.cooldown.Window()); removed > 0 {
		w.logger.Debug().Int("removed", removed).Msg("Expired cooldown entries dropped")
	}
	if err := w.store.Save(st); err != nil {
		problems = multierror.Append(problems, err)
	}

	if _, err := w.reports.Prune(now, w.cfg.Retention()); err != nil {
		problems = multierror.Append(problems, fmt.Errorf("report retention: %w", err))
	}

	if len(res.Alerts) > 0 && !opts.DryRun {
		err := w.dispatcher.Execute(ctx, dashboard.ActionName, map[string]interface{}{"alerts": len(res.Alerts)})
		switch {
		case errors.Is(err, dashboard.ErrUnavailable):
			w.logger.Debug().Err(err).Msg("Dashboard regeneration skipped")
		case err != nil:
			problems = multierror.Append(problems, err)
		}
	}

	res.Problems = problems.ErrorOrNil()
	event := w.logger.Info()
	if res.Problems != nil {
		event = w.logger.Warn().Err(res.Problems)
	}
	event.Str("mode", string(opts.Mode)).Bool("sent", res.Sent).Str("report", res.ReportPath).Msg("Watchdog run finished")

	return res, fatal
}

// deliver sends the digest and records the alerts as sent on success.
func (w *Watchdog) deliver(ctx context.Context, res *Result, st *state.State, opts Options, now time.Time) error {
	if res.Message == "" {
		return nil
	}
	if opts.DryRun {
		return w.console.Send(ctx, w.cfg.Notifier.Recipient, res.Message)
	}
	if w.cfg.Notifier.Recipient == "" {
		return errors.New("notifier.recipient is not configured")
	}

	w.logger.Info().Int("alerts", len(res.Actionable)).Msg("Sending alert digest")
	if err := w.notifier.Send(ctx, w.cfg.Notifier.Recipient, res.Message); err != nil {
		w.logger.Error().Err(err).Msg("Alert digest not delivered")
		return err
	}
	st.RecordSent(res.Actionable, now)
	res.Sent = true
	w.logger.Info().Msg("Alert digest sent")
	return nil
}

// shouldNotify applies the notification policy: critical or high always,
// medium only on full runs.
func shouldNotify(counts map[alert.Tier]int, mode scheduler.Mode) bool {
	return counts[alert.TierCritical] > 0 ||
		counts[alert.TierHigh] > 0 ||
		(mode == scheduler.ModeFull && counts[alert.TierMedium] > 0)
}
