package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucid-vigil/watchdog/pkg/alert"
	cerrors "github.com/lucid-vigil/watchdog/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Check defines the interface for any check the scheduler can run.
type Check interface {
	Name() string
	Run(ctx context.Context) ([]alert.Alert, alert.CheckStats, error)
}

// Mode selects which registered checks run.
type Mode string

const (
	// ModeFull runs every registered check.
	ModeFull Mode = "full"
	// ModeLive runs only the live probes.
	ModeLive Mode = "live"
)

type entry struct {
	check Check
	live  bool
}

// Outcome is the result of running one check.
type Outcome struct {
	Name     string
	Alerts   []alert.Alert
	Stats    alert.CheckStats
	Duration time.Duration
	Err      error
}

// DefaultGracePeriod is how long a check may take to hand back partial
// results once its deadline has passed.
const DefaultGracePeriod = 2 * time.Second

// Scheduler manages the registration and execution of checks.
type Scheduler struct {
	checks       []entry
	checkTimeout time.Duration
	grace        time.Duration
	errHandler   *cerrors.ErrorHandler
}

// NewScheduler creates a scheduler that bounds every check by checkTimeout.
func NewScheduler(checkTimeout time.Duration) *Scheduler {
	return &Scheduler{
		checkTimeout: checkTimeout,
		grace:        DefaultGracePeriod,
		errHandler:   cerrors.NewErrorHandler(log.Logger),
	}
}

// SetGracePeriod changes how long a cancelled check is waited for.
func (s *Scheduler) SetGracePeriod(d time.Duration) {
	s.grace = d
}

// RegisterCheck adds a check. Live checks also run in live-only mode.
// Checks run in registration order.
func (s *Scheduler) RegisterCheck(c Check, live bool) {
	s.checks = append(s.checks, entry{check: c, live: live})
	log.Debug().Str("check", c.Name()).Bool("live", live).Msg("Check registered.")
}

// Checks returns the names of the checks selected by mode.
func (s *Scheduler) Checks(mode Mode) []string {
	var names []string
	for _, e := range s.checks {
		if mode == ModeFull || e.live {
			names = append(names, e.check.Name())
		}
	}
	return names
}

// RunChecks runs the checks selected by mode one after another. A failing,
// panicking or hung check yields a skip outcome and never stops the rest.
func (s *Scheduler) RunChecks(ctx context.Context, mode Mode) []Outcome {
	var outcomes []Outcome
	for _, e := range s.checks {
		if mode != ModeFull && !e.live {
			continue
		}
		if ctx.Err() != nil {
			log.Warn().Str("check", e.check.Name()).Msg("Run cancelled, skipping remaining checks.")
			break
		}
		outcome := s.runCheck(ctx, e.check)
		outcomes = append(outcomes, outcome)

		event := log.Info()
		if outcome.Err != nil {
			event = log.Warn().Err(outcome.Err)
		}
		event.Str("check", outcome.Name).
			Str("status", string(outcome.Stats.Status)).
			Int("alerts", len(outcome.Alerts)).
			Dur("duration", outcome.Duration).
			Msg("Check finished.")
	}
	return outcomes
}

type result struct {
	alerts []alert.Alert
	stats  alert.CheckStats
	err    error
}

// awaitPartial gives a check whose context ended a short while to return
// what it collected. A check that ignores its context is abandoned.
func (s *Scheduler) awaitPartial(ctx context.Context, name string, done <-chan result) result {
	grace := time.NewTimer(s.grace)
	defer grace.Stop()

	select {
	case res := <-done:
		if res.err == nil {
			log.Warn().Str("check", name).Int("alerts", len(res.alerts)).Msg("Check timed out, keeping partial results.")
			if res.stats.Note == "" {
				res.stats = res.stats.WithNote("timed_out")
			}
			if res.stats.Status == "" {
				res.stats.Status = alert.WorstStatus(res.alerts)
			}
			if res.stats.Status == alert.StatusOK {
				res.stats.Status = alert.StatusWarning
			}
		}
		return res
	case <-grace.C:
		return result{err: ctx.Err()}
	}
}

func (s *Scheduler) runCheck(ctx context.Context, c Check) Outcome {
	name := c.Name()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: cerrors.NewPanicError(name, r)}
			}
		}()
		alerts, stats, err := c.Run(ctx)
		done <- result{alerts: alerts, stats: stats, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = s.awaitPartial(ctx, name, done)
	}

	outcome := Outcome{Name: name, Alerts: res.alerts, Stats: res.stats, Duration: time.Since(start)}
	if res.err != nil {
		checkErr := s.classify(name, res.err)
		s.errHandler.HandleError(checkErr)
		outcome.Alerts = nil
		outcome.Err = checkErr
		outcome.Stats = alert.NewStats(alert.StatusSkip)
		outcome.Stats.Error = checkErr.Error()
		return outcome
	}
	if outcome.Stats.Status == "" {
		outcome.Stats.Status = alert.WorstStatus(outcome.Alerts)
	}
	return outcome
}

func (s *Scheduler) classify(name string, err error) *cerrors.CheckError {
	if ce, ok := cerrors.AsCheckError(err); ok {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return cerrors.NewTimeoutError(name, s.checkTimeout, err)
	}
	return &cerrors.CheckError{
		CheckName:   name,
		ErrorType:   "check",
		Message:     "Check failed",
		Timestamp:   time.Now(),
		Severity:    cerrors.SeverityMedium,
		Recoverable: true,
		Cause:       err,
	}
}

// Every calls fn immediately and then on every tick of interval until ctx is
// done. Calls never overlap.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
