package base

import (
	"time"

	"github.com/rs/zerolog"
)

// BaseMonitor provides the shared foundation every check embeds: its name,
// a logger tagged with that name, and the clock used for time arithmetic.
type BaseMonitor struct {
	name   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewBaseMonitor creates a BaseMonitor with a given name and logger.
func NewBaseMonitor(name string, logger zerolog.Logger) *BaseMonitor {
	return &BaseMonitor{
		name:   name,
		logger: logger.With().Str("monitor", name).Logger(),
		now:    time.Now,
	}
}

// Name returns the check's name; it doubles as the key of its stats in the report.
func (b *BaseMonitor) Name() string {
	return b.name
}

// Logger returns the check's logger for structured events.
func (b *BaseMonitor) Logger() *zerolog.Logger {
	return &b.logger
}

// LogEvent is a helper to log events with the check's context.
func (b *BaseMonitor) LogEvent(level zerolog.Level, message string) {
	b.logger.WithLevel(level).Msg(message)
}

// Now returns the current time from the check's clock.
func (b *BaseMonitor) Now() time.Time {
	return b.now()
}

// SetClock replaces the clock; tests use it to pin "now".
func (b *BaseMonitor) SetClock(now func() time.Time) {
	b.now = now
}
