package alert

import "time"

// Cooldown suppresses alerts whose key was already sent within a window.
// Unlike an in-memory deduplicator it holds no state of its own: the map of
// last-sent timestamps is owned by the persisted watchdog state.
type Cooldown struct {
	window time.Duration
}

// NewCooldown creates a cooldown filter for the given window.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window}
}

// Window returns the configured cooldown window.
func (c *Cooldown) Window() time.Duration {
	return c.window
}

// Suppressed reports whether an alert was sent within the window before now.
func (c *Cooldown) Suppressed(a Alert, sent map[string]time.Time, now time.Time) bool {
	lastSent, exists := sent[a.Hash()]
	if !exists {
		return false
	}
	return !lastSent.Before(now.Add(-c.window))
}

// Filter returns the actionable subset of alerts, preserving order.
func (c *Cooldown) Filter(alerts []Alert, sent map[string]time.Time, now time.Time) []Alert {
	actionable := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if c.Suppressed(a, sent, now) {
			continue
		}
		actionable = append(actionable, a)
	}
	return actionable
}
