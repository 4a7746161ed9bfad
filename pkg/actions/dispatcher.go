package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownAction is returned when no action is registered under a name.
var ErrUnknownAction = errors.New("unknown action")

// Dispatcher runs the post-run actions registered with it by name.
// Registration happens at construction, so it needs no locking.
type Dispatcher struct {
	actions map[string]Action
	logger  zerolog.Logger
}

// NewDispatcher registers actions under their names. A later action
// replaces an earlier one with the same name.
func NewDispatcher(logger zerolog.Logger, actions ...Action) *Dispatcher {
	d := &Dispatcher{actions: make(map[string]Action, len(actions)), logger: logger}
	for _, a := range actions {
		d.actions[a.Name()] = a
		logger.Debug().Str("action", a.Name()).Msg("Action registered.")
	}
	return d
}

// Execute runs the named action with data describing the run.
func (d *Dispatcher) Execute(ctx context.Context, name string, data map[string]interface{}) error {
	a, ok := d.actions[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	start := time.Now()
	if err := a.Execute(ctx, data); err != nil {
		d.logger.Warn().Err(err).Str("action", name).Msg("Action failed.")
		return err
	}
	d.logger.Info().Str("action", name).Dur("duration", time.Since(start)).Msg("Action done.")
	return nil
}
