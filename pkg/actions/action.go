package actions

import (
	"context"
)

// Action is a side effect the watchdog may trigger after a run.
// Each action must have a name and an execution method.
type Action interface {
	// Name returns the unique name of the action.
	Name() string
	// Execute performs the action. It is passed a context for cancellation and a
	// map of data describing the run that triggered it.
	Execute(ctx context.Context, data map[string]interface{}) error
}
